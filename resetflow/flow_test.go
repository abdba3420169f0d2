package resetflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/marketloop/marketloop/internal/config"
	"github.com/marketloop/marketloop/internal/delivery"
	"github.com/marketloop/marketloop/internal/handlers"
	"github.com/marketloop/marketloop/internal/models"
	"github.com/marketloop/marketloop/internal/service"
	"github.com/marketloop/marketloop/internal/store"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type memUserStore struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func (m *memUserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[email]
	if !ok {
		return nil, nil
	}
	copied := *user
	return &copied, nil
}

func (m *memUserStore) Create(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *user
	m.users[user.Email] = &copied
	return nil
}

func (m *memUserStore) UpdatePassword(ctx context.Context, email, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[email]
	if !ok {
		return fmt.Errorf("user not found")
	}
	user.PasswordHash = passwordHash
	return nil
}

// newBackend stands up a development-mode reset API backed by real
// handlers, so the flow is exercised against the actual wire contract.
func newBackend(t *testing.T) *httptest.Server {
	t.Helper()

	mem := store.NewMemoryStore(time.Hour, testLogger())
	t.Cleanup(mem.Close)

	cfg := &config.ResetConfig{
		CodeExpiry:      10 * time.Minute,
		MaxAttempts:     3,
		DeliveryTimeout: time.Second,
		ResendCooldown:  60 * time.Second,
		Store:           "memory",
	}

	resetService := service.NewResetService(mem, delivery.NewLogSender(testLogger()), cfg, false, testLogger())
	users := &memUserStore{users: map[string]*models.User{
		"a@example.com": {Email: "a@example.com", PasswordHash: "old"},
	}}
	h := handlers.NewResetHandlers(resetService, users, true, testLogger())

	router := mux.NewRouter()
	router.HandleFunc("/api/reset-password/request", h.RequestReset).Methods("POST")
	router.HandleFunc("/api/reset-password/verify", h.VerifyReset).Methods("POST")

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func TestFlowHappyPath(t *testing.T) {
	ctx := context.Background()
	srv := newBackend(t)
	f := New(srv.URL)

	if f.State() != StateEnterIdentity {
		t.Fatalf("fresh flow should be in enter_identity, got %s", f.State())
	}

	if err := f.RequestCode(ctx, "a@example.com"); err != nil {
		t.Fatalf("RequestCode failed: %v", err)
	}
	if f.State() != StateAwaitingCode {
		t.Fatalf("expected awaiting_code, got %s", f.State())
	}
	code := f.DevCode()
	if len(code) != 6 {
		t.Fatalf("expected echoed 6-digit code, got %q", code)
	}

	if err := f.VerifyAndReset(ctx, code, "hunter22"); err != nil {
		t.Fatalf("VerifyAndReset failed: %v", err)
	}
	if f.State() != StateVerified {
		t.Fatalf("expected verified, got %s", f.State())
	}
}

func TestFlowResendCooldown(t *testing.T) {
	ctx := context.Background()
	srv := newBackend(t)
	f := New(srv.URL)

	now := time.Now()
	f.now = func() time.Time { return now }

	if err := f.RequestCode(ctx, "a@example.com"); err != nil {
		t.Fatalf("RequestCode failed: %v", err)
	}
	first := f.DevCode()

	if err := f.RequestCode(ctx, "a@example.com"); !errors.Is(err, ErrResendCooldown) {
		t.Fatalf("expected ErrResendCooldown, got %v", err)
	}
	if remaining := f.ResendIn(); remaining != 60*time.Second {
		t.Fatalf("expected 60s countdown, got %s", remaining)
	}

	now = now.Add(61 * time.Second)
	if err := f.RequestCode(ctx, "a@example.com"); err != nil {
		t.Fatalf("resend after cooldown failed: %v", err)
	}

	// The resend silently replaced the earlier code.
	if err := f.VerifyAndReset(ctx, first, "hunter22"); !errors.Is(err, ErrMismatch) {
		t.Fatalf("expected ErrMismatch for replaced code, got %v", err)
	}
	if f.State() != StateAwaitingCode {
		t.Fatalf("mismatch should keep awaiting_code, got %s", f.State())
	}

	if err := f.VerifyAndReset(ctx, f.DevCode(), "hunter22"); err != nil {
		t.Fatalf("verify with current code failed: %v", err)
	}
}

func TestFlowAttemptExhaustion(t *testing.T) {
	ctx := context.Background()
	srv := newBackend(t)
	f := New(srv.URL)

	if err := f.RequestCode(ctx, "a@example.com"); err != nil {
		t.Fatalf("RequestCode failed: %v", err)
	}
	code := f.DevCode()

	for i := 0; i < 3; i++ {
		if err := f.VerifyAndReset(ctx, "000000", "hunter22"); !errors.Is(err, ErrMismatch) {
			t.Fatalf("guess %d: expected ErrMismatch, got %v", i+1, err)
		}
	}

	// The fourth attempt trips the limit even with the correct code, and
	// the flow gives up: only a fresh request can proceed.
	if err := f.VerifyAndReset(ctx, code, "hunter22"); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("expected ErrTooManyAttempts, got %v", err)
	}
	if f.State() != StateFailed {
		t.Fatalf("expected failed, got %s", f.State())
	}

	f.Reset()
	if f.State() != StateEnterIdentity {
		t.Fatalf("Reset should return to enter_identity, got %s", f.State())
	}
	if err := f.RequestCode(ctx, "a@example.com"); err != nil {
		t.Fatalf("restarting the flow failed: %v", err)
	}
}

func TestFlowInvalidStateCalls(t *testing.T) {
	ctx := context.Background()
	srv := newBackend(t)
	f := New(srv.URL)

	if err := f.VerifyAndReset(ctx, "123456", "hunter22"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}

	if err := f.RequestCode(ctx, "a@example.com"); err != nil {
		t.Fatalf("RequestCode failed: %v", err)
	}
	if err := f.VerifyAndReset(ctx, f.DevCode(), "hunter22"); err != nil {
		t.Fatalf("VerifyAndReset failed: %v", err)
	}

	// A finished flow accepts no further requests until Reset.
	if err := f.RequestCode(ctx, "a@example.com"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState after verification, got %v", err)
	}
}

func TestFlowVerifyNotFoundKeepsAwaiting(t *testing.T) {
	ctx := context.Background()
	srv := newBackend(t)
	f := New(srv.URL)

	if err := f.RequestCode(ctx, "a@example.com"); err != nil {
		t.Fatalf("RequestCode failed: %v", err)
	}
	code := f.DevCode()

	// Another device completes the reset first.
	other := New(srv.URL)
	if err := other.RequestCode(ctx, "a@example.com"); err != nil {
		t.Fatalf("RequestCode failed: %v", err)
	}
	if err := other.VerifyAndReset(ctx, other.DevCode(), "hunter22"); err != nil {
		t.Fatalf("VerifyAndReset failed: %v", err)
	}

	// Our stale code now resolves to not-found; the flow stays usable.
	if err := f.VerifyAndReset(ctx, code, "hunter23"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if f.State() != StateAwaitingCode {
		t.Fatalf("expected awaiting_code, got %s", f.State())
	}
}
