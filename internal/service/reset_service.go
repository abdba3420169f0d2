package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/marketloop/marketloop/internal/config"
	"github.com/marketloop/marketloop/internal/delivery"
	"github.com/marketloop/marketloop/internal/models"
	"github.com/marketloop/marketloop/internal/store"
	"github.com/sirupsen/logrus"
)

var (
	// ErrCodeNotFound means no reset is in flight for the identity. Kept
	// indistinguishable from expiry in user-facing messages so callers
	// can't probe which identities exist.
	ErrCodeNotFound = errors.New("reset code not found")

	// ErrCodeExpired means the record outlived its validity window.
	ErrCodeExpired = errors.New("reset code expired")

	// ErrTooManyAttempts means the attempt limit was already reached
	// before this call; the record has been invalidated.
	ErrTooManyAttempts = errors.New("too many failed attempts")

	// ErrCodeMismatch means the submitted code was wrong; the record
	// survives and the failed attempt was counted.
	ErrCodeMismatch = errors.New("reset code mismatch")

	// ErrDeliveryFailed is returned in strict mode when the delivery
	// channel refuses the code. The record is retained so a resend or a
	// verify with the already-issued code remains valid.
	ErrDeliveryFailed = errors.New("failed to deliver reset code")
)

// CodeFunc produces a one-time reset code.
type CodeFunc func() (string, error)

// GenerateCode draws a uniform random 6-digit code from [100000, 999999].
// The floor keeps the code at exactly six digits with no leading zeros.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("failed to generate reset code: %w", err)
	}
	return strconv.FormatInt(n.Int64()+100000, 10), nil
}

// ResetService issues and verifies password-reset codes. All store access
// for a given identity happens under that identity's lock, so concurrent
// verify attempts cannot race on the attempt counter.
type ResetService struct {
	store          store.ResetStore
	sender         delivery.Sender
	cfg            *config.ResetConfig
	strictDelivery bool
	logger         *logrus.Logger

	generate CodeFunc
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewResetService wires the service. strictDelivery propagates delivery
// failures to the caller (production mode); otherwise they are logged and
// swallowed (development mode).
func NewResetService(
	resetStore store.ResetStore,
	sender delivery.Sender,
	cfg *config.ResetConfig,
	strictDelivery bool,
	logger *logrus.Logger,
) *ResetService {
	return &ResetService{
		store:          resetStore,
		sender:         sender,
		cfg:            cfg,
		strictDelivery: strictDelivery,
		logger:         logger,
		generate:       GenerateCode,
		now:            time.Now,
		locks:          make(map[string]*sync.Mutex),
	}
}

// RequestCode issues a fresh code for identity, replacing any outstanding
// one, and hands it to the delivery channel. The code is returned so that
// development mode can echo it; production callers must not expose it.
//
// Issuance is unconditional: whether the identity has an account is only
// checked after a successful verify, so this call never leaks existence.
func (s *ResetService) RequestCode(ctx context.Context, identity string) (string, error) {
	lock := s.lockFor(identity)
	lock.Lock()
	defer lock.Unlock()

	code, err := s.generate()
	if err != nil {
		return "", err
	}

	now := s.now()
	rec := models.ResetRecord{
		Identity:  identity,
		Code:      code,
		Attempts:  0,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.CodeExpiry),
	}

	if err := s.store.Set(ctx, rec); err != nil {
		s.logger.WithError(err).Error("Failed to store reset record")
		return "", fmt.Errorf("failed to store reset record: %w", err)
	}

	if err := s.deliver(ctx, identity, code); err != nil {
		if s.strictDelivery {
			// Record stays valid: the user may still receive a delayed
			// message, and a resend reuses the same path.
			s.logger.WithError(err).WithField("identity", identity).Error("Failed to deliver reset code")
			return "", fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
		}
		s.logger.WithError(err).WithField("identity", identity).Warn("Reset code delivery failed, continuing in non-strict mode")
	}

	return code, nil
}

// VerifyCode checks submitted against the outstanding record for identity.
// The preconditions are evaluated in a fixed order: missing record, expiry,
// exhausted attempts, then code comparison. Any terminal outcome (success,
// expiry, exhaustion) deletes the record, which is what makes a successful
// verification single-use.
func (s *ResetService) VerifyCode(ctx context.Context, identity, submitted string) error {
	lock := s.lockFor(identity)
	lock.Lock()
	defer lock.Unlock()

	rec, err := s.store.Get(ctx, identity)
	if err != nil {
		return fmt.Errorf("failed to load reset record: %w", err)
	}
	if rec == nil {
		return ErrCodeNotFound
	}

	if rec.Expired(s.now()) {
		if err := s.store.Delete(ctx, identity); err != nil {
			s.logger.WithError(err).Warn("Failed to delete expired reset record")
		}
		return ErrCodeExpired
	}

	if rec.Attempts >= s.cfg.MaxAttempts {
		if err := s.store.Delete(ctx, identity); err != nil {
			s.logger.WithError(err).Warn("Failed to delete exhausted reset record")
		}
		return ErrTooManyAttempts
	}

	if submitted != rec.Code {
		rec.Attempts++
		if err := s.store.Set(ctx, *rec); err != nil {
			s.logger.WithError(err).Error("Failed to record failed reset attempt")
			return fmt.Errorf("failed to record failed attempt: %w", err)
		}
		s.logger.WithFields(logrus.Fields{
			"identity": identity,
			"attempts": rec.Attempts,
		}).Info("Reset code mismatch")
		return ErrCodeMismatch
	}

	if err := s.store.Delete(ctx, identity); err != nil {
		s.logger.WithError(err).Error("Failed to delete verified reset record")
		return fmt.Errorf("failed to consume reset record: %w", err)
	}

	return nil
}

// deliver bounds the delivery call so a slow SMTP conversation can't hold
// the HTTP response open indefinitely.
func (s *ResetService) deliver(ctx context.Context, identity, code string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.DeliveryTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.sender.Send(identity, code)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return fmt.Errorf("delivery timed out after %s: %w", s.cfg.DeliveryTimeout, ctx.Err())
	}
}

func (s *ResetService) lockFor(identity string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[identity]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[identity] = lock
	}
	return lock
}
