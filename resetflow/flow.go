// Package resetflow drives the two-step password-reset flow against the
// backend API: request a code for an identity, then submit the code with a
// new password. It holds the transient client state a UI needs: the claimed
// identity, the flow state, and the resend cooldown.
package resetflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

type State int

const (
	// StateEnterIdentity collects the identity and requests a code.
	StateEnterIdentity State = iota
	// StateAwaitingCode collects the code and the new password.
	StateAwaitingCode
	// StateVerified is terminal: the password was reset.
	StateVerified
	// StateFailed is terminal for this attempt: the code expired or the
	// attempt limit was hit, so only a fresh request can proceed. Reset
	// returns to StateEnterIdentity.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateEnterIdentity:
		return "enter_identity"
	case StateAwaitingCode:
		return "awaiting_code"
	case StateVerified:
		return "verified"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrMismatch: wrong code, the attempt was counted, retry is allowed.
	ErrMismatch = errors.New("invalid reset code")
	// ErrNotFound: no reset in flight for this identity.
	ErrNotFound = errors.New("invalid or expired reset code")
	// ErrExpired: the code outlived its validity window.
	ErrExpired = errors.New("reset code has expired")
	// ErrTooManyAttempts: the attempt limit was reached.
	ErrTooManyAttempts = errors.New("too many failed attempts")
	// ErrResendCooldown: the resend countdown has not elapsed yet.
	ErrResendCooldown = errors.New("resend not available yet")
	// ErrInvalidState: the call does not apply to the current state.
	ErrInvalidState = errors.New("operation not valid in current state")
)

// Flow is a client-side state machine over the reset API. Methods are safe
// for concurrent use, though a UI normally drives it from one goroutine.
type Flow struct {
	baseURL    string
	httpClient *http.Client
	cooldown   time.Duration
	now        func() time.Time

	mu       sync.Mutex
	state    State
	identity string
	resendAt time.Time
	devCode  string
}

func New(baseURL string) *Flow {
	return &Flow{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		cooldown:   60 * time.Second,
		now:        time.Now,
		state:      StateEnterIdentity,
	}
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Flow) Identity() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.identity
}

// ResendIn reports how long until a resend is allowed. Zero means resend
// (or a first request) is available now.
func (f *Flow) ResendIn() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.resendAt.Sub(f.now())
	if d < 0 {
		return 0
	}
	return d
}

// DevCode returns the code echoed by a development-mode server for the
// latest request, or "" against a production server.
func (f *Flow) DevCode() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.devCode
}

// RequestCode asks the server to issue a code for identity and moves to
// StateAwaitingCode. From StateAwaitingCode it acts as a resend for the
// same identity, gated by the cooldown; the server silently replaces the
// previous code.
func (f *Flow) RequestCode(ctx context.Context, identity string) error {
	f.mu.Lock()
	switch f.state {
	case StateEnterIdentity:
	case StateAwaitingCode:
		if f.now().Before(f.resendAt) {
			f.mu.Unlock()
			return ErrResendCooldown
		}
	default:
		f.mu.Unlock()
		return ErrInvalidState
	}
	f.mu.Unlock()

	var resp struct {
		Message string `json:"message"`
		OTP     string `json:"otp"`
	}
	if err := f.postJSON(ctx, "/api/reset-password/request", map[string]string{"email": identity}, &resp); err != nil {
		return err
	}

	f.mu.Lock()
	f.state = StateAwaitingCode
	f.identity = identity
	f.resendAt = f.now().Add(f.cooldown)
	f.devCode = resp.OTP
	f.mu.Unlock()
	return nil
}

// VerifyAndReset submits the code and the new password. On success the flow
// reaches StateVerified. A wrong or unknown code keeps the flow in
// StateAwaitingCode for another try; an expired code or an exhausted
// attempt limit moves to StateFailed, since only a fresh request can help.
func (f *Flow) VerifyAndReset(ctx context.Context, code, newPassword string) error {
	f.mu.Lock()
	if f.state != StateAwaitingCode {
		f.mu.Unlock()
		return ErrInvalidState
	}
	identity := f.identity
	f.mu.Unlock()

	var resp struct {
		Message string `json:"message"`
	}
	err := f.postJSON(ctx, "/api/reset-password/verify", map[string]string{
		"email":       identity,
		"code":        code,
		"newPassword": newPassword,
	}, &resp)

	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case err == nil:
		f.state = StateVerified
		return nil
	case errors.Is(err, ErrExpired), errors.Is(err, ErrTooManyAttempts):
		f.state = StateFailed
		return err
	default:
		// Mismatch, not-found and transport errors leave room to retry.
		return err
	}
}

// Reset abandons the flow and returns to StateEnterIdentity. No server-side
// cleanup is needed; an outstanding record invalidates itself.
func (f *Flow) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = StateEnterIdentity
	f.identity = ""
	f.resendAt = time.Time{}
	f.devCode = ""
}

func (f *Flow) postJSON(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Error == "" {
			return fmt.Errorf("server returned status %d", resp.StatusCode)
		}
		return classify(errResp.Error)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// classify maps the server's user-facing messages onto sentinel errors so
// the state machine can branch on the failure kind.
func classify(message string) error {
	switch message {
	case "Invalid reset code":
		return ErrMismatch
	case "Invalid or expired reset code":
		return ErrNotFound
	case "Reset code has expired":
		return ErrExpired
	case "Too many failed attempts":
		return ErrTooManyAttempts
	default:
		return errors.New(message)
	}
}
