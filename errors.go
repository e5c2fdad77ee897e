package defauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/sainik-portal/defauth/roles"
)

var (
	ErrEngineNotReady = errors.New("engine not initialized")

	// ErrInvalidCredentials is the uniform answer for every credential
	// failure: wrong password, unknown identity, unknown role+identity
	// pair. The precise reason is recorded only in the audit trail.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
	ErrAccountNotActive   = errors.New("account not active")
	ErrEmailNotVerified   = errors.New("email not verified")
	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountExists      = errors.New("account already exists")

	ErrMFARequired          = errors.New("mfa required")
	ErrMFAMethodNotAllowed  = errors.New("mfa method not allowed")
	ErrOTPExpired           = errors.New("otp challenge expired")
	ErrOTPMismatch          = errors.New("otp code mismatch")
	ErrOTPAttemptsExceeded  = errors.New("otp attempts exceeded")
	ErrOTPResendThrottled   = errors.New("otp resend throttled")
	ErrChallengeNotFound    = errors.New("mfa challenge not found")
	ErrChallengeUnavailable = errors.New("mfa challenge backend unavailable")

	ErrVerificationInvalid     = errors.New("verification token invalid or expired")
	ErrVerificationThrottled   = errors.New("verification resend throttled")
	ErrVerificationUnavailable = errors.New("verification backend unavailable")
	ErrAlreadyVerified         = errors.New("email already verified")

	ErrRecoveryCodeInvalid        = errors.New("invalid recovery code")
	ErrRecoveryCodesNotConfigured = errors.New("recovery codes not configured")

	ErrLockoutUnavailable = errors.New("lockout backend unavailable")

	// ErrPolicyNotFound re-exports roles.ErrPolicyNotFound at the engine
	// boundary: an unknown role is a deployment bug, not user error.
	ErrPolicyNotFound = roles.ErrPolicyNotFound
)

// ValidationErrors carries field-level policy messages for malformed input.
// Keys are field names ("identity", "email", "password", ...); values are
// the user-facing messages owned by the role policy.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	return fmt.Sprintf("validation failed on %d field(s)", len(v))
}

// LockedError reports how long the lock has left to run. It matches
// ErrAccountLocked under errors.Is.
type LockedError struct {
	Remaining time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked for another %s", e.Remaining.Round(time.Second))
}

func (e *LockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// CredentialError is the uniform credential failure carrying the number of
// attempts left before lockout. It matches ErrInvalidCredentials under
// errors.Is and never discloses which check failed.
type CredentialError struct {
	RemainingAttempts int
}

func (e *CredentialError) Error() string {
	return ErrInvalidCredentials.Error()
}

func (e *CredentialError) Is(target error) bool {
	return target == ErrInvalidCredentials
}
