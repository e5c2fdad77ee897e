package defauth

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventRegistrationSuccess      = "registration_success"
	auditEventRegistrationPending      = "registration_pending_review"
	auditEventRegistrationRejected     = "registration_rejected"
	auditEventLoginSuccess             = "login_success"
	auditEventLoginFailure             = "login_failure"
	auditEventLoginLocked              = "login_locked"
	auditEventMFARequired              = "mfa_required"
	auditEventMFASuccess               = "mfa_success"
	auditEventMFAFailure               = "mfa_failure"
	auditEventMFAExpired               = "mfa_expired"
	auditEventMFAMethodRejected        = "mfa_method_rejected"
	auditEventOTPIssued                = "otp_issued"
	auditEventOTPResent                = "otp_resent"
	auditEventRecoveryCodeUsed         = "recovery_code_used"
	auditEventRecoveryCodeFailed       = "recovery_code_failed"
	auditEventRecoveryCodesRegenerated = "recovery_codes_regenerated"
	auditEventVerificationIssued       = "email_verification_issued"
	auditEventVerificationResent       = "email_verification_resent"
	auditEventVerificationConfirm      = "email_verification_confirm"
	auditEventSessionIssued            = "session_issued"
)

// AuditErrorCode is the stable, enumerable error label recorded on audit
// events in place of free-form error text.
type AuditErrorCode string

const (
	auditErrInvalidCredentials   AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked        AuditErrorCode = "account_locked"
	auditErrAccountNotActive     AuditErrorCode = "account_not_active"
	auditErrEmailNotVerified     AuditErrorCode = "email_not_verified"
	auditErrAccountNotFound      AuditErrorCode = "account_not_found"
	auditErrDuplicate            AuditErrorCode = "duplicate"
	auditErrMFAMethodNotAllowed  AuditErrorCode = "mfa_method_not_allowed"
	auditErrOTPExpired           AuditErrorCode = "otp_expired"
	auditErrOTPMismatch          AuditErrorCode = "otp_mismatch"
	auditErrOTPAttemptsExceeded  AuditErrorCode = "otp_attempts_exceeded"
	auditErrResendThrottled      AuditErrorCode = "resend_throttled"
	auditErrChallengeNotFound    AuditErrorCode = "challenge_not_found"
	auditErrVerificationInvalid  AuditErrorCode = "verification_invalid"
	auditErrAlreadyVerified      AuditErrorCode = "already_verified"
	auditErrRecoveryCodeInvalid  AuditErrorCode = "recovery_code_invalid"
	auditErrPolicyNotFound       AuditErrorCode = "policy_not_found"
	auditErrValidation           AuditErrorCode = "validation_failed"
	auditErrUnavailable          AuditErrorCode = "backend_unavailable"
	auditErrInternal             AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	role string,
	challengeID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:   time.Now().UTC(),
		EventType:   eventType,
		AccountID:   accountID,
		Role:        role,
		ChallengeID: challengeID,
		IP:          clientIPFromContext(ctx),
		UserAgent:   userAgentFromContext(ctx),
		Success:     success,
		Metadata:    metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	var vErrs ValidationErrors
	if errors.As(err, &vErrs) {
		return auditErrValidation
	}

	switch {
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountNotActive):
		return auditErrAccountNotActive
	case errors.Is(err, ErrEmailNotVerified):
		return auditErrEmailNotVerified
	case errors.Is(err, ErrAccountNotFound):
		return auditErrAccountNotFound
	case errors.Is(err, ErrAccountExists):
		return auditErrDuplicate
	case errors.Is(err, ErrMFAMethodNotAllowed):
		return auditErrMFAMethodNotAllowed
	case errors.Is(err, ErrOTPExpired):
		return auditErrOTPExpired
	case errors.Is(err, ErrOTPMismatch):
		return auditErrOTPMismatch
	case errors.Is(err, ErrOTPAttemptsExceeded):
		return auditErrOTPAttemptsExceeded
	case errors.Is(err, ErrOTPResendThrottled),
		errors.Is(err, ErrVerificationThrottled):
		return auditErrResendThrottled
	case errors.Is(err, ErrChallengeNotFound):
		return auditErrChallengeNotFound
	case errors.Is(err, ErrVerificationInvalid):
		return auditErrVerificationInvalid
	case errors.Is(err, ErrAlreadyVerified):
		return auditErrAlreadyVerified
	case errors.Is(err, ErrRecoveryCodeInvalid),
		errors.Is(err, ErrRecoveryCodesNotConfigured):
		return auditErrRecoveryCodeInvalid
	case errors.Is(err, ErrPolicyNotFound):
		return auditErrPolicyNotFound
	case errors.Is(err, ErrChallengeUnavailable),
		errors.Is(err, ErrVerificationUnavailable),
		errors.Is(err, ErrLockoutUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
