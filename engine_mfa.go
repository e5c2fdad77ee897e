package defauth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/sainik-portal/defauth/internal"
	"github.com/sainik-portal/defauth/roles"
)

// VerifyMFA completes a login attempt by checking the second factor against
// the outstanding challenge. The method selection is policed before any
// code is examined: a policy-pinned method rejects every other selection
// even when the supplied code would have been correct. Expired challenges
// always report expiry, never a mismatch.
func (e *Engine) VerifyMFA(ctx context.Context, challengeID, code string, method MFAMethod) (*SessionResult, error) {
	if e == nil || e.accounts == nil {
		return nil, ErrEngineNotReady
	}

	record, err := e.challenges.Get(ctx, challengeID)
	if err != nil {
		mapped := mapChallengeError(err)
		if errors.Is(mapped, ErrOTPExpired) {
			e.metricInc(MetricMFAExpired)
			e.emitAudit(ctx, auditEventMFAExpired, false, "", "", challengeID, mapped, nil)
		}
		return nil, mapped
	}

	policy, err := e.registry.PolicyFor(record.Role)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrPolicyNotFound, record.Role)
	}

	if err := checkMethodSelection(policy, record.Method, method); err != nil {
		e.metricInc(MetricMFAMethodRejected)
		e.emitAudit(ctx, auditEventMFAMethodRejected, false, record.AccountID, string(record.Role), challengeID, err, func() map[string]string {
			return map[string]string{"selected": mfaMethodLabel(method), "required": mfaMethodLabel(record.Method)}
		})
		return nil, err
	}

	switch method {
	case MFAMethodDelivered:
		provided := sha256.Sum256([]byte(code))
		if subtle.ConstantTimeCompare(provided[:], record.CodeHash[:]) != 1 {
			return nil, e.failChallenge(ctx, challengeID, record, ErrOTPMismatch)
		}

	case MFAMethodAuthenticator:
		account, err := e.accounts.GetAccountByID(ctx, record.AccountID)
		if err != nil {
			return nil, fmt.Errorf("account lookup: %w", err)
		}
		if account.AuthenticatorSecret == "" {
			return nil, ErrMFAMethodNotAllowed
		}
		if !e.totp.Verify(account.AuthenticatorSecret, code, time.Now()) {
			return nil, e.failChallenge(ctx, challengeID, record, ErrOTPMismatch)
		}

	case MFAMethodRecovery:
		if err := e.consumeRecoveryCode(ctx, challengeID, record, code); err != nil {
			return nil, err
		}

	default:
		return nil, ErrMFAMethodNotAllowed
	}

	if err := e.challenges.Delete(ctx, challengeID, record); err != nil {
		e.warn("challenge delete failed after verification", err)
	}
	if err := e.lockout.Reset(ctx, record.Role, record.Identity); err != nil {
		e.warn("lockout reset failed after verification", err)
	}

	session, err := e.issueSessionFor(record.AccountID, record.Role)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricMFASuccess)
	e.metricInc(MetricSessionIssued)
	e.emitAudit(ctx, auditEventMFASuccess, true, record.AccountID, string(record.Role), challengeID, nil, func() map[string]string {
		return map[string]string{"method": mfaMethodLabel(method)}
	})
	e.emitAudit(ctx, auditEventSessionIssued, true, record.AccountID, string(record.Role), challengeID, nil, nil)

	return session, nil
}

// checkMethodSelection enforces the policy's MFA rule against the caller's
// selection. Recovery codes are accepted only as a fallback for
// authenticator challenges; everything else must match the method the
// account was created with.
func checkMethodSelection(policy roles.Policy, challengeMethod, selected MFAMethod) error {
	if selected == MFAMethodRecovery {
		if challengeMethod == MFAMethodAuthenticator {
			return nil
		}
		return ErrMFAMethodNotAllowed
	}

	if fixed, ok := policy.FixedMFAMethod(); ok && selected != fixed {
		return ErrMFAMethodNotAllowed
	}
	if selected != challengeMethod {
		return ErrMFAMethodNotAllowed
	}
	return nil
}

func (e *Engine) consumeRecoveryCode(ctx context.Context, challengeID string, record *mfaChallenge, code string) error {
	codes, err := e.accounts.GetRecoveryCodes(ctx, record.AccountID)
	if err != nil {
		return fmt.Errorf("recovery code lookup: %w", err)
	}
	if len(codes) == 0 {
		return ErrRecoveryCodesNotConfigured
	}

	consumed, err := e.accounts.ConsumeRecoveryCode(ctx, record.AccountID, internal.HashRecoveryCode(code))
	if err != nil {
		return fmt.Errorf("consume recovery code: %w", err)
	}
	if !consumed {
		e.metricInc(MetricRecoveryCodeFailed)
		e.emitAudit(ctx, auditEventRecoveryCodeFailed, false, record.AccountID, string(record.Role), challengeID, ErrRecoveryCodeInvalid, nil)
		return e.failChallenge(ctx, challengeID, record, ErrRecoveryCodeInvalid)
	}

	e.metricInc(MetricRecoveryCodeUsed)
	e.emitAudit(ctx, auditEventRecoveryCodeUsed, true, record.AccountID, string(record.Role), challengeID, nil, nil)
	return nil
}

// failChallenge records a wrong second-factor guess against the bounded
// per-challenge attempt budget and maps the outcome for the caller.
func (e *Engine) failChallenge(ctx context.Context, challengeID string, record *mfaChallenge, cause error) error {
	exceeded, err := e.challenges.RecordFailure(ctx, challengeID, e.config.OTP.MaxAttempts)
	if err != nil {
		mapped := mapChallengeError(err)
		if errors.Is(mapped, ErrOTPExpired) {
			e.metricInc(MetricMFAExpired)
			e.emitAudit(ctx, auditEventMFAExpired, false, record.AccountID, string(record.Role), challengeID, mapped, nil)
			return mapped
		}
		return mapped
	}

	e.metricInc(MetricMFAFailure)
	if exceeded {
		e.emitAudit(ctx, auditEventMFAFailure, false, record.AccountID, string(record.Role), challengeID, ErrOTPAttemptsExceeded, nil)
		return ErrOTPAttemptsExceeded
	}
	e.emitAudit(ctx, auditEventMFAFailure, false, record.AccountID, string(record.Role), challengeID, cause, nil)
	return cause
}

func (e *Engine) issueSession(ctx context.Context, account AccountRecord) (*SessionResult, error) {
	session, err := e.issueSessionFor(account.AccountID, account.Role)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricSessionIssued)
	e.emitAudit(ctx, auditEventSessionIssued, true, account.AccountID, string(account.Role), "", nil, nil)
	return session, nil
}

func (e *Engine) issueSessionFor(accountID string, role roles.Role) (*SessionResult, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}

	token, err := e.jwtManager.Issue(accountID, string(role), sid.String())
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}

	return &SessionResult{
		AccountID: accountID,
		Role:      role,
		Token:     token,
		ExpiresAt: time.Now().Add(e.config.Session.TTL),
	}, nil
}

// ParseSession verifies a session token and returns its claims. Validity is
// determined purely by signature and embedded expiry.
func (e *Engine) ParseSession(token string) (accountID string, role roles.Role, err error) {
	if e == nil || e.jwtManager == nil {
		return "", "", ErrEngineNotReady
	}
	claims, err := e.jwtManager.Parse(token)
	if err != nil {
		return "", "", err
	}
	return claims.AccountID, roles.Role(claims.Role), nil
}
