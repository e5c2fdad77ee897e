package defauth

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/sainik-portal/defauth/internal"
	"github.com/sainik-portal/defauth/notify"
	"github.com/sainik-portal/defauth/roles"
)

// authenticatorChallengeTTL bounds how long a password-verified login may
// wait for an authenticator code. Delivered challenges use the OTP TTL.
const authenticatorChallengeTTL = 5 * time.Minute

// Login drives a login attempt up to the MFA challenge. The lockout guard
// runs before the account lookup, so a locked pair is refused without the
// password hash ever being consulted. All credential failures, including
// unknown identities, return the same *CredentialError; the real reason is
// recorded only in the audit trail.
func (e *Engine) Login(ctx context.Context, role roles.Role, identity, passwordInput string) (*LoginResult, error) {
	if e == nil || e.accounts == nil {
		return nil, ErrEngineNotReady
	}

	policy, err := e.registry.PolicyFor(role)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrPolicyNotFound, role)
	}

	normalized := roles.NormalizeIdentity(identity, policy)
	if err := roles.ValidateIdentity(normalized, policy); err != nil {
		var fieldErr *roles.FieldError
		if errors.As(err, &fieldErr) {
			return nil, ValidationErrors{fieldErr.Field: fieldErr.Message}
		}
		return nil, err
	}

	if err := e.lockout.Check(ctx, role, normalized); err != nil {
		var locked *LockedError
		if errors.As(err, &locked) {
			e.metricInc(MetricLoginLocked)
			e.emitAudit(ctx, auditEventLoginLocked, false, "", string(role), "", err, nil)
			return nil, locked
		}
		return nil, err
	}

	account, err := e.accounts.GetAccount(ctx, role, normalized)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			// Unknown identities count toward lockout and answer exactly
			// like a wrong password, to block enumeration.
			return nil, e.failLogin(ctx, role, normalized, "", ErrAccountNotFound)
		}
		return nil, fmt.Errorf("account lookup: %w", err)
	}

	ok, err := e.hasher.Verify(passwordInput, account.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, e.failLogin(ctx, role, normalized, account.AccountID, ErrInvalidCredentials)
	}

	if !account.Active {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, account.AccountID, string(role), "", ErrAccountNotActive, nil)
		return nil, ErrAccountNotActive
	}
	if !account.EmailVerified {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, account.AccountID, string(role), "", ErrEmailNotVerified, nil)
		return nil, ErrEmailNotVerified
	}

	if account.MFAMethod == MFAMethodNone {
		// Policy waives the second factor: the password check alone
		// completes the attempt.
		session, err := e.issueSession(ctx, account)
		if err != nil {
			return nil, err
		}
		if err := e.lockout.Reset(ctx, role, normalized); err != nil {
			e.warn("lockout reset failed after login", err)
		}
		e.metricInc(MetricLoginSuccess)
		e.emitAudit(ctx, auditEventLoginSuccess, true, account.AccountID, string(role), "", nil, nil)
		return &LoginResult{Session: session}, nil
	}

	result, err := e.openChallenge(ctx, account, normalized)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricMFARequired)
	e.emitAudit(ctx, auditEventMFARequired, true, account.AccountID, string(role), result.ChallengeID, nil, func() map[string]string {
		return map[string]string{"method": mfaMethodLabel(account.MFAMethod)}
	})

	return result, nil
}

// ResendOTP reissues the delivered code for an outstanding challenge. The
// new code replaces the old one under the same challenge id; reissue is
// throttled by the configured cooldown.
func (e *Engine) ResendOTP(ctx context.Context, challengeID string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	record, err := e.challenges.Get(ctx, challengeID)
	if err != nil {
		return nil, mapChallengeError(err)
	}
	if record.Method != MFAMethodDelivered {
		return nil, ErrMFAMethodNotAllowed
	}

	if time.Since(time.Unix(record.IssuedAt, 0)) < e.config.OTP.ResendCooldown {
		e.metricInc(MetricOTPResendThrottled)
		e.emitAudit(ctx, auditEventOTPResent, false, record.AccountID, string(record.Role), challengeID, ErrOTPResendThrottled, nil)
		return nil, ErrOTPResendThrottled
	}

	code, err := internal.NewOTP(e.config.OTP.Digits)
	if err != nil {
		return nil, fmt.Errorf("generate otp: %w", err)
	}

	now := time.Now()
	fresh := &mfaChallenge{
		AccountID: record.AccountID,
		Role:      record.Role,
		Identity:  record.Identity,
		Method:    MFAMethodDelivered,
		Contact:   record.Contact,
		CodeHash:  sha256.Sum256([]byte(code)),
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(e.config.OTP.TTL).Unix(),
	}
	if err := e.challenges.Save(ctx, challengeID, fresh, e.config.OTP.TTL); err != nil {
		return nil, mapChallengeError(err)
	}

	if err := e.sendLoginOTP(ctx, record.Contact, code); err != nil {
		e.metricInc(MetricNotifyFailure)
		return nil, err
	}

	e.metricInc(MetricOTPResent)
	e.emitAudit(ctx, auditEventOTPResent, true, record.AccountID, string(record.Role), challengeID, nil, nil)

	return &LoginResult{
		MFARequired:   true,
		Method:        MFAMethodDelivered,
		ChallengeID:   challengeID,
		MaskedContact: notify.MaskEmail(record.Contact),
		ExpiresIn:     e.config.OTP.TTL,
	}, nil
}

// openChallenge persists the second-factor challenge for a password-verified
// attempt and, for the delivered method, sends the one-time code.
func (e *Engine) openChallenge(ctx context.Context, account AccountRecord, normalized string) (*LoginResult, error) {
	challengeID, err := internal.NewChallengeID()
	if err != nil {
		return nil, fmt.Errorf("generate challenge id: %w", err)
	}

	now := time.Now()
	record := &mfaChallenge{
		AccountID: account.AccountID,
		Role:      account.Role,
		Identity:  normalized,
		Method:    account.MFAMethod,
		IssuedAt:  now.Unix(),
	}

	result := &LoginResult{
		MFARequired: true,
		Method:      account.MFAMethod,
		ChallengeID: challengeID,
	}

	var ttl time.Duration
	switch account.MFAMethod {
	case MFAMethodDelivered:
		code, err := internal.NewOTP(e.config.OTP.Digits)
		if err != nil {
			return nil, fmt.Errorf("generate otp: %w", err)
		}
		ttl = e.config.OTP.TTL
		record.Contact = account.Email
		record.CodeHash = sha256.Sum256([]byte(code))
		record.ExpiresAt = now.Add(ttl).Unix()

		if err := e.challenges.Save(ctx, challengeID, record, ttl); err != nil {
			return nil, mapChallengeError(err)
		}
		if err := e.sendLoginOTP(ctx, account.Email, code); err != nil {
			e.metricInc(MetricNotifyFailure)
			return nil, err
		}
		e.metricInc(MetricOTPIssued)
		e.emitAudit(ctx, auditEventOTPIssued, true, account.AccountID, string(account.Role), challengeID, nil, func() map[string]string {
			return map[string]string{"contact": notify.MaskEmail(account.Email)}
		})
		result.MaskedContact = notify.MaskEmail(account.Email)

	case MFAMethodAuthenticator:
		ttl = authenticatorChallengeTTL
		record.ExpiresAt = now.Add(ttl).Unix()
		if err := e.challenges.Save(ctx, challengeID, record, ttl); err != nil {
			return nil, mapChallengeError(err)
		}

	default:
		return nil, ErrMFAMethodNotAllowed
	}

	result.ExpiresIn = ttl
	return result, nil
}

func (e *Engine) failLogin(ctx context.Context, role roles.Role, normalized, accountID string, cause error) error {
	remaining, err := e.lockout.RecordFailure(ctx, role, normalized)
	if err != nil {
		var locked *LockedError
		if errors.As(err, &locked) {
			e.metricInc(MetricLoginLocked)
			e.emitAudit(ctx, auditEventLoginLocked, false, accountID, string(role), "", cause, nil)
			return locked
		}
		return err
	}

	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, accountID, string(role), "", cause, func() map[string]string {
		return map[string]string{"remaining_attempts": fmt.Sprintf("%d", remaining)}
	})

	return &CredentialError{RemainingAttempts: remaining}
}

func (e *Engine) sendLoginOTP(ctx context.Context, to, code string) error {
	return e.sender.Send(ctx, notify.Message{
		Kind:    notify.KindLoginOTP,
		To:      to,
		Subject: "Your sign-in code",
		Text: fmt.Sprintf(
			"Your one-time sign-in code is %s. It expires in %d seconds. If you did not request it, ignore this message.",
			code, int(e.config.OTP.TTL.Seconds()),
		),
	})
}

func mfaMethodLabel(m MFAMethod) string {
	switch m {
	case MFAMethodAuthenticator:
		return "authenticator"
	case MFAMethodDelivered:
		return "delivered"
	case MFAMethodRecovery:
		return "recovery"
	default:
		return "none"
	}
}

func mapChallengeError(err error) error {
	switch {
	case errors.Is(err, errChallengeNotFound):
		return ErrChallengeNotFound
	case errors.Is(err, errChallengeExpired):
		return ErrOTPExpired
	case errors.Is(err, errChallengeExceeded):
		return ErrOTPAttemptsExceeded
	default:
		return fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
	}
}
