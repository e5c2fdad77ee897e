package defauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sainik-portal/defauth/internal"
	"github.com/sainik-portal/defauth/notify"
)

// SendVerificationEmail issues a fresh verification token for an account
// whose email is still unconfirmed and delivers it. Reissue is throttled by
// the configured minimum interval between sends.
func (e *Engine) SendVerificationEmail(ctx context.Context, accountID string) (*VerificationIssued, error) {
	if e == nil || e.accounts == nil {
		return nil, ErrEngineNotReady
	}

	account, err := e.accounts.GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("account lookup: %w", err)
	}
	if account.EmailVerified {
		e.emitAudit(ctx, auditEventVerificationResent, false, accountID, string(account.Role), "", ErrAlreadyVerified, nil)
		return nil, ErrAlreadyVerified
	}
	if account.Email == "" {
		return nil, ValidationErrors{"email": "account has no email address on record"}
	}

	expiresIn, err := e.issueVerification(ctx, account)
	if err != nil {
		if errors.Is(err, ErrVerificationThrottled) {
			e.emitAudit(ctx, auditEventVerificationResent, false, accountID, string(account.Role), "", err, nil)
		}
		return nil, err
	}

	e.metricInc(MetricEmailVerificationResent)
	e.emitAudit(ctx, auditEventVerificationResent, true, accountID, string(account.Role), "", nil, nil)

	return &VerificationIssued{ExpiresIn: expiresIn}, nil
}

// ConsumeVerificationToken redeems a verification token exactly once and
// marks the owning account's email as confirmed. Unknown, expired, and
// already-consumed tokens are indistinguishable to the caller.
func (e *Engine) ConsumeVerificationToken(ctx context.Context, token string) error {
	if e == nil || e.accounts == nil {
		return ErrEngineNotReady
	}

	tokenID, secret, err := internal.DecodeVerificationToken(token)
	if err != nil {
		e.metricInc(MetricEmailVerificationFailure)
		e.emitAudit(ctx, auditEventVerificationConfirm, false, "", "", "", ErrVerificationInvalid, nil)
		return ErrVerificationInvalid
	}

	record, err := e.verification.Consume(ctx, tokenID, internal.HashVerificationSecret(secret))
	if err != nil {
		mapped := mapVerificationError(err)
		if errors.Is(mapped, ErrVerificationInvalid) {
			e.metricInc(MetricEmailVerificationFailure)
			e.emitAudit(ctx, auditEventVerificationConfirm, false, "", "", "", mapped, nil)
		}
		return mapped
	}

	if err := e.accounts.MarkEmailVerified(ctx, record.AccountID); err != nil {
		return fmt.Errorf("mark email verified: %w", err)
	}

	e.metricInc(MetricEmailVerificationSuccess)
	e.emitAudit(ctx, auditEventVerificationConfirm, true, record.AccountID, "", "", nil, nil)
	return nil
}

// issueVerification arms the resend throttle, stores the hashed secret, and
// emails the opaque token. The raw secret exists only in the outbound mail.
func (e *Engine) issueVerification(ctx context.Context, account AccountRecord) (time.Duration, error) {
	if err := e.verification.MarkIssued(ctx, account.AccountID, e.config.EmailVerification.ResendInterval); err != nil {
		if errors.Is(err, errVerificationResendThrottled) {
			return 0, ErrVerificationThrottled
		}
		return 0, mapVerificationError(err)
	}

	tokenID, err := internal.NewChallengeID()
	if err != nil {
		return 0, fmt.Errorf("generate token id: %w", err)
	}
	secret, err := internal.NewVerificationSecret()
	if err != nil {
		return 0, fmt.Errorf("generate token secret: %w", err)
	}

	ttl := e.config.EmailVerification.TTL
	record := &emailVerificationRecord{
		AccountID:  account.AccountID,
		SecretHash: internal.HashVerificationSecret(secret),
		ExpiresAt:  time.Now().Add(ttl).Unix(),
	}
	if err := e.verification.Save(ctx, tokenID, record, ttl); err != nil {
		return 0, mapVerificationError(err)
	}

	token, err := internal.EncodeVerificationToken(tokenID, secret)
	if err != nil {
		return 0, fmt.Errorf("encode token: %w", err)
	}

	if err := e.sender.Send(ctx, notify.Message{
		Kind:    notify.KindEmailVerification,
		To:      account.Email,
		Subject: "Confirm your email address",
		Text: fmt.Sprintf(
			"Use this token to confirm your email address: %s\nIt expires in %d minutes.",
			token, int(ttl.Minutes()),
		),
	}); err != nil {
		e.metricInc(MetricNotifyFailure)
		return 0, err
	}

	e.metricInc(MetricEmailVerificationIssued)
	e.emitAudit(ctx, auditEventVerificationIssued, true, account.AccountID, string(account.Role), "", nil, func() map[string]string {
		return map[string]string{"contact": notify.MaskEmail(account.Email)}
	})

	return ttl, nil
}

func mapVerificationError(err error) error {
	switch {
	case errors.Is(err, redis.Nil),
		errors.Is(err, errVerificationNotFound),
		errors.Is(err, errVerificationSecretMismatch):
		return ErrVerificationInvalid
	case errors.Is(err, errVerificationResendThrottled):
		return ErrVerificationThrottled
	default:
		return fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
	}
}
