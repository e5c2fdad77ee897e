package defauth

import (
	"context"
	"fmt"
	"time"
)

// RegenerateRecoveryCodes replaces an account's recovery code batch. A
// fresh authenticator code is required, so a stolen session alone cannot
// rotate the codes. The returned plaintexts are shown exactly once; any
// codes not yet consumed from the old batch stop working immediately.
func (e *Engine) RegenerateRecoveryCodes(ctx context.Context, accountID, authenticatorCode string) ([]string, error) {
	if e == nil || e.accounts == nil {
		return nil, ErrEngineNotReady
	}

	account, err := e.accounts.GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("account lookup: %w", err)
	}
	if account.MFAMethod != MFAMethodAuthenticator || account.AuthenticatorSecret == "" {
		return nil, ErrMFAMethodNotAllowed
	}

	if !e.totp.Verify(account.AuthenticatorSecret, authenticatorCode, time.Now()) {
		e.metricInc(MetricRecoveryCodeFailed)
		e.emitAudit(ctx, auditEventRecoveryCodesRegenerated, false, accountID, string(account.Role), "", ErrOTPMismatch, nil)
		return nil, ErrOTPMismatch
	}

	plain, records, err := newRecoveryCodeBatch(e.config.RecoveryCodes.Count)
	if err != nil {
		return nil, fmt.Errorf("generate recovery codes: %w", err)
	}
	if err := e.accounts.ReplaceRecoveryCodes(ctx, accountID, records); err != nil {
		return nil, fmt.Errorf("store recovery codes: %w", err)
	}

	e.metricInc(MetricRecoveryCodesRegenerated)
	e.emitAudit(ctx, auditEventRecoveryCodesRegenerated, true, accountID, string(account.Role), "", nil, nil)

	return plain, nil
}
