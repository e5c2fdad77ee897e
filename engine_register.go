package defauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/sainik-portal/defauth/internal"
	"github.com/sainik-portal/defauth/roles"
)

// Register drives the registration lifecycle end to end: identity capture,
// role-policy validation, security preferences, and provisional account
// creation. Accounts are always created inactive with the email unverified;
// the outcome fork decides whether the automated verification flow starts
// or an operator must review the account.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	if e == nil || e.accounts == nil {
		return nil, ErrEngineNotReady
	}

	reg := NewRegistration(e.registry)

	if err := reg.BeginIdentity(req.FullName, req.Contact); err != nil {
		return nil, e.rejectRegistration(ctx, req.Role, err)
	}
	if err := reg.SelectRole(req.Role); err != nil {
		return nil, e.rejectRegistration(ctx, req.Role, err)
	}
	if err := reg.ProvideServiceIdentity(req.Identity, req.Email); err != nil {
		return nil, e.rejectRegistration(ctx, req.Role, err)
	}
	if err := reg.ChooseSecurity(req.Password, req.MFAMethod, req.Eligibility); err != nil {
		return nil, e.rejectRegistration(ctx, req.Role, err)
	}

	status, err := reg.Outcome()
	if err != nil {
		return nil, err
	}

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	accountID := uuid.NewString()
	input := CreateAccountInput{
		AccountID:    accountID,
		FullName:     reg.fullName,
		Role:         reg.role,
		Identity:     reg.identity,
		Email:        reg.email,
		PasswordHash: hash,
		MFAMethod:    reg.method,
		Status:       status,
	}

	var enrollment *MFAEnrollment
	var plainCodes []string
	var codeRecords []RecoveryCodeRecord

	if reg.method == MFAMethodAuthenticator {
		secret, uri, err := e.totp.Provision(e.enrollmentAccountName(reg))
		if err != nil {
			return nil, fmt.Errorf("provision authenticator: %w", err)
		}
		input.AuthenticatorSecret = secret
		enrollment = &MFAEnrollment{Secret: secret, URI: uri}

		plainCodes, codeRecords, err = newRecoveryCodeBatch(e.config.RecoveryCodes.Count)
		if err != nil {
			return nil, fmt.Errorf("generate recovery codes: %w", err)
		}
	}

	account, err := e.accounts.CreateAccount(ctx, input)
	if err != nil {
		if errors.Is(err, ErrAccountExists) {
			e.emitAudit(ctx, auditEventRegistrationRejected, false, "", string(reg.role), "", err, nil)
			e.metricInc(MetricRegistrationRejected)
			return nil, ErrAccountExists
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	if len(codeRecords) > 0 {
		if err := e.accounts.ReplaceRecoveryCodes(ctx, account.AccountID, codeRecords); err != nil {
			return nil, fmt.Errorf("store recovery codes: %w", err)
		}
	}

	result := &RegisterResult{
		AccountID:     account.AccountID,
		Status:        status,
		Enrollment:    enrollment,
		RecoveryCodes: plainCodes,
	}

	if status == AccountVerifiedPath {
		expiresIn, err := e.issueVerification(ctx, account)
		if err != nil {
			// The account exists; the caller can retry delivery through
			// SendVerificationEmail.
			e.warn("verification email not issued at registration", err)
		} else {
			result.RequiresEmailVerification = true
			result.VerificationExpiresIn = expiresIn
		}
		e.metricInc(MetricRegistrationSuccess)
		e.emitAudit(ctx, auditEventRegistrationSuccess, true, account.AccountID, string(reg.role), "", nil, func() map[string]string {
			return map[string]string{"status": "verified_path"}
		})
	} else {
		e.metricInc(MetricRegistrationPendingReview)
		e.emitAudit(ctx, auditEventRegistrationPending, true, account.AccountID, string(reg.role), "", nil, func() map[string]string {
			return map[string]string{"status": "pending_manual_review"}
		})
	}

	return result, nil
}

func (e *Engine) rejectRegistration(ctx context.Context, role roles.Role, err error) error {
	e.metricInc(MetricRegistrationRejected)
	e.emitAudit(ctx, auditEventRegistrationRejected, false, "", string(role), "", err, nil)
	return err
}

// enrollmentAccountName is the label shown inside authenticator apps.
func (e *Engine) enrollmentAccountName(reg *Registration) string {
	if reg.email != "" {
		return reg.email
	}
	return reg.identity
}

func newRecoveryCodeBatch(count int) ([]string, []RecoveryCodeRecord, error) {
	plain := make([]string, 0, count)
	records := make([]RecoveryCodeRecord, 0, count)
	for i := 0; i < count; i++ {
		code, err := internal.NewRecoveryCode()
		if err != nil {
			return nil, nil, err
		}
		plain = append(plain, code)
		records = append(records, RecoveryCodeRecord{Hash: internal.HashRecoveryCode(code)})
	}
	return plain, records, nil
}
