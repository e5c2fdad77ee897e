package defauth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sainik-portal/defauth/roles"
)

func personnelRequest() RegisterRequest {
	return RegisterRequest{
		FullName:    "Jane Sharma",
		Contact:     "+91 98765 43210",
		Role:        roles.RolePersonnel,
		Identity:    "army 123456",
		Email:       "jane@army.mil.in",
		Password:    "xK9#mVt2!qLp8@Wz",
		MFAMethod:   MFAMethodDelivered,
		Eligibility: true,
	}
}

func TestRegisterPrimaryDomainTakesVerifiedPath(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.engine.Register(context.Background(), personnelRequest())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if result.Status != AccountVerifiedPath {
		t.Fatalf("status = %v, want AccountVerifiedPath", result.Status)
	}
	if !result.RequiresEmailVerification {
		t.Fatal("expected the verification flow to start")
	}
	if result.VerificationExpiresIn != env.engine.config.EmailVerification.TTL {
		t.Fatalf("expiry = %v, want %v", result.VerificationExpiresIn, env.engine.config.EmailVerification.TTL)
	}
	if env.sender.count() != 1 {
		t.Fatalf("sent %d messages, want 1 verification mail", env.sender.count())
	}

	account, err := env.provider.GetAccountByID(context.Background(), result.AccountID)
	if err != nil {
		t.Fatalf("account lookup: %v", err)
	}
	if account.Identity != "ARMY123456" {
		t.Fatalf("stored identity = %q, want normalized ARMY123456", account.Identity)
	}
	if account.Active || account.EmailVerified {
		t.Fatal("accounts must start inactive and unverified")
	}
	if strings.Contains(account.PasswordHash, "xK9#mVt2!qLp8@Wz") {
		t.Fatal("password stored in the clear")
	}
}

func TestRegisterSecondaryDomainPendsManualReview(t *testing.T) {
	env := newTestEnv(t)

	req := personnelRequest()
	req.Email = "jane@gmail.com"
	result, err := env.engine.Register(context.Background(), req)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if result.Status != AccountPendingManualReview {
		t.Fatalf("status = %v, want AccountPendingManualReview", result.Status)
	}
	if result.RequiresEmailVerification {
		t.Fatal("manual-review registrations must not start the verification flow")
	}
	if env.sender.count() != 0 {
		t.Fatal("manual-review registrations must not send mail")
	}
}

func TestRegisterAuthenticatorReturnsEnrollmentOnce(t *testing.T) {
	env := newTestEnv(t)

	req := RegisterRequest{
		FullName:    "Ops Chief",
		Contact:     "chief@hq.mil.in",
		Role:        roles.RoleAdmin,
		Identity:    "adm 12345",
		Email:       "chief@hq.mil.in",
		Password:    "Extremely#L0ng&Secret!Key9",
		MFAMethod:   MFAMethodDelivered, // ignored: policy pins authenticator
		Eligibility: true,
	}
	result, err := env.engine.Register(context.Background(), req)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if result.Enrollment == nil || result.Enrollment.Secret == "" {
		t.Fatal("expected enrollment material")
	}
	if !strings.HasPrefix(result.Enrollment.URI, "otpauth://totp/") {
		t.Fatalf("enrollment uri = %q", result.Enrollment.URI)
	}
	if len(result.RecoveryCodes) != env.engine.config.RecoveryCodes.Count {
		t.Fatalf("recovery codes = %d, want %d", len(result.RecoveryCodes), env.engine.config.RecoveryCodes.Count)
	}

	account, err := env.provider.GetAccountByID(context.Background(), result.AccountID)
	if err != nil {
		t.Fatalf("account lookup: %v", err)
	}
	if account.MFAMethod != MFAMethodAuthenticator {
		t.Fatalf("stored method = %v, want authenticator despite the delivered selection", account.MFAMethod)
	}
	if account.AuthenticatorSecret != result.Enrollment.Secret {
		t.Fatal("stored secret differs from enrollment payload")
	}

	stored, _ := env.provider.GetRecoveryCodes(context.Background(), result.AccountID)
	if len(stored) != len(result.RecoveryCodes) {
		t.Fatalf("stored %d code hashes, want %d", len(stored), len(result.RecoveryCodes))
	}
}

func TestRegisterDeliveredHasNoEnrollment(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.engine.Register(context.Background(), personnelRequest())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if result.Enrollment != nil || len(result.RecoveryCodes) != 0 {
		t.Fatal("delivered method must not produce enrollment material")
	}
}

func TestRegisterValidationErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*RegisterRequest)
		field  string
	}{
		{"empty name", func(r *RegisterRequest) { r.FullName = "  " }, "full_name"},
		{"bad identity", func(r *RegisterRequest) { r.Identity = "xyz999" }, "identity"},
		{"weak password", func(r *RegisterRequest) { r.Password = "password" }, "password"},
		{"no attestation", func(r *RegisterRequest) { r.Eligibility = false }, "eligibility"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := personnelRequest()
			tc.mutate(&req)
			_, err := env.engine.Register(ctx, req)
			var vErrs ValidationErrors
			if !errors.As(err, &vErrs) {
				t.Fatalf("err = %v, want ValidationErrors", err)
			}
			if _, ok := vErrs[tc.field]; !ok {
				t.Fatalf("expected error on field %q, got %v", tc.field, vErrs)
			}
		})
	}
}

func TestRegisterExactIdentityMessage(t *testing.T) {
	env := newTestEnv(t)

	req := personnelRequest()
	req.Identity = "xyz999"
	_, err := env.engine.Register(context.Background(), req)
	var vErrs ValidationErrors
	if !errors.As(err, &vErrs) {
		t.Fatalf("err = %v, want ValidationErrors", err)
	}
	want := "service number must be ARMY, NAVY or IAF followed by 6 digits"
	if vErrs["identity"] != want {
		t.Fatalf("message = %q, want %q", vErrs["identity"], want)
	}
}

func TestRegisterAnalystMandatoryDomain(t *testing.T) {
	env := newTestEnv(t)

	req := RegisterRequest{
		FullName:    "An Analyst",
		Contact:     "a@dgqa.gov.in",
		Role:        roles.RoleAnalyst,
		Identity:    "analyst@dgqa.gov.in",
		Email:       "analyst@gmail.com",
		Password:    "Str0ng!Passw0rd#X1",
		MFAMethod:   MFAMethodDelivered,
		Eligibility: true,
	}
	_, err := env.engine.Register(context.Background(), req)
	var vErrs ValidationErrors
	if !errors.As(err, &vErrs) {
		t.Fatalf("err = %v, want ValidationErrors", err)
	}
	if _, ok := vErrs["email"]; !ok {
		t.Fatalf("expected a hard email rejection, got %v", vErrs)
	}
}

func TestRegisterDuplicateAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.engine.Register(ctx, personnelRequest()); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := env.engine.Register(ctx, personnelRequest()); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("second register err = %v, want ErrAccountExists", err)
	}
}
