package defauth

import (
	"context"
	"errors"
	"testing"

	"github.com/sainik-portal/defauth/roles"
)

func TestLoginDeliveredIssuesChallenge(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, roles.RolePersonnel, "ARMY123456", "soldier@army.mil.in", "Str0ng!Passw0rd#1", MFAMethodDelivered)

	result, err := env.engine.Login(context.Background(), roles.RolePersonnel, "army 123456", "Str0ng!Passw0rd#1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !result.MFARequired {
		t.Fatal("expected MFA to be required")
	}
	if result.Method != MFAMethodDelivered {
		t.Fatalf("method = %v, want delivered", result.Method)
	}
	if result.ChallengeID == "" {
		t.Fatal("expected a challenge id")
	}
	if result.MaskedContact == "" || result.MaskedContact == "soldier@army.mil.in" {
		t.Fatalf("contact not masked: %q", result.MaskedContact)
	}
	if env.sender.count() != 1 {
		t.Fatalf("sent %d messages, want 1", env.sender.count())
	}
	if code := env.sender.lastOTP(t); len(code) != 6 {
		t.Fatalf("otp %q is not 6 digits", code)
	}
}

func TestLoginWrongPasswordIsUniform(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, roles.RolePersonnel, "ARMY123456", "soldier@army.mil.in", "Str0ng!Passw0rd#1", MFAMethodDelivered)

	_, wrongPass := env.engine.Login(context.Background(), roles.RolePersonnel, "ARMY123456", "Wrong!Passw0rd#9")
	_, notFound := env.engine.Login(context.Background(), roles.RolePersonnel, "ARMY999999", "Wrong!Passw0rd#9")

	if !errors.Is(wrongPass, ErrInvalidCredentials) {
		t.Fatalf("wrong password err = %v, want ErrInvalidCredentials", wrongPass)
	}
	if !errors.Is(notFound, ErrInvalidCredentials) {
		t.Fatalf("not-found err = %v, want ErrInvalidCredentials", notFound)
	}
	if notFound.Error() != wrongPass.Error() {
		t.Fatalf("responses differ: %q vs %q", notFound.Error(), wrongPass.Error())
	}
}

func TestLoginLockoutAfterThreeFailures(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, roles.RolePersonnel, "ARMY123456", "soldier@army.mil.in", "Str0ng!Passw0rd#1", MFAMethodDelivered)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := env.engine.Login(ctx, roles.RolePersonnel, "ARMY123456", "Wrong!Passw0rd#9")
		var credErr *CredentialError
		if !errors.As(err, &credErr) {
			t.Fatalf("attempt %d err = %v, want *CredentialError", i+1, err)
		}
		if credErr.RemainingAttempts != 2-i {
			t.Fatalf("attempt %d remaining = %d, want %d", i+1, credErr.RemainingAttempts, 2-i)
		}
	}

	_, err := env.engine.Login(ctx, roles.RolePersonnel, "ARMY123456", "Wrong!Passw0rd#9")
	var locked *LockedError
	if !errors.As(err, &locked) {
		t.Fatalf("third failure err = %v, want *LockedError", err)
	}
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatal("LockedError must match ErrAccountLocked")
	}

	// The fourth attempt is refused before the account or its hash is
	// consulted, even with the correct password.
	lookupsBefore := env.provider.lookups()
	_, err = env.engine.Login(ctx, roles.RolePersonnel, "ARMY123456", "Str0ng!Passw0rd#1")
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("locked login err = %v, want ErrAccountLocked", err)
	}
	if env.provider.lookups() != lookupsBefore {
		t.Fatal("locked attempt consulted the account store")
	}
}

func TestLoginNotFoundCountsTowardLockout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = env.engine.Login(ctx, roles.RolePersonnel, "ARMY777777", "Wrong!Passw0rd#9")
	}

	_, err := env.engine.Login(ctx, roles.RolePersonnel, "ARMY777777", "Wrong!Passw0rd#9")
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("err = %v, want ErrAccountLocked", err)
	}
}

func TestLoginIdentityValidation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.Login(context.Background(), roles.RolePersonnel, "xyz999", "Str0ng!Passw0rd#1")
	var vErrs ValidationErrors
	if !errors.As(err, &vErrs) {
		t.Fatalf("err = %v, want ValidationErrors", err)
	}
	want := "service number must be ARMY, NAVY or IAF followed by 6 digits"
	if vErrs["identity"] != want {
		t.Fatalf("identity message = %q, want %q", vErrs["identity"], want)
	}
}

func TestLoginUnknownRoleIsConfigurationError(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.Login(context.Background(), roles.Role("contractor"), "ARMY123456", "Str0ng!Passw0rd#1")
	if !errors.Is(err, ErrPolicyNotFound) {
		t.Fatalf("err = %v, want ErrPolicyNotFound", err)
	}
}

func TestLoginBlockedUntilActiveAndVerified(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inactive := env.seedAccount(t, roles.RolePersonnel, "ARMY111111", "a@army.mil.in", "Str0ng!Passw0rd#1", MFAMethodDelivered)
	inactive.Active = false
	env.provider.set(inactive)

	if _, err := env.engine.Login(ctx, roles.RolePersonnel, "ARMY111111", "Str0ng!Passw0rd#1"); !errors.Is(err, ErrAccountNotActive) {
		t.Fatalf("inactive err = %v, want ErrAccountNotActive", err)
	}

	unverified := env.seedAccount(t, roles.RolePersonnel, "ARMY222222", "b@army.mil.in", "Str0ng!Passw0rd#1", MFAMethodDelivered)
	unverified.EmailVerified = false
	env.provider.set(unverified)

	if _, err := env.engine.Login(ctx, roles.RolePersonnel, "ARMY222222", "Str0ng!Passw0rd#1"); !errors.Is(err, ErrEmailNotVerified) {
		t.Fatalf("unverified err = %v, want ErrEmailNotVerified", err)
	}
}

func TestLoginRoleIsPartOfLookupKey(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, roles.RoleDependent, "jane@example.com", "jane@example.com", "Str0ng!Passw0rd#1", MFAMethodDelivered)

	// The same identity string under a different role resolves to no
	// account and answers like a wrong password.
	_, err := env.engine.Login(context.Background(), roles.RoleAnalyst, "jane@example.com", "Str0ng!Passw0rd#1")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestResendOTPThrottledWithinCooldown(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, roles.RolePersonnel, "ARMY123456", "soldier@army.mil.in", "Str0ng!Passw0rd#1", MFAMethodDelivered)

	result, err := env.engine.Login(context.Background(), roles.RolePersonnel, "ARMY123456", "Str0ng!Passw0rd#1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	_, err = env.engine.ResendOTP(context.Background(), result.ChallengeID)
	if !errors.Is(err, ErrOTPResendThrottled) {
		t.Fatalf("immediate resend err = %v, want ErrOTPResendThrottled", err)
	}
}
