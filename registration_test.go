package defauth

import (
	"errors"
	"testing"

	"github.com/sainik-portal/defauth/roles"
)

func startedRegistration(t *testing.T) *Registration {
	t.Helper()
	reg := NewRegistration(roles.Default())
	if err := reg.BeginIdentity("Jane Kaur", "+91 98100 00000"); err != nil {
		t.Fatalf("begin identity: %v", err)
	}
	return reg
}

func TestRegistrationStepOrder(t *testing.T) {
	reg := NewRegistration(roles.Default())

	if err := reg.SelectRole(roles.RolePersonnel); !errors.Is(err, errRegistrationOrder) {
		t.Fatalf("SelectRole before identity: %v", err)
	}
	if err := reg.ProvideServiceIdentity("ARMY123456", ""); !errors.Is(err, errRegistrationOrder) {
		t.Fatalf("ProvideServiceIdentity before identity: %v", err)
	}
	if err := reg.ChooseSecurity("xK9#mVt2!qLp8@Wz", MFAMethodDelivered, true); !errors.Is(err, errRegistrationOrder) {
		t.Fatalf("ChooseSecurity before identity: %v", err)
	}
	if _, err := reg.Outcome(); !errors.Is(err, errRegistrationOrder) {
		t.Fatalf("Outcome before submit: %v", err)
	}
}

func TestRegistrationBeginIdentityRequiredFields(t *testing.T) {
	reg := NewRegistration(roles.Default())

	err := reg.BeginIdentity("  ", "")
	var errs ValidationErrors
	if !errors.As(err, &errs) {
		t.Fatalf("err = %v, want ValidationErrors", err)
	}
	if _, ok := errs["full_name"]; !ok {
		t.Error("missing full_name error")
	}
	if _, ok := errs["contact"]; !ok {
		t.Error("missing contact error")
	}
	if reg.State() != RegStateIdentity {
		t.Fatalf("state advanced to %d on failed step", reg.State())
	}
}

func TestRegistrationReselectRoleRebindsIdentityRules(t *testing.T) {
	reg := startedRegistration(t)

	if err := reg.SelectRole(roles.RolePersonnel); err != nil {
		t.Fatalf("select personnel: %v", err)
	}
	if err := reg.SelectRole(roles.RoleVeteran); err != nil {
		t.Fatalf("select veteran: %v", err)
	}

	// A service number valid for personnel must not pass under the
	// veteran policy.
	err := reg.ProvideServiceIdentity("ARMY123456", "")
	var errs ValidationErrors
	if !errors.As(err, &errs) {
		t.Fatalf("err = %v, want ValidationErrors", err)
	}
	if _, ok := errs["identity"]; !ok {
		t.Fatal("missing identity error under reselected role")
	}

	if err := reg.ProvideServiceIdentity("vet 1234567", "vet@example.com"); err != nil {
		t.Fatalf("veteran identity: %v", err)
	}
	if reg.identity != "VET1234567" {
		t.Fatalf("identity = %q, want normalized VET1234567", reg.identity)
	}
}

func TestRegistrationUnknownRole(t *testing.T) {
	reg := startedRegistration(t)

	if err := reg.SelectRole(roles.Role("contractor")); !errors.Is(err, ErrPolicyNotFound) {
		t.Fatalf("err = %v, want ErrPolicyNotFound", err)
	}
}

func TestRegistrationFixedMethodOverridesSelection(t *testing.T) {
	reg := startedRegistration(t)

	if err := reg.SelectRole(roles.RoleAdmin); err != nil {
		t.Fatalf("select role: %v", err)
	}
	if err := reg.ProvideServiceIdentity("ADM12345", "chief@hq.mil.in"); err != nil {
		t.Fatalf("identity: %v", err)
	}
	if err := reg.ChooseSecurity("Extremely#L0ng&Secret!Key9", MFAMethodDelivered, true); err != nil {
		t.Fatalf("security: %v", err)
	}
	if reg.method != MFAMethodAuthenticator {
		t.Fatalf("method = %v, want authenticator despite delivered selection", reg.method)
	}
}

func TestRegistrationEligibilityAttestation(t *testing.T) {
	reg := startedRegistration(t)

	if err := reg.SelectRole(roles.RolePersonnel); err != nil {
		t.Fatalf("select role: %v", err)
	}
	if err := reg.ProvideServiceIdentity("ARMY123456", "jane@army.mil.in"); err != nil {
		t.Fatalf("identity: %v", err)
	}

	err := reg.ChooseSecurity("xK9#mVt2!qLp8@Wz", MFAMethodDelivered, false)
	var errs ValidationErrors
	if !errors.As(err, &errs) {
		t.Fatalf("err = %v, want ValidationErrors", err)
	}
	if _, ok := errs["eligibility"]; !ok {
		t.Fatal("missing eligibility error")
	}
}

func TestRegistrationOutcomeForks(t *testing.T) {
	cases := []struct {
		name     string
		role     roles.Role
		identity string
		email    string
		password string
		want     AccountStatus
	}{
		{
			name:     "personnel primary domain",
			role:     roles.RolePersonnel,
			identity: "ARMY123456",
			email:    "jane@army.mil.in",
			password: "xK9#mVt2!qLp8@Wz",
			want:     AccountVerifiedPath,
		},
		{
			name:     "personnel civilian domain",
			role:     roles.RolePersonnel,
			identity: "ARMY123456",
			email:    "jane@gmail.com",
			password: "xK9#mVt2!qLp8@Wz",
			want:     AccountPendingManualReview,
		},
		{
			name:     "analyst official identity",
			role:     roles.RoleAnalyst,
			identity: "analyst@dgqa.gov.in",
			email:    "analyst@dgqa.gov.in",
			password: "Qm7$vR2pXw!e9ZtL",
			want:     AccountVerifiedPath,
		},
		{
			name:     "dependent no official domain",
			role:     roles.RoleDependent,
			identity: "spouse@example.com",
			email:    "",
			password: "xK9#mVt2!qLp8@Wz",
			want:     AccountPendingManualReview,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reg := startedRegistration(t)
			if err := reg.SelectRole(tc.role); err != nil {
				t.Fatalf("select role: %v", err)
			}
			if err := reg.ProvideServiceIdentity(tc.identity, tc.email); err != nil {
				t.Fatalf("identity: %v", err)
			}
			if err := reg.ChooseSecurity(tc.password, MFAMethodDelivered, true); err != nil {
				t.Fatalf("security: %v", err)
			}
			status, err := reg.Outcome()
			if err != nil {
				t.Fatalf("outcome: %v", err)
			}
			if status != tc.want {
				t.Fatalf("status = %v, want %v", status, tc.want)
			}
		})
	}
}
