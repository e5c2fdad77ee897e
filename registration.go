package defauth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sainik-portal/defauth/roles"
)

// RegistrationState is the current step of a registration in progress.
type RegistrationState uint8

const (
	// RegStateIdentity collects name and a deliverable contact.
	RegStateIdentity RegistrationState = iota
	// RegStateService collects the role and the role-appropriate identity.
	RegStateService
	// RegStateSecurity collects the password, MFA selection, and
	// eligibility attestation.
	RegStateSecurity
	// RegStateSubmitted is terminal; the outcome fork has been decided.
	RegStateSubmitted
)

var errRegistrationOrder = errors.New("registration step out of order")

// Registration is the registration lifecycle state machine. Each transition
// is guarded by its own precondition checks and either advances the state
// or returns ValidationErrors; the struct never touches storage, so it is
// independently testable and the Engine drives persistence around it.
type Registration struct {
	registry *roles.Registry

	state    RegistrationState
	fullName string
	contact  string

	role   roles.Role
	policy roles.Policy

	identity     string
	email        string
	softMismatch bool

	password string
	method   MFAMethod
	attested bool
}

// NewRegistration starts a registration at the identity step.
func NewRegistration(registry *roles.Registry) *Registration {
	return &Registration{registry: registry, state: RegStateIdentity}
}

// State returns the current step.
func (r *Registration) State() RegistrationState {
	return r.state
}

// BeginIdentity records the registrant's name and deliverable contact.
// This step is format-agnostic: only non-empty checks apply.
func (r *Registration) BeginIdentity(fullName, contact string) error {
	if r.state != RegStateIdentity {
		return errRegistrationOrder
	}

	errs := ValidationErrors{}
	if strings.TrimSpace(fullName) == "" {
		errs["full_name"] = "name is required"
	}
	if strings.TrimSpace(contact) == "" {
		errs["contact"] = "a deliverable contact is required"
	}
	if len(errs) > 0 {
		return errs
	}

	r.fullName = strings.TrimSpace(fullName)
	r.contact = strings.TrimSpace(contact)
	r.state = RegStateService
	return nil
}

// SelectRole binds the registration to a role. Re-selecting discards any
// previously entered identity and clears its errors; a value valid for one
// role is never reinterpreted under another.
func (r *Registration) SelectRole(role roles.Role) error {
	if r.state != RegStateService {
		return errRegistrationOrder
	}

	policy, err := r.registry.PolicyFor(role)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrPolicyNotFound, role)
	}

	r.role = role
	r.policy = policy
	r.identity = ""
	r.email = ""
	r.softMismatch = false
	return nil
}

// ProvideServiceIdentity validates the role-appropriate identity and email
// against the selected role's policy and advances to the security step.
func (r *Registration) ProvideServiceIdentity(identity, email string) error {
	if r.state != RegStateService {
		return errRegistrationOrder
	}
	if r.role == "" {
		return ValidationErrors{"role": "select a role first"}
	}

	errs := ValidationErrors{}

	normalized := roles.NormalizeIdentity(identity, r.policy)
	if err := roles.ValidateIdentity(normalized, r.policy); err != nil {
		var fieldErr *roles.FieldError
		if errors.As(err, &fieldErr) {
			errs[fieldErr.Field] = fieldErr.Message
		} else {
			errs["identity"] = err.Error()
		}
	}

	verdict, err := roles.ValidateEmail(email, r.policy)
	if err != nil {
		errs["email"] = err.Error()
	}

	if len(errs) > 0 {
		return errs
	}

	r.identity = normalized
	r.email = strings.ToLower(strings.TrimSpace(email))
	r.softMismatch = verdict == roles.EmailSoftMismatch
	r.state = RegStateSecurity
	return nil
}

// ChooseSecurity validates the password, resolves the MFA method under the
// policy's enforcement rule, and requires the eligibility attestation.
// Fixed-method policies ignore the caller's selection entirely.
func (r *Registration) ChooseSecurity(password string, method MFAMethod, attested bool) error {
	if r.state != RegStateSecurity {
		return errRegistrationOrder
	}

	errs := ValidationErrors{}

	if err := roles.ValidatePassword(password, r.policy); err != nil {
		var fieldErr *roles.FieldError
		if errors.As(err, &fieldErr) {
			errs[fieldErr.Field] = fieldErr.Message
		} else {
			errs["password"] = err.Error()
		}
	}

	resolved := method
	if fixed, ok := r.policy.FixedMFAMethod(); ok {
		resolved = fixed
	} else if r.policy.MFA.Enforcement == roles.MFANone {
		resolved = MFAMethodNone
	} else if !r.policy.AllowsMFAMethod(method) {
		errs["mfa_method"] = "choose authenticator or delivered verification"
	}

	if !attested {
		errs["eligibility"] = "the eligibility attestation must be accepted"
	}

	if len(errs) > 0 {
		return errs
	}

	r.password = password
	r.method = resolved
	r.attested = true
	r.state = RegStateSubmitted
	return nil
}

// Outcome decides the terminal fork. An email matching the policy's
// primary domain takes the automated verification path; anything else,
// including a soft domain mismatch, is routed to manual review. Evaluated
// deterministically from the already-validated address.
func (r *Registration) Outcome() (AccountStatus, error) {
	if r.state != RegStateSubmitted {
		return AccountPendingManualReview, errRegistrationOrder
	}

	if r.softMismatch {
		return AccountPendingManualReview, nil
	}
	if roles.ClassifyEmail(r.classificationAddress(), r.policy) == roles.EmailPrimary {
		return AccountVerifiedPath, nil
	}
	return AccountPendingManualReview, nil
}

// classificationAddress is the address the outcome fork inspects: the
// registered email, or the identity itself for email-identified roles.
func (r *Registration) classificationAddress() string {
	if r.email != "" {
		return r.email
	}
	if r.policy.Identity.Kind == roles.IdentityEmail {
		return r.identity
	}
	return ""
}
