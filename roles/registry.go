package roles

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
)

// ErrPolicyNotFound indicates a role id with no registered policy. This
// is a deployment/configuration defect, never a user error: every role
// that can reach the engine must have a policy.
var ErrPolicyNotFound = errors.New("role policy not found")

// Registry is the read-only role-to-policy mapping. Constructed once at
// process start; safe for concurrent lookups afterwards.
type Registry struct {
	policies map[Role]Policy
}

// NewRegistry builds a Registry from the given policies. Duplicate role
// ids and structurally invalid policies are rejected at construction so
// a bad table never reaches the state machines.
func NewRegistry(policies []Policy) (*Registry, error) {
	if len(policies) == 0 {
		return nil, errors.New("no role policies supplied")
	}

	m := make(map[Role]Policy, len(policies))
	for _, p := range policies {
		if p.Role == "" {
			return nil, errors.New("policy with empty role id")
		}
		if _, exists := m[p.Role]; exists {
			return nil, fmt.Errorf("duplicate policy for role %q", p.Role)
		}
		if p.Identity.Pattern == nil {
			return nil, fmt.Errorf("role %q: identity pattern is required", p.Role)
		}
		if p.Identity.Message == "" {
			return nil, fmt.Errorf("role %q: identity validation message is required", p.Role)
		}
		if p.MFA.Enforcement == MFAFixedMethod &&
			p.MFA.Method != MFAMethodAuthenticator && p.MFA.Method != MFAMethodDelivered {
			return nil, fmt.Errorf("role %q: fixed MFA method must be authenticator or delivered", p.Role)
		}
		m[p.Role] = p
	}

	return &Registry{policies: m}, nil
}

// PolicyFor looks up the policy for a role id. Absence is a
// configuration error ([ErrPolicyNotFound]), not a user error.
func (r *Registry) PolicyFor(role Role) (Policy, error) {
	p, ok := r.policies[role]
	if !ok {
		return Policy{}, fmt.Errorf("%w: %q", ErrPolicyNotFound, role)
	}
	return p, nil
}

// Roles returns the registered role ids in stable order.
func (r *Registry) Roles() []Role {
	out := make([]Role, 0, len(r.policies))
	for role := range r.policies {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

var (
	serviceNumberPattern = regexp.MustCompile(`^(ARMY|NAVY|IAF)[0-9]{6}$`)
	veteranIDPattern     = regexp.MustCompile(`^VET[0-9]{7}$`)
	adminIDPattern       = regexp.MustCompile(`^ADM[0-9]{5}$`)
	emailPattern         = regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}$`)

	defenceMailPattern = regexp.MustCompile(`@([a-z0-9\-]+\.)*(army|navy|iaf)\.mil\.in$`)
	analystMailPattern = regexp.MustCompile(`@([a-z0-9\-]+\.)*(dgqa|drdo)\.gov\.in$`)
	adminMailPattern   = regexp.MustCompile(`@hq\.mil\.in$`)
)

// Default returns the built-in policy table for the portal's five roles.
// Deployments with additional roles append to this slice before calling
// [NewRegistry]; the state machines need no change.
func Default() *Registry {
	r, err := NewRegistry([]Policy{
		{
			Role:  RolePersonnel,
			Title: "Serving Personnel",
			Identity: IdentityRule{
				Kind:    IdentityServiceNumber,
				Pattern: serviceNumberPattern,
				Message: "service number must be ARMY, NAVY or IAF followed by 6 digits",
			},
			Email: EmailRule{
				Required: true,
				Pattern:  defenceMailPattern,
				// Non-defence addresses are accepted but land in manual
				// review instead of the automated verification path.
				Mandatory: false,
				Primary:   defenceMailPattern,
			},
			Password: PasswordRule{MinStrengthScore: 2},
			MFA:      MFARule{Enforcement: MFACallerChoice},
		},
		{
			Role:  RoleDependent,
			Title: "Dependent",
			Identity: IdentityRule{
				Kind:    IdentityEmail,
				Pattern: emailPattern,
				Message: "enter a valid email address",
			},
			Email:    EmailRule{},
			Password: PasswordRule{MinStrengthScore: 2},
			MFA:      MFARule{Enforcement: MFACallerChoice},
		},
		{
			Role:  RoleVeteran,
			Title: "Veteran",
			Identity: IdentityRule{
				Kind:    IdentityServiceNumber,
				Pattern: veteranIDPattern,
				Message: "veteran id must be VET followed by 7 digits",
			},
			Email: EmailRule{
				Required: true,
			},
			Password: PasswordRule{MinStrengthScore: 2},
			MFA:      MFARule{Enforcement: MFACallerChoice},
		},
		{
			Role:  RoleAnalyst,
			Title: "Defence Analyst",
			Identity: IdentityRule{
				Kind:    IdentityEmail,
				Pattern: emailPattern,
				Message: "enter a valid official email address",
			},
			Email: EmailRule{
				Required:     true,
				AllowDomains: []string{"dgqa.gov.in", "drdo.gov.in"},
				Pattern:      analystMailPattern,
				Mandatory:    true,
				Primary:      analystMailPattern,
			},
			Password: PasswordRule{MinLength: 14, MinStrengthScore: 3},
			MFA:      MFARule{Enforcement: MFAFixedMethod, Method: MFAMethodDelivered},
			ReadOnly: true,
		},
		{
			Role:  RoleAdmin,
			Title: "Administrator",
			Identity: IdentityRule{
				Kind:    IdentityServiceNumber,
				Pattern: adminIDPattern,
				Message: "admin id must be ADM followed by 5 digits",
			},
			Email: EmailRule{
				Required:     true,
				AllowDomains: []string{"hq.mil.in"},
				Pattern:      adminMailPattern,
				Mandatory:    true,
				Primary:      adminMailPattern,
			},
			Password:      PasswordRule{MinLength: 16, RequireUpper: true, RequireDigit: true, RequireSymbol: true, MinStrengthScore: 3},
			MFA:           MFARule{Enforcement: MFAFixedMethod, Method: MFAMethodAuthenticator},
			HighPrivilege: true,
		},
	})
	if err != nil {
		// The built-in table is covered by tests; a construction failure
		// here is a programming error.
		panic(err)
	}
	return r
}
