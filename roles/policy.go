package roles

import "regexp"

// Role identifies an account category with its own policy.
type Role string

const (
	// RolePersonnel is a serving member identified by a service number.
	RolePersonnel Role = "personnel"
	// RoleDependent is a family member identified by a personal email.
	RoleDependent Role = "dependent"
	// RoleVeteran is a retired member identified by a veteran id.
	RoleVeteran Role = "veteran"
	// RoleAnalyst is a read-only institutional user on an official email.
	RoleAnalyst Role = "analyst"
	// RoleAdmin is a high-privilege operator account.
	RoleAdmin Role = "admin"
)

// IdentityKind selects the normalization applied to a submitted identity.
type IdentityKind uint8

const (
	// IdentityServiceNumber trims, strips internal whitespace, and
	// uppercases (unless the policy disables uppercasing).
	IdentityServiceNumber IdentityKind = iota
	// IdentityEmail trims and lowercases.
	IdentityEmail
)

// MFAMethod is the second factor bound to an account at creation.
type MFAMethod uint8

const (
	// MFAMethodNone means the role's policy waives a second factor.
	MFAMethodNone MFAMethod = iota
	// MFAMethodAuthenticator is a code derived from a shared secret and
	// the current time window, computed without network delivery.
	MFAMethodAuthenticator
	// MFAMethodDelivered is a one-time code sent to the registered
	// contact at challenge time.
	MFAMethodDelivered
	// MFAMethodRecovery is a single-use recovery code. It is never a
	// policy-selectable method; it is only accepted as a fallback during
	// challenge verification for authenticator accounts.
	MFAMethodRecovery
)

// MFAEnforcement controls whether the caller may pick the second factor.
type MFAEnforcement uint8

const (
	// MFANone waives the second factor entirely.
	MFANone MFAEnforcement = iota
	// MFACallerChoice lets the registrant pick authenticator or delivered.
	MFACallerChoice
	// MFAFixedMethod pins the method from the policy; any other selection
	// is rejected before a code is even examined.
	MFAFixedMethod
)

// IdentityRule is the format and normalization rule for a role's identity.
type IdentityRule struct {
	Kind    IdentityKind
	Pattern *regexp.Regexp
	// Message is the user-facing wording returned verbatim on a format
	// failure. The policy owns the wording, not the state machines.
	Message string
	// NoUppercase disables uppercasing for service-number identities.
	NoUppercase bool
}

// EmailRule is a role's email requirement. Check order is fixed:
// required, then allow-list, then pattern.
type EmailRule struct {
	Required bool
	// AllowDomains, when non-empty, is an explicit domain allow-list;
	// a candidate outside it is rejected outright.
	AllowDomains []string
	// Pattern, when set, must match the whole address.
	Pattern *regexp.Regexp
	// Mandatory makes a pattern failure a hard rejection. When false the
	// failure is a soft mismatch: registration proceeds flagged for
	// manual review.
	Mandatory bool
	// Primary is the defence/official domain rule. An address matching
	// it takes the fully automated registration path; anything else is
	// routed to manual review.
	Primary *regexp.Regexp
}

// PasswordRule is a role's password policy. A baseline rule applies to
// every role regardless; the stricter of the two always governs.
type PasswordRule struct {
	MinLength     int
	RequireUpper  bool
	RequireDigit  bool
	RequireSymbol bool
	// MinStrengthScore is a zxcvbn score floor (0-4). Zero disables the
	// strength check for the role; the baseline still applies.
	MinStrengthScore int
}

// MFARule is a role's second-factor enforcement.
type MFARule struct {
	Enforcement MFAEnforcement
	// Method is the pinned method when Enforcement is MFAFixedMethod.
	Method MFAMethod
}

// Policy is the immutable rule set attached to a role. Built once at
// startup, looked up by role id, never mutated.
type Policy struct {
	Role  Role
	Title string

	Identity IdentityRule
	Email    EmailRule
	Password PasswordRule
	MFA      MFARule

	HighPrivilege bool
	ReadOnly      bool
}

// FixedMFAMethod reports the pinned method, if the policy pins one.
func (p Policy) FixedMFAMethod() (MFAMethod, bool) {
	if p.MFA.Enforcement == MFAFixedMethod {
		return p.MFA.Method, true
	}
	return MFAMethodNone, false
}

// AllowsMFAMethod reports whether a registrant or caller may use the
// given method under this policy.
func (p Policy) AllowsMFAMethod(method MFAMethod) bool {
	switch p.MFA.Enforcement {
	case MFANone:
		return method == MFAMethodNone
	case MFACallerChoice:
		return method == MFAMethodAuthenticator || method == MFAMethodDelivered
	case MFAFixedMethod:
		return method == p.MFA.Method
	default:
		return false
	}
}
