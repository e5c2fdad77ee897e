package roles

import (
	"errors"
	"strconv"
	"strings"
	"unicode"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

// Validation outcomes that are not tied to policy-owned wording.
var (
	// ErrEmailRequired indicates the policy requires an email and none
	// was supplied.
	ErrEmailRequired = errors.New("email address is required")
	// ErrEmailNotWhitelisted indicates the address's domain is outside
	// the policy's explicit allow-list.
	ErrEmailNotWhitelisted = errors.New("email domain is not permitted for this role")
	// ErrEmailFormatRejected indicates the address failed the policy's
	// mandatory domain pattern.
	ErrEmailFormatRejected = errors.New("email address does not match the required official domain")
)

// FieldError is a validation failure carrying the policy's own
// user-facing wording for a specific input field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// EmailVerdict is the outcome of a non-fatal email check.
type EmailVerdict uint8

const (
	// EmailOK means the address passed every applicable rule.
	EmailOK EmailVerdict = iota
	// EmailSoftMismatch means the address failed a merely preferred
	// domain pattern: accepted, but the registration is flagged for
	// manual review.
	EmailSoftMismatch
)

// EmailClass is the deterministic fork taken at registration submit.
type EmailClass uint8

const (
	// EmailPrimary routes to the fully automated verification path.
	EmailPrimary EmailClass = iota
	// EmailSecondary routes to manual review.
	EmailSecondary
)

// NormalizeIdentity canonicalizes a submitted identity for the policy.
// Email identities are trimmed and lowercased; service-number identities
// are trimmed, stripped of internal whitespace, and uppercased unless
// the policy disables uppercasing. Idempotent: normalizing an already
// normalized value returns it unchanged.
func NormalizeIdentity(raw string, p Policy) string {
	s := strings.TrimSpace(raw)
	if p.Identity.Kind == IdentityEmail {
		return strings.ToLower(s)
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	s = b.String()
	if p.Identity.NoUppercase {
		return s
	}
	return strings.ToUpper(s)
}

// ValidateIdentity matches a normalized identity against the policy's
// pattern. On failure the policy's own message is returned verbatim.
func ValidateIdentity(normalized string, p Policy) error {
	if p.Identity.Pattern.MatchString(normalized) {
		return nil
	}
	return &FieldError{Field: "identity", Message: p.Identity.Message}
}

// ValidateEmail applies the policy's email rule in fixed order:
// required, allow-list, pattern. A failed pattern is a hard error only
// when the policy marks the domain mandatory; otherwise the address is
// accepted with an [EmailSoftMismatch] verdict.
func ValidateEmail(candidate string, p Policy) (EmailVerdict, error) {
	email := strings.ToLower(strings.TrimSpace(candidate))

	if email == "" {
		if p.Email.Required {
			return EmailOK, ErrEmailRequired
		}
		return EmailOK, nil
	}

	if len(p.Email.AllowDomains) > 0 && !domainAllowed(email, p.Email.AllowDomains) {
		return EmailOK, ErrEmailNotWhitelisted
	}

	if p.Email.Pattern != nil && !p.Email.Pattern.MatchString(email) {
		if p.Email.Mandatory {
			return EmailOK, ErrEmailFormatRejected
		}
		return EmailSoftMismatch, nil
	}

	return EmailOK, nil
}

// ClassifyEmail decides the registration fork for an already-validated
// address: primary (defence/official domain, automated path) or
// secondary (manual review). Evaluated once, deterministically.
func ClassifyEmail(email string, p Policy) EmailClass {
	addr := strings.ToLower(strings.TrimSpace(email))
	if p.Email.Primary != nil && p.Email.Primary.MatchString(addr) {
		return EmailPrimary
	}
	return EmailSecondary
}

// baselinePassword applies to every role regardless of its own rule.
var baselinePassword = PasswordRule{
	MinLength:     12,
	RequireUpper:  true,
	RequireDigit:  true,
	RequireSymbol: true,
}

// ValidatePassword checks a candidate password against the baseline rule
// and the role's own rule; the stricter of the two always governs.
func ValidatePassword(password string, p Policy) error {
	rule := stricterPasswordRule(baselinePassword, p.Password)

	if len(password) < rule.MinLength {
		return &FieldError{Field: "password", Message: passwordLengthMessage(rule.MinLength)}
	}

	var hasUpper, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			hasSymbol = true
		}
	}
	if rule.RequireUpper && !hasUpper {
		return &FieldError{Field: "password", Message: "password must contain an uppercase letter"}
	}
	if rule.RequireDigit && !hasDigit {
		return &FieldError{Field: "password", Message: "password must contain a digit"}
	}
	if rule.RequireSymbol && !hasSymbol {
		return &FieldError{Field: "password", Message: "password must contain a symbol"}
	}

	if rule.MinStrengthScore > 0 {
		if zxcvbn.PasswordStrength(password, nil).Score < rule.MinStrengthScore {
			return &FieldError{Field: "password", Message: "password is too guessable; avoid common words and patterns"}
		}
	}

	return nil
}

func stricterPasswordRule(a, b PasswordRule) PasswordRule {
	out := a
	if b.MinLength > out.MinLength {
		out.MinLength = b.MinLength
	}
	out.RequireUpper = out.RequireUpper || b.RequireUpper
	out.RequireDigit = out.RequireDigit || b.RequireDigit
	out.RequireSymbol = out.RequireSymbol || b.RequireSymbol
	if b.MinStrengthScore > out.MinStrengthScore {
		out.MinStrengthScore = b.MinStrengthScore
	}
	return out
}

func passwordLengthMessage(min int) string {
	return "password must be at least " + strconv.Itoa(min) + " characters"
}

func domainAllowed(email string, domains []string) bool {
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return false
	}
	domain := email[at+1:]
	for _, d := range domains {
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}
