package defauth

import (
	"context"
	"time"

	"github.com/sainik-portal/defauth/roles"
)

// MFAMethod re-exports the roles enumeration so callers integrating only
// with the engine do not need a second import for the common case.
type MFAMethod = roles.MFAMethod

const (
	MFAMethodNone          = roles.MFAMethodNone
	MFAMethodAuthenticator = roles.MFAMethodAuthenticator
	MFAMethodDelivered     = roles.MFAMethodDelivered
	MFAMethodRecovery      = roles.MFAMethodRecovery
)

// AccountStatus is the post-registration review state of an account.
type AccountStatus uint8

const (
	// AccountVerifiedPath marks accounts created through the automated
	// path: primary-domain email, verification token issued.
	AccountVerifiedPath AccountStatus = iota
	// AccountPendingManualReview marks accounts awaiting operator
	// activation; no verification token was issued.
	AccountPendingManualReview
)

// AccountRecord is the full account document as stored by the caller's
// repository. The engine never holds a record across requests.
type AccountRecord struct {
	AccountID           string
	FullName            string
	Role                roles.Role
	Identity            string // normalized
	Email               string
	PasswordHash        string
	MFAMethod           MFAMethod
	AuthenticatorSecret string // base32, empty unless method is authenticator
	Status              AccountStatus
	Active              bool
	EmailVerified       bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// RecoveryCodeRecord stores the SHA-256 hash of a single recovery code.
// The plaintext is shown once at generation and never persisted.
type RecoveryCodeRecord struct {
	Hash [32]byte
}

// CreateAccountInput is the input for AccountProvider.CreateAccount.
type CreateAccountInput struct {
	AccountID           string
	FullName            string
	Role                roles.Role
	Identity            string
	Email               string
	PasswordHash        string
	MFAMethod           MFAMethod
	AuthenticatorSecret string
	Status              AccountStatus
	Active              bool
	EmailVerified       bool
}

// AccountProvider is the capability interface callers implement to bind the
// engine to their account repository. Lookups are keyed by (role, normalized
// identity): the same identity string under a different role resolves to a
// different account or to none. Implementations return ErrAccountNotFound
// for missing accounts and ErrAccountExists for duplicate creation, and must
// apply mutations atomically per account document.
type AccountProvider interface {
	GetAccount(ctx context.Context, role roles.Role, identity string) (AccountRecord, error)
	GetAccountByID(ctx context.Context, accountID string) (AccountRecord, error)
	CreateAccount(ctx context.Context, input CreateAccountInput) (AccountRecord, error)
	// MarkEmailVerified records a successful token consumption. Accounts
	// with status AccountVerifiedPath are waiting on exactly this step, so
	// implementations must also activate them; accounts in manual review
	// record the confirmation but stay inactive until an operator clears
	// them.
	MarkEmailVerified(ctx context.Context, accountID string) error
	GetRecoveryCodes(ctx context.Context, accountID string) ([]RecoveryCodeRecord, error)
	ReplaceRecoveryCodes(ctx context.Context, accountID string, codes []RecoveryCodeRecord) error
	ConsumeRecoveryCode(ctx context.Context, accountID string, codeHash [32]byte) (bool, error)
}

// MFAEnrollment is the one-time authenticator setup payload returned at
// registration: the displayable secret and the otpauth:// descriptor.
type MFAEnrollment struct {
	Secret string
	URI    string
}

// RegisterRequest carries every field the registration lifecycle consumes.
type RegisterRequest struct {
	FullName    string
	Contact     string
	Role        roles.Role
	Identity    string
	Email       string
	Password    string
	MFAMethod   MFAMethod
	Eligibility bool
}

// RegisterResult is returned on terminal registration success.
type RegisterResult struct {
	AccountID                 string
	Status                    AccountStatus
	RequiresEmailVerification bool
	VerificationExpiresIn     time.Duration

	// Enrollment and RecoveryCodes are set only for the authenticator
	// method and are shown to the user exactly once.
	Enrollment    *MFAEnrollment
	RecoveryCodes []string
}

// LoginResult is returned by Engine.Login when the password check passes.
// A session is never issued here; the caller must complete VerifyMFA.
type LoginResult struct {
	MFARequired   bool
	Method        MFAMethod
	ChallengeID   string
	MaskedContact string // set for the delivered method
	ExpiresIn     time.Duration

	// Session is set only when the account's policy waives the second
	// factor; MFARequired is false in that case.
	Session *SessionResult
}

// SessionResult is the terminal login outcome.
type SessionResult struct {
	AccountID string
	Role      roles.Role
	Token     string
	ExpiresAt time.Time
}

// VerificationIssued reports a freshly issued email verification token.
type VerificationIssued struct {
	ExpiresIn time.Duration
}
