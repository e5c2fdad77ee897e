package defauth

import (
	"fmt"
	"time"

	"github.com/sainik-portal/defauth/password"
)

// SessionConfig controls the stateless session tokens issued after a
// completed MFA check.
type SessionConfig struct {
	TTL           time.Duration
	SigningMethod string // "hs256" or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	KeyID         string
	VerifyKeys    map[string][]byte
}

// LockoutConfig controls the per-(role, identity) failed-password counter.
type LockoutConfig struct {
	Threshold    int
	LockDuration time.Duration
	WindowTTL    time.Duration
}

// OTPConfig controls delivered one-time codes.
type OTPConfig struct {
	Digits         int
	TTL            time.Duration
	ResendCooldown time.Duration
	MaxAttempts    int
}

// TOTPConfig controls authenticator-app verification.
type TOTPConfig struct {
	Issuer string
	Digits int
	Period uint
	Skew   uint
}

// EmailVerificationConfig controls post-registration address verification.
type EmailVerificationConfig struct {
	TTL            time.Duration
	ResendInterval time.Duration
}

// RecoveryCodesConfig controls single-use fallback codes.
type RecoveryCodesConfig struct {
	Count int
}

// AuditConfig controls the asynchronous audit pipeline.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events when the buffer is full instead of
	// blocking the request path. Dropped events are counted.
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// Config is the full engine configuration. Zero values are filled from
// defaultConfig by the Builder; Validate rejects anything incoherent.
type Config struct {
	Session           SessionConfig
	Password          password.Config
	Lockout           LockoutConfig
	OTP               OTPConfig
	TOTP              TOTPConfig
	EmailVerification EmailVerificationConfig
	RecoveryCodes     RecoveryCodesConfig
	Audit             AuditConfig
	Metrics           MetricsConfig
}

// DefaultConfig returns the configuration the Builder starts from. Callers
// that only need to set key material can mutate a copy and pass it back via
// WithConfig.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			TTL:           7 * 24 * time.Hour,
			SigningMethod: "hs256",
		},
		Password: password.Config{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Lockout: LockoutConfig{
			Threshold:    3,
			LockDuration: 60 * time.Minute,
			WindowTTL:    60 * time.Minute,
		},
		OTP: OTPConfig{
			Digits:         6,
			TTL:            60 * time.Second,
			ResendCooldown: 30 * time.Second,
			MaxAttempts:    5,
		},
		TOTP: TOTPConfig{
			Issuer: "sainik-portal",
			Digits: 6,
			Period: 30,
			Skew:   1,
		},
		EmailVerification: EmailVerificationConfig{
			TTL:            15 * time.Minute,
			ResendInterval: 2 * time.Minute,
		},
		RecoveryCodes: RecoveryCodesConfig{Count: 8},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Session.PrivateKey = cloneBytes(cfg.Session.PrivateKey)
	out.Session.PublicKey = cloneBytes(cfg.Session.PublicKey)
	if cfg.Session.VerifyKeys != nil {
		out.Session.VerifyKeys = make(map[string][]byte, len(cfg.Session.VerifyKeys))
		for kid, key := range cfg.Session.VerifyKeys {
			out.Session.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	return out
}

// Validate checks cross-field coherence. It is called by the Builder after
// defaults are applied, so zero values it sees are caller mistakes.
func (c Config) Validate() error {
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}
	if len(c.Session.PrivateKey) == 0 {
		return fmt.Errorf("session signing key is required")
	}
	if c.Lockout.Threshold < 1 {
		return fmt.Errorf("lockout threshold must be at least 1")
	}
	if c.Lockout.LockDuration <= 0 {
		return fmt.Errorf("lockout duration must be positive")
	}
	if c.Lockout.WindowTTL <= 0 {
		return fmt.Errorf("lockout window must be positive")
	}
	if c.OTP.Digits < 6 || c.OTP.Digits > 10 {
		return fmt.Errorf("otp digits must be between 6 and 10")
	}
	if c.OTP.TTL <= 0 {
		return fmt.Errorf("otp TTL must be positive")
	}
	if c.OTP.ResendCooldown < 0 || c.OTP.ResendCooldown > c.OTP.TTL {
		return fmt.Errorf("otp resend cooldown must fit inside the otp TTL")
	}
	if c.OTP.MaxAttempts < 1 {
		return fmt.Errorf("otp max attempts must be at least 1")
	}
	if c.TOTP.Issuer == "" {
		return fmt.Errorf("totp issuer is required")
	}
	if c.TOTP.Period == 0 {
		return fmt.Errorf("totp period must be positive")
	}
	if c.EmailVerification.TTL <= 0 {
		return fmt.Errorf("email verification TTL must be positive")
	}
	if c.EmailVerification.ResendInterval <= 0 || c.EmailVerification.ResendInterval > c.EmailVerification.TTL {
		return fmt.Errorf("email verification resend interval must fit inside the TTL")
	}
	if c.RecoveryCodes.Count < 1 {
		return fmt.Errorf("recovery code count must be at least 1")
	}
	if c.Audit.Enabled && c.Audit.BufferSize < 1 {
		return fmt.Errorf("audit buffer size must be at least 1")
	}
	return nil
}
