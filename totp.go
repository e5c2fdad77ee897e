package defauth

import (
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// totpManager wraps authenticator-app provisioning and verification.
// Secrets are generated once at registration and handed to the caller's
// account store; the engine never persists them itself.
type totpManager struct {
	cfg TOTPConfig
}

func newTOTPManager(cfg TOTPConfig) *totpManager {
	return &totpManager{cfg: cfg}
}

func (m *totpManager) digits() otp.Digits {
	if m.cfg.Digits == 8 {
		return otp.DigitsEight
	}
	return otp.DigitsSix
}

// Provision generates a fresh secret and the otpauth:// descriptor shown
// to the user during enrollment.
func (m *totpManager) Provision(accountName string) (secret, uri string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.cfg.Issuer,
		AccountName: accountName,
		Period:      m.cfg.Period,
		Digits:      m.digits(),
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", err
	}
	return key.Secret(), key.URL(), nil
}

// Verify checks code against secret at t, accepting the configured number
// of adjacent periods of clock skew.
func (m *totpManager) Verify(secret, code string, t time.Time) bool {
	ok, err := totp.ValidateCustom(code, secret, t, totp.ValidateOpts{
		Period:    m.cfg.Period,
		Skew:      m.cfg.Skew,
		Digits:    m.digits(),
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}
