package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

type SessionID [16]byte

const (
	verificationTokenRawSize = 48
	verificationSecretSize   = 32
)

func NewSessionID() (SessionID, error) {
	var sid SessionID
	_, err := rand.Read(sid[:])
	return sid, err
}

func (s SessionID) Bytes() []byte {
	return s[:]
}

func (s SessionID) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(s[:])
}

func ParseSessionID(sessionID string) (SessionID, error) {
	var sid SessionID

	raw, err := base64.RawURLEncoding.DecodeString(sessionID)
	if err != nil {
		return sid, err
	}
	if len(raw) != len(sid) {
		return sid, errors.New("invalid session id size")
	}

	copy(sid[:], raw)
	return sid, nil
}

// NewChallengeID returns an opaque id for an in-flight MFA challenge.
func NewChallengeID() (string, error) {
	id, err := NewSessionID()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func NewVerificationSecret() ([verificationSecretSize]byte, error) {
	var secret [verificationSecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

func HashVerificationSecret(secret [verificationSecretSize]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

func HashVerificationBytes(secret []byte) [32]byte {
	return sha256.Sum256(secret)
}

// EncodeVerificationToken packs the token id and secret into a single opaque
// string handed to the user. The stored record keeps only the secret's hash.
func EncodeVerificationToken(tokenID string, secret [verificationSecretSize]byte) (string, error) {
	tid, err := ParseSessionID(tokenID)
	if err != nil {
		return "", err
	}

	var raw [verificationTokenRawSize]byte
	copy(raw[:len(tid)], tid[:])
	copy(raw[len(tid):], secret[:])

	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

func DecodeVerificationToken(token string) (string, [verificationSecretSize]byte, error) {
	var secret [verificationSecretSize]byte

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", secret, err
	}
	if len(raw) != verificationTokenRawSize {
		return "", secret, errors.New("invalid verification token size")
	}

	var tid SessionID
	copy(tid[:], raw[:len(tid)])
	copy(secret[:], raw[len(tid):])

	return tid.String(), secret, nil
}

func NewOTP(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	otp := b.String()
	if len(otp) != digits {
		return "", fmt.Errorf("invalid otp generation length")
	}
	return otp, nil
}

// recoveryCodeAlphabet omits 0/O/1/I to keep codes transcribable.
const recoveryCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewRecoveryCode returns a code of the form XXXX-XXXX-XXXX.
func NewRecoveryCode() (string, error) {
	var b strings.Builder
	b.Grow(14)

	max := big.NewInt(int64(len(recoveryCodeAlphabet)))
	for i := 0; i < 12; i++ {
		if i > 0 && i%4 == 0 {
			b.WriteByte('-')
		}
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(recoveryCodeAlphabet[n.Int64()])
	}

	return b.String(), nil
}

// NormalizeRecoveryCode strips separators and whitespace and uppercases,
// so user input matches codes regardless of how they were transcribed.
func NormalizeRecoveryCode(code string) string {
	var b strings.Builder
	b.Grow(len(code))
	for _, r := range strings.ToUpper(code) {
		if r == '-' || r == ' ' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// HashRecoveryCode hashes a normalized recovery code for storage.
func HashRecoveryCode(code string) [32]byte {
	return sha256.Sum256([]byte(NormalizeRecoveryCode(code)))
}
