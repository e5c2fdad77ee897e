package defauth

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sainik-portal/defauth/roles"
)

const (
	challengeKeyPrefix     = "defauth:mfa"
	challengeRecordVersion = 1

	// challengeExpiryGrace keeps the Redis key alive past the logical
	// ExpiresAt, so a late code answers expired rather than not-found.
	// Eviction only reclaims challenges nobody asked about again.
	challengeExpiryGrace = 5 * time.Minute
)

var (
	errChallengeNotFound = errors.New("challenge not found")
	errChallengeExpired  = errors.New("challenge expired")
	errChallengeExceeded = errors.New("challenge attempts exceeded")
	errChallengeBackend  = errors.New("challenge backend unavailable")
)

// mfaChallenge is the short-lived second-factor state between Login and
// VerifyMFA. CodeHash is all zeros for the authenticator method; delivered
// challenges store sha256 of the one-time code, never the code itself.
type mfaChallenge struct {
	AccountID string
	Role      roles.Role
	Identity  string
	Method    MFAMethod
	Contact   string
	CodeHash  [32]byte
	IssuedAt  int64
	ExpiresAt int64
	Attempts  uint16
}

type challengeStore struct {
	redis redis.UniversalClient
}

func newChallengeStore(redisClient redis.UniversalClient) *challengeStore {
	return &challengeStore{redis: redisClient}
}

func (s *challengeStore) key(challengeID string) string {
	return challengeKeyPrefix + ":" + challengeID
}

func (s *challengeStore) liveKey(role roles.Role, identity string) string {
	return challengeKeyPrefix + ":live:" + string(role) + ":" + identity
}

// Save stores the challenge and repoints the per-(role, identity) live
// index at it, invalidating any previous outstanding challenge.
func (s *challengeStore) Save(
	ctx context.Context,
	challengeID string,
	record *mfaChallenge,
	ttl time.Duration,
) error {
	encoded, err := encodeMFAChallenge(record)
	if err != nil {
		return err
	}

	live := s.liveKey(record.Role, record.Identity)
	previous, err := s.redis.Get(ctx, live).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", errChallengeBackend, err)
	}

	pipe := s.redis.TxPipeline()
	if previous != "" && previous != challengeID {
		pipe.Del(ctx, s.key(previous))
	}
	pipe.Set(ctx, s.key(challengeID), encoded, ttl+challengeExpiryGrace)
	pipe.Set(ctx, live, challengeID, ttl+challengeExpiryGrace)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", errChallengeBackend, err)
	}
	return nil
}

// Get loads a challenge. Expired records are deleted and reported as
// expired regardless of what the caller intended to do with them.
func (s *challengeStore) Get(ctx context.Context, challengeID string) (*mfaChallenge, error) {
	data, err := s.redis.Get(ctx, s.key(challengeID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", errChallengeBackend, err)
	}

	record, err := decodeMFAChallenge(data)
	if err != nil {
		return nil, err
	}
	if time.Now().Unix() > record.ExpiresAt {
		_, _ = s.redis.Del(ctx, s.key(challengeID)).Result()
		return nil, errChallengeExpired
	}
	return record, nil
}

// Delete removes a consumed challenge and its live index entry.
func (s *challengeStore) Delete(ctx context.Context, challengeID string, record *mfaChallenge) error {
	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, s.key(challengeID))
	if record != nil {
		pipe.Del(ctx, s.liveKey(record.Role, record.Identity))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", errChallengeBackend, err)
	}
	return nil
}

// RecordFailure bumps the attempt counter under WATCH so concurrent wrong
// guesses cannot exceed maxAttempts. The challenge is deleted once the
// budget is spent.
func (s *challengeStore) RecordFailure(
	ctx context.Context,
	challengeID string,
	maxAttempts int,
) (bool, error) {
	const maxRetries = 4
	key := s.key(challengeID)

	for i := 0; i < maxRetries; i++ {
		var exceeded bool
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeMFAChallenge(data)
			if err != nil {
				return err
			}
			if time.Now().Unix() > record.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return errChallengeExpired
			}

			record.Attempts++
			if int(record.Attempts) >= maxAttempts {
				exceeded = true
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					pipe.Del(ctx, s.liveKey(record.Role, record.Identity))
					return nil
				})
				return err
			}

			ttl := time.Until(time.Unix(record.ExpiresAt, 0))
			if ttl <= 0 {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return errChallengeExpired
			}

			updated, err := encodeMFAChallenge(record)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl+challengeExpiryGrace)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return false, errChallengeNotFound
			}
			if errors.Is(err, errChallengeExpired) {
				return false, err
			}
			return false, fmt.Errorf("%w: %v", errChallengeBackend, err)
		}
		return exceeded, nil
	}

	return false, errChallengeNotFound
}

func writeLenPrefixed(buf *bytes.Buffer, s string) error {
	if len(s) > 65535 {
		return errors.New("challenge field length exceeded")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func readLenPrefixed(reader *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(reader, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func encodeMFAChallenge(record *mfaChallenge) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(challengeRecordVersion)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.IssuedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	buf.WriteByte(uint8(record.Method))
	buf.Write(record.CodeHash[:])

	for _, field := range []string{record.AccountID, string(record.Role), record.Identity, record.Contact} {
		if err := writeLenPrefixed(&buf, field); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func decodeMFAChallenge(data []byte) (*mfaChallenge, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != challengeRecordVersion {
		return nil, errors.New("invalid challenge record version")
	}

	record := &mfaChallenge{}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.IssuedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	method, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	record.Method = MFAMethod(method)

	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}

	if record.AccountID, err = readLenPrefixed(reader); err != nil {
		return nil, err
	}
	role, err := readLenPrefixed(reader)
	if err != nil {
		return nil, err
	}
	record.Role = roles.Role(role)
	if record.Identity, err = readLenPrefixed(reader); err != nil {
		return nil, err
	}
	if record.Contact, err = readLenPrefixed(reader); err != nil {
		return nil, err
	}

	return record, nil
}
