package defauth

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	verificationKeyPrefix       = "defauth:verify"
	verificationRecordVersionV1 = 1
)

var (
	errVerificationNotFound         = errors.New("verification record not found")
	errVerificationSecretMismatch   = errors.New("verification secret mismatch")
	errVerificationRedisUnavailable = errors.New("verification redis unavailable")
	errVerificationResendThrottled  = errors.New("verification resend throttled")
)

// emailVerificationRecord holds the server side of an outstanding email
// verification token: the account it verifies and the sha256 of the token
// secret. The secret itself exists only in the emailed link.
type emailVerificationRecord struct {
	AccountID  string
	SecretHash [32]byte
	ExpiresAt  int64
}

type emailVerificationStore struct {
	redis redis.UniversalClient
}

func newEmailVerificationStore(redisClient redis.UniversalClient) *emailVerificationStore {
	return &emailVerificationStore{redis: redisClient}
}

func (s *emailVerificationStore) key(tokenID string) string {
	return verificationKeyPrefix + ":" + tokenID
}

func (s *emailVerificationStore) resendKey(accountID string) string {
	return verificationKeyPrefix + ":resend:" + accountID
}

func (s *emailVerificationStore) Save(
	ctx context.Context,
	tokenID string,
	record *emailVerificationRecord,
	ttl time.Duration,
) error {
	encoded, err := encodeEmailVerificationRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(tokenID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errVerificationRedisUnavailable, err)
	}

	return nil
}

// MarkIssued arms the per-account resend throttle. It returns
// errVerificationResendThrottled when a token was issued within interval.
func (s *emailVerificationStore) MarkIssued(
	ctx context.Context,
	accountID string,
	interval time.Duration,
) error {
	ok, err := s.redis.SetNX(ctx, s.resendKey(accountID), "1", interval).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", errVerificationRedisUnavailable, err)
	}
	if !ok {
		return errVerificationResendThrottled
	}
	return nil
}

// Consume atomically checks the secret hash and deletes the record, so a
// token verifies exactly once. Expired and mismatched tokens are
// indistinguishable to the caller.
func (s *emailVerificationStore) Consume(
	ctx context.Context,
	tokenID string,
	providedHash [32]byte,
) (*emailVerificationRecord, error) {
	const maxRetries = 4
	key := s.key(tokenID)

	for i := 0; i < maxRetries; i++ {
		var matched *emailVerificationRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeEmailVerificationRecord(data)
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
				return errVerificationNotFound
			}

			if subtle.ConstantTimeCompare(record.SecretHash[:], providedHash[:]) != 1 {
				return errVerificationSecretMismatch
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			if err != nil {
				return err
			}

			matched = record
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil),
				errors.Is(err, errVerificationNotFound),
				errors.Is(err, errVerificationSecretMismatch):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", errVerificationRedisUnavailable, err)
			}
		}

		return matched, nil
	}

	return nil, errVerificationNotFound
}

func encodeEmailVerificationRecord(record *emailVerificationRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(verificationRecordVersionV1)
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.AccountID) > 65535 {
		return nil, errors.New("verification record account id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.AccountID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.AccountID)
	buf.Write(record.SecretHash[:])

	return buf.Bytes(), nil
}

func decodeEmailVerificationRecord(data []byte) (*emailVerificationRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != verificationRecordVersionV1 {
		return nil, errors.New("invalid verification record version")
	}

	record := &emailVerificationRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var idLen uint16
	if err := binary.Read(reader, binary.BigEndian, &idLen); err != nil {
		return nil, err
	}
	accountID := make([]byte, idLen)
	if _, err := io.ReadFull(reader, accountID); err != nil {
		return nil, err
	}
	record.AccountID = string(accountID)

	if _, err := io.ReadFull(reader, record.SecretHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}
