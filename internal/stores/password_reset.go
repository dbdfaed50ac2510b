package stores

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
	resetRecordVersionV1 = 1
	defaultMaxAttempts   = 5
)

var (
	ErrResetNotFound         = errors.New("reset record not found")
	ErrResetSecretMismatch   = errors.New("reset secret mismatch")
	ErrResetAttemptsExceeded = errors.New("reset attempts exceeded")
	ErrResetRedisUnavailable = errors.New("reset redis unavailable")
)

type PasswordResetRecord struct {
	UserID     string
	Commitment [32]byte
	ExpiresAt  time.Time
	Attempts   uint16
}

// PasswordResetStore keeps one record per reset id. Consume deletes the
// record, so a redeemed token has nothing left to match.
type PasswordResetStore struct {
	redis       redis.UniversalClient
	prefix      string
	maxAttempts int
}

func NewPasswordResetStore(redisClient redis.UniversalClient, prefix string) *PasswordResetStore {
	if prefix == "" {
		prefix = "rpr"
	}
	return &PasswordResetStore{
		redis:       redisClient,
		prefix:      prefix,
		maxAttempts: defaultMaxAttempts,
	}
}

func (s *PasswordResetStore) key(resetID string) string {
	return s.prefix + ":" + resetID
}

// Save writes record with a TTL matching its expiry.
func (s *PasswordResetStore) Save(ctx context.Context, resetID string, record *PasswordResetRecord, now time.Time) error {
	ttl := record.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return errors.New("reset record already expired")
	}

	encoded, err := encodePasswordResetRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(resetID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}

	return nil
}

// Consume claims the record if it is unexpired and its commitment matches.
// A mismatch counts an attempt; the record is dropped once attempts run out.
func (s *PasswordResetStore) Consume(
	ctx context.Context,
	resetID string,
	commitment [32]byte,
	now time.Time,
) (*PasswordResetRecord, error) {
	const maxRetries = 4
	key := s.key(resetID)

	for i := 0; i < maxRetries; i++ {
		var matched *PasswordResetRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodePasswordResetRecord(data)
			if err != nil {
				return err
			}

			if !now.Before(record.ExpiresAt) {
				if err := deleteInTx(ctx, tx, key); err != nil {
					return err
				}
				return ErrResetNotFound
			}

			if subtle.ConstantTimeCompare(record.Commitment[:], commitment[:]) != 1 {
				record.Attempts++
				if int(record.Attempts) >= s.maxAttempts {
					if err := deleteInTx(ctx, tx, key); err != nil {
						return err
					}
					return ErrResetAttemptsExceeded
				}

				updated, err := encodePasswordResetRecord(record)
				if err != nil {
					return err
				}

				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.SetArgs(ctx, key, updated, redis.SetArgs{KeepTTL: true})
					return nil
				})
				if err != nil {
					return err
				}
				return ErrResetSecretMismatch
			}

			if err := deleteInTx(ctx, tx, key); err != nil {
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
			case errors.Is(err, redis.Nil):
				return nil, ErrResetNotFound
			case errors.Is(err, ErrResetNotFound), errors.Is(err, ErrResetSecretMismatch), errors.Is(err, ErrResetAttemptsExceeded):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
			}
		}

		return matched, nil
	}

	// Every retry lost to a concurrent writer, which can only be another consume.
	return nil, ErrResetNotFound
}

func deleteInTx(ctx context.Context, tx *redis.Tx, key string) error {
	_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		return nil
	})
	return err
}

func encodePasswordResetRecord(record *PasswordResetRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(resetRecordVersionV1)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt.UnixNano()); err != nil {
		return nil, err
	}

	if len(record.UserID) > 65535 {
		return nil, errors.New("reset record user id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.UserID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.UserID)
	buf.Write(record.Commitment[:])

	return buf.Bytes(), nil
}

func decodePasswordResetRecord(data []byte) (*PasswordResetRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != resetRecordVersionV1 {
		return nil, errors.New("invalid reset record version")
	}

	record := &PasswordResetRecord{}

	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	var expiresAt int64
	if err := binary.Read(reader, binary.BigEndian, &expiresAt); err != nil {
		return nil, err
	}
	record.ExpiresAt = time.Unix(0, expiresAt)

	var userIDLen uint16
	if err := binary.Read(reader, binary.BigEndian, &userIDLen); err != nil {
		return nil, err
	}

	userID := make([]byte, userIDLen)
	if _, err := io.ReadFull(reader, userID); err != nil {
		return nil, err
	}
	record.UserID = string(userID)

	if _, err := io.ReadFull(reader, record.Commitment[:]); err != nil {
		return nil, err
	}

	return record, nil
}
