package roleauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/roleauth/internal/stores"
	"github.com/redis/go-redis/v9"
)

const resetKeyPrefix = "rpr"

// redisResetTokenStore is the ResetTokenStore used when the builder has a
// Redis client and no explicit reset store. Consume deletes the record
// rather than flagging it, which satisfies the same single-use contract.
type redisResetTokenStore struct {
	store *stores.PasswordResetStore
	now   func() time.Time
}

// NewRedisResetTokenStore returns a Redis-backed ResetTokenStore.
func NewRedisResetTokenStore(client redis.UniversalClient) ResetTokenStore {
	return &redisResetTokenStore{
		store: stores.NewPasswordResetStore(client, resetKeyPrefix),
		now:   time.Now,
	}
}

func (s *redisResetTokenStore) SaveResetToken(ctx context.Context, record ResetTokenRecord) error {
	err := s.store.Save(ctx, record.ResetID, &stores.PasswordResetRecord{
		UserID:     record.UserID,
		Commitment: record.Commitment,
		ExpiresAt:  record.ExpiresAt,
	}, s.now())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *redisResetTokenStore) ConsumeResetToken(ctx context.Context, resetID string, commitment [32]byte, now time.Time) (ResetTokenRecord, error) {
	record, err := s.store.Consume(ctx, resetID, commitment, now)
	if err != nil {
		switch {
		case errors.Is(err, stores.ErrResetNotFound),
			errors.Is(err, stores.ErrResetSecretMismatch),
			errors.Is(err, stores.ErrResetAttemptsExceeded):
			return ResetTokenRecord{}, ErrResetTokenNotFound
		default:
			return ResetTokenRecord{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	return ResetTokenRecord{
		ResetID:    resetID,
		UserID:     record.UserID,
		Commitment: record.Commitment,
		ExpiresAt:  record.ExpiresAt,
		Consumed:   true,
	}, nil
}
