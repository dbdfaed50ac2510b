package stores

import (
	"context"
	"crypto/sha256"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestResetStore(t *testing.T) (*PasswordResetStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewPasswordResetStore(rdb, ""), mr
}

func saveRecord(t *testing.T, s *PasswordResetStore, resetID string, commitment [32]byte, now time.Time) {
	t.Helper()
	rec := &PasswordResetRecord{
		UserID:     "user-1",
		Commitment: commitment,
		ExpiresAt:  now.Add(time.Hour),
	}
	if err := s.Save(context.Background(), resetID, rec, now); err != nil {
		t.Fatalf("save: %v", err)
	}
}

func TestConsumeIsSingleUse(t *testing.T) {
	s, _ := newTestResetStore(t)
	now := time.Now()
	commitment := sha256.Sum256([]byte("secret"))
	saveRecord(t, s, "r1", commitment, now)

	rec, err := s.Consume(context.Background(), "r1", commitment, now)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if rec.UserID != "user-1" {
		t.Fatalf("unexpected user %q", rec.UserID)
	}

	if _, err := s.Consume(context.Background(), "r1", commitment, now); !errors.Is(err, ErrResetNotFound) {
		t.Fatalf("expected ErrResetNotFound on replay, got %v", err)
	}
}

func TestConsumeRejectsExpired(t *testing.T) {
	s, _ := newTestResetStore(t)
	now := time.Now()
	commitment := sha256.Sum256([]byte("secret"))
	saveRecord(t, s, "r1", commitment, now)

	if _, err := s.Consume(context.Background(), "r1", commitment, now.Add(2*time.Hour)); !errors.Is(err, ErrResetNotFound) {
		t.Fatalf("expected expired record to be not found, got %v", err)
	}
}

func TestConsumeMismatchCountsAttempts(t *testing.T) {
	s, _ := newTestResetStore(t)
	now := time.Now()
	commitment := sha256.Sum256([]byte("secret"))
	wrong := sha256.Sum256([]byte("guess"))
	saveRecord(t, s, "r1", commitment, now)

	for i := 0; i < defaultMaxAttempts-1; i++ {
		if _, err := s.Consume(context.Background(), "r1", wrong, now); !errors.Is(err, ErrResetSecretMismatch) {
			t.Fatalf("attempt %d: expected mismatch, got %v", i, err)
		}
	}
	if _, err := s.Consume(context.Background(), "r1", wrong, now); !errors.Is(err, ErrResetAttemptsExceeded) {
		t.Fatalf("expected attempts exceeded, got %v", err)
	}
	if _, err := s.Consume(context.Background(), "r1", commitment, now); !errors.Is(err, ErrResetNotFound) {
		t.Fatalf("expected record to be dropped, got %v", err)
	}
}

func TestConsumeKeepsTTLAfterMismatch(t *testing.T) {
	s, mr := newTestResetStore(t)
	now := time.Now()
	commitment := sha256.Sum256([]byte("secret"))
	saveRecord(t, s, "r1", commitment, now)

	_, _ = s.Consume(context.Background(), "r1", sha256.Sum256([]byte("x")), now)
	if ttl := mr.TTL(s.key("r1")); ttl <= 0 {
		t.Fatalf("expected TTL to survive a mismatch, got %v", ttl)
	}
}

func TestConcurrentConsumeExactlyOne(t *testing.T) {
	s, _ := newTestResetStore(t)
	now := time.Now()
	commitment := sha256.Sum256([]byte("secret"))
	saveRecord(t, s, "r1", commitment, now)

	const workers = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		success  int
		failures []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Consume(context.Background(), "r1", commitment, now)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				success++
				return
			}
			failures = append(failures, err)
		}()
	}
	wg.Wait()

	if success != 1 {
		t.Fatalf("expected exactly one success, got %d", success)
	}
	for _, err := range failures {
		if !errors.Is(err, ErrResetNotFound) {
			t.Fatalf("expected losers to see ErrResetNotFound, got %v", err)
		}
	}
}

func TestConsumeRedisDownIsUnavailable(t *testing.T) {
	s, mr := newTestResetStore(t)
	mr.Close()

	if _, err := s.Consume(context.Background(), "r1", [32]byte{}, time.Now()); !errors.Is(err, ErrResetRedisUnavailable) {
		t.Fatalf("expected ErrResetRedisUnavailable, got %v", err)
	}
}

func TestRecordRoundTripPreservesExpiry(t *testing.T) {
	in := &PasswordResetRecord{
		UserID:     "0b3c6c5e-2f1a-4b8e-9b59-4f6f3f4a2d10",
		Commitment: sha256.Sum256([]byte("secret")),
		ExpiresAt:  time.Unix(1700000000, 123456789),
		Attempts:   3,
	}
	data, err := encodePasswordResetRecord(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := decodePasswordResetRecord(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.UserID != in.UserID || out.Commitment != in.Commitment || !out.ExpiresAt.Equal(in.ExpiresAt) || out.Attempts != in.Attempts {
		t.Fatalf("round trip mismatch: %+v vs %+v", out, in)
	}
}
