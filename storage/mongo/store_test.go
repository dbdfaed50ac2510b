package mongo

import (
	"context"
	"crypto/sha256"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/roleauth"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
)

func TestRoleFilter(t *testing.T) {
	f := roleFilter("u1", roleauth.RoleUnassigned, roleauth.RoleMember)
	if f["_id"] != "u1" || f["role"] != nil {
		t.Fatalf("unexpected filter %v", f)
	}
	if _, ok := f["$nor"]; !ok {
		t.Fatal("expected organizer exclusion when target is MEMBER")
	}

	f = roleFilter("u1", roleauth.RoleMember, roleauth.RoleOrganizer)
	if f["role"] != "MEMBER" {
		t.Fatalf("expected MEMBER match, got %v", f["role"])
	}
	if _, ok := f["$nor"]; ok {
		t.Fatal("no exclusion needed when target is ORGANIZER")
	}
}

func TestClaimFilter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	f := claimFilter("r1", now)
	if f["consumed"] != false {
		t.Fatalf("expected consumed:false, got %v", f["consumed"])
	}
	gt, ok := f["expires_at"].(bson.M)
	if !ok || !gt["$gt"].(time.Time).Equal(now) || gt["$gt"].(time.Time).Location() != time.UTC {
		t.Fatalf("unexpected expiry filter %v", f["expires_at"])
	}
}

func TestToUserRecordRejectsUnknownRole(t *testing.T) {
	admin := "ADMIN"
	if _, err := toUserRecord(mongoUser{ID: "u1", Role: &admin}); !errors.Is(err, roleauth.ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
	rec, err := toUserRecord(mongoUser{ID: "u1"})
	if err != nil || rec.Role != roleauth.RoleUnassigned {
		t.Fatalf("expected unassigned, got %+v %v", rec, err)
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()

	uri := os.Getenv("ROLEAUTH_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("ROLEAUTH_TEST_MONGO_URI not set")
	}
	ctx := context.Background()
	client, db, err := Connect(ctx, Config{URI: uri, Database: "roleauth_test_" + uuid.NewString()[:8]})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Drop(ctx)
		_ = client.Disconnect(ctx)
	})

	store := NewStore(db)
	if err := store.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes: %v", err)
	}
	return store
}

func TestMongoRoleLifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	u, err := store.CreateUser(ctx, "A@example.com", "h")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := store.CreateUser(ctx, "a@example.com", "h"); !errors.Is(err, roleauth.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}

	if err := store.CompareAndSetRole(ctx, u.UserID, roleauth.RoleUnassigned, roleauth.RoleMember); err != nil {
		t.Fatalf("unassigned -> member: %v", err)
	}
	if err := store.CompareAndSetRole(ctx, u.UserID, roleauth.RoleUnassigned, roleauth.RoleOrganizer); !errors.Is(err, roleauth.ErrRoleConflict) {
		t.Fatalf("expected stale CAS conflict, got %v", err)
	}
	if err := store.CompareAndSetRole(ctx, u.UserID, roleauth.RoleMember, roleauth.RoleOrganizer); err != nil {
		t.Fatalf("member -> organizer: %v", err)
	}
	if err := store.CompareAndSetRole(ctx, u.UserID, roleauth.RoleOrganizer, roleauth.RoleMember); !errors.Is(err, roleauth.ErrRoleConflict) {
		t.Fatalf("expected downgrade refused, got %v", err)
	}

	got, err := store.GetUserByEmail(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if got.Role != roleauth.RoleOrganizer {
		t.Fatalf("expected ORGANIZER, got %v", got.Role)
	}
}

func TestMongoConsumeResetTokenExactlyOnce(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	commitment := sha256.Sum256([]byte("secret"))
	err := store.SaveResetToken(ctx, roleauth.ResetTokenRecord{
		ResetID:    "r1",
		UserID:     "u1",
		Commitment: commitment,
		ExpiresAt:  time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("SaveResetToken: %v", err)
	}

	const workers = 8
	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.ConsumeResetToken(ctx, "r1", commitment, time.Now())
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, roleauth.ErrResetTokenNotFound):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly one claim, got %d", wins.Load())
	}
}
