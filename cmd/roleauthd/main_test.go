package main

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/MrEthical07/roleauth/internal/config"
)

func sqliteEnv(t *testing.T) *config.Env {
	t.Helper()
	env := &config.Env{}
	env.Store.Backend = config.BackendSQLite
	env.Store.SQLitePath = filepath.Join(t.TempDir(), "roleauth.db")
	return env
}

func TestOpenStoreSQLite(t *testing.T) {
	store, closeStore, err := openStore(context.Background(), sqliteEnv(t))
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	defer closeStore()

	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	user, err := store.CreateUser(context.Background(), "new@example.com", "hash")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.Role.Assigned() {
		t.Fatalf("new user must have no role, got %s", user.Role)
	}
}

func TestAddUser(t *testing.T) {
	env := sqliteEnv(t)

	if err := addUser(context.Background(), env, []string{"-email", "x@example.com"}); err == nil {
		t.Fatal("expected missing password to fail")
	}
	if err := addUser(context.Background(), env, []string{"-email", "x@example.com", "-password", "short"}); err == nil {
		t.Fatal("expected short password to fail")
	}
	if err := addUser(context.Background(), env, []string{"-email", "x@example.com", "-password", "long-enough-password"}); err != nil {
		t.Fatalf("addUser: %v", err)
	}

	store, closeStore, err := openStore(context.Background(), env)
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	defer closeStore()
	if _, err := store.GetUserByEmail(context.Background(), "x@example.com"); err != nil {
		t.Fatalf("expected created user, got %v", err)
	}
}

func TestPurgeLoopRunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	done := make(chan struct{})

	go func() {
		purgeLoop(ctx, func(context.Context, time.Time) (int64, error) {
			calls.Add(1)
			return 1, nil
		}, 5*time.Millisecond, zerolog.Nop())
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("purge loop did not stop after cancel")
	}
	if calls.Load() < 2 {
		t.Fatalf("expected repeated purges, got %d", calls.Load())
	}
}
