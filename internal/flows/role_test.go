package flows

import (
	"context"
	"errors"
	"sync"
	"testing"
)

const (
	roleNone      uint8 = 0
	roleMember    uint8 = 1
	roleOrganizer uint8 = 2
)

var errConflict = errors.New("conflict")

type memRoles struct {
	mu    sync.Mutex
	roles map[string]uint8
	cas   int
	// failFirstCAS simulates a concurrent writer moving the row first.
	failFirstCAS map[string]uint8
}

func (m *memRoles) get(_ context.Context, id string) (uint8, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[id]
	if !ok {
		return 0, errors.New("missing")
	}
	return r, nil
}

func (m *memRoles) compareAndSet(_ context.Context, id string, from, to uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cas++
	if r, ok := m.failFirstCAS[id]; ok {
		delete(m.failFirstCAS, id)
		m.roles[id] = r
		return errConflict
	}
	if m.roles[id] != from {
		return errConflict
	}
	if from == roleOrganizer && to == roleMember {
		return errConflict
	}
	m.roles[id] = to
	return nil
}

func testRoleDeps(store *memRoles) RoleDeps {
	return RoleDeps{
		Parse: func(s string) (uint8, error) {
			switch s {
			case "MEMBER":
				return roleMember, nil
			case "ORGANIZER":
				return roleOrganizer, nil
			}
			return 0, errors.New("bad")
		},
		Resolve: func(current, desired uint8) (uint8, bool) {
			if current == roleOrganizer {
				return roleOrganizer, false
			}
			return desired, desired != current
		},
		IsDowngrade:       func(c, d uint8) bool { return c == roleOrganizer && d == roleMember },
		GetRole:           store.get,
		CompareAndSetRole: store.compareAndSet,
		IsConflict:        func(err error) bool { return errors.Is(err, errConflict) },
	}
}

func TestRunSetRoleInvalidRoleSkipsStore(t *testing.T) {
	store := &memRoles{roles: map[string]uint8{"u1": roleMember}}
	deps := testRoleDeps(store)
	reads := 0
	deps.GetRole = func(ctx context.Context, id string) (uint8, error) {
		reads++
		return store.get(ctx, id)
	}
	invalid := errors.New("invalid role")
	deps.Errors.InvalidRole = invalid

	for _, desired := range []string{"", "ADMIN", "member", " ORGANIZER"} {
		if _, err := RunSetRole(context.Background(), "u1", desired, deps); !errors.Is(err, invalid) {
			t.Fatalf("desired %q: expected invalid role error, got %v", desired, err)
		}
	}
	if reads != 0 || store.cas != 0 {
		t.Fatalf("expected no store access, got reads=%d cas=%d", reads, store.cas)
	}
}

func TestRunSetRoleRejectsDowngradeWithoutError(t *testing.T) {
	store := &memRoles{roles: map[string]uint8{"u1": roleOrganizer}}
	res, err := RunSetRole(context.Background(), "u1", "MEMBER", testRoleDeps(store))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Effective != roleOrganizer || res.Changed || !res.DowngradeRejected {
		t.Fatalf("unexpected result %+v", res)
	}
	if store.cas != 0 {
		t.Fatal("expected no write for rejected downgrade")
	}
}

func TestRunSetRoleElevatesAndRetriesOnConflict(t *testing.T) {
	store := &memRoles{
		roles:        map[string]uint8{"u1": roleNone},
		failFirstCAS: map[string]uint8{"u1": roleMember},
	}
	retries := 0
	deps := testRoleDeps(store)
	deps.Metrics.RoleConflictRetry = 7
	deps.MetricInc = func(id int) {
		if id == 7 {
			retries++
		}
	}

	res, err := RunSetRole(context.Background(), "u1", "ORGANIZER", deps)
	if err != nil {
		t.Fatalf("RunSetRole failed: %v", err)
	}
	if res.Effective != roleOrganizer || !res.Changed || res.Previous != roleMember {
		t.Fatalf("unexpected result %+v", res)
	}
	if retries != 1 {
		t.Fatalf("expected one conflict retry, got %d", retries)
	}
}

func TestRunSetRoleConflictToOrganizerConvergesWithoutWrite(t *testing.T) {
	store := &memRoles{
		roles:        map[string]uint8{"u1": roleNone},
		failFirstCAS: map[string]uint8{"u1": roleOrganizer},
	}

	res, err := RunSetRole(context.Background(), "u1", "MEMBER", testRoleDeps(store))
	if err != nil {
		t.Fatalf("RunSetRole failed: %v", err)
	}
	if res.Effective != roleOrganizer || res.Changed {
		t.Fatalf("expected convergence on ORGANIZER, got %+v", res)
	}
}

func TestRunSetRoleExhaustedRetries(t *testing.T) {
	store := &memRoles{roles: map[string]uint8{"u1": roleMember}}
	deps := testRoleDeps(store)
	deps.CompareAndSetRole = func(context.Context, string, uint8, uint8) error { return errConflict }
	conflict := errors.New("role changed concurrently")
	deps.Errors.RoleConflict = conflict

	if _, err := RunSetRole(context.Background(), "u1", "ORGANIZER", deps); !errors.Is(err, conflict) {
		t.Fatalf("expected conflict after retries, got %v", err)
	}
}

func TestRunSetRoleConcurrentElevationConverges(t *testing.T) {
	store := &memRoles{roles: map[string]uint8{"u1": roleNone}}
	deps := testRoleDeps(store)

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		desired := "MEMBER"
		if i%2 == 0 {
			desired = "ORGANIZER"
		}
		wg.Add(1)
		go func(desired string) {
			defer wg.Done()
			res, err := RunSetRole(context.Background(), "u1", desired, deps)
			if err != nil {
				errs <- err
				return
			}
			if res.Effective == roleNone {
				errs <- errors.New("effective role unassigned")
			}
		}(desired)
	}
	wg.Wait()
	close(errs)

	// The role moves at most twice, so no caller can miss more than two CAS rounds.
	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, _ := store.get(context.Background(), "u1"); got != roleOrganizer {
		t.Fatalf("expected final role ORGANIZER, got %d", got)
	}
}
