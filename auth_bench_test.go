package roleauth

import (
	"context"
	"testing"
)

func BenchmarkVerifySession(b *testing.B) {
	te := newTestEngine(b, testConfig(b))

	session, err := te.MintSession("u1", RoleOrganizer)
	if err != nil {
		b.Fatalf("MintSession: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := te.VerifySession(session.Token); err != nil {
			b.Fatalf("VerifySession: %v", err)
		}
	}
}

func BenchmarkVerifySessionParallel(b *testing.B) {
	te := newTestEngine(b, testConfig(b))

	session, err := te.MintSession("u1", RoleMember)
	if err != nil {
		b.Fatalf("MintSession: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := te.VerifySession(session.Token); err != nil {
				b.Errorf("VerifySession: %v", err)
				return
			}
		}
	})
}

func BenchmarkSetRoleUnchanged(b *testing.B) {
	te := newTestEngine(b, testConfig(b), UserRecord{UserID: "u1", Email: "a@example.com", Role: RoleOrganizer})
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := te.SetRole(ctx, "u1", "ORGANIZER"); err != nil {
			b.Fatalf("SetRole: %v", err)
		}
	}
}

func BenchmarkRouteIsProtected(b *testing.B) {
	routes := DefaultConfig().Routes

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = routes.IsProtected("/app/events/42/attendees")
	}
}
