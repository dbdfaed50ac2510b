package jwt

import (
	"testing"
	"time"
)

func TestIntentRoundTrip(t *testing.T) {
	m, _ := newEdManager(t, nil)

	token, err := m.MintIntent("ORGANIZER", 10*time.Minute)
	if err != nil {
		t.Fatalf("MintIntent failed: %v", err)
	}
	intent, err := m.VerifyIntent(token)
	if err != nil {
		t.Fatalf("VerifyIntent failed: %v", err)
	}
	if intent != "ORGANIZER" {
		t.Fatalf("unexpected intent %q", intent)
	}
}

func TestIntentAndSessionTokensAreNotInterchangeable(t *testing.T) {
	m, _ := newEdManager(t, nil)

	intentToken, err := m.MintIntent("ORGANIZER", 10*time.Minute)
	if err != nil {
		t.Fatalf("MintIntent failed: %v", err)
	}
	if _, err := m.Verify(intentToken); err == nil {
		t.Fatal("intent token must not verify as a session")
	}

	sessionToken, _, err := m.Mint("u1", "MEMBER")
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
	if _, err := m.VerifyIntent(sessionToken); err == nil {
		t.Fatal("session token must not verify as an intent")
	}
}

func TestIntentExpires(t *testing.T) {
	now := time.Now()
	m, _ := newEdManager(t, func(c *Config) {
		c.Now = func() time.Time { return now }
	})

	token, err := m.MintIntent("MEMBER", time.Minute)
	if err != nil {
		t.Fatalf("MintIntent failed: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := m.VerifyIntent(token); err == nil {
		t.Fatal("expected expired intent to fail")
	}
}
