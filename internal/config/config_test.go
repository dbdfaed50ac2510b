package config

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	env, err := LoadFrom(context.Background(), map[string]string{})
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if env.Addr != ":8080" || env.Store.Backend != BackendSQLite || env.Store.SQLitePath != "roleauth.db" {
		t.Fatalf("unexpected defaults %+v", env)
	}
	if env.JWT.SessionTTL != 30*24*time.Hour || env.Reset.TokenTTL != time.Hour {
		t.Fatalf("unexpected ttl defaults: %v %v", env.JWT.SessionTTL, env.Reset.TokenTTL)
	}
	if len(env.ProtectedPrefixes) != 1 || env.ProtectedPrefixes[0] != "/app" {
		t.Fatalf("unexpected prefixes %v", env.ProtectedPrefixes)
	}
	if env.Production() {
		t.Fatal("default env should not be production")
	}
	if !env.Ephemeral() {
		t.Fatal("no key configured should be ephemeral")
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	if _, err := LoadFrom(context.Background(), map[string]string{"STORE_BACKEND": "postgres"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestEngineConfigDevelopmentGeneratesKey(t *testing.T) {
	env, err := LoadFrom(context.Background(), map[string]string{"PROTECTED_PREFIXES": "/app,/admin"})
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	cfg, err := env.EngineConfig()
	if err != nil {
		t.Fatalf("EngineConfig: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(cfg.JWT.PrivateKey) != ed25519.PrivateKeySize || len(cfg.JWT.PublicKey) != ed25519.PublicKeySize {
		t.Fatal("expected generated ed25519 key pair")
	}
	if !cfg.Routes.IsProtected("/admin/users") || cfg.Routes.IsProtected("/contact") {
		t.Fatalf("unexpected route set %v", cfg.Routes.ProtectedPrefixes)
	}
}

func TestEngineConfigProductionRequiresKey(t *testing.T) {
	env, err := LoadFrom(context.Background(), map[string]string{"ENV": "production"})
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if _, err := env.EngineConfig(); !errors.Is(err, ErrMissingSigningKey) {
		t.Fatalf("expected ErrMissingSigningKey, got %v", err)
	}
}

func TestEngineConfigProductionWithSeed(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	env, err := LoadFrom(context.Background(), map[string]string{
		"ENV":                  "production",
		"JWT_ED25519_SEED":     base64.StdEncoding.EncodeToString(seed),
		"RESET_LINK_BASE_URL":  "https://events.example/reset-password",
		"COOKIE_SAMESITE":      "strict",
		"RESET_RESPONSE_FLOOR": "400ms",
	})
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	cfg, err := env.EngineConfig()
	if err != nil {
		t.Fatalf("EngineConfig: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	want := ed25519.NewKeyFromSeed(seed)
	if string(cfg.JWT.PrivateKey) != string(want) {
		t.Fatal("private key not derived from seed")
	}
	if !cfg.Security.ProductionMode || cfg.Session.CookieSameSite != http.SameSiteStrictMode {
		t.Fatalf("unexpected security settings %+v %+v", cfg.Security, cfg.Session)
	}
	if cfg.PasswordReset.ResponseFloor != 400*time.Millisecond || cfg.PasswordReset.MailWorkers != 2 {
		t.Fatalf("unexpected reset settings %+v", cfg.PasswordReset)
	}
	if env.Ephemeral() {
		t.Fatal("seeded key reported ephemeral")
	}
}

func TestEngineConfigRejectsBadSeed(t *testing.T) {
	env, err := LoadFrom(context.Background(), map[string]string{"JWT_ED25519_SEED": "c2hvcnQ="})
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if _, err := env.EngineConfig(); err == nil {
		t.Fatal("expected error for short seed")
	}
}

func TestEngineConfigHS256(t *testing.T) {
	env, err := LoadFrom(context.Background(), map[string]string{
		"JWT_SIGNING_METHOD": "hs256",
		"JWT_HS256_SECRET":   "0123456789abcdef0123456789abcdef",
	})
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	cfg, err := env.EngineConfig()
	if err != nil {
		t.Fatalf("EngineConfig: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.JWT.SigningMethod != "hs256" || string(cfg.JWT.PrivateKey) != "0123456789abcdef0123456789abcdef" {
		t.Fatalf("unexpected jwt config %+v", cfg.JWT)
	}
}

func TestMailerConfig(t *testing.T) {
	env, err := LoadFrom(context.Background(), map[string]string{})
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if _, ok := env.MailerConfig(); ok {
		t.Fatal("expected no SMTP without host")
	}

	env, err = LoadFrom(context.Background(), map[string]string{"SMTP_HOST": "smtp.example", "SMTP_FROM": "no-reply@example"})
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	sc, ok := env.MailerConfig()
	if !ok || sc.Host != "smtp.example" || sc.Port != 587 || !sc.RequireTLS {
		t.Fatalf("unexpected SMTP config %+v", sc)
	}
}
