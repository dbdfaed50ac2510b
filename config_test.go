package roleauth

import (
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "defaults with keys",
			mutate:    func(*Config) {},
			wantValid: true,
		},
		{
			name: "reset response floor negative",
			mutate: func(c *Config) {
				c.PasswordReset.ResponseFloor = -time.Millisecond
			},
			wantValid: false,
		},
		{
			name: "reset response floor too long",
			mutate: func(c *Config) {
				c.PasswordReset.ResponseFloor = 6 * time.Second
			},
			wantValid: false,
		},
		{
			name: "reset response floor disabled",
			mutate: func(c *Config) {
				c.PasswordReset.ResponseFloor = 0
			},
			wantValid: true,
		},
		{
			name: "reset mail workers zero",
			mutate: func(c *Config) {
				c.PasswordReset.MailWorkers = 0
			},
			wantValid: false,
		},
		{
			name: "reset mail queue zero",
			mutate: func(c *Config) {
				c.PasswordReset.MailQueueSize = 0
			},
			wantValid: false,
		},
		{
			name: "jwt leeway invalid",
			mutate: func(c *Config) {
				c.JWT.Leeway = 3 * time.Minute
			},
			wantValid: false,
		},
		{
			name: "jwt signing invalid",
			mutate: func(c *Config) {
				c.JWT.SigningMethod = "rs256"
			},
			wantValid: false,
		},
		{
			name: "hs256 short secret",
			mutate: func(c *Config) {
				c.JWT.SigningMethod = "hs256"
				c.JWT.PrivateKey = []byte("short")
			},
			wantValid: false,
		},
		{
			name: "hs256 valid",
			mutate: func(c *Config) {
				c.JWT.SigningMethod = "hs256"
				c.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
			},
			wantValid: true,
		},
		{
			name: "reset ttl over a day",
			mutate: func(c *Config) {
				c.PasswordReset.TokenTTL = 25 * time.Hour
			},
			wantValid: false,
		},
		{
			name: "reset link relative",
			mutate: func(c *Config) {
				c.PasswordReset.LinkBaseURL = "/reset-password"
			},
			wantValid: false,
		},
		{
			name: "production needs https link",
			mutate: func(c *Config) {
				c.Security.ProductionMode = true
			},
			wantValid: false,
		},
		{
			name: "production with https link",
			mutate: func(c *Config) {
				c.Security.ProductionMode = true
				c.PasswordReset.LinkBaseURL = "https://events.example/reset-password"
			},
			wantValid: true,
		},
		{
			name: "production insecure cookie",
			mutate: func(c *Config) {
				c.Security.ProductionMode = true
				c.PasswordReset.LinkBaseURL = "https://events.example/reset-password"
				c.Session.CookieSecure = false
			},
			wantValid: false,
		},
		{
			name: "throttle zero window",
			mutate: func(c *Config) {
				c.PasswordReset.EnableThrottle = true
				c.PasswordReset.ThrottleWindow = 0
			},
			wantValid: false,
		},
		{
			name: "password min below 8",
			mutate: func(c *Config) {
				c.Password.MinLength = 6
			},
			wantValid: false,
		},
		{
			name: "password max above 1024",
			mutate: func(c *Config) {
				c.Password.MaxLength = 2048
			},
			wantValid: false,
		},
		{
			name: "root protected",
			mutate: func(c *Config) {
				c.Routes.ProtectedPrefixes = []string{"/"}
			},
			wantValid: false,
		},
		{
			name: "login page protected",
			mutate: func(c *Config) {
				c.Routes.ProtectedPrefixes = []string{"/login"}
			},
			wantValid: false,
		},
		{
			name: "login path protocol relative",
			mutate: func(c *Config) {
				c.Routes.LoginPath = "//evil.example/login"
			},
			wantValid: false,
		},
		{
			name: "sync buffer zero",
			mutate: func(c *Config) {
				c.Sync.SubscriberBuffer = 0
			},
			wantValid: false,
		},
		{
			name: "audit enabled zero buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
		{
			name: "dependency timeout zero",
			mutate: func(c *Config) {
				c.Security.DependencyTimeout = 0
			},
			wantValid: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig(t)
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.wantValid && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestDefaultConfigNeedsKeys(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected default config without keys to fail")
	}
}

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.JWT.SessionTTL != 30*24*time.Hour {
		t.Fatalf("session TTL %v", cfg.JWT.SessionTTL)
	}
	if cfg.PasswordReset.TokenTTL != time.Hour {
		t.Fatalf("reset TTL %v", cfg.PasswordReset.TokenTTL)
	}
	if cfg.Security.DependencyTimeout != 5*time.Second {
		t.Fatalf("dependency timeout %v", cfg.Security.DependencyTimeout)
	}
	if cfg.Session.CookieName != "session" || cfg.Routes.LoginPath != "/login" || cfg.Routes.NextParam != "next" {
		t.Fatalf("unexpected session/routes defaults: %+v %+v", cfg.Session, cfg.Routes)
	}
}

func TestRoutesIsProtected(t *testing.T) {
	routes := RoutesConfig{ProtectedPrefixes: []string{"/app", "/api/account"}}

	tests := map[string]bool{
		"/app":                  true,
		"/app/":                 true,
		"/app/dashboard":        true,
		"/app/../contact":       false,
		"/apple":                false,
		"/contact":              false,
		"/":                     false,
		"":                      false,
		"/api/account/role":     true,
		"/api/accounts":         false,
		"app/dashboard":         true,
		"/x/../app/events/1/qr": true,
		"//app/dashboard":       true,
	}
	for p, want := range tests {
		if got := routes.IsProtected(p); got != want {
			t.Fatalf("IsProtected(%q) = %v, want %v", p, got, want)
		}
	}
}
