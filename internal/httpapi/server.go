// Package httpapi is the roleauthd HTTP surface: JSON endpoints for sign-in,
// role selection, password reset and sign-out, the session re-check and
// websocket sync stream, and the health and metrics endpoints.
//
// Every request passes through middleware.RouteGuard first.
package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/MrEthical07/roleauth"
	"github.com/MrEthical07/roleauth/middleware"
	"github.com/MrEthical07/roleauth/sessionsync"
)

// ClientKeyCookie carries the per-browser sync channel key. Every tab of a
// browser shares it.
const ClientKeyCookie = "sync_key"

// Deps holds what the HTTP layer needs.
type Deps struct {
	Engine *roleauth.Engine
	// Hub is where websocket streams subscribe. It must be the hub the
	// engine's publisher delivers into.
	Hub    *sessionsync.Hub
	Logger zerolog.Logger
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// Ready backs /healthz. Nil means always healthy.
	Ready func(ctx context.Context) error
	// AfterSignIn is where the client is sent when the login form carries no next value.
	AfterSignIn string
}

// Server owns the router.
type Server struct {
	engine      *roleauth.Engine
	hub         *sessionsync.Hub
	logger      zerolog.Logger
	metrics     http.Handler
	ready       func(ctx context.Context) error
	validate    *validator.Validate
	cfg         roleauth.Config
	afterSignIn string
}

func New(d Deps) (*Server, error) {
	if d.Engine == nil {
		return nil, errors.New("httpapi: engine required")
	}
	if d.Hub == nil {
		return nil, errors.New("httpapi: sync hub required")
	}
	after := d.AfterSignIn
	if after == "" {
		after = "/app"
	}
	return &Server{
		engine:      d.Engine,
		hub:         d.Hub,
		logger:      d.Logger.With().Str("component", "httpapi").Logger(),
		metrics:     d.Metrics,
		ready:       d.Ready,
		validate:    validator.New(),
		cfg:         d.Engine.Config(),
		afterSignIn: after,
	}, nil
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.clientIPMiddleware)
	r.Use(s.bodySizeLimitMiddleware)
	r.Use(middleware.RouteGuard(s.engine))

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", s.handleLogin)
			r.Post("/role-intent", s.handleRoleIntent)
			r.Post("/password-reset", s.handlePasswordResetRequest)
			r.Post("/password-reset/redeem", s.handlePasswordResetRedeem)
			r.Post("/signout", s.handleSignOut)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSession(s.engine))

			r.Put("/account/role", s.handleSetRole)
			r.Get("/session", s.handleSession)
			r.Get("/session/events", s.handleSessionEvents)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.Warn().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
