package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MrEthical07/roleauth"
	"github.com/MrEthical07/roleauth/middleware"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email,max=320"`
	Password string `json:"password" validate:"required,max=1024"`
	Next     string `json:"next" validate:"max=2048"`
}

type sessionResponse struct {
	UserID    string    `json:"userId"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expiresAt"`
	Redirect  string    `json:"redirect,omitempty"`
}

type roleRequest struct {
	Role string `json:"role" validate:"required,max=32"`
}

type resetRequest struct {
	Email string `json:"email" validate:"max=320"`
}

type redeemRequest struct {
	Token    string `json:"token" validate:"required,max=512"`
	Password string `json:"password" validate:"required,max=1024"`
}

// handleLogin signs in and applies a pending role intent cookie. An intent
// that fails verification is dropped silently.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	intent := ""
	if c, err := r.Cookie(s.cfg.Session.RoleIntentCookie); err == nil && c.Value != "" {
		if role, err := s.engine.VerifyRoleIntent(c.Value); err == nil {
			intent = role
		}
		s.clearIntentCookie(w)
	}

	session, err := s.engine.SignIn(r.Context(), req.Email, req.Password, intent)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	s.setSessionCookie(w, session)
	s.clientKey(w, r)
	writeJSON(w, http.StatusOK, sessionResponse{
		UserID:    session.Claims.UserID,
		Role:      session.Claims.Role.String(),
		ExpiresAt: session.Claims.ExpiresAt,
		Redirect:  middleware.SafeNextPath(req.Next, s.afterSignIn),
	})
}

// handleRoleIntent stores a pre-login role preference in a short-lived
// signed cookie. The role is validated here and again at sign-in.
func (s *Server) handleRoleIntent(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	token, err := s.engine.MintRoleIntent(req.Role)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.setIntentCookie(w, token)
	w.WriteHeader(http.StatusNoContent)
}

// handlePasswordResetRequest answers 202 for every address, known or not.
func (s *Server) handlePasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.engine.RequestPasswordReset(r.Context(), req.Email); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "ok"})
}

func (s *Server) handlePasswordResetRedeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.engine.RedeemPasswordReset(r.Context(), req.Token, req.Password); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSignOut clears the session cookie, then signals every tab sharing the
// browser's sync key, then sends the caller home.
func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	key, _ := existingClientKey(r)
	claims, _ := roleauth.SessionClaimsFromContext(r.Context())

	err := s.engine.SignOut(r.Context(), roleauth.SignOutRequest{
		ClientKey: key,
		UserID:    claims.UserID,
		Invalidate: func(context.Context) error {
			s.clearSessionCookie(w)
			return nil
		},
		Refresh: func(context.Context) error {
			w.Header().Set("Location", "/")
			return nil
		},
	})
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	if w.Header().Get("Location") == "" {
		w.Header().Set("Location", "/")
	}
	w.WriteHeader(http.StatusSeeOther)
}

func (s *Server) handleSetRole(w http.ResponseWriter, r *http.Request) {
	claims, ok := roleauth.SessionClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req roleRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.engine.SetRole(r.Context(), claims.UserID, req.Role)
	if err != nil {
		if errors.Is(err, roleauth.ErrUnauthorized) {
			s.clearSessionCookie(w)
		}
		s.writeEngineError(w, r, err)
		return
	}

	s.setSessionCookie(w, result.Session)
	writeJSON(w, http.StatusOK, map[string]any{
		"effectiveRole":     result.Effective.String(),
		"changed":           result.Changed,
		"downgradeRejected": result.DowngradeRejected,
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	claims, ok := roleauth.SessionClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		UserID:    claims.UserID,
		Role:      claims.Role.String(),
		ExpiresAt: claims.ExpiresAt,
	})
}
