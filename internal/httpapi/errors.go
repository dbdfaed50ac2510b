package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrEthical07/roleauth"
)

// errorResponse is the envelope for every error body.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeEngineError maps engine sentinels to fixed messages. Anything else is
// logged and answered with a generic 500.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := resolveError(err)
	if status == http.StatusInternalServerError {
		s.logger.Error().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", requestID(r.Context())).
			Msg("unhandled error")
	}
	writeError(w, status, msg)
}

func resolveError(err error) (int, string) {
	switch {
	case errors.Is(err, roleauth.ErrInvalidRole):
		return http.StatusBadRequest, "invalid role"
	case errors.Is(err, roleauth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, roleauth.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, roleauth.ErrInvalidOrExpiredToken):
		return http.StatusBadRequest, "invalid or expired token"
	case errors.Is(err, roleauth.ErrPasswordPolicy):
		return http.StatusBadRequest, "password does not meet policy"
	case errors.Is(err, roleauth.ErrDependencyUnavailable), errors.Is(err, roleauth.ErrEngineNotReady):
		return http.StatusServiceUnavailable, "service unavailable"
	}
	return http.StatusInternalServerError, "internal server error"
}
