package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/roleauth"
)

func (s *Server) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.cfg.Session.CookieSecure,
		SameSite: s.cfg.Session.CookieSameSite,
	}
}

func (s *Server) setSessionCookie(w http.ResponseWriter, session roleauth.Session) {
	maxAge := int(time.Until(session.Claims.ExpiresAt).Seconds())
	if maxAge <= 0 {
		maxAge = int(s.cfg.JWT.SessionTTL.Seconds())
	}
	http.SetCookie(w, s.cookie(s.cfg.Session.CookieName, session.Token, maxAge))
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, s.cookie(s.cfg.Session.CookieName, "", -1))
}

func (s *Server) setIntentCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, s.cookie(s.cfg.Session.RoleIntentCookie, token, int(s.cfg.Session.RoleIntentTTL.Seconds())))
}

func (s *Server) clearIntentCookie(w http.ResponseWriter) {
	http.SetCookie(w, s.cookie(s.cfg.Session.RoleIntentCookie, "", -1))
}

// clientKey returns the browser's sync key, issuing one when absent.
func (s *Server) clientKey(w http.ResponseWriter, r *http.Request) string {
	if key, ok := existingClientKey(r); ok {
		return key
	}
	key := uuid.NewString()
	// Not tied to a session; survives sign-out.
	http.SetCookie(w, s.cookie(ClientKeyCookie, key, int((365 * 24 * time.Hour).Seconds())))
	return key
}

func existingClientKey(r *http.Request) (string, bool) {
	c, err := r.Cookie(ClientKeyCookie)
	if err != nil {
		return "", false
	}
	if _, err := uuid.Parse(c.Value); err != nil {
		return "", false
	}
	return c.Value, true
}
