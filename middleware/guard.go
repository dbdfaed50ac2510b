package middleware

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/MrEthical07/roleauth"
)

// RouteGuard runs before every page and API handler. A request for a
// protected path without a valid session is redirected to the login page
// with the original path and query in the next parameter. Every other
// request proceeds; when a valid session is present its claims are stored in
// the request context either way.
func RouteGuard(engine *roleauth.Engine) func(http.Handler) http.Handler {
	cfg := routeSettings(engine)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			resolved := roleauth.CleanPath(r.URL.Path)
			ctx := roleauth.WithResolvedPath(r.Context(), resolved)

			if claims, ok := verifyRequest(engine, r, cfg.cookieName); ok {
				next.ServeHTTP(w, r.WithContext(roleauth.WithSessionClaims(ctx, claims)))
				return
			}

			if cfg.routes.IsProtected(resolved) {
				http.Redirect(w, r, loginRedirect(cfg.routes, r.URL), http.StatusFound)
				return
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSession is the API variant: it answers 401 with a JSON body instead
// of redirecting.
func RequireSession(engine *roleauth.Engine) func(http.Handler) http.Handler {
	cfg := routeSettings(engine)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := roleauth.SessionClaimsFromContext(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}
			if engine == nil {
				writeUnauthorized(w)
				return
			}

			claims, ok := verifyRequest(engine, r, cfg.cookieName)
			if !ok {
				writeUnauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(roleauth.WithSessionClaims(r.Context(), claims)))
		})
	}
}

// SafeNextPath returns next when it is a same-site path, else fallback.
// Absolute URLs, protocol-relative values and backslash or control character
// tricks are refused, including percent-encoded ones. The result is always
// re-escaped, so a decoded value never reaches the browser.
func SafeNextPath(next, fallback string) string {
	next = strings.TrimSpace(next)
	if next == "" {
		return fallback
	}
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || hasRedirectHazard(next) {
		return fallback
	}
	parsed, err := url.Parse(next)
	if err != nil || parsed.Scheme != "" || parsed.Host != "" || parsed.Opaque != "" {
		return fallback
	}
	if strings.HasPrefix(parsed.Path, "//") || hasRedirectHazard(parsed.Path) {
		return fallback
	}

	cleaned := roleauth.CleanPath(parsed.Path)
	if strings.HasPrefix(cleaned, "//") {
		return fallback
	}
	out := (&url.URL{Path: cleaned}).EscapedPath()
	if parsed.RawQuery != "" {
		out += "?" + parsed.RawQuery
	}
	return out
}

// hasRedirectHazard reports backslashes and ASCII control characters, which
// browsers strip or fold into slashes when resolving a Location.
func hasRedirectHazard(s string) bool {
	for i := 0; i < len(s); i++ {
		if c := s[i]; c == '\\' || c < 0x20 || c == 0x7f {
			return true
		}
	}
	return false
}

// SessionToken extracts the session token from the cookie or, failing that,
// an Authorization: Bearer header.
func SessionToken(r *http.Request, cookieName string) (string, bool) {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value, true
	}
	return bearerToken(r.Header.Get("Authorization"))
}

type guardSettings struct {
	routes     roleauth.RoutesConfig
	cookieName string
}

func routeSettings(engine *roleauth.Engine) guardSettings {
	if engine == nil {
		return guardSettings{}
	}
	cfg := engine.Config()
	return guardSettings{routes: cfg.Routes, cookieName: cfg.Session.CookieName}
}

func verifyRequest(engine *roleauth.Engine, r *http.Request, cookieName string) (roleauth.SessionClaims, bool) {
	token, ok := SessionToken(r, cookieName)
	if !ok {
		return roleauth.SessionClaims{}, false
	}
	claims, err := engine.VerifySession(token)
	if err != nil {
		return roleauth.SessionClaims{}, false
	}
	return claims, true
}

func loginRedirect(routes roleauth.RoutesConfig, u *url.URL) string {
	original := u.EscapedPath()
	if original == "" {
		original = "/"
	}
	if u.RawQuery != "" {
		original += "?" + u.RawQuery
	}
	q := url.Values{}
	q.Set(routes.NextParam, original)
	return routes.LoginPath + "?" + q.Encode()
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
