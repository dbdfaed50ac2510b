package roleauth

import (
	"path"
	"strings"
)

// CleanPath normalises a request path: leading slash, no dot segments, no
// duplicate or trailing slashes.
func CleanPath(p string) string {
	if p == "" || p[0] != '/' {
		p = "/" + p
	}
	return path.Clean(p)
}

// IsProtected reports whether p equals or lies under any protected prefix.
// Matching is per path segment, so /app protects /app/x but not /apple.
func (r RoutesConfig) IsProtected(p string) bool {
	p = CleanPath(p)
	for _, prefix := range r.ProtectedPrefixes {
		prefix = CleanPath(prefix)
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	return false
}
