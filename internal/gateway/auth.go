package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// access is what a request's credentials allow on the operator API.
type access int

const (
	accessNone access = iota
	accessRead        // retrieval only: GET and HEAD
	accessFull
)

// accessFor resolves the credentials of r. The bearer token and basic
// credentials grant full access; the read token grants retrieval.
func (a AuthConfig) accessFor(r *http.Request) access {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		switch {
		case a.BearerToken != "" && constantTimeEqual(token, a.BearerToken):
			return accessFull
		case a.ReadToken != "" && constantTimeEqual(token, a.ReadToken):
			return accessRead
		}
		return accessNone
	}
	if a.BasicUser != "" && a.BasicPass != "" {
		user, pass, ok := r.BasicAuth()
		// Evaluate both comparisons so timing does not reveal which failed.
		userOK := constantTimeEqual(user, a.BasicUser)
		passOK := constantTimeEqual(pass, a.BasicPass)
		if ok && userOK && passOK {
			return accessFull
		}
	}
	return accessNone
}

// authMiddleware guards the operator API.
func authMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch cfg.accessFor(r) {
			case accessFull:
				next.ServeHTTP(w, r)
			case accessRead:
				if r.Method == http.MethodGet || r.Method == http.MethodHead {
					next.ServeHTTP(w, r)
					return
				}
				writeJSON(w, http.StatusForbidden, map[string]string{"error": "read-only token"})
			default:
				w.Header().Set("WWW-Authenticate", `Bearer realm="qaindex"`)
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			}
		})
	}
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
