// Package auth guards the status server's run endpoints with a bearer token.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/amsteele/satellite-conjunction-risk/internal/httputil"
)

// publicPaths stay open so probes and scrapers need no credentials.
var publicPaths = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// Middleware enforces "Authorization: Bearer <token>" on every non-public
// path. An empty token disables the check.
func Middleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
