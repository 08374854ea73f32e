/**
 * @description
 * Custom middleware for the HTTP router. The batch trigger endpoints are
 * invoked by an external scheduler, not by end users, so they authenticate
 * with a shared-secret bearer credential rather than user sessions.
 *
 * @dependencies
 * - crypto/subtle, net/http, strings: Standard Go libraries.
 */

package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// CronAuthMiddleware rejects requests whose Authorization header does not
// carry the shared trigger secret. The comparison is constant-time.
func CronAuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || secret == "" {
				respondError(w, http.StatusUnauthorized, "missing or malformed bearer credential")
				return
			}
			if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				respondError(w, http.StatusUnauthorized, "invalid trigger credential")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
