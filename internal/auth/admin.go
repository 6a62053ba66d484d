package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

const (
	// AdminTokenHeader carries the admin token.
	AdminTokenHeader = "X-Admin-Token"
	// AdminTokenQuery is the query parameter fallback, for clients such as
	// browser websockets that cannot set headers.
	AdminTokenQuery = "adminToken"
)

// TokenFromRequest extracts the admin token, preferring the header.
func TokenFromRequest(r *http.Request) string {
	if token := r.Header.Get(AdminTokenHeader); token != "" {
		return token
	}
	return r.URL.Query().Get(AdminTokenQuery)
}

// ValidAdminToken compares the presented token with the configured one in
// constant time. An empty configured token never matches.
func ValidAdminToken(presented, configured string) bool {
	if configured == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(configured)) == 1
}

// AdminMiddleware rejects requests that do not present the admin token.
func AdminMiddleware(adminToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !ValidAdminToken(TokenFromRequest(r), adminToken) {
				log.Warn().Str("path", r.URL.Path).Str("remote_addr", r.RemoteAddr).Msg("Rejected admin request")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
