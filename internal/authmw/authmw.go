// Package authmw provides HTTP middleware for API token authentication.
package authmw

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// APIToken returns middleware that validates the request carries the
// expected token, either as "Authorization: Bearer <token>" or as an
// "X-API-Key" header. Comparison uses constant-time equality to prevent
// timing side-channel attacks. An empty expected token disables auth.
func APIToken(token string) func(http.Handler) http.Handler {
	expected := []byte(token)
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := bearerToken(r.Header.Get("Authorization")); got != "" {
				if subtle.ConstantTimeCompare([]byte(got), expected) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}

			if got := strings.TrimSpace(r.Header.Get("X-API-Key")); got != "" {
				if subtle.ConstantTimeCompare([]byte(got), expected) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}

			http.Error(w, `{"error":"missing or invalid credentials"}`, http.StatusUnauthorized)
		})
	}
}

func bearerToken(header string) string {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
