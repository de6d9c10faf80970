package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Auth requires "Authorization: Bearer <token>" on every route under
// protectedPrefix. An empty token disables the check.
func Auth(requiredToken, protectedPrefix string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if requiredToken == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, protectedPrefix) || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			const prefix = "Bearer "
			authorization := r.Header.Get("Authorization")
			if !strings.HasPrefix(authorization, prefix) {
				writeError(w, r, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}
			token := strings.TrimSpace(strings.TrimPrefix(authorization, prefix))
			if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(requiredToken)) != 1 {
				writeError(w, r, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
