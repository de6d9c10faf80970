package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
)

const defaultCORSMaxAgeSeconds = 600

var (
	defaultCORSAllowedMethods = []string{
		http.MethodGet,
		http.MethodPost,
		http.MethodPatch,
		http.MethodDelete,
		http.MethodOptions,
	}
	defaultCORSAllowedHeaders = []string{
		"Accept",
		"Authorization",
		"Content-Type",
		"Idempotency-Key",
		RequestIDHeader,
		UserIDHeader,
		OrganizationIDHeader,
	}
	defaultCORSExposedHeaders = []string{
		RequestIDHeader,
		"Location",
		"Idempotent-Replayed",
	}
)

type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAgeSeconds  int
}

// CORS answers preflight requests from allowed origins and decorates their
// actual requests. Requests from other origins pass through untouched.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	allowedOrigins := normalizeStringList(cfg.AllowedOrigins)
	allowAnyOrigin := slices.Contains(allowedOrigins, "*")

	allowedMethods := normalizeStringList(cfg.AllowedMethods)
	if len(allowedMethods) == 0 {
		allowedMethods = defaultCORSAllowedMethods
	}
	allowedHeaders := normalizeStringList(cfg.AllowedHeaders)
	if len(allowedHeaders) == 0 {
		allowedHeaders = defaultCORSAllowedHeaders
	}
	maxAgeSeconds := cfg.MaxAgeSeconds
	if maxAgeSeconds <= 0 {
		maxAgeSeconds = defaultCORSMaxAgeSeconds
	}

	allowMethodsValue := strings.Join(allowedMethods, ", ")
	allowHeadersValue := strings.Join(allowedHeaders, ", ")
	exposeHeadersValue := strings.Join(defaultCORSExposedHeaders, ", ")
	maxAgeValue := strconv.Itoa(maxAgeSeconds)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			if origin == "" || (!allowAnyOrigin && !containsFold(allowedOrigins, origin)) {
				next.ServeHTTP(w, r)
				return
			}

			header := w.Header()
			header.Add("Vary", "Origin")
			if allowAnyOrigin {
				header.Set("Access-Control-Allow-Origin", "*")
			} else {
				header.Set("Access-Control-Allow-Origin", origin)
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				header.Add("Vary", "Access-Control-Request-Method")
				header.Add("Vary", "Access-Control-Request-Headers")
				header.Set("Access-Control-Allow-Methods", allowMethodsValue)
				header.Set("Access-Control-Allow-Headers", allowHeadersValue)
				header.Set("Access-Control-Max-Age", maxAgeValue)
				w.WriteHeader(http.StatusNoContent)
				return
			}

			header.Set("Access-Control-Expose-Headers", exposeHeadersValue)
			next.ServeHTTP(w, r)
		})
	}
}

func normalizeStringList(values []string) []string {
	result := make([]string, 0, len(values))
	for _, raw := range values {
		if value := strings.TrimSpace(raw); value != "" {
			result = append(result, value)
		}
	}
	return result
}

func containsFold(values []string, target string) bool {
	return slices.ContainsFunc(values, func(value string) bool {
		return strings.EqualFold(value, target)
	})
}
