package middleware

import (
	"net/http"
)

// SecurityHeadersMiddleware adds baseline security headers to the admin
// surface (/healthz, /metrics). The admin endpoint never serves the data
// the vtab module fetches, only operational state about the process.
func SecurityHeadersMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			next.ServeHTTP(w, r)
		})
	}
}
