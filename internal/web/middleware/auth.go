package middleware

import (
	"crypto/subtle"
	"net/http"
)

// Authentication rejects requests whose X-API-Key header does not match key.
// Read-only requests pass when readOpen is set.
func Authentication(key string, readOpen bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if readOpen && (r.Method == http.MethodGet || r.Method == http.MethodHead) {
				next.ServeHTTP(w, r)
				return
			}
			given := r.Header.Get("X-API-Key")
			if given == "" || subtle.ConstantTimeCompare([]byte(given), []byte(key)) != 1 {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
