package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// requireToken validates bearer tokens. An empty token disables the check.
func requireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			presented, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				writeJSON(w, http.StatusUnauthorized, response{Status: "error", Message: "unauthorized"}, nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
