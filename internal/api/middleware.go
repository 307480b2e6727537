// Package api implements the patto REST API using chi.
package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// RequireBearer rejects requests whose credential does not match token.
// The credential comes from "Authorization: Bearer <token>", or from the
// access_token query parameter because browser EventSource and WebSocket
// clients cannot set headers.
func RequireBearer(token string) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				got = r.URL.Query().Get("access_token")
			}
			if got == "" || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="patto"`)
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
