// Package auth provides bearer-token middleware for the MCP endpoint.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

// NewAuthMiddleware requires "Authorization: Bearer <token>" on every request.
// An empty token disables the check. The returned function satisfies
// mux.MiddlewareFunc.
func NewAuthMiddleware(token string) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !authorized(r.Header.Get("Authorization"), want) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="nobreak-mcp"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// authorized checks the header value. The prefix is case-sensitive and
// takes exactly one space.
func authorized(header string, want []byte) bool {
	provided, ok := strings.CutPrefix(header, bearerPrefix)
	if !ok || provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), want) == 1
}
