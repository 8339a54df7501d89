package auth

import (
	"net/http"
	"strings"
)

const CookieName = "access_token"

// ExtractAccessToken reads the token from the access_token cookie, falling
// back to a Bearer Authorization header. Browsers cannot set headers on a
// websocket handshake, so stream clients may also pass ?token=.
func ExtractAccessToken(r *http.Request) string {
	if cookie, err := r.Cookie(CookieName); err == nil {
		if cookie.Value != "" {
			return cookie.Value
		}
	}

	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	if strings.HasPrefix(r.URL.Path, "/ws/") {
		return r.URL.Query().Get("token")
	}

	return ""
}
