package server

import (
	"net/http"
	"strings"
)

// tokenCookieName carries the access token for browser clients.
const tokenCookieName = "token"

// tokenFromRequest reads the access token from the token cookie, using its
// first space separated field, or from a Bearer Authorization header.
func tokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(tokenCookieName); err == nil {
		if fields := strings.Fields(c.Value); len(fields) > 0 {
			return fields[0]
		}
	}
	scheme, tok, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(tok)
	}
	return ""
}

func (s *Server) tokenCookie(r *http.Request, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     tokenCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.config.GetCookieSecure() || getScheme(r) == "https",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	}
}

func (s *Server) clearTokenCookie(r *http.Request) *http.Cookie {
	return s.tokenCookie(r, "", -1)
}
