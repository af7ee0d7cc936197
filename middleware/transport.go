package middleware

import (
	"net/http"
	"strings"

	authkit "github.com/noteleaf/authkit"
)

// Transport reads and writes session credentials on HTTP messages. The access
// token travels as an Authorization bearer header or as a cookie (header
// wins); the refresh token as a cookie or an X-Refresh-Token header.
type Transport struct {
	cookies authkit.CookieConfig
}

func NewTransport(cookies authkit.CookieConfig) Transport {
	return Transport{cookies: cookies}
}

// ReadAccess returns the access credential, bearer header first.
func (t Transport) ReadAccess(r *http.Request) string {
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return token
	}
	if c, err := r.Cookie(t.cookies.AccessName); err == nil {
		return c.Value
	}
	return ""
}

// ReadRefresh returns the refresh credential, cookie first.
func (t Transport) ReadRefresh(r *http.Request) string {
	if c, err := r.Cookie(t.cookies.RefreshName); err == nil && c.Value != "" {
		return c.Value
	}
	return r.Header.Get("X-Refresh-Token")
}

// WriteCredentials sets both cookies from a freshly issued pair. Max-Age
// mirrors each token's TTL.
func (t Transport) WriteCredentials(w http.ResponseWriter, pair authkit.TokenPair) {
	http.SetCookie(w, t.cookie(t.cookies.AccessName, pair.AccessToken, pair.AccessTTL))
	http.SetCookie(w, t.cookie(t.cookies.RefreshName, pair.RefreshToken, pair.RefreshTTL))
}

// ClearCredentials expires both cookies. Used on logout.
func (t Transport) ClearCredentials(w http.ResponseWriter) {
	http.SetCookie(w, t.cookie(t.cookies.AccessName, "", -1))
	http.SetCookie(w, t.cookie(t.cookies.RefreshName, "", -1))
}

func (t Transport) cookie(name, value string, maxAge int) *http.Cookie {
	path := t.cookies.Path
	if path == "" {
		path = "/"
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   t.cookies.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   t.cookies.Secure,
		SameSite: t.cookies.SameSite,
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
