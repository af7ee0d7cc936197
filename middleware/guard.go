package middleware

import (
	"context"
	"net"
	"net/http"

	authkit "github.com/noteleaf/authkit"
)

type authResultContextKey struct{}

func AuthResultFromContext(ctx context.Context) (*authkit.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*authkit.AuthResult)
	return res, ok
}

// Guard authenticates requests and renews sessions transparently:
//
//  1. a valid access credential passes through with no store I/O;
//  2. an invalid or absent access credential falls back to the refresh
//     cookie, and a successful rotation rewrites both cookies before the
//     handler runs;
//  3. anything else is a plain 401, and a failed rotation never writes
//     cookies, so a client holding a replayed token gets nothing back.
//
// The handler finds the verified identity via [AuthResultFromContext].
func Guard(engine *authkit.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				unauthorized(w)
				return
			}
			transport := NewTransport(engine.CookieConfig())

			if access := transport.ReadAccess(r); access != "" {
				if res, err := engine.Validate(r.Context(), access); err == nil {
					serve(next, w, r, res)
					return
				}
			}

			refresh := transport.ReadRefresh(r)
			if refresh == "" {
				unauthorized(w)
				return
			}

			ctx := authkit.WithClientIP(r.Context(), clientIP(r))
			pair, err := engine.Rotate(ctx, refresh)
			if err != nil {
				unauthorized(w)
				return
			}

			res, err := engine.Validate(r.Context(), pair.AccessToken)
			if err != nil {
				unauthorized(w)
				return
			}

			transport.WriteCredentials(w, pair)
			serve(next, w, r, res)
		})
	}
}

// RequireAccess is the bearer-only gate for API-to-API routes: it checks the
// Authorization header, never reads cookies, and never rotates.
func RequireAccess(engine *authkit.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				unauthorized(w)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w)
				return
			}

			res, err := engine.Validate(r.Context(), token)
			if err != nil {
				unauthorized(w)
				return
			}

			serve(next, w, r, res)
		})
	}
}

func serve(next http.Handler, w http.ResponseWriter, r *http.Request, res *authkit.AuthResult) {
	ctx := context.WithValue(r.Context(), authResultContextKey{}, res)
	next.ServeHTTP(w, r.WithContext(ctx))
}

func unauthorized(w http.ResponseWriter) {
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
