package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// DebugAuthConfig guards the /debug routes.
type DebugAuthConfig struct {
	// Token enables Bearer authentication. When empty, FallbackAuthConfig applies.
	Token              string
	FallbackAuthConfig *AuthConfig
}

// DebugAuth protects debug endpoints with a Bearer token, or with the API
// basic auth credentials when no token is configured. Without either, every
// request is refused.
func DebugAuth(config *DebugAuthConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if config.Token != "" {
				if !validBearer(r, config.Token) {
					forbiddenDebug(w, r)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if config.FallbackAuthConfig == nil {
				forbiddenDebug(w, r)
				return
			}
			enabled, wantUser, wantPass := config.FallbackAuthConfig.get()
			if !enabled {
				forbiddenDebug(w, r)
				return
			}

			user, pass, ok := r.BasicAuth()
			if !ok || !constantEqual(user, wantUser) || !constantEqual(pass, wantPass) {
				unauthorizedDebug(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func validBearer(r *http.Request, want string) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		return false
	}
	return constantEqual(token, want)
}

func constantEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func unauthorizedDebug(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", `Basic realm="quorum-debug"`)
	WriteError(w, r, http.StatusUnauthorized, "debug endpoint requires authentication")
}

func forbiddenDebug(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, http.StatusForbidden, "debug authentication required")
}
