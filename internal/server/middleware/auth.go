package middleware

import (
	"net/http"
	"strings"
	"sync"
)

// AuthConfig holds basic auth credentials. It is shared with the running
// middleware chain, so reloads go through Update.
type AuthConfig struct {
	mu       sync.RWMutex
	Enabled  bool
	User     string
	Password string
}

func (c *AuthConfig) Update(enabled bool, user, password string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Enabled, c.User, c.Password = enabled, user, password
}

func (c *AuthConfig) get() (bool, string, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Enabled, c.User, c.Password
}

// pathMatcher matches exact paths and "/prefix/*" patterns.
type pathMatcher struct {
	exact    map[string]struct{}
	prefixes []string
}

func newPathMatcher(patterns []string) pathMatcher {
	m := pathMatcher{exact: make(map[string]struct{}, len(patterns))}
	for _, p := range patterns {
		if prefix, ok := strings.CutSuffix(p, "*"); ok {
			m.prefixes = append(m.prefixes, prefix)
			continue
		}
		m.exact[p] = struct{}{}
	}
	return m
}

func (m pathMatcher) match(path string) bool {
	if _, ok := m.exact[path]; ok {
		return true
	}
	for _, prefix := range m.prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Auth requires basic auth on every path not listed in excludePaths.
// A trailing "*" in an excluded path matches by prefix.
func Auth(config *AuthConfig, excludePaths ...string) Middleware {
	excluded := newPathMatcher(excludePaths)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			enabled, wantUser, wantPass := config.get()
			if !enabled || excluded.match(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			user, pass, ok := r.BasicAuth()
			if !ok || !constantEqual(user, wantUser) || !constantEqual(pass, wantPass) {
				unauthorized(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", `Basic realm="quorum"`)
	WriteError(w, r, http.StatusUnauthorized, "unauthorized")
}
