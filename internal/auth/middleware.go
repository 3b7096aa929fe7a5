package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// Skipper allows callers to bypass authentication for specific requests.
type Skipper func(r *http.Request) bool

// Middleware enforces bearer-token authentication on incoming requests.
type Middleware struct {
	config  Config
	skipper Skipper
	static  *Claims
}

// NewMiddleware constructs Middleware that validates tokens with cfg. Health, metrics,
// media and CORS preflight requests pass through.
func NewMiddleware(cfg Config) Middleware {
	return Middleware{config: cfg, skipper: PublicPaths}
}

// NewStaticMiddleware attaches claims to every request without checking tokens.
func NewStaticMiddleware(claims *Claims) Middleware {
	return Middleware{static: claims}
}

// PublicPaths reports whether the request targets an endpoint that needs no token.
func PublicPaths(r *http.Request) bool {
	if r.Method == http.MethodOptions {
		return true
	}
	return r.URL.Path == "/healthz" || r.URL.Path == "/metrics" || strings.HasPrefix(r.URL.Path, "/media/")
}

// Wrap attaches authentication handling to an http.Handler.
func (m Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.static != nil {
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), m.static)))
			return
		}
		if m.skipper != nil && m.skipper(r) {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := m.parseRequest(r)
		if err != nil {
			code := "invalid_token"
			if errors.Is(err, ErrMissingToken) {
				code = "missing_token"
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("WWW-Authenticate", `Bearer realm="taskflow"`)
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"type": code, "detail": err.Error()})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

func (m Middleware) parseRequest(r *http.Request) (*Claims, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, ErrMissingToken
	}
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return nil, ErrInvalidToken
	}
	return ParseClaims(header[len("Bearer "):], m.config)
}
