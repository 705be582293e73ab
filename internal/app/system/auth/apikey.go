// Package auth guards the admin API. There are no user accounts: every admin
// request carries the configured key as "Authorization: Bearer <key>".
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/dalemusser/stratapage/internal/app/system/jsonutil"
	"go.uber.org/zap"
)

// APIKeyAuth returns middleware that rejects requests whose bearer token does
// not match validKey. An empty validKey rejects everything.
//
// Usage in routes.go:
//
//	r.Route("/api/admin", func(r chi.Router) {
//	    r.Use(apicors.Middleware(appCfg.APICORSOrigins...))
//	    r.Use(auth.APIKeyAuth(appCfg.APIKey, logger))
//	    r.Mount("/pages", pageadmin.Routes(pageAdminHandler))
//	})
func APIKeyAuth(validKey string, logger *zap.Logger) func(http.Handler) http.Handler {
	if validKey == "" {
		logger.Warn("API key not configured - all admin requests will be rejected")
	} else if IsWeakKey(validKey) {
		logger.Warn("API key looks like a placeholder; set a random value in production")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if validKey == "" {
				logger.Warn("admin request rejected: API key not configured",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				jsonutil.Unauthorized(w, "API authentication not configured")
				return
			}

			provided, ok := BearerToken(r)
			if !ok {
				logger.Debug("admin request rejected: missing or malformed Authorization header",
					zap.String("path", r.URL.Path),
				)
				jsonutil.Unauthorized(w, "expected Authorization: Bearer <api-key>")
				return
			}

			if subtle.ConstantTimeCompare([]byte(provided), []byte(validKey)) != 1 {
				logger.Warn("admin request rejected: invalid API key",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				jsonutil.Unauthorized(w, "invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// BearerToken extracts the token from a "Bearer <token>" Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// IsWeakKey reports whether key looks like a default or placeholder value.
func IsWeakKey(key string) bool {
	if len(key) < 16 {
		return true
	}
	lower := strings.ToLower(key)
	for _, p := range []string{
		"dev-only",
		"change-me",
		"changeme",
		"placeholder",
		"default",
		"example",
		"insecure",
		"test-key",
		"secret123",
		"password",
	} {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
