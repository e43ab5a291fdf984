package http

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/allisson/dormkeys/internal/httputil"
)

// corsPolicy is the parsed CORS_ALLOW_ORIGINS value.
type corsPolicy struct {
	allowAll bool
	origins  []string
	rejected []string
}

// parseCORSOrigins splits a comma separated origin list. "*" allows any origin.
// Entries that are not an http(s) scheme plus host are rejected, since
// gin-contrib/cors refuses to start with them.
func parseCORSOrigins(raw string) corsPolicy {
	var policy corsPolicy
	for part := range strings.SplitSeq(raw, ",") {
		origin := strings.TrimRight(strings.TrimSpace(part), "/")
		switch {
		case origin == "":
		case origin == "*":
			policy.allowAll = true
		case validOrigin(origin):
			policy.origins = append(policy.origins, origin)
		default:
			policy.rejected = append(policy.rejected, origin)
		}
	}
	return policy
}

func validOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" || u.Path != "" || u.RawQuery != "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// createCORSMiddleware returns nil when CORS is disabled or no usable origin is
// configured. With "*" any origin is allowed but credentials are not, so browsers
// never send cookies cross-site to the key endpoints.
func createCORSMiddleware(enabled bool, allowOrigins string, logger *slog.Logger) gin.HandlerFunc {
	if !enabled {
		return nil
	}

	policy := parseCORSOrigins(allowOrigins)
	if len(policy.rejected) > 0 {
		logger.Warn("ignoring invalid CORS origins", slog.Any("origins", policy.rejected))
	}
	if !policy.allowAll && len(policy.origins) == 0 {
		logger.Warn("CORS enabled but no valid origins configured, CORS will not be applied")
		return nil
	}

	config := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{
			"Content-Type",
			httputil.UserIDHeader,
			httputil.DeviceFingerprintHeader,
		},
		ExposeHeaders: []string{"X-Request-Id", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if policy.allowAll {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = policy.origins
		config.AllowCredentials = true
	}

	logger.Info("CORS enabled",
		slog.Bool("allow_all", policy.allowAll),
		slog.Any("origins", policy.origins))

	return cors.New(config)
}
