package security

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Config controls the response headers applied to every route.
type Config struct {
	// AllowedOrigins is the list of frontends permitted to call the
	// API. The same list feeds the CSP connect-src directive so
	// browsers allow websocket upgrades back to us.
	AllowedOrigins []string
	// Development disables HSTS so local HTTP setups keep working.
	Development bool
}

// Headers returns a middleware that sets the standard hardening
// headers on every response.
func Headers(cfg Config) fiber.Handler {
	csp := contentSecurityPolicy(cfg.AllowedOrigins)

	return func(c *fiber.Ctx) error {
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-XSS-Protection", "1; mode=block")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("Content-Security-Policy", csp)

		if !cfg.Development {
			c.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		return c.Next()
	}
}

func contentSecurityPolicy(origins []string) string {
	connectSrc := "'self'"
	if len(origins) > 0 {
		connectSrc += " " + strings.Join(origins, " ")
	}

	directives := []string{
		"default-src 'self'",
		"script-src 'self' 'unsafe-inline' 'unsafe-eval'",
		"style-src 'self' 'unsafe-inline'",
		"img-src 'self' data: https:",
		"font-src 'self' data:",
		"connect-src " + connectSrc,
		"frame-ancestors 'none'",
		"base-uri 'self'",
		"form-action 'self'",
	}
	return strings.Join(directives, "; ")
}
