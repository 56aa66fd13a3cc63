package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ──────────────────────────────────────────────────────────────────
// Bearer Token Admin Authentication Middleware
//
// Guards the registry's admin surface (company creation, deactivation)
// with a single shared secret: Authorization: Bearer <secret>
// ──────────────────────────────────────────────────────────────────

// AdminAuthMiddleware returns a Gin middleware that validates the admin
// bearer token against cfg.RegistryAdminSecret. If the secret is empty
// every request is allowed through — useful for local development, but
// logged loudly since it means the admin surface is unprotected.
func AdminAuthMiddleware(secret string, log *slog.Logger) gin.HandlerFunc {
	if secret == "" {
		log.Warn("REGISTRY_ADMIN_SECRET is not set; admin endpoints are unauthenticated")
	}

	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}

		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "missing Authorization header",
				"hint":  "use: Authorization: Bearer <admin secret>",
			})
			c.Abort()
			return
		}

		parts := strings.SplitN(auth, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusForbidden, gin.H{"error": "invalid Authorization header format"})
			c.Abort()
			return
		}

		// Constant-time comparison to prevent timing-based secret enumeration.
		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(secret)) != 1 {
			c.JSON(http.StatusForbidden, gin.H{"error": "invalid admin secret"})
			c.Abort()
			return
		}

		c.Next()
	}
}
