package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/eco-collect/internal/logging"
	"github.com/example/eco-collect/internal/repository"
)

// IdentityKey is the gin context key holding the resolved *Identity.
const IdentityKey = "identity"

// SessionMiddleware resolves the session token from the cookie or the
// Authorization header. Requests without a valid session continue
// anonymously; routes that need a caller add RequireUser.
func SessionMiddleware(manager *Manager, cookieName string, logger *zap.Logger) gin.HandlerFunc {
	logger = logger.Named("session_middleware")

	return func(c *gin.Context) {
		token := TokenFromRequest(c, cookieName)
		if token == "" {
			c.Next()
			return
		}

		identity, err := manager.Resolve(c.Request.Context(), token)
		if err != nil {
			logger.Debug("ignoring session token", zap.Error(err))
			c.Next()
			return
		}

		c.Request = c.Request.WithContext(ContextWithIdentity(c.Request.Context(), identity))
		c.Set(IdentityKey, identity)
		c.Next()
	}
}

// RequireUser rejects anonymous requests.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := IdentityFromContext(c.Request.Context()); !ok {
			unauthorized(c, "not logged in")
			return
		}
		c.Next()
	}
}

// RequireRole rejects callers that hold none of roles.
func RequireRole(roles ...repository.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := IdentityFromContext(c.Request.Context())
		if !ok {
			unauthorized(c, "not logged in")
			return
		}
		if !identity.HasRole(roles...) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":      "forbidden",
				"message":    "insufficient role",
				"request_id": logging.RequestIDFromContext(c.Request.Context()),
			})
			return
		}
		c.Next()
	}
}

// TokenFromRequest returns the session token, preferring the cookie over a
// bearer token.
func TokenFromRequest(c *gin.Context, cookieName string) string {
	if cookie, err := c.Cookie(cookieName); err == nil && strings.TrimSpace(cookie) != "" {
		return strings.TrimSpace(cookie)
	}
	return extractBearerToken(c.GetHeader("Authorization"))
}

func extractBearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":      "not_authenticated",
		"message":    message,
		"request_id": logging.RequestIDFromContext(c.Request.Context()),
	})
}
