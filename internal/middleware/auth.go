package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/smartbrief/core/internal/models"
	"github.com/smartbrief/core/internal/modules/auth"
	"github.com/smartbrief/core/internal/pkg/response"
)

const (
	ContextKeyUserID   = "user_id"
	ContextKeyIdentity = "identity"
)

// Auth returns a middleware that enforces bearer-token authentication and
// stores the resolved identity on the context.
func Auth(gate *auth.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := gate.Authenticate(c.Request.Context(), extractToken(c))
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Set(ContextKeyUserID, identity.UserID)
		c.Set(ContextKeyIdentity, identity)
		c.Next()
	}
}

// RequireRoles rejects authenticated callers whose role is not listed.
func RequireRoles(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := CurrentIdentity(c)
		if !ok {
			response.Unauthorized(c, "Access token required")
			return
		}
		if !auth.HasAnyRole(identity.Role, roles...) {
			response.Forbidden(c, "Insufficient permissions")
			return
		}
		c.Next()
	}
}

// CurrentIdentity returns the identity set by Auth.
func CurrentIdentity(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(ContextKeyIdentity)
	if !ok {
		return auth.Identity{}, false
	}
	identity, ok := v.(auth.Identity)
	return identity, ok
}

// CurrentUserID extracts the authenticated user ID from context.
func CurrentUserID(c *gin.Context) string {
	return c.GetString(ContextKeyUserID)
}

func extractToken(c *gin.Context) string {
	if hdr := c.GetHeader("Authorization"); hdr != "" {
		return auth.NormalizeToken(hdr)
	}
	return auth.NormalizeToken(c.Query("token"))
}
