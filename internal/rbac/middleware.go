package rbac

import (
	"net/http"

	"church-messaging/internal/auth"

	"github.com/gin-gonic/gin"
)

// RequireChurch rejects tokens that are not scoped to a church.
func RequireChurch() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := auth.ChurchID(c.Request.Context()); err != nil {
			deny(c, http.StatusUnauthorized, "church_id required")
			return
		}
		c.Next()
	}
}

// RequireAnyRole admits callers holding one of roles. Super admins are
// always admitted.
func RequireAnyRole(roles ...string) gin.HandlerFunc {
	admitted := make(map[string]bool, len(roles)+1)
	for _, r := range roles {
		admitted[r] = true
	}
	admitted[RoleSuperAdmin] = true

	return func(c *gin.Context) {
		role, err := auth.Role(c.Request.Context())
		switch {
		case err != nil:
			deny(c, http.StatusUnauthorized, "role required")
		case !admitted[role]:
			deny(c, http.StatusForbidden, "forbidden")
		default:
			c.Next()
		}
	}
}

func deny(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": msg})
}
