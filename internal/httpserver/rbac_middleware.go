package httpserver

import (
	"github.com/gin-gonic/gin"

	"taskflow/internal/handler"
	"taskflow/pkg/apperr"
	"taskflow/pkg/rbac"
)

const msgInsufficientPermissions = "Forbidden: insufficient permissions"

// RequirePermission 中间件：要求用户具有指定权限
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, exists := handler.ActorFrom(c)
		if !exists {
			_ = c.Error(apperr.Unauthorized("Unauthorized"))
			c.Abort()
			return
		}

		if err := rbac.CheckPermission(actor.Role, permission); err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}

		c.Next()
	}
}
