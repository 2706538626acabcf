package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"taskflow/internal/handler"
	"taskflow/pkg/apperr"
	"taskflow/pkg/rbac"
	"taskflow/pkg/util"
)

// TokenParser 由 auth.Service 实现
type TokenParser interface {
	ParseAccessToken(token string) (rbac.Actor, error)
}

// AuthMiddleware 校验 Bearer access token，并把操作者写入 context
func AuthMiddleware(parser TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := util.ExtractToken(c.Request)
		if token == "" {
			_ = c.Error(apperr.Unauthorized("Unauthorized"))
			c.Abort()
			return
		}

		actor, err := parser.ParseAccessToken(token)
		if err != nil {
			_ = c.Error(apperr.Wrap(http.StatusUnauthorized, "Invalid or expired token", err))
			c.Abort()
			return
		}

		handler.SetActor(c, actor)
		c.Next()
	}
}
