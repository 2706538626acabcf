package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"taskflow/internal/dto"
	"taskflow/pkg/apperr"
	"taskflow/pkg/db"
	"taskflow/pkg/logger"
	"taskflow/pkg/rbac"
)

// ErrorMiddleware 把 c.Errors 中最后一个错误转换为统一的 {success:false,message} 响应
func ErrorMiddleware(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		status, message := mapError(err)

		l := logger.WithTrace(c.Request.Context(), log).With(
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
		if status >= http.StatusInternalServerError {
			l.Error("Request failed")
		} else {
			l.Warn("Request rejected")
		}

		c.JSON(status, gin.H{"success": false, "message": message})
	}
}

func mapError(err error) (int, string) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, dto.FieldMessage(fe))
		}
		return http.StatusBadRequest, strings.Join(msgs, "; ")
	}

	if appErr, ok := apperr.As(err); ok {
		return appErr.Status, appErr.Message
	}

	var denied *rbac.PermissionDeniedError
	if errors.As(err, &denied) {
		return http.StatusForbidden, msgInsufficientPermissions
	}

	if field, ok := db.UniqueViolation(err); ok {
		return http.StatusBadRequest, fmt.Sprintf("A record with this %s already exists.", field)
	}
	if db.IsForeignKeyViolation(err) {
		return http.StatusBadRequest, "Foreign key constraint failed."
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return http.StatusNotFound, "Record not found."
	}

	return http.StatusInternalServerError, "Internal Server Error"
}

// RecoveryHandler panic 时返回统一的 500
func RecoveryHandler(log *zap.Logger) gin.RecoveryFunc {
	return func(c *gin.Context, recovered any) {
		logger.WithTrace(c.Request.Context(), log).Error("Panic recovered",
			zap.String("path", c.Request.URL.Path),
			zap.Any("panic", recovered),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Internal Server Error"})
	}
}
