package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"taskflow/pkg/apperr"
	"taskflow/pkg/rbac"
)

const actorKey = "actor"

// SetActor 由认证中间件写入
func SetActor(c *gin.Context, a rbac.Actor) {
	c.Set(actorKey, a)
}

// ActorFrom 读取当前请求的操作者
func ActorFrom(c *gin.Context) (rbac.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return rbac.Actor{}, false
	}
	a, ok := v.(rbac.Actor)
	return a, ok
}

// requireActor 未认证时记录 401 并返回 false
func requireActor(c *gin.Context) (rbac.Actor, bool) {
	a, ok := ActorFrom(c)
	if !ok {
		_ = c.Error(apperr.Unauthorized("Unauthorized"))
		return rbac.Actor{}, false
	}
	return a, true
}

// pathID 解析正整数路径参数
func pathID(c *gin.Context, name, message string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		_ = c.Error(apperr.BadRequest(message))
		return 0, false
	}
	return id, true
}

// queryInt 缺省或非法时返回 def
func queryInt(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return def
	}
	return v
}

func respondData(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func respondMessage(c *gin.Context, message string) {
	c.JSON(http.StatusOK, gin.H{"success": true, "message": message})
}

// bindJSON 校验错误交给 ErrorMiddleware 拼接，其余解析错误统一为 400
func bindJSON(c *gin.Context, obj any) bool {
	err := c.ShouldBindJSON(obj)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		_ = c.Error(err)
	} else {
		_ = c.Error(apperr.Wrap(http.StatusBadRequest, "Invalid request body", err))
	}
	return false
}
