package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"taskflow/internal/dto"
	"taskflow/internal/model"
	"taskflow/internal/repository"
	"taskflow/internal/service/user"
	"taskflow/pkg/apperr"
	"taskflow/pkg/rbac"
)

const msgInvalidUserID = "Invalid user ID"

// UserService 由 user.Service 实现
type UserService interface {
	List(ctx context.Context, actor rbac.Actor) ([]model.User, error)
	Get(ctx context.Context, id int64) (*model.User, error)
	Create(ctx context.Context, actor rbac.Actor, in user.CreateInput) (*model.User, error)
	Update(ctx context.Context, actor rbac.Actor, id int64, upd repository.UserUpdate) (*model.User, error)
	UpdateStatus(ctx context.Context, actor rbac.Actor, id int64, status string) (*model.User, error)
	ChangeRole(ctx context.Context, actor rbac.Actor, id int64, role rbac.Role) (*model.User, error)
	Delete(ctx context.Context, actor rbac.Actor, id int64) error
}

type UserHandler struct {
	users UserService
}

func NewUserHandler(users UserService) *UserHandler {
	return &UserHandler{users: users}
}

// Me GET /api/core/users/me
func (h *UserHandler) Me(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	respondData(c, http.StatusOK, gin.H{
		"id":    actor.ID,
		"email": actor.Email,
		"role":  actor.Role,
		"name":  actor.Name,
	})
}

func (h *UserHandler) List(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	users, err := h.users.List(c.Request.Context(), actor)
	if err != nil {
		_ = c.Error(err)
		return
	}
	respondData(c, http.StatusOK, users)
}

func (h *UserHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id", msgInvalidUserID)
	if !ok {
		return
	}
	u, err := h.users.Get(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	respondData(c, http.StatusOK, u)
}

func (h *UserHandler) Create(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.CreateUserRequest
	if !bindJSON(c, &req) {
		return
	}

	u, err := h.users.Create(c.Request.Context(), actor, user.CreateInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     rbac.Role(req.Role),
		Status:   req.Status,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	respondData(c, http.StatusCreated, u)
}

func (h *UserHandler) Update(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id", msgInvalidUserID)
	if !ok {
		return
	}
	var req dto.UpdateUserRequest
	if !bindJSON(c, &req) {
		return
	}

	upd := repository.UserUpdate{Name: req.Name, Status: req.Status}
	if req.Role != nil {
		role := rbac.Role(*req.Role)
		upd.Role = &role
	}
	u, err := h.users.Update(c.Request.Context(), actor, id, upd)
	if err != nil {
		_ = c.Error(err)
		return
	}
	respondData(c, http.StatusOK, u)
}

// UpdateStatus PATCH /api/core/users/:id/status
func (h *UserHandler) UpdateStatus(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id", msgInvalidUserID)
	if !ok {
		return
	}
	var req dto.UpdateUserStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	u, err := h.users.UpdateStatus(c.Request.Context(), actor, id, req.Status)
	if err != nil {
		_ = c.Error(err)
		return
	}
	respondData(c, http.StatusOK, u)
}

// ChangeRole PUT /api/core/users/:id/role，仅 SA
func (h *UserHandler) ChangeRole(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id", msgInvalidUserID)
	if !ok {
		return
	}
	var req dto.UpdateUserRoleRequest
	if !bindJSON(c, &req) {
		return
	}
	role, valid := rbac.ParseRole(req.Role)
	if !valid {
		_ = c.Error(apperr.BadRequest("Invalid role"))
		return
	}

	u, err := h.users.ChangeRole(c.Request.Context(), actor, id, role)
	if err != nil {
		_ = c.Error(err)
		return
	}
	respondData(c, http.StatusOK, u)
}

func (h *UserHandler) Delete(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id", msgInvalidUserID)
	if !ok {
		return
	}
	if err := h.users.Delete(c.Request.Context(), actor, id); err != nil {
		_ = c.Error(err)
		return
	}
	respondMessage(c, "User deleted successfully")
}
