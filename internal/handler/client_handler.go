package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"taskflow/internal/dto"
	"taskflow/internal/model"
	"taskflow/internal/repository"
	"taskflow/internal/service/client"
	"taskflow/pkg/rbac"
)

const msgInvalidClientID = "Invalid client ID"

type ClientService interface {
	List(ctx context.Context, actor rbac.Actor) ([]model.Client, error)
	Create(ctx context.Context, actor rbac.Actor, in client.CreateInput) (*model.Client, error)
	Update(ctx context.Context, actor rbac.Actor, id int64, upd repository.ClientUpdate) (*model.Client, error)
	Delete(ctx context.Context, actor rbac.Actor, id int64) error
	NextID(ctx context.Context) (int64, error)
}

type ClientHandler struct {
	clients ClientService
}

func NewClientHandler(clients ClientService) *ClientHandler {
	return &ClientHandler{clients: clients}
}

func (h *ClientHandler) List(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	clients, err := h.clients.List(c.Request.Context(), actor)
	if err != nil {
		_ = c.Error(err)
		return
	}
	respondData(c, http.StatusOK, clients)
}

func (h *ClientHandler) Create(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.CreateClientRequest
	if !bindJSON(c, &req) {
		return
	}

	created, err := h.clients.Create(c.Request.Context(), actor, client.CreateInput{
		Name:    req.Name,
		Email:   req.Email,
		Company: req.Company,
		Phone:   req.Phone,
		Status:  req.Status,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	respondData(c, http.StatusCreated, created)
}

func (h *ClientHandler) Update(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id", msgInvalidClientID)
	if !ok {
		return
	}
	var req dto.UpdateClientRequest
	if !bindJSON(c, &req) {
		return
	}

	updated, err := h.clients.Update(c.Request.Context(), actor, id, repository.ClientUpdate{
		Name:    req.Name,
		Email:   req.Email,
		Company: req.Company,
		Phone:   req.Phone,
		Status:  req.Status,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	respondData(c, http.StatusOK, updated)
}

func (h *ClientHandler) Delete(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id", msgInvalidClientID)
	if !ok {
		return
	}
	if err := h.clients.Delete(c.Request.Context(), actor, id); err != nil {
		_ = c.Error(err)
		return
	}
	respondMessage(c, "Client deleted successfully")
}

// NextID GET /api/core/clients/next-id
func (h *ClientHandler) NextID(c *gin.Context) {
	id, err := h.clients.NextID(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	respondData(c, http.StatusOK, id)
}
