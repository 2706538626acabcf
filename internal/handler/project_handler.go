package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"taskflow/internal/dto"
	"taskflow/internal/model"
	"taskflow/internal/repository"
	"taskflow/internal/service/project"
	"taskflow/pkg/rbac"
)

const msgInvalidProjectID = "Invalid project ID"

type ProjectService interface {
	List(ctx context.Context, actor rbac.Actor) ([]model.Project, error)
	Get(ctx context.Context, actor rbac.Actor, id int64) (*model.Project, error)
	Create(ctx context.Context, actor rbac.Actor, in project.CreateInput) (*model.Project, error)
	Update(ctx context.Context, actor rbac.Actor, id int64, upd repository.ProjectUpdate) (*model.Project, error)
	Delete(ctx context.Context, actor rbac.Actor, id int64) error
	NextID(ctx context.Context) (int64, error)
}

type ProjectHandler struct {
	projects ProjectService
}

func NewProjectHandler(projects ProjectService) *ProjectHandler {
	return &ProjectHandler{projects: projects}
}

func (h *ProjectHandler) List(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	projects, err := h.projects.List(c.Request.Context(), actor)
	if err != nil {
		_ = c.Error(err)
		return
	}
	respondData(c, http.StatusOK, projects)
}

func (h *ProjectHandler) Get(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id", msgInvalidProjectID)
	if !ok {
		return
	}
	p, err := h.projects.Get(c.Request.Context(), actor, id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	respondData(c, http.StatusOK, p)
}

func (h *ProjectHandler) Create(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.CreateProjectRequest
	if !bindJSON(c, &req) {
		return
	}

	p, err := h.projects.Create(c.Request.Context(), actor, project.CreateInput{
		Name:            req.Name,
		ClientID:        req.ClientID,
		Country:         req.Country,
		Contact:         req.Contact,
		Status:          req.Status,
		AssignedUserIDs: req.AssignedUserIDs,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	respondData(c, http.StatusCreated, p)
}

func (h *ProjectHandler) Update(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id", msgInvalidProjectID)
	if !ok {
		return
	}
	var req dto.UpdateProjectRequest
	if !bindJSON(c, &req) {
		return
	}

	p, err := h.projects.Update(c.Request.Context(), actor, id, repository.ProjectUpdate{
		Name:            req.Name,
		ClientID:        req.ClientID,
		Country:         req.Country,
		Contact:         req.Contact,
		Status:          req.Status,
		AssignedUserIDs: req.AssignedUserIDs,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	respondData(c, http.StatusOK, p)
}

func (h *ProjectHandler) Delete(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id", msgInvalidProjectID)
	if !ok {
		return
	}
	if err := h.projects.Delete(c.Request.Context(), actor, id); err != nil {
		_ = c.Error(err)
		return
	}
	respondMessage(c, "Project deleted successfully")
}

// NextID GET /api/v1/projects/next-id，返回 {success, nextId}
func (h *ProjectHandler) NextID(c *gin.Context) {
	id, err := h.projects.NextID(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "nextId": id})
}
