package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"taskflow/internal/dto"
	"taskflow/internal/model"
	"taskflow/internal/service/task"
	"taskflow/pkg/apperr"
	"taskflow/pkg/rbac"
)

const msgInvalidTaskID = "Invalid task ID"

type TaskService interface {
	List(ctx context.Context, actor rbac.Actor, page, limit int) ([]model.Task, error)
	Create(ctx context.Context, actor rbac.Actor, in task.CreateInput) (*model.Task, error)
	Update(ctx context.Context, actor rbac.Actor, id int64, in task.UpdateInput) (*model.Task, error)
	Delete(ctx context.Context, actor rbac.Actor, id int64) error
}

type TaskHandler struct {
	tasks TaskService
}

func NewTaskHandler(tasks TaskService) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

// List GET /api/v1/tasks?page=&limit=
func (h *TaskHandler) List(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	tasks, err := h.tasks.List(c.Request.Context(), actor, queryInt(c, "page", 1), queryInt(c, "limit", 0))
	if err != nil {
		_ = c.Error(err)
		return
	}
	respondData(c, http.StatusOK, tasks)
}

func (h *TaskHandler) Create(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.CreateTaskRequest
	if !bindJSON(c, &req) {
		return
	}
	start, end, ok := parseDates(c, req.StartDate, req.EndDate)
	if !ok {
		return
	}

	t, err := h.tasks.Create(c.Request.Context(), actor, task.CreateInput{
		Title:          req.Title,
		Description:    req.Description,
		ProjectID:      req.ProjectID,
		ClientID:       req.ClientID,
		AssigneeID:     req.AssigneeID,
		StartDate:      start,
		EndDate:        end,
		EstimatedHours: req.EstimatedHours,
		TimeSpentHours: req.TimeSpentHours,
		Progress:       req.Progress,
		Status:         req.Status,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	respondData(c, http.StatusCreated, t)
}

func (h *TaskHandler) Update(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id", msgInvalidTaskID)
	if !ok {
		return
	}
	var req dto.UpdateTaskRequest
	if !bindJSON(c, &req) {
		return
	}
	start, end, ok := parseDates(c, req.StartDate, req.EndDate)
	if !ok {
		return
	}

	t, err := h.tasks.Update(c.Request.Context(), actor, id, task.UpdateInput{
		Title:          req.Title,
		Description:    req.Description,
		Done:           req.Done,
		Status:         req.Status,
		StartDate:      start,
		EndDate:        end,
		EstimatedHours: req.EstimatedHours,
		TimeSpentHours: req.TimeSpentHours,
		Progress:       req.Progress,
		AssigneeID:     req.AssigneeID.Value,
		ClearAssignee:  req.AssigneeID.Clears(),
		ClientID:       req.ClientID.Value,
		ClearClient:    req.ClientID.Clears(),
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	respondData(c, http.StatusOK, t)
}

func (h *TaskHandler) Delete(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id", msgInvalidTaskID)
	if !ok {
		return
	}
	if err := h.tasks.Delete(c.Request.Context(), actor, id); err != nil {
		_ = c.Error(err)
		return
	}
	respondMessage(c, "Task deleted successfully")
}

func parseDates(c *gin.Context, startRaw, endRaw *string) (start, end *time.Time, ok bool) {
	var err error
	if start, err = dto.ParseDate(startRaw); err != nil {
		_ = c.Error(apperr.BadRequest("Invalid startDate"))
		return nil, nil, false
	}
	if end, err = dto.ParseDate(endRaw); err != nil {
		_ = c.Error(apperr.BadRequest("Invalid endDate"))
		return nil, nil, false
	}
	return start, end, true
}
