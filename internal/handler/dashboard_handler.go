package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"taskflow/internal/model"
	"taskflow/pkg/rbac"
)

type DashboardService interface {
	RecentActivities(ctx context.Context, actor rbac.Actor) ([]model.ActivityFeedItem, error)
	MyTasks(ctx context.Context, actor rbac.Actor) ([]model.MyTask, error)
}

type DashboardHandler struct {
	dashboard DashboardService
}

func NewDashboardHandler(dashboard DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard}
}

// RecentActivities GET /api/core/dashboard/recent-activities
func (h *DashboardHandler) RecentActivities(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	items, err := h.dashboard.RecentActivities(c.Request.Context(), actor)
	if err != nil {
		_ = c.Error(err)
		return
	}
	respondData(c, http.StatusOK, items)
}

// MyTasks GET /api/core/dashboard/my-tasks
func (h *DashboardHandler) MyTasks(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	tasks, err := h.dashboard.MyTasks(c.Request.Context(), actor)
	if err != nil {
		_ = c.Error(err)
		return
	}
	respondData(c, http.StatusOK, tasks)
}
