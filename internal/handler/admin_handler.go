package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"taskflow/pkg/apperr"
	"taskflow/pkg/outbox"
)

// ReplayService 由 outbox.ReplayService 实现
type ReplayService interface {
	ReplayEvent(ctx context.Context, id int64) error
	ReplayFailedEvents(ctx context.Context, limit int) (int, error)
	FailedEvents(ctx context.Context, limit int) ([]*outbox.Event, error)
}

type AdminHandler struct {
	replayService ReplayService
	logger        *zap.Logger
}

func NewAdminHandler(replayService ReplayService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		replayService: replayService,
		logger:        logger,
	}
}

// FailedEvents 查看发布失败的事件
// GET /api/core/admin/outbox/failed?limit=100
func (h *AdminHandler) FailedEvents(c *gin.Context) {
	limit := replayLimit(c)
	events, err := h.replayService.FailedEvents(c.Request.Context(), limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(events), "data": events})
}

// ReplayOutboxEvent 重放指定的 Outbox 事件
// POST /api/core/admin/outbox/replay?id=xxx
func (h *AdminHandler) ReplayOutboxEvent(c *gin.Context) {
	idStr := c.Query("id")
	if idStr == "" {
		_ = c.Error(apperr.BadRequest("missing id parameter"))
		return
	}

	eventID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		_ = c.Error(apperr.BadRequest("invalid id parameter"))
		return
	}

	if err := h.replayService.ReplayEvent(c.Request.Context(), eventID); err != nil {
		if errors.Is(err, outbox.ErrEventNotFound) {
			_ = c.Error(apperr.NotFound("Outbox event not found"))
			return
		}
		h.logger.Error("Failed to replay event",
			zap.Int64("event_id", eventID),
			zap.Error(err),
		)
		_ = c.Error(apperr.Wrap(http.StatusInternalServerError, "failed to replay event", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"status":   "replayed",
		"event_id": eventID,
	})
}

// ReplayFailedEvents 重放所有失败的事件
// POST /api/core/admin/outbox/replay-failed?limit=100
func (h *AdminHandler) ReplayFailedEvents(c *gin.Context) {
	limit := replayLimit(c)

	successCount, err := h.replayService.ReplayFailedEvents(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to replay failed events", zap.Error(err))
		_ = c.Error(apperr.Wrap(http.StatusInternalServerError, "failed to replay failed events", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"status":        "completed",
		"success_count": successCount,
		"limit":         limit,
	})
}

func replayLimit(c *gin.Context) int {
	limit := queryInt(c, "limit", 100)
	if limit <= 0 {
		limit = 100
	}
	return limit
}
