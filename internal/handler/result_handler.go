package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"taskflow/internal/dto"
	"taskflow/internal/model"
	"taskflow/internal/service/result"
)

type ResultService interface {
	Latest(ctx context.Context, limit int) ([]model.AiResult, error)
	Create(ctx context.Context, typ, preview, status string) (*model.AiResult, error)
	Stats(ctx context.Context) (*result.Stats, error)
}

type ResultHandler struct {
	results ResultService
}

func NewResultHandler(results ResultService) *ResultHandler {
	return &ResultHandler{results: results}
}

// List GET /api/core/results?limit=10
func (h *ResultHandler) List(c *gin.Context) {
	rows, err := h.results.Latest(c.Request.Context(), queryInt(c, "limit", result.DefaultLimit))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(rows), "data": rows})
}

func (h *ResultHandler) Create(c *gin.Context) {
	var req dto.CreateResultRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.results.Create(c.Request.Context(), req.Type, req.Preview, req.Status)
	if err != nil {
		_ = c.Error(err)
		return
	}
	respondData(c, http.StatusCreated, res)
}

// Stats GET /api/core/ai/stats
func (h *ResultHandler) Stats(c *gin.Context) {
	stats, err := h.results.Stats(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	respondData(c, http.StatusOK, stats)
}
