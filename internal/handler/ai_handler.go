package handler

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"

	"taskflow/internal/dto"
	"taskflow/pkg/apperr"
)

// MaxCSVSize 上传 CSV 的大小上限
const MaxCSVSize = 10 << 20

const msgCSVTooLarge = "File too large. Maximum size is 10MB"

var allowedCSVTypes = map[string]bool{
	"text/csv":                 true,
	"application/vnd.ms-excel": true,
}

type AIService interface {
	Summarize(ctx context.Context, text string) (map[string]any, error)
	Sentiment(ctx context.Context, text string) (map[string]any, error)
	AnalyzeCSV(ctx context.Context, fileName string, content []byte) (map[string]any, error)
}

type AIHandler struct {
	ai AIService
}

func NewAIHandler(ai AIService) *AIHandler {
	return &AIHandler{ai: ai}
}

// Summarize POST /api/core/ai/summarize/
func (h *AIHandler) Summarize(c *gin.Context) {
	var req dto.TextRequest
	_ = c.ShouldBindJSON(&req)

	data, err := h.ai.Summarize(c.Request.Context(), req.Text)
	if err != nil {
		_ = c.Error(err)
		return
	}
	respondData(c, http.StatusOK, data)
}

// Sentiment POST /api/core/ai/sentiment/
func (h *AIHandler) Sentiment(c *gin.Context) {
	var req dto.TextRequest
	_ = c.ShouldBindJSON(&req)

	data, err := h.ai.Sentiment(c.Request.Context(), req.Text)
	if err != nil {
		_ = c.Error(err)
		return
	}
	respondData(c, http.StatusOK, data)
}

// AnalyzeCSV POST /api/core/ai/csv/，multipart 字段名 file
func (h *AIHandler) AnalyzeCSV(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxCSVSize+1<<20)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			_ = c.Error(apperr.BadRequest(msgCSVTooLarge))
			return
		}
		_ = c.Error(apperr.BadRequest("CSV file is required"))
		return
	}
	if fh.Size > MaxCSVSize {
		_ = c.Error(apperr.BadRequest(msgCSVTooLarge))
		return
	}
	mediaType, _, _ := mime.ParseMediaType(fh.Header.Get("Content-Type"))
	if !allowedCSVTypes[mediaType] {
		_ = c.Error(apperr.BadRequest("Only CSV files are allowed"))
		return
	}

	f, err := fh.Open()
	if err != nil {
		_ = c.Error(apperr.Internal(err))
		return
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		_ = c.Error(apperr.Internal(err))
		return
	}

	data, err := h.ai.AnalyzeCSV(c.Request.Context(), fh.Filename, content)
	if err != nil {
		_ = c.Error(err)
		return
	}
	respondData(c, http.StatusOK, data)
}
