package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"taskflow/internal/model"
	"taskflow/pkg/apperr"
	"taskflow/pkg/circuitbreaker"
	"taskflow/pkg/logger"
)

// Upstream 由 *Client 实现
type Upstream interface {
	Configured() bool
	PostJSON(ctx context.Context, endpoint string, payload any) (map[string]any, error)
	PostFile(ctx context.Context, endpoint, field, fileName string, content []byte) (map[string]any, error)
}

// Recorder 由 result.Service 实现
type Recorder interface {
	Record(ctx context.Context, typ, preview, status string) (*model.AiResult, error)
}

type Service struct {
	upstream Upstream
	results  Recorder
	logger   *zap.Logger
}

func NewService(upstream Upstream, results Recorder, logger *zap.Logger) *Service {
	return &Service{upstream: upstream, results: results, logger: logger}
}

func (s *Service) Summarize(ctx context.Context, text string) (map[string]any, error) {
	if err := s.checkText(text); err != nil {
		return nil, err
	}

	data, err := s.upstream.PostJSON(ctx, "summarize", map[string]string{"text": text})
	if err != nil {
		s.recordFailure(ctx, model.AiTypeSummarize, text)
		return nil, textError(err)
	}

	summary, _ := data["summary"].(string)
	res, err := s.results.Record(ctx, model.AiTypeSummarize, summary, model.AiStatusSuccess)
	if err != nil {
		return nil, err
	}
	data["resultId"] = res.ID
	return data, nil
}

func (s *Service) Sentiment(ctx context.Context, text string) (map[string]any, error) {
	if err := s.checkText(text); err != nil {
		return nil, err
	}

	data, err := s.upstream.PostJSON(ctx, "sentiment", map[string]string{"text": text})
	if err != nil {
		s.recordFailure(ctx, model.AiTypeSentiment, text)
		return nil, textError(err)
	}

	res, err := s.results.Record(ctx, model.AiTypeSentiment, text, model.AiStatusSuccess)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"polarity": data["polarity"],
		"tone":     data["tone"],
		"resultId": res.ID,
	}, nil
}

// AnalyzeCSV 转发上传的 CSV，文件校验在 handler 完成
func (s *Service) AnalyzeCSV(ctx context.Context, fileName string, content []byte) (map[string]any, error) {
	if !s.upstream.Configured() {
		return nil, apperr.New(http.StatusInternalServerError, "Server misconfiguration")
	}

	data, err := s.upstream.PostFile(ctx, "csv", "file", fileName, content)
	if err != nil {
		s.recordFailure(ctx, model.AiTypeCSV, fmt.Sprintf("File %s: processing failed", fileName))
		var upstream *UpstreamError
		if errors.As(err, &upstream) {
			msg, _ := upstream.Body["error"].(string)
			if msg == "" {
				msg = "CSV processing failed"
			}
			return nil, apperr.Wrap(upstream.Status, msg, err)
		}
		return nil, transportError(err)
	}

	preview := fmt.Sprintf("File %v: %v rows, %v columns", data["fileName"], data["rows"], data["columns"])
	res, err := s.results.Record(ctx, model.AiTypeCSV, preview, model.AiStatusSuccess)
	if err != nil {
		return nil, err
	}
	data["resultId"] = res.ID
	return data, nil
}

func (s *Service) checkText(text string) error {
	if strings.TrimSpace(text) == "" {
		return apperr.BadRequest("Text is required")
	}
	if !s.upstream.Configured() {
		return apperr.New(http.StatusInternalServerError, "Server misconfiguration")
	}
	return nil
}

// recordFailure 上游失败也留一条 ERROR 记录
func (s *Service) recordFailure(ctx context.Context, typ, preview string) {
	if _, err := s.results.Record(ctx, typ, preview, model.AiStatusError); err != nil {
		logger.WithTrace(ctx, s.logger).Warn("Failed to record AI failure", zap.String("type", typ), zap.Error(err))
	}
}

// textError 4xx 原样透传，5xx 加前缀
func textError(err error) error {
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		return transportError(err)
	}
	if upstream.Status >= 400 && upstream.Status < 500 {
		return apperr.Wrap(upstream.Status, upstream.Message, err)
	}
	return apperr.Wrap(upstream.Status, "AI service error: "+upstream.Message, err)
}

func transportError(err error) error {
	switch {
	case errors.Is(err, ErrNotConfigured):
		return apperr.New(http.StatusInternalServerError, "Server misconfiguration")
	case errors.Is(err, ErrTimeout):
		return apperr.Wrap(http.StatusGatewayTimeout, "AI service timed out", err)
	case errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen):
		return apperr.Wrap(http.StatusServiceUnavailable, "AI service temporarily unavailable", err)
	default:
		return apperr.Wrap(http.StatusBadGateway, "AI service unreachable", err)
	}
}
