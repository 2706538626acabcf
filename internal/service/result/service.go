package result

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"taskflow/internal/model"
	"taskflow/pkg/apperr"
)

const (
	DefaultLimit = 10
	maxLimit     = 100
)

// Store 由 repository.AiResultRepository 实现
type Store interface {
	Create(ctx context.Context, res *model.AiResult) error
	List(ctx context.Context, limit int) ([]model.AiResult, error)
	CountByType(ctx context.Context) (map[string]int64, error)
}

// Stats 各类 AI 请求的累计次数
type Stats struct {
	Summarize int64 `json:"summarize"`
	Sentiment int64 `json:"sentiment"`
	CSV       int64 `json:"csv"`
}

type Service struct {
	results Store
	logger  *zap.Logger
}

func NewService(results Store, logger *zap.Logger) *Service {
	return &Service{results: results, logger: logger}
}

// Latest limit 非法时使用默认值
func (s *Service) Latest(ctx context.Context, limit int) ([]model.AiResult, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return s.results.List(ctx, limit)
}

// Create 手动保存一条结果，校验顺序与错误信息固定
func (s *Service) Create(ctx context.Context, typ, preview, status string) (*model.AiResult, error) {
	if !model.ValidAiType(typ) {
		return nil, apperr.BadRequest("Invalid type. Expected one of: SUMMARIZE, SENTIMENT, CSV.")
	}
	preview = strings.TrimSpace(preview)
	if preview == "" {
		return nil, apperr.BadRequest("Preview is required.")
	}
	if utf8.RuneCountInString(preview) > model.PreviewMaxLen {
		return nil, apperr.BadRequest("Preview must be <= 200 characters.")
	}
	if !model.ValidAiStatus(status) {
		return nil, apperr.BadRequest("Invalid status.")
	}

	res := &model.AiResult{Type: typ, Preview: preview, Status: status}
	if err := s.results.Create(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// Record AI 代理调用后写入结果，preview 超长时截断
func (s *Service) Record(ctx context.Context, typ, preview, status string) (*model.AiResult, error) {
	res := &model.AiResult{Type: typ, Preview: model.TruncatePreview(preview), Status: status}
	if err := s.results.Create(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	counts, err := s.results.CountByType(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		Summarize: counts[model.AiTypeSummarize],
		Sentiment: counts[model.AiTypeSentiment],
		CSV:       counts[model.AiTypeCSV],
	}, nil
}
