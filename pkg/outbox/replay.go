package outbox

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ReplayService 手动重放 outbox 事件
type ReplayService struct {
	store      Store
	publisher  Publisher
	maxRetries int
	logger     *zap.Logger
}

func NewReplayService(store Store, publisher Publisher, logger *zap.Logger) *ReplayService {
	return &ReplayService{
		store:      store,
		publisher:  publisher,
		maxRetries: 5,
		logger:     logger,
	}
}

// ReplayEvent 立即重新发布指定事件，不论当前状态
func (s *ReplayService) ReplayEvent(ctx context.Context, id int64) error {
	event, err := s.store.GetEventByID(ctx, id)
	if err != nil {
		return err
	}

	if err := publishEvent(ctx, s.publisher, event); err != nil {
		if markErr := s.store.MarkAsFailed(ctx, id, s.maxRetries); markErr != nil {
			return fmt.Errorf("failed to publish and mark as failed: %w (mark error: %v)", err, markErr)
		}
		return err
	}

	if err := s.store.MarkAsSent(ctx, id); err != nil {
		return fmt.Errorf("failed to mark as sent: %w", err)
	}
	s.logger.Info("Outbox event replayed",
		zap.Int64("id", id),
		zap.String("event_id", event.EventID),
		zap.String("routing_key", event.RoutingKey),
	)
	return nil
}

// ReplayFailedEvents 重放最近的 failed 事件，单条失败不影响其他，返回成功数
func (s *ReplayService) ReplayFailedEvents(ctx context.Context, limit int) (int, error) {
	events, err := s.store.GetFailedEvents(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to get failed events: %w", err)
	}

	replayed := 0
	for _, event := range events {
		if err := s.ReplayEvent(ctx, event.ID); err != nil {
			s.logger.Warn("Replay failed", zap.Int64("id", event.ID), zap.Error(err))
			continue
		}
		replayed++
	}
	return replayed, nil
}

// FailedEvents 透传给管理接口
func (s *ReplayService) FailedEvents(ctx context.Context, limit int) ([]*Event, error) {
	return s.store.GetFailedEvents(ctx, limit)
}
