package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"taskflow/pkg/metrics"
	"taskflow/pkg/trace"
)

// Publisher 由 mq.Publisher 实现
type Publisher interface {
	PublishWithContext(ctx context.Context, routingKey string, body []byte, messageID string) error
}

// Dispatcher 负责从 outbox 中读取事件并发布到 MQ
type Dispatcher struct {
	store      Store
	publisher  Publisher
	logger     *zap.Logger
	maxRetries int
	interval   time.Duration
	batchSize  int
}

func NewDispatcher(store Store, publisher Publisher, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		store:      store,
		publisher:  publisher,
		logger:     logger,
		maxRetries: 5,
		interval:   time.Second,
		batchSize:  100,
	}
}

func (d *Dispatcher) WithMaxRetries(maxRetries int) *Dispatcher {
	d.maxRetries = maxRetries
	return d
}

// WithInterval 非正数保持默认值
func (d *Dispatcher) WithInterval(interval time.Duration) *Dispatcher {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

func (d *Dispatcher) WithBatchSize(batchSize int) *Dispatcher {
	if batchSize > 0 {
		d.batchSize = batchSize
	}
	return d
}

// Start 阻塞运行直到 ctx 取消
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("Starting Outbox Dispatcher",
		zap.Int("max_retries", d.maxRetries),
		zap.Duration("interval", d.interval),
		zap.Int("batch_size", d.batchSize),
	)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Outbox Dispatcher stopped")
			return
		case <-ticker.C:
			d.ProcessPending(ctx)
		}
	}
}

// ProcessPending 处理一批到期事件，返回成功发布的数量
func (d *Dispatcher) ProcessPending(ctx context.Context) int {
	events, err := d.store.GetPendingEvents(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("Failed to get pending events", zap.Error(err))
		return 0
	}
	if len(events) == 0 {
		return 0
	}

	d.logger.Debug("Processing pending events", zap.Int("count", len(events)))

	sent := 0
	for _, event := range events {
		if err := publishEvent(ctx, d.publisher, event); err != nil {
			d.logger.Warn("Failed to publish event",
				zap.Int64("id", event.ID),
				zap.String("event_id", event.EventID),
				zap.String("routing_key", event.RoutingKey),
				zap.Int("retry_count", event.RetryCount),
				zap.Error(err),
			)
			metrics.IncrementOutboxPublished(event.RoutingKey, "error")
			if err := d.store.MarkAsFailed(ctx, event.ID, d.maxRetries); err != nil {
				d.logger.Error("Failed to mark event as failed", zap.Int64("id", event.ID), zap.Error(err))
			}
			continue
		}

		metrics.IncrementOutboxPublished(event.RoutingKey, "success")
		if err := d.store.MarkAsSent(ctx, event.ID); err != nil {
			// 消费端按 event_id 去重，重复投递可接受
			d.logger.Error("Failed to mark event as sent", zap.Int64("id", event.ID), zap.Error(err))
			continue
		}
		sent++
		d.logger.Debug("Event published",
			zap.String("event_id", event.EventID),
			zap.String("routing_key", event.RoutingKey),
		)
	}
	return sent
}

// publishEvent 原样发布 payload，event_id 作为 MessageId
func publishEvent(ctx context.Context, publisher Publisher, event *Event) error {
	ctx = withPayloadTrace(ctx, event.Payload)
	if err := publisher.PublishWithContext(ctx, event.RoutingKey, event.Payload, event.EventID); err != nil {
		return fmt.Errorf("failed to publish to MQ: %w", err)
	}
	return nil
}

// withPayloadTrace payload 里带 trace_id 时沿用它
func withPayloadTrace(ctx context.Context, payload json.RawMessage) context.Context {
	var head struct {
		TraceID string `json:"trace_id"`
	}
	if err := json.Unmarshal(payload, &head); err == nil && head.TraceID != "" {
		return trace.WithContext(ctx, head.TraceID)
	}
	return ctx
}
