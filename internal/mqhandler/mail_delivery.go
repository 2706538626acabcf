package mqhandler

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"taskflow/pkg/logger"
	"taskflow/pkg/mailer"
	"taskflow/pkg/metrics"
	"taskflow/pkg/otel"
	"taskflow/pkg/util"
)

const (
	defaultMaxRetries = 5 // 最大重试次数
)

// Deduper 由 util.Deduper 实现
type Deduper interface {
	AcquireOnce(ctx context.Context, handler, eventID string) bool
	Release(ctx context.Context, handler, eventID string)
}

// RetryCounter 由 util.RetryCounter 实现
type RetryCounter interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

// DLQPublisher 由 mq.Publisher 实现
type DLQPublisher interface {
	PublishToDLQ(ctx context.Context, routingKey string, payload []byte, originalError string) error
}

// mailDelivery 两个邮件 handler 共用的去重、重试和死信逻辑
type mailDelivery struct {
	kind         string
	routingKey   string
	sender       mailer.Sender
	deduper      Deduper
	retryCounter RetryCounter
	dlq          DLQPublisher
	maxRetries   int64
	logger       *zap.Logger
}

// deliver 返回 error 表示需要 nack 重投，nil 表示 ack
func (d *mailDelivery) deliver(ctx context.Context, eventID string, raw []byte, msg mailer.Message) error {
	log := logger.WithTrace(ctx, d.logger).With(
		zap.String("kind", d.kind),
		zap.String("event_id", eventID),
	)

	// Redis 去重：同一事件只发一次
	if !d.deduper.AcquireOnce(ctx, d.kind, eventID) {
		return nil
	}

	retryKey := util.FormatRetryKey(d.kind, eventID)
	sendCtx, span := otel.StartSpan(ctx, "mail.send")
	span.SetAttributes(
		attribute.String("mail.kind", d.kind),
		attribute.String("event.id", eventID),
	)
	err := d.sender.Send(sendCtx, msg)
	span.End()
	if err == nil {
		if resetErr := d.retryCounter.Reset(ctx, retryKey); resetErr != nil {
			log.Warn("Failed to reset retry count", zap.Error(resetErr))
		}
		metrics.IncrementMailSent(d.kind, "success")
		log.Info("Mail sent", zap.String("to", msg.To))
		return nil
	}

	isRetryable, errType := util.IsRetryableError(err)
	retryCount, counterErr := d.retryCounter.IncrementAndGet(ctx, retryKey)
	if counterErr != nil {
		// Redis 错误不影响处理，按第一次失败处理
		log.Warn("Failed to get retry count, continuing anyway", zap.Error(counterErr))
		retryCount = 1
	}

	log.Error("Failed to send mail",
		zap.String("error_type", errType),
		zap.Bool("retryable", isRetryable),
		zap.Int64("retry_count", retryCount),
		zap.Error(err),
	)

	if util.ShouldRetry(retryCount, d.maxRetries, isRetryable) {
		// 释放去重锁，否则重投递会被当成重复消息
		d.deduper.Release(ctx, d.kind, eventID)
		metrics.IncrementMailSent(d.kind, "failed")
		return err
	}

	if dlqErr := d.toDLQ(ctx, raw, fmt.Sprintf("%s: %v", errType, err)); dlqErr != nil {
		d.deduper.Release(ctx, d.kind, eventID)
		return dlqErr
	}
	if resetErr := d.retryCounter.Reset(ctx, retryKey); resetErr != nil {
		log.Warn("Failed to reset retry count", zap.Error(resetErr))
	}
	return nil
}

// toDLQ 不可重试或超过重试次数的消息进入死信队列
func (d *mailDelivery) toDLQ(ctx context.Context, raw []byte, reason string) error {
	if err := d.dlq.PublishToDLQ(ctx, d.routingKey, raw, reason); err != nil {
		logger.WithTrace(ctx, d.logger).Error("Failed to publish to DLQ",
			zap.String("kind", d.kind),
			zap.Error(err),
		)
		return err
	}
	metrics.IncrementMailSent(d.kind, "dlq")
	logger.WithTrace(ctx, d.logger).Warn("Message moved to DLQ",
		zap.String("kind", d.kind),
		zap.String("reason", reason),
	)
	return nil
}
