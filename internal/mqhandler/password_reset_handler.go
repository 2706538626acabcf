package mqhandler

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	mqcontracts "taskflow/contracts/mq"
	"taskflow/pkg/mailer"
)

type PasswordResetMailHandler struct {
	delivery mailDelivery
	logger   *zap.Logger
}

func NewPasswordResetMailHandler(
	sender mailer.Sender,
	deduper Deduper,
	retryCounter RetryCounter,
	dlq DLQPublisher,
	logger *zap.Logger,
) *PasswordResetMailHandler {
	return &PasswordResetMailHandler{
		delivery: mailDelivery{
			kind:         "password_reset",
			routingKey:   mqcontracts.RoutingKeyPasswordResetRequested,
			sender:       sender,
			deduper:      deduper,
			retryCounter: retryCounter,
			dlq:          dlq,
			maxRetries:   defaultMaxRetries,
			logger:       logger,
		},
		logger: logger,
	}
}

// WithMaxRetries 覆盖默认重试次数，n <= 0 时忽略
func (h *PasswordResetMailHandler) WithMaxRetries(n int64) *PasswordResetMailHandler {
	if n > 0 {
		h.delivery.maxRetries = n
	}
	return h
}

// Handle 消费 auth.password_reset_requested，发送重置链接
func (h *PasswordResetMailHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.PasswordResetRequestedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		// JSON decode 错误 - 不可重试，发送到 DLQ
		h.logger.Error("Failed to unmarshal password reset payload", zap.Error(err))
		return h.delivery.toDLQ(ctx, raw, "json_decode_error: "+err.Error())
	}
	if p.EventID == "" || p.Email == "" || p.ResetURL == "" {
		return h.delivery.toDLQ(ctx, raw, "invalid_payload")
	}

	h.logger.Info("Processing password reset mail",
		zap.String("event_id", p.EventID),
		zap.Int64("user_id", p.UserID),
	)

	return h.delivery.deliver(ctx, p.EventID, raw, mailer.PasswordReset(p.Email, p.Name, p.ResetURL))
}
