package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	mqcontracts "taskflow/contracts/mq"
	"taskflow/pkg/mailer"
)

type TaskAssignedMailHandler struct {
	delivery    mailDelivery
	frontendURL string
	logger      *zap.Logger
}

func NewTaskAssignedMailHandler(
	sender mailer.Sender,
	deduper Deduper,
	retryCounter RetryCounter,
	dlq DLQPublisher,
	frontendURL string,
	logger *zap.Logger,
) *TaskAssignedMailHandler {
	return &TaskAssignedMailHandler{
		delivery: mailDelivery{
			kind:         "task_assigned",
			routingKey:   mqcontracts.RoutingKeyTaskAssigned,
			sender:       sender,
			deduper:      deduper,
			retryCounter: retryCounter,
			dlq:          dlq,
			maxRetries:   defaultMaxRetries,
			logger:       logger,
		},
		frontendURL: strings.TrimRight(frontendURL, "/"),
		logger:      logger,
	}
}

// WithMaxRetries 覆盖默认重试次数，n <= 0 时忽略
func (h *TaskAssignedMailHandler) WithMaxRetries(n int64) *TaskAssignedMailHandler {
	if n > 0 {
		h.delivery.maxRetries = n
	}
	return h
}

// Handle 消费 task.assigned，通知新的负责人
func (h *TaskAssignedMailHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.TaskAssignedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal task assigned payload", zap.Error(err))
		return h.delivery.toDLQ(ctx, raw, "json_decode_error: "+err.Error())
	}
	if p.EventID == "" || p.AssigneeEmail == "" {
		return h.delivery.toDLQ(ctx, raw, "invalid_payload")
	}

	h.logger.Info("Processing task assigned mail",
		zap.String("event_id", p.EventID),
		zap.Int64("task_id", p.TaskID),
		zap.Int64("assignee_id", p.AssigneeID),
	)

	taskURL := fmt.Sprintf("%s/tasks?taskId=%d", h.frontendURL, p.TaskID)
	msg := mailer.TaskAssigned(p.AssigneeEmail, p.AssigneeName, p.TaskTitle, p.ProjectName, p.AssignedBy, taskURL)
	return h.delivery.deliver(ctx, p.EventID, raw, msg)
}
