package mq

import "time"

// routing keys
const (
	RoutingKeyPasswordResetRequested = "auth.password_reset_requested"
	RoutingKeyTaskAssigned           = "task.assigned"
)

// queue names
const (
	QueuePasswordResetMail = "mail.password_reset"
	QueueTaskAssignedMail  = "mail.task_assigned"
)

// PasswordResetRequestedPayload 忘记密码时写入 outbox
type PasswordResetRequestedPayload struct {
	EventID   string    `json:"event_id"`
	TraceID   string    `json:"trace_id,omitempty"`
	UserID    int64     `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	ResetURL  string    `json:"reset_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TaskAssignedPayload 任务指派给他人时写入 outbox
type TaskAssignedPayload struct {
	EventID       string    `json:"event_id"`
	TraceID       string    `json:"trace_id,omitempty"`
	TaskID        int64     `json:"task_id"`
	TaskTitle     string    `json:"task_title"`
	ProjectID     int64     `json:"project_id"`
	ProjectName   string    `json:"project_name,omitempty"`
	AssigneeID    int64     `json:"assignee_id"`
	AssigneeEmail string    `json:"assignee_email"`
	AssigneeName  string    `json:"assignee_name,omitempty"`
	AssignedBy    string    `json:"assigned_by"`
	AssignedAt    time.Time `json:"assigned_at"`
}
