package model

import "time"

const (
	ActivityProjectCreated = "PROJECT_CREATED"
	ActivityProjectUpdated = "PROJECT_UPDATED"
	ActivityProjectDeleted = "PROJECT_DELETED"
	ActivityTaskCreated    = "TASK_CREATED"
	ActivityTaskUpdated    = "TASK_UPDATED"
	ActivityTaskDeleted    = "TASK_DELETED"

	TargetProject = "PROJECT"
	TargetTask    = "TASK"
)

type Activity struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"userId"`
	Type       string    `json:"type"`
	Message    string    `json:"message"`
	TargetType string    `json:"targetType"`
	TargetID   *int64    `json:"targetId"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ActivityFeedItem recent-activities 返回的条目
type ActivityFeedItem struct {
	ID        int64        `json:"id"`
	Actor     string       `json:"actor"`
	Action    string       `json:"action"`
	CreatedAt time.Time    `json:"createdAt"`
	User      ActivityUser `json:"user"`
}

type ActivityUser struct {
	Name  *string `json:"name"`
	Email string  `json:"email"`
}
