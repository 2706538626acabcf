package model

import "time"

const TaskStatusNew = "NEW"

type Task struct {
	ID             int64      `json:"id"`
	Title          string     `json:"title"`
	Description    *string    `json:"description"`
	Done           bool       `json:"done"`
	Status         string     `json:"status"`
	Progress       int        `json:"progress"`
	StartDate      *time.Time `json:"startDate"`
	EndDate        *time.Time `json:"endDate"`
	EstimatedHours *int       `json:"estimatedHours"`
	TimeSpentHours *int       `json:"timeSpentHours"`
	ProjectID      int64      `json:"projectId"`
	ClientID       *int64     `json:"clientId"`
	UserID         int64      `json:"userId"`
	AssigneeID     *int64     `json:"assigneeId"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`

	// 列表接口附带
	Project  *TaskProject `json:"project,omitempty"`
	User     *UserRef     `json:"user,omitempty"`
	Assignee *UserRef     `json:"assignee,omitempty"`
	Client   *ClientRef   `json:"client,omitempty"`
}

type TaskProject struct {
	ID     int64      `json:"id"`
	Name   string     `json:"name"`
	Client *ClientRef `json:"client"`
}

// MyTask dashboard 我的任务
type MyTask struct {
	ID      int64      `json:"id"`
	Title   string     `json:"title"`
	Status  string     `json:"status"`
	Project ProjectRef `json:"project"`
}
