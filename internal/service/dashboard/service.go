package dashboard

import (
	"context"

	"taskflow/internal/model"
	"taskflow/pkg/rbac"
)

const feedLimit = 10

type ActivityFeed interface {
	Recent(ctx context.Context, userID *int64, limit int) ([]model.ActivityFeedItem, error)
}

type AssignedTasks interface {
	ListAssignedTo(ctx context.Context, userID int64, limit int) ([]model.MyTask, error)
}

type Service struct {
	activities ActivityFeed
	tasks      AssignedTasks
}

func NewService(activities ActivityFeed, tasks AssignedTasks) *Service {
	return &Service{activities: activities, tasks: tasks}
}

// RecentActivities USER 只看自己的动态
func (s *Service) RecentActivities(ctx context.Context, actor rbac.Actor) ([]model.ActivityFeedItem, error) {
	var userID *int64
	if actor.Role == rbac.RoleUser {
		userID = &actor.ID
	}
	return s.activities.Recent(ctx, userID, feedLimit)
}

func (s *Service) MyTasks(ctx context.Context, actor rbac.Actor) ([]model.MyTask, error) {
	return s.tasks.ListAssignedTo(ctx, actor.ID, feedLimit)
}
