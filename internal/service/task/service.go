package task

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	mqcontracts "taskflow/contracts/mq"
	"taskflow/internal/model"
	"taskflow/internal/repository"
	"taskflow/pkg/apperr"
	"taskflow/pkg/logger"
	"taskflow/pkg/rbac"
	"taskflow/pkg/trace"
)

const msgNotFound = "Task not found"

// Store 由 repository.TaskRepository 实现
type Store interface {
	List(ctx context.Context, f repository.TaskFilter) ([]model.Task, error)
	FindByID(ctx context.Context, id int64) (*model.Task, error)
	Create(ctx context.Context, t *model.Task, event *mqcontracts.TaskAssignedPayload) error
	Update(ctx context.Context, id int64, upd repository.TaskUpdate, event *mqcontracts.TaskAssignedPayload) (*model.Task, error)
	Delete(ctx context.Context, id int64) error
}

type ProjectAccessor interface {
	Access(ctx context.Context, id int64) (*model.ProjectAccess, error)
}

type UserFinder interface {
	FindByID(ctx context.Context, id int64) (*model.User, error)
}

type ActivityRecorder interface {
	Create(ctx context.Context, a *model.Activity) error
}

type Service struct {
	tasks      Store
	projects   ProjectAccessor
	users      UserFinder
	activities ActivityRecorder
	logger     *zap.Logger
}

func NewService(tasks Store, projects ProjectAccessor, users UserFinder, activities ActivityRecorder, logger *zap.Logger) *Service {
	return &Service{
		tasks:      tasks,
		projects:   projects,
		users:      users,
		activities: activities,
		logger:     logger,
	}
}

// List page 从 1 开始；limit 为 0 时返回全部
func (s *Service) List(ctx context.Context, actor rbac.Actor, page, limit int) ([]model.Task, error) {
	f := repository.TaskFilter{Limit: limit}
	if limit > 0 && page > 1 {
		f.Offset = (page - 1) * limit
	}
	if !actor.Role.Privileged() {
		f.VisibleTo = &actor.ID
	}
	return s.tasks.List(ctx, f)
}

// ensureProjectAccess ADMIN/SA 直接通过；USER 需是项目 owner、成员或任务负责人
func (s *Service) ensureProjectAccess(ctx context.Context, actor rbac.Actor, projectID int64) (*model.ProjectAccess, error) {
	access, err := s.projects.Access(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if access == nil {
		return nil, apperr.NotFound("Project not found")
	}
	if actor.Role.Privileged() || access.Visible(actor.ID) {
		return access, nil
	}
	return nil, apperr.Forbidden("You do not have access to this project.")
}

type CreateInput struct {
	Title          string
	Description    *string
	ProjectID      int64
	ClientID       *int64
	AssigneeID     *int64
	StartDate      *time.Time
	EndDate        *time.Time
	EstimatedHours *int
	TimeSpentHours *int
	Progress       *int
	Status         *string
}

func (s *Service) Create(ctx context.Context, actor rbac.Actor, in CreateInput) (*model.Task, error) {
	project, err := s.ensureProjectAccess(ctx, actor, in.ProjectID)
	if err != nil {
		return nil, err
	}

	t := &model.Task{
		Title:          strings.TrimSpace(in.Title),
		Description:    in.Description,
		Status:         model.TaskStatusNew,
		StartDate:      in.StartDate,
		EndDate:        in.EndDate,
		EstimatedHours: in.EstimatedHours,
		TimeSpentHours: in.TimeSpentHours,
		ProjectID:      in.ProjectID,
		ClientID:       in.ClientID,
		UserID:         actor.ID,
		AssigneeID:     in.AssigneeID,
	}
	if in.Status != nil && *in.Status != "" {
		t.Status = *in.Status
	}
	if in.Progress != nil {
		t.Progress = *in.Progress
	}

	event, err := s.assignmentEvent(ctx, actor, t.Title, project, nil, in.AssigneeID)
	if err != nil {
		return nil, err
	}
	if err := s.tasks.Create(ctx, t, event); err != nil {
		return nil, err
	}

	s.record(ctx, actor, model.ActivityTaskCreated, fmt.Sprintf("created task '%s'", t.Title), t.ID)

	created, err := s.tasks.FindByID(ctx, t.ID)
	if err != nil || created == nil {
		return t, err
	}
	return created, nil
}

type UpdateInput struct {
	Title          *string
	Description    *string
	Done           *bool
	Status         *string
	StartDate      *time.Time
	EndDate        *time.Time
	EstimatedHours *int
	TimeSpentHours *int
	Progress       *int
	AssigneeID     *int64
	ClearAssignee  bool
	ClientID       *int64
	ClearClient    bool
}

func (s *Service) Update(ctx context.Context, actor rbac.Actor, id int64, in UpdateInput) (*model.Task, error) {
	existing, err := s.tasks.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, apperr.NotFound(msgNotFound)
	}
	project, err := s.ensureProjectAccess(ctx, actor, existing.ProjectID)
	if err != nil {
		return nil, err
	}
	if !actor.Role.Privileged() && !assignedTo(existing, actor.ID) {
		return nil, apperr.Forbidden("You can only edit your own tasks.")
	}

	upd := repository.TaskUpdate{
		Title:          in.Title,
		Description:    in.Description,
		Done:           in.Done,
		Status:         in.Status,
		Progress:       in.Progress,
		StartDate:      in.StartDate,
		EndDate:        in.EndDate,
		EstimatedHours: in.EstimatedHours,
		TimeSpentHours: in.TimeSpentHours,
		AssigneeID:     in.AssigneeID,
		ClearAssignee:  in.ClearAssignee,
		ClientID:       in.ClientID,
		ClearClient:    in.ClearClient,
	}

	title := existing.Title
	if in.Title != nil {
		title = *in.Title
	}
	var event *mqcontracts.TaskAssignedPayload
	if !in.ClearAssignee {
		event, err = s.assignmentEvent(ctx, actor, title, project, existing.AssigneeID, in.AssigneeID)
		if err != nil {
			return nil, err
		}
	}

	t, err := s.tasks.Update(ctx, id, upd, event)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, apperr.NotFound(msgNotFound)
	}
	s.record(ctx, actor, model.ActivityTaskUpdated, fmt.Sprintf("updated task '%s' to status %s", t.Title, t.Status), t.ID)
	return t, nil
}

func (s *Service) Delete(ctx context.Context, actor rbac.Actor, id int64) error {
	existing, err := s.tasks.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return apperr.NotFound(msgNotFound)
	}
	if _, err := s.ensureProjectAccess(ctx, actor, existing.ProjectID); err != nil {
		return err
	}
	if !actor.Role.Privileged() && !assignedTo(existing, actor.ID) {
		return apperr.Forbidden("You can only delete your own tasks.")
	}

	if err := s.tasks.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actor, model.ActivityTaskDeleted, fmt.Sprintf("deleted task '%s'", existing.Title), id)
	return nil
}

// assignmentEvent 负责人变化且不是自己时生成 task.assigned 事件
func (s *Service) assignmentEvent(ctx context.Context, actor rbac.Actor, title string, project *model.ProjectAccess, previous, next *int64) (*mqcontracts.TaskAssignedPayload, error) {
	if next == nil || *next == actor.ID {
		return nil, nil
	}
	if previous != nil && *previous == *next {
		return nil, nil
	}

	assignee, err := s.users.FindByID(ctx, *next)
	if err != nil {
		return nil, err
	}
	if assignee == nil {
		return nil, apperr.BadRequest("Assignee does not exist")
	}

	assignedBy := actor.Name
	if assignedBy == "" {
		assignedBy = actor.Email
	}
	return &mqcontracts.TaskAssignedPayload{
		EventID:       uuid.NewString(),
		TraceID:       trace.FromContext(ctx),
		TaskTitle:     title,
		ProjectID:     project.ID,
		ProjectName:   project.Name,
		AssigneeID:    assignee.ID,
		AssigneeEmail: assignee.Email,
		AssigneeName:  assignee.Name,
		AssignedBy:    assignedBy,
	}, nil
}

func (s *Service) record(ctx context.Context, actor rbac.Actor, typ, message string, taskID int64) {
	a := &model.Activity{
		UserID:     actor.ID,
		Type:       typ,
		Message:    message,
		TargetType: model.TargetTask,
		TargetID:   &taskID,
	}
	if err := s.activities.Create(ctx, a); err != nil {
		logger.WithTrace(ctx, s.logger).Warn("Failed to record activity",
			zap.String("type", typ),
			zap.Int64("task_id", taskID),
			zap.Error(err),
		)
	}
}

func assignedTo(t *model.Task, userID int64) bool {
	return t.AssigneeID != nil && *t.AssigneeID == userID
}
