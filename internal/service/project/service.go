package project

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"taskflow/internal/model"
	"taskflow/internal/repository"
	"taskflow/pkg/apperr"
	"taskflow/pkg/logger"
	"taskflow/pkg/rbac"
)

const msgNotFound = "Project not found"

// Store 由 repository.ProjectRepository 实现
type Store interface {
	List(ctx context.Context, visibleTo *int64) ([]model.Project, error)
	FindByID(ctx context.Context, id int64) (*model.Project, error)
	Access(ctx context.Context, id int64) (*model.ProjectAccess, error)
	Create(ctx context.Context, p *model.Project, assignedUserIDs []int64) error
	Update(ctx context.Context, id int64, upd repository.ProjectUpdate) (*model.Project, error)
	Delete(ctx context.Context, id int64) error
	NextID(ctx context.Context) (int64, error)
}

type ClientChecker interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

type ActivityRecorder interface {
	Create(ctx context.Context, a *model.Activity) error
}

type Service struct {
	projects   Store
	clients    ClientChecker
	activities ActivityRecorder
	logger     *zap.Logger
}

func NewService(projects Store, clients ClientChecker, activities ActivityRecorder, logger *zap.Logger) *Service {
	return &Service{projects: projects, clients: clients, activities: activities, logger: logger}
}

// List USER 只看到自己拥有、被分配或有任务的项目
func (s *Service) List(ctx context.Context, actor rbac.Actor) ([]model.Project, error) {
	var visibleTo *int64
	if !actor.Role.Privileged() {
		visibleTo = &actor.ID
	}
	return s.projects.List(ctx, visibleTo)
}

func (s *Service) Get(ctx context.Context, actor rbac.Actor, id int64) (*model.Project, error) {
	if _, err := s.EnsureAccess(ctx, actor, id); err != nil {
		if appErr, ok := apperr.As(err); ok && appErr.Status == 403 {
			return nil, apperr.Forbidden("Forbidden")
		}
		return nil, err
	}
	p, err := s.projects.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.NotFound(msgNotFound)
	}
	return p, nil
}

// EnsureAccess 项目存在且对操作者可见
func (s *Service) EnsureAccess(ctx context.Context, actor rbac.Actor, id int64) (*model.ProjectAccess, error) {
	access, err := s.projects.Access(ctx, id)
	if err != nil {
		return nil, err
	}
	if access == nil {
		return nil, apperr.NotFound(msgNotFound)
	}
	if !actor.Role.Privileged() && !access.Visible(actor.ID) {
		return nil, apperr.Forbidden("You do not have access to this project.")
	}
	return access, nil
}

type CreateInput struct {
	Name            string
	ClientID        *int64
	Country         *string
	Contact         *string
	Status          *string
	AssignedUserIDs []int64
}

func (s *Service) Create(ctx context.Context, actor rbac.Actor, in CreateInput) (*model.Project, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.BadRequest("Project name is required")
	}
	if err := s.ensureClient(ctx, in.ClientID); err != nil {
		return nil, err
	}

	p := &model.Project{
		Name:     name,
		ClientID: in.ClientID,
		Country:  in.Country,
		Contact:  in.Contact,
		Status:   model.StatusActive,
		UserID:   actor.ID,
	}
	if in.Status != nil {
		p.Status = *in.Status
	}
	if err := s.projects.Create(ctx, p, in.AssignedUserIDs); err != nil {
		return nil, err
	}

	s.record(ctx, actor, model.ActivityProjectCreated, fmt.Sprintf("created project '%s'", p.Name), p.ID)

	created, err := s.projects.FindByID(ctx, p.ID)
	if err != nil || created == nil {
		return p, err
	}
	return created, nil
}

func (s *Service) Update(ctx context.Context, actor rbac.Actor, id int64, upd repository.ProjectUpdate) (*model.Project, error) {
	access, err := s.projects.Access(ctx, id)
	if err != nil {
		return nil, err
	}
	if access == nil {
		return nil, apperr.NotFound(msgNotFound)
	}
	if !actor.Role.Privileged() && !actor.Owns(access.OwnerID) {
		return nil, apperr.Forbidden("You can only edit your own projects.")
	}

	if upd.Name != nil {
		trimmed := strings.TrimSpace(*upd.Name)
		if trimmed == "" {
			return nil, apperr.BadRequest("Project name cannot be empty")
		}
		upd.Name = &trimmed
	}
	if err := s.ensureClient(ctx, upd.ClientID); err != nil {
		return nil, err
	}

	p, err := s.projects.Update(ctx, id, upd)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.NotFound(msgNotFound)
	}
	s.record(ctx, actor, model.ActivityProjectUpdated, fmt.Sprintf("updated project '%s'", p.Name), p.ID)
	return p, nil
}

func (s *Service) Delete(ctx context.Context, actor rbac.Actor, id int64) error {
	access, err := s.projects.Access(ctx, id)
	if err != nil {
		return err
	}
	if access == nil {
		return apperr.NotFound(msgNotFound)
	}
	if !actor.Role.Privileged() && !actor.Owns(access.OwnerID) {
		return apperr.Forbidden("You can only delete your own projects.")
	}
	if access.TaskCount > 0 {
		return apperr.BadRequest("Cannot delete project with existing tasks.")
	}

	if err := s.projects.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actor, model.ActivityProjectDeleted, fmt.Sprintf("deleted project '%s'", access.Name), id)
	return nil
}

func (s *Service) NextID(ctx context.Context) (int64, error) {
	return s.projects.NextID(ctx)
}

func (s *Service) ensureClient(ctx context.Context, clientID *int64) error {
	if clientID == nil {
		return nil
	}
	ok, err := s.clients.Exists(ctx, *clientID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.BadRequest("Client does not exist")
	}
	return nil
}

// record 写动态失败不影响主流程
func (s *Service) record(ctx context.Context, actor rbac.Actor, typ, message string, projectID int64) {
	a := &model.Activity{
		UserID:     actor.ID,
		Type:       typ,
		Message:    message,
		TargetType: model.TargetProject,
		TargetID:   &projectID,
	}
	if err := s.activities.Create(ctx, a); err != nil {
		logger.WithTrace(ctx, s.logger).Warn("Failed to record activity",
			zap.String("type", typ),
			zap.Int64("project_id", projectID),
			zap.Error(err),
		)
	}
}
