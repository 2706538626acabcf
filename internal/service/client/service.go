package client

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"taskflow/internal/model"
	"taskflow/internal/repository"
	"taskflow/pkg/apperr"
	"taskflow/pkg/db"
	"taskflow/pkg/rbac"
)

const (
	msgNotFound       = "Client not found"
	msgDuplicateEmail = "A client with this email already exists."
)

// Store 由 repository.ClientRepository 实现
type Store interface {
	List(ctx context.Context, ownerID *int64) ([]model.Client, error)
	FindByID(ctx context.Context, id int64) (*model.Client, error)
	Create(ctx context.Context, c *model.Client) error
	Update(ctx context.Context, id int64, upd repository.ClientUpdate) (*model.Client, error)
	Delete(ctx context.Context, id int64) error
	NextID(ctx context.Context) (int64, error)
}

type Service struct {
	clients Store
	logger  *zap.Logger
}

func NewService(clients Store, logger *zap.Logger) *Service {
	return &Service{clients: clients, logger: logger}
}

// List ADMIN/SA 看全部，USER 只看自己的
func (s *Service) List(ctx context.Context, actor rbac.Actor) ([]model.Client, error) {
	var owner *int64
	if !actor.Role.Privileged() {
		owner = &actor.ID
	}
	return s.clients.List(ctx, owner)
}

type CreateInput struct {
	Name    string
	Email   string
	Company *string
	Phone   *string
	Status  string
}

func (s *Service) Create(ctx context.Context, actor rbac.Actor, in CreateInput) (*model.Client, error) {
	c := &model.Client{
		Name:    strings.TrimSpace(in.Name),
		Email:   strings.TrimSpace(in.Email),
		Company: trimOptional(in.Company),
		Phone:   trimOptional(in.Phone),
		Status:  in.Status,
		UserID:  actor.ID,
	}
	if c.Status == "" {
		c.Status = model.StatusActive
	}
	if err := s.clients.Create(ctx, c); err != nil {
		return nil, mapDuplicate(err)
	}
	return c, nil
}

func (s *Service) Update(ctx context.Context, actor rbac.Actor, id int64, upd repository.ClientUpdate) (*model.Client, error) {
	if err := s.ensureOwner(ctx, actor, id); err != nil {
		return nil, err
	}
	if upd.Name != nil {
		upd.Name = trimOptional(upd.Name)
	}
	if upd.Email != nil {
		upd.Email = trimOptional(upd.Email)
	}
	upd.Company = trimOptional(upd.Company)
	upd.Phone = trimOptional(upd.Phone)

	c, err := s.clients.Update(ctx, id, upd)
	if err != nil {
		return nil, mapDuplicate(err)
	}
	return c, nil
}

func (s *Service) Delete(ctx context.Context, actor rbac.Actor, id int64) error {
	if err := s.ensureOwner(ctx, actor, id); err != nil {
		return err
	}
	if err := s.clients.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Client removed", zap.Int64("client_id", id), zap.Int64("actor_id", actor.ID))
	return nil
}

func (s *Service) NextID(ctx context.Context) (int64, error) {
	return s.clients.NextID(ctx)
}

func (s *Service) ensureOwner(ctx context.Context, actor rbac.Actor, id int64) error {
	existing, err := s.clients.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return apperr.NotFound(msgNotFound)
	}
	if !actor.Role.Privileged() && !actor.Owns(existing.UserID) {
		return apperr.Forbidden("Forbidden")
	}
	return nil
}

func mapDuplicate(err error) error {
	if field, ok := db.UniqueViolation(err); ok && field == "email" {
		return apperr.BadRequest(msgDuplicateEmail)
	}
	return err
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
