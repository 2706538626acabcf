package user

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"taskflow/internal/model"
	"taskflow/internal/repository"
	"taskflow/pkg/apperr"
	"taskflow/pkg/db"
	"taskflow/pkg/rbac"
	"taskflow/pkg/util"
)

const msgNotFound = "User not found"

// Store 由 repository.UserRepository 实现
type Store interface {
	List(ctx context.Context) ([]model.User, error)
	FindByID(ctx context.Context, id int64) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	Create(ctx context.Context, u *model.User) error
	Update(ctx context.Context, id int64, upd repository.UserUpdate) (*model.User, error)
	SetRefreshToken(ctx context.Context, id int64, token string) error
	Delete(ctx context.Context, id int64) error
}

type Service struct {
	users  Store
	logger *zap.Logger
}

func NewService(users Store, logger *zap.Logger) *Service {
	return &Service{users: users, logger: logger}
}

func (s *Service) List(ctx context.Context, actor rbac.Actor) ([]model.User, error) {
	if !actor.Role.Privileged() {
		return nil, apperr.Forbidden("Forbidden")
	}
	return s.users.List(ctx)
}

func (s *Service) Get(ctx context.Context, id int64) (*model.User, error) {
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperr.NotFound(msgNotFound)
	}
	return u, nil
}

// CreateInput 管理员创建账号
type CreateInput struct {
	Name     string
	Email    string
	Password string
	Role     rbac.Role
	Status   string
}

func (s *Service) Create(ctx context.Context, actor rbac.Actor, in CreateInput) (*model.User, error) {
	if !actor.Role.Privileged() {
		return nil, apperr.Forbidden("Forbidden")
	}
	if in.Role == "" {
		in.Role = rbac.RoleUser
	}
	if in.Status == "" {
		in.Status = model.StatusActive
	}
	if in.Role == rbac.RoleSA && !actor.IsSA() {
		return nil, apperr.Forbidden("Only SA can create SA users")
	}

	email := strings.ToLower(strings.TrimSpace(in.Email))
	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.BadRequest("Email already exists")
	}

	hash, err := util.HashPassword(in.Password)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	u := &model.User{
		Name:         strings.TrimSpace(in.Name),
		Email:        email,
		PasswordHash: hash,
		Provider:     model.ProviderLocal,
		Role:         in.Role,
		Status:       in.Status,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if _, dup := db.UniqueViolation(err); dup {
			return nil, apperr.BadRequest("Email already exists")
		}
		return nil, err
	}
	s.logger.Info("User created by admin",
		zap.Int64("user_id", u.ID),
		zap.Int64("actor_id", actor.ID),
		zap.String("role", string(u.Role)),
	)
	return u, nil
}

// loadEditable 非 SA 不能修改 SA 账号
func (s *Service) loadEditable(ctx context.Context, actor rbac.Actor, id int64) (*model.User, error) {
	if !actor.Role.Privileged() {
		return nil, apperr.Forbidden("Forbidden")
	}
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperr.NotFound(msgNotFound)
	}
	if u.Role == rbac.RoleSA && !actor.IsSA() {
		return nil, apperr.Forbidden("Only SA can modify SA users")
	}
	return u, nil
}

const (
	msgLastSADemote = "Cannot demote the last system admin"
	msgLastSADelete = "Cannot delete the last Super Admin"
)

// update 写入变更，停用账号时清掉 refresh token
func (s *Service) update(ctx context.Context, id int64, upd repository.UserUpdate) (*model.User, error) {
	u, err := s.users.Update(ctx, id, upd)
	if err != nil {
		if errors.Is(err, repository.ErrLastSA) {
			return nil, apperr.BadRequest(msgLastSADemote)
		}
		return nil, err
	}
	if upd.Status != nil && *upd.Status == model.StatusInactive {
		if err := s.users.SetRefreshToken(ctx, id, ""); err != nil {
			return nil, err
		}
	}
	return u, nil
}

// Update name / role / status 的部分更新
func (s *Service) Update(ctx context.Context, actor rbac.Actor, id int64, upd repository.UserUpdate) (*model.User, error) {
	target, err := s.loadEditable(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if upd.Role != nil && *upd.Role != target.Role {
		if !actor.IsSA() {
			return nil, apperr.Forbidden("Only SA can change roles")
		}
		if actor.ID == id {
			return nil, apperr.BadRequest("You cannot change your own role")
		}
	}
	return s.update(ctx, id, upd)
}

func (s *Service) UpdateStatus(ctx context.Context, actor rbac.Actor, id int64, status string) (*model.User, error) {
	if _, err := s.loadEditable(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.update(ctx, id, repository.UserUpdate{Status: &status})
}

func (s *Service) ChangeRole(ctx context.Context, actor rbac.Actor, id int64, role rbac.Role) (*model.User, error) {
	if !actor.IsSA() {
		return nil, apperr.Forbidden("Forbidden")
	}
	if actor.ID == id {
		return nil, apperr.BadRequest("You cannot change your own role")
	}
	target, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, apperr.NotFound(msgNotFound)
	}
	u, err := s.update(ctx, id, repository.UserUpdate{Role: &role})
	if err != nil {
		return nil, err
	}
	s.logger.Info("User role changed",
		zap.Int64("user_id", id),
		zap.String("from", string(target.Role)),
		zap.String("to", string(role)),
		zap.Int64("actor_id", actor.ID),
	)
	return u, nil
}

func (s *Service) Delete(ctx context.Context, actor rbac.Actor, id int64) error {
	if !actor.IsSA() {
		return apperr.Forbidden("Forbidden")
	}
	if actor.ID == id {
		return apperr.BadRequest("You cannot delete yourself")
	}
	target, err := s.users.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if target == nil {
		return apperr.NotFound(msgNotFound)
	}
	if err := s.users.Delete(ctx, id); err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return apperr.NotFound(msgNotFound)
		case errors.Is(err, repository.ErrLastSA):
			return apperr.BadRequest(msgLastSADelete)
		}
		return err
	}
	s.logger.Info("User deleted", zap.Int64("user_id", id), zap.Int64("actor_id", actor.ID))
	return nil
}
