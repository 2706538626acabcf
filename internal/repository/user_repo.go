package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	mqcontracts "taskflow/contracts/mq"
	"taskflow/internal/model"
	"taskflow/pkg/outbox"
	"taskflow/pkg/rbac"
)

type UserRepository struct {
	db     *pgxpool.Pool
	outbox outbox.Inserter
	logger *zap.Logger
}

func NewUserRepository(db *pgxpool.Pool, outboxRepo outbox.Inserter, logger *zap.Logger) *UserRepository {
	return &UserRepository{db: db, outbox: outboxRepo, logger: logger}
}

const userColumns = `id, email, COALESCE(name, ''), COALESCE(password_hash, ''), provider, role, status,
	COALESCE(refresh_token, ''), COALESCE(reset_token, ''), reset_token_exp, created_at, updated_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	var role string
	err := row.Scan(
		&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Provider, &role, &u.Status,
		&u.RefreshToken, &u.ResetToken, &u.ResetTokenExp, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.Role = rbac.Role(role)
	return &u, nil
}

func (r *UserRepository) findOne(ctx context.Context, where string, arg any) (*model.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
}

// FindByEmail 不存在时返回 nil, nil
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	r.logger.Debug("Finding user by email", zap.String("email", email))
	return r.findOne(ctx, "email = $1", email)
}

func (r *UserRepository) FindByID(ctx context.Context, id int64) (*model.User, error) {
	r.logger.Debug("Finding user by id", zap.Int64("user_id", id))
	return r.findOne(ctx, "id = $1", id)
}

func (r *UserRepository) FindByRefreshToken(ctx context.Context, token string) (*model.User, error) {
	return r.findOne(ctx, "refresh_token = $1", token)
}

// FindByResetToken 只返回未过期的 token 对应的用户
func (r *UserRepository) FindByResetToken(ctx context.Context, token string) (*model.User, error) {
	return r.findOne(ctx, "reset_token = $1 AND reset_token_exp > NOW()", token)
}

func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	r.logger.Debug("Inserting user", zap.String("email", u.Email), zap.String("role", string(u.Role)))
	query := `
		INSERT INTO users (email, name, password_hash, provider, role, status)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		u.Email, u.Name, u.PasswordHash, u.Provider, string(u.Role), u.Status,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to insert user", zap.String("email", u.Email), zap.Error(err))
		return err
	}
	r.logger.Info("User created", zap.Int64("user_id", u.ID), zap.String("role", string(u.Role)))
	return nil
}

// SetRefreshToken 空字符串清空
func (r *UserRepository) SetRefreshToken(ctx context.Context, id int64, token string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE users SET refresh_token = NULLIF($1, ''), updated_at = NOW() WHERE id = $2`, token, id)
	return err
}

// SetResetToken 保存重置 token，并在同一事务里写 outbox 事件
func (r *UserRepository) SetResetToken(ctx context.Context, id int64, token string, exp time.Time, event *mqcontracts.PasswordResetRequestedPayload) error {
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE users SET reset_token = $1, reset_token_exp = $2, updated_at = NOW() WHERE id = $3`,
			token, exp, id); err != nil {
			return err
		}
		return outbox.InsertEventInTx(ctx, tx, r.outbox, "user", &id,
			mqcontracts.RoutingKeyPasswordResetRequested, event.EventID, event)
	})
	if err != nil {
		r.logger.Error("Failed to store reset token", zap.Int64("user_id", id), zap.Error(err))
		return err
	}
	r.logger.Info("Reset token stored", zap.Int64("user_id", id), zap.String("event_id", event.EventID))
	return nil
}

// ResetPassword 更新密码并清除 reset / refresh token
func (r *UserRepository) ResetPassword(ctx context.Context, id int64, hash string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE users
		SET password_hash = $1, reset_token = NULL, reset_token_exp = NULL, refresh_token = NULL, updated_at = NOW()
		WHERE id = $2
	`, hash, id)
	if err != nil {
		return err
	}
	r.logger.Info("Password reset", zap.Int64("user_id", id))
	return nil
}

// PurgeExpiredResetTokens 清理过期的重置 token
func (r *UserRepository) PurgeExpiredResetTokens(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE users SET reset_token = NULL, reset_token_exp = NULL
		WHERE reset_token IS NOT NULL AND reset_token_exp <= NOW()
	`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *UserRepository) List(ctx context.Context) ([]model.User, error) {
	r.logger.Debug("Listing users")
	rows, err := r.db.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// UserUpdate nil 字段不修改
type UserUpdate struct {
	Name   *string
	Role   *rbac.Role
	Status *string
}

// ErrLastSA 操作会让系统里不再有 SA
var ErrLastSA = errors.New("last system admin")

// lockSAs 锁住全部 SA 行，id 是仅剩的 SA 时返回 ErrLastSA
func lockSAs(ctx context.Context, tx pgx.Tx, id int64) error {
	rows, err := tx.Query(ctx, `SELECT id FROM users WHERE role = $1 ORDER BY id FOR UPDATE`, string(rbac.RoleSA))
	if err != nil {
		return err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return err
	}
	if len(ids) == 1 && ids[0] == id {
		return ErrLastSA
	}
	return nil
}

// Update 角色改为非 SA 时在同一事务里校验 SA 数量
func (r *UserRepository) Update(ctx context.Context, id int64, upd UserUpdate) (*model.User, error) {
	var set updateSet
	if upd.Name != nil {
		set.add("name", *upd.Name)
	}
	if upd.Role != nil {
		set.add("role", string(*upd.Role))
	}
	if upd.Status != nil {
		set.add("status", *upd.Status)
	}
	if !set.empty() {
		err := withTx(ctx, r.db, func(tx pgx.Tx) error {
			if upd.Role != nil && *upd.Role != rbac.RoleSA {
				if err := lockSAs(ctx, tx, id); err != nil {
					return err
				}
			}
			query, args := set.sql("users", id)
			_, err := tx.Exec(ctx, query, args...)
			return err
		})
		if err != nil {
			if !errors.Is(err, ErrLastSA) {
				r.logger.Error("Failed to update user", zap.Int64("user_id", id), zap.Error(err))
			}
			return nil, err
		}
		r.logger.Info("User updated", zap.Int64("user_id", id))
	}
	return r.FindByID(ctx, id)
}

// Delete 不存在时返回 pgx.ErrNoRows，删除最后一个 SA 时返回 ErrLastSA
func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := lockSAs(ctx, tx, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrLastSA) && !errors.Is(err, pgx.ErrNoRows) {
			r.logger.Error("Failed to delete user", zap.Int64("user_id", id), zap.Error(err))
		}
		return err
	}
	r.logger.Info("User deleted", zap.Int64("user_id", id))
	return nil
}
