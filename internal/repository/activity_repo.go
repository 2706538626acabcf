package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"taskflow/internal/model"
)

type ActivityRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewActivityRepository(db *pgxpool.Pool, logger *zap.Logger) *ActivityRepository {
	return &ActivityRepository{db: db, logger: logger}
}

func (r *ActivityRepository) Create(ctx context.Context, a *model.Activity) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO activities (user_id, type, message, target_type, target_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, a.UserID, a.Type, a.Message, a.TargetType, a.TargetID).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to insert activity", zap.String("type", a.Type), zap.Error(err))
		return err
	}
	r.logger.Debug("Activity logged", zap.String("type", a.Type), zap.Int64("user_id", a.UserID))
	return nil
}

// Recent userID 为 nil 时返回所有人的动态
func (r *ActivityRepository) Recent(ctx context.Context, userID *int64, limit int) ([]model.ActivityFeedItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT a.id, a.message, a.created_at, u.name, u.email
		FROM activities a JOIN users u ON u.id = a.user_id
		WHERE ($1::bigint IS NULL OR a.user_id = $1)
		ORDER BY a.created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []model.ActivityFeedItem{}
	for rows.Next() {
		var it model.ActivityFeedItem
		if err := rows.Scan(&it.ID, &it.Action, &it.CreatedAt, &it.User.Name, &it.User.Email); err != nil {
			return nil, err
		}
		it.Actor = actorName(it.User)
		items = append(items, it)
	}
	return items, rows.Err()
}

func actorName(u model.ActivityUser) string {
	if u.Name != nil && *u.Name != "" {
		return *u.Name
	}
	if u.Email != "" {
		return u.Email
	}
	return "Unknown"
}
