package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"taskflow/internal/model"
)

type AiResultRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewAiResultRepository(db *pgxpool.Pool, logger *zap.Logger) *AiResultRepository {
	return &AiResultRepository{db: db, logger: logger}
}

func (r *AiResultRepository) Create(ctx context.Context, res *model.AiResult) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO ai_results (type, preview, status) VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, res.Type, res.Preview, res.Status).Scan(&res.ID, &res.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to insert ai result", zap.String("type", res.Type), zap.Error(err))
		return err
	}
	r.logger.Info("AI result stored", zap.Int64("result_id", res.ID), zap.String("type", res.Type), zap.String("status", res.Status))
	return nil
}

func (r *AiResultRepository) List(ctx context.Context, limit int) ([]model.AiResult, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, type, preview, status, created_at FROM ai_results
		ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []model.AiResult{}
	for rows.Next() {
		var res model.AiResult
		if err := rows.Scan(&res.ID, &res.Type, &res.Preview, &res.Status, &res.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// CountByType 各类型的记录数，缺失的类型为 0
func (r *AiResultRepository) CountByType(ctx context.Context) (map[string]int64, error) {
	counts := map[string]int64{
		model.AiTypeSummarize: 0,
		model.AiTypeSentiment: 0,
		model.AiTypeCSV:       0,
	}
	rows, err := r.db.Query(ctx, `SELECT type, COUNT(*) FROM ai_results GROUP BY type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var t string
		var n int64
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		counts[t] = n
	}
	return counts, rows.Err()
}
