package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// withTx 在事务中执行 fn，fn 返回错误时回滚
func withTx(ctx context.Context, db *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// updateSet 拼接部分更新的 SET 子句
type updateSet struct {
	cols []string
	args []any
}

func (u *updateSet) add(col string, v any) {
	u.args = append(u.args, v)
	u.cols = append(u.cols, fmt.Sprintf("%s = $%d", col, len(u.args)))
}

func (u *updateSet) empty() bool {
	return len(u.cols) == 0
}

// sql 生成 UPDATE 语句，id 为最后一个参数
func (u *updateSet) sql(table string, id int64) (string, []any) {
	args := append(u.args, id)
	cols := append(u.cols, "updated_at = NOW()")
	return fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", table, strings.Join(cols, ", "), len(args)), args
}
