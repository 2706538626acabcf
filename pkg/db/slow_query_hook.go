package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"taskflow/pkg/logger"
	"taskflow/pkg/metrics"
	"taskflow/pkg/otel"
)

type queryStateKey struct{}

type queryState struct {
	start time.Time
	sql   string
	span  trace.Span
}

// SlowQueryTracer 慢查询监控 + 每条查询一个 OTel span
type SlowQueryTracer struct {
	logger        *zap.Logger
	slowThreshold time.Duration
}

// NewSlowQueryTracer 创建慢查询 Tracer，阈值默认 100ms
func NewSlowQueryTracer(logger *zap.Logger, slowThreshold time.Duration) *SlowQueryTracer {
	if slowThreshold <= 0 {
		slowThreshold = 100 * time.Millisecond
	}
	return &SlowQueryTracer{
		logger:        logger,
		slowThreshold: slowThreshold,
	}
}

// TraceQueryStart 查询开始时的钩子
func (t *SlowQueryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	ctx, span := otel.DBSpan(ctx, data.SQL)
	return context.WithValue(ctx, queryStateKey{}, &queryState{
		start: time.Now(),
		sql:   data.SQL,
		span:  span,
	})
}

// TraceQueryEnd 查询结束时的钩子
func (t *SlowQueryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	state, ok := ctx.Value(queryStateKey{}).(*queryState)
	if !ok {
		return
	}
	otel.EndDBSpan(state.span, data.Err)

	duration := time.Since(state.start)
	if duration <= t.slowThreshold {
		return
	}

	sql := state.sql
	if len(sql) > 200 {
		sql = sql[:200] + "..."
	}

	logger.WithTrace(ctx, t.logger).Warn("slow-query",
		zap.String("sql", sql),
		zap.Duration("took", duration),
		zap.String("command_tag", data.CommandTag.String()),
	)
	metrics.IncrementSlowQuery(otel.Operation(state.sql), duration)
}
