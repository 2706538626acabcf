package otel

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// DBSpan 为数据库操作创建 span
func DBSpan(ctx context.Context, query string) (context.Context, trace.Span) {
	operation := Operation(query)
	return Tracer().Start(ctx, "db."+strings.ToLower(operation),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.DBSystemPostgreSQL,
			semconv.DBOperationKey.String(operation),
			semconv.DBStatementKey.String(query),
		),
	)
}

// EndDBSpan 根据错误设置 span 状态，ErrNoRows 不算失败
func EndDBSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Operation 取 SQL 的第一个关键字，如 SELECT / INSERT
func Operation(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "UNKNOWN"
	}
	op := strings.ToUpper(fields[0])
	if op == "WITH" {
		// CTE 取主语句
		for _, f := range fields[1:] {
			switch u := strings.ToUpper(f); u {
			case "SELECT", "INSERT", "UPDATE", "DELETE":
				op = u
			}
		}
	}
	return op
}
