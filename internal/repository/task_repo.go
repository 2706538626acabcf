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
)

type TaskRepository struct {
	db     *pgxpool.Pool
	outbox outbox.Inserter
	logger *zap.Logger
}

func NewTaskRepository(db *pgxpool.Pool, outboxRepo outbox.Inserter, logger *zap.Logger) *TaskRepository {
	return &TaskRepository{db: db, outbox: outboxRepo, logger: logger}
}

const taskSelect = `
	SELECT t.id, t.title, t.description, t.done, t.status, t.progress, t.start_date, t.end_date,
	       t.estimated_hours, t.time_spent_hours, t.project_id, t.client_id, t.user_id, t.assignee_id,
	       t.created_at, t.updated_at,
	       p.name, pc.id, pc.name, pc.email,
	       COALESCE(u.name, ''), u.email,
	       a.name, a.email,
	       c.name, c.email
	FROM tasks t
	JOIN projects p ON p.id = t.project_id
	LEFT JOIN clients pc ON pc.id = p.client_id
	JOIN users u ON u.id = t.user_id
	LEFT JOIN users a ON a.id = t.assignee_id
	LEFT JOIN clients c ON c.id = t.client_id`

func scanTask(row pgx.Row) (*model.Task, error) {
	var t model.Task
	var projectName string
	var pcID *int64
	var pcName, pcEmail *string
	var creator model.UserRef
	var assigneeName, assigneeEmail, clientName, clientEmail *string

	err := row.Scan(
		&t.ID, &t.Title, &t.Description, &t.Done, &t.Status, &t.Progress, &t.StartDate, &t.EndDate,
		&t.EstimatedHours, &t.TimeSpentHours, &t.ProjectID, &t.ClientID, &t.UserID, &t.AssigneeID,
		&t.CreatedAt, &t.UpdatedAt,
		&projectName, &pcID, &pcName, &pcEmail,
		&creator.Name, &creator.Email,
		&assigneeName, &assigneeEmail,
		&clientName, &clientEmail,
	)
	if err != nil {
		return nil, err
	}

	t.Project = &model.TaskProject{ID: t.ProjectID, Name: projectName}
	if pcID != nil {
		t.Project.Client = &model.ClientRef{ID: *pcID, Name: deref(pcName), Email: deref(pcEmail)}
	}
	creator.ID = t.UserID
	t.User = &creator
	if t.AssigneeID != nil && assigneeEmail != nil {
		t.Assignee = &model.UserRef{ID: *t.AssigneeID, Name: deref(assigneeName), Email: *assigneeEmail}
	}
	if t.ClientID != nil && clientName != nil {
		t.Client = &model.ClientRef{ID: *t.ClientID, Name: *clientName, Email: deref(clientEmail)}
	}
	return &t, nil
}

// TaskFilter VisibleTo 为 nil 表示不过滤；Limit 为 0 表示不分页
type TaskFilter struct {
	VisibleTo *int64
	Limit     int
	Offset    int
}

func (r *TaskRepository) List(ctx context.Context, f TaskFilter) ([]model.Task, error) {
	r.logger.Debug("Listing tasks", zap.Any("visible_to", f.VisibleTo), zap.Int("limit", f.Limit))

	var limit *int
	if f.Limit > 0 {
		limit = &f.Limit
	}
	rows, err := r.db.Query(ctx, taskSelect+`
		WHERE ($1::bigint IS NULL
		   OR t.assignee_id = $1
		   OR t.user_id = $1
		   OR EXISTS (SELECT 1 FROM project_assignees pa WHERE pa.project_id = t.project_id AND pa.user_id = $1))
		ORDER BY t.created_at DESC
		LIMIT $2 OFFSET $3
	`, f.VisibleTo, limit, f.Offset)
	if err != nil {
		r.logger.Error("Failed to query tasks", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	tasks := []model.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// FindByID 不存在时返回 nil, nil
func (r *TaskRepository) FindByID(ctx context.Context, id int64) (*model.Task, error) {
	t, err := scanTask(r.db.QueryRow(ctx, taskSelect+` WHERE t.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

// Create 插入任务；event 不为空时在同一事务写 task.assigned
func (r *TaskRepository) Create(ctx context.Context, t *model.Task, event *mqcontracts.TaskAssignedPayload) error {
	r.logger.Debug("Inserting task",
		zap.String("title", t.Title),
		zap.Int64("project_id", t.ProjectID),
		zap.Int64("user_id", t.UserID),
	)
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO tasks (title, description, status, progress, start_date, end_date,
			                   estimated_hours, time_spent_hours, project_id, client_id, user_id, assignee_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING id, done, created_at, updated_at
		`, t.Title, t.Description, t.Status, t.Progress, t.StartDate, t.EndDate,
			t.EstimatedHours, t.TimeSpentHours, t.ProjectID, t.ClientID, t.UserID, t.AssigneeID,
		).Scan(&t.ID, &t.Done, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			return err
		}
		return r.insertAssigned(ctx, tx, t.ID, event)
	})
	if err != nil {
		r.logger.Error("Failed to insert task", zap.Int64("project_id", t.ProjectID), zap.Error(err))
		return err
	}
	r.logger.Info("Task inserted successfully", zap.Int64("task_id", t.ID), zap.Int64("user_id", t.UserID))
	return nil
}

func (r *TaskRepository) insertAssigned(ctx context.Context, tx pgx.Tx, taskID int64, event *mqcontracts.TaskAssignedPayload) error {
	if event == nil {
		return nil
	}
	event.TaskID = taskID
	if event.AssignedAt.IsZero() {
		event.AssignedAt = time.Now().UTC()
	}
	return outbox.InsertEventInTx(ctx, tx, r.outbox, "task", &taskID,
		mqcontracts.RoutingKeyTaskAssigned, event.EventID, event)
}

// TaskUpdate nil 字段不修改；Clear* 把外键置空
type TaskUpdate struct {
	Title          *string
	Description    *string
	Done           *bool
	Status         *string
	Progress       *int
	StartDate      *time.Time
	EndDate        *time.Time
	EstimatedHours *int
	TimeSpentHours *int
	AssigneeID     *int64
	ClearAssignee  bool
	ClientID       *int64
	ClearClient    bool
}

func (r *TaskRepository) Update(ctx context.Context, id int64, upd TaskUpdate, event *mqcontracts.TaskAssignedPayload) (*model.Task, error) {
	var set updateSet
	if upd.Title != nil {
		set.add("title", *upd.Title)
	}
	if upd.Description != nil {
		set.add("description", *upd.Description)
	}
	if upd.Done != nil {
		set.add("done", *upd.Done)
	}
	if upd.Status != nil {
		set.add("status", *upd.Status)
	}
	if upd.Progress != nil {
		set.add("progress", *upd.Progress)
	}
	if upd.StartDate != nil {
		set.add("start_date", *upd.StartDate)
	}
	if upd.EndDate != nil {
		set.add("end_date", *upd.EndDate)
	}
	if upd.EstimatedHours != nil {
		set.add("estimated_hours", *upd.EstimatedHours)
	}
	if upd.TimeSpentHours != nil {
		set.add("time_spent_hours", *upd.TimeSpentHours)
	}
	switch {
	case upd.ClearAssignee:
		set.add("assignee_id", nil)
	case upd.AssigneeID != nil:
		set.add("assignee_id", *upd.AssigneeID)
	}
	switch {
	case upd.ClearClient:
		set.add("client_id", nil)
	case upd.ClientID != nil:
		set.add("client_id", *upd.ClientID)
	}

	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		if !set.empty() {
			query, args := set.sql("tasks", id)
			if _, err := tx.Exec(ctx, query, args...); err != nil {
				return err
			}
		}
		return r.insertAssigned(ctx, tx, id, event)
	})
	if err != nil {
		r.logger.Error("Failed to update task", zap.Int64("task_id", id), zap.Error(err))
		return nil, err
	}
	r.logger.Info("Task updated", zap.Int64("task_id", id))
	return r.FindByID(ctx, id)
}

func (r *TaskRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id); err != nil {
		r.logger.Error("Failed to delete task", zap.Int64("task_id", id), zap.Error(err))
		return err
	}
	r.logger.Info("Task deleted", zap.Int64("task_id", id))
	return nil
}

// ListAssignedTo dashboard 我的任务
func (r *TaskRepository) ListAssignedTo(ctx context.Context, userID int64, limit int) ([]model.MyTask, error) {
	rows, err := r.db.Query(ctx, `
		SELECT t.id, t.title, t.status, p.id, p.name
		FROM tasks t JOIN projects p ON p.id = t.project_id
		WHERE t.assignee_id = $1
		ORDER BY t.created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []model.MyTask{}
	for rows.Next() {
		var t model.MyTask
		if err := rows.Scan(&t.ID, &t.Title, &t.Status, &t.Project.ID, &t.Project.Name); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
