package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"taskflow/internal/model"
)

type ProjectRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewProjectRepository(db *pgxpool.Pool, logger *zap.Logger) *ProjectRepository {
	return &ProjectRepository{db: db, logger: logger}
}

const projectSelect = `
	SELECT p.id, p.name, p.country, p.contact, p.status, p.client_id, p.user_id, p.created_at, p.updated_at,
	       c.name, c.email
	FROM projects p
	LEFT JOIN clients c ON c.id = p.client_id`

// USER 可见：owner、被分配、或有指派给自己的任务
const projectVisible = `($1::bigint IS NULL
	OR p.user_id = $1
	OR EXISTS (SELECT 1 FROM project_assignees pa WHERE pa.project_id = p.id AND pa.user_id = $1)
	OR EXISTS (SELECT 1 FROM tasks t WHERE t.project_id = p.id AND t.assignee_id = $1))`

func scanProject(row pgx.Row) (*model.Project, error) {
	var p model.Project
	var clientName, clientEmail *string
	err := row.Scan(&p.ID, &p.Name, &p.Country, &p.Contact, &p.Status, &p.ClientID, &p.UserID,
		&p.CreatedAt, &p.UpdatedAt, &clientName, &clientEmail)
	if err != nil {
		return nil, err
	}
	if p.ClientID != nil && clientName != nil {
		p.Client = &model.ClientRef{ID: *p.ClientID, Name: *clientName, Email: deref(clientEmail)}
	}
	p.Tasks = []model.Task{}
	p.AssignedUsers = []model.UserRef{}
	return &p, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// List visibleTo 为 nil 时返回全部
func (r *ProjectRepository) List(ctx context.Context, visibleTo *int64) ([]model.Project, error) {
	r.logger.Debug("Listing projects", zap.Any("visible_to", visibleTo))
	rows, err := r.db.Query(ctx, projectSelect+` WHERE `+projectVisible+` ORDER BY p.created_at DESC`, visibleTo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	projects := []model.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachRelations(ctx, projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// FindByID 不存在时返回 nil, nil
func (r *ProjectRepository) FindByID(ctx context.Context, id int64) (*model.Project, error) {
	p, err := scanProject(r.db.QueryRow(ctx, projectSelect+` WHERE p.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	list := []model.Project{*p}
	if err := r.attachRelations(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

// attachRelations 批量加载任务和成员
func (r *ProjectRepository) attachRelations(ctx context.Context, projects []model.Project) error {
	if len(projects) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(projects))
	index := make(map[int64]int, len(projects))
	for i, p := range projects {
		ids = append(ids, p.ID)
		index[p.ID] = i
	}

	trows, err := r.db.Query(ctx, `
		SELECT id, title, description, done, status, progress, start_date, end_date,
		       estimated_hours, time_spent_hours, project_id, client_id, user_id, assignee_id, created_at, updated_at
		FROM tasks WHERE project_id = ANY($1) ORDER BY created_at DESC
	`, ids)
	if err != nil {
		return err
	}
	defer trows.Close()
	for trows.Next() {
		var t model.Task
		if err := trows.Scan(&t.ID, &t.Title, &t.Description, &t.Done, &t.Status, &t.Progress,
			&t.StartDate, &t.EndDate, &t.EstimatedHours, &t.TimeSpentHours, &t.ProjectID,
			&t.ClientID, &t.UserID, &t.AssigneeID, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return err
		}
		i := index[t.ProjectID]
		projects[i].Tasks = append(projects[i].Tasks, t)
	}
	if err := trows.Err(); err != nil {
		return err
	}

	arows, err := r.db.Query(ctx, `
		SELECT pa.project_id, u.id, COALESCE(u.name, ''), u.email
		FROM project_assignees pa JOIN users u ON u.id = pa.user_id
		WHERE pa.project_id = ANY($1) ORDER BY u.id
	`, ids)
	if err != nil {
		return err
	}
	defer arows.Close()
	for arows.Next() {
		var projectID int64
		var u model.UserRef
		if err := arows.Scan(&projectID, &u.ID, &u.Name, &u.Email); err != nil {
			return err
		}
		i := index[projectID]
		projects[i].AssignedUsers = append(projects[i].AssignedUsers, u)
	}
	return arows.Err()
}

// Access 可见性判断和删除检查所需的信息，不存在时返回 nil, nil
func (r *ProjectRepository) Access(ctx context.Context, id int64) (*model.ProjectAccess, error) {
	var a model.ProjectAccess
	err := r.db.QueryRow(ctx, `
		SELECT p.id, p.name, p.user_id,
		       COALESCE(ARRAY(SELECT user_id FROM project_assignees WHERE project_id = p.id), '{}'),
		       COALESCE(ARRAY(SELECT DISTINCT assignee_id FROM tasks WHERE project_id = p.id AND assignee_id IS NOT NULL), '{}'),
		       (SELECT COUNT(*) FROM tasks WHERE project_id = p.id)
		FROM projects p WHERE p.id = $1
	`, id).Scan(&a.ID, &a.Name, &a.OwnerID, &a.AssignedIDs, &a.AssigneeIDs, &a.TaskCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (r *ProjectRepository) Create(ctx context.Context, p *model.Project, assignedUserIDs []int64) error {
	r.logger.Debug("Inserting project", zap.String("name", p.Name), zap.Int64("user_id", p.UserID))
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
			INSERT INTO projects (name, country, contact, status, client_id, user_id)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, created_at, updated_at
		`, p.Name, p.Country, p.Contact, p.Status, p.ClientID, p.UserID).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return err
		}
		return replaceAssignees(ctx, tx, p.ID, assignedUserIDs)
	})
	if err != nil {
		r.logger.Error("Failed to insert project", zap.String("name", p.Name), zap.Error(err))
		return err
	}
	r.logger.Info("Project created", zap.Int64("project_id", p.ID))
	return nil
}

func replaceAssignees(ctx context.Context, tx pgx.Tx, projectID int64, userIDs []int64) error {
	if _, err := tx.Exec(ctx, `DELETE FROM project_assignees WHERE project_id = $1`, projectID); err != nil {
		return err
	}
	if len(userIDs) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO project_assignees (project_id, user_id)
		SELECT $1, UNNEST($2::bigint[])
		ON CONFLICT DO NOTHING
	`, projectID, userIDs)
	return err
}

// ProjectUpdate nil 字段不修改
type ProjectUpdate struct {
	Name            *string
	ClientID        *int64
	Country         *string
	Contact         *string
	Status          *string
	AssignedUserIDs *[]int64
}

func (r *ProjectRepository) Update(ctx context.Context, id int64, upd ProjectUpdate) (*model.Project, error) {
	var set updateSet
	if upd.Name != nil {
		set.add("name", *upd.Name)
	}
	if upd.ClientID != nil {
		set.add("client_id", *upd.ClientID)
	}
	if upd.Country != nil {
		set.add("country", *upd.Country)
	}
	if upd.Contact != nil {
		set.add("contact", *upd.Contact)
	}
	if upd.Status != nil {
		set.add("status", *upd.Status)
	}

	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		if !set.empty() {
			query, args := set.sql("projects", id)
			if _, err := tx.Exec(ctx, query, args...); err != nil {
				return err
			}
		}
		if upd.AssignedUserIDs != nil {
			return replaceAssignees(ctx, tx, id, *upd.AssignedUserIDs)
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to update project", zap.Int64("project_id", id), zap.Error(err))
		return nil, err
	}
	r.logger.Info("Project updated", zap.Int64("project_id", id))
	return r.FindByID(ctx, id)
}

func (r *ProjectRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id); err != nil {
		r.logger.Error("Failed to delete project", zap.Int64("project_id", id), zap.Error(err))
		return err
	}
	r.logger.Info("Project deleted", zap.Int64("project_id", id))
	return nil
}

func (r *ProjectRepository) NextID(ctx context.Context) (int64, error) {
	var next int64
	err := r.db.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) + 1 FROM projects`).Scan(&next)
	return next, err
}
