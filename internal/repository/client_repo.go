package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"taskflow/internal/model"
)

type ClientRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewClientRepository(db *pgxpool.Pool, logger *zap.Logger) *ClientRepository {
	return &ClientRepository{db: db, logger: logger}
}

const clientColumns = `c.id, c.name, c.email, c.company, c.phone, c.status, c.user_id, c.created_at, c.updated_at`

func scanClient(row pgx.Row, extra ...any) (*model.Client, error) {
	var c model.Client
	dest := append([]any{
		&c.ID, &c.Name, &c.Email, &c.Company, &c.Phone, &c.Status, &c.UserID, &c.CreatedAt, &c.UpdatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &c, nil
}

// List ownerID 为 nil 时返回全部，附带 owner email 和项目列表
func (r *ClientRepository) List(ctx context.Context, ownerID *int64) ([]model.Client, error) {
	r.logger.Debug("Listing clients", zap.Any("owner_id", ownerID))
	rows, err := r.db.Query(ctx, `
		SELECT `+clientColumns+`, u.email
		FROM clients c
		JOIN users u ON u.id = c.user_id
		WHERE ($1::bigint IS NULL OR c.user_id = $1)
		ORDER BY c.created_at DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	clients := []model.Client{}
	index := map[int64]int{}
	for rows.Next() {
		var ownerEmail string
		c, err := scanClient(rows, &ownerEmail)
		if err != nil {
			return nil, err
		}
		c.User = &model.ClientOwner{Email: ownerEmail}
		c.Projects = []model.ProjectRef{}
		index[c.ID] = len(clients)
		clients = append(clients, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(clients) == 0 {
		return clients, nil
	}

	ids := make([]int64, 0, len(clients))
	for _, c := range clients {
		ids = append(ids, c.ID)
	}
	prows, err := r.db.Query(ctx,
		`SELECT client_id, id, name FROM projects WHERE client_id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	defer prows.Close()
	for prows.Next() {
		var clientID int64
		var p model.ProjectRef
		if err := prows.Scan(&clientID, &p.ID, &p.Name); err != nil {
			return nil, err
		}
		i := index[clientID]
		clients[i].Projects = append(clients[i].Projects, p)
	}
	return clients, prows.Err()
}

// FindByID 不存在时返回 nil, nil
func (r *ClientRepository) FindByID(ctx context.Context, id int64) (*model.Client, error) {
	c, err := scanClient(r.db.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients c WHERE c.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (r *ClientRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM clients WHERE id = $1)`, id).Scan(&ok)
	return ok, err
}

func (r *ClientRepository) Create(ctx context.Context, c *model.Client) error {
	r.logger.Debug("Inserting client", zap.String("email", c.Email), zap.Int64("user_id", c.UserID))
	err := r.db.QueryRow(ctx, `
		INSERT INTO clients (name, email, company, phone, status, user_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`, c.Name, c.Email, c.Company, c.Phone, c.Status, c.UserID).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to insert client", zap.String("email", c.Email), zap.Error(err))
		return err
	}
	r.logger.Info("Client created", zap.Int64("client_id", c.ID))
	return nil
}

// ClientUpdate nil 字段不修改
type ClientUpdate struct {
	Name    *string
	Email   *string
	Company *string
	Phone   *string
	Status  *string
}

func (r *ClientRepository) Update(ctx context.Context, id int64, upd ClientUpdate) (*model.Client, error) {
	var set updateSet
	if upd.Name != nil {
		set.add("name", *upd.Name)
	}
	if upd.Email != nil {
		set.add("email", *upd.Email)
	}
	if upd.Company != nil {
		set.add("company", *upd.Company)
	}
	if upd.Phone != nil {
		set.add("phone", *upd.Phone)
	}
	if upd.Status != nil {
		set.add("status", *upd.Status)
	}
	if !set.empty() {
		query, args := set.sql("clients", id)
		if _, err := r.db.Exec(ctx, query, args...); err != nil {
			r.logger.Error("Failed to update client", zap.Int64("client_id", id), zap.Error(err))
			return nil, err
		}
		r.logger.Info("Client updated", zap.Int64("client_id", id))
	}
	return r.FindByID(ctx, id)
}

func (r *ClientRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM clients WHERE id = $1`, id); err != nil {
		r.logger.Error("Failed to delete client", zap.Int64("client_id", id), zap.Error(err))
		return err
	}
	r.logger.Info("Client deleted", zap.Int64("client_id", id))
	return nil
}

// NextID 当前最大 id + 1，仅用于前端展示
func (r *ClientRepository) NextID(ctx context.Context) (int64, error) {
	var next int64
	err := r.db.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) + 1 FROM clients`).Scan(&next)
	return next, err
}
