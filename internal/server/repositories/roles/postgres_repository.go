package roles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/flasky/internal/common"
	"github.com/dmitrijs2005/flasky/internal/dbx"
	"github.com/dmitrijs2005/flasky/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*models.Role, error) {
	role := &models.Role{}
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&role.ID, &role.Name, &role.Permissions, &role.Default)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return role, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.Role, error) {
	query :=
		`SELECT id, name, permissions, is_default FROM roles
		 WHERE id = $1
		 `
	return r.getOne(ctx, query, id)
}

func (r *PostgresRepository) GetByName(ctx context.Context, name string) (*models.Role, error) {
	query :=
		`SELECT id, name, permissions, is_default FROM roles
		 WHERE name = $1
		 `
	return r.getOne(ctx, query, name)
}

func (r *PostgresRepository) GetDefault(ctx context.Context) (*models.Role, error) {
	query :=
		`SELECT id, name, permissions, is_default FROM roles
		 WHERE is_default
		 `
	return r.getOne(ctx, query)
}

func (r *PostgresRepository) List(ctx context.Context) ([]*models.Role, error) {
	query :=
		`SELECT id, name, permissions, is_default FROM roles
		 ORDER BY permissions, name
		 `

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Role
	for rows.Next() {
		role := &models.Role{}
		if err := rows.Scan(&role.ID, &role.Name, &role.Permissions, &role.Default); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, role *models.Role) (*models.Role, error) {
	query :=
		`INSERT INTO roles (name, permissions, is_default)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO UPDATE
		 SET permissions = EXCLUDED.permissions, is_default = EXCLUDED.is_default
		 RETURNING id
		 `

	err := r.db.QueryRowContext(ctx, query, role.Name, role.Permissions, role.Default).Scan(&role.ID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return role, nil
}

func (r *PostgresRepository) ClearDefault(ctx context.Context, keep string) error {
	query :=
		`UPDATE roles SET is_default = FALSE
		 WHERE is_default AND name <> $1
		 `

	if _, err := r.db.ExecContext(ctx, query, keep); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
