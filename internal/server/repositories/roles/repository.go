// Package roles declares the role store and its PostgreSQL implementation.
package roles

import (
	"context"

	"github.com/dmitrijs2005/flasky/internal/server/models"
)

// Repository persists roles. Lookups return common.ErrorNotFound when no
// row matches.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*models.Role, error)
	GetByName(ctx context.Context, name string) (*models.Role, error)
	GetDefault(ctx context.Context) (*models.Role, error)
	List(ctx context.Context) ([]*models.Role, error)

	// Upsert inserts the role or updates the existing one with the same
	// name, filling role.ID.
	Upsert(ctx context.Context, role *models.Role) (*models.Role, error)

	// ClearDefault unsets the default flag on every role except keep.
	ClearDefault(ctx context.Context, keep string) error
}
