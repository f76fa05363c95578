// Package users declares the user store and its PostgreSQL implementation.
package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/flasky/internal/server/models"
)

// Repository persists users. Lookups return common.ErrorNotFound when no row
// matches; writes that break email or username uniqueness return
// common.ErrorAlreadyExists. Emails are compared case-insensitively.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	UpdateLastSeen(ctx context.Context, id string) (time.Time, error)

	// ExistsByEmail reports whether a user other than excludeID owns email.
	// An empty excludeID checks every user.
	ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
}
