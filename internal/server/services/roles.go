package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/flasky/internal/dbx"
	"github.com/dmitrijs2005/flasky/internal/logging"
	"github.com/dmitrijs2005/flasky/internal/server/models"
	"github.com/dmitrijs2005/flasky/internal/server/repositories/repomanager"
)

// RoleService keeps the roles table in line with models.DefaultRoles.
type RoleService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	seeds       []models.RoleSeed
	log         logging.Logger
}

func NewRoleService(db *sql.DB, m repomanager.RepositoryManager, log logging.Logger) *RoleService {
	return &RoleService{
		db:          db,
		repomanager: m,
		seeds:       models.DefaultRoles,
		log:         log.With("module", "roles"),
	}
}

// InsertRoles creates missing roles and resets existing ones to the
// canonical permissions and default flag, in one transaction. Running it
// again changes nothing. Roles outside the table are kept but lose the
// default flag.
func (s *RoleService) InsertRoles(ctx context.Context) error {
	var def string
	for _, seed := range s.seeds {
		if seed.Default {
			def = seed.Name
		}
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Roles(tx)

		if err := repo.ClearDefault(ctx, def); err != nil {
			return err
		}
		for _, seed := range s.seeds {
			role := &models.Role{Name: seed.Name, Default: seed.Default}
			role.ResetPermissions()
			role.AddPermission(seed.Permissions)
			if _, err := repo.Upsert(ctx, role); err != nil {
				return fmt.Errorf("role %s: %w", seed.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("error inserting roles: %w", err)
	}

	s.log.Info(ctx, "roles synced", "count", len(s.seeds), "default", def)
	return nil
}

func (s *RoleService) List(ctx context.Context) ([]*models.Role, error) {
	return s.repomanager.Roles(s.db).List(ctx)
}
