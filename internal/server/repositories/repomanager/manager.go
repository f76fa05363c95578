package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/flasky/internal/dbx"
	"github.com/dmitrijs2005/flasky/internal/server/repositories/roles"
	"github.com/dmitrijs2005/flasky/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to either the pool or a
// transaction, so one flow can run several repositories inside dbx.WithTx.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Roles(db dbx.DBTX) roles.Repository
}
