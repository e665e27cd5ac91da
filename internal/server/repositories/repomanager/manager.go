package repomanager

import (
	"context"
	"database/sql"

	"github.com/csiflex/identity/internal/dbx"
	"github.com/csiflex/identity/internal/server/repositories/users"
)

// RepositoryManager vends repository instances bound to a DBTX, so the same
// repository code runs against a plain connection or inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
}
