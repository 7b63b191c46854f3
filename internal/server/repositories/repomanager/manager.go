package repomanager

import (
	"context"
	"database/sql"

	"github.com/smartctf/filevault/internal/dbx"
	"github.com/smartctf/filevault/internal/server/repositories/contents"
	"github.com/smartctf/filevault/internal/server/repositories/ownerships"
	"github.com/smartctf/filevault/internal/server/repositories/users"
)

// RepositoryManager vends repository implementations bound to a DBTX, so the
// same repository code runs against *sql.DB and inside transactions.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Contents(db dbx.DBTX) contents.Repository
	Ownerships(db dbx.DBTX) ownerships.Repository
}
