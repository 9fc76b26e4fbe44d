package repomanager

import (
	"context"
	"database/sql"

	"github.com/dcarleson/delivd/internal/dbx"
	"github.com/dcarleson/delivd/internal/server/repositories/files"
	"github.com/dcarleson/delivd/internal/server/repositories/projectkeys"
	"github.com/dcarleson/delivd/internal/server/repositories/projects"
)

// RepositoryManager vends repository implementations bound to a DBTX, so
// services can run several repositories inside one transaction.
type RepositoryManager interface {
	RunMigrations(ctx context.Context, db *sql.DB) error
	Projects(db dbx.DBTX) projects.Repository
	Files(db dbx.DBTX) files.Repository
	ProjectKeys(db dbx.DBTX) projectkeys.Repository
}
