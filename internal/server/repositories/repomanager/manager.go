package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/palette/internal/dbx"
	"github.com/dmitrijs2005/palette/internal/server/repositories/credits"
	"github.com/dmitrijs2005/palette/internal/server/repositories/events"
	"github.com/dmitrijs2005/palette/internal/server/repositories/generations"
	"github.com/dmitrijs2005/palette/internal/server/repositories/grants"
	"github.com/dmitrijs2005/palette/internal/server/repositories/stripemirror"
	"github.com/dmitrijs2005/palette/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a connection or a running
// transaction, so services choose the transactional scope.
type RepositoryManager interface {
	RunMigrations(ctx context.Context, db *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Generations(db dbx.DBTX) generations.Repository
	Credits(db dbx.DBTX) credits.Repository
	Events(db dbx.DBTX) events.Repository
	Grants(db dbx.DBTX) grants.Repository
	StripeMirror(db dbx.DBTX) stripemirror.Repository
}
