package ports

import (
	"context"

	"github.com/hayride-dev/hayride-go/domain/entities"
)

// Database opens connections from a connection string.
type Database interface {
	Open(ctx context.Context, dsn string) (DBConnection, error)
}

// DBConnection is an open database. Close releases it.
type DBConnection interface {
	Prepare(ctx context.Context, query string) (DBStatement, error)
	Begin(ctx context.Context, level entities.IsolationLevel, readOnly bool) (DBTransaction, error)
	Close() error
}

// DBStatement is a prepared statement.
type DBStatement interface {
	Query(ctx context.Context, params []entities.DBValue) (entities.DBRows, error)
	Execute(ctx context.Context, params []entities.DBValue) (int64, error)
	Close() error
}

// DBTransaction is an open transaction. Closing an unfinished transaction
// rolls it back.
type DBTransaction interface {
	Query(ctx context.Context, query string, params []entities.DBValue) (entities.DBRows, error)
	Execute(ctx context.Context, query string, params []entities.DBValue) (int64, error)
	Prepare(ctx context.Context, query string) (DBStatement, error)
	Commit() error
	Rollback() error
	Close() error
}
