package hostfuncs

import (
	"context"
	"fmt"
	"io"

	"github.com/hayride-dev/hayride-go/contract"
	"github.com/hayride-dev/hayride-go/domain/entities"
	"github.com/hayride-dev/hayride-go/domain/ports"
)

// DBOpenRequest names the database to connect to.
type DBOpenRequest struct {
	Name string `json:"name"`
}

// DBHandle names a connection, statement or transaction held by the caller.
type DBHandle struct {
	Handle uint32 `json:"handle"`
}

// DBPrepareRequest prepares Query on the connection or transaction Handle.
type DBPrepareRequest struct {
	Query  string `json:"query"`
	Handle uint32 `json:"handle"`
}

// DBBeginRequest starts a transaction on the connection Handle.
type DBBeginRequest struct {
	Isolation entities.IsolationLevel `json:"isolation,omitempty"`
	Handle    uint32                  `json:"handle"`
	ReadOnly  bool                    `json:"read_only,omitempty"`
}

// DBStatementRequest runs the prepared statement Handle with Params.
type DBStatementRequest struct {
	Params []entities.DBValue `json:"params,omitempty"`
	Handle uint32             `json:"handle"`
}

// DBTransactionRequest runs Query inside the transaction Handle.
type DBTransactionRequest struct {
	Params []entities.DBValue `json:"params,omitempty"`
	Query  string             `json:"query"`
	Handle uint32             `json:"handle"`
}

// DBExecResult reports the rows a statement changed; -1 when unknown.
type DBExecResult struct {
	RowsAffected int64 `json:"rows_affected"`
}

// DBBundle returns the hayride:db functions. Connections, statements and
// transactions are resource handles owned by the calling silo, so a silo
// that ends without closing them releases them anyway.
func DBBundle(database ports.Database, table ResourceTable) HostFuncBundle {
	fn := func(name string) string { return qualify(contract.DB, name) }
	return HandlerSet{
		fn("open"): NewJSONHandlerE(func(ctx context.Context, req DBOpenRequest) (DBHandle, error) {
			conn, err := database.Open(ctx, req.Name)
			if err != nil {
				return DBHandle{}, err
			}
			return attachResource(ctx, table, conn)
		}),
		fn("connection-prepare"): NewJSONHandlerE(func(ctx context.Context, req DBPrepareRequest) (DBHandle, error) {
			conn, err := lookupResource[ports.DBConnection](ctx, table, req.Handle, "connection")
			if err != nil {
				return DBHandle{}, err
			}
			stmt, err := conn.Prepare(ctx, req.Query)
			if err != nil {
				return DBHandle{}, err
			}
			return attachResource(ctx, table, stmt)
		}),
		fn("connection-begin"): NewJSONHandlerE(func(ctx context.Context, req DBBeginRequest) (DBHandle, error) {
			conn, err := lookupResource[ports.DBConnection](ctx, table, req.Handle, "connection")
			if err != nil {
				return DBHandle{}, err
			}
			// database/sql rolls a transaction back when its context ends,
			// and this one outlives the call.
			tx, err := conn.Begin(context.WithoutCancel(ctx), req.Isolation, req.ReadOnly)
			if err != nil {
				return DBHandle{}, err
			}
			return attachResource(ctx, table, tx)
		}),
		fn("statement-query"): NewJSONHandlerE(func(ctx context.Context, req DBStatementRequest) (entities.DBRows, error) {
			stmt, err := lookupResource[ports.DBStatement](ctx, table, req.Handle, "statement")
			if err != nil {
				return entities.DBRows{}, err
			}
			return stmt.Query(ctx, req.Params)
		}),
		fn("statement-execute"): NewJSONHandlerE(func(ctx context.Context, req DBStatementRequest) (DBExecResult, error) {
			stmt, err := lookupResource[ports.DBStatement](ctx, table, req.Handle, "statement")
			if err != nil {
				return DBExecResult{}, err
			}
			n, err := stmt.Execute(ctx, req.Params)
			return DBExecResult{RowsAffected: n}, err
		}),
		fn("transaction-query"): NewJSONHandlerE(func(ctx context.Context, req DBTransactionRequest) (entities.DBRows, error) {
			tx, err := lookupResource[ports.DBTransaction](ctx, table, req.Handle, "transaction")
			if err != nil {
				return entities.DBRows{}, err
			}
			return tx.Query(ctx, req.Query, req.Params)
		}),
		fn("transaction-execute"): NewJSONHandlerE(func(ctx context.Context, req DBTransactionRequest) (DBExecResult, error) {
			tx, err := lookupResource[ports.DBTransaction](ctx, table, req.Handle, "transaction")
			if err != nil {
				return DBExecResult{}, err
			}
			n, err := tx.Execute(ctx, req.Query, req.Params)
			return DBExecResult{RowsAffected: n}, err
		}),
		fn("transaction-prepare"): NewJSONHandlerE(func(ctx context.Context, req DBPrepareRequest) (DBHandle, error) {
			tx, err := lookupResource[ports.DBTransaction](ctx, table, req.Handle, "transaction")
			if err != nil {
				return DBHandle{}, err
			}
			stmt, err := tx.Prepare(ctx, req.Query)
			if err != nil {
				return DBHandle{}, err
			}
			return attachResource(ctx, table, stmt)
		}),
		fn("transaction-commit"): NewJSONHandlerE(func(ctx context.Context, req DBHandle) (Empty, error) {
			tx, err := lookupResource[ports.DBTransaction](ctx, table, req.Handle, "transaction")
			if err != nil {
				return Empty{}, err
			}
			return Empty{}, tx.Commit()
		}),
		fn("transaction-rollback"): NewJSONHandlerE(func(ctx context.Context, req DBHandle) (Empty, error) {
			tx, err := lookupResource[ports.DBTransaction](ctx, table, req.Handle, "transaction")
			if err != nil {
				return Empty{}, err
			}
			return Empty{}, tx.Rollback()
		}),
		// close releases any handle: connection, statement or transaction.
		fn("close"): NewJSONHandlerE(func(ctx context.Context, req DBHandle) (Empty, error) {
			caller, _ := CallerFrom(ctx)
			return Empty{}, table.Detach(caller, req.Handle)
		}),
	}
}

// attachResource hands ownership of r to the calling silo.
func attachResource(ctx context.Context, table ResourceTable, r io.Closer) (DBHandle, error) {
	caller, _ := CallerFrom(ctx)
	h, err := table.Attach(caller, r)
	if err != nil {
		_ = r.Close()
		return DBHandle{}, err
	}
	return DBHandle{Handle: h}, nil
}

// lookupResource resolves a handle of the caller to a resource of type T.
func lookupResource[T any](ctx context.Context, table ResourceTable, handle uint32, kind string) (T, error) {
	var zero T
	caller, _ := CallerFrom(ctx)
	r, err := table.Resource(caller, handle)
	if err != nil {
		return zero, err
	}
	v, ok := r.(T)
	if !ok {
		return zero, fmt.Errorf("handle %d is not a %s", handle, kind)
	}
	return v, nil
}
