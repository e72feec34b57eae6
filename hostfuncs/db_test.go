package hostfuncs

import (
	"io"
	"log/slog"
	"testing"

	"github.com/hayride-dev/hayride-go/db"
	"github.com/hayride-dev/hayride-go/domain/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dbPrefix = "hayride:db/db@0.0.65#"

func newDBRegistry(t *testing.T) (*HandlerRegistry, *memTable) {
	t.Helper()
	table := newMemTable()
	connector := db.NewConnector(db.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	reg, err := NewRegistry(WithBundle(DBBundle(connector, table)))
	require.NoError(t, err)
	return reg, table
}

func textValue(s string) entities.DBValue {
	return entities.DBValue{Type: entities.DBStr, Str: s}
}

// openDB opens an in-memory database for caller with a kv table.
func openDB(t *testing.T, reg *HandlerRegistry, caller string) DBHandle {
	t.Helper()
	var conn DBHandle
	invokeJSON(t, reg, caller, dbPrefix+"open", DBOpenRequest{Name: "sqlite::memory:"}, &conn)
	require.NotZero(t, conn.Handle)

	var stmt DBHandle
	invokeJSON(t, reg, caller, dbPrefix+"connection-prepare", DBPrepareRequest{Handle: conn.Handle, Query: "CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)"}, &stmt)
	var res DBExecResult
	invokeJSON(t, reg, caller, dbPrefix+"statement-execute", DBStatementRequest{Handle: stmt.Handle}, &res)
	return conn
}

func TestDBBundle_Names(t *testing.T) {
	handlers := DBBundle(db.NewConnector(), newMemTable()).Handlers()
	assert.Len(t, handlers, 11)
	for _, fn := range []string{
		"open", "connection-prepare", "connection-begin",
		"statement-query", "statement-execute",
		"transaction-query", "transaction-execute", "transaction-prepare",
		"transaction-commit", "transaction-rollback", "close",
	} {
		assert.Contains(t, handlers, dbPrefix+fn)
	}
}

func TestDBBundle_StatementRoundTrip(t *testing.T) {
	reg, table := newDBRegistry(t)
	conn := openDB(t, reg, "s1")

	var insert DBHandle
	invokeJSON(t, reg, "s1", dbPrefix+"connection-prepare", DBPrepareRequest{Handle: conn.Handle, Query: "INSERT INTO kv (k, v) VALUES (?, ?)"}, &insert)
	var res DBExecResult
	invokeJSON(t, reg, "s1", dbPrefix+"statement-execute", DBStatementRequest{Handle: insert.Handle, Params: []entities.DBValue{textValue("a"), textValue("1")}}, &res)
	assert.Equal(t, int64(1), res.RowsAffected)

	var sel DBHandle
	invokeJSON(t, reg, "s1", dbPrefix+"connection-prepare", DBPrepareRequest{Handle: conn.Handle, Query: "SELECT k, v FROM kv WHERE k = ?"}, &sel)
	var rows entities.DBRows
	invokeJSON(t, reg, "s1", dbPrefix+"statement-query", DBStatementRequest{Handle: sel.Handle, Params: []entities.DBValue{textValue("a")}}, &rows)
	assert.Equal(t, []string{"k", "v"}, rows.Columns)
	assert.Equal(t, [][]entities.DBValue{{textValue("a"), textValue("1")}}, rows.Rows)

	var closed Empty
	invokeJSON(t, reg, "s1", dbPrefix+"close", sel, &closed)
	_, err := table.Resource("s1", sel.Handle)
	assert.Error(t, err)
}

func TestDBBundle_TransactionRollback(t *testing.T) {
	reg, _ := newDBRegistry(t)
	conn := openDB(t, reg, "s1")

	var tx DBHandle
	invokeJSON(t, reg, "s1", dbPrefix+"connection-begin", DBBeginRequest{Handle: conn.Handle}, &tx)
	var res DBExecResult
	invokeJSON(t, reg, "s1", dbPrefix+"transaction-execute", DBTransactionRequest{
		Handle: tx.Handle,
		Query:  "INSERT INTO kv (k, v) VALUES (?, ?)",
		Params: []entities.DBValue{textValue("a"), textValue("1")},
	}, &res)
	assert.Equal(t, int64(1), res.RowsAffected)

	var rows entities.DBRows
	invokeJSON(t, reg, "s1", dbPrefix+"transaction-query", DBTransactionRequest{Handle: tx.Handle, Query: "SELECT k FROM kv"}, &rows)
	assert.Len(t, rows.Rows, 1)

	var done Empty
	invokeJSON(t, reg, "s1", dbPrefix+"transaction-rollback", tx, &done)

	var sel DBHandle
	invokeJSON(t, reg, "s1", dbPrefix+"connection-prepare", DBPrepareRequest{Handle: conn.Handle, Query: "SELECT k FROM kv"}, &sel)
	invokeJSON(t, reg, "s1", dbPrefix+"statement-query", DBStatementRequest{Handle: sel.Handle}, &rows)
	assert.Empty(t, rows.Rows)
}

func TestDBBundle_TransactionCommit(t *testing.T) {
	reg, _ := newDBRegistry(t)
	conn := openDB(t, reg, "s1")

	var tx DBHandle
	invokeJSON(t, reg, "s1", dbPrefix+"connection-begin", DBBeginRequest{Handle: conn.Handle, Isolation: entities.IsolationSerializable}, &tx)
	var stmt DBHandle
	invokeJSON(t, reg, "s1", dbPrefix+"transaction-prepare", DBPrepareRequest{Handle: tx.Handle, Query: "INSERT INTO kv (k, v) VALUES (?, ?)"}, &stmt)
	var res DBExecResult
	invokeJSON(t, reg, "s1", dbPrefix+"statement-execute", DBStatementRequest{Handle: stmt.Handle, Params: []entities.DBValue{textValue("b"), textValue("2")}}, &res)

	var done Empty
	invokeJSON(t, reg, "s1", dbPrefix+"transaction-commit", tx, &done)

	var sel DBHandle
	invokeJSON(t, reg, "s1", dbPrefix+"connection-prepare", DBPrepareRequest{Handle: conn.Handle, Query: "SELECT v FROM kv WHERE k = 'b'"}, &sel)
	var rows entities.DBRows
	invokeJSON(t, reg, "s1", dbPrefix+"statement-query", DBStatementRequest{Handle: sel.Handle}, &rows)
	assert.Equal(t, [][]entities.DBValue{{textValue("2")}}, rows.Rows)
}

func TestDBBundle_HandlesAreScopedToCaller(t *testing.T) {
	reg, _ := newDBRegistry(t)
	conn := openDB(t, reg, "s1")

	var resp ErrorResponse
	invokeJSON(t, reg, "s2", dbPrefix+"connection-prepare", DBPrepareRequest{Handle: conn.Handle, Query: "SELECT 1"}, &resp)
	assert.Equal(t, ErrClassInternal, resp.Error)
}

func TestDBBundle_WrongHandleKind(t *testing.T) {
	reg, _ := newDBRegistry(t)
	conn := openDB(t, reg, "s1")

	var resp ErrorResponse
	invokeJSON(t, reg, "s1", dbPrefix+"transaction-commit", conn, &resp)
	assert.Equal(t, ErrClassInternal, resp.Error)
	assert.Contains(t, resp.Message, "is not a transaction")
}

func TestDBBundle_Errors(t *testing.T) {
	reg, _ := newDBRegistry(t)

	t.Run("unwired dialect", func(t *testing.T) {
		var resp ErrorResponse
		invokeJSON(t, reg, "s1", dbPrefix+"open", DBOpenRequest{Name: "mysql://user@localhost/app"}, &resp)
		assert.Equal(t, ErrClassValidation, resp.Error)
		require.NotNil(t, resp.Detail)
		assert.Equal(t, "connection_failed", resp.Detail.Code)
	})

	t.Run("bad query", func(t *testing.T) {
		conn := openDB(t, reg, "s1")
		var resp ErrorResponse
		invokeJSON(t, reg, "s1", dbPrefix+"connection-prepare", DBPrepareRequest{Handle: conn.Handle, Query: "SELEKT"}, &resp)
		assert.Equal(t, ErrClassInternal, resp.Error)
		require.NotNil(t, resp.Detail)
		assert.Equal(t, entities.ErrorTypeDatabase, resp.Detail.Type)
	})
}
