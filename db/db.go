package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/hayride-dev/hayride-go/domain/entities"
	domainerrors "github.com/hayride-dev/hayride-go/domain/errors"
	"github.com/hayride-dev/hayride-go/domain/ports"
)

// Defaults for a Connector.
const (
	DefaultMaxRows      = 10000
	DefaultMaxOpenConns = 4
)

type connectorConfig struct {
	logger       *slog.Logger
	drivers      map[Dialect]string
	maxRows      int
	maxOpenConns int
}

func defaultConnectorConfig() connectorConfig {
	return connectorConfig{
		logger: slog.Default(),
		drivers: map[Dialect]string{
			DialectPostgres: postgresDriver,
			DialectSQLite:   sqliteDriver,
		},
		maxRows:      DefaultMaxRows,
		maxOpenConns: DefaultMaxOpenConns,
	}
}

// Option configures a Connector.
type Option func(*connectorConfig)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *connectorConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDriver routes a dialect to a registered database/sql driver name.
func WithDriver(d Dialect, driver string) Option {
	return func(c *connectorConfig) {
		c.drivers[d] = driver
	}
}

// WithMaxRows caps the rows read from one result set.
func WithMaxRows(n int) Option {
	return func(c *connectorConfig) {
		if n > 0 {
			c.maxRows = n
		}
	}
}

// WithMaxOpenConns caps the pool of each connection. SQLite connections
// always use a single pooled connection.
func WithMaxOpenConns(n int) Option {
	return func(c *connectorConfig) {
		if n > 0 {
			c.maxOpenConns = n
		}
	}
}

// Connector opens database connections for guests.
type Connector struct {
	config connectorConfig
}

var _ ports.Database = (*Connector)(nil)

// NewConnector creates a Connector.
func NewConnector(opts ...Option) *Connector {
	cfg := defaultConnectorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Connector{config: cfg}
}

// Open connects to the database dsn names and checks it is reachable.
func (c *Connector) Open(ctx context.Context, dsn string) (ports.DBConnection, error) {
	dialect := DetectDialect(dsn)
	driver, ok := c.config.drivers[dialect]
	if !ok {
		return nil, &domainerrors.DatabaseError{
			Dialect: string(dialect),
			Op:      domainerrors.DBOpConnect,
			Err:     fmt.Errorf("%w: no driver for %s connection strings", domainerrors.ErrUnsupported, dialect),
		}
	}

	source, maxOpen := dsn, c.config.maxOpenConns
	if dialect == DialectSQLite {
		// Every pooled connection to :memory: would be its own database.
		source, maxOpen = sqliteSource(dsn), 1
	}
	handle, err := sql.Open(driver, source)
	if err != nil {
		return nil, &domainerrors.DatabaseError{Dialect: string(dialect), Op: domainerrors.DBOpConnect, Err: err}
	}
	handle.SetMaxOpenConns(maxOpen)
	if err := handle.PingContext(ctx); err != nil {
		_ = handle.Close()
		return nil, &domainerrors.DatabaseError{Dialect: string(dialect), Op: domainerrors.DBOpConnect, Err: err}
	}
	c.config.logger.DebugContext(ctx, "db: connection opened", "dialect", dialect, "driver", driver)
	return &Conn{db: handle, dialect: dialect, maxRows: c.config.maxRows}, nil
}

// Conn is an open database.
type Conn struct {
	db      *sql.DB
	dialect Dialect
	maxRows int
}

func (c *Conn) fail(op string, err error) error {
	return &domainerrors.DatabaseError{Dialect: string(c.dialect), Op: op, Err: err}
}

// Prepare compiles query for repeated use.
func (c *Conn) Prepare(ctx context.Context, query string) (ports.DBStatement, error) {
	stmt, err := c.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, c.fail(domainerrors.DBOpQuery, err)
	}
	return &Stmt{stmt: stmt, conn: c}, nil
}

// Begin starts a transaction at level.
func (c *Conn) Begin(ctx context.Context, level entities.IsolationLevel, readOnly bool) (ports.DBTransaction, error) {
	iso, err := isolation(level)
	if err != nil {
		return nil, c.fail(domainerrors.DBOpTransact, err)
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{Isolation: iso, ReadOnly: readOnly})
	if err != nil {
		return nil, c.fail(domainerrors.DBOpTransact, err)
	}
	return &Tx{tx: tx, conn: c}, nil
}

// Close releases the connection pool.
func (c *Conn) Close() error {
	if err := c.db.Close(); err != nil {
		return c.fail(domainerrors.DBOpClose, err)
	}
	return nil
}

// Stmt is a prepared statement.
type Stmt struct {
	stmt *sql.Stmt
	conn *Conn
}

// Query runs the statement and reads its result set.
func (s *Stmt) Query(ctx context.Context, params []entities.DBValue) (entities.DBRows, error) {
	a, err := args(params)
	if err != nil {
		return entities.DBRows{}, s.conn.fail(domainerrors.DBOpQuery, err)
	}
	rows, err := s.stmt.QueryContext(ctx, a...)
	if err != nil {
		return entities.DBRows{}, s.conn.fail(domainerrors.DBOpQuery, err)
	}
	return s.conn.read(rows)
}

// Execute runs the statement and returns the rows it affected.
func (s *Stmt) Execute(ctx context.Context, params []entities.DBValue) (int64, error) {
	a, err := args(params)
	if err != nil {
		return 0, s.conn.fail(domainerrors.DBOpExecute, err)
	}
	res, err := s.stmt.ExecContext(ctx, a...)
	if err != nil {
		return 0, s.conn.fail(domainerrors.DBOpExecute, err)
	}
	return affected(res), nil
}

// Close releases the statement.
func (s *Stmt) Close() error {
	if err := s.stmt.Close(); err != nil {
		return s.conn.fail(domainerrors.DBOpClose, err)
	}
	return nil
}

// Tx is an open transaction.
type Tx struct {
	tx   *sql.Tx
	conn *Conn
	done atomic.Bool
}

// Query runs query inside the transaction.
func (t *Tx) Query(ctx context.Context, query string, params []entities.DBValue) (entities.DBRows, error) {
	a, err := args(params)
	if err != nil {
		return entities.DBRows{}, t.conn.fail(domainerrors.DBOpQuery, err)
	}
	rows, err := t.tx.QueryContext(ctx, query, a...)
	if err != nil {
		return entities.DBRows{}, t.conn.fail(domainerrors.DBOpQuery, err)
	}
	return t.conn.read(rows)
}

// Execute runs query inside the transaction and returns the rows it
// affected.
func (t *Tx) Execute(ctx context.Context, query string, params []entities.DBValue) (int64, error) {
	a, err := args(params)
	if err != nil {
		return 0, t.conn.fail(domainerrors.DBOpExecute, err)
	}
	res, err := t.tx.ExecContext(ctx, query, a...)
	if err != nil {
		return 0, t.conn.fail(domainerrors.DBOpExecute, err)
	}
	return affected(res), nil
}

// Prepare compiles query inside the transaction. The statement is closed
// with the transaction.
func (t *Tx) Prepare(ctx context.Context, query string) (ports.DBStatement, error) {
	stmt, err := t.tx.PrepareContext(ctx, query)
	if err != nil {
		return nil, t.conn.fail(domainerrors.DBOpQuery, err)
	}
	return &Stmt{stmt: stmt, conn: t.conn}, nil
}

// Commit makes the transaction's changes durable.
func (t *Tx) Commit() error {
	t.done.Store(true)
	if err := t.tx.Commit(); err != nil {
		return t.conn.fail(domainerrors.DBOpTransact, err)
	}
	return nil
}

// Rollback discards the transaction's changes.
func (t *Tx) Rollback() error {
	t.done.Store(true)
	if err := t.tx.Rollback(); err != nil {
		return t.conn.fail(domainerrors.DBOpTransact, err)
	}
	return nil
}

// Close rolls back a transaction that was neither committed nor rolled back.
func (t *Tx) Close() error {
	if t.done.Swap(true) {
		return nil
	}
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return t.conn.fail(domainerrors.DBOpClose, err)
	}
	return nil
}

// read drains rows into a result set of at most maxRows rows.
func (c *Conn) read(rows *sql.Rows) (entities.DBRows, error) {
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return entities.DBRows{}, c.fail(domainerrors.DBOpQuery, err)
	}
	out := entities.DBRows{Columns: cols, Rows: [][]entities.DBValue{}}
	cells := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range cells {
		dest[i] = &cells[i]
	}
	for rows.Next() {
		if len(out.Rows) == c.maxRows {
			out.Truncated = true
			break
		}
		if err := rows.Scan(dest...); err != nil {
			return entities.DBRows{}, c.fail(domainerrors.DBOpQuery, err)
		}
		row := make([]entities.DBValue, len(cells))
		for i, v := range cells {
			row[i] = value(v)
		}
		out.Rows = append(out.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return entities.DBRows{}, c.fail(domainerrors.DBOpQuery, err)
	}
	return out, nil
}

// affected reports RowsAffected, or -1 when the driver cannot tell.
func affected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return -1
	}
	return n
}

func isolation(level entities.IsolationLevel) (sql.IsolationLevel, error) {
	switch level {
	case entities.IsolationDefault:
		return sql.LevelDefault, nil
	case entities.IsolationReadUncommitted:
		return sql.LevelReadUncommitted, nil
	case entities.IsolationReadCommitted:
		return sql.LevelReadCommitted, nil
	case entities.IsolationWriteCommitted:
		return sql.LevelWriteCommitted, nil
	case entities.IsolationRepeatableRead:
		return sql.LevelRepeatableRead, nil
	case entities.IsolationSnapshot:
		return sql.LevelSnapshot, nil
	case entities.IsolationSerializable:
		return sql.LevelSerializable, nil
	case entities.IsolationLinearizable:
		return sql.LevelLinearizable, nil
	}
	return sql.LevelDefault, fmt.Errorf("unknown isolation level %q", level)
}
