package db

import (
	// Registers the "pgx" database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"
	// Registers the pure-Go "sqlite" database/sql driver.
	_ "modernc.org/sqlite"
)

// Driver names registered by the imports above.
const (
	postgresDriver = "pgx"
	sqliteDriver   = "sqlite"
)
