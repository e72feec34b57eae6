// Package db gives guests SQL databases through database/sql.
//
// The dialect is read from the connection string: postgres URLs and libpq
// keyword strings go to the pgx driver, sqlite URLs and file paths to the
// pure-Go sqlite driver. Result sets are read fully and capped at a row
// limit before they are handed back, so no cursor outlives a host call.
package db
