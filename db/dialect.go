package db

import (
	"net/url"
	"strings"
)

// Dialect is the database family a connection string addresses.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
	DialectMySQL    Dialect = "mysql"
	DialectUnknown  Dialect = "unknown"
)

// libpqKeys are keywords that mark a libpq "key=value" connection string.
var libpqKeys = map[string]bool{
	"user": true, "password": true, "host": true, "port": true,
	"dbname": true, "application_name": true, "sslmode": true, "options": true,
}

// DetectDialect classifies a connection string. URL schemes decide first;
// anything else falls back to shape: sqlite paths and in-memory names,
// libpq keyword strings, and Go-style MySQL DSNs.
func DetectDialect(dsn string) Dialect {
	s := strings.TrimSpace(dsn)
	if u, err := url.Parse(s); err == nil && u.Scheme != "" {
		switch strings.ToLower(u.Scheme) {
		case "postgres", "postgresql":
			return DialectPostgres
		case "mysql", "mariadb", "mysqlx":
			return DialectMySQL
		case "sqlite", "file":
			return DialectSQLite
		}
	}
	return detectByShape(s)
}

func detectByShape(s string) Dialect {
	lower := strings.ToLower(s)
	if lower == "sqlite::memory:" || lower == ":memory:" || strings.HasPrefix(lower, "file::memory:") {
		return DialectSQLite
	}
	windowsPath := len(s) > 2 && s[1] == ':' && strings.Contains(s, `\`)
	pathLike := strings.HasPrefix(s, "./") || strings.HasPrefix(s, "../") || strings.HasPrefix(s, "/") || windowsPath
	for _, ext := range []string{".db", ".sqlite", ".sqlite3"} {
		if strings.HasSuffix(lower, ext) {
			return DialectSQLite
		}
	}
	if pathLike {
		return DialectSQLite
	}
	if looksLikeLibpq(s) {
		return DialectPostgres
	}
	if strings.Contains(lower, "@tcp(") && strings.Contains(lower, ")/") {
		return DialectMySQL
	}
	return DialectUnknown
}

// looksLikeLibpq reports whether s is a space-separated key=value list.
// Unknown keys still count; a known key settles it early.
func looksLikeLibpq(s string) bool {
	hasPair := false
	for _, tok := range strings.Fields(s) {
		k, _, ok := strings.Cut(tok, "=")
		if !ok {
			continue
		}
		if libpqKeys[strings.ToLower(k)] {
			return true
		}
		hasPair = true
	}
	return hasPair
}

// sqliteSource turns a sqlite connection string into the form the driver
// opens: sqlite:// URLs lose their scheme and the in-memory alias becomes
// ":memory:". file: URIs pass through.
func sqliteSource(dsn string) string {
	s := strings.TrimSpace(dsn)
	lower := strings.ToLower(s)
	switch {
	case lower == "sqlite::memory:":
		return ":memory:"
	case strings.HasPrefix(lower, "sqlite://"):
		return s[len("sqlite://"):]
	case strings.HasPrefix(lower, "sqlite:"):
		return s[len("sqlite:"):]
	}
	return s
}
