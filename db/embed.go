// Package db carries the goose migrations for every supported driver.
package db

import (
	"embed"
	"fmt"
)

//go:embed migrations
var Migrations embed.FS

// Dialect maps a database driver name to its goose dialect and the
// migrations directory inside Migrations.
func Dialect(driver string) (dialect, dir string, err error) {
	switch driver {
	case "pgx", "postgres":
		return "postgres", "migrations/postgres", nil
	case "sqlite3", "sqlite":
		return "sqlite3", "migrations/sqlite3", nil
	default:
		return "", "", fmt.Errorf("unsupported database driver %q", driver)
	}
}
