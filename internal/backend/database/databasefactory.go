package database

import (
	"fmt"
	"log/slog"
)

// Supported ledger backends
const (
	TypeSQLite = "sqlite"
	TypeRedis  = "redis"
)

// NewDatabase opens the ledger backend of the given type and makes sure its
// schema exists
func NewDatabase(databaseType, connectionString string) (database DatabaseService, err error) {
	switch databaseType {
	case TypeSQLite:
		database, err = NewSQLiteDatabase(connectionString)
	case TypeRedis:
		database, err = NewRedisDatabase(connectionString)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", databaseType)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s ledger: %w", databaseType, err)
	}

	// Idempotent, required for in-memory SQLite where every open starts empty
	slog.Debug("initializing run ledger", "type", databaseType)
	if err = database.CreateDatabase(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	return database, nil
}
