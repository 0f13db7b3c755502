// Package postgres implements the storage.Backend interface on PostgreSQL with
// PostGIS geometry columns. It wraps the GORM backend via composition; the
// only postgres-specific concern is dialing and validating the connection.
package postgres

import (
	"fmt"

	"github.com/linkage-studio/engine/internal/database"
	"github.com/linkage-studio/engine/internal/logging"
	gormstorage "github.com/linkage-studio/engine/internal/storage/gorm"
)

// Backend wraps the GORM backend with a postgres connection dialed at Init.
type Backend struct {
	*gormstorage.Backend
}

// New creates a new postgres storage backend. The connection is not
// established until Init.
func New(logManager *logging.SlogManager) *Backend {
	return &Backend{
		Backend: gormstorage.New(gormstorage.Dependencies{
			LogManager: logManager,
		}),
	}
}

// Init dials postgres, validates the connection, and initializes the
// embedded GORM backend (schema migration plus the DB writer goroutine).
func (b *Backend) Init() error {
	db, err := database.GetPostgresDBStandalone()
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	if err = sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to validate connection: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)

	b.AttachDB(db)
	return b.Backend.Init()
}
