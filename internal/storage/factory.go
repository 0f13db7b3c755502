// internal/storage/factory.go
package storage

import (
	"fmt"

	"github.com/linkage-studio/engine/internal/config"
	"github.com/linkage-studio/engine/internal/logging"
	"github.com/linkage-studio/engine/internal/storage/memory"
	"github.com/linkage-studio/engine/internal/storage/postgres"
	sqlitestorage "github.com/linkage-studio/engine/internal/storage/sqlite"
	"github.com/linkage-studio/engine/internal/storage/websocket"
)

// Compile-time interface checks
var (
	_ Backend    = (*memory.Backend)(nil)
	_ Backend    = (*postgres.Backend)(nil)
	_ Backend    = (*sqlitestorage.Backend)(nil)
	_ Backend    = (*websocket.Backend)(nil)
	_ Uploadable = (*memory.Backend)(nil)
)

// NewBackend creates a storage backend based on configuration
func NewBackend(cfg config.StorageConfig, logManager *logging.SlogManager) (Backend, error) {
	switch cfg.Backend {
	case "postgres":
		return postgres.New(logManager), nil
	case "sqlite":
		return sqlitestorage.New(sqlitestorage.Config{
			DumpInterval: cfg.SQLite.DumpInterval,
			DumpPath:     cfg.SQLite.DumpPath,
		}, logManager)
	case "websocket":
		return websocket.New(websocket.Config{
			URL:    cfg.Websocket.Address,
			Secret: cfg.Websocket.Secret,
		}), nil
	case "memory":
		return memory.New(cfg.Memory), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}
