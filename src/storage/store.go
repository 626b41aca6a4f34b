package storage

import (
	"fmt"
	"strings"

	"microstructure-cache/src/helpers"
	"microstructure-cache/src/interfaces"
	"microstructure-cache/src/logger"
	"microstructure-cache/src/models"
)

// NewDurableStore picks the backend named by storage.db_type.
func NewDurableStore(cfg *models.MConfig, log *logger.Logger) (interfaces.IDurableStore, error) {
	switch strings.ToLower(cfg.Storage.DBType) {
	case "", "sqlite":
		return NewSQLiteStore(cfg, log), nil
	case "postgres", "postgresql":
		return NewPostgresStore(cfg, log), nil
	default:
		return nil, helpers.NewConfigurationError(fmt.Sprintf("unsupported db_type %q", cfg.Storage.DBType), nil)
	}
}
