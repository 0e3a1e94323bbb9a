// Package bootstrap opens the configured ledger store for the binaries.
package bootstrap

import (
	"context"

	"go.uber.org/zap"

	"github.com/sudo-init-do/peerledger/internal/config"
	"github.com/sudo-init-do/peerledger/internal/storage"
	"github.com/sudo-init-do/peerledger/internal/storage/postgres"
	"github.com/sudo-init-do/peerledger/internal/storage/sqlite"
)

// OpenStore connects to the store selected by cfg.StoreDriver.
func OpenStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (storage.Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		logger.Info("using sqlite store", zap.String("path", cfg.SQLitePath))
		return sqlite.Open(cfg.SQLitePath)
	default:
		return postgres.Open(ctx, cfg.DSN(), logger)
	}
}
