package app

import (
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/prepadmin/internal/store"
	"github.com/aussiebroadwan/prepadmin/internal/store/drivers/memory"
	"github.com/aussiebroadwan/prepadmin/internal/store/drivers/sqlite"
	"github.com/aussiebroadwan/prepadmin/pkg/apiclient"
	"github.com/aussiebroadwan/prepadmin/pkg/cryptox"
)

// openSessionStore returns the configured session store.
//
// Storage modes:
//   - ":memory:": the session lives only as long as the process. Useful for
//     scripts that log in and act in one run.
//   - a file path: the session is kept in SQLite with both tokens sealed by a
//     key derived from the master key, so it survives between runs.
func openSessionStore(cfg Config, logger *slog.Logger) (store.Store, error) {
	if cfg.SessionFile == MemorySession {
		logger.Debug("using in-memory session store")
		return memory.New(apiclient.Session{}), nil
	}

	key, err := cryptox.LoadOrCreateMasterKey(cfg.MasterKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load master key: %w", err)
	}

	sealer, err := cryptox.NewSealer(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token sealer: %w", err)
	}

	db, err := sqlite.NewStore(sqlite.DSN(cfg.SessionFile), sealer)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session database: %w", err)
	}

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply session database migrations: %w", err)
	}

	logger.Debug("session store ready", "path", cfg.SessionFile)
	return db, nil
}
