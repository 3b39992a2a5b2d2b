// Package cli holds the startup plumbing shared by the binaries:
// logging, .env and config loading, storage and export wiring, and
// graceful shutdown. Each helper either succeeds or exits the process;
// past this package, construction errors no longer exist.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"outlay/internal/config"
	"outlay/internal/export"
	"outlay/internal/export/google"
	"outlay/internal/export/memory"
	"outlay/internal/log"
	"outlay/internal/storage"
)

// Setup loads the optional .env file, builds the process logger and
// loads and validates configuration. The returned logger carries the
// app component; subsystems re-tag it with WithComponent.
func Setup() (*config.Config, *log.Logger) {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := log.New(log.Config{Level: log.ParseLevel(cfg.LogLevel)})
	log.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("configuration invalid", log.FieldError, err.Error())
		os.Exit(1)
	}
	return cfg, logger.WithComponent(log.ComponentApp)
}

// OpenStorage opens the SQLite repository, running migrations, or exits.
func OpenStorage(cfg *config.Config, logger *log.Logger) *storage.SQLiteRepository {
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("open storage",
			"path", cfg.SQLiteDBPath,
			log.FieldError, err.Error())
		os.Exit(1)
	}
	return repo
}

// NewExportDestination builds the configured export destination. A nil
// destination with a nil error means exporting is off.
func NewExportDestination(ctx context.Context, cfg *config.Config, logger *log.Logger) (export.Destination, error) {
	switch cfg.ExportBackend {
	case "", export.BackendNone:
		return nil, nil
	case export.BackendMemory:
		logger.Warn("using in-memory export destination, exported rows do not survive restarts")
		return memory.New(), nil
	case export.BackendSheets:
		return google.New(ctx, google.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetBaseName:   cfg.GoogleSheetName,
			OAuthClientJSON: cfg.GoogleOAuthClientJSON,
			OAuthClientFile: cfg.GoogleOAuthClientFile,
			OAuthTokenJSON:  cfg.GoogleOAuthTokenJSON,
			OAuthTokenFile:  cfg.GoogleOAuthTokenFile,
		})
	default:
		// Validate rejects unknown backends before we get here.
		return nil, nil
	}
}

// NotifyShutdown returns a context cancelled on SIGINT or SIGTERM.
func NotifyShutdown() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// ShutdownTimeout bounds how long cleanup may take once a shutdown
// signal arrives.
const ShutdownTimeout = 30 * time.Second
