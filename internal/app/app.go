// Package app wires config, storage and the engine into one runtime shared by
// the CLI and the HTTP server.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"cleanops/internal/config"
	"cleanops/internal/db"
	"cleanops/internal/engine"
	"cleanops/internal/migrate"
)

type App struct {
	Config *config.Config
	DB     *sql.DB
	Engine engine.Engine
	Logger *slog.Logger
}

// Open opens the database named by cfg, brings its schema to the latest
// version and builds an engine on top of it.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := db.Open(db.Config{
		Path:         cfg.Database.Path,
		BusyTimeout:  cfg.Database.BusyTimeout,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	version, err := migrate.Migrate(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Debug("database ready", "path", cfg.Database.Path, "schema_version", version)
	eng := engine.New(conn, cfg)
	eng.Logger = logger
	return &App{Config: cfg, DB: conn, Engine: eng, Logger: logger}, nil
}

func (a *App) Close() error {
	if a == nil || a.DB == nil {
		return nil
	}
	return a.DB.Close()
}
