package app

import (
	"database/sql"
	"fmt"
	"os"

	"cardtime/internal/config"
	"cardtime/internal/db"
	"cardtime/internal/engine"
	"cardtime/internal/migrate"
)

// App bundles the shared wiring used by CLI commands and the server.
type App struct {
	Config *config.Config
	DB     *sql.DB
	Engine engine.Engine
}

// Bootstrap loads config from the workspace, generating a default file on
// first run, then opens the database, applies migrations and builds the
// engine.
func Bootstrap(workspace string) (*App, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		dbFile := db.Path(workspace)
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return nil, err
		}
		if err := os.WriteFile(config.Path(workspace), []byte(config.GenerateDefault(dbFile)), 0o644); err != nil {
			return nil, fmt.Errorf("write default config: %w", err)
		}
		cfg = config.Default(dbFile)
	}
	conn, err := db.Open(db.Config{Path: cfg.DB.Path, Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &App{
		Config: cfg,
		DB:     conn,
		Engine: engine.New(conn, cfg),
	}, nil
}

// Close releases the database handle.
func (a *App) Close() error {
	if a == nil || a.DB == nil {
		return nil
	}
	return a.DB.Close()
}
