// Package bootstrap initializes shared infrastructure before the bot runs:
// the logger and the credential store backend given by configuration.
package bootstrap

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/aprizal/myxl-bot/auth"
	coreconfig "github.com/aprizal/myxl-bot/core/config"
	coredatabase "github.com/aprizal/myxl-bot/core/database"
	"github.com/aprizal/myxl-bot/core/logger"
)

// Options control the bootstrap pipeline.
type Options struct {
	Config *coreconfig.Config

	LoggerInit func(*coreconfig.Config) error
	Connect    func(coreconfig.DatabaseConfig) (*sqlx.DB, error)
	Migrate    func(coreconfig.DatabaseConfig) error
}

// Result exposes infrastructure initialized by the bootstrap pipeline. DB is
// nil when the file backend is selected.
type Result struct {
	Store auth.Store
	DB    *sqlx.DB
}

// Run initializes the logger and opens the configured credential store.
func Run(opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}
	cfg := opts.Config

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(cfg); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	switch cfg.Store.Backend {
	case coreconfig.StoreBackendPostgres:
		connect := opts.Connect
		if connect == nil {
			connect = coredatabase.Connect
		}
		db, err := connect(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
		}

		migrate := opts.Migrate
		if migrate == nil {
			migrate = coredatabase.RunMigrations
		}
		if err := migrate(cfg.Database); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
		}

		store, err := auth.NewPGStore(db)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("bootstrap: store init failed: %w", err)
		}
		return &Result{Store: store, DB: db}, nil

	default:
		store, err := auth.NewFileStore(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: store init failed: %w", err)
		}
		return &Result{Store: store}, nil
	}
}
