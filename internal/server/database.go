package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/claims-processor/internal/common"
	repo "github.com/joseph-ayodele/claims-processor/internal/repository"
)

// ConnectDB opens the configured database, pings it and creates the claim tables.
// An empty DSN yields an in-memory sqlite database.
func ConnectDB(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*repo.DB, error) {
	db, err := repo.Connect(ctx, repo.Config{
		DSN:              cfg.DSN,
		MaxConns:         cfg.MaxConns,
		MinConns:         cfg.MinConns,
		MaxConnLifetime:  cfg.MaxConnLifetime,
		MaxConnIdleTime:  cfg.MaxConnIdleTime,
		DialTimeout:      cfg.DialTimeout,
		StatementTimeout: cfg.StatementTimeout,
	}, logger)
	if err != nil {
		return nil, common.NewAppError("DATABASE_ERROR", "failed to connect to database", err)
	}

	if err := PingDB(ctx, db, logger, cfg.DialTimeout); err != nil {
		db.Close(logger)
		return nil, common.NewAppError("DATABASE_ERROR", "database ping failed", err)
	}
	if err := repo.Migrate(ctx, db); err != nil {
		logger.Error("failed to migrate database", "error", err)
		db.Close(logger)
		return nil, common.NewAppError("DATABASE_ERROR", "failed to migrate database", err)
	}
	return db, nil
}

// PingDB pings the database to ensure it's responsive
func PingDB(ctx context.Context, db *repo.DB, logger *slog.Logger, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return repo.HealthCheck(ctx, db, timeout, logger)
}
