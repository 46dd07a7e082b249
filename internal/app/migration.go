package app

import (
	"context"
	"strings"
	"time"

	"github.com/hookdeck/hostnode/internal/config"
	"github.com/hookdeck/hostnode/internal/logging"
	"github.com/hookdeck/hostnode/internal/migrator"
	"go.uber.org/zap"
)

// runMigration applies the registry schema. When several nodes start at
// once, all but one fail on golang-migrate's advisory lock; those retry
// after retryDelay, by which time the schema is usually current.
func runMigration(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	const (
		maxRetries = 3
		retryDelay = 5 * time.Second
	)

	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		m, err := migrator.New(migrator.MigrationOpts{PostgresURL: cfg.PostgresURL})
		if err != nil {
			return err
		}

		version, versionJumped, err := m.Up(ctx)

		if closeErr := m.Close(); closeErr != nil {
			logger.Error("failed to close migrator", zap.Error(closeErr))
		}

		if err == nil {
			if versionJumped > 0 {
				logger.Info("migrations applied",
					zap.Int("version", version),
					zap.Int("version_applied", versionJumped))
			} else {
				logger.Info("no migrations applied", zap.Int("version", version))
			}
			return nil
		}

		lastErr = err
		if !isLockRelatedError(err) {
			logger.Error("migration failed", zap.Error(err))
			return err
		}

		if attempt < maxRetries {
			logger.Warn("migration lock conflict, retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", maxRetries),
				zap.Duration("retry_delay", retryDelay),
				zap.Error(err))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay):
			}
		} else {
			logger.Error("migration failed after retries",
				zap.Int("attempts", maxRetries),
				zap.Error(err))
		}
	}

	return lastErr
}

// isLockRelatedError matches golang-migrate's lock failures: database.ErrLocked
// ("can't acquire lock") and the postgres driver's advisory lock error
// ("try lock failed").
func isLockRelatedError(err error) bool {
	if err == nil {
		return false
	}

	errMsg := err.Error()

	lockIndicators := []string{
		"can't acquire lock",
		"try lock failed",
	}

	for _, indicator := range lockIndicators {
		if strings.Contains(errMsg, indicator) {
			return true
		}
	}

	return false
}
