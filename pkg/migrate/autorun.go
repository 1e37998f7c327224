package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/labstock-backend/pkg/config"
	"github.com/angelmondragon/labstock-backend/pkg/db"
	"github.com/angelmondragon/labstock-backend/pkg/logger"
)

// MaybeRunDev applies embedded migrations on boot in dev, or whenever
// the store is sqlite and auto-migrate is enabled.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	if !cfg.App.IsDev() && !cfg.DB.IsSQLite() {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "driver": cfg.DB.Driver})
	logg.Info(ctx, "migrate.autorun.start")

	if err := Up(ctx, sqlDB, cfg.DB.Driver); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}

	version, err := Version(ctx, sqlDB, cfg.DB.Driver)
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	logg.Info(logg.WithField(ctx, "version", version), "migrate.autorun.complete")
	return nil
}
