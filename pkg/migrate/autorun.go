package migrate

import (
	"context"
	"fmt"

	"github.com/groupescapehouses/escape-backend/pkg/config"
	"github.com/groupescapehouses/escape-backend/pkg/db"
	"github.com/groupescapehouses/escape-backend/pkg/db/models"
	"github.com/groupescapehouses/escape-backend/pkg/logger"
)

// MaybeRunDev applies the schema on boot when running in dev with auto-migrate on.
// Postgres runs the goose migrations; sqlite is shaped from the models directly.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "driver": cfg.DB.Driver})

	if cfg.DB.UsesSQLite() {
		logg.Info(ctx, "auto-migrating sqlite schema")
		if err := AutoMigrateModels(client); err != nil {
			return err
		}
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	logg.Info(logg.WithField(ctx, "dir", DefaultDir), "running goose migrations (dev auto-run)")
	if err := Run(ctx, sqlDB, DefaultDir, "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}
	logg.Info(ctx, "goose migrations completed")
	return nil
}

// AutoMigrateModels creates the plan tables from their GORM definitions.
func AutoMigrateModels(client *db.Client) error {
	if err := client.DB().AutoMigrate(&models.Property{}, &models.PlanPurchase{}); err != nil {
		return fmt.Errorf("auto migrate models: %w", err)
	}
	return nil
}
