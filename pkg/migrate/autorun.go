package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/credstock/pkg/config"
	"github.com/angelmondragon/credstock/pkg/db"
	"github.com/angelmondragon/credstock/pkg/logger"
)

// MaybeRun applies the embedded migrations when auto-migrate is on.
// SQLite deployments are a single binary, so the flag is honoured in every environment there;
// Postgres only auto-migrates in dev.
func MaybeRun(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.FeatureFlags.AutoMigrate || (!cfg.DB.IsSQLite() && !cfg.App.IsDev()) {
		return nil
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	dialect := client.Dialect()
	src := EmbeddedSource(dialect)
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "source": src.String(), "dialect": dialect})
	logg.Info(ctx, "applying migrations")
	if err := Run(ctx, sqlDB, dialect, src, "up"); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	logg.Info(ctx, "migrations applied")
	return nil
}
