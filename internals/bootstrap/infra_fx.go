package bootstrap

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"schoolfinance_backend/internals/configs"
	database "schoolfinance_backend/internals/databases"
	"schoolfinance_backend/internals/seeds"
)

// InfraModule provides config, the zap logger and the database handle.
var InfraModule = fx.Module("infra",
	fx.Provide(
		provideConfig,
		provideLogger,
		provideDB,
	),
)

func provideConfig() *configs.AppConfig {
	configs.LoadEnv()
	return configs.Load()
}

func provideLogger(cfg *configs.AppConfig) (*zap.Logger, error) {
	return configs.NewLogger(cfg)
}

func provideDB(lc fx.Lifecycle, cfg *configs.AppConfig, log *zap.Logger) (*gorm.DB, error) {
	db, err := database.ConnectDB(cfg, log)
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			return nil, err
		}
		log.Info("✅ schema migrated")
	}
	if cfg.SeedDir != "" {
		if err := seeds.RunAllSeeds(db, log, cfg.SeedDir); err != nil {
			return nil, err
		}
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info("closing database pool")
			return database.Close(db)
		},
	})
	return db, nil
}
