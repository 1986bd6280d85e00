package database

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"schoolfinance_backend/internals/configs"
)

// ConnectDB opens the configured driver. Postgres is the production store;
// sqlite is for local runs and tests (row locks are no-ops there, the
// single connection serializes writers instead).
func ConnectDB(cfg *configs.AppConfig, log *zap.Logger) (*gorm.DB, error) {
	gcfg := &gorm.Config{
		Logger:  configs.NewGormLogger(log, cfg.SlowQueryThreshold),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}

	switch strings.ToLower(cfg.DBDriver) {
	case "sqlite":
		log.Info("🔌 connecting to sqlite", zap.String("dsn", cfg.SQLitePath))
		db, err := OpenSQLite(cfg.SQLitePath, gcfg)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		log.Info("🔌 connecting to postgres", zap.String("host", cfg.DBHost), zap.String("db", cfg.DBName))
		db, err := gorm.Open(postgres.New(postgres.Config{
			DSN:                  postgresDSN(cfg),
			PreferSimpleProtocol: true, // PgBouncer transaction pooling
		}), gcfg)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		TunePool(db)
		return db, nil
	}
}

func postgresDSN(cfg *configs.AppConfig) string {
	if cfg.DatabaseURL != "" {
		return cfg.DatabaseURL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s&application_name=schoolfinance&options=-c statement_timeout=%d",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.DBSSLMode,
		cfg.StatementTimeout.Milliseconds(),
	)
}

// OpenSQLite opens a sqlite database limited to one connection.
func OpenSQLite(dsn string, gcfg *gorm.Config) (*gorm.DB, error) {
	if gcfg == nil {
		gcfg = &gorm.Config{}
	}
	db, err := gorm.Open(sqlite.Open(dsn), gcfg)
	if err != nil {
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, err
	}
	return db, nil
}

func TunePool(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxIdleTime(60 * time.Second)
	sqlDB.SetConnMaxLifetime(10 * time.Minute)
}

func Ping(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
