package cli

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"casbin-mongodb-adapter/internal/adapters/driven/persistence/memory"
	"casbin-mongodb-adapter/internal/adapters/driven/persistence/mongodb"
	sqlitestore "casbin-mongodb-adapter/internal/adapters/driven/persistence/sqlite"
	"casbin-mongodb-adapter/internal/config"
	"casbin-mongodb-adapter/internal/core/ports/driven"
)

// openStore builds the rule repository selected by cfg.Storage.Driver. The
// returned close function releases its connections.
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (driven.RuleRepository, func(), error) {
	switch cfg.Storage.Driver {
	case config.DriverMongoDB:
		connectCtx, cancel := context.WithTimeout(ctx, cfg.Storage.Timeout)
		defer cancel()

		client, err := mongodb.NewClient(connectCtx, &cfg.MongoDB)
		if err != nil {
			return nil, nil, err
		}
		repo := mongodb.NewRuleRepository(client.RuleCollection(),
			mongodb.WithTransactions(cfg.Storage.Transactions),
			mongodb.WithLogger(log),
		)
		if cfg.Storage.EnsureIndexes {
			if err := repo.EnsureIndexes(connectCtx); err != nil {
				_ = client.Close()
				return nil, nil, err
			}
		}
		log.Info("connected to mongodb", "options", cfg.MongoDB.String())
		return repo, func() {
			if err := client.Close(); err != nil {
				log.Warn("failed to close mongodb client", "error", err)
			}
		}, nil

	case config.DriverSQLite:
		db, err := openSQLite(cfg.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		repo, err := sqlitestore.NewRuleRepository(db)
		if err != nil {
			closeSQLite(db, log)
			return nil, nil, err
		}
		log.Info("opened sqlite store", "path", cfg.SQLite.Path)
		return repo, func() { closeSQLite(db, log) }, nil

	case config.DriverMemory:
		log.Warn("using in-memory store, rules are lost on exit")
		return memory.NewRuleRepository(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
}

func openSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}
	return db, nil
}

func closeSQLite(db *gorm.DB, log *slog.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close sqlite database", "error", err)
	}
}
