package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/characters"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/config"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/corpora"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/revisions"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/snapshots"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Open connects to the configured database and performs schema migrations.
func Open(cfg config.AppConfig, logger *zap.Logger) (*gorm.DB, error) {
	switch cfg.DatabaseDriver {
	case config.DriverSQLite:
		return OpenSQLite(cfg.DatabasePath, logger)
	case config.DriverPostgres:
		return OpenPostgres(cfg.DatabaseDSN, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}
}

// OpenSQLite establishes a SQLite connection and performs schema migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := migrate(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("driver", config.DriverSQLite), zap.String("path", path))
	}

	return db, nil
}

// OpenPostgres establishes a PostgreSQL connection and performs schema migrations.
func OpenPostgres(dsn string, logger *zap.Logger) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database dsn is required")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := migrate(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("driver", config.DriverPostgres))
	}

	return db, nil
}

// Models lists every table the application owns.
func Models() []any {
	models := corpora.Models()
	return append(models,
		&snapshots.LedgerEntry{},
		&characters.Character{},
		&revisions.Revision{},
		&migrationRecord{},
	)
}

func migrate(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return err
	}
	return applyMigrations(db, logger)
}
