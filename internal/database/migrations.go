package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/peterolson/dong-chinese-v2-sub000/internal/corpora"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/revisions"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/snapshots"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationBackfillSyncLedgerRowCounts = "2024-06-01_backfill_sync_ledger_row_counts"
	migrationNormalizeNullChangedFields  = "2024-06-15_normalize_null_changed_fields"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillSyncLedgerRowCounts, apply: backfillSyncLedgerRowCounts},
		{name: migrationNormalizeNullChangedFields, apply: normalizeNullChangedFields},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return fmt.Errorf("migration %s: %w", migration.name, err)
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillSyncLedgerRowCounts fills row_count for ledger entries written before the
// column was populated, counting the corpus's current snapshot rows.
func backfillSyncLedgerRowCounts(db *gorm.DB) error {
	var entries []snapshots.LedgerEntry
	if err := db.Where("row_count = ?", 0).Find(&entries).Error; err != nil {
		return err
	}
	for _, entry := range entries {
		table, ok := corpora.TableOf(entry.Corpus)
		if !ok {
			continue
		}
		var current int64
		if err := db.Table(table).Where("is_current = ?", true).Count(&current).Error; err != nil {
			return err
		}
		if err := db.Model(&snapshots.LedgerEntry{}).
			Where("corpus = ?", entry.Corpus).
			Update("row_count", current).Error; err != nil {
			return err
		}
	}
	return nil
}

// normalizeNullChangedFields rewrites SQL NULL changed_fields as a JSON null so legacy
// revisions scan like every other row.
func normalizeNullChangedFields(db *gorm.DB) error {
	return db.Model(&revisions.Revision{}).
		Where("changed_fields IS NULL").
		UpdateColumn("changed_fields", "null").Error
}
