package snapshots

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/peterolson/dong-chinese-v2-sub000/internal/svcerr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultBatchSize = 500

	opNewIngester = "snapshots.new_ingester"
	opIngest      = "snapshots.ingest"

	fieldCorpus = "corpus"

	columnRowKey      = "row_key"
	columnSyncVersion = "sync_version"
	columnIsCurrent   = "is_current"
	queryRowKeyIn     = columnRowKey + " IN ?"
	queryCorpus       = "corpus = ?"
	queryStaleCurrent = columnSyncVersion + " < ? AND " + columnIsCurrent + " = ?"

	reasonMissingDatabase  = "missing_database"
	reasonMissingCorpus    = "missing_corpus"
	reasonLedgerLookup     = "ledger_lookup_failed"
	reasonParseFailed      = "parse_failed"
	reasonNoValidRows      = "no_valid_rows"
	reasonSnapshotLookup   = "snapshot_lookup_failed"
	reasonSnapshotInsert   = "snapshot_insert_failed"
	reasonSnapshotUpdate   = "snapshot_update_failed"
	reasonSnapshotRefresh  = "snapshot_refresh_failed"
	reasonTombstoneFailed  = "tombstone_failed"
	reasonLedgerSaveFailed = "ledger_save_failed"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingCorpus   = errors.New("corpus name, parser and equality predicate are required")
	// ErrNoValidRows is returned when a non-empty payload yields no parseable rows;
	// landing it would tombstone the whole corpus.
	ErrNoValidRows = errors.New("snapshots: payload contained no valid rows")

	noOpLogger = zap.NewNop()
	tracer     = otel.Tracer("github.com/peterolson/dong-chinese-v2-sub000/internal/snapshots")
)

// Corpus describes one external source: how its raw payload parses into rows and
// when two versions of the same row carry the same payload.
type Corpus[R any] struct {
	Name string
	// Parse turns a raw payload into keyed rows. Per-entry failures are reported
	// as ParseErrors; a returned error aborts the ingest.
	Parse func(raw []byte) ([]R, []ParseError, error)
	// SamePayload reports whether stored and incoming carry identical payload fields.
	SamePayload func(stored, incoming *R) bool
}

// IngesterConfig describes the dependencies shared by every corpus ingester.
type IngesterConfig struct {
	Database  *gorm.DB
	Clock     func() time.Time
	BatchSize int
	Logger    *zap.Logger
}

// Outcome summarises one Ingest call.
type Outcome struct {
	Corpus   string `json:"corpus"`
	Skipped  bool   `json:"skipped"`
	Version  int64  `json:"version"`
	Checksum string `json:"checksum"`
	RowCount int    `json:"rowCount"`
	// NewCount counts keys seen for the first time.
	NewCount int `json:"newCount"`
	// ChangedCount counts keys whose payload changed or that were resurrected from a tombstone.
	ChangedCount     int   `json:"changedCount"`
	ResurrectedCount int   `json:"resurrectedCount"`
	UnchangedCount   int   `json:"unchangedCount"`
	RemovedCount     int64 `json:"removedCount"`
	ParseErrors      int   `json:"parseErrors"`
}

// Syncer is the type-erased view of an Ingester used by registries and the CLI.
type Syncer interface {
	Corpus() string
	Ingest(ctx context.Context, raw []byte) (Outcome, error)
}

// Ingester lands freshly parsed payloads of one corpus into its snapshot table.
type Ingester[R any, P rowPointer[R]] struct {
	db        *gorm.DB
	corpus    Corpus[R]
	clock     func() time.Time
	batchSize int
	logger    *zap.Logger
}

// NewIngester builds the checksum-gated, idempotent ingester for one corpus.
func NewIngester[R any, P rowPointer[R]](cfg IngesterConfig, corpus Corpus[R]) (*Ingester[R, P], error) {
	if cfg.Database == nil {
		return nil, svcerr.New(opNewIngester, reasonMissingDatabase, errMissingDatabase)
	}
	if strings.TrimSpace(corpus.Name) == "" || corpus.Parse == nil || corpus.SamePayload == nil {
		return nil, svcerr.New(opNewIngester, reasonMissingCorpus, errMissingCorpus)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Ingester[R, P]{
		db:        cfg.Database,
		corpus:    corpus,
		clock:     clock,
		batchSize: batchSize,
		logger:    logger,
	}, nil
}

// Corpus returns the corpus name this ingester writes.
func (ingester *Ingester[R, P]) Corpus() string {
	return ingester.corpus.Name
}

// Ingest checksums raw and, unless it matches the ledger, parses it and lands the rows
// as version ledger.version+1 in a single transaction: rows present are upserted,
// rows absent are tombstoned, and the ledger advances. Either all of it lands or none.
func (ingester *Ingester[R, P]) Ingest(ctx context.Context, raw []byte) (Outcome, error) {
	name := ingester.corpus.Name
	ctx, span := tracer.Start(ctx, opIngest, trace.WithAttributes(attribute.String(fieldCorpus, name)))
	defer span.End()

	outcome := Outcome{Corpus: name, Checksum: Checksum(raw)}

	var stored LedgerEntry
	err := ingester.db.WithContext(ctx).Where(queryCorpus, name).Take(&stored).Error
	switch {
	case err == nil:
		if stored.Checksum == outcome.Checksum {
			outcome.Skipped = true
			outcome.Version = stored.Version
			ingester.logger.Info("corpus unchanged, sync skipped",
				zap.String(fieldCorpus, name),
				zap.Int64("version", stored.Version))
			span.SetAttributes(attribute.Bool("skipped", true))
			return outcome, nil
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return Outcome{}, ingester.fail(span, reasonLedgerLookup, err)
	}

	rows, parseErrors, err := ingester.corpus.Parse(raw)
	if err != nil {
		return Outcome{}, ingester.fail(span, reasonParseFailed, err)
	}
	rows, duplicates := dropDuplicateKeys[R, P](rows)
	parseErrors = append(parseErrors, duplicates...)
	for _, parseErr := range parseErrors {
		ingester.logger.Warn("corpus entry skipped",
			zap.String(fieldCorpus, name),
			zap.Int("line", parseErr.Line),
			zap.Error(parseErr.Err))
	}
	outcome.ParseErrors = len(parseErrors)
	outcome.RowCount = len(rows)
	if len(rows) == 0 && len(parseErrors) > 0 {
		return Outcome{}, ingester.fail(span, reasonNoValidRows, ErrNoValidRows)
	}

	now := ingester.clock().UTC()
	txErr := ingester.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current LedgerEntry
		lookupErr := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where(queryCorpus, name).Take(&current).Error
		if lookupErr != nil && !errors.Is(lookupErr, gorm.ErrRecordNotFound) {
			return ingester.fail(span, reasonLedgerLookup, lookupErr)
		}
		version := current.Version + 1
		outcome.Version = version

		for start := 0; start < len(rows); start += ingester.batchSize {
			end := min(start+ingester.batchSize, len(rows))
			if batchErr := ingester.upsertBatch(tx, rows[start:end], version, now, &outcome); batchErr != nil {
				return batchErr
			}
		}

		tombstoned := tx.Model(new(R)).
			Where(queryStaleCurrent, version, true).
			UpdateColumn(columnIsCurrent, false)
		if tombstoned.Error != nil {
			return ingester.fail(span, reasonTombstoneFailed, tombstoned.Error)
		}
		outcome.RemovedCount = tombstoned.RowsAffected

		entry := LedgerEntry{
			Corpus:     name,
			Version:    version,
			Checksum:   outcome.Checksum,
			LastSyncAt: now,
			RowCount:   int64(len(rows)),
		}
		if saveErr := tx.Save(&entry).Error; saveErr != nil {
			return ingester.fail(span, reasonLedgerSaveFailed, saveErr)
		}
		return nil
	})
	if txErr != nil {
		return Outcome{}, txErr
	}

	span.SetAttributes(
		attribute.Int64("version", outcome.Version),
		attribute.Int("new", outcome.NewCount),
		attribute.Int("changed", outcome.ChangedCount),
		attribute.Int64("removed", outcome.RemovedCount),
	)
	ingester.logger.Info("corpus synced",
		zap.String(fieldCorpus, name),
		zap.Int64("version", outcome.Version),
		zap.Int("rows", outcome.RowCount),
		zap.Int("new", outcome.NewCount),
		zap.Int("changed", outcome.ChangedCount),
		zap.Int("resurrected", outcome.ResurrectedCount),
		zap.Int64("removed", outcome.RemovedCount),
		zap.Int("parse_errors", outcome.ParseErrors))
	return outcome, nil
}

func (ingester *Ingester[R, P]) upsertBatch(tx *gorm.DB, batch []R, version int64, now time.Time, outcome *Outcome) error {
	keys := make([]string, len(batch))
	for index := range batch {
		keys[index] = P(&batch[index]).RowKey()
	}

	var existing []R
	if err := tx.Where(queryRowKeyIn, keys).Find(&existing).Error; err != nil {
		return ingester.fail(nil, reasonSnapshotLookup, err)
	}
	storedByKey := make(map[string]*R, len(existing))
	for index := range existing {
		storedByKey[P(&existing[index]).RowKey()] = &existing[index]
	}

	creates := make([]R, 0, len(batch))
	unchangedKeys := make([]string, 0, len(batch))
	for index := range batch {
		row := &batch[index]
		meta := P(row).SnapshotMeta()
		meta.SyncVersion = version
		meta.IsCurrent = true

		stored, found := storedByKey[keys[index]]
		if !found {
			meta.CreatedAt = now
			meta.UpdatedAt = now
			creates = append(creates, *row)
			outcome.NewCount++
			continue
		}

		storedMeta := P(stored).SnapshotMeta()
		meta.CreatedAt = storedMeta.CreatedAt
		samePayload := ingester.corpus.SamePayload(stored, row)
		if storedMeta.IsCurrent && samePayload {
			unchangedKeys = append(unchangedKeys, keys[index])
			outcome.UnchangedCount++
			continue
		}

		meta.UpdatedAt = now
		if err := tx.Save(row).Error; err != nil {
			return ingester.fail(nil, reasonSnapshotUpdate, fmt.Errorf("row %q: %w", keys[index], err))
		}
		outcome.ChangedCount++
		if !storedMeta.IsCurrent {
			outcome.ResurrectedCount++
		}
	}

	if len(creates) > 0 {
		if err := tx.Create(&creates).Error; err != nil {
			return ingester.fail(nil, reasonSnapshotInsert, err)
		}
	}
	if len(unchangedKeys) > 0 {
		refreshed := tx.Model(new(R)).
			Where(queryRowKeyIn, unchangedKeys).
			UpdateColumns(map[string]any{columnSyncVersion: version, columnIsCurrent: true})
		if refreshed.Error != nil {
			return ingester.fail(nil, reasonSnapshotRefresh, refreshed.Error)
		}
	}
	return nil
}

func (ingester *Ingester[R, P]) fail(span trace.Span, reason string, err error) error {
	if span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
	}
	ingester.logger.Error("snapshot ingest error",
		zap.String("operation", opIngest),
		zap.String("reason", reason),
		zap.String(fieldCorpus, ingester.corpus.Name),
		zap.Error(err))
	return svcerr.New(opIngest, reason, err)
}

// dropDuplicateKeys keeps the first occurrence of every key; later ones become parse errors.
func dropDuplicateKeys[R any, P rowPointer[R]](rows []R) ([]R, []ParseError) {
	seen := make(map[string]struct{}, len(rows))
	unique := rows[:0:0]
	var duplicates []ParseError
	for index := range rows {
		row := P(&rows[index])
		key := row.RowKey()
		if _, ok := seen[key]; ok {
			duplicates = append(duplicates, ParseError{Line: row.SnapshotMeta().SourceLine, Err: fmt.Errorf("duplicate key %q", key)})
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, rows[index])
	}
	return unique, duplicates
}
