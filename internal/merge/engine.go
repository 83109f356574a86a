// Package merge rebuilds the canonical character table from the current corpus snapshots.
package merge

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/peterolson/dong-chinese-v2-sub000/internal/characters"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/lease"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/svcerr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultBatchSize = 500

	opNewEngine = "merge.new_engine"
	opRebuild   = "merge.rebuild"

	reasonMissingDatabase = "missing_database"
	reasonLeaseHeld       = "rebuild_in_progress"
	reasonLeaseFailed     = "lease_failed"
	reasonLoadFailed      = "load_failed"
	reasonShadowCreate    = "shadow_create_failed"
	reasonShadowInsert    = "shadow_insert_failed"
	reasonSwapFailed      = "swap_failed"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	// ErrRebuildInProgress is returned when another rebuild holds the lease.
	ErrRebuildInProgress = errors.New("merge: another rebuild is in progress")

	noOpLogger = zap.NewNop()
	tracer     = otel.Tracer("github.com/peterolson/dong-chinese-v2-sub000/internal/merge")
)

// Guard serializes rebuilds across processes. Acquire returns lease.ErrHeld when the
// lease is taken and a release func otherwise.
type Guard interface {
	Acquire(ctx context.Context) (func(context.Context) error, error)
}

// Config describes the dependencies of the merge engine.
type Config struct {
	Database  *gorm.DB
	Clock     func() time.Time
	BatchSize int
	Logger    *zap.Logger
	// Guard is optional; without it mutual exclusion is left to the scheduler.
	Guard Guard
}

// Report summarises one rebuild.
type Report struct {
	TotalCharacters int   `json:"totalCharacters"`
	DurationMs      int64 `json:"durationMs"`
}

// Engine rebuilds the canonical table.
type Engine struct {
	db        *gorm.DB
	clock     func() time.Time
	batchSize int
	logger    *zap.Logger
	guard     Guard
}

// NewEngine constructs an Engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Database == nil {
		return nil, svcerr.New(opNewEngine, reasonMissingDatabase, errMissingDatabase)
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
	return &Engine{
		db:        cfg.Database,
		clock:     clock,
		batchSize: batchSize,
		logger:    logger,
		guard:     cfg.Guard,
	}, nil
}

// Rebuild recomputes every canonical record from the current snapshots into a shadow
// table and swaps it in for the live table in one transaction. On failure the live
// table is left untouched.
func (engine *Engine) Rebuild(ctx context.Context) (Report, error) {
	ctx, span := tracer.Start(ctx, opRebuild)
	defer span.End()
	started := engine.clock()

	if engine.guard != nil {
		release, err := engine.guard.Acquire(ctx)
		if err != nil {
			if errors.Is(err, lease.ErrHeld) {
				return Report{}, engine.fail(span, reasonLeaseHeld, fmt.Errorf("%w: %v", ErrRebuildInProgress, err))
			}
			return Report{}, engine.fail(span, reasonLeaseFailed, err)
		}
		defer func() {
			if releaseErr := release(context.WithoutCancel(ctx)); releaseErr != nil {
				engine.logger.Warn("rebuild lease release failed", zap.Error(releaseErr))
			}
		}()
	}

	loaded, err := loadSources(ctx, engine.db)
	if err != nil {
		return Report{}, engine.fail(span, reasonLoadFailed, err)
	}
	universe := loaded.universe()
	slices.Sort(universe)

	records := make([]characters.Character, 0, len(universe))
	for _, character := range universe {
		records = append(records, mergeCharacter(character, loaded))
	}

	shadow := fmt.Sprintf("%s_rebuild_%d", characters.TableName, started.UnixNano())
	retired := fmt.Sprintf("%s_retired_%d", characters.TableName, started.UnixNano())
	txErr := engine.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Table(shadow).Migrator().CreateTable(&characters.Character{}); err != nil {
			return engine.fail(span, reasonShadowCreate, err)
		}
		if len(records) > 0 {
			if err := tx.Table(shadow).CreateInBatches(&records, engine.batchSize).Error; err != nil {
				return engine.fail(span, reasonShadowInsert, err)
			}
		}
		return engine.swap(tx, span, shadow, retired)
	})
	if txErr != nil {
		return Report{}, txErr
	}

	report := Report{
		TotalCharacters: len(records),
		DurationMs:      engine.clock().Sub(started).Milliseconds(),
	}
	span.SetAttributes(attribute.Int("characters", report.TotalCharacters))
	engine.logger.Info("canonical table rebuilt",
		zap.Int("characters", report.TotalCharacters),
		zap.Int64("duration_ms", report.DurationMs))
	return report, nil
}

func (engine *Engine) swap(tx *gorm.DB, span trace.Span, shadow, retired string) error {
	migrator := tx.Migrator()
	hadLive := migrator.HasTable(characters.TableName)
	if hadLive {
		if err := migrator.RenameTable(characters.TableName, retired); err != nil {
			return engine.fail(span, reasonSwapFailed, err)
		}
	}
	if err := migrator.RenameTable(shadow, characters.TableName); err != nil {
		return engine.fail(span, reasonSwapFailed, err)
	}
	if hadLive {
		if err := migrator.DropTable(retired); err != nil {
			return engine.fail(span, reasonSwapFailed, err)
		}
	}
	return nil
}

func (engine *Engine) fail(span trace.Span, reason string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, reason)
	engine.logger.Error("rebuild error",
		zap.String("operation", opRebuild),
		zap.String("reason", reason),
		zap.Error(err))
	return svcerr.New(opRebuild, reason, err)
}
