package snapshots

import (
	"context"
	"errors"

	"github.com/peterolson/dong-chinese-v2-sub000/internal/svcerr"
	"gorm.io/gorm"
)

const (
	opLedgerEntry = "snapshots.ledger_entry"
	opLedgerList  = "snapshots.ledger_list"
	reasonQuery   = "query_failed"
	reasonUnknown = "not_found"
)

// ErrCorpusNotSynced indicates that the ledger holds no entry for a corpus.
var ErrCorpusNotSynced = errors.New("snapshots: corpus has never been synced")

// Ledger reads the per-corpus sync ledger for operators and monitoring.
type Ledger struct {
	db *gorm.DB
}

// NewLedger constructs a ledger reader.
func NewLedger(db *gorm.DB) (*Ledger, error) {
	if db == nil {
		return nil, svcerr.New(opLedgerEntry, reasonMissingDatabase, errMissingDatabase)
	}
	return &Ledger{db: db}, nil
}

// Entry returns the ledger entry of one corpus.
func (ledger *Ledger) Entry(ctx context.Context, corpus string) (LedgerEntry, error) {
	var entry LedgerEntry
	err := ledger.db.WithContext(ctx).Where(queryCorpus, corpus).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return LedgerEntry{}, svcerr.New(opLedgerEntry, reasonUnknown, ErrCorpusNotSynced)
	}
	if err != nil {
		return LedgerEntry{}, svcerr.New(opLedgerEntry, reasonQuery, err)
	}
	return entry, nil
}

// List returns every ledger entry ordered by corpus name.
func (ledger *Ledger) List(ctx context.Context) ([]LedgerEntry, error) {
	var entries []LedgerEntry
	if err := ledger.db.WithContext(ctx).Order("corpus ASC").Find(&entries).Error; err != nil {
		return nil, svcerr.New(opLedgerList, reasonQuery, err)
	}
	return entries, nil
}
