package snapshots

import "time"

// Meta is the bookkeeping every corpus snapshot row carries next to its payload.
// Rows are never deleted: a row missing from a sync is tombstoned by clearing IsCurrent.
type Meta struct {
	SyncVersion int64     `gorm:"column:sync_version;not null;index" json:"-"`
	IsCurrent   bool      `gorm:"column:is_current;not null;index" json:"-"`
	CreatedAt   time.Time `gorm:"column:created_at;not null;autoCreateTime:false" json:"-"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null;autoUpdateTime:false" json:"-"`
	// SourceLine is the payload line a freshly parsed row came from. It is not stored.
	SourceLine int `gorm:"-" json:"-"`
}

// SnapshotMeta exposes the embedded metadata to the generic ingester.
func (m *Meta) SnapshotMeta() *Meta {
	return m
}

// Row is implemented by pointers to corpus row models.
type Row interface {
	// RowKey returns the normalized natural key stored in the row_key column.
	RowKey() string
	SnapshotMeta() *Meta
}

type rowPointer[R any] interface {
	*R
	Row
}

// LedgerEntry records the last landed sync of one corpus.
type LedgerEntry struct {
	Corpus     string    `gorm:"column:corpus;primaryKey;size:64;not null" json:"corpus"`
	Version    int64     `gorm:"column:version;not null" json:"version"`
	Checksum   string    `gorm:"column:checksum;size:64;not null" json:"checksum"`
	LastSyncAt time.Time `gorm:"column:last_sync_at;not null" json:"lastSyncAt"`
	RowCount   int64     `gorm:"column:row_count;not null" json:"rowCount"`
}

// TableName provides the explicit table binding for GORM.
func (LedgerEntry) TableName() string {
	return "sync_ledger"
}
