package snapshots

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type testWordRow struct {
	Key   string `gorm:"column:row_key;primaryKey;size:190" json:"-"`
	Word  string `gorm:"column:word;not null" json:"word"`
	Gloss string `gorm:"column:gloss;not null" json:"gloss"`
	Meta
}

func (testWordRow) TableName() string {
	return "src_test_words"
}

func (row testWordRow) RowKey() string {
	return row.Key
}

type steppingClock struct {
	now time.Time
}

func (clock *steppingClock) Now() time.Time {
	return clock.now
}

func (clock *steppingClock) Advance(step time.Duration) {
	clock.now = clock.now.Add(step)
}

func testWordCorpus() Corpus[testWordRow] {
	return Corpus[testWordRow]{
		Name: "test_words",
		Parse: func(raw []byte) ([]testWordRow, []ParseError, error) {
			return DecodeNDJSON(raw, func(row *testWordRow) error {
				row.Word = strings.TrimSpace(row.Word)
				if row.Word == "" {
					return errors.New("missing word")
				}
				row.Key = row.Word
				return nil
			})
		},
		SamePayload: func(stored, incoming *testWordRow) bool {
			return stored.Gloss == incoming.Gloss
		},
	}
}

func newTestIngester(t *testing.T, batchSize int) (*Ingester[testWordRow, *testWordRow], *gorm.DB, *steppingClock) {
	t.Helper()
	dsn := fmt.Sprintf("file:snapshots_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&testWordRow{}, &LedgerEntry{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	clock := &steppingClock{now: time.Unix(1700000000, 0).UTC()}
	ingester, err := NewIngester[testWordRow](IngesterConfig{
		Database:  db,
		Clock:     clock.Now,
		BatchSize: batchSize,
	}, testWordCorpus())
	if err != nil {
		t.Fatalf("failed to build ingester: %v", err)
	}
	return ingester, db, clock
}

func loadWord(t *testing.T, db *gorm.DB, key string) testWordRow {
	t.Helper()
	var row testWordRow
	if err := db.Where("row_key = ?", key).Take(&row).Error; err != nil {
		t.Fatalf("failed to load row %q: %v", key, err)
	}
	return row
}

const firstPayload = `{"word":"水","gloss":"water"}
{"word":"火","gloss":"fire"}
{"word":"木","gloss":"tree"}
`

func TestIngestLandsFirstVersion(t *testing.T) {
	ingester, db, _ := newTestIngester(t, 2)

	outcome, err := ingester.Ingest(context.Background(), []byte(firstPayload))
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if outcome.Skipped {
		t.Fatalf("first ingest must not be skipped")
	}
	if outcome.Version != 1 || outcome.NewCount != 3 || outcome.ChangedCount != 0 || outcome.RemovedCount != 0 {
		t.Fatalf("unexpected outcome %+v", outcome)
	}

	var entry LedgerEntry
	if err := db.Where("corpus = ?", "test_words").Take(&entry).Error; err != nil {
		t.Fatalf("expected ledger entry: %v", err)
	}
	if entry.Version != 1 || entry.RowCount != 3 || entry.Checksum != Checksum([]byte(firstPayload)) {
		t.Fatalf("unexpected ledger entry %+v", entry)
	}

	row := loadWord(t, db, "水")
	if !row.IsCurrent || row.SyncVersion != 1 || row.Gloss != "water" {
		t.Fatalf("unexpected stored row %+v", row)
	}
}

func TestIngestSkipsIdenticalPayload(t *testing.T) {
	ingester, db, clock := newTestIngester(t, 500)
	if _, err := ingester.Ingest(context.Background(), []byte(firstPayload)); err != nil {
		t.Fatalf("first ingest failed: %v", err)
	}
	before := loadWord(t, db, "火")

	clock.Advance(time.Hour)
	outcome, err := ingester.Ingest(context.Background(), []byte(firstPayload))
	if err != nil {
		t.Fatalf("second ingest failed: %v", err)
	}
	if !outcome.Skipped || outcome.Version != 1 {
		t.Fatalf("expected skipped outcome at version 1, got %+v", outcome)
	}

	after := loadWord(t, db, "火")
	if after.SyncVersion != before.SyncVersion || !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Fatalf("skipped ingest must not mutate rows: before %+v after %+v", before, after)
	}
	var entry LedgerEntry
	if err := db.Where("corpus = ?", "test_words").Take(&entry).Error; err != nil {
		t.Fatalf("failed to load ledger: %v", err)
	}
	if !entry.LastSyncAt.Equal(time.Unix(1700000000, 0).UTC()) {
		t.Fatalf("skipped ingest must not touch the ledger, got %v", entry.LastSyncAt)
	}
}

func TestIngestTombstonesAndTracksChanges(t *testing.T) {
	ingester, db, clock := newTestIngester(t, 2)
	if _, err := ingester.Ingest(context.Background(), []byte(firstPayload)); err != nil {
		t.Fatalf("first ingest failed: %v", err)
	}
	unchangedBefore := loadWord(t, db, "水")

	clock.Advance(time.Hour)
	secondPayload := `{"word":"水","gloss":"water"}
{"word":"火","gloss":"fire; flame"}
{"word":"土","gloss":"earth"}
`
	outcome, err := ingester.Ingest(context.Background(), []byte(secondPayload))
	if err != nil {
		t.Fatalf("second ingest failed: %v", err)
	}
	if outcome.Version != 2 || outcome.NewCount != 1 || outcome.ChangedCount != 1 || outcome.UnchangedCount != 1 || outcome.RemovedCount != 1 {
		t.Fatalf("unexpected outcome %+v", outcome)
	}

	unchanged := loadWord(t, db, "水")
	if unchanged.SyncVersion != 2 || !unchanged.IsCurrent {
		t.Fatalf("unchanged row must be refreshed to the new version: %+v", unchanged)
	}
	if !unchanged.UpdatedAt.Equal(unchangedBefore.UpdatedAt) {
		t.Fatalf("unchanged row must keep updated_at, got %v want %v", unchanged.UpdatedAt, unchangedBefore.UpdatedAt)
	}

	changed := loadWord(t, db, "火")
	if changed.Gloss != "fire; flame" || !changed.UpdatedAt.Equal(clock.Now()) {
		t.Fatalf("changed row must carry new payload and updated_at: %+v", changed)
	}
	if !changed.CreatedAt.Equal(time.Unix(1700000000, 0).UTC()) {
		t.Fatalf("changed row must keep created_at, got %v", changed.CreatedAt)
	}

	removed := loadWord(t, db, "木")
	if removed.IsCurrent || removed.SyncVersion != 1 {
		t.Fatalf("absent row must be tombstoned, not deleted: %+v", removed)
	}

	var total int64
	if err := db.Model(&testWordRow{}).Count(&total).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if total != 4 {
		t.Fatalf("expected full history of 4 rows, got %d", total)
	}
	var staleCurrent int64
	if err := db.Model(&testWordRow{}).Where("sync_version < ? AND is_current = ?", 2, true).Count(&staleCurrent).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if staleCurrent != 0 {
		t.Fatalf("expected no current rows below the new version, got %d", staleCurrent)
	}
}

func TestIngestResurrectsTombstonedRow(t *testing.T) {
	ingester, db, clock := newTestIngester(t, 500)
	if _, err := ingester.Ingest(context.Background(), []byte(firstPayload)); err != nil {
		t.Fatalf("first ingest failed: %v", err)
	}
	clock.Advance(time.Hour)
	if _, err := ingester.Ingest(context.Background(), []byte(`{"word":"水","gloss":"water"}`)); err != nil {
		t.Fatalf("second ingest failed: %v", err)
	}
	clock.Advance(time.Hour)
	outcome, err := ingester.Ingest(context.Background(), []byte(firstPayload+"\n"))
	if err != nil {
		t.Fatalf("third ingest failed: %v", err)
	}
	if outcome.ResurrectedCount != 2 || outcome.ChangedCount != 2 {
		t.Fatalf("expected two resurrected rows, got %+v", outcome)
	}
	resurrected := loadWord(t, db, "木")
	if !resurrected.IsCurrent || resurrected.SyncVersion != 3 || !resurrected.UpdatedAt.Equal(clock.Now()) {
		t.Fatalf("resurrected row must be current with fresh updated_at: %+v", resurrected)
	}
}

func TestIngestCountsParseErrors(t *testing.T) {
	ingester, _, _ := newTestIngester(t, 500)
	payload := `{"word":"水","gloss":"water"}
not json at all
{"word":"","gloss":"nothing"}

{"word":"水","gloss":"duplicate"}
{"word":"火","gloss":"fire"}
`
	outcome, err := ingester.Ingest(context.Background(), []byte(payload))
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if outcome.ParseErrors != 3 || outcome.NewCount != 2 {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
}

func TestDuplicateKeysReportSourceLine(t *testing.T) {
	payload := `{"word":"水","gloss":"water"}

{"word":"火","gloss":"fire"}
{"word":"水","gloss":"duplicate"}
`
	rows, parseErrors, err := testWordCorpus().Parse([]byte(payload))
	if err != nil || len(parseErrors) != 0 {
		t.Fatalf("unexpected parse result %v %v", parseErrors, err)
	}
	unique, duplicates := dropDuplicateKeys[testWordRow, *testWordRow](rows)
	if len(unique) != 2 || unique[0].Gloss != "water" {
		t.Fatalf("expected the first occurrence to win, got %+v", unique)
	}
	if len(duplicates) != 1 || duplicates[0].Line != 4 {
		t.Fatalf("expected a duplicate reported on line 4, got %+v", duplicates)
	}
}

func TestIngestKeepsCompatibilityIdeographKeys(t *testing.T) {
	ingester, db, _ := newTestIngester(t, 500)
	payload := "{\"word\":\"\uF900\",\"gloss\":\"compatibility form\"}\n" +
		"{\"word\":\"\u8C48\",\"gloss\":\"unified form\"}\n"

	outcome, err := ingester.Ingest(context.Background(), []byte(payload))
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if outcome.NewCount != 2 || outcome.ParseErrors != 0 {
		t.Fatalf("expected both ideographs as distinct rows, got %+v", outcome)
	}
	if row := loadWord(t, db, "\uF900"); row.Gloss != "compatibility form" {
		t.Fatalf("compatibility ideograph must keep its own key, got %+v", row)
	}
	if row := loadWord(t, db, "\u8C48"); row.Gloss != "unified form" {
		t.Fatalf("unified ideograph must keep its own key, got %+v", row)
	}
}

func TestIngestRejectsPayloadWithoutValidRows(t *testing.T) {
	ingester, db, _ := newTestIngester(t, 500)
	if _, err := ingester.Ingest(context.Background(), []byte(firstPayload)); err != nil {
		t.Fatalf("first ingest failed: %v", err)
	}
	_, err := ingester.Ingest(context.Background(), []byte("garbage\nmore garbage\n"))
	if !errors.Is(err, ErrNoValidRows) {
		t.Fatalf("expected ErrNoValidRows, got %v", err)
	}
	if !loadWord(t, db, "木").IsCurrent {
		t.Fatalf("failed ingest must leave the previous snapshot current")
	}
}

func TestChecksumIgnoresRepresentationalNoise(t *testing.T) {
	plain := "{\"word\":\"水\"}\n{\"word\":\"é\"}\n"
	noisy := "\xEF\xBB\xBF{\"word\":\"水\"}\r\n{\"word\":\"e\u0301\"}\r\n"
	if Checksum([]byte(plain)) != Checksum([]byte(noisy)) {
		t.Fatalf("expected BOM, CRLF and NFD differences to be normalized away")
	}
	if Checksum([]byte(plain)) == Checksum([]byte(plain+"x")) {
		t.Fatalf("expected different payloads to hash differently")
	}
}

func TestLedgerReadsEntries(t *testing.T) {
	ingester, db, _ := newTestIngester(t, 500)
	ledger, err := NewLedger(db)
	if err != nil {
		t.Fatalf("failed to build ledger: %v", err)
	}
	if _, err := ledger.Entry(context.Background(), "test_words"); !errors.Is(err, ErrCorpusNotSynced) {
		t.Fatalf("expected ErrCorpusNotSynced, got %v", err)
	}
	if _, err := ingester.Ingest(context.Background(), []byte(firstPayload)); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	entry, err := ledger.Entry(context.Background(), "test_words")
	if err != nil {
		t.Fatalf("entry failed: %v", err)
	}
	if entry.Version != 1 {
		t.Fatalf("unexpected version %d", entry.Version)
	}
	entries, err := ledger.List(context.Background())
	if err != nil || len(entries) != 1 {
		t.Fatalf("unexpected list result %v %v", entries, err)
	}
}
