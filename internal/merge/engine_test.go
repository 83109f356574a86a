package merge

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/characters"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/corpora"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/lease"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/snapshots"
	"gorm.io/gorm"
)

var fixedNow = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

type heldGuard struct{}

func (heldGuard) Acquire(context.Context) (func(context.Context) error, error) {
	return nil, lease.ErrHeld
}

func openMergeDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:merge_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	models := append(corpora.Models(), &snapshots.LedgerEntry{}, &characters.Character{})
	if err := db.AutoMigrate(models...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func ingestCorpora(t *testing.T, db *gorm.DB, payloads map[string]string) {
	t.Helper()
	syncers, err := corpora.Syncers(snapshots.IngesterConfig{Database: db, Clock: func() time.Time { return fixedNow }})
	if err != nil {
		t.Fatalf("failed to build syncers: %v", err)
	}
	for name, payload := range payloads {
		if _, err := syncers[name].Ingest(context.Background(), []byte(payload)); err != nil {
			t.Fatalf("ingest %s failed: %v", name, err)
		}
	}
}

func newTestEngine(t *testing.T, db *gorm.DB, guard Guard) *Engine {
	t.Helper()
	engine, err := NewEngine(Config{Database: db, Clock: func() time.Time { return fixedNow }, BatchSize: 2, Guard: guard})
	if err != nil {
		t.Fatalf("failed to build engine: %v", err)
	}
	return engine
}

func loadCanonical(t *testing.T, db *gorm.DB) map[string]characters.Character {
	t.Helper()
	var records []characters.Character
	if err := db.Order("hanzi").Find(&records).Error; err != nil {
		t.Fatalf("failed to load canonical table: %v", err)
	}
	byCharacter := make(map[string]characters.Character, len(records))
	for _, record := range records {
		byCharacter[record.Hanzi] = record
	}
	return byCharacter
}

var samplePayloads = map[string]string{
	corpora.Dictionary: `{"char":"水","gloss":"water","pinyin":["shuǐ"],"traditionalVariants":["氵"],"isVerified":true,"strokeCount":9}
{"char":"木","gloss":"tree"}
`,
	corpora.Unihan: `{"codepoint":"U+6C34","definition":"water, liquid","mandarin":["shui3"],"totalStrokes":4}
{"codepoint":"U+706B","definition":"fire, flame","mandarin":["huo3"],"totalStrokes":4,"traditionalVariants":["U+7055"]}
`,
	corpora.MakeMeAHanzi: `{"character":"水","definition":"water","pinyin":["shuǐ"],"radical":"水","etymology":{"type":"pictographic","hint":"a river"},"strokes":["M 1 1","M 2 2"],"medians":[[[1,1]],[[2,2]]]}`,
	corpora.AnimCJK:      `{"character":"火","strokes":["M 1","M 2","M 3","M 4"]}`,
	corpora.CEDICT: `{"traditional":"東","simplified":"东","pinyin":"dong1","definitions":["east"]}
{"traditional":"水","simplified":"水","pinyin":"shui3","definitions":["water","river"]}
{"traditional":"水火","simplified":"水火","pinyin":"shui3 huo3","definitions":["fire and water"]}
`,
	corpora.SUBTLEX:      `{"character":"水","rank":120,"count":34000}`,
	corpora.Junda:        `{"character":"水","rank":202,"count":90000}`,
	corpora.BaxterSagart: `{"character":"水","pinyin":"shuǐ","middleChinese":"sywijX","oldChinese":"*s.turʔ","gloss":"water"}`,
	corpora.Zhengzhang:   `{"character":"水","phoneticSeries":"水","oldChinese":"*qʰʷljiʔ"}`,
	corpora.Shuowen:      `{"character":"火","explanation":"燬也","radical":"火"}`,
}

func TestRebuildCoversUniverse(t *testing.T) {
	db := openMergeDatabase(t)
	ingestCorpora(t, db, samplePayloads)

	report, err := newTestEngine(t, db, nil).Rebuild(context.Background())
	if err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}
	canonical := loadCanonical(t, db)
	want := []string{"东", "木", "水", "東", "火"}
	if report.TotalCharacters != len(want) || len(canonical) != len(want) {
		t.Fatalf("expected %d characters, got report %+v and %d rows", len(want), report, len(canonical))
	}
	for _, character := range want {
		if _, ok := canonical[character]; !ok {
			t.Fatalf("missing canonical row for %s", character)
		}
	}
	if _, ok := canonical["水火"]; ok {
		t.Fatalf("multi-character words must not enter the universe")
	}
}

func TestRebuildAppliesPriorityTable(t *testing.T) {
	db := openMergeDatabase(t)
	ingestCorpora(t, db, samplePayloads)
	if _, err := newTestEngine(t, db, nil).Rebuild(context.Background()); err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}
	canonical := loadCanonical(t, db)

	water := canonical["水"]
	if water.Gloss == nil || *water.Gloss != "water" {
		t.Fatalf("dictionary gloss must win, got %v", water.Gloss)
	}
	if water.StrokeCount == nil || *water.StrokeCount != 2 {
		t.Fatalf("stroke count must derive from stroke paths, got %v", water.StrokeCount)
	}
	if water.Codepoint != "U+6C34" || !water.IsVerified {
		t.Fatalf("unexpected derived fields %+v", water)
	}
	if water.Hint == nil || *water.Hint != "a river" || water.EtymologyType == nil || *water.EtymologyType != "pictographic" {
		t.Fatalf("expected makemeahanzi etymology, got hint=%v type=%v", water.Hint, water.EtymologyType)
	}
	if water.SubtlexRank == nil || *water.SubtlexRank != 120 || water.JundaRank == nil || *water.JundaRank != 202 {
		t.Fatalf("unexpected frequency ranks %+v", water)
	}
	if !reflect.DeepEqual([]string(water.TraditionalVariants), []string{"氵"}) || len(water.SimplifiedVariants) != 0 {
		t.Fatalf("unexpected variants %v %v", water.TraditionalVariants, water.SimplifiedVariants)
	}
	if len(water.HistoricalPronunciations) != 2 ||
		water.HistoricalPronunciations[0].Source != corpora.BaxterSagart ||
		water.HistoricalPronunciations[1].Source != corpora.Zhengzhang {
		t.Fatalf("expected source-tagged readings from both corpora, got %+v", water.HistoricalPronunciations)
	}
	if !water.CreatedAt.Equal(fixedNow) || !water.UpdatedAt.Equal(fixedNow) {
		t.Fatalf("timestamps must come from the snapshot rows, got %v %v", water.CreatedAt, water.UpdatedAt)
	}

	fire := canonical["火"]
	if fire.Gloss == nil || *fire.Gloss != "fire, flame" {
		t.Fatalf("unihan gloss must fill in, got %v", fire.Gloss)
	}
	if fire.StrokeCount == nil || *fire.StrokeCount != 4 || len(fire.Strokes) != 4 {
		t.Fatalf("animcjk strokes must fill in, got %v", fire.StrokeCount)
	}
	if !reflect.DeepEqual([]string(fire.TraditionalVariants), []string{string(rune(0x7055))}) {
		t.Fatalf("unihan codepoint variants must become characters, got %v", fire.TraditionalVariants)
	}
	if fire.Radical == nil || *fire.Radical != "火" || fire.ShuowenExplanation == nil {
		t.Fatalf("shuowen must supply radical and explanation, got %+v", fire)
	}

	east := canonical["东"]
	if !reflect.DeepEqual([]string(east.TraditionalVariants), []string{"東"}) {
		t.Fatalf("cedict pairs must become variants, got %v", east.TraditionalVariants)
	}
	if east.Gloss == nil || *east.Gloss != "east" || !reflect.DeepEqual([]string(east.Pinyin), []string{"dong1"}) {
		t.Fatalf("unexpected cedict contribution %+v", east)
	}
	traditional := canonical["東"]
	if !reflect.DeepEqual([]string(traditional.SimplifiedVariants), []string{"东"}) {
		t.Fatalf("unexpected simplified variants %v", traditional.SimplifiedVariants)
	}
}

func TestRebuildIsDeterministic(t *testing.T) {
	db := openMergeDatabase(t)
	ingestCorpora(t, db, samplePayloads)
	engine := newTestEngine(t, db, nil)

	if _, err := engine.Rebuild(context.Background()); err != nil {
		t.Fatalf("first rebuild failed: %v", err)
	}
	first := loadCanonical(t, db)
	if _, err := engine.Rebuild(context.Background()); err != nil {
		t.Fatalf("second rebuild failed: %v", err)
	}
	second := loadCanonical(t, db)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("rebuilds must produce identical rows")
	}
}

func TestRebuildDropsTombstonedCharacters(t *testing.T) {
	db := openMergeDatabase(t)
	ingestCorpora(t, db, map[string]string{corpora.Dictionary: samplePayloads[corpora.Dictionary]})
	engine := newTestEngine(t, db, nil)
	if _, err := engine.Rebuild(context.Background()); err != nil {
		t.Fatalf("first rebuild failed: %v", err)
	}
	ingestCorpora(t, db, map[string]string{corpora.Dictionary: `{"char":"水","gloss":"water"}`})
	if _, err := engine.Rebuild(context.Background()); err != nil {
		t.Fatalf("second rebuild failed: %v", err)
	}
	canonical := loadCanonical(t, db)
	if _, ok := canonical["木"]; ok || len(canonical) != 1 {
		t.Fatalf("tombstoned characters must leave the canonical table, got %v", canonical)
	}
}

func TestFailedRebuildLeavesLiveTableUntouched(t *testing.T) {
	db := openMergeDatabase(t)
	ingestCorpora(t, db, samplePayloads)
	if _, err := newTestEngine(t, db, nil).Rebuild(context.Background()); err != nil {
		t.Fatalf("first rebuild failed: %v", err)
	}
	before := loadCanonical(t, db)

	ingestCorpora(t, db, map[string]string{corpora.Dictionary: `{"char":"金","gloss":"gold"}`})
	shadowInsertErr := errors.New("shadow insert failed")
	err := db.Callback().Create().Before("gorm:create").Register("test:fail_shadow_insert", func(tx *gorm.DB) {
		if strings.HasPrefix(tx.Statement.Table, characters.TableName+"_rebuild_") {
			_ = tx.AddError(shadowInsertErr)
		}
	})
	if err != nil {
		t.Fatalf("failed to register callback: %v", err)
	}

	if _, err := newTestEngine(t, db, nil).Rebuild(context.Background()); !errors.Is(err, shadowInsertErr) {
		t.Fatalf("expected the insert failure to surface, got %v", err)
	}
	after := loadCanonical(t, db)
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("failed rebuild must leave the live table untouched")
	}
	tables, err := db.Migrator().GetTables()
	if err != nil {
		t.Fatalf("failed to list tables: %v", err)
	}
	for _, table := range tables {
		if strings.HasPrefix(table, characters.TableName+"_") {
			t.Fatalf("shadow table %s must be rolled back", table)
		}
	}
}

func TestRebuildRespectsHeldLease(t *testing.T) {
	db := openMergeDatabase(t)
	_, err := newTestEngine(t, db, heldGuard{}).Rebuild(context.Background())
	if !errors.Is(err, ErrRebuildInProgress) {
		t.Fatalf("expected ErrRebuildInProgress, got %v", err)
	}
}

type liveTableObservation struct {
	Total int64
	Gloss *string
}

func TestRebuildSwapIsAtomicForConcurrentReaders(t *testing.T) {
	db := openMergeDatabase(t)
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	ingestCorpora(t, db, samplePayloads)
	engine := newTestEngine(t, db, nil)
	if _, err := engine.Rebuild(context.Background()); err != nil {
		t.Fatalf("first rebuild failed: %v", err)
	}
	ingestCorpora(t, db, map[string]string{corpora.Dictionary: `{"char":"水","gloss":"river water"}
{"char":"木","gloss":"tree"}
{"char":"土","gloss":"earth"}
`})

	done := make(chan struct{})
	results := make(chan error, 1)
	go func() {
		for {
			select {
			case <-done:
				results <- nil
				return
			default:
			}
			var observed liveTableObservation
			err := db.Raw("SELECT COUNT(*) AS total, MAX(CASE WHEN hanzi = ? THEN gloss END) AS gloss FROM characters", "水").Scan(&observed).Error
			if err != nil {
				results <- err
				return
			}
			oldSnapshot := observed.Total == 5 && observed.Gloss != nil && *observed.Gloss == "water"
			newSnapshot := observed.Total == 6 && observed.Gloss != nil && *observed.Gloss == "river water"
			if !oldSnapshot && !newSnapshot {
				gloss := "<nil>"
				if observed.Gloss != nil {
					gloss = *observed.Gloss
				}
				results <- fmt.Errorf("reader saw %d rows with gloss %q", observed.Total, gloss)
				return
			}
		}
	}()

	for attempt := 0; attempt < 3; attempt++ {
		if _, err := engine.Rebuild(context.Background()); err != nil {
			close(done)
			t.Fatalf("rebuild %d failed: %v", attempt, err)
		}
	}
	close(done)
	if err := <-results; err != nil {
		t.Fatalf("live table was observed mid-swap: %v", err)
	}

	canonical := loadCanonical(t, db)
	if len(canonical) != 6 || canonical["土"].Gloss == nil || *canonical["土"].Gloss != "earth" {
		t.Fatalf("expected the new snapshot to be live, got %v", canonical)
	}
}
