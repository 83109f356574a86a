package corpora

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/snapshots"
	"gorm.io/gorm"
)

func openCorporaDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:corpora_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	models := append(Models(), &snapshots.LedgerEntry{})
	if err := db.AutoMigrate(models...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func TestSyncersCoverCatalogue(t *testing.T) {
	db := openCorporaDatabase(t)
	syncers, err := Syncers(snapshots.IngesterConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build syncers: %v", err)
	}
	if len(syncers) != len(Names()) {
		t.Fatalf("expected %d syncers, got %d", len(Names()), len(syncers))
	}
	for _, name := range Names() {
		if _, ok := syncers[name]; !ok {
			t.Fatalf("missing syncer for %s", name)
		}
	}
	if len(Models()) != len(Names()) {
		t.Fatalf("every corpus needs exactly one model")
	}
}

func TestNormalizeCodepoint(t *testing.T) {
	testCases := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "U+6C34", want: "U+6C34"},
		{input: " u+6c34 ", want: "U+6C34"},
		{input: "U+20000", want: "U+20000"},
		{input: "6C34", wantErr: true},
		{input: "U+6C", wantErr: true},
	}
	for _, testCase := range testCases {
		got, err := NormalizeCodepoint(testCase.input)
		if testCase.wantErr {
			if err == nil {
				t.Fatalf("expected error for %q", testCase.input)
			}
			continue
		}
		if err != nil || got != testCase.want {
			t.Fatalf("NormalizeCodepoint(%q) = %q, %v", testCase.input, got, err)
		}
	}
	character, ok := CodepointCharacter("U+6C34")
	if !ok || character != "水" {
		t.Fatalf("expected 水, got %q", character)
	}
	for _, label := range []string{"U+D800", "U+DFFF", "U+110000"} {
		if character, ok := CodepointCharacter(label); ok {
			t.Fatalf("expected %s to be rejected, got %q", label, character)
		}
	}
}

func TestUnihanParserRejectsSurrogates(t *testing.T) {
	payload := `{"codepoint":"U+D83D","definition":"half a pair"}
{"codepoint":"u+6c34","definition":"water"}
`
	rows, parseErrors, err := unihanCorpus().Parse([]byte(payload))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(parseErrors) != 1 || parseErrors[0].Line != 1 {
		t.Fatalf("expected the surrogate rejected on line 1, got %+v", parseErrors)
	}
	if len(rows) != 1 || rows[0].Key != "U+6C34" {
		t.Fatalf("unexpected rows %+v", rows)
	}
}

func TestDictionaryParserNormalizesRows(t *testing.T) {
	payload := `{"char":" 水 ","gloss":"  water ","hint":"","pinyin":[" shuǐ ",""],"isVerified":true}
{"char":"水火","gloss":"two characters"}
{"char":"火","gloss":"fire"}
`
	rows, parseErrors, err := dictionaryCorpus().Parse([]byte(payload))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(parseErrors) != 1 || parseErrors[0].Line != 2 {
		t.Fatalf("expected one parse error on line 2, got %+v", parseErrors)
	}
	if len(rows) != 2 {
		t.Fatalf("expected two rows, got %d", len(rows))
	}
	water := rows[0]
	if water.Key != "水" || water.Gloss == nil || *water.Gloss != "water" || water.Hint != nil {
		t.Fatalf("unexpected row %+v", water)
	}
	if len(water.Pinyin) != 1 || water.Pinyin[0] != "shuǐ" {
		t.Fatalf("unexpected pinyin %v", water.Pinyin)
	}
}

func TestCompositeKeys(t *testing.T) {
	cedictRows, _, err := cedictCorpus().Parse([]byte(`{"traditional":"水","simplified":"水","pinyin":"shui3  ","definitions":["water"]}`))
	if err != nil || len(cedictRows) != 1 {
		t.Fatalf("unexpected cedict parse %v %v", cedictRows, err)
	}
	if cedictRows[0].Key != "水|水|shui3" {
		t.Fatalf("unexpected cedict key %q", cedictRows[0].Key)
	}

	baxterRows, _, err := baxterSagartCorpus().Parse([]byte(`{"character":"水","middleChinese":"sywijX","oldChinese":"*s.tur"}`))
	if err != nil || len(baxterRows) != 1 {
		t.Fatalf("unexpected baxter-sagart parse %v %v", baxterRows, err)
	}
	if baxterRows[0].Key != "水|sywijX|*s.tur" {
		t.Fatalf("unexpected baxter-sagart key %q", baxterRows[0].Key)
	}

	unihanRows, parseErrors, err := unihanCorpus().Parse([]byte("{\"codepoint\":\"u+6c34\"}\n{\"codepoint\":\"water\"}\n"))
	if err != nil || len(unihanRows) != 1 || len(parseErrors) != 1 {
		t.Fatalf("unexpected unihan parse %v %v %v", unihanRows, parseErrors, err)
	}
	if unihanRows[0].Key != "U+6C34" {
		t.Fatalf("unexpected unihan key %q", unihanRows[0].Key)
	}
}

func TestGlyphParserRejectsMismatchedMedians(t *testing.T) {
	payload := `{"character":"一","strokes":["M 0 0"],"medians":[[[0,0],[1,1]]]}
{"character":"二","strokes":["M 0 0"],"medians":[]}
{"character":"三","strokes":["M 0 0"],"medians":[[[0,0]],[[1,1]]]}
`
	rows, parseErrors, err := animCJKCorpus().Parse([]byte(payload))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(rows) != 2 || len(parseErrors) != 1 || parseErrors[0].Line != 3 {
		t.Fatalf("unexpected parse result rows=%d errors=%+v", len(rows), parseErrors)
	}
}

func TestIngestRoundTripsJSONColumns(t *testing.T) {
	db := openCorporaDatabase(t)
	syncers, err := Syncers(snapshots.IngesterConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build syncers: %v", err)
	}
	payload := `{"character":"水","definition":"water","pinyin":["shuǐ"],"etymology":{"type":"pictographic","hint":"flowing water"},"strokes":["M 1 1"],"medians":[[[1,2],[3,4]]]}`
	outcome, err := syncers[MakeMeAHanzi].Ingest(context.Background(), []byte(payload))
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if outcome.NewCount != 1 {
		t.Fatalf("unexpected outcome %+v", outcome)
	}

	var row MakeMeAHanziRow
	if err := db.Where("row_key = ?", "水").Take(&row).Error; err != nil {
		t.Fatalf("failed to load row: %v", err)
	}
	if row.Etymology.Data().Hint != "flowing water" {
		t.Fatalf("unexpected etymology %+v", row.Etymology.Data())
	}
	if len(row.Medians) != 1 || row.Medians[0][1][1] != 4 {
		t.Fatalf("unexpected medians %v", row.Medians)
	}

	second, err := syncers[MakeMeAHanzi].Ingest(context.Background(), []byte(payload+"\n"))
	if err != nil {
		t.Fatalf("second ingest failed: %v", err)
	}
	if second.Skipped || second.UnchangedCount != 1 || second.ChangedCount != 0 {
		t.Fatalf("expected stored JSON columns to compare equal, got %+v", second)
	}
}

func TestTableOf(t *testing.T) {
	table, ok := TableOf(BaxterSagart)
	if !ok || table != "src_baxter_sagart" {
		t.Fatalf("unexpected table %q %v", table, ok)
	}
	if _, ok := TableOf("unknown"); ok {
		t.Fatalf("expected unknown corpus to have no table")
	}
}
