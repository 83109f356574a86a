package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/auth"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/characters"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/config"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/corpora"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/database"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/lease"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/merge"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/revisions"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/server"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/snapshots"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	sessionSigningSecret = "integration-secret"
	sessionCookieName    = "app_session"
	sessionIssuer        = "dong-auth"
	reviewerUserID       = "reviewer-abc"
	jsonContentType      = "application/json"
)

var pipelinePayloads = map[string]string{
	corpora.Dictionary: `{"char":"水","gloss":"water","pinyin":["shuǐ"]}
{"char":"火","gloss":"fire","pinyin":["huǒ"]}
`,
	corpora.MakeMeAHanzi: `{"character":"水","definition":"water, liquid","radical":"水","strokes":["M1","M2","M3","M4"],"medians":[[[0,0]],[[1,1]],[[2,2]],[[3,3]]]}
`,
	corpora.SUBTLEX: `{"character":"水","rank":210,"count":5000}
{"character":"火","rank":640,"count":1800}
`,
}

func TestIngestRebuildReviewPipeline(testContext *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	appConfig := config.AppConfig{
		DatabaseDriver: config.DriverSQLite,
		DatabasePath:   filepath.Join(testContext.TempDir(), "pipeline.db"),
	}
	db, err := database.Open(appConfig, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}

	syncers, err := corpora.Syncers(snapshots.IngesterConfig{Database: db, Logger: zap.NewNop()})
	if err != nil {
		testContext.Fatalf("failed to build syncers: %v", err)
	}
	for name, payload := range pipelinePayloads {
		outcome, err := syncers[name].Ingest(ctx, []byte(payload))
		if err != nil {
			testContext.Fatalf("ingest %s failed: %v", name, err)
		}
		if outcome.Version != 1 || outcome.ParseErrors != 0 {
			testContext.Fatalf("unexpected %s outcome %+v", name, outcome)
		}
	}

	redisServer := miniredis.RunT(testContext)
	guard, err := lease.Dial("redis://"+redisServer.Addr(), "rebuild", time.Minute)
	if err != nil {
		testContext.Fatalf("failed to dial redis: %v", err)
	}
	testContext.Cleanup(func() {
		_ = guard.Close()
	})
	engine, err := merge.NewEngine(merge.Config{Database: db, Guard: guard, Logger: zap.NewNop()})
	if err != nil {
		testContext.Fatalf("failed to build engine: %v", err)
	}
	report, err := engine.Rebuild(ctx)
	if err != nil {
		testContext.Fatalf("rebuild failed: %v", err)
	}
	if report.TotalCharacters != 2 {
		testContext.Fatalf("expected two canonical characters, got %d", report.TotalCharacters)
	}

	handler := newPipelineHandler(testContext, db)
	issuer, err := auth.NewSessionIssuer(auth.SessionIssuerConfig{
		SigningSecret: []byte(sessionSigningSecret),
		Issuer:        sessionIssuer,
	})
	if err != nil {
		testContext.Fatalf("failed to build issuer: %v", err)
	}
	token, _, err := issuer.Issue(reviewerUserID, "Reviewer", []string{auth.RoleReviewer})
	if err != nil {
		testContext.Fatalf("failed to issue token: %v", err)
	}

	body := bytes.NewBufferString(`{"fields":{"hint":"three drops beside a stream"},"autoApprove":true}`)
	request := httptest.NewRequest(http.MethodPost, "/characters/水/revisions", body)
	request.Header.Set("Content-Type", jsonContentType)
	request.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token})
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusCreated {
		testContext.Fatalf("unexpected submit status %d: %s", recorder.Code, recorder.Body.String())
	}

	record := fetchCharacter(testContext, handler, "水")
	assertPipelineRecord(testContext, record)

	// A second rebuild replaces the canonical table; the approved edit must still show.
	if _, err := engine.Rebuild(ctx); err != nil {
		testContext.Fatalf("second rebuild failed: %v", err)
	}
	assertPipelineRecord(testContext, fetchCharacter(testContext, handler, "水"))

	ledger, err := snapshots.NewLedger(db)
	if err != nil {
		testContext.Fatalf("failed to build ledger: %v", err)
	}
	entries, err := ledger.List(ctx)
	if err != nil || len(entries) != len(pipelinePayloads) {
		testContext.Fatalf("unexpected ledger entries %v %v", entries, err)
	}
}

func newPipelineHandler(testContext *testing.T, db *gorm.DB) http.Handler {
	testContext.Helper()
	sessions, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(sessionSigningSecret),
		Issuer:        sessionIssuer,
		CookieName:    sessionCookieName,
	})
	if err != nil {
		testContext.Fatalf("failed to construct session validator: %v", err)
	}
	revisionService, err := revisions.NewService(revisions.ServiceConfig{Database: db, Logger: zap.NewNop()})
	if err != nil {
		testContext.Fatalf("failed to build revision service: %v", err)
	}
	view, err := revisions.NewEffectiveView(db)
	if err != nil {
		testContext.Fatalf("failed to build view: %v", err)
	}
	ledger, err := snapshots.NewLedger(db)
	if err != nil {
		testContext.Fatalf("failed to build ledger: %v", err)
	}
	handler, err := server.NewHTTPHandler(server.Dependencies{
		Sessions:  sessions,
		View:      view,
		Revisions: revisionService,
		Ledger:    ledger,
		Logger:    zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to construct http handler: %v", err)
	}
	return handler
}

func fetchCharacter(testContext *testing.T, handler http.Handler, character string) characters.Character {
	testContext.Helper()
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/characters/"+character, http.NoBody))
	if recorder.Code != http.StatusOK {
		testContext.Fatalf("unexpected lookup status %d: %s", recorder.Code, recorder.Body.String())
	}
	var record characters.Character
	if err := json.Unmarshal(recorder.Body.Bytes(), &record); err != nil {
		testContext.Fatalf("failed to decode record: %v", err)
	}
	return record
}

func assertPipelineRecord(testContext *testing.T, record characters.Character) {
	testContext.Helper()
	if record.Gloss == nil || *record.Gloss != "water" {
		testContext.Fatalf("expected dictionary gloss to win, got %v", record.Gloss)
	}
	if record.Hint == nil || *record.Hint != "three drops beside a stream" {
		testContext.Fatalf("expected approved hint overlay, got %v", record.Hint)
	}
	if record.StrokeCount == nil || *record.StrokeCount != 4 || len(record.Medians) != 4 {
		testContext.Fatalf("expected stroke data from makemeahanzi, got %v %v", record.StrokeCount, record.Medians)
	}
	if record.SubtlexRank == nil || *record.SubtlexRank != 210 {
		testContext.Fatalf("expected subtlex rank, got %v", record.SubtlexRank)
	}
}
