package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/peterolson/dong-chinese-v2-sub000/internal/auth"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/config"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/corpora"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/lease"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/merge"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/snapshots"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const rebuildLeaseName = "rebuild"

func newIngestCommand() *cobra.Command {
	var corpus string
	var file string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest an NDJSON snapshot of one corpus",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), cmd.OutOrStdout(), corpus, file)
		},
	}
	cmd.Flags().StringVar(&corpus, "corpus", "", "Corpus name ("+strings.Join(corpora.Names(), ", ")+")")
	cmd.Flags().StringVar(&file, "file", "", "NDJSON payload path, or - for stdin")
	_ = cmd.MarkFlagRequired("corpus")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runIngest(ctx context.Context, out io.Writer, corpus, file string) error {
	rt, err := openRuntime(ctx, "ingest")
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())

	syncers, err := corpora.Syncers(snapshots.IngesterConfig{
		Database:  rt.db,
		Clock:     time.Now,
		BatchSize: rt.config.IngestBatchSize,
		Logger:    rt.logger,
	})
	if err != nil {
		return err
	}
	syncer, ok := syncers[corpus]
	if !ok {
		return fmt.Errorf("unknown corpus %q", corpus)
	}

	raw, err := readPayload(file)
	if err != nil {
		return err
	}

	outcome, err := syncer.Ingest(ctx, raw)
	if err != nil {
		return err
	}
	rt.logger.Info("ingest finished",
		zap.String("corpus", outcome.Corpus),
		zap.Bool("skipped", outcome.Skipped),
		zap.Int64("version", outcome.Version),
		zap.Int("parse_errors", outcome.ParseErrors),
	)
	return writeJSON(out, outcome)
}

func readPayload(file string) ([]byte, error) {
	if file == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(file)
}

func newRebuildCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the canonical character table from current snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRebuild(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func runRebuild(ctx context.Context, out io.Writer) error {
	rt, err := openRuntime(ctx, "rebuild")
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())

	engineConfig := merge.Config{
		Database:  rt.db,
		Clock:     time.Now,
		BatchSize: rt.config.MergeBatchSize,
		Logger:    rt.logger,
	}
	if rt.config.RedisURL != "" {
		guard, err := lease.Dial(rt.config.RedisURL, rebuildLeaseName, rt.config.RebuildLeaseTTL)
		if err != nil {
			return err
		}
		defer guard.Close()
		engineConfig.Guard = guard
	}

	engine, err := merge.NewEngine(engineConfig)
	if err != nil {
		return err
	}
	report, err := engine.Rebuild(ctx)
	if err != nil {
		return err
	}
	return writeJSON(out, report)
}

func newLedgerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ledger",
		Short: "Print the sync ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLedger(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func runLedger(ctx context.Context, out io.Writer) error {
	rt, err := openRuntime(ctx, "ledger")
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())

	ledger, err := snapshots.NewLedger(rt.db)
	if err != nil {
		return err
	}
	entries, err := ledger.List(ctx)
	if err != nil {
		return err
	}
	return writeJSON(out, entries)
}

func newTokenCommand() *cobra.Command {
	var userID string
	var displayName string
	var roles []string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a session token for local development and operator scripts",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			issuer, err := auth.NewSessionIssuer(auth.SessionIssuerConfig{
				SigningSecret: []byte(appConfig.SessionSigningKey),
				Issuer:        appConfig.SessionIssuer,
				TokenTTL:      ttl,
			})
			if err != nil {
				return err
			}
			sort.Strings(roles)
			token, expiresAt, err := issuer.Issue(userID, displayName, roles)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"token":     token,
				"expiresAt": expiresAt,
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User id carried in the token")
	cmd.Flags().StringVar(&displayName, "name", "", "Display name")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "Roles to grant (repeatable), e.g. "+auth.RoleReviewer)
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func writeJSON(out io.Writer, value any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(value)
}
