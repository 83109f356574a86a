package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/peterolson/dong-chinese-v2-sub000/internal/auth"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/revisions"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/server"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/snapshots"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func runServer(ctx context.Context) error {
	rt, err := openRuntime(ctx, "serve")
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())

	if err := rt.config.ValidateServer(); err != nil {
		return err
	}

	sessions, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(rt.config.SessionSigningKey),
		Issuer:        rt.config.SessionIssuer,
		CookieName:    rt.config.SessionCookieName,
	})
	if err != nil {
		return err
	}

	revisionService, err := revisions.NewService(revisions.ServiceConfig{
		Database:   rt.db,
		Clock:      time.Now,
		IDProvider: revisions.NewUUIDProvider(),
		Logger:     rt.logger,
	})
	if err != nil {
		return err
	}
	view, err := revisions.NewEffectiveView(rt.db)
	if err != nil {
		return err
	}
	ledger, err := snapshots.NewLedger(rt.db)
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Sessions:            sessions,
		AnonymousCookieName: rt.config.AnonymousCookieName,
		AllowedOrigins:      rt.config.AllowedOrigins,
		View:                view,
		Revisions:           revisionService,
		Ledger:              ledger,
		Events:              server.NewReviewDispatcher(),
		Logger:              rt.logger,
		ServiceName:         rt.config.ServiceName,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    rt.config.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		rt.logger.Info("server starting", zap.String("address", rt.config.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
