package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ovaphlow/fridge/internal/auth"
	"github.com/ovaphlow/fridge/internal/config"
	"github.com/ovaphlow/fridge/internal/metrics"
	"github.com/ovaphlow/fridge/internal/router"
	"github.com/ovaphlow/fridge/internal/session"
	"github.com/ovaphlow/fridge/internal/user/repo"
	"github.com/ovaphlow/fridge/pkg/database"
	"github.com/ovaphlow/fridge/pkg/utilities"
)

const shutdownTimeout = 5 * time.Second

// NewServeCmd starts the HTTP server.
func NewServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			// graceful shutdown
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides HTTP_ADDR")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	lg, err := utilities.Init(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = lg.Sync() }()
	sugar := lg.Sugar()
	sugar.Infow("starting fridge", "env", cfg.Env, "store", cfg.Store, "addr", cfg.HTTPAddr)

	store, closeStore, err := openStore(ctx, cfg, sugar)
	if err != nil {
		return err
	}
	defer closeStore()

	handler, err := buildHandler(cfg, store, sugar)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// run server in background
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	sugar.Info("service is running; press Ctrl+C to stop")

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	sugar.Info("shutting down")
	doneCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnw("http server shutdown failed", "err", err)
	}
	sugar.Info("goodbye")
	return nil
}

// openStore returns the configured user store and a func that releases it.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (auth.Store, func(), error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("using the in-memory user store; accounts are lost on restart")
		return repo.NewMemoryRepo(), func() {}, nil
	}

	db, err := database.ConnectX(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("db connect: %w", err)
	}
	r := repo.NewUserRepo(db)
	if err := r.EnsureTable(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ensure tables: %w", err)
	}
	return r, func() {
		if err := db.Close(); err != nil {
			logger.Warnw("db close failed", "err", err)
		}
	}, nil
}

func buildHandler(cfg *config.Config, store auth.Store, logger *zap.SugaredLogger) (http.Handler, error) {
	codec, err := session.New(cfg.SessionOptions())
	if err != nil {
		return nil, fmt.Errorf("session codec: %w", err)
	}
	if codec.Ephemeral() {
		logger.Warnw("no SESSION_SECRET configured, using a random one; every restart logs all users out",
			"fallback", cfg.Session.EphemeralFallback,
			"production", cfg.Production(),
		)
	}
	logger.Infow("session codec ready", "mode", codec.Mode().String(), "encrypted", codec.Encrypted(), "secrets", len(cfg.Session.Secrets))

	newID, err := utilities.NewIDGenerator(cfg.IDStrategy, cfg.SnowflakeNode)
	if err != nil {
		return nil, err
	}

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	svc := auth.NewService(store, codec, logger, auth.Options{
		MinPasswordLength: cfg.PasswordMinLength,
		NewID:             newID,
		Metrics:           m,
	})
	return router.RegisterRoutes(router.Deps{
		Auth:    auth.NewHandler(svc, logger),
		Metrics: m,
		Logger:  logger,
	}), nil
}
