package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/BerniPi/BGBB-IKT/internal/application"
	"github.com/BerniPi/BGBB-IKT/internal/audit"
	"github.com/BerniPi/BGBB-IKT/internal/auth"
	"github.com/BerniPi/BGBB-IKT/internal/config"
	httptransport "github.com/BerniPi/BGBB-IKT/internal/http"
	"github.com/BerniPi/BGBB-IKT/internal/persistence/sqlite"
	"github.com/BerniPi/BGBB-IKT/internal/persistence/sqlite/migration"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Apply pending migrations and serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg, cmd.OutOrStdout())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func openStorage(cfg config.Config, logger *slog.Logger) (*sqlite.Storage, error) {
	dbConfig := migration.DefaultSQLiteConfig(cfg.SQLitePath)
	dbConfig.BusyTimeout = cfg.SQLiteBusyTimeout
	return sqlite.Open(dbConfig, logger)
}

type app struct {
	storage *sqlite.Storage
	emitter *audit.Emitter
	handler http.Handler
}

// newApp wires storage, services and the router. The caller owns Close.
func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	storage, err := openStorage(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := storage.Migrate(ctx); err != nil {
		_ = storage.Close()
		return nil, err
	}

	tokens, err := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL, time.Now)
	if err != nil {
		_ = storage.Close()
		return nil, err
	}

	emitter := audit.NewEmitter(storage,
		audit.WithQueueSize(cfg.AuditQueueSize),
		audit.WithLogger(logger),
		audit.WithRetrier(sqlite.NewRetryHelper(sqlite.DefaultRetryConfig())),
	)
	emitter.Start()

	idGenerator := uuid.NewString
	now := time.Now

	history := application.NewHistoryServiceWithLogger(storage, storage, emitter, idGenerator, now, logger)
	devices := application.NewDeviceServiceWithLogger(storage, storage, emitter, idGenerator, now, logger)
	activity := application.NewActivityService(storage, logger)

	router := httptransport.NewRouter(httptransport.RouterConfig{
		History:     httptransport.NewHistoryHandler(history, logger),
		Devices:     httptransport.NewDeviceHandler(devices, logger),
		Activity:    httptransport.NewActivityHandler(activity, logger),
		Verifier:    tokens,
		Health:      storage,
		CORSOrigins: cfg.CORSOrigins,
		Metrics:     cfg.MetricsEnabled,
		Logger:      logger,
	})

	return &app{storage: storage, emitter: emitter, handler: router}, nil
}

// Close drains pending audit records before the database goes away.
func (a *app) Close(ctx context.Context) error {
	return errors.Join(a.emitter.Close(ctx), a.storage.Close())
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if cerr := a.Close(closeCtx); cerr != nil {
			logger.Error("failed to close resources", "error", cerr)
		}
	}()

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("inventory API listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server encountered error", "error", err)
		return err
	}
	return nil
}
