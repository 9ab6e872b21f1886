package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shivamSspirit/volition/internal/api"
	"github.com/shivamSspirit/volition/internal/config"
	"github.com/shivamSspirit/volition/internal/domain"
	"github.com/shivamSspirit/volition/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the decision core server",
	Run: func(cmd *cobra.Command, args []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func newLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	if level, err := zapcore.ParseLevel(config.LogLevel()); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(level)
	}
	logger, err := cfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

func serve() {
	if err := config.Load(); err != nil {
		zap.NewExample().Fatal("failed to load config", zap.Error(err))
	}

	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	// Postgres-backed snapshots when DATABASE_URL is set, in-memory
	// otherwise. In-memory state does not survive restarts.
	var snapshots domain.SnapshotStore
	var pool *pgxpool.Pool
	if dbURL := config.DatabaseURL(); dbURL != "" {
		var err error
		pool, err = pgxpool.New(ctx, dbURL)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			logger.Fatal("failed to ping database", zap.Error(err))
		}

		snapshotStore := store.NewSnapshotStore(pool)
		if err := snapshotStore.Init(ctx); err != nil {
			logger.Fatal("failed to initialize snapshot schema", zap.Error(err))
		}
		snapshots = snapshotStore
		logger.Info("connected to database")
	} else {
		snapshots = store.NewInMemorySnapshotStore()
		logger.Warn("DATABASE_URL not set, state will not survive restarts")
	}

	app := api.NewApp(pool, snapshots, logger)

	if err := app.Restore(ctx); err != nil {
		logger.Fatal("failed to restore state", zap.Error(err))
	}

	// Start background services
	app.Scheduler.Start()
	app.Reconciler.Start()

	addr := config.ServerAddr()
	srv := &http.Server{
		Addr:    addr,
		Handler: app.Router,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down server")

	app.Scheduler.Stop()
	app.Reconciler.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
