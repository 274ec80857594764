package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	bolt "go.etcd.io/bbolt"

	"wacast/internal/api"
	"wacast/internal/campaign"
	"wacast/internal/config"
	"wacast/internal/db"
	"wacast/internal/dispatch"
	"wacast/internal/gateway"
	"wacast/internal/metrics"
	"wacast/internal/quota"
	"wacast/internal/scheduler"
	"wacast/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the campaign dispatch server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	m := metrics.New()
	metrics.SetGlobal(m)

	database, err := db.New(cfg.Storage.DatabasePath)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		return err
	}

	quotaDB, err := bolt.Open(cfg.Storage.QuotaPath, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("failed to open quota database: %w", err)
	}
	defer quotaDB.Close()

	ledger, err := quota.NewLedger(quotaDB, quota.Config{FlushInterval: cfg.Quota.FlushInterval})
	if err != nil {
		return fmt.Errorf("failed to create quota ledger: %w", err)
	}
	defer ledger.Stop()

	campaigns := store.NewCampaignStore(database.DB)
	accounts := store.NewAccountStore(database.DB)
	apikeys := store.NewAPIKeyStore(database.DB)

	client := gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.Timeout)

	engine := dispatch.New(campaigns, ledger, client, logger, dispatch.Config{
		BatchSize:          cfg.Dispatch.BatchSize,
		RatePerSecond:      cfg.Dispatch.RatePerSecond,
		ProgressRetries:    cfg.Dispatch.ProgressRetries,
		ProgressRetryDelay: cfg.Dispatch.ProgressRetryDelay,
	})

	service := campaign.NewService(campaigns, accounts, ledger, engine, logger)

	sched := scheduler.New(campaigns, accounts, engine, cfg.Scheduler.PollInterval, logger)

	server := api.NewServer(service, accounts, apikeys, m.Registry(), &cfg.Server, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	sched.Stop()
	cancel()

	// Let in-flight dispatch runs persist their current batch.
	engine.Wait()

	return nil
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
