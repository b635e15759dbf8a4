// Package main provides the lightweight entry point for the symptom ledger server.
// This version requires no external services: assessments are submitted over HTTP
// and kept in process, ledgers and flags live in SQLite and logs are cached in memory.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/symptom-ledger-server/internal/api"
	"github.com/symptom-ledger-server/internal/assessment"
	"github.com/symptom-ledger-server/internal/cache"
	"github.com/symptom-ledger-server/internal/config"
	"github.com/symptom-ledger-server/internal/domain"
	"github.com/symptom-ledger-server/internal/flags"
	"github.com/symptom-ledger-server/internal/logging"
	"github.com/symptom-ledger-server/internal/repository"
	"github.com/symptom-ledger-server/internal/service"
)

func main() {
	cfg := config.LoadLiteConfig()

	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("Symptom ledger (lite) failed")
	}

	logger.Info("Symptom ledger (lite) stopped")
}

func run(ctx context.Context, cfg *config.LiteConfig, logger *logrus.Logger) error {
	registry, err := service.NewDefaultRegistry().Restrict(cfg.EnabledTypes)
	if err != nil {
		return err
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return err
	}

	repo, err := repository.NewSQLiteSymptomRepository(cfg.LedgerDBPath(), logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	flagStore, err := flags.NewSQLiteStore(cfg.FlagsDBPath(), logger)
	if err != nil {
		return err
	}
	defer flagStore.Close()

	ledgerCache := cache.NewMemoryCache(cfg.CacheMaxItems, cfg.CacheTTL)
	defer ledgerCache.Close()

	svc, err := service.NewSymptomService(service.Dependencies{
		Repository: repo,
		Provider:   assessment.NewStore(),
		Flags:      flagStore,
		Cache:      ledgerCache,
		Registry:   registry,
	}, domain.LedgerConfig{
		MaxConflictRetries: cfg.MaxConflictRetries,
		StoreTimeout:       cfg.StoreTimeout,
	}, 0, logger)
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"data_dir":    cfg.DataDir,
		"host":        cfg.HTTPHost,
		"port":        cfg.HTTPPort,
		"assessments": registry.Types(),
	}).Info("Starting symptom ledger (lite)")

	server := api.NewServer(svc, domain.ServerConfig{
		Host:           cfg.HTTPHost,
		Port:           cfg.HTTPPort,
		RequestTimeout: cfg.StoreTimeout * 2,
	}, logger)
	return server.Start(ctx)
}
