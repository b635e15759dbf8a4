package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/symptom-ledger-server/internal/api"
	"github.com/symptom-ledger-server/internal/cache"
	"github.com/symptom-ledger-server/internal/config"
	"github.com/symptom-ledger-server/internal/database"
	"github.com/symptom-ledger-server/internal/flags"
	"github.com/symptom-ledger-server/internal/logging"
	"github.com/symptom-ledger-server/internal/repository"
	"github.com/symptom-ledger-server/internal/service"
	"github.com/symptom-ledger-server/pkg/external"
)

func main() {
	registry := service.NewDefaultRegistry()
	known := make([]string, 0, len(registry.Types()))
	for _, t := range registry.Types() {
		known = append(known, t.String())
	}

	// Load configuration
	configManager, err := config.NewManager(config.WithKnownAssessmentTypes(known...))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(ctx, configManager, os.Args[2:], logger); err != nil {
			logger.WithError(err).Fatal("Migration failed")
		}
		return
	}

	if err := run(ctx, configManager, registry, logger); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}

	logger.Info("Server stopped")
}

func run(ctx context.Context, configManager *config.Manager, registry *service.ExtractorRegistry, logger *logrus.Logger) error {
	cfg := configManager.GetConfig()

	registry, err := registry.Restrict(cfg.Assessments.EnabledTypes)
	if err != nil {
		return err
	}

	if err := database.Migrate(ctx, configManager.GetDatabaseURL(), cfg.Database.MigrationsPath, logger); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	db, err := database.NewConnection(ctx, database.FromDatabaseConfig(cfg.Database), logger)
	if err != nil {
		return err
	}
	repo := repository.NewPostgresSymptomRepository(db, logger)
	defer repo.Close()

	flagStore, err := flags.NewPostgresStoreFromURL(configManager.GetDatabaseURL(), logger)
	if err != nil {
		return err
	}
	defer flagStore.Close()

	ledgerCache, err := cache.NewRedisCache(ctx, cfg.Cache, logger)
	if err != nil {
		return err
	}
	defer ledgerCache.Close()

	provider := external.NewAssessmentClient(cfg.Assessments.Provider, logger)

	svc, err := service.NewSymptomService(service.Dependencies{
		Repository: repo,
		Provider:   provider,
		Flags:      flagStore,
		Cache:      ledgerCache,
		Registry:   registry,
	}, cfg.Ledger, cfg.Assessments.Provider.MaxTypesInFlight, logger)
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"host":        cfg.Server.Host,
		"port":        cfg.Server.Port,
		"assessments": registry.Types(),
		"production":  configManager.IsProduction(),
	}).Info("Starting symptom ledger server")

	return api.NewServer(svc, cfg.Server, logger).Start(ctx)
}

// runMigrate handles "migrate [up|down|version]"
func runMigrate(ctx context.Context, configManager *config.Manager, args []string, logger *logrus.Logger) error {
	runner, err := database.NewMigrationRunner(configManager.GetDatabaseURL(), configManager.GetDatabaseConfig().MigrationsPath, logger)
	if err != nil {
		return err
	}
	defer runner.Close()

	command := "up"
	if len(args) > 0 {
		command = args[0]
	}

	switch command {
	case "up":
		return runner.Up(ctx)
	case "down":
		return runner.Down(ctx)
	case "version":
		version, dirty, err := runner.Version()
		if err != nil {
			return err
		}
		fmt.Printf("version %d (dirty: %t)\n", version, dirty)
		return nil
	default:
		return fmt.Errorf("unknown migrate command %q (want up, down or version)", command)
	}
}
