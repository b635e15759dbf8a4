package database

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/symptom-ledger-server/internal/domain"
)

func TestFromDatabaseConfig(t *testing.T) {
	cfg := FromDatabaseConfig(domain.DatabaseConfig{
		Host:            "db.internal",
		Port:            5433,
		Database:        "ledger",
		Username:        "ledger",
		Password:        "secret",
		SSLMode:         "require",
		MaxOpenConns:    8,
		MaxIdleConns:    20,
		ConnMaxLifetime: time.Hour,
	})

	if cfg.MaxConns != 8 {
		t.Errorf("MaxConns = %d, want 8", cfg.MaxConns)
	}
	if cfg.MinConns != 8 {
		t.Errorf("MinConns = %d, want it capped at MaxConns", cfg.MinConns)
	}
	if cfg.MaxConnLife != time.Hour {
		t.Errorf("MaxConnLife = %v, want 1h", cfg.MaxConnLife)
	}
}

func TestConfigURL(t *testing.T) {
	cfg := Config{
		Host:     "localhost",
		Port:     5432,
		Database: "symptom_ledger",
		Username: "ledger",
		Password: "p@ss/word",
		SSLMode:  "disable",
	}

	parsed, err := url.Parse(cfg.URL())
	if err != nil {
		t.Fatalf("URL() is not parseable: %v", err)
	}
	if parsed.Scheme != "postgres" {
		t.Errorf("scheme = %q", parsed.Scheme)
	}
	if parsed.Host != "localhost:5432" {
		t.Errorf("host = %q", parsed.Host)
	}
	if password, _ := parsed.User.Password(); password != "p@ss/word" {
		t.Errorf("password = %q, want it preserved through escaping", password)
	}
	if parsed.Path != "/symptom_ledger" {
		t.Errorf("path = %q", parsed.Path)
	}
	if got := parsed.Query().Get("sslmode"); got != "disable" {
		t.Errorf("sslmode = %q", got)
	}
}

func TestDatabaseConnection(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping PostgreSQL container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate PostgreSQL container: %v", err)
		}
	}()

	host, err := pgContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	config := Config{
		Host:        host,
		Port:        port.Int(),
		Database:    "testdb",
		Username:    "testuser",
		Password:    "testpass",
		MaxConns:    10,
		MinConns:    2,
		MaxConnLife: time.Hour,
		MaxConnIdle: time.Minute * 30,
		SSLMode:     "disable",
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	db, err := NewConnection(ctx, config, logger)
	if err != nil {
		t.Fatalf("Failed to create database connection: %v", err)
	}
	defer db.Close()

	if err := db.Health(ctx); err != nil {
		t.Fatalf("Database health check failed: %v", err)
	}
	if stats := db.Stats(); stats.TotalConns() == 0 {
		t.Error("Expected at least one connection in pool")
	}

	if err := Migrate(ctx, config.URL(), "../../migrations", logger); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	t.Run("rolls back when fn fails", func(t *testing.T) {
		boom := errors.New("boom")
		err := db.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx,
				`INSERT INTO symptom_ledgers (user_id, symptom_log, trigger_store, version) VALUES ($1, '{}', '{}', 1)`,
				"rollback-user"); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("WithTx error = %v, want boom", err)
		}

		var count int
		if err := db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM symptom_ledgers WHERE user_id = $1`, "rollback-user").Scan(&count); err != nil {
			t.Fatalf("counting rows: %v", err)
		}
		if count != 0 {
			t.Errorf("row count = %d after rollback, want 0", count)
		}
	})

	t.Run("migrations are idempotent", func(t *testing.T) {
		runner, err := NewMigrationRunner(config.URL(), "../../migrations", logger)
		if err != nil {
			t.Fatalf("creating runner: %v", err)
		}
		defer runner.Close()

		if err := runner.Up(ctx); err != nil {
			t.Fatalf("second Up failed: %v", err)
		}
		version, dirty, err := runner.Version()
		if err != nil {
			t.Fatalf("reading version: %v", err)
		}
		if version != 2 || dirty {
			t.Errorf("version = %d dirty = %v, want 2 clean", version, dirty)
		}
	})
}
