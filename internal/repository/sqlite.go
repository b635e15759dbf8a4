package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/symptom-ledger-server/internal/domain"
)

// SQLiteSymptomRepository stores ledgers in a local SQLite file
type SQLiteSymptomRepository struct {
	db     *sql.DB
	dbPath string
	log    *logrus.Logger
}

// NewSQLiteSymptomRepository opens (or creates) the database at dbPath and
// ensures the schema exists.
func NewSQLiteSymptomRepository(dbPath string, logger *logrus.Logger) (*SQLiteSymptomRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serializes writers, so a transaction never sees
	// SQLITE_BUSY from a sibling connection.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := createLedgerSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	repo := newSQLiteSymptomRepository(db, logger)
	repo.dbPath = dbPath
	return repo, nil
}

func newSQLiteSymptomRepository(db *sql.DB, logger *logrus.Logger) *SQLiteSymptomRepository {
	return &SQLiteSymptomRepository{db: db, log: logger}
}

func createLedgerSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS symptom_ledgers (
			user_id       TEXT PRIMARY KEY,
			symptom_log   TEXT NOT NULL DEFAULT '{}',
			trigger_store TEXT NOT NULL DEFAULT '{}',
			version       INTEGER NOT NULL DEFAULT 1,
			created_at    DATETIME NOT NULL,
			updated_at    DATETIME NOT NULL
		);
	`)
	return err
}

// Get loads the ledger of userID. A user without a row gets an empty version 0
// document.
func (r *SQLiteSymptomRepository) Get(ctx context.Context, userID string) (*domain.LedgerDocument, error) {
	var logJSON, triggersJSON string
	var version int64
	err := r.db.QueryRowContext(ctx,
		`SELECT symptom_log, trigger_store, version FROM symptom_ledgers WHERE user_id = ?`,
		userID,
	).Scan(&logJSON, &triggersJSON, &version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NewLedgerDocument(userID, time.Time{}), nil
		}
		return nil, fmt.Errorf("getting symptom ledger: %w", err)
	}
	return decodeDocument(r.log, userID, []byte(logJSON), []byte(triggersJSON), version), nil
}

// Save writes doc if the stored version still equals doc.Version, advancing
// doc.Version on commit.
func (r *SQLiteSymptomRepository) Save(ctx context.Context, doc *domain.LedgerDocument) error {
	logJSON, triggersJSON, err := encodeDocument(doc)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var current int64
	err = tx.QueryRowContext(ctx,
		`SELECT version FROM symptom_ledgers WHERE user_id = ?`,
		doc.UserID,
	).Scan(&current)
	exists := true
	if errors.Is(err, sql.ErrNoRows) {
		exists = false
	} else if err != nil {
		return fmt.Errorf("reading ledger version: %w", err)
	}

	if current != doc.Version {
		return fmt.Errorf("%w: stored version %d, have %d", domain.ErrVersionConflict, current, doc.Version)
	}

	now := time.Now().UTC()
	var result sql.Result
	if exists {
		result, err = tx.ExecContext(ctx, `
			UPDATE symptom_ledgers
			SET symptom_log = ?, trigger_store = ?, version = version + 1, updated_at = ?
			WHERE user_id = ? AND version = ?`,
			string(logJSON), string(triggersJSON), now, doc.UserID, doc.Version,
		)
	} else {
		result, err = tx.ExecContext(ctx, `
			INSERT INTO symptom_ledgers (user_id, symptom_log, trigger_store, version, created_at, updated_at)
			VALUES (?, ?, ?, 1, ?, ?)
			ON CONFLICT (user_id) DO NOTHING`,
			doc.UserID, string(logJSON), string(triggersJSON), now, now,
		)
	}
	if err != nil {
		return fmt.Errorf("writing symptom ledger: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking written rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: version %d was replaced", domain.ErrVersionConflict, doc.Version)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing symptom ledger: %w", err)
	}

	doc.Version++
	return nil
}

// Delete removes the ledger of userID
func (r *SQLiteSymptomRepository) Delete(ctx context.Context, userID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM symptom_ledgers WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("deleting symptom ledger: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking deleted rows: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Health pings the database
func (r *SQLiteSymptomRepository) Health(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database
func (r *SQLiteSymptomRepository) Close() error {
	return r.db.Close()
}
