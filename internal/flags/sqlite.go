package flags

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/symptom-ledger-server/internal/domain"
)

// SQLiteStore implements domain.BiomarkerFlagStore using SQLite
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	log    *logrus.Logger
	now    func() time.Time
}

// NewSQLiteStore creates a new SQLite flag store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string, logger *logrus.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
		log:    logger,
		now:    time.Now,
	}, nil
}

// createSchema creates the flag table and its indexes
func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS biomarker_flags (
			id                 TEXT PRIMARY KEY,
			user_id            TEXT NOT NULL,
			biomarker          TEXT NOT NULL,
			reason             TEXT NOT NULL,
			note               TEXT NOT NULL DEFAULT '',
			status             TEXT NOT NULL DEFAULT 'active',
			source             TEXT NOT NULL DEFAULT '',
			triggering_symptom TEXT NOT NULL DEFAULT '',
			created_at         DATETIME NOT NULL,
			removed_at         DATETIME
		);

		CREATE UNIQUE INDEX IF NOT EXISTS uq_biomarker_flags_active
			ON biomarker_flags (user_id, biomarker, reason, source)
			WHERE status = 'active';

		CREATE INDEX IF NOT EXISTS idx_biomarker_flags_user_status
			ON biomarker_flags (user_id, status);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateFlag inserts flag unless an active flag with the same biomarker, reason
// and source exists.
func (s *SQLiteStore) CreateFlag(ctx context.Context, flag *domain.BiomarkerFlag) (bool, error) {
	if err := prepareFlag(flag, s.now()); err != nil {
		return false, err
	}

	query := `
		INSERT INTO biomarker_flags (
			id, user_id, biomarker, reason, note, status, source, triggering_symptom, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, biomarker, reason, source) WHERE status = 'active' DO NOTHING
	`

	result, err := s.db.ExecContext(ctx, query,
		flag.ID, flag.UserID, flag.Biomarker, flag.Reason, flag.Note,
		string(flag.Status), flag.Source, flag.TriggeringSymptom, flag.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create biomarker flag: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

// HasActiveFlag reports whether any active flag exists for the biomarker
func (s *SQLiteStore) HasActiveFlag(ctx context.Context, userID, biomarker string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM biomarker_flags WHERE user_id = ? AND biomarker = ? AND status = 'active'`,
		userID, biomarker,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check biomarker flag: %w", err)
	}
	return count > 0, nil
}

// RemoveFlags marks the active flags of biomarker as removed. An empty reason
// matches every reason.
func (s *SQLiteStore) RemoveFlags(ctx context.Context, userID, biomarker, reason string) (int, error) {
	query := `
		UPDATE biomarker_flags
		SET status = 'removed', removed_at = ?
		WHERE user_id = ? AND biomarker = ? AND status = 'active'
			AND (? = '' OR reason = ?)
	`

	result, err := s.db.ExecContext(ctx, query, s.now().UTC(), userID, biomarker, reason, reason)
	if err != nil {
		return 0, fmt.Errorf("failed to remove biomarker flags: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected > 0 {
		s.log.WithFields(logrus.Fields{
			"user_id":   userID,
			"biomarker": biomarker,
			"reason":    reason,
			"removed":   affected,
		}).Debug("Biomarker flags removed")
	}
	return int(affected), nil
}

// ListActive returns the user's active flags ordered by biomarker
func (s *SQLiteStore) ListActive(ctx context.Context, userID string) ([]*domain.BiomarkerFlag, error) {
	query := `SELECT ` + flagColumns + ` FROM biomarker_flags
		WHERE user_id = ? AND status = 'active'
		ORDER BY biomarker, created_at`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list biomarker flags: %w", err)
	}
	defer rows.Close()

	var flags []*domain.BiomarkerFlag
	for rows.Next() {
		flag, err := scanFlag(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan biomarker flag: %w", err)
		}
		flags = append(flags, flag)
	}
	return flags, rows.Err()
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
