package flags

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/symptom-ledger-server/internal/domain"
)

// PostgresStore implements domain.BiomarkerFlagStore using PostgreSQL
type PostgresStore struct {
	db  *sql.DB
	log *logrus.Logger
	now func() time.Time
}

// NewPostgresStore creates a flag store over an open connection.
// It expects the biomarker_flags table to exist (created via migrations).
func NewPostgresStore(db *sql.DB, logger *logrus.Logger) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db, log: logger, now: time.Now}, nil
}

// NewPostgresStoreFromURL opens a pooled connection and creates a flag store
func NewPostgresStoreFromURL(databaseURL string, logger *logrus.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// CreateFlag inserts flag unless an active flag with the same biomarker, reason
// and source exists.
func (s *PostgresStore) CreateFlag(ctx context.Context, flag *domain.BiomarkerFlag) (bool, error) {
	if err := prepareFlag(flag, s.now()); err != nil {
		return false, err
	}

	query := `
		INSERT INTO biomarker_flags (
			id, user_id, biomarker, reason, note, status, source, triggering_symptom, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, biomarker, reason, source) WHERE status = 'active' DO NOTHING
	`

	result, err := s.db.ExecContext(ctx, query,
		flag.ID,
		flag.UserID,
		flag.Biomarker,
		flag.Reason,
		flag.Note,
		string(flag.Status),
		flag.Source,
		flag.TriggeringSymptom,
		flag.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create biomarker flag: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	s.log.WithFields(logrus.Fields{
		"user_id":   flag.UserID,
		"biomarker": flag.Biomarker,
		"reason":    flag.Reason,
	}).Debug("Biomarker flag created")
	return true, nil
}

// HasActiveFlag reports whether any active flag exists for the biomarker
func (s *PostgresStore) HasActiveFlag(ctx context.Context, userID, biomarker string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM biomarker_flags
			WHERE user_id = $1 AND biomarker = $2 AND status = 'active'
		)
	`

	var exists bool
	if err := s.db.QueryRowContext(ctx, query, userID, biomarker).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check biomarker flag: %w", err)
	}
	return exists, nil
}

// RemoveFlags marks the active flags of biomarker as removed. An empty reason
// matches every reason.
func (s *PostgresStore) RemoveFlags(ctx context.Context, userID, biomarker, reason string) (int, error) {
	query := `
		UPDATE biomarker_flags
		SET status = 'removed', removed_at = $4
		WHERE user_id = $1 AND biomarker = $2 AND status = 'active'
			AND ($3 = '' OR reason = $3)
	`

	result, err := s.db.ExecContext(ctx, query, userID, biomarker, reason, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to remove biomarker flags: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return int(affected), nil
}

// ListActive returns the user's active flags ordered by biomarker
func (s *PostgresStore) ListActive(ctx context.Context, userID string) ([]*domain.BiomarkerFlag, error) {
	query := `
		SELECT ` + flagColumns + `
		FROM biomarker_flags
		WHERE user_id = $1 AND status = 'active'
		ORDER BY biomarker, created_at
	`

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
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
