package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/symptom-ledger-server/internal/database"
	"github.com/symptom-ledger-server/internal/domain"
)

// PostgresSymptomRepository stores one ledger row per user in PostgreSQL
type PostgresSymptomRepository struct {
	db  *database.DB
	log *logrus.Logger
}

// NewPostgresSymptomRepository creates a repository over an open pool. The
// symptom_ledgers table is created by the migrations.
func NewPostgresSymptomRepository(db *database.DB, logger *logrus.Logger) *PostgresSymptomRepository {
	return &PostgresSymptomRepository{
		db:  db,
		log: logger,
	}
}

// Get loads the ledger of userID. A user without a row gets an empty version 0
// document.
func (r *PostgresSymptomRepository) Get(ctx context.Context, userID string) (*domain.LedgerDocument, error) {
	query := `
		SELECT symptom_log, trigger_store, version
		FROM symptom_ledgers
		WHERE user_id = $1`

	var logJSON, triggersJSON []byte
	var version int64
	err := r.db.Pool.QueryRow(ctx, query, userID).Scan(&logJSON, &triggersJSON, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.NewLedgerDocument(userID, time.Time{}), nil
		}
		r.log.WithFields(logrus.Fields{
			"user_id": userID,
			"error":   err,
		}).Error("Failed to load symptom ledger")
		return nil, fmt.Errorf("getting symptom ledger: %w", err)
	}

	return decodeDocument(r.log, userID, logJSON, triggersJSON, version), nil
}

// Save writes doc if the stored version still equals doc.Version. Both documents
// are written in one transaction and doc.Version is advanced on commit.
func (r *PostgresSymptomRepository) Save(ctx context.Context, doc *domain.LedgerDocument) error {
	logJSON, triggersJSON, err := encodeDocument(doc)
	if err != nil {
		return err
	}

	err = r.db.WithTx(ctx, func(tx pgx.Tx) error {
		var current int64
		err := tx.QueryRow(ctx,
			`SELECT version FROM symptom_ledgers WHERE user_id = $1 FOR UPDATE`,
			doc.UserID,
		).Scan(&current)
		exists := true
		if errors.Is(err, pgx.ErrNoRows) {
			exists = false
		} else if err != nil {
			return fmt.Errorf("locking symptom ledger: %w", err)
		}

		if current != doc.Version {
			return fmt.Errorf("%w: stored version %d, have %d", domain.ErrVersionConflict, current, doc.Version)
		}

		if !exists {
			tag, err := tx.Exec(ctx, `
				INSERT INTO symptom_ledgers (user_id, symptom_log, trigger_store, version, created_at, updated_at)
				VALUES ($1, $2, $3, 1, NOW(), NOW())
				ON CONFLICT (user_id) DO NOTHING`,
				doc.UserID, string(logJSON), string(triggersJSON),
			)
			if err != nil {
				return fmt.Errorf("inserting symptom ledger: %w", err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("%w: ledger created concurrently", domain.ErrVersionConflict)
			}
			return nil
		}

		tag, err := tx.Exec(ctx, `
			UPDATE symptom_ledgers
			SET symptom_log = $2, trigger_store = $3, version = version + 1, updated_at = NOW()
			WHERE user_id = $1 AND version = $4`,
			doc.UserID, string(logJSON), string(triggersJSON), doc.Version,
		)
		if err != nil {
			return fmt.Errorf("updating symptom ledger: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: version %d was replaced", domain.ErrVersionConflict, doc.Version)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrVersionConflict) {
			r.log.WithFields(logrus.Fields{
				"user_id": doc.UserID,
				"version": doc.Version,
				"error":   err,
			}).Error("Failed to save symptom ledger")
		}
		return err
	}

	doc.Version++
	r.log.WithFields(logrus.Fields{
		"user_id":  doc.UserID,
		"version":  doc.Version,
		"symptoms": len(doc.Log.Symptoms),
	}).Debug("Symptom ledger saved")
	return nil
}

// Delete removes the ledger of userID
func (r *PostgresSymptomRepository) Delete(ctx context.Context, userID string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM symptom_ledgers WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("deleting symptom ledger: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Health pings the database
func (r *PostgresSymptomRepository) Health(ctx context.Context) error {
	return r.db.Health(ctx)
}

// Close closes the pool
func (r *PostgresSymptomRepository) Close() error {
	r.db.Close()
	return nil
}
