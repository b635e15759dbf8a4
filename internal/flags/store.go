// Package flags stores biomarker flags: markers that a lab biomarker is worth
// testing for a user. Flags are created by the symptom correlator and by
// clinicians, and removing the last active flag of a biomarker lets the ledger
// resolve the symptoms that implicated it.
package flags

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/symptom-ledger-server/internal/domain"
)

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// prepareFlag validates flag and fills in its id, status and creation time
func prepareFlag(flag *domain.BiomarkerFlag, now time.Time) error {
	if flag == nil {
		return domain.NewValidationError("flag", "flag is required", nil)
	}
	flag.UserID = strings.TrimSpace(flag.UserID)
	flag.Biomarker = strings.TrimSpace(flag.Biomarker)
	if flag.UserID == "" {
		return domain.NewValidationError("user_id", "user id is required", flag.UserID)
	}
	if flag.Biomarker == "" {
		return domain.NewValidationError("biomarker_name", "biomarker is required", flag.Biomarker)
	}
	if flag.Reason == "" {
		return domain.NewValidationError("reason", "reason is required", flag.Reason)
	}
	if flag.ID == "" {
		flag.ID = uuid.NewString()
	}
	if flag.Status == "" {
		flag.Status = domain.FlagActive
	}
	if flag.Status != domain.FlagActive {
		return domain.NewValidationError("status", fmt.Sprintf("new flags must be active, got %q", flag.Status), flag.Status)
	}
	if flag.CreatedAt.IsZero() {
		flag.CreatedAt = now
	}
	flag.CreatedAt = flag.CreatedAt.UTC()
	flag.RemovedAt = nil
	return nil
}

// scanFlag scans a row selected with flagColumns
func scanFlag(s scanner) (*domain.BiomarkerFlag, error) {
	flag := &domain.BiomarkerFlag{}
	var status string
	var removedAt sql.NullTime

	err := s.Scan(
		&flag.ID, &flag.UserID, &flag.Biomarker, &flag.Reason, &flag.Note,
		&status, &flag.Source, &flag.TriggeringSymptom, &flag.CreatedAt, &removedAt,
	)
	if err != nil {
		return nil, err
	}

	flag.Status = domain.FlagStatus(status)
	flag.CreatedAt = flag.CreatedAt.UTC()
	if removedAt.Valid {
		t := removedAt.Time.UTC()
		flag.RemovedAt = &t
	}
	return flag, nil
}

const flagColumns = `id, user_id, biomarker, reason, note, status, source, triggering_symptom, created_at, removed_at`
