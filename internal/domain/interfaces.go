package domain

import (
	"context"
)

// SymptomRepository persists ledger documents. Save is a compare-and-swap on
// LedgerDocument.Version: the log and trigger store are committed together or not
// at all, and a stale version yields ErrVersionConflict.
type SymptomRepository interface {
	// Get returns the stored document, or a fresh empty document with Version 0
	Get(ctx context.Context, userID string) (*LedgerDocument, error)
	// Save writes the document and advances doc.Version on success
	Save(ctx context.Context, doc *LedgerDocument) error
	Health(ctx context.Context) error
	Close() error
}

// AssessmentProvider exposes the raw answers and scores of one assessment type.
// A nil snapshot with a nil error means the user has not taken the assessment.
type AssessmentProvider interface {
	Snapshot(ctx context.Context, userID string, t AssessmentType) (*AssessmentSnapshot, error)
}

// AssessmentRecorder accepts assessment submissions. Providers that own their
// data (the in-process store) implement it; remote providers do not.
type AssessmentRecorder interface {
	Record(ctx context.Context, snapshot *AssessmentSnapshot) error
}

// BiomarkerFlagStore is the external owner of biomarker flags
type BiomarkerFlagStore interface {
	// CreateFlag stores an active flag unless an active flag with the same
	// biomarker, reason and source already exists. It reports whether a new flag
	// was created.
	CreateFlag(ctx context.Context, flag *BiomarkerFlag) (bool, error)
	// HasActiveFlag reports whether any active flag exists for the biomarker
	HasActiveFlag(ctx context.Context, userID, biomarker string) (bool, error)
	// RemoveFlags marks the active flags for biomarker and reason as removed.
	// An empty reason removes every active flag of the biomarker.
	RemoveFlags(ctx context.Context, userID, biomarker, reason string) (int, error)
	// ListActive returns the user's active flags
	ListActive(ctx context.Context, userID string) ([]*BiomarkerFlag, error)
	Close() error
}

// LedgerCache is a read-through cache of persisted symptom logs
type LedgerCache interface {
	Get(ctx context.Context, userID string) (*SymptomLog, bool, error)
	Set(ctx context.Context, log *SymptomLog) error
	Invalidate(ctx context.Context, userID string) error
	Close() error
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetServerConfig() *ServerConfig
	GetAssessmentsConfig() *AssessmentsConfig
	GetLedgerConfig() *LedgerConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetDatabaseURL() string
	GetRedisConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
