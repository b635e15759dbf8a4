package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/symptom-ledger-server/internal/domain"
)

const defaultMaxConflictRetries = 3

// UpdateResult summarises one update call.
type UpdateResult struct {
	Success          bool `json:"success"`
	SymptomsAdded    int  `json:"symptoms_added"`
	SymptomsResolved int  `json:"symptoms_resolved"`
	FlagsCreated     int  `json:"flags_created"`
	TotalCount       int  `json:"total_count"`
}

// FlagRemovalResult summarises a biomarker flag removal.
type FlagRemovalResult struct {
	FlagsRemoved     int `json:"flags_removed"`
	SymptomsResolved int `json:"symptoms_resolved"`
}

// SymptomService is the entry point of the symptom ledger. Mutations of one user's
// ledger are serialized in process and committed with a version check, so
// concurrent writers on other instances are detected and retried.
type SymptomService struct {
	logger     *logrus.Logger
	repo       domain.SymptomRepository
	cache      domain.LedgerCache
	provider   domain.AssessmentProvider
	flags      domain.BiomarkerFlagStore
	aggregator *Aggregator
	engine     *MergeEngine
	correlator *BiomarkerCorrelator
	locks      *userLocks

	maxRetries   int
	storeTimeout time.Duration
	now          func() time.Time
}

// Dependencies are the collaborators of a SymptomService. Cache is optional.
type Dependencies struct {
	Repository domain.SymptomRepository
	Provider   domain.AssessmentProvider
	Flags      domain.BiomarkerFlagStore
	Cache      domain.LedgerCache
	Registry   *ExtractorRegistry
}

// NewSymptomService wires the ledger components together.
func NewSymptomService(deps Dependencies, cfg domain.LedgerConfig, maxTypesInFlight int, logger *logrus.Logger) (*SymptomService, error) {
	if deps.Repository == nil {
		return nil, fmt.Errorf("symptom repository is required")
	}
	if deps.Provider == nil {
		return nil, fmt.Errorf("assessment provider is required")
	}
	if deps.Flags == nil {
		return nil, fmt.Errorf("biomarker flag store is required")
	}
	registry := deps.Registry
	if registry == nil {
		registry = NewDefaultRegistry()
	}
	retries := cfg.MaxConflictRetries
	if retries <= 0 {
		retries = defaultMaxConflictRetries
	}

	return &SymptomService{
		logger:       logger,
		repo:         deps.Repository,
		cache:        deps.Cache,
		provider:     deps.Provider,
		flags:        deps.Flags,
		aggregator:   NewAggregator(registry, deps.Provider, maxTypesInFlight, logger),
		engine:       NewMergeEngine(logger),
		correlator:   NewBiomarkerCorrelator(deps.Flags, logger),
		locks:        newUserLocks(),
		maxRetries:   retries,
		storeTimeout: cfg.StoreTimeout,
		now:          time.Now,
	}, nil
}

// SetClock replaces the time source of the service and its components.
func (s *SymptomService) SetClock(now func() time.Time) {
	s.now = now
	s.aggregator.now = now
	s.engine.now = now
	s.correlator.now = now
}

// Registry returns the extractor registry in use.
func (s *SymptomService) Registry() *ExtractorRegistry {
	return s.aggregator.Registry()
}

// Update runs extract, aggregate and merge for one assessment type, or for all of
// them when assessment is empty, and flags the biomarkers of the merged symptoms.
// Only persistence failures are reported as errors.
func (s *SymptomService) Update(ctx context.Context, userID string, assessment domain.AssessmentType) (*UpdateResult, error) {
	fields := logrus.Fields{"user_id": userID, "assessment_type": assessment}
	if userID == "" {
		return &UpdateResult{}, domain.NewValidationError("user_id", "user id is required", userID)
	}

	var types []domain.AssessmentType
	if assessment != "" {
		if !s.Registry().Has(assessment) {
			return &UpdateResult{}, fmt.Errorf("%w: %q", domain.ErrUnknownAssessmentType, assessment)
		}
		types = []domain.AssessmentType{assessment}
	}

	release := s.locks.Lock(userID)
	defer release()

	batch, err := s.aggregator.Aggregate(ctx, userID, types...)
	if err != nil {
		return &UpdateResult{}, err
	}

	var outcome *MergeOutcome
	err = s.mutate(ctx, userID, func(doc *domain.LedgerDocument) bool {
		outcome = s.engine.Merge(userID, doc.Log, doc.Triggers, batch, assessment)
		doc.Log = outcome.Log
		doc.Triggers = outcome.Triggers
		return true
	})
	if err != nil {
		s.logger.WithError(err).WithFields(fields).Error("Symptom update failed")
		return &UpdateResult{}, err
	}

	result := &UpdateResult{
		Success:          true,
		SymptomsAdded:    len(outcome.Added),
		SymptomsResolved: len(outcome.Resolved),
		TotalCount:       outcome.Log.TotalCount,
	}
	result.FlagsCreated = s.correlator.FlagFromSymptoms(ctx, userID, outcome.Log.Names())

	s.logger.WithFields(logrus.Fields{
		"user_id":           userID,
		"assessment_type":   assessment,
		"symptoms_added":    result.SymptomsAdded,
		"symptoms_merged":   len(outcome.Merged),
		"symptoms_resolved": result.SymptomsResolved,
		"flags_created":     result.FlagsCreated,
		"total_count":       result.TotalCount,
	}).Info("Symptom ledger updated")

	return result, nil
}

// RecordAssessment stores a submitted snapshot and runs a scoped update. It is only
// available when the assessment provider accepts submissions.
func (s *SymptomService) RecordAssessment(ctx context.Context, snapshot *domain.AssessmentSnapshot) (*UpdateResult, error) {
	recorder, ok := s.provider.(domain.AssessmentRecorder)
	if !ok {
		return &UpdateResult{}, fmt.Errorf("recording assessments: %w", domain.ErrUnsupported)
	}
	if snapshot == nil || snapshot.UserID == "" {
		return &UpdateResult{}, domain.NewValidationError("user_id", "user id is required", nil)
	}
	if !s.Registry().Has(snapshot.Type) {
		return &UpdateResult{}, fmt.Errorf("%w: %q", domain.ErrUnknownAssessmentType, snapshot.Type)
	}
	if snapshot.CompletedAt == nil {
		completed := s.now().UTC()
		snapshot.CompletedAt = &completed
	}
	if err := recorder.Record(ctx, snapshot); err != nil {
		return &UpdateResult{}, fmt.Errorf("recording %s assessment for %s: %w", snapshot.Type, snapshot.UserID, err)
	}
	return s.Update(ctx, snapshot.UserID, snapshot.Type)
}

// OnBiomarkerFlagRemoved removes every symptom whose implicated biomarkers are now
// all unflagged. The reason is informational.
func (s *SymptomService) OnBiomarkerFlagRemoved(ctx context.Context, userID, biomarker, reason string) (int, error) {
	release := s.locks.Lock(userID)
	defer release()

	var removed []string
	err := s.mutate(ctx, userID, func(doc *domain.LedgerDocument) bool {
		removed = s.correlator.ResolveUnflagged(ctx, userID, biomarker, doc.Log, doc.Triggers)
		if len(removed) == 0 {
			return false
		}
		doc.Log.LastUpdated = s.now()
		doc.Log.Rebuild()
		return true
	})
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"user_id":   userID,
			"biomarker": biomarker,
		}).Error("Failed to resolve symptoms after biomarker unflag")
		return 0, err
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":           userID,
		"biomarker":         biomarker,
		"reason":            reason,
		"symptoms_resolved": removed,
	}).Info("Processed biomarker flag removal")

	return len(removed), nil
}

// RemoveBiomarkerFlag removes the user's active flags for a biomarker and then
// processes the removal event.
func (s *SymptomService) RemoveBiomarkerFlag(ctx context.Context, userID, biomarker, reason string) (*FlagRemovalResult, error) {
	count, err := s.flags.RemoveFlags(ctx, userID, biomarker, reason)
	if err != nil {
		return nil, fmt.Errorf("removing %s flags for %s: %w", biomarker, userID, err)
	}
	resolved, err := s.OnBiomarkerFlagRemoved(ctx, userID, biomarker, reason)
	if err != nil {
		return nil, err
	}
	return &FlagRemovalResult{FlagsRemoved: count, SymptomsResolved: resolved}, nil
}

// ListFlags returns the user's active biomarker flags.
func (s *SymptomService) ListFlags(ctx context.Context, userID string) ([]*domain.BiomarkerFlag, error) {
	return s.flags.ListActive(ctx, userID)
}

// GetLog returns the persisted symptom log, reading through the cache. A miss is
// filled under the user lock so a slow read never replaces the entry written by a
// newer mutation.
func (s *SymptomService) GetLog(ctx context.Context, userID string) (*domain.SymptomLog, error) {
	if s.cache == nil {
		doc, err := s.load(ctx, userID)
		if err != nil {
			return nil, err
		}
		return doc.Log, nil
	}
	if log, ok := s.cachedLog(ctx, userID); ok {
		return log, nil
	}

	release := s.locks.Lock(userID)
	defer release()

	if log, ok := s.cachedLog(ctx, userID); ok {
		return log, nil
	}

	doc, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.refreshCache(ctx, doc.Log)
	return doc.Log, nil
}

// GetByCategory returns the category index of the persisted log.
func (s *SymptomService) GetByCategory(ctx context.Context, userID string) (domain.Index, error) {
	log, err := s.GetLog(ctx, userID)
	if err != nil {
		return nil, err
	}
	return log.ByCategory, nil
}

// GetBySeverity returns the severity index of the persisted log.
func (s *SymptomService) GetBySeverity(ctx context.Context, userID string) (domain.Index, error) {
	log, err := s.GetLog(ctx, userID)
	if err != nil {
		return nil, err
	}
	return log.BySeverity, nil
}

// GetByFrequency returns the frequency index of the persisted log.
func (s *SymptomService) GetByFrequency(ctx context.Context, userID string) (domain.Index, error) {
	log, err := s.GetLog(ctx, userID)
	if err != nil {
		return nil, err
	}
	return log.ByFrequency, nil
}

// GetTotalCount returns the number of active symptoms.
func (s *SymptomService) GetTotalCount(ctx context.Context, userID string) (int, error) {
	log, err := s.GetLog(ctx, userID)
	if err != nil {
		return 0, err
	}
	return log.TotalCount, nil
}

// GetHistory returns the active symptoms, most recently reported first.
func (s *SymptomService) GetHistory(ctx context.Context, userID string) ([]domain.HistoryEntry, error) {
	log, err := s.GetLog(ctx, userID)
	if err != nil {
		return nil, err
	}
	return log.History(), nil
}

// Health checks the ledger store.
func (s *SymptomService) Health(ctx context.Context) error {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()
	return s.repo.Health(ctx)
}

// mutate runs a read-modify-write cycle on the user's ledger, retrying on version
// conflicts. apply reports whether the document changed and must be saved.
// The caller holds the user lock.
func (s *SymptomService) mutate(ctx context.Context, userID string, apply func(doc *domain.LedgerDocument) bool) error {
	for attempt := 1; ; attempt++ {
		doc, err := s.load(ctx, userID)
		if err != nil {
			return err
		}
		if !apply(doc) {
			return nil
		}

		err = s.save(ctx, doc)
		if err == nil {
			s.refreshCache(ctx, doc.Log)
			return nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return err
		}
		if attempt > s.maxRetries {
			return fmt.Errorf("%w: giving up after %d attempts: %w", domain.ErrPersistence, attempt, err)
		}
		s.logger.WithFields(logrus.Fields{
			"user_id": userID,
			"attempt": attempt,
		}).Warn("Ledger version conflict, retrying")
	}
}

func (s *SymptomService) load(ctx context.Context, userID string) (*domain.LedgerDocument, error) {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	doc, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: loading ledger for %s: %w", domain.ErrPersistence, userID, err)
	}
	if doc.Log == nil {
		doc.Log = domain.NewSymptomLog(userID, time.Time{})
	}
	if doc.Triggers == nil {
		doc.Triggers = domain.TriggerStore{}
	}
	return doc, nil
}

func (s *SymptomService) save(ctx context.Context, doc *domain.LedgerDocument) error {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	if err := s.repo.Save(ctx, doc); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			return err
		}
		return fmt.Errorf("%w: saving ledger for %s: %w", domain.ErrPersistence, doc.UserID, err)
	}
	return nil
}

func (s *SymptomService) cachedLog(ctx context.Context, userID string) (*domain.SymptomLog, bool) {
	if s.cache == nil {
		return nil, false
	}
	log, ok, err := s.cache.Get(ctx, userID)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Ledger cache read failed")
		return nil, false
	}
	return log, ok
}

func (s *SymptomService) refreshCache(ctx context.Context, log *domain.SymptomLog) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, log); err != nil {
		s.logger.WithError(err).WithField("user_id", log.UserID).Warn("Ledger cache write failed")
		if err := s.cache.Invalidate(ctx, log.UserID); err != nil {
			s.logger.WithError(err).WithField("user_id", log.UserID).Warn("Ledger cache invalidation failed")
		}
	}
}

func (s *SymptomService) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.storeTimeout)
}
