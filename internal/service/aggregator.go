package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/symptom-ledger-server/internal/domain"
)

const defaultMaxTypesInFlight = 4

// Batch is the result of one aggregation run: the folded symptom set and the
// snapshots it was extracted from, keyed by assessment type. Absent assessments
// have no entry.
type Batch struct {
	Set       *domain.AggregatedSet
	Snapshots map[domain.AssessmentType]*domain.AssessmentSnapshot
}

// Snapshot returns the snapshot of t, or nil.
func (b *Batch) Snapshot(t domain.AssessmentType) *domain.AssessmentSnapshot {
	if b == nil {
		return nil
	}
	return b.Snapshots[t]
}

// Aggregator runs the extractors of the requested assessment types and folds their
// output into one deduplicated set.
type Aggregator struct {
	logger      *logrus.Logger
	registry    *ExtractorRegistry
	provider    domain.AssessmentProvider
	maxInFlight int
	now         func() time.Time
}

// NewAggregator creates an aggregator. maxInFlight bounds the number of snapshots
// fetched concurrently.
func NewAggregator(registry *ExtractorRegistry, provider domain.AssessmentProvider, maxInFlight int, logger *logrus.Logger) *Aggregator {
	if maxInFlight <= 0 {
		maxInFlight = defaultMaxTypesInFlight
	}
	return &Aggregator{
		logger:      logger,
		registry:    registry,
		provider:    provider,
		maxInFlight: maxInFlight,
		now:         time.Now,
	}
}

// Registry returns the extractor registry.
func (a *Aggregator) Registry() *ExtractorRegistry {
	return a.registry
}

type extraction struct {
	snapshot *domain.AssessmentSnapshot
	symptoms []domain.RawSymptom
}

// Aggregate extracts and folds the given assessment types, or every registered type
// when none are given. A type whose snapshot cannot be loaded is skipped. Only an
// unknown type or a cancelled context fail the call.
func (a *Aggregator) Aggregate(ctx context.Context, userID string, types ...domain.AssessmentType) (*Batch, error) {
	if len(types) == 0 {
		types = a.registry.Types()
	}
	extractors := make([]Extractor, len(types))
	for i, t := range types {
		e, err := a.registry.Get(t)
		if err != nil {
			return nil, err
		}
		extractors[i] = e
	}

	now := a.now()
	results := make([]extraction, len(extractors))

	var g errgroup.Group
	g.SetLimit(a.maxInFlight)
	for i, e := range extractors {
		g.Go(func() error {
			results[i] = a.extract(ctx, userID, e, now)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("aggregating symptoms for %s: %w", userID, err)
	}

	batch := &Batch{Snapshots: make(map[domain.AssessmentType]*domain.AssessmentSnapshot, len(results))}
	var raw []domain.RawSymptom
	for i, r := range results {
		if r.snapshot != nil {
			batch.Snapshots[extractors[i].Type()] = r.snapshot
		}
		raw = append(raw, r.symptoms...)
	}
	batch.Set = Fold(raw)

	a.logger.WithFields(logrus.Fields{
		"user_id":     userID,
		"assessments": len(batch.Snapshots),
		"symptoms":    len(batch.Set.Symptoms),
	}).Debug("Aggregated assessment symptoms")

	return batch, nil
}

func (a *Aggregator) extract(ctx context.Context, userID string, e Extractor, now time.Time) (out extraction) {
	fields := logrus.Fields{"user_id": userID, "assessment_type": e.Type()}
	defer func() {
		if r := recover(); r != nil {
			a.logger.WithFields(fields).Warnf("Extractor panicked, skipping assessment: %v", r)
			out = extraction{}
		}
	}()

	snapshot, err := a.provider.Snapshot(ctx, userID, e.Type())
	if err != nil {
		a.logger.WithError(err).WithFields(fields).Warn("Failed to load assessment snapshot, skipping")
		return extraction{}
	}
	if snapshot == nil {
		return extraction{}
	}
	if snapshot.Type == "" {
		snapshot.Type = e.Type()
	}
	return extraction{snapshot: snapshot, symptoms: e.Extract(snapshot, now)}
}

// Fold merges raw observations into an aggregated set. The first observation of a
// name seeds its category and timestamps; every observation appends its severity
// and frequency, adds its assessment and bumps the occurrence count.
func Fold(raw []domain.RawSymptom) *domain.AggregatedSet {
	symptoms := make(map[string]*domain.SymptomRecord)
	for _, obs := range raw {
		name := strings.TrimSpace(obs.Name)
		if name == "" {
			continue
		}
		rec, exists := symptoms[name]
		if !exists {
			rec = &domain.SymptomRecord{
				Name:          name,
				Category:      obs.Category,
				FirstReported: obs.Date,
				LastReported:  obs.Date,
			}
			symptoms[name] = rec
		}
		if obs.Severity.IsValid() {
			rec.Severity = append(rec.Severity, obs.Severity)
		}
		if obs.Frequency.IsValid() {
			rec.Frequency = append(rec.Frequency, obs.Frequency)
		}
		rec.AddAssessment(obs.Assessment)
		rec.OccurrenceCount++
		if obs.Date.After(rec.LastReported) {
			rec.LastReported = obs.Date
		}
		if obs.Date.Before(rec.FirstReported) {
			rec.FirstReported = obs.Date
		}
	}

	set := &domain.AggregatedSet{Symptoms: symptoms}
	set.ByCategory, set.BySeverity, set.ByFrequency = domain.BuildIndices(symptoms)
	return set
}
