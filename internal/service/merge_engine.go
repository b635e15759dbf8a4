package service

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/symptom-ledger-server/internal/domain"
)

// MergeOutcome is the merged ledger and what changed.
type MergeOutcome struct {
	Log      *domain.SymptomLog
	Triggers domain.TriggerStore
	Added    []string
	Resolved []string
	Merged   []string
}

// MergeEngine combines a persisted ledger with a fresh aggregation and resolves
// symptoms whose stored conditions no longer hold.
type MergeEngine struct {
	logger *logrus.Logger
	now    func() time.Time
}

// NewMergeEngine creates a merge engine.
func NewMergeEngine(logger *logrus.Logger) *MergeEngine {
	return &MergeEngine{logger: logger, now: time.Now}
}

// Merge builds the next ledger for userID. Persisted symptoms are resolved against
// the batch snapshots, restricted to scope when scope is set. Merge never fails;
// a symptom that cannot be evaluated is kept.
func (e *MergeEngine) Merge(userID string, persisted *domain.SymptomLog, triggers domain.TriggerStore, batch *Batch, scope domain.AssessmentType) *MergeOutcome {
	out := &MergeOutcome{
		Log:      domain.NewSymptomLog(userID, e.now()),
		Triggers: domain.TriggerStore{},
	}

	if persisted != nil {
		for _, name := range persisted.Names() {
			rec := persisted.Get(name)
			if rec == nil {
				continue
			}
			conds := triggers[name]
			if e.resolves(userID, rec, conds, batch, scope) {
				out.Resolved = append(out.Resolved, name)
				continue
			}
			out.Log.Put(rec.Clone())
			if len(conds) > 0 {
				out.Triggers[name] = append([]domain.Condition(nil), conds...)
			}
		}
	}

	if batch != nil && batch.Set != nil {
		for _, name := range batch.Set.Names() {
			incoming := batch.Set.Symptoms[name]
			existing := out.Log.Get(name)
			if existing == nil {
				out.Log.Put(incoming.Clone())
				if conds := deriveFor(incoming, batch); len(conds) > 0 {
					out.Triggers[name] = conds
				}
				out.Added = append(out.Added, name)
				continue
			}
			mergeRecord(existing, incoming)
			out.Merged = append(out.Merged, name)
		}
	}

	out.Log.Rebuild()
	return out
}

// resolves reports whether any stored condition of rec is resolved.
func (e *MergeEngine) resolves(userID string, rec *domain.SymptomRecord, conds []domain.Condition, batch *Batch, scope domain.AssessmentType) (resolved bool) {
	fields := logrus.Fields{"user_id": userID, "symptom": rec.Name}
	defer func() {
		if r := recover(); r != nil {
			e.logger.WithFields(fields).Warnf("Condition evaluation panicked, keeping symptom: %v", r)
			resolved = false
		}
	}()

	for _, c := range conds {
		for _, t := range evaluationSources(rec, c, scope) {
			ok, err := EvaluateCondition(c, batch.Snapshot(t))
			if err != nil {
				e.logger.WithError(err).WithFields(fields).Warn("Failed to evaluate trigger condition, keeping symptom")
				continue
			}
			if ok {
				e.logger.WithFields(logrus.Fields{
					"user_id":         userID,
					"symptom":         rec.Name,
					"assessment_type": t,
					"condition":       c.Kind(),
					"description":     c.Describe(),
				}).Debug("Trigger condition resolved")
				return true
			}
		}
	}
	return false
}

// evaluationSources lists the assessment types whose data may resolve c. Conditions
// stored without provenance fall back to the assessments of the record.
func evaluationSources(rec *domain.SymptomRecord, c domain.Condition, scope domain.AssessmentType) []domain.AssessmentType {
	if c == nil {
		return []domain.AssessmentType{scope}
	}
	src := c.Source()
	switch {
	case scope != "" && src != "":
		if src != scope {
			return nil
		}
		return []domain.AssessmentType{scope}
	case scope != "":
		if !rec.HasAssessment(scope) {
			return nil
		}
		return []domain.AssessmentType{scope}
	case src != "":
		return []domain.AssessmentType{src}
	default:
		return rec.Assessments
	}
}

func deriveFor(rec *domain.SymptomRecord, batch *Batch) []domain.Condition {
	var conds []domain.Condition
	for _, t := range rec.Assessments {
		conds = append(conds, DeriveConditions(batch.Snapshot(t))...)
	}
	return conds
}

func mergeRecord(existing, incoming *domain.SymptomRecord) {
	for _, t := range incoming.Assessments {
		existing.AddAssessment(t)
	}
	existing.Severity = append(existing.Severity, incoming.Severity...)
	existing.Frequency = append(existing.Frequency, incoming.Frequency...)
	if incoming.LastReported.After(existing.LastReported) {
		existing.LastReported = incoming.LastReported
	}
	existing.OccurrenceCount++
}
