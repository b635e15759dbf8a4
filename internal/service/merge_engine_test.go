package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symptom-ledger-server/internal/domain"
)

var mergeNow = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

func newTestEngine() *MergeEngine {
	e := NewMergeEngine(quietLogger())
	e.now = fixedClock(mergeNow)
	return e
}

func batchOf(snapshots map[domain.AssessmentType]*domain.AssessmentSnapshot, raw ...domain.RawSymptom) *Batch {
	if snapshots == nil {
		snapshots = map[domain.AssessmentType]*domain.AssessmentSnapshot{}
	}
	return &Batch{Set: Fold(raw), Snapshots: snapshots}
}

func persistedLog(records ...*domain.SymptomRecord) *domain.SymptomLog {
	log := domain.NewSymptomLog("user-1", mergeNow.Add(-time.Hour))
	for _, r := range records {
		log.Put(r)
	}
	log.Rebuild()
	return log
}

func TestMergeEngine_AddsNewSymptomsWithConditions(t *testing.T) {
	engine := newTestEngine()
	snap := &domain.AssessmentSnapshot{
		Type:           AssessmentHormone,
		Answers:        domain.Answers{"hormone_q1": "fatigue"},
		OverallScore:   scoreOf(4.5),
		CategoryScores: map[string]float64{"energy": 5.0},
	}
	batch := batchOf(map[domain.AssessmentType]*domain.AssessmentSnapshot{AssessmentHormone: snap},
		domain.RawSymptom{Name: "Fatigue", Category: CategoryEnergy, Date: mergeNow, Assessment: AssessmentHormone})

	out := engine.Merge("user-1", nil, nil, batch, AssessmentHormone)

	assert.Equal(t, []string{"Fatigue"}, out.Added)
	assert.Empty(t, out.Resolved)
	assert.Equal(t, 1, out.Log.TotalCount)
	assert.Equal(t, mergeNow, out.Log.LastUpdated)
	assert.Equal(t, "user-1", out.Log.UserID)
	require.Len(t, out.Triggers["Fatigue"], 3)
	assert.Equal(t, domain.ConditionScoreThreshold, out.Triggers["Fatigue"][0].Kind())
}

func TestMergeEngine_MergesExistingSymptom(t *testing.T) {
	engine := newTestEngine()
	earlier := mergeNow.Add(-48 * time.Hour)
	existing := &domain.SymptomRecord{
		Name:            "Fatigue",
		Category:        CategoryEnergy,
		Assessments:     []domain.AssessmentType{AssessmentHormone},
		Severity:        []domain.Severity{domain.SeverityMild},
		FirstReported:   earlier,
		LastReported:    earlier,
		OccurrenceCount: 1,
	}
	stored := domain.TriggerStore{"Fatigue": {domain.NewScoreThreshold(AssessmentHormone, 6.0)}}
	batch := batchOf(map[domain.AssessmentType]*domain.AssessmentSnapshot{
		AssessmentEnergy: {Type: AssessmentEnergy, OverallScore: scoreOf(3)},
	}, domain.RawSymptom{Name: "Fatigue", Category: "Ignored", Severity: domain.SeveritySevere, Date: mergeNow, Assessment: AssessmentEnergy})

	out := engine.Merge("user-1", persistedLog(existing), stored, batch, AssessmentEnergy)

	assert.Empty(t, out.Added)
	assert.Equal(t, []string{"Fatigue"}, out.Merged)
	rec := out.Log.Get("Fatigue")
	require.NotNil(t, rec)
	assert.Equal(t, CategoryEnergy, rec.Category)
	assert.Equal(t, []domain.AssessmentType{AssessmentHormone, AssessmentEnergy}, rec.Assessments)
	assert.Equal(t, []domain.Severity{domain.SeverityMild, domain.SeveritySevere}, rec.Severity)
	assert.Equal(t, earlier, rec.FirstReported)
	assert.Equal(t, mergeNow, rec.LastReported)
	assert.Equal(t, 2, rec.OccurrenceCount)
	assert.Equal(t, stored["Fatigue"], out.Triggers["Fatigue"], "conditions are not re-derived")

	// the persisted record is not mutated
	assert.Equal(t, 1, existing.OccurrenceCount)
}

func TestMergeEngine_ScopeLimitedResolution(t *testing.T) {
	engine := newTestEngine()
	rec := &domain.SymptomRecord{
		Name:            "Fatigue",
		Assessments:     []domain.AssessmentType{AssessmentHormone},
		OccurrenceCount: 1,
	}
	stored := domain.TriggerStore{"Fatigue": {domain.NewScoreThreshold(AssessmentHormone, 6.0)}}
	contradicting := map[domain.AssessmentType]*domain.AssessmentSnapshot{
		AssessmentHormone: {Type: AssessmentHormone, OverallScore: scoreOf(8)},
		AssessmentEnergy:  {Type: AssessmentEnergy, OverallScore: scoreOf(8)},
	}

	out := engine.Merge("user-1", persistedLog(rec), stored, batchOf(contradicting), AssessmentEnergy)
	assert.True(t, out.Log.Has("Fatigue"), "a scope of energy must not resolve hormone conditions")
	assert.Len(t, out.Triggers["Fatigue"], 1)

	out = engine.Merge("user-1", persistedLog(rec), stored, batchOf(contradicting), AssessmentHormone)
	assert.False(t, out.Log.Has("Fatigue"))
	assert.Equal(t, []string{"Fatigue"}, out.Resolved)
	assert.NotContains(t, out.Triggers, "Fatigue")

	out = engine.Merge("user-1", persistedLog(rec), stored, batchOf(contradicting), "")
	assert.False(t, out.Log.Has("Fatigue"), "a full refresh evaluates every assessment")
}

func TestMergeEngine_LegacyConditionsUseRecordAssessments(t *testing.T) {
	engine := newTestEngine()
	rec := &domain.SymptomRecord{Name: "Insomnia", Assessments: []domain.AssessmentType{AssessmentSleep}, OccurrenceCount: 1}
	stored := domain.TriggerStore{"Insomnia": {domain.ScoreThreshold{Threshold: 6.0}}}
	snaps := map[domain.AssessmentType]*domain.AssessmentSnapshot{
		AssessmentSleep:   {Type: AssessmentSleep, OverallScore: scoreOf(9)},
		AssessmentHormone: {Type: AssessmentHormone, OverallScore: scoreOf(9)},
	}

	out := engine.Merge("user-1", persistedLog(rec), stored, batchOf(snaps), AssessmentHormone)
	assert.True(t, out.Log.Has("Insomnia"))

	out = engine.Merge("user-1", persistedLog(rec), stored, batchOf(snaps), AssessmentSleep)
	assert.False(t, out.Log.Has("Insomnia"))

	out = engine.Merge("user-1", persistedLog(rec), stored, batchOf(snaps), "")
	assert.False(t, out.Log.Has("Insomnia"))
}

func TestMergeEngine_ORSemantics(t *testing.T) {
	engine := newTestEngine()
	rec := &domain.SymptomRecord{Name: "Low Libido", Assessments: []domain.AssessmentType{AssessmentHormone}, OccurrenceCount: 1}
	stored := domain.TriggerStore{"Low Libido": {
		domain.NewScoreThreshold(AssessmentHormone, 6.0),
		domain.NewCategoryScore(AssessmentHormone, "libido", 6.0),
	}}
	snaps := map[domain.AssessmentType]*domain.AssessmentSnapshot{
		AssessmentHormone: {Type: AssessmentHormone, OverallScore: scoreOf(5), CategoryScores: map[string]float64{"libido": 7}},
	}

	out := engine.Merge("user-1", persistedLog(rec), stored, batchOf(snaps), AssessmentHormone)
	assert.False(t, out.Log.Has("Low Libido"), "one resolving condition is enough")
}

func TestMergeEngine_PositiveResponseGate(t *testing.T) {
	engine := newTestEngine()
	rec := &domain.SymptomRecord{Name: "Night Sweats", Assessments: []domain.AssessmentType{AssessmentMenopause}, OccurrenceCount: 1}
	stored := domain.TriggerStore{"Night Sweats": {domain.NewQuestionAnswer(AssessmentMenopause, "menopause_q4", "yes")}}

	tests := []struct {
		answer   string
		resolved bool
	}{
		{"yes", false},
		{"maybe", false},
		{"no", true},
	}
	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			snaps := map[domain.AssessmentType]*domain.AssessmentSnapshot{
				AssessmentMenopause: {Type: AssessmentMenopause, Answers: domain.Answers{"menopause_q4": tt.answer}},
			}
			out := engine.Merge("user-1", persistedLog(rec), stored, batchOf(snaps), AssessmentMenopause)
			assert.Equal(t, !tt.resolved, out.Log.Has("Night Sweats"))
		})
	}
}

type bogusCondition struct{ domain.ScoreThreshold }

func (bogusCondition) Kind() domain.ConditionType { return "bogus" }

func TestMergeEngine_KeepsSymptomOnEvaluationError(t *testing.T) {
	engine := newTestEngine()
	rec := &domain.SymptomRecord{Name: "Acne", Assessments: []domain.AssessmentType{AssessmentSkin}, OccurrenceCount: 1}
	stored := domain.TriggerStore{"Acne": {bogusCondition{domain.NewScoreThreshold(AssessmentSkin, 6.0)}, nil}}
	snaps := map[domain.AssessmentType]*domain.AssessmentSnapshot{
		AssessmentSkin: {Type: AssessmentSkin, OverallScore: scoreOf(9)},
	}

	out := engine.Merge("user-1", persistedLog(rec), stored, batchOf(snaps), "")
	assert.True(t, out.Log.Has("Acne"))
	assert.Empty(t, out.Resolved)
}

func TestMergeEngine_KeepsUndecodedConditions(t *testing.T) {
	engine := newTestEngine()
	rec := &domain.SymptomRecord{Name: "Acne", Assessments: []domain.AssessmentType{AssessmentSkin}, OccurrenceCount: 1}
	undecoded := domain.NewUndecodedCondition([]byte(`{"type":"age_threshold","assessment":"skin"}`), domain.ErrInvalidCondition)
	stored := domain.TriggerStore{"Acne": {undecoded}}
	snaps := map[domain.AssessmentType]*domain.AssessmentSnapshot{
		AssessmentSkin: {Type: AssessmentSkin, OverallScore: scoreOf(9), Answers: domain.Answers{"skin_q1": "none"}},
	}

	out := engine.Merge("user-1", persistedLog(rec), stored, batchOf(snaps), AssessmentSkin)
	assert.True(t, out.Log.Has("Acne"))
	assert.Empty(t, out.Resolved)
	assert.Equal(t, []domain.Condition{undecoded}, out.Triggers["Acne"])
}

func TestMergeEngine_ResolvedAndReportedAgain(t *testing.T) {
	engine := newTestEngine()
	rec := &domain.SymptomRecord{
		Name:            "Fatigue",
		Assessments:     []domain.AssessmentType{AssessmentHormone},
		OccurrenceCount: 4,
		FirstReported:   mergeNow.Add(-72 * time.Hour),
	}
	stored := domain.TriggerStore{"Fatigue": {domain.NewScoreThreshold(AssessmentHormone, 6.0)}}
	snap := &domain.AssessmentSnapshot{
		Type:           AssessmentHormone,
		Answers:        domain.Answers{"hormone_q1": "fatigue"},
		OverallScore:   scoreOf(7),
		CategoryScores: map[string]float64{"energy": 4},
	}
	batch := batchOf(map[domain.AssessmentType]*domain.AssessmentSnapshot{AssessmentHormone: snap},
		domain.RawSymptom{Name: "Fatigue", Date: mergeNow, Assessment: AssessmentHormone})

	out := engine.Merge("user-1", persistedLog(rec), stored, batch, AssessmentHormone)

	assert.Equal(t, []string{"Fatigue"}, out.Resolved)
	assert.Equal(t, []string{"Fatigue"}, out.Added)
	fresh := out.Log.Get("Fatigue")
	require.NotNil(t, fresh)
	assert.Equal(t, 1, fresh.OccurrenceCount)
	assert.Equal(t, mergeNow, fresh.FirstReported)
	require.Len(t, out.Triggers["Fatigue"], 2)
	for _, c := range out.Triggers["Fatigue"] {
		assert.NotEqual(t, domain.ConditionScoreThreshold, c.Kind())
	}
}

func TestMergeEngine_IndexConsistency(t *testing.T) {
	engine := newTestEngine()
	persisted := persistedLog(
		&domain.SymptomRecord{Name: "Acne", Category: CategorySkin, Severity: []domain.Severity{domain.SeverityMild}, OccurrenceCount: 1},
		&domain.SymptomRecord{Name: "Insomnia", Category: CategorySleep, Frequency: []domain.Frequency{domain.FrequencyDaily}, OccurrenceCount: 1},
	)
	batch := batchOf(nil,
		domain.RawSymptom{Name: "Acne", Severity: domain.SeveritySevere, Date: mergeNow, Assessment: AssessmentSkin},
		domain.RawSymptom{Name: "Hot Flashes", Category: CategoryVasomotor, Date: mergeNow, Assessment: AssessmentMenopause},
		domain.RawSymptom{Name: "Brain Fog", Date: mergeNow, Assessment: AssessmentCognitive},
	)

	out := engine.Merge("user-1", persisted, domain.TriggerStore{}, batch, "")
	require.Equal(t, 4, out.Log.TotalCount)

	for _, idx := range []domain.Index{out.Log.ByCategory, out.Log.BySeverity, out.Log.ByFrequency} {
		counts := map[string]int{}
		for _, names := range idx {
			for _, n := range names {
				counts[n]++
			}
		}
		for _, name := range out.Log.Names() {
			assert.Equal(t, 1, counts[name], "symptom %q", name)
		}
		assert.Len(t, counts, out.Log.TotalCount)
	}
	assert.Equal(t, []string{"Acne"}, out.Log.BySeverity[string(domain.SeverityMild)])
	assert.Equal(t, []string{"Brain Fog", "Hot Flashes", "Insomnia"}, out.Log.BySeverity[string(domain.SeverityModerate)])
	assert.Equal(t, []string{"Insomnia"}, out.Log.ByFrequency[string(domain.FrequencyDaily)])
	assert.Equal(t, []string{"Brain Fog"}, out.Log.ByCategory[domain.DefaultCategory])
}
