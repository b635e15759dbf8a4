package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSymptomRecordDefaults(t *testing.T) {
	rec := &SymptomRecord{Name: "Brain Fog"}

	assert.Equal(t, SeverityModerate, rec.PrimarySeverity())
	assert.Equal(t, FrequencyFrequent, rec.PrimaryFrequency())
	assert.Equal(t, DefaultCategory, rec.CategoryKey())

	rec.Severity = []Severity{SeverityMild, SeveritySevere}
	rec.Frequency = []Frequency{FrequencyRarely}
	assert.Equal(t, SeverityMild, rec.PrimarySeverity())
	assert.Equal(t, FrequencyRarely, rec.PrimaryFrequency())
}

func TestSymptomRecordAddAssessment(t *testing.T) {
	rec := &SymptomRecord{Name: "Fatigue"}
	rec.AddAssessment("hormone")
	rec.AddAssessment("energy")
	rec.AddAssessment("hormone")
	rec.AddAssessment("")

	assert.Equal(t, []AssessmentType{"hormone", "energy"}, rec.Assessments)
	assert.True(t, rec.HasAssessment("energy"))
	assert.False(t, rec.HasAssessment("sleep"))
}

func TestSymptomRecordClone(t *testing.T) {
	rec := &SymptomRecord{Name: "Fatigue", Severity: []Severity{SeverityMild}}
	clone := rec.Clone()
	clone.Severity[0] = SeveritySevere
	clone.AddAssessment("sleep")

	assert.Equal(t, SeverityMild, rec.Severity[0])
	assert.Empty(t, rec.Assessments)
}

func TestSymptomLogRebuildKeepsIndicesConsistent(t *testing.T) {
	log := NewSymptomLog("user-1", time.Now())
	log.Put(&SymptomRecord{Name: "Fatigue", Category: "Energy", Severity: []Severity{SeveritySevere}})
	log.Put(&SymptomRecord{Name: "Low Libido", Category: "Hormonal", Frequency: []Frequency{FrequencyDaily}})
	log.Put(&SymptomRecord{Name: "Acne"})
	log.Rebuild()

	assert.Equal(t, 3, log.TotalCount)
	assertIndexPartition(t, log.Names(), log.ByCategory)
	assertIndexPartition(t, log.Names(), log.BySeverity)
	assertIndexPartition(t, log.Names(), log.ByFrequency)
	assert.Equal(t, []string{"Acne", "Low Libido"}, log.BySeverity["moderate"])

	assert.True(t, log.Remove("Fatigue"))
	assert.False(t, log.Remove("Fatigue"))
	log.Rebuild()

	assert.Equal(t, 2, log.TotalCount)
	assert.NotContains(t, log.ByCategory, "Energy")
	assertIndexPartition(t, log.Names(), log.ByCategory)
}

func TestSymptomLogHistoryOrder(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	log := NewSymptomLog("user-1", base)
	log.Put(&SymptomRecord{Name: "Older", LastReported: base})
	log.Put(&SymptomRecord{Name: "Zulu", LastReported: base.Add(time.Hour)})
	log.Put(&SymptomRecord{Name: "Alpha", LastReported: base.Add(time.Hour)})
	log.Rebuild()

	history := log.History()
	names := make([]string, 0, len(history))
	for _, h := range history {
		names = append(names, h.Name)
	}
	assert.Equal(t, []string{"Alpha", "Zulu", "Older"}, names)
	assert.Equal(t, DefaultCategory, history[0].Category)
}

func TestSymptomLogClone(t *testing.T) {
	log := NewSymptomLog("user-1", time.Now())
	log.Put(&SymptomRecord{Name: "Fatigue"})
	log.Rebuild()

	clone := log.Clone()
	clone.Remove("Fatigue")
	clone.Rebuild()

	assert.True(t, log.Has("Fatigue"))
	assert.Equal(t, 1, log.TotalCount)
	assert.Equal(t, 0, clone.TotalCount)
}

// assertIndexPartition checks that every name sits in exactly one bucket.
func assertIndexPartition(t *testing.T, names []string, idx Index) {
	t.Helper()
	seen := map[string]int{}
	for _, bucket := range idx {
		for _, n := range bucket {
			seen[n]++
		}
	}
	assert.Len(t, seen, len(names))
	for _, n := range names {
		assert.Equal(t, 1, seen[n], "symptom %q should appear in exactly one bucket", n)
	}
}
