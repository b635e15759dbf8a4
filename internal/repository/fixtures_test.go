package repository

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symptom-ledger-server/internal/domain"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// sampleDocument returns a never-persisted ledger holding Fatigue and Low Libido
// from the hormone assessment.
func sampleDocument(userID string) *domain.LedgerDocument {
	reported := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	doc := domain.NewLedgerDocument(userID, reported)
	doc.Log.Put(&domain.SymptomRecord{
		Name:            "Fatigue",
		Category:        "energy",
		Assessments:     []domain.AssessmentType{"hormone"},
		Severity:        []domain.Severity{domain.SeveritySevere},
		Frequency:       []domain.Frequency{domain.FrequencyDaily},
		FirstReported:   reported,
		LastReported:    reported,
		OccurrenceCount: 1,
	})
	doc.Log.Put(&domain.SymptomRecord{
		Name:            "Low Libido",
		Category:        "hormonal",
		Assessments:     []domain.AssessmentType{"hormone"},
		FirstReported:   reported,
		LastReported:    reported,
		OccurrenceCount: 1,
	})
	doc.Log.Rebuild()
	doc.Triggers["Fatigue"] = []domain.Condition{
		domain.NewScoreThreshold("hormone", domain.ResolutionThreshold),
		domain.NewQuestionAnswer("hormone", "hormone_q1", "fatigue,low_libido"),
	}
	doc.Triggers["Low Libido"] = []domain.Condition{
		domain.NewScoreThreshold("hormone", domain.ResolutionThreshold),
	}
	return doc
}

// assertSameLedger compares the durable content of two documents
func assertSameLedger(t *testing.T, want, got *domain.LedgerDocument) {
	t.Helper()

	require.NotNil(t, got)
	assert.Equal(t, want.UserID, got.UserID)
	assert.ElementsMatch(t, want.Log.Names(), got.Log.Names())
	assert.Equal(t, len(want.Log.Symptoms), got.Log.TotalCount)

	for _, name := range want.Log.Names() {
		w, g := want.Log.Get(name), got.Log.Get(name)
		require.NotNil(t, g, "symptom %s", name)
		assert.Equal(t, w.Category, g.Category, "symptom %s", name)
		assert.Equal(t, w.Assessments, g.Assessments, "symptom %s", name)
		assert.Equal(t, w.Severity, g.Severity, "symptom %s", name)
		assert.Equal(t, w.Frequency, g.Frequency, "symptom %s", name)
		assert.Equal(t, w.OccurrenceCount, g.OccurrenceCount, "symptom %s", name)
		assert.True(t, w.FirstReported.Equal(g.FirstReported), "symptom %s first_reported", name)
		assert.True(t, w.LastReported.Equal(g.LastReported), "symptom %s last_reported", name)
	}

	require.Len(t, got.Triggers, len(want.Triggers))
	for name, conds := range want.Triggers {
		require.Len(t, got.Triggers[name], len(conds), "triggers of %s", name)
		for i, c := range conds {
			assert.Equal(t, c.Kind(), got.Triggers[name][i].Kind())
			assert.Equal(t, c.Source(), got.Triggers[name][i].Source())
			assert.Equal(t, c.Describe(), got.Triggers[name][i].Describe())
		}
	}
}
