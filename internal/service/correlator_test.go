package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symptom-ledger-server/internal/domain"
)

var fatigueBiomarkers = []string{"vitamin_d", "vitamin_b12", "ferritin", "tsh", "cortisol"}

func TestBiomarkerTable(t *testing.T) {
	assert.GreaterOrEqual(t, len(symptomBiomarkers), 20)
	for symptom, biomarkers := range symptomBiomarkers {
		assert.NotEmpty(t, biomarkers, symptom)
	}

	c := NewBiomarkerCorrelator(newMemFlagStore(), quietLogger())
	assert.Equal(t, fatigueBiomarkers, c.BiomarkersFor("Fatigue"))
	assert.Nil(t, c.BiomarkersFor("Sneezing"))
}

func TestFlagFromSymptoms(t *testing.T) {
	ctx := context.Background()
	flags := newMemFlagStore()
	c := NewBiomarkerCorrelator(flags, quietLogger())
	c.now = fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	created := c.FlagFromSymptoms(ctx, "user-1", []string{"Fatigue", "Sneezing"})
	assert.Equal(t, 5, created)
	assert.ElementsMatch(t, fatigueBiomarkers, flags.activeBiomarkers("user-1"))

	active, err := flags.ListActive(ctx, "user-1")
	require.NoError(t, err)
	for _, f := range active {
		assert.Equal(t, domain.ReasonSymptomTriggered, f.Reason)
		assert.Equal(t, domain.FlagSourceSymptomLedger, f.Source)
		assert.Equal(t, "Fatigue", f.TriggeringSymptom)
	}

	// creation is idempotent
	assert.Equal(t, 0, c.FlagFromSymptoms(ctx, "user-1", []string{"Fatigue"}))

	// shared biomarkers are flagged once
	created = c.FlagFromSymptoms(ctx, "user-2", []string{"Brain Fog", "Poor Concentration"})
	assert.Equal(t, 5, created)
}

func TestFlagFromSymptoms_SkipsFailures(t *testing.T) {
	flags := newMemFlagStore()
	flags.failures["tsh"] = errStoreDown
	c := NewBiomarkerCorrelator(flags, quietLogger())

	created := c.FlagFromSymptoms(context.Background(), "user-1", []string{"Fatigue"})
	assert.Equal(t, 4, created)
	assert.NotContains(t, flags.activeBiomarkers("user-1"), "tsh")
}

func TestResolveUnflagged(t *testing.T) {
	ctx := context.Background()
	flags := newMemFlagStore()
	c := NewBiomarkerCorrelator(flags, quietLogger())
	c.FlagFromSymptoms(ctx, "user-1", []string{"Fatigue"})

	log := persistedLog(
		&domain.SymptomRecord{Name: "Fatigue", OccurrenceCount: 1},
		&domain.SymptomRecord{Name: "Acne", OccurrenceCount: 1},
	)
	triggers := domain.TriggerStore{"Fatigue": {domain.NewScoreThreshold(AssessmentHormone, 6.0)}}

	for _, b := range fatigueBiomarkers[:4] {
		_, err := flags.RemoveFlags(ctx, "user-1", b, "")
		require.NoError(t, err)
		assert.Empty(t, c.ResolveUnflagged(ctx, "user-1", b, log, triggers))
	}
	assert.True(t, log.Has("Fatigue"), "one active biomarker keeps the symptom")

	_, err := flags.RemoveFlags(ctx, "user-1", "cortisol", "")
	require.NoError(t, err)
	removed := c.ResolveUnflagged(ctx, "user-1", "cortisol", log, triggers)
	assert.Equal(t, []string{"Fatigue"}, removed)
	assert.False(t, log.Has("Fatigue"))
	assert.NotContains(t, triggers, "Fatigue")
	assert.True(t, log.Has("Acne"))
}

func TestResolveUnflagged_FlagStoreErrorKeepsSymptom(t *testing.T) {
	ctx := context.Background()
	flags := newMemFlagStore()
	flags.failures["ferritin"] = errStoreDown
	c := NewBiomarkerCorrelator(flags, quietLogger())

	log := persistedLog(&domain.SymptomRecord{Name: "Fatigue", OccurrenceCount: 1})
	removed := c.ResolveUnflagged(ctx, "user-1", "tsh", log, domain.TriggerStore{})
	assert.Empty(t, removed)
	assert.True(t, log.Has("Fatigue"))
}
