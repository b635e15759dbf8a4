// Package domain contains the core entities of the symptom ledger: the per-user
// symptom log, the trigger conditions that explain why a symptom is active, and the
// biomarker flags correlated with active symptoms.
//
// Symptoms are reported by many independent assessments. The ledger merges them into
// one durable record per user and removes a symptom only when newer assessment data
// contradicts it or when every biomarker backing it is cleared.
package domain

import (
	"strings"
)

// Severity is the reported intensity of a single symptom occurrence.
// The set is closed: values outside it are dropped at extraction time.
type Severity string

const (
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

// DefaultSeverity is used for index bucketing when a record has no severity.
const DefaultSeverity = SeverityModerate

// Frequency is how often a symptom occurrence was reported to happen.
type Frequency string

const (
	FrequencyRarely       Frequency = "rarely"
	FrequencyOccasionally Frequency = "occasionally"
	FrequencyFrequent     Frequency = "frequent"
	FrequencyDaily        Frequency = "daily"
)

// DefaultFrequency is used for index bucketing when a record has no frequency.
const DefaultFrequency = FrequencyFrequent

// IsValid reports whether the severity belongs to the closed set.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityMild, SeverityModerate, SeveritySevere:
		return true
	default:
		return false
	}
}

// String returns the string representation of the severity.
func (s Severity) String() string {
	return string(s)
}

// ParseSeverity normalizes a raw answer into a Severity.
// The second return value is false when the value is not part of the enum.
func ParseSeverity(raw string) (Severity, bool) {
	s := Severity(strings.ToLower(strings.TrimSpace(raw)))
	return s, s.IsValid()
}

// IsValid reports whether the frequency belongs to the closed set.
func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyRarely, FrequencyOccasionally, FrequencyFrequent, FrequencyDaily:
		return true
	default:
		return false
	}
}

// String returns the string representation of the frequency.
func (f Frequency) String() string {
	return string(f)
}

// ParseFrequency normalizes a raw answer into a Frequency.
func ParseFrequency(raw string) (Frequency, bool) {
	f := Frequency(strings.ToLower(strings.TrimSpace(raw)))
	return f, f.IsValid()
}

// AssessmentType is the tag identifying one assessment module (e.g. "hormone").
type AssessmentType string

// String returns the string representation of the assessment type.
func (t AssessmentType) String() string {
	return string(t)
}

// FlagStatus is the lifecycle state of a biomarker flag.
type FlagStatus string

const (
	FlagActive  FlagStatus = "active"
	FlagRemoved FlagStatus = "removed"
)

// IsValid validates the flag status.
func (s FlagStatus) IsValid() bool {
	switch s {
	case FlagActive, FlagRemoved:
		return true
	default:
		return false
	}
}

// ReasonSymptomTriggered marks flags created by the biomarker correlator.
const ReasonSymptomTriggered = "symptom_triggered"

// FlagSourceSymptomLedger is the source recorded on correlator-created flags.
const FlagSourceSymptomLedger = "symptom_ledger"
