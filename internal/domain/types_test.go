package domain

import (
	"testing"
)

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		raw      string
		expected Severity
		valid    bool
	}{
		{"mild", SeverityMild, true},
		{" Moderate ", SeverityModerate, true},
		{"SEVERE", SeveritySevere, true},
		{"extreme", Severity("extreme"), false},
		{"", Severity(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseSeverity(tt.raw)
			if ok != tt.valid {
				t.Errorf("Expected valid=%v for %q, got %v", tt.valid, tt.raw, ok)
			}
			if got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestParseFrequency(t *testing.T) {
	tests := []struct {
		raw      string
		expected Frequency
		valid    bool
	}{
		{"rarely", FrequencyRarely, true},
		{"Occasionally", FrequencyOccasionally, true},
		{"frequent", FrequencyFrequent, true},
		{"daily", FrequencyDaily, true},
		{"hourly", Frequency("hourly"), false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseFrequency(tt.raw)
			if ok != tt.valid {
				t.Errorf("Expected valid=%v for %q, got %v", tt.valid, tt.raw, ok)
			}
			if got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestDefaults(t *testing.T) {
	if DefaultSeverity != SeverityModerate {
		t.Errorf("Expected default severity moderate, got %s", DefaultSeverity)
	}
	if DefaultFrequency != FrequencyFrequent {
		t.Errorf("Expected default frequency frequent, got %s", DefaultFrequency)
	}
}

func TestFlagStatusIsValid(t *testing.T) {
	if !FlagActive.IsValid() || !FlagRemoved.IsValid() {
		t.Error("Expected active and removed to be valid statuses")
	}
	if FlagStatus("pending").IsValid() {
		t.Error("Did not expect pending to be a valid status")
	}
}

func TestIsQuestionID(t *testing.T) {
	tests := []struct {
		assessment AssessmentType
		key        string
		expected   bool
	}{
		{"hormone", "hormone_q1", true},
		{"hormone", "hormone_q12", true},
		{"hormone", "hormone_q", false},
		{"hormone", "hormone_qx", false},
		{"hormone", "sleep_q1", false},
		{"hormone", "hormone_score", false},
		{"weight_loss", "weight_loss_q3", true},
		{"", "_q1", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := IsQuestionID(tt.assessment, tt.key); got != tt.expected {
				t.Errorf("IsQuestionID(%q, %q) = %v, expected %v", tt.assessment, tt.key, got, tt.expected)
			}
		})
	}
}
