package domain

import (
	"time"
)

// BiomarkerFlag marks a lab biomarker as worth testing for a user.
// Flags created by the correlator carry ReasonSymptomTriggered and the name of the
// symptom that implicated the biomarker.
type BiomarkerFlag struct {
	ID                string     `json:"id"`
	UserID            string     `json:"user_id"`
	Biomarker         string     `json:"biomarker_name"`
	Reason            string     `json:"reason"`
	Note              string     `json:"note,omitempty"`
	Status            FlagStatus `json:"status"`
	Source            string     `json:"source"`
	TriggeringSymptom string     `json:"triggering_symptom,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	RemovedAt         *time.Time `json:"removed_at,omitempty"`
}

// IsActive reports whether the flag is still in force.
func (f *BiomarkerFlag) IsActive() bool {
	return f.Status == FlagActive
}
