package domain

import (
	"sort"
	"time"
)

// DefaultCategory buckets records that were reported without a category.
const DefaultCategory = "general"

// SymptomRecord is one distinct symptom in a user's ledger.
type SymptomRecord struct {
	Name            string           `json:"name"`
	Category        string           `json:"category"`
	Assessments     []AssessmentType `json:"assessments"`
	Severity        []Severity       `json:"severity"`
	Frequency       []Frequency      `json:"frequency"`
	FirstReported   time.Time        `json:"first_reported"`
	LastReported    time.Time        `json:"last_reported"`
	OccurrenceCount int              `json:"occurrence_count"`
}

// HasAssessment reports whether the given assessment type has reported this symptom.
func (r *SymptomRecord) HasAssessment(t AssessmentType) bool {
	for _, a := range r.Assessments {
		if a == t {
			return true
		}
	}
	return false
}

// AddAssessment records the assessment type once.
func (r *SymptomRecord) AddAssessment(t AssessmentType) {
	if t == "" || r.HasAssessment(t) {
		return
	}
	r.Assessments = append(r.Assessments, t)
}

// PrimarySeverity is the first reported severity, or DefaultSeverity.
func (r *SymptomRecord) PrimarySeverity() Severity {
	if len(r.Severity) == 0 {
		return DefaultSeverity
	}
	return r.Severity[0]
}

// PrimaryFrequency is the first reported frequency, or DefaultFrequency.
func (r *SymptomRecord) PrimaryFrequency() Frequency {
	if len(r.Frequency) == 0 {
		return DefaultFrequency
	}
	return r.Frequency[0]
}

// CategoryKey is the category used for index bucketing.
func (r *SymptomRecord) CategoryKey() string {
	if r.Category == "" {
		return DefaultCategory
	}
	return r.Category
}

// Clone returns a deep copy of the record.
func (r *SymptomRecord) Clone() *SymptomRecord {
	c := *r
	c.Assessments = append([]AssessmentType(nil), r.Assessments...)
	c.Severity = append([]Severity(nil), r.Severity...)
	c.Frequency = append([]Frequency(nil), r.Frequency...)
	return &c
}

// Index maps a bucket key (category, severity or frequency) to the sorted set of
// symptom names in that bucket.
type Index map[string][]string

// BuildIndices derives the category, severity and frequency indices from a symptom
// map. The indices are always computed wholesale; nothing patches them in place.
func BuildIndices(symptoms map[string]*SymptomRecord) (byCategory, bySeverity, byFrequency Index) {
	byCategory, bySeverity, byFrequency = Index{}, Index{}, Index{}
	for name, rec := range symptoms {
		byCategory[rec.CategoryKey()] = append(byCategory[rec.CategoryKey()], name)
		sev := rec.PrimarySeverity().String()
		bySeverity[sev] = append(bySeverity[sev], name)
		freq := rec.PrimaryFrequency().String()
		byFrequency[freq] = append(byFrequency[freq], name)
	}
	for _, idx := range []Index{byCategory, bySeverity, byFrequency} {
		for k := range idx {
			sort.Strings(idx[k])
		}
	}
	return byCategory, bySeverity, byFrequency
}

// SymptomLog is the durable per-user aggregate of active symptoms.
type SymptomLog struct {
	Symptoms    map[string]*SymptomRecord `json:"symptoms"`
	ByCategory  Index                     `json:"by_category"`
	BySeverity  Index                     `json:"by_severity"`
	ByFrequency Index                     `json:"by_frequency"`
	TotalCount  int                       `json:"total_count"`
	LastUpdated time.Time                 `json:"last_updated"`
	UserID      string                    `json:"user_id"`
}

// NewSymptomLog returns an empty log stamped with the given time.
func NewSymptomLog(userID string, now time.Time) *SymptomLog {
	l := &SymptomLog{
		Symptoms:    make(map[string]*SymptomRecord),
		LastUpdated: now,
		UserID:      userID,
	}
	l.Rebuild()
	return l
}

// Get returns the record for name, or nil.
func (l *SymptomLog) Get(name string) *SymptomRecord {
	return l.Symptoms[name]
}

// Has reports whether the log contains name.
func (l *SymptomLog) Has(name string) bool {
	_, ok := l.Symptoms[name]
	return ok
}

// Put inserts or replaces a record. Callers must Rebuild afterwards.
func (l *SymptomLog) Put(rec *SymptomRecord) {
	l.Symptoms[rec.Name] = rec
}

// Remove deletes a record. Callers must Rebuild afterwards.
func (l *SymptomLog) Remove(name string) bool {
	if _, ok := l.Symptoms[name]; !ok {
		return false
	}
	delete(l.Symptoms, name)
	return true
}

// Names returns the symptom names in sorted order.
func (l *SymptomLog) Names() []string {
	names := make([]string, 0, len(l.Symptoms))
	for name := range l.Symptoms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Rebuild recomputes every derived field from Symptoms.
func (l *SymptomLog) Rebuild() {
	if l.Symptoms == nil {
		l.Symptoms = make(map[string]*SymptomRecord)
	}
	l.ByCategory, l.BySeverity, l.ByFrequency = BuildIndices(l.Symptoms)
	l.TotalCount = len(l.Symptoms)
}

// Clone returns a deep copy of the log.
func (l *SymptomLog) Clone() *SymptomLog {
	c := &SymptomLog{
		Symptoms:    make(map[string]*SymptomRecord, len(l.Symptoms)),
		LastUpdated: l.LastUpdated,
		UserID:      l.UserID,
	}
	for name, rec := range l.Symptoms {
		c.Symptoms[name] = rec.Clone()
	}
	c.Rebuild()
	return c
}

// HistoryEntry is one row of the history projection.
type HistoryEntry struct {
	Name            string           `json:"name"`
	Category        string           `json:"category"`
	Assessments     []AssessmentType `json:"assessments"`
	FirstReported   time.Time        `json:"first_reported"`
	LastReported    time.Time        `json:"last_reported"`
	OccurrenceCount int              `json:"occurrence_count"`
}

// History lists the active symptoms, most recently reported first.
func (l *SymptomLog) History() []HistoryEntry {
	entries := make([]HistoryEntry, 0, len(l.Symptoms))
	for _, rec := range l.Symptoms {
		entries = append(entries, HistoryEntry{
			Name:            rec.Name,
			Category:        rec.CategoryKey(),
			Assessments:     append([]AssessmentType(nil), rec.Assessments...),
			FirstReported:   rec.FirstReported,
			LastReported:    rec.LastReported,
			OccurrenceCount: rec.OccurrenceCount,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].LastReported.Equal(entries[j].LastReported) {
			return entries[i].LastReported.After(entries[j].LastReported)
		}
		return entries[i].Name < entries[j].Name
	})
	return entries
}

// RawSymptom is a single observation emitted by an extractor.
// Severity and Frequency are empty when the assessment did not report them.
type RawSymptom struct {
	Name       string
	Category   string
	Severity   Severity
	Frequency  Frequency
	Date       time.Time
	Assessment AssessmentType
}

// AggregatedSet is the deduplicated union of one batch of extractor output.
type AggregatedSet struct {
	Symptoms    map[string]*SymptomRecord
	ByCategory  Index
	BySeverity  Index
	ByFrequency Index
}

// Names returns the aggregated symptom names in sorted order.
func (a *AggregatedSet) Names() []string {
	names := make([]string, 0, len(a.Symptoms))
	for name := range a.Symptoms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
