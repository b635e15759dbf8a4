package service

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/symptom-ledger-server/internal/domain"
)

// Extractor turns one assessment snapshot into raw symptom observations.
// Implementations must be side-effect free and return nothing for a nil snapshot
// or missing answers.
type Extractor interface {
	Type() domain.AssessmentType
	Extract(snapshot *domain.AssessmentSnapshot, now time.Time) []domain.RawSymptom
}

// SymptomOption is the symptom emitted when an answer option is selected.
type SymptomOption struct {
	Symptom  string
	Category string
}

// ExtractionRule reads one question. A multi-select rule emits one symptom per
// selected option; otherwise the whole answer is looked up as a single value.
type ExtractionRule struct {
	Question    string
	MultiSelect bool
	Options     map[string]SymptomOption
}

// noneOption clears a multi-select answer.
const noneOption = "none"

// RuleExtractor is a table-driven Extractor.
type RuleExtractor struct {
	assessment        domain.AssessmentType
	rules             []ExtractionRule
	severityQuestion  string
	frequencyQuestion string
}

// NewRuleExtractor creates an extractor for assessment t. The severity and frequency
// questions are optional; when set, their answers are attached to every symptom the
// snapshot yields.
func NewRuleExtractor(t domain.AssessmentType, severityQuestion, frequencyQuestion string, rules ...ExtractionRule) *RuleExtractor {
	return &RuleExtractor{
		assessment:        t,
		rules:             rules,
		severityQuestion:  severityQuestion,
		frequencyQuestion: frequencyQuestion,
	}
}

// Type returns the assessment type handled by the extractor.
func (e *RuleExtractor) Type() domain.AssessmentType {
	return e.assessment
}

// Extract applies every rule to the snapshot.
func (e *RuleExtractor) Extract(snapshot *domain.AssessmentSnapshot, now time.Time) []domain.RawSymptom {
	if snapshot == nil {
		return nil
	}

	date := now
	if completed, ok := snapshot.Completed(); ok {
		date = completed
	}

	var severity domain.Severity
	if raw, ok := snapshot.Answer(e.severityQuestion); ok {
		if s, ok := domain.ParseSeverity(raw); ok {
			severity = s
		}
	}
	var frequency domain.Frequency
	if raw, ok := snapshot.Answer(e.frequencyQuestion); ok {
		if f, ok := domain.ParseFrequency(raw); ok {
			frequency = f
		}
	}

	var out []domain.RawSymptom
	for _, rule := range e.rules {
		answer, ok := snapshot.Answer(rule.Question)
		if !ok {
			continue
		}
		for _, option := range selectedOptions(answer, rule.MultiSelect) {
			match, ok := rule.Options[option]
			if !ok {
				continue
			}
			out = append(out, domain.RawSymptom{
				Name:       match.Symptom,
				Category:   match.Category,
				Severity:   severity,
				Frequency:  frequency,
				Date:       date,
				Assessment: e.assessment,
			})
		}
	}
	return out
}

func selectedOptions(answer string, multi bool) []string {
	normalize := func(s string) string {
		return strings.ToLower(strings.TrimSpace(s))
	}
	if !multi {
		return []string{normalize(answer)}
	}
	parts := strings.FieldsFunc(answer, func(r rune) bool { return r == ',' || r == '|' })
	options := make([]string, 0, len(parts))
	for _, p := range parts {
		option := normalize(p)
		if option == noneOption {
			return nil
		}
		if option != "" {
			options = append(options, option)
		}
	}
	return options
}

// ExtractorRegistry maps assessment type tags to their extractor.
type ExtractorRegistry struct {
	extractors map[domain.AssessmentType]Extractor
}

// NewExtractorRegistry builds a registry; registering a type twice is an error.
func NewExtractorRegistry(extractors ...Extractor) (*ExtractorRegistry, error) {
	r := &ExtractorRegistry{extractors: make(map[domain.AssessmentType]Extractor, len(extractors))}
	for _, e := range extractors {
		if e.Type() == "" {
			return nil, fmt.Errorf("extractor with empty assessment type")
		}
		if _, exists := r.extractors[e.Type()]; exists {
			return nil, fmt.Errorf("duplicate extractor for assessment type %q", e.Type())
		}
		r.extractors[e.Type()] = e
	}
	return r, nil
}

// Get returns the extractor for t or ErrUnknownAssessmentType.
func (r *ExtractorRegistry) Get(t domain.AssessmentType) (Extractor, error) {
	e, ok := r.extractors[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownAssessmentType, t)
	}
	return e, nil
}

// Has reports whether t is registered.
func (r *ExtractorRegistry) Has(t domain.AssessmentType) bool {
	_, ok := r.extractors[t]
	return ok
}

// Types lists the registered assessment types in sorted order.
func (r *ExtractorRegistry) Types() []domain.AssessmentType {
	types := make([]domain.AssessmentType, 0, len(r.extractors))
	for t := range r.extractors {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Validate checks that every configured type has an extractor.
func (r *ExtractorRegistry) Validate(types []string) error {
	for _, t := range types {
		if !r.Has(domain.AssessmentType(t)) {
			return fmt.Errorf("%w: %q", domain.ErrUnknownAssessmentType, t)
		}
	}
	return nil
}

// Restrict returns a registry holding only the given types. An empty list keeps
// every registered type.
func (r *ExtractorRegistry) Restrict(types []string) (*ExtractorRegistry, error) {
	if len(types) == 0 {
		return r, nil
	}
	if err := r.Validate(types); err != nil {
		return nil, err
	}
	subset := make([]Extractor, 0, len(types))
	seen := make(map[string]bool, len(types))
	for _, t := range types {
		if seen[t] {
			continue
		}
		seen[t] = true
		subset = append(subset, r.extractors[domain.AssessmentType(t)])
	}
	return NewExtractorRegistry(subset...)
}
