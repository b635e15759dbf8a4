package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ConditionType is the wire tag of a trigger condition.
type ConditionType string

const (
	ConditionScoreThreshold ConditionType = "score_threshold"
	ConditionQuestionAnswer ConditionType = "question_answer"
	ConditionCategoryScore  ConditionType = "category_score"
	ConditionUndecoded      ConditionType = "undecoded"
)

// OverallScoreField is the field recorded on score threshold conditions.
const OverallScoreField = "overall_score"

// ResolutionThreshold is the score at or below which a symptom is considered
// supported by the assessment.
const ResolutionThreshold = 6.0

// Condition is a stored predicate explaining why a symptom is active.
// The interface is sealed: ScoreThreshold, QuestionAnswer, CategoryScore and
// UndecodedCondition are the only implementations.
type Condition interface {
	Kind() ConditionType
	// Source is the assessment type the condition was derived from. It is empty
	// for conditions persisted before provenance was recorded.
	Source() AssessmentType
	Describe() string
	encode() ([]byte, error)
}

// ScoreThreshold resolves when the overall assessment score rises above Threshold.
type ScoreThreshold struct {
	Assessment  AssessmentType
	Threshold   float64
	Description string
}

// QuestionAnswer resolves when the answer to Question changes from Answer to a
// positive response.
type QuestionAnswer struct {
	Assessment  AssessmentType
	Question    string
	Answer      string
	Description string
}

// CategoryScore resolves when the score of Category rises above Threshold.
type CategoryScore struct {
	Assessment  AssessmentType
	Category    string
	Threshold   float64
	Description string
}

// UndecodedCondition is a persisted condition that failed to decode. It never
// resolves its symptom and is written back exactly as it was read.
type UndecodedCondition struct {
	Raw        json.RawMessage
	Assessment AssessmentType
	Reason     string
}

func (c ScoreThreshold) Kind() ConditionType    { return ConditionScoreThreshold }
func (c ScoreThreshold) Source() AssessmentType { return c.Assessment }
func (c ScoreThreshold) Describe() string       { return c.Description }

func (c QuestionAnswer) Kind() ConditionType    { return ConditionQuestionAnswer }
func (c QuestionAnswer) Source() AssessmentType { return c.Assessment }
func (c QuestionAnswer) Describe() string       { return c.Description }

func (c CategoryScore) Kind() ConditionType    { return ConditionCategoryScore }
func (c CategoryScore) Source() AssessmentType { return c.Assessment }
func (c CategoryScore) Describe() string       { return c.Description }

func (c UndecodedCondition) Kind() ConditionType    { return ConditionUndecoded }
func (c UndecodedCondition) Source() AssessmentType { return c.Assessment }
func (c UndecodedCondition) Describe() string       { return "undecodable condition: " + c.Reason }

// conditionRecord is the persisted shape {type, field, value, description}.
type conditionRecord struct {
	Type        ConditionType  `json:"type"`
	Field       string         `json:"field"`
	Value       string         `json:"value"`
	Description string         `json:"description"`
	Assessment  AssessmentType `json:"assessment,omitempty"`
}

func formatThreshold(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

func (c ScoreThreshold) encode() ([]byte, error) { return json.Marshal(c.record()) }
func (c QuestionAnswer) encode() ([]byte, error) { return json.Marshal(c.record()) }
func (c CategoryScore) encode() ([]byte, error)  { return json.Marshal(c.record()) }

func (c UndecodedCondition) encode() ([]byte, error) {
	if len(c.Raw) == 0 {
		return nil, fmt.Errorf("%w: undecodable condition without stored bytes", ErrInvalidCondition)
	}
	return c.Raw, nil
}

func (c ScoreThreshold) record() conditionRecord {
	return conditionRecord{
		Type:        ConditionScoreThreshold,
		Field:       OverallScoreField,
		Value:       formatThreshold(c.Threshold),
		Description: c.Description,
		Assessment:  c.Assessment,
	}
}

func (c QuestionAnswer) record() conditionRecord {
	return conditionRecord{
		Type:        ConditionQuestionAnswer,
		Field:       c.Question,
		Value:       c.Answer,
		Description: c.Description,
		Assessment:  c.Assessment,
	}
}

func (c CategoryScore) record() conditionRecord {
	return conditionRecord{
		Type:        ConditionCategoryScore,
		Field:       c.Category,
		Value:       formatThreshold(c.Threshold),
		Description: c.Description,
		Assessment:  c.Assessment,
	}
}

// NewScoreThreshold builds the overall score condition for an assessment.
func NewScoreThreshold(t AssessmentType, threshold float64) ScoreThreshold {
	return ScoreThreshold{
		Assessment:  t,
		Threshold:   threshold,
		Description: fmt.Sprintf("%s overall score below %s", t, formatThreshold(threshold)),
	}
}

// NewQuestionAnswer builds a condition capturing the current answer to a question.
func NewQuestionAnswer(t AssessmentType, question, answer string) QuestionAnswer {
	return QuestionAnswer{
		Assessment:  t,
		Question:    question,
		Answer:      answer,
		Description: fmt.Sprintf("answered %q to %s", answer, question),
	}
}

// NewCategoryScore builds a condition for a low category score.
func NewCategoryScore(t AssessmentType, category string, threshold float64) CategoryScore {
	return CategoryScore{
		Assessment:  t,
		Category:    category,
		Threshold:   threshold,
		Description: fmt.Sprintf("%s category %q score below %s", t, category, formatThreshold(threshold)),
	}
}

// MarshalCondition encodes a condition in its persisted shape.
func MarshalCondition(c Condition) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: nil condition", ErrInvalidCondition)
	}
	return c.encode()
}

// NewUndecodedCondition keeps raw after decoding failed with err. The assessment
// tag is recovered when raw still carries one.
func NewUndecodedCondition(raw []byte, err error) UndecodedCondition {
	var tagged struct {
		Assessment AssessmentType `json:"assessment"`
	}
	_ = json.Unmarshal(raw, &tagged)

	c := UndecodedCondition{
		Raw:        append(json.RawMessage(nil), raw...),
		Assessment: tagged.Assessment,
	}
	if err != nil {
		c.Reason = err.Error()
	}
	return c
}

// UnmarshalCondition decodes a persisted condition. Unknown types and malformed
// thresholds are reported as ErrInvalidCondition.
func UnmarshalCondition(data []byte) (Condition, error) {
	var rec conditionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCondition, err)
	}
	return rec.toCondition()
}

func (rec conditionRecord) toCondition() (Condition, error) {
	switch rec.Type {
	case ConditionScoreThreshold:
		v, err := strconv.ParseFloat(rec.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: score threshold %q: %v", ErrInvalidCondition, rec.Value, err)
		}
		return ScoreThreshold{Assessment: rec.Assessment, Threshold: v, Description: rec.Description}, nil
	case ConditionQuestionAnswer:
		if rec.Field == "" {
			return nil, fmt.Errorf("%w: question answer without field", ErrInvalidCondition)
		}
		return QuestionAnswer{Assessment: rec.Assessment, Question: rec.Field, Answer: rec.Value, Description: rec.Description}, nil
	case ConditionCategoryScore:
		v, err := strconv.ParseFloat(rec.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: category threshold %q: %v", ErrInvalidCondition, rec.Value, err)
		}
		if rec.Field == "" {
			return nil, fmt.Errorf("%w: category score without category", ErrInvalidCondition)
		}
		return CategoryScore{Assessment: rec.Assessment, Category: rec.Field, Threshold: v, Description: rec.Description}, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidCondition, rec.Type)
	}
}

// TriggerStore maps a symptom name to the conditions that keep it active.
type TriggerStore map[string][]Condition

// Clone returns a shallow copy; conditions are immutable values.
func (s TriggerStore) Clone() TriggerStore {
	c := make(TriggerStore, len(s))
	for name, conds := range s {
		c[name] = append([]Condition(nil), conds...)
	}
	return c
}
