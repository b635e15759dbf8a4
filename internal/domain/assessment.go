package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Answers maps a question id to its raw answer. Multi-select answers are stored
// as a comma-separated list.
type Answers map[string]string

// UnmarshalJSON accepts string, number, boolean and string-list answer values.
func (a *Answers) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Answers, len(raw))
	for key, value := range raw {
		if isEmptyDocument(value) {
			continue
		}
		var s string
		if err := json.Unmarshal(value, &s); err == nil {
			out[key] = s
			continue
		}
		var list []string
		if err := json.Unmarshal(value, &list); err == nil {
			out[key] = strings.Join(list, ",")
			continue
		}
		var n float64
		if err := json.Unmarshal(value, &n); err == nil {
			out[key] = strconv.FormatFloat(n, 'f', -1, 64)
			continue
		}
		var b bool
		if err := json.Unmarshal(value, &b); err == nil {
			out[key] = strconv.FormatBool(b)
			continue
		}
		// nested objects carry no answer
	}
	*a = out
	return nil
}

// AssessmentSnapshot is the current state of one assessment for one user, as
// exposed by the assessment data provider. A nil snapshot means the user has not
// taken the assessment; all accessors are safe on nil.
type AssessmentSnapshot struct {
	UserID         string             `json:"user_id"`
	Type           AssessmentType     `json:"assessment_type"`
	Answers        Answers            `json:"answers"`
	OverallScore   *float64           `json:"overall_score,omitempty"`
	CategoryScores map[string]float64 `json:"category_scores,omitempty"`
	CompletedAt    *time.Time         `json:"completed_at,omitempty"`
}

// Answer returns the trimmed, non-empty answer to a question.
func (s *AssessmentSnapshot) Answer(questionID string) (string, bool) {
	if s == nil {
		return "", false
	}
	v := strings.TrimSpace(s.Answers[questionID])
	return v, v != ""
}

// Score returns the overall calculated score.
func (s *AssessmentSnapshot) Score() (float64, bool) {
	if s == nil || s.OverallScore == nil {
		return 0, false
	}
	return *s.OverallScore, true
}

// CategoryScore returns the score of one category.
func (s *AssessmentSnapshot) CategoryScore(category string) (float64, bool) {
	if s == nil || s.CategoryScores == nil {
		return 0, false
	}
	v, ok := s.CategoryScores[category]
	return v, ok
}

// Categories returns the scored categories in sorted order.
func (s *AssessmentSnapshot) Categories() []string {
	if s == nil {
		return nil
	}
	cats := make([]string, 0, len(s.CategoryScores))
	for c := range s.CategoryScores {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	return cats
}

// Completed returns the completion timestamp of the assessment.
func (s *AssessmentSnapshot) Completed() (time.Time, bool) {
	if s == nil || s.CompletedAt == nil || s.CompletedAt.IsZero() {
		return time.Time{}, false
	}
	return *s.CompletedAt, true
}

// QuestionIDs returns the ids of non-empty answers that belong to this
// assessment's question namespace, in sorted order.
func (s *AssessmentSnapshot) QuestionIDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, 0, len(s.Answers))
	for key := range s.Answers {
		if !IsQuestionID(s.Type, key) {
			continue
		}
		if _, ok := s.Answer(key); ok {
			ids = append(ids, key)
		}
	}
	sort.Strings(ids)
	return ids
}

// IsQuestionID reports whether key has the shape "<type>_q<digits>".
func IsQuestionID(t AssessmentType, key string) bool {
	prefix := string(t) + "_q"
	if t == "" || !strings.HasPrefix(key, prefix) {
		return false
	}
	rest := key[len(prefix):]
	if rest == "" {
		return false
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// QuestionID builds the id of question n of assessment t.
func QuestionID(t AssessmentType, n int) string {
	return fmt.Sprintf("%s_q%d", t, n)
}
