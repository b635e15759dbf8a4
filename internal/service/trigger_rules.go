package service

import (
	"fmt"
	"strings"

	"github.com/symptom-ledger-server/internal/domain"
)

// positiveResponses are the answers that count as a symptom having gone away when
// a stored question_answer condition changes. The list is shared by every
// assessment and every question.
var positiveResponses = map[string]struct{}{
	"no":                {},
	"never":             {},
	"none":              {},
	"excellent":         {},
	"good":              {},
	"high":              {},
	"frequent":          {},
	"daily":             {},
	"strongly_disagree": {},
	"disagree":          {},
	"not_at_all":        {},
	"rarely":            {},
	"seldom":            {},
}

// IsPositiveResponse reports whether answer is in the positive-response vocabulary.
func IsPositiveResponse(answer string) bool {
	_, ok := positiveResponses[strings.ToLower(strings.TrimSpace(answer))]
	return ok
}

// DeriveConditions captures the conditions that hold in snapshot right now. It is
// called once, when a symptom is first observed.
func DeriveConditions(snapshot *domain.AssessmentSnapshot) []domain.Condition {
	if snapshot == nil {
		return nil
	}

	var conds []domain.Condition
	if score, ok := snapshot.Score(); ok && score < domain.ResolutionThreshold {
		conds = append(conds, domain.NewScoreThreshold(snapshot.Type, domain.ResolutionThreshold))
	}
	for _, question := range snapshot.QuestionIDs() {
		answer, _ := snapshot.Answer(question)
		conds = append(conds, domain.NewQuestionAnswer(snapshot.Type, question, answer))
	}
	for _, category := range snapshot.Categories() {
		if score, _ := snapshot.CategoryScore(category); score < domain.ResolutionThreshold {
			conds = append(conds, domain.NewCategoryScore(snapshot.Type, category, domain.ResolutionThreshold))
		}
	}
	return conds
}

// EvaluateCondition reports whether c is resolved by snapshot. A nil snapshot
// resolves nothing.
func EvaluateCondition(c domain.Condition, snapshot *domain.AssessmentSnapshot) (bool, error) {
	switch cond := c.(type) {
	case domain.ScoreThreshold:
		score, ok := snapshot.Score()
		return ok && score > cond.Threshold, nil
	case domain.QuestionAnswer:
		answer, ok := snapshot.Answer(cond.Question)
		if !ok {
			return false, nil
		}
		changed := !strings.EqualFold(answer, strings.TrimSpace(cond.Answer))
		return changed && IsPositiveResponse(answer), nil
	case domain.CategoryScore:
		score, ok := snapshot.CategoryScore(cond.Category)
		return ok && score > cond.Threshold, nil
	case domain.UndecodedCondition:
		return false, nil
	case nil:
		return false, fmt.Errorf("%w: nil condition", domain.ErrInvalidCondition)
	default:
		return false, fmt.Errorf("%w: unsupported condition %T", domain.ErrInvalidCondition, c)
	}
}
