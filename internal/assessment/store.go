// Package assessment holds an in-process store of assessment snapshots. It backs
// the standalone server, where submissions arrive through the HTTP API instead of
// being fetched from the CMS.
package assessment

import (
	"context"
	"fmt"
	"sync"

	"github.com/symptom-ledger-server/internal/domain"
)

type key struct {
	userID     string
	assessment domain.AssessmentType
}

// Store keeps the latest snapshot per user and assessment type. It implements both
// domain.AssessmentProvider and domain.AssessmentRecorder.
type Store struct {
	mu        sync.RWMutex
	snapshots map[key]*domain.AssessmentSnapshot
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{snapshots: make(map[key]*domain.AssessmentSnapshot)}
}

// Snapshot returns a copy of the latest snapshot, or nil when the user has not
// taken the assessment.
func (s *Store) Snapshot(ctx context.Context, userID string, t domain.AssessmentType) (*domain.AssessmentSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[key{userID, t}]
	if !ok {
		return nil, nil
	}
	return clone(snap), nil
}

// Record replaces the stored snapshot of the user and assessment type.
func (s *Store) Record(ctx context.Context, snapshot *domain.AssessmentSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snapshot == nil || snapshot.UserID == "" || snapshot.Type == "" {
		return fmt.Errorf("snapshot requires user id and assessment type")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[key{snapshot.UserID, snapshot.Type}] = clone(snapshot)
	return nil
}

// Delete forgets a snapshot.
func (s *Store) Delete(userID string, t domain.AssessmentType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, key{userID, t})
}

func clone(in *domain.AssessmentSnapshot) *domain.AssessmentSnapshot {
	out := *in
	if in.Answers != nil {
		out.Answers = make(domain.Answers, len(in.Answers))
		for k, v := range in.Answers {
			out.Answers[k] = v
		}
	}
	if in.CategoryScores != nil {
		out.CategoryScores = make(map[string]float64, len(in.CategoryScores))
		for k, v := range in.CategoryScores {
			out.CategoryScores[k] = v
		}
	}
	if in.OverallScore != nil {
		score := *in.OverallScore
		out.OverallScore = &score
	}
	if in.CompletedAt != nil {
		completed := *in.CompletedAt
		out.CompletedAt = &completed
	}
	return &out
}
