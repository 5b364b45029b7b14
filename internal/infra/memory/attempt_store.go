package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"assessment-service/internal/domain"
)

// AttemptStore is an in-memory implementation of app.AttemptStore. Every
// operation copies attempts in and out so callers never share maps or slices
// with the stored record.
type AttemptStore struct {
	mu       sync.RWMutex
	attempts map[string]domain.Attempt
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		attempts: make(map[string]domain.Attempt),
	}
}

func (s *AttemptStore) Create(_ context.Context, attempt domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attempts[attempt.ID]; ok {
		return fmt.Errorf("attempt %s already exists", attempt.ID)
	}
	s.attempts[attempt.ID] = clone(attempt)
	return nil
}

func (s *AttemptStore) Get(_ context.Context, id string) (domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[id]
	if !ok {
		return domain.Attempt{}, domain.ErrNotFound
	}
	return clone(attempt), nil
}

// CompareAndSwapStatus applies mutate and moves the attempt to next only if it is
// still in expected. The check and the write happen under one lock.
func (s *AttemptStore) CompareAndSwapStatus(_ context.Context, id string, expected, next domain.Status, mutate func(*domain.Attempt)) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.attempts[id]
	if !ok {
		return domain.Attempt{}, domain.ErrNotFound
	}
	if current.Status != expected {
		return domain.Attempt{}, domain.ErrStatusConflict
	}
	updated := clone(current)
	if mutate != nil {
		mutate(&updated)
	}
	updated.Status = next
	s.attempts[id] = clone(updated)
	return updated, nil
}

func (s *AttemptStore) ListByStatus(_ context.Context, status domain.Status) ([]domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Attempt, 0)
	for _, attempt := range s.attempts {
		if attempt.Status == status {
			out = append(out, clone(attempt))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out, nil
}

func clone(a domain.Attempt) domain.Attempt {
	out := a
	if a.Answers != nil {
		out.Answers = a.Answers.Clone()
	}
	out.PendingEssays = append([]string(nil), a.PendingEssays...)
	out.EssayGrades = append([]domain.EssayGrade(nil), a.EssayGrades...)
	if a.SubmittedAt != nil {
		t := *a.SubmittedAt
		out.SubmittedAt = &t
	}
	if a.GradedAt != nil {
		t := *a.GradedAt
		out.GradedAt = &t
	}
	if a.EssayScore != nil {
		v := *a.EssayScore
		out.EssayScore = &v
	}
	if a.GradingRequest != nil {
		r := *a.GradingRequest
		out.GradingRequest = &r
	}
	return out
}
