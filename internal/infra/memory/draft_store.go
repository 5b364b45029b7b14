package memory

import (
	"context"
	"sync"

	"assessment-service/internal/domain"
)

// DraftStore is an in-memory implementation of app.DraftStore.
type DraftStore struct {
	mu     sync.RWMutex
	drafts map[string]domain.Answers
}

func NewDraftStore() *DraftStore {
	return &DraftStore{
		drafts: make(map[string]domain.Answers),
	}
}

func (s *DraftStore) SaveAnswer(_ context.Context, attemptID, questionID, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	draft, ok := s.drafts[attemptID]
	if !ok {
		draft = domain.Answers{}
		s.drafts[attemptID] = draft
	}
	draft[questionID] = value
	return nil
}

func (s *DraftStore) Answers(_ context.Context, attemptID string) (domain.Answers, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.drafts[attemptID].Clone(), nil
}

func (s *DraftStore) Clear(_ context.Context, attemptID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, attemptID)
	return nil
}
