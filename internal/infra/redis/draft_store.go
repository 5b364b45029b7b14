package redis

import (
	"context"
	"time"

	"assessment-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// DraftStore keeps in-progress answers in a Redis hash per attempt so any
// instance can serve the timer-driven submit:
//
//	HSET attempt:{attemptID}:draft {questionID} {value}
//
// Drafts expire after ttl of inactivity.
type DraftStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewDraftStore(client *redis.Client, ttl time.Duration) *DraftStore {
	return &DraftStore{client: client, ttl: ttl}
}

func (s *DraftStore) SaveAnswer(ctx context.Context, attemptID, questionID, value string) error {
	key := s.key(attemptID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, questionID, value)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *DraftStore) Answers(ctx context.Context, attemptID string) (domain.Answers, error) {
	values, err := s.client.HGetAll(ctx, s.key(attemptID)).Result()
	if err != nil {
		return nil, err
	}
	return domain.Answers(values), nil
}

func (s *DraftStore) Clear(ctx context.Context, attemptID string) error {
	return s.client.Del(ctx, s.key(attemptID)).Err()
}

func (s *DraftStore) key(attemptID string) string {
	return "attempt:" + attemptID + ":draft"
}
