package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"assessment-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuizLoader fetches quiz snapshots from a backing store (e.g., Postgres).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.QuizSnapshot, error)
}

// QuizRepository caches quiz snapshots in Redis (hash per quiz) and falls back to a loader on cache miss.
// Snapshots are stored as:
//
//	HSET quiz:{quizID}:snapshot duration {minutes} order {q1,q2,...} q:{questionID} {question json}
type QuizRepository struct {
	client *redis.Client
	loader QuizLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuizRepository(client *redis.Client, loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuizRepository) GetSnapshot(ctx context.Context, quizID string) (domain.QuizSnapshot, error) {
	key := r.snapshotKey(quizID)
	if quiz, ok := r.fromCache(ctx, quizID, key); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(quizID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if quiz, ok := r.fromCache(ctx, quizID, key); ok {
			return quiz, nil
		}

		quiz, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.QuizSnapshot{}, err
		}

		fields := map[string]interface{}{
			"duration": quiz.DurationMinutes,
		}
		order := make([]string, 0, len(quiz.Questions))
		for _, q := range quiz.Questions {
			raw, err := json.Marshal(q)
			if err != nil {
				return domain.QuizSnapshot{}, err
			}
			fields["q:"+q.ID] = string(raw)
			order = append(order, q.ID)
		}
		fields["order"] = strings.Join(order, ",")

		pipe := r.client.TxPipeline()
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fields)
		if ttl := r.ttlWithJitter(); ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		// cache fill is best-effort; the loaded snapshot is still returned
		_, _ = pipe.Exec(ctx)

		return quiz, nil
	})
	if err != nil {
		return domain.QuizSnapshot{}, err
	}
	return result.(domain.QuizSnapshot), nil
}

func (r *QuizRepository) snapshotKey(quizID string) string {
	return "quiz:" + quizID + ":snapshot"
}

func (r *QuizRepository) fromCache(ctx context.Context, quizID, key string) (domain.QuizSnapshot, bool) {
	fields, err := r.client.HGetAll(ctx, key).Result()
	if err != nil || len(fields) == 0 {
		return domain.QuizSnapshot{}, false
	}
	return buildQuizFromCache(quizID, fields)
}

func buildQuizFromCache(quizID string, fields map[string]string) (domain.QuizSnapshot, bool) {
	duration, err := strconv.Atoi(fields["duration"])
	if err != nil {
		return domain.QuizSnapshot{}, false
	}
	quiz := domain.QuizSnapshot{ID: quizID, DurationMinutes: duration}
	if fields["order"] == "" {
		return quiz, true
	}
	for _, questionID := range strings.Split(fields["order"], ",") {
		raw, ok := fields["q:"+questionID]
		if !ok {
			return domain.QuizSnapshot{}, false
		}
		var q domain.Question
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			return domain.QuizSnapshot{}, false
		}
		quiz.Questions = append(quiz.Questions, q)
	}
	return quiz, true
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
