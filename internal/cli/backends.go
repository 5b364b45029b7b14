package cli

import (
	"context"
	"fmt"
	"time"

	"assessment-service/internal/app"
	"assessment-service/internal/config"
	"assessment-service/internal/domain"
	"assessment-service/internal/infra/memory"
	"assessment-service/internal/infra/postgres"
	redisinfra "assessment-service/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// pointsLedger is the ledger surface the CLI needs beyond app.PointsLedger.
type pointsLedger interface {
	app.PointsLedger
	Credit(ctx context.Context, userID string, amount int64) (int64, error)
	Balance(ctx context.Context, userID string) (int64, error)
}

// backends holds the storage the configured service runs on.
type backends struct {
	pool     *pgxpool.Pool
	redis    *redis.Client
	quizzes  app.SnapshotProvider
	attempts app.AttemptStore
	drafts   app.DraftStore
	ledger   pointsLedger
}

func openBackends(ctx context.Context, cfg config.Config, log *zap.Logger) (*backends, error) {
	b := &backends{}
	if cfg.Redis.Addr != "" {
		b.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.pool = pool
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if b.pool != nil {
		loader = postgres.NewQuizLoader(b.pool)
	}
	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	if b.redis != nil {
		b.quizzes = redisinfra.NewQuizRepository(b.redis, loader, quizTTL)
		b.drafts = redisinfra.NewDraftStore(b.redis, config.TTLDuration(cfg.Redis.TTL, 24*time.Hour))
	} else {
		b.quizzes = memory.NewQuizRepository(loader, quizTTL)
		b.drafts = memory.NewDraftStore()
	}

	if b.pool != nil {
		b.attempts = postgres.NewAttemptStore(b.pool)
	} else {
		b.attempts = memory.NewAttemptStore()
	}

	switch backend := cfg.LedgerBackend(); backend {
	case config.LedgerPostgres:
		if b.pool == nil {
			b.Close()
			return nil, fmt.Errorf("ledger backend %s requires postgres.url", backend)
		}
		b.ledger = postgres.NewPointsLedger(b.pool)
	case config.LedgerRedis:
		if b.redis == nil {
			b.Close()
			return nil, fmt.Errorf("ledger backend %s requires redis.addr", backend)
		}
		b.ledger = redisinfra.NewPointsLedger(b.redis)
	default:
		b.ledger = memory.NewPointsLedger(cfg.Ledger.InitialBalance)
	}

	log.Info("backends ready",
		zap.Bool("postgres", b.pool != nil),
		zap.Bool("redis", b.redis != nil),
		zap.String("ledger", cfg.LedgerBackend()))
	return b, nil
}

func (b *backends) Close() {
	if b.pool != nil {
		b.pool.Close()
	}
	if b.redis != nil {
		_ = b.redis.Close()
	}
}

// sampleQuizzes seeds the static loader used when no Postgres is configured.
func sampleQuizzes() map[string]domain.QuizSnapshot {
	return map[string]domain.QuizSnapshot{
		"quiz-1": {
			ID:              "quiz-1",
			DurationMinutes: 30,
			Questions: []domain.Question{
				{ID: "q1", Type: domain.QuestionMultipleChoice, MaxScore: 1, CorrectOptionID: "b"},
				{ID: "q2", Type: domain.QuestionMultipleChoice, MaxScore: 1, CorrectOptionID: "c"},
				{ID: "q3", Type: domain.QuestionTrueFalse, MaxScore: 1, CorrectOptionID: "true"},
				{ID: "q4", Type: domain.QuestionTrueFalse, MaxScore: 1, CorrectOptionID: "false"},
				{ID: "e1", Type: domain.QuestionEssay, MaxScore: 10},
			},
		},
	}
}
