package http

import (
	"testing"
	"time"

	"assessment-service/internal/app"
	"assessment-service/internal/domain"
	"assessment-service/internal/infra/memory"
	"assessment-service/internal/monitoring"
	"github.com/prometheus/client_golang/prometheus"
)

type testServices struct {
	attempts   *app.AttemptService
	settlement *app.SettlementService
	ledger     *memory.PointsLedger
	metrics    *monitoring.Metrics
}

func newTestServices(t *testing.T, balance int64, opts ...app.Option) testServices {
	t.Helper()
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuiz()), time.Minute)
	store := memory.NewAttemptStore()
	ledger := memory.NewPointsLedger(map[string]int64{"u1": balance})
	metrics := monitoring.New(prometheus.NewRegistry())
	opts = append([]app.Option{app.WithMetrics(metrics)}, opts...)
	return testServices{
		attempts:   app.NewAttemptService(store, quizzes, ledger, memory.NewDraftStore(), opts...),
		settlement: app.NewSettlementService(store, quizzes, opts...),
		ledger:     ledger,
		metrics:    metrics,
	}
}

func sampleQuiz() map[string]domain.QuizSnapshot {
	return map[string]domain.QuizSnapshot{
		"quiz-1": {
			ID:              "quiz-1",
			DurationMinutes: 30,
			Questions: []domain.Question{
				{ID: "q1", Type: domain.QuestionMultipleChoice, MaxScore: 1, CorrectOptionID: "o2"},
				{ID: "q2", Type: domain.QuestionTrueFalse, MaxScore: 1, CorrectOptionID: "true"},
				{ID: "q3", Type: domain.QuestionMultipleChoice, MaxScore: 1, CorrectOptionID: "o1"},
				{ID: "e1", Type: domain.QuestionEssay, MaxScore: 10},
			},
		},
	}
}
