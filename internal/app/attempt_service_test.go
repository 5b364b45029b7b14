package app_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"assessment-service/internal/app"
	"assessment-service/internal/domain"
	"assessment-service/internal/infra/memory"
	"golang.org/x/sync/errgroup"
)

var (
	learner = domain.Caller{UserID: "u1", Role: domain.RoleLearner}
	admin   = domain.Caller{UserID: "admin-1", Role: domain.RoleAdmin}
)

func TestStartAttempt(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 150)

	attempt, err := env.attempts.StartAttempt(ctx, learner, "quiz-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if attempt.Status != domain.StatusStarted {
		t.Fatalf("expected STARTED, got %s", attempt.Status)
	}
	if want := env.now.Add(30 * time.Minute); !attempt.Deadline.Equal(want) {
		t.Fatalf("expected deadline %v, got %v", want, attempt.Deadline)
	}

	if _, err := env.attempts.StartAttempt(ctx, learner, "missing"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
	if _, err := env.attempts.StartAttempt(ctx, learner, "empty"); !errors.Is(err, domain.ErrInvalidQuiz) {
		t.Fatalf("expected ErrInvalidQuiz, got %v", err)
	}
	if _, err := env.attempts.StartAttempt(ctx, domain.Caller{}, "quiz-1"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for anonymous caller, got %v", err)
	}
}

func TestGradingLifecycleScenario(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 150)
	attempt := env.start(t)

	res, err := env.attempts.SubmitAttempt(ctx, learner, attempt.ID, threeOfFourCorrect())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Status != domain.StatusCompleted || !approx(res.ObjectiveScore, 6.0) {
		t.Fatalf("expected COMPLETED with 6.0, got %s %v", res.Status, res.ObjectiveScore)
	}
	if len(res.PendingEssays) != 1 || res.PendingEssays[0] != "e1" {
		t.Fatalf("expected e1 pending, got %v", res.PendingEssays)
	}

	req, err := env.attempts.RequestGrading(ctx, learner, attempt.ID)
	if err != nil {
		t.Fatalf("request grading: %v", err)
	}
	if req.Outcome != domain.GradingGranted || req.Cost != 100 {
		t.Fatalf("unexpected grading request %+v", req)
	}
	if balance, _ := env.ledger.Balance(ctx, "u1"); balance != 50 {
		t.Fatalf("expected balance 50, got %d", balance)
	}

	graded, err := env.settlement.SubmitEssayGrades(ctx, admin, attempt.ID, []domain.EssayGrade{
		{QuestionID: "e1", Score: 8, Feedback: "well argued"},
	})
	if err != nil {
		t.Fatalf("submit grades: %v", err)
	}
	if graded.Status != domain.StatusGraded || graded.EssayScore == nil || !approx(*graded.EssayScore, 1.6) {
		t.Fatalf("expected GRADED with essay 1.6, got %+v", graded)
	}
	if graded.FinalScore == nil || !approx(*graded.FinalScore, 7.6) {
		t.Fatalf("expected final 7.6, got %v", graded.FinalScore)
	}
	if graded.GradedAt == nil {
		t.Fatalf("expected gradedAt to be recorded")
	}

	if _, err := env.settlement.SubmitEssayGrades(ctx, admin, attempt.ID, []domain.EssayGrade{{QuestionID: "e1", Score: 2}}); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected second settlement to be rejected, got %v", err)
	}
	if _, err := env.attempts.RequestGrading(ctx, learner, attempt.ID); !errors.Is(err, domain.ErrAlreadyRequested) {
		t.Fatalf("expected ErrAlreadyRequested once graded, got %v", err)
	}
}

func TestConcurrentSubmitScoresOnce(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 0)
	attempt := env.start(t)

	const callers = 16
	results := make([]domain.Result, callers)
	var g errgroup.Group
	for i := 0; i < callers; i++ {
		i := i
		g.Go(func() error {
			answers := domain.Answers{"q1": "a"}
			if i%2 == 0 {
				answers = threeOfFourCorrect()
			}
			res, err := env.attempts.SubmitAttempt(ctx, learner, attempt.ID, answers)
			results[i] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("submit: %v", err)
	}

	stored, err := env.store.Get(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	for i, res := range results {
		if res.Status != domain.StatusCompleted || res.ObjectiveScore != stored.ObjectiveScore {
			t.Fatalf("caller %d saw %s/%v, stored %v", i, res.Status, res.ObjectiveScore, stored.ObjectiveScore)
		}
	}
	if env.store.scoreWrites.Load() != 1 {
		t.Fatalf("expected exactly one scoring write, got %d", env.store.scoreWrites.Load())
	}
}

func TestSubmitAfterCompletionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 0)
	attempt := env.start(t)

	first, err := env.attempts.SubmitAttempt(ctx, learner, attempt.ID, threeOfFourCorrect())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	// A timer firing after the manual submit carries stale answers.
	second, err := env.attempts.SubmitAttempt(ctx, learner, attempt.ID, domain.Answers{})
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if second.ObjectiveScore != first.ObjectiveScore || *second.FinalScore != *first.FinalScore {
		t.Fatalf("expected identical results, got %v and %v", first.ObjectiveScore, second.ObjectiveScore)
	}
}

func TestSubmitUsesDraftAnswers(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 0)
	attempt := env.start(t)

	for q, v := range threeOfFourCorrect() {
		if err := env.attempts.SaveAnswer(ctx, learner, attempt.ID, q, v); err != nil {
			t.Fatalf("save answer: %v", err)
		}
	}
	if err := env.attempts.SaveAnswer(ctx, learner, attempt.ID, "nope", "x"); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected ErrQuestionNotFound, got %v", err)
	}

	// Timer-driven submit sends no answers of its own; q4 overrides the draft.
	res, err := env.attempts.SubmitAttempt(ctx, learner, attempt.ID, domain.Answers{"q4": "c"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !approx(res.ObjectiveScore, 8.0) {
		t.Fatalf("expected 8.0 from draft plus override, got %v", res.ObjectiveScore)
	}
	if err := env.attempts.SaveAnswer(ctx, learner, attempt.ID, "q1", "b"); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState after submit, got %v", err)
	}
	if draft, _ := env.drafts.Answers(ctx, attempt.ID); len(draft) != 0 {
		t.Fatalf("expected draft cleared after completion, got %v", draft)
	}
}

func TestSubmitRecoversStuckSubmission(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 0)
	attempt := env.start(t)

	// Simulate a crash after the lock write and before scoring.
	if _, err := env.store.CompareAndSwapStatus(ctx, attempt.ID, domain.StatusStarted, domain.StatusSubmitting, func(a *domain.Attempt) {
		a.Answers = threeOfFourCorrect()
	}); err != nil {
		t.Fatalf("lock: %v", err)
	}

	res, err := env.attempts.SubmitAttempt(ctx, learner, attempt.ID, domain.Answers{})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Status != domain.StatusCompleted || !approx(res.ObjectiveScore, 6.0) {
		t.Fatalf("expected recovery to score persisted answers, got %s %v", res.Status, res.ObjectiveScore)
	}
}

func TestSubmitRequiresOwner(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 0)
	attempt := env.start(t)

	other := domain.Caller{UserID: "u2", Role: domain.RoleLearner}
	if _, err := env.attempts.SubmitAttempt(ctx, other, attempt.ID, nil); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := env.attempts.SubmitAttempt(ctx, learner, "missing", nil); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConcurrentGradingRequestsDebitOnce(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 1000)
	attempt := env.completed(t)

	var granted, already atomic.Int32
	var g errgroup.Group
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			_, err := env.attempts.RequestGrading(ctx, learner, attempt.ID)
			switch {
			case err == nil:
				granted.Add(1)
			case errors.Is(err, domain.ErrAlreadyRequested):
				already.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("request grading: %v", err)
	}
	if granted.Load() != 1 || already.Load() != 1 {
		t.Fatalf("expected one grant and one AlreadyRequested, got %d/%d", granted.Load(), already.Load())
	}
	if balance, _ := env.ledger.Balance(ctx, "u1"); balance != 900 {
		t.Fatalf("expected a single debit, balance %d", balance)
	}
}

func TestGradingRequestInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 40)
	attempt := env.completed(t)

	req, err := env.attempts.RequestGrading(ctx, learner, attempt.ID)
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if req.Outcome != domain.GradingDeniedInsufficientBalance {
		t.Fatalf("expected denied outcome, got %+v", req)
	}
	if balance, _ := env.ledger.Balance(ctx, "u1"); balance != 40 {
		t.Fatalf("expected unchanged balance, got %d", balance)
	}
	stored, _ := env.store.Get(ctx, attempt.ID)
	if stored.Status != domain.StatusCompleted || stored.GradingRequest != nil {
		t.Fatalf("expected attempt untouched, got %s %+v", stored.Status, stored.GradingRequest)
	}

	// After a top-up the learner may try again.
	if _, err := env.ledger.Credit(ctx, "u1", 100); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := env.attempts.RequestGrading(ctx, learner, attempt.ID); err != nil {
		t.Fatalf("retry after top-up: %v", err)
	}
}

func TestGradingRequestLedgerUnavailable(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 500)
	attempt := env.completed(t)

	flaky := &flakyLedger{PointsLedger: env.ledger, failures: 1}
	service := app.NewAttemptService(env.store, env.quizzes, flaky, env.drafts)

	if _, err := service.RequestGrading(ctx, learner, attempt.ID); !errors.Is(err, domain.ErrLedgerUnavailable) {
		t.Fatalf("expected ErrLedgerUnavailable, got %v", err)
	}
	stored, _ := env.store.Get(ctx, attempt.ID)
	if stored.Status != domain.StatusCompleted {
		t.Fatalf("expected COMPLETED after ledger failure, got %s", stored.Status)
	}
	if _, err := service.RequestGrading(ctx, learner, attempt.ID); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if balance, _ := env.ledger.Balance(ctx, "u1"); balance != 400 {
		t.Fatalf("expected one debit, balance %d", balance)
	}
}

func TestGradingRequestPreconditions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 500)

	started := env.start(t)
	if _, err := env.attempts.RequestGrading(ctx, learner, started.ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState before submit, got %v", err)
	}

	objectiveOnly, err := env.attempts.StartAttempt(ctx, learner, "objective")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := env.attempts.SubmitAttempt(ctx, learner, objectiveOnly.ID, domain.Answers{"q1": "a"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.attempts.RequestGrading(ctx, learner, objectiveOnly.ID); !errors.Is(err, domain.ErrNothingToGrade) {
		t.Fatalf("expected ErrNothingToGrade, got %v", err)
	}
	if balance, _ := env.ledger.Balance(ctx, "u1"); balance != 500 {
		t.Fatalf("ledger must not be touched, balance %d", balance)
	}
}

func TestGetResultBeforeSubmit(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 0)
	attempt := env.start(t)

	res, err := env.attempts.GetResult(ctx, learner, attempt.ID)
	if err != nil {
		t.Fatalf("get result: %v", err)
	}
	if res.FinalScore != nil || len(res.Questions) != 0 {
		t.Fatalf("expected no authoritative score before completion, got %+v", res)
	}
	if _, err := env.attempts.GetResult(ctx, admin, attempt.ID); err != nil {
		t.Fatalf("admin get result: %v", err)
	}
	if _, err := env.attempts.GetResult(ctx, domain.Caller{UserID: "u2"}, attempt.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestLateSubmissionIsFlagged(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 0)
	attempt := env.start(t)

	env.now = env.now.Add(45 * time.Minute)
	res, err := env.attempts.SubmitAttempt(ctx, learner, attempt.ID, threeOfFourCorrect())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.Late || res.Status != domain.StatusCompleted {
		t.Fatalf("expected late but accepted submission, got %+v", res)
	}
}

type testEnv struct {
	now        time.Time
	store      *countingStore
	quizzes    *memory.QuizRepository
	ledger     *memory.PointsLedger
	drafts     *memory.DraftStore
	attempts   *app.AttemptService
	settlement *app.SettlementService
}

func newTestEnv(t *testing.T, balance int64) *testEnv {
	t.Helper()
	env := &testEnv{
		now:     time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC),
		store:   &countingStore{AttemptStore: memory.NewAttemptStore()},
		quizzes: memory.NewQuizRepository(memory.NewStaticQuizLoader(testQuizzes()), time.Minute),
		ledger:  memory.NewPointsLedger(map[string]int64{"u1": balance}),
		drafts:  memory.NewDraftStore(),
	}
	var seq atomic.Int64
	opts := []app.Option{
		app.WithClock(func() time.Time { return env.now }),
		app.WithIDGenerator(func() string { return fmt.Sprintf("attempt-%d", seq.Add(1)) }),
	}
	env.attempts = app.NewAttemptService(env.store, env.quizzes, env.ledger, env.drafts, opts...)
	env.settlement = app.NewSettlementService(env.store, env.quizzes, opts...)
	return env
}

func (e *testEnv) start(t *testing.T) domain.Attempt {
	t.Helper()
	attempt, err := e.attempts.StartAttempt(context.Background(), learner, "quiz-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return attempt
}

func (e *testEnv) completed(t *testing.T) domain.Attempt {
	t.Helper()
	attempt := e.start(t)
	if _, err := e.attempts.SubmitAttempt(context.Background(), learner, attempt.ID, threeOfFourCorrect()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	return attempt
}

func (e *testEnv) requested(t *testing.T) domain.Attempt {
	t.Helper()
	attempt := e.completed(t)
	if _, err := e.attempts.RequestGrading(context.Background(), learner, attempt.ID); err != nil {
		t.Fatalf("request grading: %v", err)
	}
	return attempt
}

// countingStore counts successful SUBMITTING->COMPLETED writes.
type countingStore struct {
	*memory.AttemptStore
	scoreWrites atomic.Int32
}

func (s *countingStore) CompareAndSwapStatus(ctx context.Context, id string, expected, next domain.Status, mutate func(*domain.Attempt)) (domain.Attempt, error) {
	a, err := s.AttemptStore.CompareAndSwapStatus(ctx, id, expected, next, mutate)
	if err == nil && next == domain.StatusCompleted {
		s.scoreWrites.Add(1)
	}
	return a, err
}

type flakyLedger struct {
	app.PointsLedger
	failures int
}

func (l *flakyLedger) DebitIfSufficient(ctx context.Context, debit domain.Debit) (domain.DebitResult, error) {
	if l.failures > 0 {
		l.failures--
		return domain.DebitResult{}, errors.New("connection reset")
	}
	return l.PointsLedger.DebitIfSufficient(ctx, debit)
}

func threeOfFourCorrect() domain.Answers {
	return domain.Answers{
		"q1": "a",
		"q2": "b",
		"q3": "true",
		"q4": "a", // wrong
		"e1": "Plants convert light into chemical energy.",
	}
}

func testQuizzes() map[string]domain.QuizSnapshot {
	return map[string]domain.QuizSnapshot{
		"quiz-1": {
			ID:              "quiz-1",
			DurationMinutes: 30,
			Questions: []domain.Question{
				{ID: "q1", Type: domain.QuestionMultipleChoice, MaxScore: 1, CorrectOptionID: "a"},
				{ID: "q2", Type: domain.QuestionMultipleChoice, MaxScore: 1, CorrectOptionID: "b"},
				{ID: "q3", Type: domain.QuestionTrueFalse, MaxScore: 1, CorrectOptionID: "true"},
				{ID: "q4", Type: domain.QuestionMultipleChoice, MaxScore: 1, CorrectOptionID: "c"},
				{ID: "e1", Type: domain.QuestionEssay, MaxScore: 10},
			},
		},
		"objective": {
			ID:              "objective",
			DurationMinutes: 5,
			Questions: []domain.Question{
				{ID: "q1", Type: domain.QuestionMultipleChoice, MaxScore: 1, CorrectOptionID: "a"},
			},
		},
		"empty": {ID: "empty", DurationMinutes: 5},
	}
}

func approx(got, want float64) bool {
	return math.Abs(got-want) < 1e-6
}
