package app

import (
	"context"
	"errors"
	"fmt"

	"assessment-service/internal/domain"
	"go.uber.org/zap"
)

// AttemptService drives an attempt from start through submission to a paid
// grading request. Every transition goes through the store's status guard, so
// the service keeps no locks of its own.
type AttemptService struct {
	attempts AttemptStore
	quizzes  SnapshotProvider
	ledger   PointsLedger
	drafts   DraftStore
	options
}

func NewAttemptService(attempts AttemptStore, quizzes SnapshotProvider, ledger PointsLedger, drafts DraftStore, opts ...Option) *AttemptService {
	return &AttemptService{
		attempts: attempts,
		quizzes:  quizzes,
		ledger:   ledger,
		drafts:   drafts,
		options:  newOptions(opts),
	}
}

// StartAttempt creates a STARTED attempt whose deadline is now plus the quiz duration.
func (s *AttemptService) StartAttempt(ctx context.Context, caller domain.Caller, quizID string) (domain.Attempt, error) {
	if caller.UserID == "" {
		return domain.Attempt{}, domain.ErrForbidden
	}
	quiz, err := loadSnapshot(ctx, s.quizzes, quizID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if err := s.engine.Validate(quiz); err != nil {
		return domain.Attempt{}, err
	}

	now := s.now()
	attempt := domain.Attempt{
		ID:        s.newID(),
		QuizID:    quizID,
		LearnerID: caller.UserID,
		Status:    domain.StatusStarted,
		StartedAt: now,
		Deadline:  now.Add(quiz.Duration()),
		Answers:   domain.Answers{},
	}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		return domain.Attempt{}, fmt.Errorf("create attempt: %w", err)
	}

	s.metrics.AttemptStarted()
	s.log.Info("attempt started",
		zap.String("attempt_id", attempt.ID),
		zap.String("quiz_id", quizID),
		zap.String("learner_id", caller.UserID),
		zap.Time("deadline", attempt.Deadline))
	s.publish(ctx, domain.EventAttemptStarted, attempt)
	return attempt, nil
}

// SaveAnswer records a draft answer while the attempt is still STARTED.
func (s *AttemptService) SaveAnswer(ctx context.Context, caller domain.Caller, attemptID, questionID, value string) error {
	attempt, err := s.owned(ctx, caller, attemptID)
	if err != nil {
		return err
	}
	if attempt.Status != domain.StatusStarted {
		return fmt.Errorf("%w: attempt is %s", domain.ErrInvalidState, attempt.Status)
	}
	quiz, err := loadSnapshot(ctx, s.quizzes, attempt.QuizID)
	if err != nil {
		return err
	}
	if _, ok := quiz.Question(questionID); !ok {
		return fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, questionID)
	}
	return s.drafts.SaveAnswer(ctx, attemptID, questionID, value)
}

// SubmitAttempt locks in answers and scores the attempt exactly once. Manual
// submits and timer-driven auto-submits race on the STARTED->SUBMITTING guard;
// whichever arrives first decides the answers, and every caller gets the same
// result back. A nil answers map submits the saved draft.
func (s *AttemptService) SubmitAttempt(ctx context.Context, caller domain.Caller, attemptID string, answers domain.Answers) (domain.Result, error) {
	attempt, err := s.owned(ctx, caller, attemptID)
	if err != nil {
		return domain.Result{}, err
	}
	quiz, err := loadSnapshot(ctx, s.quizzes, attempt.QuizID)
	if err != nil {
		return domain.Result{}, err
	}

	if attempt.Status == domain.StatusStarted {
		merged, err := s.collectAnswers(ctx, attempt.ID, answers, quiz)
		if err != nil {
			return domain.Result{}, err
		}
		submittedAt := s.now()
		locked, err := s.attempts.CompareAndSwapStatus(ctx, attempt.ID, domain.StatusStarted, domain.StatusSubmitting, func(a *domain.Attempt) {
			a.Answers = merged
			a.SubmittedAt = &submittedAt
		})
		switch {
		case err == nil:
			attempt = locked
		case errors.Is(err, domain.ErrStatusConflict):
			s.log.Debug("submit lost race", zap.String("attempt_id", attempt.ID))
			if attempt, err = s.attempts.Get(ctx, attempt.ID); err != nil {
				return domain.Result{}, err
			}
			if attempt.Status.Scored() {
				s.metrics.Submission("duplicate")
			}
		default:
			return domain.Result{}, fmt.Errorf("lock attempt: %w", err)
		}
	} else {
		s.metrics.Submission("duplicate")
	}

	if attempt.Status == domain.StatusSubmitting {
		if attempt, err = s.complete(ctx, attempt, quiz); err != nil {
			return domain.Result{}, err
		}
	}
	return project(s.engine, quiz, attempt), nil
}

// complete scores a SUBMITTING attempt from its persisted answers and moves it
// to COMPLETED. Scoring is deterministic, so a caller recovering an attempt left
// in SUBMITTING computes the same score the original submitter would have.
func (s *AttemptService) complete(ctx context.Context, attempt domain.Attempt, quiz domain.QuizSnapshot) (domain.Attempt, error) {
	outcome := s.engine.Score(quiz, attempt.Answers)
	done, err := s.attempts.CompareAndSwapStatus(ctx, attempt.ID, domain.StatusSubmitting, domain.StatusCompleted, func(a *domain.Attempt) {
		a.ObjectiveScore = outcome.ObjectiveScore
		a.FinalScore = outcome.ObjectiveScore
		a.PendingEssays = outcome.PendingEssays
	})
	if errors.Is(err, domain.ErrStatusConflict) {
		s.metrics.Submission("duplicate")
		return s.attempts.Get(ctx, attempt.ID)
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("complete attempt: %w", err)
	}

	if err := s.drafts.Clear(ctx, done.ID); err != nil {
		s.log.Warn("clear draft failed", zap.String("attempt_id", done.ID), zap.Error(err))
	}
	s.metrics.Submission("scored")
	s.log.Info("attempt completed",
		zap.String("attempt_id", done.ID),
		zap.Float64("objective_score", done.ObjectiveScore),
		zap.Int("pending_essays", len(done.PendingEssays)),
		zap.Bool("late", done.Late()))
	s.publish(ctx, domain.EventAttemptSubmitted, done)
	return done, nil
}

// RequestGrading spends the learner's points on manual grading of their essays.
// The debit carries the attempt id as its reference, so two racing requests
// charge the learner once: the ledger reports the second as a duplicate and the
// status guard lets only one of them move the attempt to GRADING_REQUESTED.
func (s *AttemptService) RequestGrading(ctx context.Context, caller domain.Caller, attemptID string) (domain.GradingRequest, error) {
	attempt, err := s.owned(ctx, caller, attemptID)
	if err != nil {
		return domain.GradingRequest{}, err
	}
	switch attempt.Status {
	case domain.StatusGradingRequested, domain.StatusGraded:
		s.metrics.GradingRequest("already_requested")
		return domain.GradingRequest{}, domain.ErrAlreadyRequested
	case domain.StatusCompleted:
	default:
		return domain.GradingRequest{}, fmt.Errorf("%w: attempt is %s", domain.ErrInvalidState, attempt.Status)
	}
	if len(attempt.PendingEssays) == 0 {
		return domain.GradingRequest{}, domain.ErrNothingToGrade
	}

	request := domain.GradingRequest{AttemptID: attempt.ID, Cost: s.cost, RequestedAt: s.now()}
	debit, err := s.ledger.DebitIfSufficient(ctx, domain.Debit{
		UserID:    attempt.LearnerID,
		Amount:    s.cost,
		Reference: gradingReference(attempt.ID),
	})
	if err != nil {
		s.metrics.GradingRequest("ledger_unavailable")
		s.log.Warn("points ledger failed", zap.String("attempt_id", attempt.ID), zap.Error(err))
		return domain.GradingRequest{}, fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}
	if !debit.Granted {
		s.metrics.GradingRequest("denied")
		s.log.Debug("grading request denied",
			zap.String("attempt_id", attempt.ID),
			zap.Int64("balance", debit.Balance),
			zap.Int64("cost", s.cost))
		request.Outcome = domain.GradingDeniedInsufficientBalance
		return request, domain.ErrInsufficientBalance
	}

	request.Outcome = domain.GradingGranted
	updated, err := s.attempts.CompareAndSwapStatus(ctx, attempt.ID, domain.StatusCompleted, domain.StatusGradingRequested, func(a *domain.Attempt) {
		recorded := request
		a.GradingRequest = &recorded
	})
	if errors.Is(err, domain.ErrStatusConflict) {
		s.metrics.GradingRequest("already_requested")
		return domain.GradingRequest{}, domain.ErrAlreadyRequested
	}
	if err != nil {
		// The debit is recorded under the attempt reference; a retry replays it
		// as a duplicate and finishes this transition without charging again.
		return domain.GradingRequest{}, fmt.Errorf("record grading request: %w", err)
	}

	s.metrics.GradingRequest("granted")
	s.log.Info("grading requested",
		zap.String("attempt_id", updated.ID),
		zap.Int64("cost", s.cost),
		zap.Int64("balance", debit.Balance),
		zap.Bool("replayed_debit", debit.Duplicate))
	s.publish(ctx, domain.EventGradingRequested, updated)
	return request, nil
}

// GetResult returns the current projection of an attempt. Owners and admins may read it in any state.
func (s *AttemptService) GetResult(ctx context.Context, caller domain.Caller, attemptID string) (domain.Result, error) {
	attempt, err := s.attempts.Get(ctx, attemptID)
	if err != nil {
		return domain.Result{}, err
	}
	if attempt.LearnerID != caller.UserID && !caller.IsAdmin() {
		return domain.Result{}, domain.ErrForbidden
	}
	quiz, err := loadSnapshot(ctx, s.quizzes, attempt.QuizID)
	if err != nil {
		return domain.Result{}, err
	}
	return project(s.engine, quiz, attempt), nil
}

func (s *AttemptService) owned(ctx context.Context, caller domain.Caller, attemptID string) (domain.Attempt, error) {
	attempt, err := s.attempts.Get(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if caller.UserID == "" || attempt.LearnerID != caller.UserID {
		return domain.Attempt{}, domain.ErrForbidden
	}
	return attempt, nil
}

// collectAnswers merges the saved draft with explicit answers (explicit wins)
// and drops keys that are not questions of the quiz.
func (s *AttemptService) collectAnswers(ctx context.Context, attemptID string, explicit domain.Answers, quiz domain.QuizSnapshot) (domain.Answers, error) {
	draft, err := s.drafts.Answers(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("load draft: %w", err)
	}
	merged := make(domain.Answers, len(quiz.Questions))
	for _, source := range []domain.Answers{draft, explicit} {
		for questionID, value := range source {
			if _, ok := quiz.Question(questionID); ok {
				merged[questionID] = value
			}
		}
	}
	return merged, nil
}

func gradingReference(attemptID string) string {
	return "grading:" + attemptID
}
