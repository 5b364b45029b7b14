package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"assessment-service/internal/domain"
	"go.uber.org/zap"
)

// SettlementService lets administrators grade essays and finalize attempt scores.
type SettlementService struct {
	attempts AttemptStore
	quizzes  SnapshotProvider
	options
}

func NewSettlementService(attempts AttemptStore, quizzes SnapshotProvider, opts ...Option) *SettlementService {
	return &SettlementService{
		attempts: attempts,
		quizzes:  quizzes,
		options:  newOptions(opts),
	}
}

// ListPending returns every attempt awaiting essay grading, oldest request first.
func (s *SettlementService) ListPending(ctx context.Context, caller domain.Caller) ([]domain.Attempt, error) {
	if !caller.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	pending, err := s.attempts.ListByStatus(ctx, domain.StatusGradingRequested)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return requestedAt(pending[i]).Before(requestedAt(pending[j]))
	})
	return pending, nil
}

// SubmitEssayGrades applies a full batch of essay grades and settles the final
// score. The batch must cover exactly the attempt's pending essays and every
// score must lie within the question's range; otherwise nothing is written.
// The GRADING_REQUESTED->GRADED guard makes settlement happen once.
func (s *SettlementService) SubmitEssayGrades(ctx context.Context, caller domain.Caller, attemptID string, grades []domain.EssayGrade) (domain.Result, error) {
	if !caller.IsAdmin() {
		return domain.Result{}, domain.ErrForbidden
	}
	attempt, err := s.attempts.Get(ctx, attemptID)
	if err != nil {
		return domain.Result{}, err
	}
	if attempt.Status != domain.StatusGradingRequested {
		return domain.Result{}, fmt.Errorf("%w: attempt is %s", domain.ErrInvalidState, attempt.Status)
	}
	quiz, err := loadSnapshot(ctx, s.quizzes, attempt.QuizID)
	if err != nil {
		return domain.Result{}, err
	}

	essay, err := s.engine.EssayScore(quiz, attempt.PendingEssays, grades)
	if err != nil {
		s.metrics.Settlement("rejected")
		s.log.Debug("essay grades rejected", zap.String("attempt_id", attemptID), zap.Error(err))
		return domain.Result{}, err
	}

	gradedAt := s.now()
	recorded := append([]domain.EssayGrade(nil), grades...)
	graded, err := s.attempts.CompareAndSwapStatus(ctx, attemptID, domain.StatusGradingRequested, domain.StatusGraded, func(a *domain.Attempt) {
		a.EssayScore = &essay
		a.FinalScore = s.engine.Final(a.ObjectiveScore, essay)
		a.EssayGrades = recorded
		a.GradedAt = &gradedAt
		a.GradedBy = caller.UserID
	})
	if errors.Is(err, domain.ErrStatusConflict) {
		s.metrics.Settlement("rejected")
		return domain.Result{}, fmt.Errorf("%w: attempt already settled", domain.ErrInvalidState)
	}
	if err != nil {
		return domain.Result{}, fmt.Errorf("settle attempt: %w", err)
	}

	s.metrics.Settlement("graded")
	s.log.Info("attempt graded",
		zap.String("attempt_id", graded.ID),
		zap.String("graded_by", caller.UserID),
		zap.Float64("essay_score", essay),
		zap.Float64("final_score", graded.FinalScore))
	s.publish(ctx, domain.EventAttemptGraded, graded)
	return project(s.engine, quiz, graded), nil
}

func requestedAt(a domain.Attempt) time.Time {
	if a.GradingRequest != nil {
		return a.GradingRequest.RequestedAt
	}
	return a.StartedAt
}
