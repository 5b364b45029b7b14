package app

import (
	"context"
	"errors"
	"fmt"

	"assessment-service/internal/domain"
	"assessment-service/internal/scoring"
)

func loadSnapshot(ctx context.Context, quizzes SnapshotProvider, quizID string) (domain.QuizSnapshot, error) {
	quiz, err := quizzes.GetSnapshot(ctx, quizID)
	if errors.Is(err, domain.ErrQuizNotFound) {
		return domain.QuizSnapshot{}, err
	}
	if err != nil {
		return domain.QuizSnapshot{}, fmt.Errorf("%w: %s: %v", domain.ErrQuizUnavailable, quizID, err)
	}
	return quiz, nil
}

// project builds the caller-facing view. Scores are only reported once the
// attempt has been scored; before that FinalScore stays nil.
func project(engine *scoring.Engine, quiz domain.QuizSnapshot, a domain.Attempt) domain.Result {
	res := domain.Result{
		AttemptID:   a.ID,
		QuizID:      a.QuizID,
		LearnerID:   a.LearnerID,
		Status:      a.Status,
		Deadline:    a.Deadline,
		SubmittedAt: a.SubmittedAt,
		GradedAt:    a.GradedAt,
		Late:        a.Late(),
	}
	if !a.Status.Scored() {
		return res
	}
	final := a.FinalScore
	res.ObjectiveScore = a.ObjectiveScore
	res.EssayScore = a.EssayScore
	res.FinalScore = &final
	if a.Status != domain.StatusGraded {
		res.PendingEssays = append([]string(nil), a.PendingEssays...)
	}
	res.Questions = engine.Results(quiz, a)
	return res
}
