package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an attempt does not exist.
	ErrNotFound = errors.New("attempt not found")
	// ErrQuizNotFound indicates the quiz snapshot could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuizUnavailable indicates the snapshot provider failed for a reason other than a missing quiz.
	ErrQuizUnavailable = errors.New("quiz unavailable")
	// ErrQuestionNotFound indicates an answer targets a question the quiz does not contain.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrForbidden is returned when the caller does not own the attempt or lacks the admin role.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidState means the operation is not valid for the attempt's current status.
	ErrInvalidState = errors.New("invalid attempt state")
	// ErrStatusConflict is returned by attempt stores when a compare-and-swap guard fails.
	// It wraps ErrInvalidState so callers may match either.
	ErrStatusConflict = fmt.Errorf("attempt status changed concurrently: %w", ErrInvalidState)
	// ErrInvalidQuiz rejects quizzes that cannot be attempted (no questions, bad question data).
	ErrInvalidQuiz = errors.New("invalid quiz")
	// ErrIncompleteGradeSet is returned when submitted grades do not match the pending essay set exactly.
	ErrIncompleteGradeSet = errors.New("grade set does not match pending essay questions")
	// ErrScoreOutOfRange is returned when an awarded essay score falls outside [0, maxScore].
	ErrScoreOutOfRange = errors.New("essay score out of range")
	// ErrInsufficientBalance is an expected outcome of a grading request the learner cannot afford.
	ErrInsufficientBalance = errors.New("insufficient points balance")
	// ErrAlreadyRequested is returned when grading was already requested for the attempt.
	ErrAlreadyRequested = errors.New("grading already requested")
	// ErrNothingToGrade is returned when a grading request targets an attempt without ungraded essays.
	ErrNothingToGrade = fmt.Errorf("no essay questions awaiting grading: %w", ErrInvalidState)
	// ErrLedgerUnavailable wraps transient points ledger failures. It is the only retryable error.
	ErrLedgerUnavailable = errors.New("points ledger unavailable")
)
