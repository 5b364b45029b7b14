package app

import (
	"context"

	"assessment-service/internal/domain"
)

// SnapshotProvider loads immutable quiz content (from cache/backing store).
type SnapshotProvider interface {
	GetSnapshot(ctx context.Context, quizID string) (domain.QuizSnapshot, error)
}

// AttemptStore persists attempts. CompareAndSwapStatus must apply mutate and the
// status change in a single guarded write: when the stored status is not
// expected it returns domain.ErrStatusConflict and writes nothing.
type AttemptStore interface {
	Create(ctx context.Context, attempt domain.Attempt) error
	Get(ctx context.Context, id string) (domain.Attempt, error)
	CompareAndSwapStatus(ctx context.Context, id string, expected, next domain.Status, mutate func(*domain.Attempt)) (domain.Attempt, error)
	ListByStatus(ctx context.Context, status domain.Status) ([]domain.Attempt, error)
}

// PointsLedger holds learners' spendable balances. DebitIfSufficient must check
// and debit as one atomic operation and leave the balance untouched on denial.
type PointsLedger interface {
	DebitIfSufficient(ctx context.Context, debit domain.Debit) (domain.DebitResult, error)
}

// DraftStore keeps the last-known answers of in-progress attempts so a
// timer-driven submit can send whatever the learner had entered.
type DraftStore interface {
	SaveAnswer(ctx context.Context, attemptID, questionID, value string) error
	Answers(ctx context.Context, attemptID string) (domain.Answers, error)
	Clear(ctx context.Context, attemptID string) error
}

// EventPublisher fans attempt transitions out to other services.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}
