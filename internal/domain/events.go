package domain

import "time"

const (
	EventAttemptStarted   = "attempt.started"
	EventAttemptSubmitted = "attempt.submitted"
	EventGradingRequested = "grading.requested"
	EventAttemptGraded    = "attempt.graded"
)

// Event is published after a successful attempt transition.
type Event struct {
	Type       string    `json:"type"`
	AttemptID  string    `json:"attemptId"`
	QuizID     string    `json:"quizId"`
	LearnerID  string    `json:"learnerId"`
	Status     Status    `json:"status"`
	Score      float64   `json:"score"`
	OccurredAt time.Time `json:"occurredAt"`
}

// NewEvent captures the attempt fields every event carries.
func NewEvent(typ string, a Attempt, at time.Time) Event {
	return Event{
		Type:       typ,
		AttemptID:  a.ID,
		QuizID:     a.QuizID,
		LearnerID:  a.LearnerID,
		Status:     a.Status,
		Score:      a.FinalScore,
		OccurredAt: at,
	}
}
