package domain

import (
	"strings"
	"time"
)

// Role distinguishes learners from administrators.
type Role string

const (
	RoleLearner Role = "learner"
	RoleAdmin   Role = "admin"
)

// Caller is the identity every core operation acts on behalf of.
type Caller struct {
	UserID string
	Role   Role
}

func (c Caller) IsAdmin() bool { return c.Role == RoleAdmin }

// QuestionType is either objective (single correct option) or essay.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionEssay          QuestionType = "essay"
)

// IsObjective reports whether the question is scored automatically.
func (t QuestionType) IsObjective() bool {
	return t == QuestionMultipleChoice || t == QuestionTrueFalse
}

// Question is the grading-relevant view of one question in a quiz snapshot.
type Question struct {
	ID              string       `json:"id"`
	Type            QuestionType `json:"type"`
	MaxScore        float64      `json:"maxScore"`
	CorrectOptionID string       `json:"correctOptionId,omitempty"`
}

// QuizSnapshot is immutable quiz content as supplied by the snapshot provider.
type QuizSnapshot struct {
	ID              string     `json:"id"`
	DurationMinutes int        `json:"durationMinutes"`
	Questions       []Question `json:"questions"`
}

// Question returns the question with the given id.
func (q QuizSnapshot) Question(id string) (Question, bool) {
	for _, question := range q.Questions {
		if question.ID == id {
			return question, true
		}
	}
	return Question{}, false
}

// Duration is the time a learner has from start to deadline.
func (q QuizSnapshot) Duration() time.Duration {
	return time.Duration(q.DurationMinutes) * time.Minute
}

// Status is the attempt lifecycle state.
type Status string

const (
	StatusStarted          Status = "STARTED"
	StatusSubmitting       Status = "SUBMITTING"
	StatusCompleted        Status = "COMPLETED"
	StatusGradingRequested Status = "GRADING_REQUESTED"
	StatusGraded           Status = "GRADED"
)

// Submitted reports whether answers have been locked in.
func (s Status) Submitted() bool {
	return s != StatusStarted
}

// Scored reports whether the objective score is authoritative.
func (s Status) Scored() bool {
	return s == StatusCompleted || s == StatusGradingRequested || s == StatusGraded
}

// Answers maps question id to the submitted value: an option id for objective
// questions, free text for essays.
type Answers map[string]string

// Answered reports whether a non-blank value was submitted for the question.
func (a Answers) Answered(questionID string) bool {
	return strings.TrimSpace(a[questionID]) != ""
}

// Clone returns an independent copy.
func (a Answers) Clone() Answers {
	out := make(Answers, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// GradingOutcome records how a grading request was settled against the ledger.
type GradingOutcome string

const (
	GradingGranted                   GradingOutcome = "GRANTED"
	GradingDeniedInsufficientBalance GradingOutcome = "DENIED_INSUFFICIENT_BALANCE"
)

// GradingRequest ties an attempt to its points debit.
type GradingRequest struct {
	AttemptID   string         `json:"attemptId"`
	Cost        int64          `json:"cost"`
	Outcome     GradingOutcome `json:"outcome"`
	RequestedAt time.Time      `json:"requestedAt"`
}

// EssayGrade is an administrator's score for one essay answer.
type EssayGrade struct {
	QuestionID string  `json:"questionId"`
	Score      float64 `json:"score"`
	Feedback   string  `json:"feedback,omitempty"`
}

// Attempt is one learner's run at one quiz.
type Attempt struct {
	ID        string `json:"id"`
	QuizID    string `json:"quizId"`
	LearnerID string `json:"learnerId"`
	Status    Status `json:"status"`

	StartedAt   time.Time  `json:"startedAt"`
	Deadline    time.Time  `json:"deadline"`
	SubmittedAt *time.Time `json:"submittedAt,omitempty"`
	GradedAt    *time.Time `json:"gradedAt,omitempty"`
	GradedBy    string     `json:"gradedBy,omitempty"`

	Answers       Answers  `json:"answers"`
	PendingEssays []string `json:"pendingEssays,omitempty"`

	ObjectiveScore float64  `json:"objectiveScore"`
	EssayScore     *float64 `json:"essayScore,omitempty"`
	FinalScore     float64  `json:"finalScore"`

	GradingRequest *GradingRequest `json:"gradingRequest,omitempty"`
	EssayGrades    []EssayGrade    `json:"essayGrades,omitempty"`
}

// Late reports whether the attempt was submitted after its advisory deadline.
func (a Attempt) Late() bool {
	return a.SubmittedAt != nil && a.SubmittedAt.After(a.Deadline)
}

// QuestionResult is the derived per-question outcome. Correct is nil only for
// essays awaiting grading.
type QuestionResult struct {
	QuestionID string       `json:"questionId"`
	Type       QuestionType `json:"type"`
	Answered   bool         `json:"answered"`
	Correct    *bool        `json:"correct"`
	Awarded    float64      `json:"awarded"`
	MaxScore   float64      `json:"maxScore"`
	Feedback   string       `json:"feedback,omitempty"`
}

// Result is the read-only projection of an attempt returned to callers.
type Result struct {
	AttemptID      string           `json:"attemptId"`
	QuizID         string           `json:"quizId"`
	LearnerID      string           `json:"learnerId"`
	Status         Status           `json:"status"`
	Deadline       time.Time        `json:"deadline"`
	SubmittedAt    *time.Time       `json:"submittedAt,omitempty"`
	GradedAt       *time.Time       `json:"gradedAt,omitempty"`
	Late           bool             `json:"late"`
	ObjectiveScore float64          `json:"objectiveScore"`
	EssayScore     *float64         `json:"essayScore,omitempty"`
	FinalScore     *float64         `json:"finalScore,omitempty"` // nil until the attempt is scored
	PendingEssays  []string         `json:"pendingEssays,omitempty"`
	Questions      []QuestionResult `json:"questions,omitempty"`
}
