// Package scoring turns a quiz snapshot and a learner's answers into scores on a
// fixed grading scale. Everything here is pure and safe for concurrent use.
package scoring

import (
	"fmt"
	"math"

	"assessment-service/internal/domain"
)

// DefaultScale is the grade scale final scores are expressed on.
const DefaultScale = 10.0

// Normalization selects how each question's share of the scale is computed.
type Normalization string

const (
	// PerQuestion gives every question an equal share: scale / question count.
	PerQuestion Normalization = "per_question"
	// PointsWeighted shares the scale in proportion to each question's max score.
	PointsWeighted Normalization = "points_weighted"
)

// ParseNormalization maps a config value onto a Normalization, defaulting to PerQuestion.
func ParseNormalization(raw string) (Normalization, error) {
	switch Normalization(raw) {
	case "", PerQuestion:
		return PerQuestion, nil
	case PointsWeighted:
		return PointsWeighted, nil
	}
	return "", fmt.Errorf("unknown normalization %q", raw)
}

type Option func(*Engine)

func WithScale(scale float64) Option {
	return func(e *Engine) {
		if scale > 0 {
			e.scale = scale
		}
	}
}

func WithNormalization(n Normalization) Option {
	return func(e *Engine) { e.normalization = n }
}

// Engine scores attempts.
type Engine struct {
	scale         float64
	normalization Normalization
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{scale: DefaultScale, normalization: PerQuestion}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Scale returns the upper bound of every score the engine produces.
func (e *Engine) Scale() float64 { return e.scale }

// Outcome is the result of scoring a submission.
type Outcome struct {
	ObjectiveScore float64
	Questions      []domain.QuestionResult
	// PendingEssays lists answered essay questions that await manual grading.
	PendingEssays []string
}

// Validate rejects quizzes that cannot be scored.
func (e *Engine) Validate(quiz domain.QuizSnapshot) error {
	if len(quiz.Questions) == 0 {
		return fmt.Errorf("%w: quiz %s has no questions", domain.ErrInvalidQuiz, quiz.ID)
	}
	seen := make(map[string]struct{}, len(quiz.Questions))
	for _, q := range quiz.Questions {
		if q.ID == "" {
			return fmt.Errorf("%w: question without id", domain.ErrInvalidQuiz)
		}
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("%w: duplicate question %s", domain.ErrInvalidQuiz, q.ID)
		}
		seen[q.ID] = struct{}{}
		switch {
		case q.Type.IsObjective():
			if q.CorrectOptionID == "" {
				return fmt.Errorf("%w: question %s has no correct option", domain.ErrInvalidQuiz, q.ID)
			}
		case q.Type == domain.QuestionEssay:
			if q.MaxScore <= 0 {
				return fmt.Errorf("%w: essay %s needs a positive max score", domain.ErrInvalidQuiz, q.ID)
			}
		default:
			return fmt.Errorf("%w: question %s has unknown type %q", domain.ErrInvalidQuiz, q.ID, q.Type)
		}
	}
	return nil
}

// Score computes the objective score and per-question results. Unanswered
// objective questions count as incorrect. Unanswered essays earn nothing and are
// not queued for grading.
func (e *Engine) Score(quiz domain.QuizSnapshot, answers domain.Answers) Outcome {
	weights := e.weights(quiz)
	out := Outcome{Questions: make([]domain.QuestionResult, 0, len(quiz.Questions))}
	for _, q := range quiz.Questions {
		res := domain.QuestionResult{
			QuestionID: q.ID,
			Type:       q.Type,
			Answered:   answers.Answered(q.ID),
			MaxScore:   maxScore(q),
		}
		switch {
		case q.Type.IsObjective():
			correct := res.Answered && answers[q.ID] == q.CorrectOptionID
			res.Correct = &correct
			if correct {
				res.Awarded = weights[q.ID]
				out.ObjectiveScore += weights[q.ID]
			}
		case res.Answered:
			out.PendingEssays = append(out.PendingEssays, q.ID)
		default:
			incorrect := false
			res.Correct = &incorrect
		}
		out.Questions = append(out.Questions, res)
	}
	out.ObjectiveScore = e.clamp(out.ObjectiveScore)
	return out
}

// EssayScore validates a batch of grades against the pending essay set and
// returns the grades' combined contribution on the shared scale. The batch is
// accepted or rejected as a whole.
func (e *Engine) EssayScore(quiz domain.QuizSnapshot, pending []string, grades []domain.EssayGrade) (float64, error) {
	if len(grades) != len(pending) {
		return 0, fmt.Errorf("%w: expected %d grades, got %d", domain.ErrIncompleteGradeSet, len(pending), len(grades))
	}
	want := make(map[string]bool, len(pending))
	for _, id := range pending {
		want[id] = false
	}
	for _, g := range grades {
		used, ok := want[g.QuestionID]
		if !ok {
			return 0, fmt.Errorf("%w: question %s is not pending", domain.ErrIncompleteGradeSet, g.QuestionID)
		}
		if used {
			return 0, fmt.Errorf("%w: question %s graded twice", domain.ErrIncompleteGradeSet, g.QuestionID)
		}
		want[g.QuestionID] = true
	}

	weights := e.weights(quiz)
	total := 0.0
	for _, g := range grades {
		q, ok := quiz.Question(g.QuestionID)
		if !ok {
			return 0, fmt.Errorf("%w: question %s missing from quiz", domain.ErrIncompleteGradeSet, g.QuestionID)
		}
		if math.IsNaN(g.Score) || g.Score < 0 || g.Score > q.MaxScore {
			return 0, fmt.Errorf("%w: question %s scored %v, allowed 0..%v", domain.ErrScoreOutOfRange, g.QuestionID, g.Score, q.MaxScore)
		}
		total += g.Score / q.MaxScore * weights[q.ID]
	}
	return e.clamp(total), nil
}

// Results rebuilds the per-question view of an attempt, folding in settled essay grades.
func (e *Engine) Results(quiz domain.QuizSnapshot, attempt domain.Attempt) []domain.QuestionResult {
	results := e.Score(quiz, attempt.Answers).Questions
	if len(attempt.EssayGrades) == 0 {
		return results
	}
	weights := e.weights(quiz)
	grades := make(map[string]domain.EssayGrade, len(attempt.EssayGrades))
	for _, g := range attempt.EssayGrades {
		grades[g.QuestionID] = g
	}
	for i, res := range results {
		g, ok := grades[res.QuestionID]
		if !ok || res.MaxScore <= 0 {
			continue
		}
		earned := g.Score > 0
		results[i].Correct = &earned
		results[i].Awarded = round(g.Score / res.MaxScore * weights[res.QuestionID])
		results[i].Feedback = g.Feedback
	}
	return results
}

// Final combines the objective and essay components, never exceeding the scale.
func (e *Engine) Final(objective, essay float64) float64 {
	return e.clamp(objective + essay)
}

func (e *Engine) weights(quiz domain.QuizSnapshot) map[string]float64 {
	weights := make(map[string]float64, len(quiz.Questions))
	if len(quiz.Questions) == 0 {
		return weights
	}
	if e.normalization == PointsWeighted {
		sum := 0.0
		for _, q := range quiz.Questions {
			sum += maxScore(q)
		}
		for _, q := range quiz.Questions {
			weights[q.ID] = e.scale * maxScore(q) / sum
		}
		return weights
	}
	share := e.scale / float64(len(quiz.Questions))
	for _, q := range quiz.Questions {
		weights[q.ID] = share
	}
	return weights
}

func (e *Engine) clamp(v float64) float64 {
	v = round(v)
	if v < 0 {
		return 0
	}
	if v > e.scale {
		return e.scale
	}
	return v
}

// maxScore defaults objective questions without an explicit max score to one point.
func maxScore(q domain.Question) float64 {
	if q.MaxScore <= 0 {
		return 1
	}
	return q.MaxScore
}

func round(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
