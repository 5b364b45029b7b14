package scoring

import (
	"errors"
	"math"
	"testing"

	"assessment-service/internal/domain"
)

func TestScoreMixedQuiz(t *testing.T) {
	engine := NewEngine()
	out := engine.Score(mixedQuiz(), domain.Answers{
		"q1": "a", "q2": "a", "q3": "true", "q4": "b", // q4 wrong
		"e1": "An essay about photosynthesis.",
	})

	if !approx(out.ObjectiveScore, 6.0) {
		t.Fatalf("expected objective score 6.0, got %v", out.ObjectiveScore)
	}
	if len(out.PendingEssays) != 1 || out.PendingEssays[0] != "e1" {
		t.Fatalf("expected e1 pending, got %v", out.PendingEssays)
	}
	for _, res := range out.Questions {
		switch res.QuestionID {
		case "e1":
			if res.Correct != nil {
				t.Fatalf("expected ungraded essay to have nil correctness, got %v", *res.Correct)
			}
		case "q4":
			if res.Correct == nil || *res.Correct {
				t.Fatalf("expected q4 incorrect, got %+v", res)
			}
		default:
			if res.Correct == nil || !*res.Correct || !approx(res.Awarded, 2) {
				t.Fatalf("expected %s correct with 2 points, got %+v", res.QuestionID, res)
			}
		}
	}
}

func TestScoreUnansweredIsIncorrect(t *testing.T) {
	out := NewEngine().Score(mixedQuiz(), nil)
	if out.ObjectiveScore != 0 {
		t.Fatalf("expected zero score, got %v", out.ObjectiveScore)
	}
	if len(out.PendingEssays) != 0 {
		t.Fatalf("blank essay should not be pending, got %v", out.PendingEssays)
	}
	for _, res := range out.Questions {
		if res.Answered || res.Correct == nil || *res.Correct {
			t.Fatalf("expected unanswered incorrect, got %+v", res)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		quiz domain.QuizSnapshot
		ok   bool
	}{
		{name: "valid", quiz: mixedQuiz(), ok: true},
		{name: "no questions", quiz: domain.QuizSnapshot{ID: "empty"}},
		{name: "objective without key", quiz: domain.QuizSnapshot{ID: "x", Questions: []domain.Question{{ID: "q1", Type: domain.QuestionMultipleChoice}}}},
		{name: "essay without max", quiz: domain.QuizSnapshot{ID: "x", Questions: []domain.Question{{ID: "e1", Type: domain.QuestionEssay}}}},
		{name: "duplicate ids", quiz: domain.QuizSnapshot{ID: "x", Questions: []domain.Question{
			{ID: "q1", Type: domain.QuestionTrueFalse, CorrectOptionID: "true"},
			{ID: "q1", Type: domain.QuestionTrueFalse, CorrectOptionID: "false"},
		}}},
		{name: "unknown type", quiz: domain.QuizSnapshot{ID: "x", Questions: []domain.Question{{ID: "q1", Type: "matching"}}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := NewEngine().Validate(tc.quiz)
			if tc.ok && err != nil {
				t.Fatalf("expected valid quiz, got %v", err)
			}
			if !tc.ok && !errors.Is(err, domain.ErrInvalidQuiz) {
				t.Fatalf("expected ErrInvalidQuiz, got %v", err)
			}
		})
	}
}

func TestEssayScore(t *testing.T) {
	engine := NewEngine()
	quiz := mixedQuiz()

	tests := []struct {
		name    string
		grades  []domain.EssayGrade
		want    float64
		wantErr error
	}{
		{name: "full set", grades: []domain.EssayGrade{{QuestionID: "e1", Score: 8}}, want: 1.6},
		{name: "zero", grades: []domain.EssayGrade{{QuestionID: "e1", Score: 0}}, want: 0},
		{name: "max", grades: []domain.EssayGrade{{QuestionID: "e1", Score: 10}}, want: 2},
		{name: "missing", grades: nil, wantErr: domain.ErrIncompleteGradeSet},
		{name: "extra", grades: []domain.EssayGrade{{QuestionID: "e1", Score: 1}, {QuestionID: "q1", Score: 1}}, wantErr: domain.ErrIncompleteGradeSet},
		{name: "wrong id", grades: []domain.EssayGrade{{QuestionID: "q1", Score: 1}}, wantErr: domain.ErrIncompleteGradeSet},
		{name: "above max", grades: []domain.EssayGrade{{QuestionID: "e1", Score: 12}}, wantErr: domain.ErrScoreOutOfRange},
		{name: "negative", grades: []domain.EssayGrade{{QuestionID: "e1", Score: -1}}, wantErr: domain.ErrScoreOutOfRange},
		{name: "nan", grades: []domain.EssayGrade{{QuestionID: "e1", Score: math.NaN()}}, wantErr: domain.ErrScoreOutOfRange},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := engine.EssayScore(quiz, []string{"e1"}, tc.grades)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("essay score: %v", err)
			}
			if !approx(got, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestDuplicateGradeRejected(t *testing.T) {
	quiz := domain.QuizSnapshot{ID: "two-essays", Questions: []domain.Question{
		{ID: "e1", Type: domain.QuestionEssay, MaxScore: 5},
		{ID: "e2", Type: domain.QuestionEssay, MaxScore: 5},
	}}
	_, err := NewEngine().EssayScore(quiz, []string{"e1", "e2"}, []domain.EssayGrade{
		{QuestionID: "e1", Score: 1},
		{QuestionID: "e1", Score: 2},
	})
	if !errors.Is(err, domain.ErrIncompleteGradeSet) {
		t.Fatalf("expected ErrIncompleteGradeSet, got %v", err)
	}
}

func TestPointsWeightedNormalization(t *testing.T) {
	quiz := domain.QuizSnapshot{ID: "weighted", Questions: []domain.Question{
		{ID: "q1", Type: domain.QuestionMultipleChoice, MaxScore: 1, CorrectOptionID: "a"},
		{ID: "q2", Type: domain.QuestionMultipleChoice, MaxScore: 1, CorrectOptionID: "a"},
		{ID: "e1", Type: domain.QuestionEssay, MaxScore: 8},
	}}
	engine := NewEngine(WithNormalization(PointsWeighted))

	out := engine.Score(quiz, domain.Answers{"q1": "a", "q2": "b", "e1": "text"})
	if !approx(out.ObjectiveScore, 1.0) {
		t.Fatalf("expected 1.0, got %v", out.ObjectiveScore)
	}
	essay, err := engine.EssayScore(quiz, out.PendingEssays, []domain.EssayGrade{{QuestionID: "e1", Score: 8}})
	if err != nil {
		t.Fatalf("essay score: %v", err)
	}
	if !approx(essay, 8.0) {
		t.Fatalf("expected 8.0, got %v", essay)
	}
	if final := engine.Final(out.ObjectiveScore, essay); !approx(final, 9.0) {
		t.Fatalf("expected final 9.0, got %v", final)
	}
}

func TestFinalNeverExceedsScale(t *testing.T) {
	engine := NewEngine(WithScale(100))
	if got := engine.Final(80, 40); got != 100 {
		t.Fatalf("expected clamp to 100, got %v", got)
	}
	if got := engine.Final(-1, 0); got != 0 {
		t.Fatalf("expected clamp to 0, got %v", got)
	}
}

func TestResultsFoldInGrades(t *testing.T) {
	engine := NewEngine()
	attempt := domain.Attempt{
		Answers:     domain.Answers{"q1": "a", "e1": "essay"},
		EssayGrades: []domain.EssayGrade{{QuestionID: "e1", Score: 5, Feedback: "solid"}},
	}
	for _, res := range engine.Results(mixedQuiz(), attempt) {
		if res.QuestionID != "e1" {
			continue
		}
		if res.Correct == nil || !*res.Correct || !approx(res.Awarded, 1.0) || res.Feedback != "solid" {
			t.Fatalf("unexpected graded essay result %+v", res)
		}
		return
	}
	t.Fatalf("essay result missing")
}

func TestParseNormalization(t *testing.T) {
	if n, err := ParseNormalization(""); err != nil || n != PerQuestion {
		t.Fatalf("expected default per_question, got %v %v", n, err)
	}
	if _, err := ParseNormalization("bogus"); err == nil {
		t.Fatalf("expected error for unknown normalization")
	}
}

func mixedQuiz() domain.QuizSnapshot {
	return domain.QuizSnapshot{
		ID:              "quiz-1",
		DurationMinutes: 30,
		Questions: []domain.Question{
			{ID: "q1", Type: domain.QuestionMultipleChoice, MaxScore: 1, CorrectOptionID: "a"},
			{ID: "q2", Type: domain.QuestionMultipleChoice, MaxScore: 1, CorrectOptionID: "a"},
			{ID: "q3", Type: domain.QuestionTrueFalse, MaxScore: 1, CorrectOptionID: "true"},
			{ID: "q4", Type: domain.QuestionMultipleChoice, MaxScore: 1, CorrectOptionID: "c"},
			{ID: "e1", Type: domain.QuestionEssay, MaxScore: 10},
		},
	}
}

func approx(got, want float64) bool {
	return math.Abs(got-want) < 1e-6
}
