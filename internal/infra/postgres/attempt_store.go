package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"assessment-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const attemptColumns = `id, quiz_id, learner_id, status, started_at, deadline, submitted_at, graded_at,
	graded_by, answers, pending_essays, objective_score, essay_score, final_score, grading_request, essay_grades`

// AttemptStore keeps attempts in the attempts table. Status transitions are
// guarded by the status column in the UPDATE's WHERE clause.
type AttemptStore struct {
	pool *pgxpool.Pool
}

func NewAttemptStore(pool *pgxpool.Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

func (s *AttemptStore) Create(ctx context.Context, attempt domain.Attempt) error {
	row, err := encodeAttempt(attempt)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO attempts (`+attemptColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb, $11::jsonb, $12, $13, $14, $15::jsonb, $16::jsonb)`,
		attempt.ID, attempt.QuizID, attempt.LearnerID, string(attempt.Status), attempt.StartedAt, attempt.Deadline,
		attempt.SubmittedAt, attempt.GradedAt, attempt.GradedBy, row.answers, row.pending, attempt.ObjectiveScore,
		attempt.EssayScore, attempt.FinalScore, row.request, row.grades)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

func (s *AttemptStore) Get(ctx context.Context, id string) (domain.Attempt, error) {
	attempt, err := scanAttempt(s.pool.QueryRow(ctx, `SELECT `+attemptColumns+` FROM attempts WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Attempt{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("load attempt: %w", err)
	}
	return attempt, nil
}

// CompareAndSwapStatus reads the row, applies mutate to a copy and writes it back
// only if the status is still expected. The lifecycle never returns to a
// status it has left, so an unchanged status also means the rest of the row is
// unchanged since the read.
func (s *AttemptStore) CompareAndSwapStatus(ctx context.Context, id string, expected, next domain.Status, mutate func(*domain.Attempt)) (domain.Attempt, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return domain.Attempt{}, err
	}
	if current.Status != expected {
		return domain.Attempt{}, domain.ErrStatusConflict
	}
	updated := current
	if mutate != nil {
		mutate(&updated)
	}
	updated.Status = next

	row, err := encodeAttempt(updated)
	if err != nil {
		return domain.Attempt{}, err
	}
	tag, err := s.pool.Exec(ctx, `UPDATE attempts SET
			status=$3, submitted_at=$4, graded_at=$5, graded_by=$6, answers=$7::jsonb, pending_essays=$8::jsonb,
			objective_score=$9, essay_score=$10, final_score=$11, grading_request=$12::jsonb, essay_grades=$13::jsonb
		WHERE id=$1 AND status=$2`,
		id, string(expected), string(next), updated.SubmittedAt, updated.GradedAt, updated.GradedBy,
		row.answers, row.pending, updated.ObjectiveScore, updated.EssayScore, updated.FinalScore,
		row.request, row.grades)
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("update attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Attempt{}, domain.ErrStatusConflict
	}
	return updated, nil
}

func (s *AttemptStore) ListByStatus(ctx context.Context, status domain.Status) ([]domain.Attempt, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+attemptColumns+` FROM attempts WHERE status=$1 ORDER BY started_at`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Attempt, 0)
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		out = append(out, attempt)
	}
	return out, rows.Err()
}

type encodedAttempt struct {
	answers string
	pending string
	grades  string
	request *string
}

func encodeAttempt(a domain.Attempt) (encodedAttempt, error) {
	var row encodedAttempt
	answers := a.Answers
	if answers == nil {
		answers = domain.Answers{}
	}
	raw, err := json.Marshal(answers)
	if err != nil {
		return row, fmt.Errorf("marshal answers: %w", err)
	}
	row.answers = string(raw)

	pending := a.PendingEssays
	if pending == nil {
		pending = []string{}
	}
	if raw, err = json.Marshal(pending); err != nil {
		return row, fmt.Errorf("marshal pending essays: %w", err)
	}
	row.pending = string(raw)

	grades := a.EssayGrades
	if grades == nil {
		grades = []domain.EssayGrade{}
	}
	if raw, err = json.Marshal(grades); err != nil {
		return row, fmt.Errorf("marshal essay grades: %w", err)
	}
	row.grades = string(raw)

	if a.GradingRequest != nil {
		if raw, err = json.Marshal(a.GradingRequest); err != nil {
			return row, fmt.Errorf("marshal grading request: %w", err)
		}
		request := string(raw)
		row.request = &request
	}
	return row, nil
}

func scanAttempt(row pgx.Row) (domain.Attempt, error) {
	var (
		a                        domain.Attempt
		status                   string
		submittedAt, gradedAt    *time.Time
		answers, pending, grades []byte
		request                  []byte
	)
	err := row.Scan(&a.ID, &a.QuizID, &a.LearnerID, &status, &a.StartedAt, &a.Deadline, &submittedAt, &gradedAt,
		&a.GradedBy, &answers, &pending, &a.ObjectiveScore, &a.EssayScore, &a.FinalScore, &request, &grades)
	if err != nil {
		return domain.Attempt{}, err
	}
	a.Status = domain.Status(status)
	a.SubmittedAt = submittedAt
	a.GradedAt = gradedAt

	if err := json.Unmarshal(answers, &a.Answers); err != nil {
		return domain.Attempt{}, fmt.Errorf("unmarshal answers: %w", err)
	}
	if err := json.Unmarshal(pending, &a.PendingEssays); err != nil {
		return domain.Attempt{}, fmt.Errorf("unmarshal pending essays: %w", err)
	}
	if err := json.Unmarshal(grades, &a.EssayGrades); err != nil {
		return domain.Attempt{}, fmt.Errorf("unmarshal essay grades: %w", err)
	}
	if len(request) > 0 {
		var gr domain.GradingRequest
		if err := json.Unmarshal(request, &gr); err != nil {
			return domain.Attempt{}, fmt.Errorf("unmarshal grading request: %w", err)
		}
		a.GradingRequest = &gr
	}
	return a, nil
}
