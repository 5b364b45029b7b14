package postgres

import (
	"context"
	"errors"
	"fmt"

	"assessment-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// PointsLedger keeps balances in point_balances and records every referenced
// debit in point_debits, whose primary key makes a replayed reference a no-op.
type PointsLedger struct {
	pool *pgxpool.Pool
}

func NewPointsLedger(pool *pgxpool.Pool) *PointsLedger {
	return &PointsLedger{pool: pool}
}

func (l *PointsLedger) DebitIfSufficient(ctx context.Context, debit domain.Debit) (domain.DebitResult, error) {
	if debit.Amount < 0 {
		return domain.DebitResult{}, fmt.Errorf("negative debit amount %d", debit.Amount)
	}
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return domain.DebitResult{}, fmt.Errorf("begin debit: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if debit.Reference != "" {
		tag, err := tx.Exec(ctx,
			`INSERT INTO point_debits (reference, user_id, amount) VALUES ($1, $2, $3)
			 ON CONFLICT (reference) DO NOTHING`,
			debit.Reference, debit.UserID, debit.Amount)
		if err != nil {
			return domain.DebitResult{}, fmt.Errorf("record debit: %w", err)
		}
		if tag.RowsAffected() == 0 {
			balance, err := balanceOf(ctx, tx, debit.UserID)
			if err != nil {
				return domain.DebitResult{}, err
			}
			return domain.DebitResult{Granted: true, Duplicate: true, Balance: balance}, nil
		}
	}

	var balance int64
	err = tx.QueryRow(ctx,
		`UPDATE point_balances SET balance = balance - $2
		 WHERE user_id=$1 AND balance >= $2
		 RETURNING balance`,
		debit.UserID, debit.Amount).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		// Rolling back drops the debit record too, so a later retry can succeed.
		balance, err := balanceOf(ctx, tx, debit.UserID)
		if err != nil {
			return domain.DebitResult{}, err
		}
		return domain.DebitResult{Granted: false, Balance: balance}, nil
	}
	if err != nil {
		return domain.DebitResult{}, fmt.Errorf("debit balance: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.DebitResult{}, fmt.Errorf("commit debit: %w", err)
	}
	return domain.DebitResult{Granted: true, Balance: balance}, nil
}

// Credit adds points to a user's balance and returns the new balance.
func (l *PointsLedger) Credit(ctx context.Context, userID string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("negative credit amount %d", amount)
	}
	var balance int64
	err := l.pool.QueryRow(ctx,
		`INSERT INTO point_balances (user_id, balance) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET balance = point_balances.balance + EXCLUDED.balance
		 RETURNING balance`,
		userID, amount).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("credit points: %w", err)
	}
	return balance, nil
}

func (l *PointsLedger) Balance(ctx context.Context, userID string) (int64, error) {
	return balanceOf(ctx, l.pool, userID)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func balanceOf(ctx context.Context, q queryRower, userID string) (int64, error) {
	var balance int64
	err := q.QueryRow(ctx,
		`SELECT COALESCE((SELECT balance FROM point_balances WHERE user_id=$1), 0)`, userID).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return balance, nil
}
