package memory

import (
	"context"
	"fmt"
	"sync"

	"assessment-service/internal/domain"
)

// PointsLedger is an in-memory app.PointsLedger. Granted debits are remembered
// by reference so a replay is reported as a duplicate instead of charged.
type PointsLedger struct {
	mu       sync.Mutex
	balances map[string]int64
	debits   map[string]domain.Debit
}

func NewPointsLedger(balances map[string]int64) *PointsLedger {
	l := &PointsLedger{
		balances: make(map[string]int64, len(balances)),
		debits:   make(map[string]domain.Debit),
	}
	for user, balance := range balances {
		l.balances[user] = balance
	}
	return l
}

func (l *PointsLedger) DebitIfSufficient(_ context.Context, debit domain.Debit) (domain.DebitResult, error) {
	if debit.Amount <= 0 {
		return domain.DebitResult{}, fmt.Errorf("debit amount must be positive, got %d", debit.Amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	balance := l.balances[debit.UserID]
	if debit.Reference != "" {
		if _, seen := l.debits[debit.Reference]; seen {
			return domain.DebitResult{Granted: true, Duplicate: true, Balance: balance}, nil
		}
	}
	if balance < debit.Amount {
		return domain.DebitResult{Granted: false, Balance: balance}, nil
	}
	balance -= debit.Amount
	l.balances[debit.UserID] = balance
	if debit.Reference != "" {
		l.debits[debit.Reference] = debit
	}
	return domain.DebitResult{Granted: true, Balance: balance}, nil
}

// Credit adds points to a user's balance and returns the new balance.
func (l *PointsLedger) Credit(_ context.Context, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("credit amount must be positive, got %d", amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[userID] += amount
	return l.balances[userID], nil
}

func (l *PointsLedger) Balance(_ context.Context, userID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID], nil
}
