package memory

import (
	"context"
	"sync/atomic"
	"testing"

	"assessment-service/internal/domain"
	"golang.org/x/sync/errgroup"
)

func TestPointsLedgerDebit(t *testing.T) {
	ctx := context.Background()
	ledger := NewPointsLedger(map[string]int64{"u1": 150})

	res, err := ledger.DebitIfSufficient(ctx, domain.Debit{UserID: "u1", Amount: 100, Reference: "r1"})
	if err != nil || !res.Granted || res.Balance != 50 {
		t.Fatalf("expected granted debit leaving 50, got %+v %v", res, err)
	}

	res, err = ledger.DebitIfSufficient(ctx, domain.Debit{UserID: "u1", Amount: 100, Reference: "r2"})
	if err != nil || res.Granted {
		t.Fatalf("expected denial, got %+v %v", res, err)
	}
	if balance, _ := ledger.Balance(ctx, "u1"); balance != 50 {
		t.Fatalf("denial must leave balance unchanged, got %d", balance)
	}

	res, err = ledger.DebitIfSufficient(ctx, domain.Debit{UserID: "u1", Amount: 100, Reference: "r1"})
	if err != nil || !res.Granted || !res.Duplicate || res.Balance != 50 {
		t.Fatalf("expected duplicate replay, got %+v %v", res, err)
	}
}

func TestPointsLedgerConcurrentDebits(t *testing.T) {
	ctx := context.Background()
	ledger := NewPointsLedger(map[string]int64{"u1": 250})

	var granted atomic.Int32
	var g errgroup.Group
	for i := 0; i < 10; i++ {
		ref := string(rune('a' + i))
		g.Go(func() error {
			res, err := ledger.DebitIfSufficient(ctx, domain.Debit{UserID: "u1", Amount: 100, Reference: ref})
			if res.Granted {
				granted.Add(1)
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("debit: %v", err)
	}
	if granted.Load() != 2 {
		t.Fatalf("expected two grants, got %d", granted.Load())
	}
	if balance, _ := ledger.Balance(ctx, "u1"); balance != 50 {
		t.Fatalf("expected 50 left, got %d", balance)
	}
}

func TestPointsLedgerCredit(t *testing.T) {
	ctx := context.Background()
	ledger := NewPointsLedger(nil)
	if balance, err := ledger.Credit(ctx, "u1", 30); err != nil || balance != 30 {
		t.Fatalf("expected 30, got %d %v", balance, err)
	}
	if _, err := ledger.Credit(ctx, "u1", 0); err == nil {
		t.Fatalf("expected non-positive credit to fail")
	}
}
