package redis

import (
	"context"
	"errors"
	"fmt"

	"assessment-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// debitScript checks the balance and debits it in one server-side step.
// KEYS[1] balance key, KEYS[2] optional debit reference key.
// Returns {status, balance}: 0 denied, 1 granted, 2 duplicate reference.
var debitScript = redis.NewScript(`
local balance = tonumber(redis.call("GET", KEYS[1]) or "0")
if #KEYS > 1 and redis.call("EXISTS", KEYS[2]) == 1 then
	return {2, balance}
end
local amount = tonumber(ARGV[1])
if balance < amount then
	return {0, balance}
end
balance = redis.call("DECRBY", KEYS[1], amount)
if #KEYS > 1 then
	redis.call("SET", KEYS[2], ARGV[2])
end
return {1, balance}
`)

// PointsLedger stores balances as integer keys:
//
//	points:balance:{userID}   balance
//	points:debit:{reference}  userID of a granted debit
type PointsLedger struct {
	client *redis.Client
}

func NewPointsLedger(client *redis.Client) *PointsLedger {
	return &PointsLedger{client: client}
}

func (l *PointsLedger) DebitIfSufficient(ctx context.Context, debit domain.Debit) (domain.DebitResult, error) {
	if debit.Amount <= 0 {
		return domain.DebitResult{}, fmt.Errorf("debit amount must be positive, got %d", debit.Amount)
	}
	keys := []string{l.balanceKey(debit.UserID)}
	if debit.Reference != "" {
		keys = append(keys, l.debitKey(debit.Reference))
	}
	out, err := debitScript.Run(ctx, l.client, keys, debit.Amount, debit.UserID).Int64Slice()
	if err != nil {
		return domain.DebitResult{}, fmt.Errorf("debit script: %w", err)
	}
	if len(out) != 2 {
		return domain.DebitResult{}, fmt.Errorf("debit script: unexpected reply %v", out)
	}
	return domain.DebitResult{
		Granted:   out[0] != 0,
		Duplicate: out[0] == 2,
		Balance:   out[1],
	}, nil
}

func (l *PointsLedger) Credit(ctx context.Context, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("credit amount must be positive, got %d", amount)
	}
	return l.client.IncrBy(ctx, l.balanceKey(userID), amount).Result()
}

func (l *PointsLedger) Balance(ctx context.Context, userID string) (int64, error) {
	balance, err := l.client.Get(ctx, l.balanceKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return balance, err
}

func (l *PointsLedger) balanceKey(userID string) string {
	return "points:balance:" + userID
}

func (l *PointsLedger) debitKey(reference string) string {
	return "points:debit:" + reference
}
