package domain

// Debit asks the points ledger to take Amount from UserID only if the balance
// covers it. Reference identifies the debit so a replay is recognised instead of
// charged twice.
type Debit struct {
	UserID    string
	Amount    int64
	Reference string
}

// DebitResult reports the ledger's decision. Duplicate is set when a debit with
// the same reference was already granted; the balance is not touched again.
type DebitResult struct {
	Granted   bool
	Duplicate bool
	Balance   int64
}
