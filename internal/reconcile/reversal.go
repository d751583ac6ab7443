package reconcile

import (
	"context"
	"fmt"

	"github.com/sanchay-app/sanchay/internal/domain"
	"github.com/sanchay-app/sanchay/internal/store"
)

// ReversalLinker matches an incoming credit against a prior unreversed debit
// of equal amount within a trailing window. Amount and date alone would link
// unrelated transactions of the same round amount, so a match additionally
// requires refund vocabulary in the credit AND a merchant match.
type ReversalLinker struct {
	ledger     store.Ledger
	windowDays int
	lookback   int
}

// NewReversalLinker creates a linker reading from the given ledger.
func NewReversalLinker(ledger store.Ledger, cfg Config) *ReversalLinker {
	cfg = cfg.withDefaults()
	return &ReversalLinker{
		ledger:     ledger,
		windowDays: cfg.ReversalWindowDays,
		lookback:   cfg.ReversalLookback,
	}
}

// Find returns the id of the debit the credit reverses, or "" when there is
// none. Non-credit input never links.
func (l *ReversalLinker) Find(ctx context.Context, tx *domain.Transaction) (string, error) {
	if tx.Direction != domain.DirectionCredit {
		return "", nil
	}

	if !IsRefundLanguage(tx.Description) {
		return "", nil
	}

	from := tx.Date.AddDays(-l.windowDays)
	debits, err := l.ledger.ListUnreversedDebits(ctx, tx.Amount, from, tx.Date, l.lookback)
	if err != nil {
		return "", fmt.Errorf("reversal check: debit lookup: %w", err)
	}

	for _, debit := range debits {
		if debit.ID == tx.ID {
			continue
		}
		if MerchantsMatch(tx.Merchant, tx.Description, debit.Merchant, debit.Description) {
			return debit.ID, nil
		}
	}

	return "", nil
}
