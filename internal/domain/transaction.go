package domain

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Direction distinguishes money flowing in from money flowing out.
type Direction string

const (
	// DirectionCredit marks money flowing into the account.
	DirectionCredit Direction = "credit"
	// DirectionDebit marks money flowing out of the account.
	DirectionDebit Direction = "debit"
)

// Valid reports whether the direction is one of the two known values.
func (d Direction) Valid() bool {
	return d == DirectionCredit || d == DirectionDebit
}

// Transaction is one candidate or ledger transaction. An extractor produces it
// without the reconciliation fields; the reconciler is the sole writer of
// Fingerprint, IsDuplicate, Reverses and ReversedBy before the row is stored.
type Transaction struct {
	ID          string          // stable content-derived id from the extractor
	Date        civil.Date      // transaction date, not email arrival date
	Amount      decimal.Decimal // always positive; Direction carries the sign
	Description string
	Category    string
	Direction   Direction
	Source      string // short origin tag, e.g. the sender domain fragment
	Merchant    string // optional
	Currency    string // ISO code, e.g. "INR"
	EmailID     string // originating email
	RawMetadata map[string]string

	Fingerprint string
	IsDuplicate bool   // stored for audit, excluded from aggregate sums
	Reverses    string // id of the debit this credit reverses, or ""
	ReversedBy  string // id of the later credit reversing this row, or ""

	CreatedAt time.Time
}

// Clone returns a deep copy so store implementations can hand out rows
// without aliasing their internal state.
func (t *Transaction) Clone() *Transaction {
	cp := *t
	if t.RawMetadata != nil {
		cp.RawMetadata = make(map[string]string, len(t.RawMetadata))
		for k, v := range t.RawMetadata {
			cp.RawMetadata[k] = v
		}
	}
	return &cp
}
