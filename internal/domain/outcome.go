package domain

import "fmt"

// OutcomeKind classifies how a candidate transaction was reconciled.
type OutcomeKind string

const (
	// OutcomeInserted means the candidate was new and stored as a plain row.
	OutcomeInserted OutcomeKind = "inserted"
	// OutcomeInsertedAsReversal means the candidate was stored linked to the
	// earlier debit it reverses.
	OutcomeInsertedAsReversal OutcomeKind = "inserted_as_reversal"
	// OutcomeInsertedAsDuplicate means the candidate was stored but flagged as
	// a duplicate of an existing row.
	OutcomeInsertedAsDuplicate OutcomeKind = "inserted_as_duplicate"
)

// Outcome is the transient result of reconciling one candidate. RelatedID is
// the reversed debit for reversals, or the pre-existing row for duplicates.
type Outcome struct {
	Kind      OutcomeKind
	RelatedID string
}

// IsNew reports whether the outcome counts toward newly inserted,
// non-duplicate transactions.
func (o Outcome) IsNew() bool {
	return o.Kind == OutcomeInserted || o.Kind == OutcomeInsertedAsReversal
}

func (o Outcome) String() string {
	if o.RelatedID == "" {
		return string(o.Kind)
	}
	return fmt.Sprintf("%s(%s)", o.Kind, o.RelatedID)
}
