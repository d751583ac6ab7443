package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/sanchay-app/sanchay/internal/domain"
	"github.com/sanchay-app/sanchay/internal/store"
)

// DuplicateKind classifies a duplicate-detection result.
type DuplicateKind int

const (
	// NotDuplicate means no existing row describes the same event.
	NotDuplicate DuplicateKind = iota
	// ExactDuplicate means an existing row has the identical fingerprint.
	ExactDuplicate
	// FuzzyDuplicate means a same-day, same-amount row reads as the same
	// event after description normalization.
	FuzzyDuplicate
)

// DuplicateMatch is the outcome of checking one candidate against history.
// ExistingID is set for everything but NotDuplicate.
type DuplicateMatch struct {
	Kind       DuplicateKind
	ExistingID string
}

// DuplicateDetector finds existing ledger rows describing the same real-world
// event as an incoming candidate.
type DuplicateDetector struct {
	ledger    store.Ledger
	threshold float64
}

// NewDuplicateDetector creates a detector reading from the given ledger.
func NewDuplicateDetector(ledger store.Ledger, cfg Config) *DuplicateDetector {
	cfg = cfg.withDefaults()
	return &DuplicateDetector{
		ledger:    ledger,
		threshold: cfg.JaccardThreshold,
	}
}

// Check looks for an exact fingerprint match first, then for a fuzzy same-day
// match. The first fuzzy row above the threshold wins; no further ranking.
func (d *DuplicateDetector) Check(ctx context.Context, tx *domain.Transaction) (DuplicateMatch, error) {
	existing, err := d.ledger.FindByFingerprint(ctx, tx.Fingerprint, tx.ID)
	if err == nil {
		return DuplicateMatch{Kind: ExactDuplicate, ExistingID: existing.ID}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return DuplicateMatch{}, fmt.Errorf("duplicate check: fingerprint lookup: %w", err)
	}

	sameDay, err := d.ledger.ListSameDay(ctx, tx.Date, tx.Amount, tx.Direction, tx.ID)
	if err != nil {
		return DuplicateMatch{}, fmt.Errorf("duplicate check: same-day lookup: %w", err)
	}

	normalized := NormalizeDescription(tx.Description)
	for _, candidate := range sameDay {
		similarity := JaccardSimilarity(normalized, NormalizeDescription(candidate.Description))
		if similarity > d.threshold {
			return DuplicateMatch{Kind: FuzzyDuplicate, ExistingID: candidate.ID}, nil
		}
	}

	return DuplicateMatch{Kind: NotDuplicate}, nil
}
