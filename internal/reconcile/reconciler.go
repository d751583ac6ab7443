package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sanchay-app/sanchay/internal/domain"
	"github.com/sanchay-app/sanchay/internal/logger"
	"github.com/sanchay-app/sanchay/internal/store"
)

// Reconciler decides whether an incoming candidate transaction is new, a
// duplicate of an existing ledger row, or a reversal of an earlier debit, and
// persists the decision. It is the sole writer of the IsDuplicate, Reverses
// and ReversedBy fields.
type Reconciler struct {
	st         store.Store
	duplicates *DuplicateDetector
	reversals  *ReversalLinker
}

// NewReconciler wires a reconciler onto the given store. The store handle is
// explicit; there is no ambient global.
func NewReconciler(st store.Store, cfg Config) *Reconciler {
	return &Reconciler{
		st:         st,
		duplicates: NewDuplicateDetector(st, cfg),
		reversals:  NewReversalLinker(st, cfg),
	}
}

// Reconcile runs one candidate through duplicate detection and reversal
// linking and writes exactly one ledger row. Candidates are never silently
// dropped: duplicates are stored flagged for audit.
//
// Re-delivery of the same candidate id is idempotent: persistence is an
// upsert-by-id, and an already-established reversal link is reused rather
// than re-derived, so both runs converge to the same stored row and outcome.
func (r *Reconciler) Reconcile(ctx context.Context, candidate *domain.Transaction) (domain.Outcome, error) {
	log := logger.FromContext(ctx)

	if candidate.ID == "" {
		return domain.Outcome{}, fmt.Errorf("reconcile: candidate has no id")
	}
	if !candidate.Direction.Valid() {
		return domain.Outcome{}, fmt.Errorf("reconcile: invalid direction %q", candidate.Direction)
	}

	tx := candidate.Clone()
	tx.Fingerprint = Fingerprint(tx)
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	match, err := r.duplicates.Check(ctx, tx)
	if err != nil {
		return domain.Outcome{}, err
	}
	if match.Kind != NotDuplicate {
		tx.IsDuplicate = true
		if err := r.st.UpsertTransaction(ctx, tx); err != nil {
			return domain.Outcome{}, fmt.Errorf("reconcile: upsert duplicate: %w", err)
		}
		log.Warn().
			Str("transaction_id", tx.ID).
			Str("duplicate_of", match.ExistingID).
			Bool("exact", match.Kind == ExactDuplicate).
			Str("description", tx.Description).
			Msg("Stored transaction flagged as duplicate")
		return domain.Outcome{Kind: domain.OutcomeInsertedAsDuplicate, RelatedID: match.ExistingID}, nil
	}

	originalID, err := r.reversalTarget(ctx, tx)
	if err != nil {
		return domain.Outcome{}, err
	}

	if originalID != "" && originalID != tx.ID {
		tx.Reverses = originalID
		if err := r.st.UpsertTransaction(ctx, tx); err != nil {
			return domain.Outcome{}, fmt.Errorf("reconcile: upsert reversal: %w", err)
		}

		linked, err := r.st.MarkReversed(ctx, originalID, tx.ID)
		if err != nil {
			return domain.Outcome{}, fmt.Errorf("reconcile: mark reversed: %w", err)
		}
		if !linked {
			// The original vanished or already carries a different link.
			// Keep the candidate as a plain row rather than lose it.
			log.Warn().
				Str("transaction_id", tx.ID).
				Str("original_id", originalID).
				Msg("Reversal link update affected no rows, falling back to plain insert")
			tx.Reverses = ""
			if err := r.st.UpsertTransaction(ctx, tx); err != nil {
				return domain.Outcome{}, fmt.Errorf("reconcile: upsert fallback: %w", err)
			}
			return domain.Outcome{Kind: domain.OutcomeInserted}, nil
		}

		log.Info().
			Str("transaction_id", tx.ID).
			Str("reverses", originalID).
			Msg("Linked reversal")
		return domain.Outcome{Kind: domain.OutcomeInsertedAsReversal, RelatedID: originalID}, nil
	}

	if err := r.st.UpsertTransaction(ctx, tx); err != nil {
		return domain.Outcome{}, fmt.Errorf("reconcile: upsert: %w", err)
	}
	return domain.Outcome{Kind: domain.OutcomeInserted}, nil
}

// reversalTarget returns the debit id the candidate reverses. A link already
// recorded for this candidate id wins over a fresh heuristic pass, since the
// original debit no longer shows up in the unreversed-debit query once
// linked.
func (r *Reconciler) reversalTarget(ctx context.Context, tx *domain.Transaction) (string, error) {
	prior, err := r.st.GetTransaction(ctx, tx.ID)
	if err == nil && prior.Reverses != "" && prior.Reverses != tx.ID {
		return prior.Reverses, nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("reconcile: prior row lookup: %w", err)
	}

	return r.reversals.Find(ctx, tx)
}
