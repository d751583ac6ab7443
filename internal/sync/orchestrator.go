package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/sanchay-app/sanchay/internal/extract"
	"github.com/sanchay-app/sanchay/internal/logger"
	"github.com/sanchay-app/sanchay/internal/mail"
	"github.com/sanchay-app/sanchay/internal/reconcile"
	"github.com/sanchay-app/sanchay/internal/store"
)

// DefaultCurrency is the reporting currency when none is configured.
const DefaultCurrency = "INR"

// Archiver stores a copy of the raw message before extraction. Failures are
// logged and never abort the batch.
type Archiver interface {
	Archive(ctx context.Context, msg *mail.RawMessage) error
}

// Orchestrator runs sync batches: list candidate emails, fetch, extract,
// reconcile, mark processed. One email at a time, strictly sequentially;
// per-email failures are isolated, batch-level failures abort.
type Orchestrator struct {
	mail       mail.Service
	extractor  extract.Extractor
	st         store.Store
	reconciler *reconcile.Reconciler
	archiver   Archiver

	mu    gosync.Mutex
	state State
}

// NewOrchestrator wires the collaborators. archiver may be nil.
func NewOrchestrator(mailSvc mail.Service, extractor extract.Extractor, st store.Store, reconciler *reconcile.Reconciler, archiver Archiver) *Orchestrator {
	return &Orchestrator{
		mail:       mailSvc,
		extractor:  extractor,
		st:         st,
		reconciler: reconciler,
		archiver:   archiver,
		state:      StateIdle,
	}
}

// State returns the current batch lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Run executes one sync batch. It returns an error only for batch-level
// failures (mail access down, store unreachable); per-email failures are
// counted in the result. Cancellation via ctx is honored between emails and
// yields a Cancelled result with a nil error, leaving written rows intact.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Result, error) {
	o.mu.Lock()
	if o.state == StateRunning {
		o.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	o.state = StateRunning
	o.mu.Unlock()

	result := &Result{
		BatchID:   uuid.NewString(),
		State:     StateRunning,
		StartedAt: time.Now().UTC(),
	}

	log := logger.FromContext(ctx).With().Str("batch_id", result.BatchID).Logger()
	ctx = logger.WithContext(ctx, log)

	log.Info().
		Bool("full_sync", opts.FullSync).
		Time("after", opts.After).
		Msg("Starting sync batch")

	currency, err := o.resolveCurrency(ctx, opts.Currency)
	if err != nil {
		return o.fail(result, fmt.Errorf("Run: resolving currency: %w", err))
	}

	ids, err := o.mail.ListMessageIDs(ctx, mail.Query{After: opts.After, Wide: opts.Wide})
	if err != nil {
		return o.fail(result, fmt.Errorf("Run: %w: %v", ErrMailAccess, err))
	}

	result.Total = len(ids)
	log.Info().Int("candidate_count", len(ids)).Str("currency", currency).Msg("Retrieved candidate messages")

	for _, id := range ids {
		// Cancellation is only honored between emails; each email is a
		// complete unit of work.
		if ctx.Err() != nil {
			log.Warn().Int("processed", result.Processed).Msg("Sync batch cancelled")
			result.State = StateCancelled
			result.FinishedAt = time.Now().UTC()
			o.setState(StateCancelled)
			return result, nil
		}

		if err := o.processEmail(ctx, id, currency, opts, result); err != nil {
			return o.fail(result, err)
		}

		result.Processed++
		if opts.Observer != nil {
			opts.Observer.OnProgress(Progress{
				Processed:       result.Processed,
				Total:           result.Total,
				NewTransactions: result.NewTransactions,
			})
		}
	}

	if err := o.st.SetSetting(ctx, store.SettingLastSync, time.Now().UTC().Format(time.RFC3339)); err != nil {
		log.Warn().Err(err).Msg("Failed to record last sync timestamp")
	}

	result.State = StateCompleted
	result.FinishedAt = time.Now().UTC()
	o.setState(StateCompleted)

	log.Info().
		Int("total", result.Total).
		Int("skipped", result.Skipped).
		Int("failures", result.Failures).
		Int("new_transactions", result.NewTransactions).
		Msg("Sync batch completed")

	return result, nil
}

// processEmail handles a single message. It returns an error only when the
// store is unreachable and subsequent emails cannot plausibly succeed.
func (o *Orchestrator) processEmail(ctx context.Context, id, currency string, opts Options, result *Result) error {
	log := logger.FromContext(ctx).With().Str("email_id", id).Logger()

	if !opts.FullSync {
		processed, err := o.st.IsEmailProcessed(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrUnavailable) {
				return fmt.Errorf("processEmail: checking marker: %w", err)
			}
			log.Warn().Err(err).Msg("Failed to check processed marker, treating as unprocessed")
		}
		if processed {
			result.Skipped++
			log.Debug().Msg("Email already processed, skipping")
			return nil
		}
	}

	msg, err := o.mail.FetchMessage(ctx, id)
	if err != nil {
		// No marker: a transient fetch failure should retry next sync.
		result.Failures++
		log.Warn().Err(err).Msg("Failed to fetch message, will retry next sync")
		return nil
	}

	if o.archiver != nil {
		if err := o.archiver.Archive(ctx, msg); err != nil {
			log.Warn().Err(err).Msg("Failed to archive raw message")
		}
	}

	extraction, err := o.extractor.Extract(ctx, msg)
	if err != nil {
		// Marked anyway: a malformed email must not poison every sync.
		result.Failures++
		log.Warn().Err(err).Msg("Extraction failed, marking email processed to avoid retries")
		return o.markProcessed(ctx, id, result)
	}

	for _, tx := range extraction.Transactions {
		if tx.Currency != currency {
			log.Info().
				Str("transaction_id", tx.ID).
				Str("currency", tx.Currency).
				Str("reporting_currency", currency).
				Msg("Skipping transaction in foreign currency")
			continue
		}

		// Re-delivery of a known candidate id reports the same outcome but
		// must not inflate the new-transaction count.
		_, getErr := o.st.GetTransaction(ctx, tx.ID)
		if getErr != nil && errors.Is(getErr, store.ErrUnavailable) {
			return fmt.Errorf("processEmail: checking %s: %w", tx.ID, getErr)
		}
		existed := getErr == nil

		outcome, err := o.reconciler.Reconcile(ctx, tx)
		if err != nil {
			if errors.Is(err, store.ErrUnavailable) {
				return fmt.Errorf("processEmail: reconciling %s: %w", tx.ID, err)
			}
			result.Failures++
			log.Warn().Err(err).Str("transaction_id", tx.ID).Msg("Failed to reconcile transaction")
			continue
		}
		if outcome.IsNew() && !existed {
			result.NewTransactions++
		}
		log.Info().
			Str("transaction_id", tx.ID).
			Str("outcome", outcome.String()).
			Msg("Reconciled transaction")
	}

	if sub := extraction.Subscription; sub != nil {
		if sub.Currency != currency {
			log.Info().
				Str("subscription", sub.Name).
				Str("currency", sub.Currency).
				Msg("Skipping subscription in foreign currency")
		} else if err := o.st.UpsertSubscription(ctx, sub); err != nil {
			if errors.Is(err, store.ErrUnavailable) {
				return fmt.Errorf("processEmail: upserting subscription %s: %w", sub.ID, err)
			}
			log.Warn().Err(err).Str("subscription", sub.Name).Msg("Failed to upsert subscription")
		} else {
			log.Info().Str("subscription", sub.Name).Msg("Recorded subscription")
		}
	}

	return o.markProcessed(ctx, id, result)
}

func (o *Orchestrator) markProcessed(ctx context.Context, id string, result *Result) error {
	if err := o.st.MarkEmailProcessed(ctx, id, time.Now().UTC()); err != nil {
		if errors.Is(err, store.ErrUnavailable) {
			return fmt.Errorf("markProcessed: %w", err)
		}
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("email_id", id).Msg("Failed to write processed marker")
	}
	return nil
}

func (o *Orchestrator) resolveCurrency(ctx context.Context, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	value, err := o.st.GetSetting(ctx, store.SettingUserCurrency)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return DefaultCurrency, nil
		}
		return "", err
	}
	if value == "" {
		return DefaultCurrency, nil
	}
	return value, nil
}

func (o *Orchestrator) fail(result *Result, err error) (*Result, error) {
	result.State = StateFailed
	result.FinishedAt = time.Now().UTC()
	o.setState(StateFailed)
	return result, err
}

// LastSync reads the stored end timestamp of the most recent completed
// batch. Returns the zero time when no batch has completed yet.
func LastSync(ctx context.Context, settings store.Settings) (time.Time, error) {
	value, err := settings.GetSetting(ctx, store.SettingLastSync)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("LastSync: %w", err)
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("LastSync: parsing %q: %w", value, err)
	}
	return t, nil
}
