package sync

import (
	"errors"
	"time"
)

// State is the orchestrator's batch lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Batch-level failures. Per-email failures are isolated and never surface
// as errors from Run; these abort the whole batch.
var (
	// ErrMailAccess means the mail collaborator could not be reached at all.
	ErrMailAccess = errors.New("mail access unavailable")

	// ErrAlreadyRunning means a batch is in flight on this orchestrator.
	ErrAlreadyRunning = errors.New("sync already running")
)

// Progress is reported to the observer after each email, in processing
// order, at most once per email.
type Progress struct {
	Processed       int
	Total           int
	NewTransactions int
}

// ProgressObserver receives batch progress.
type ProgressObserver interface {
	OnProgress(p Progress)
}

// ProgressFunc adapts a function to the ProgressObserver interface.
type ProgressFunc func(p Progress)

func (f ProgressFunc) OnProgress(p Progress) { f(p) }

// Options controls a single batch run.
type Options struct {
	// FullSync ignores processed-email markers and re-scans every message.
	FullSync bool

	// After restricts the mail search to messages newer than this time.
	After time.Time

	// Wide selects the broader mail search query set. Used with extractors
	// that can classify arbitrary billing emails, not just bank alerts.
	Wide bool

	// Currency is the user's reporting currency. Empty falls back to the
	// stored user_currency setting, then to INR.
	Currency string

	// Observer receives per-email progress. Optional.
	Observer ProgressObserver
}

// Result summarizes a finished batch.
type Result struct {
	BatchID         string
	State           State
	Total           int
	Processed       int
	Skipped         int
	Failures        int
	NewTransactions int
	StartedAt       time.Time
	FinishedAt      time.Time
}
