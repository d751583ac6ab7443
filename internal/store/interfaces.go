// Package store defines the persistence contracts the reconciliation engine
// and the sync orchestrator depend on. Implementations live in
// internal/store/inmemory and internal/infra/bigquery.
package store

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/sanchay-app/sanchay/internal/domain"
)

// SettingLastSync is the settings key holding the end timestamp of the most
// recent completed sync batch, in RFC 3339.
const SettingLastSync = "last_sync"

// SettingUserCurrency is the settings key holding the user's reporting
// currency code.
const SettingUserCurrency = "user_currency"

// Ledger is the transaction side of the store. The reconciler is its only
// writer during a batch; reads must see the batch's own prior writes.
type Ledger interface {
	// UpsertTransaction stores the row with replace-by-id semantics. A
	// replace must never clear an existing ReversedBy link.
	UpsertTransaction(ctx context.Context, tx *domain.Transaction) error

	// GetTransaction returns the row with the given id, or ErrNotFound.
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)

	// FindByFingerprint returns a row with the same fingerprint and an id
	// different from excludeID, or ErrNotFound.
	FindByFingerprint(ctx context.Context, fingerprint, excludeID string) (*domain.Transaction, error)

	// ListSameDay returns all non-duplicate rows with the given date, amount
	// and direction, excluding excludeID.
	ListSameDay(ctx context.Context, date civil.Date, amount decimal.Decimal, direction domain.Direction, excludeID string) ([]*domain.Transaction, error)

	// ListUnreversedDebits returns debit rows of the given amount with no
	// ReversedBy link and a date inside [from, to], most recent first,
	// capped to limit.
	ListUnreversedDebits(ctx context.Context, amount decimal.Decimal, from, to civil.Date, limit int) ([]*domain.Transaction, error)

	// MarkReversed sets ReversedBy=reversalID on the row originalID. It
	// returns false when no row was updated, either because the original is
	// missing or because it already carries a reversal link.
	MarkReversed(ctx context.Context, originalID, reversalID string) (bool, error)

	// ListRecent returns up to limit rows ordered by date descending.
	ListRecent(ctx context.Context, limit int) ([]*domain.Transaction, error)

	// Totals sums amounts per direction over non-duplicate rows only.
	Totals(ctx context.Context) (Totals, error)
}

// Totals holds duplicate-excluding amount sums per direction.
type Totals struct {
	Income  decimal.Decimal
	Expense decimal.Decimal
}

// Subscriptions stores recurring payments detected from billing emails.
type Subscriptions interface {
	// UpsertSubscription stores the subscription with replace-by-id semantics.
	UpsertSubscription(ctx context.Context, sub *domain.Subscription) error

	// ListSubscriptions returns all known subscriptions.
	ListSubscriptions(ctx context.Context) ([]*domain.Subscription, error)
}

// ProcessedEmails is the idempotency ledger for the sync orchestrator.
// Markers are insert-only; they are never updated or deleted.
type ProcessedEmails interface {
	IsEmailProcessed(ctx context.Context, emailID string) (bool, error)
	MarkEmailProcessed(ctx context.Context, emailID string, processedAt time.Time) error
}

// Settings is a simple key-value table for sync metadata and preferences.
type Settings interface {
	// GetSetting returns the value for key, or ErrNotFound.
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Store combines every persistence concern the engine needs.
type Store interface {
	Ledger
	Subscriptions
	ProcessedEmails
	Settings
}
