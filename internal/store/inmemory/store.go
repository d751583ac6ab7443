// Package inmemory provides a map-backed implementation of store.Store.
// It is safe for concurrent use and is used by tests and local runs; data is
// lost on restart. For durability, use the BigQuery-backed store.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/sanchay-app/sanchay/internal/domain"
	"github.com/sanchay-app/sanchay/internal/store"
)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu              sync.RWMutex
	transactions    map[string]*domain.Transaction
	subscriptions   map[string]*domain.Subscription
	processedEmails map[string]time.Time
	settings        map[string]string
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		transactions:    make(map[string]*domain.Transaction),
		subscriptions:   make(map[string]*domain.Subscription),
		processedEmails: make(map[string]time.Time),
		settings:        make(map[string]string),
	}
}

// UpsertTransaction implements store.Ledger. Replace-by-id, except that an
// existing ReversedBy link survives the replace: the link is append-only and
// a re-delivered candidate must not sever it.
func (s *Store) UpsertTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx.ID == "" {
		return fmt.Errorf("upsert transaction: id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := tx.Clone()
	if prev, ok := s.transactions[tx.ID]; ok && cp.ReversedBy == "" {
		cp.ReversedBy = prev.ReversedBy
	}
	s.transactions[tx.ID] = cp
	return nil
}

// GetTransaction implements store.Ledger.
func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return tx.Clone(), nil
}

// FindByFingerprint implements store.Ledger.
func (s *Store) FindByFingerprint(ctx context.Context, fingerprint, excludeID string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, tx := range s.transactions {
		if tx.Fingerprint == fingerprint && tx.ID != excludeID {
			return tx.Clone(), nil
		}
	}
	return nil, store.ErrNotFound
}

// ListSameDay implements store.Ledger. Duplicate-flagged rows are excluded so
// a chain of duplicates always resolves to the first stored original.
func (s *Store) ListSameDay(ctx context.Context, date civil.Date, amount decimal.Decimal, direction domain.Direction, excludeID string) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Transaction
	for _, tx := range s.transactions {
		if tx.ID == excludeID || tx.IsDuplicate {
			continue
		}
		if tx.Date == date && tx.Direction == direction && tx.Amount.Equal(amount) {
			result = append(result, tx.Clone())
		}
	}
	sortByDateDesc(result)
	return result, nil
}

// ListUnreversedDebits implements store.Ledger.
func (s *Store) ListUnreversedDebits(ctx context.Context, amount decimal.Decimal, from, to civil.Date, limit int) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Transaction
	for _, tx := range s.transactions {
		if tx.Direction != domain.DirectionDebit || tx.ReversedBy != "" || tx.IsDuplicate {
			continue
		}
		if !tx.Amount.Equal(amount) {
			continue
		}
		if tx.Date.Before(from) || tx.Date.After(to) {
			continue
		}
		result = append(result, tx.Clone())
	}
	sortByDateDesc(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// MarkReversed implements store.Ledger. Setting the same link twice is a
// no-op success; a row already linked to a different reversal is left alone
// and reported as not updated.
func (s *Store) MarkReversed(ctx context.Context, originalID, reversalID string) (bool, error) {
	if originalID == reversalID {
		return false, fmt.Errorf("mark reversed: self-link %s", originalID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.transactions[originalID]
	if !ok {
		return false, nil
	}
	if original.ReversedBy == reversalID {
		return true, nil
	}
	if original.ReversedBy != "" {
		return false, nil
	}
	original.ReversedBy = reversalID
	return true, nil
}

// ListRecent implements store.Ledger.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Transaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		result = append(result, tx.Clone())
	}
	sortByDateDesc(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Totals implements store.Ledger. Duplicate-flagged rows never contribute.
func (s *Store) Totals(ctx context.Context) (store.Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := store.Totals{
		Income:  decimal.Zero,
		Expense: decimal.Zero,
	}
	for _, tx := range s.transactions {
		if tx.IsDuplicate {
			continue
		}
		switch tx.Direction {
		case domain.DirectionCredit:
			totals.Income = totals.Income.Add(tx.Amount)
		case domain.DirectionDebit:
			totals.Expense = totals.Expense.Add(tx.Amount)
		}
	}
	return totals, nil
}

// UpsertSubscription implements store.Subscriptions.
func (s *Store) UpsertSubscription(ctx context.Context, sub *domain.Subscription) error {
	if sub.ID == "" {
		return fmt.Errorf("upsert subscription: id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *sub
	s.subscriptions[sub.ID] = &cp
	return nil
}

// ListSubscriptions implements store.Subscriptions.
func (s *Store) ListSubscriptions(ctx context.Context) ([]*domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Subscription, 0, len(s.subscriptions))
	for _, sub := range s.subscriptions {
		cp := *sub
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// IsEmailProcessed implements store.ProcessedEmails.
func (s *Store) IsEmailProcessed(ctx context.Context, emailID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.processedEmails[emailID]
	return ok, nil
}

// MarkEmailProcessed implements store.ProcessedEmails. Markers are
// insert-only: marking an already-processed email keeps the first timestamp.
func (s *Store) MarkEmailProcessed(ctx context.Context, emailID string, processedAt time.Time) error {
	if emailID == "" {
		return fmt.Errorf("mark email processed: email id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.processedEmails[emailID]; !ok {
		s.processedEmails[emailID] = processedAt
	}
	return nil
}

// GetSetting implements store.Settings.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.settings[key]
	if !ok {
		return "", store.ErrNotFound
	}
	return value, nil
}

// SetSetting implements store.Settings.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings[key] = value
	return nil
}

func sortByDateDesc(txs []*domain.Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		if txs[i].Date != txs[j].Date {
			return txs[i].Date.After(txs[j].Date)
		}
		return txs[i].CreatedAt.After(txs[j].CreatedAt)
	})
}

// Ensure Store implements the full store contract.
var _ store.Store = (*Store)(nil)
