package sync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanchay-app/sanchay/internal/domain"
	"github.com/sanchay-app/sanchay/internal/extract"
	"github.com/sanchay-app/sanchay/internal/mail"
	"github.com/sanchay-app/sanchay/internal/reconcile"
	"github.com/sanchay-app/sanchay/internal/store"
	"github.com/sanchay-app/sanchay/internal/store/inmemory"
)

type mockMail struct {
	listFn  func(ctx context.Context, q mail.Query) ([]string, error)
	fetchFn func(ctx context.Context, id string) (*mail.RawMessage, error)
}

func (m *mockMail) ListMessageIDs(ctx context.Context, q mail.Query) ([]string, error) {
	return m.listFn(ctx, q)
}

func (m *mockMail) FetchMessage(ctx context.Context, id string) (*mail.RawMessage, error) {
	return m.fetchFn(ctx, id)
}

type mockExtractor struct {
	extractFn func(ctx context.Context, msg *mail.RawMessage) (*extract.Extraction, error)
}

func (m *mockExtractor) Extract(ctx context.Context, msg *mail.RawMessage) (*extract.Extraction, error) {
	return m.extractFn(ctx, msg)
}

type mockArchiver struct {
	archived []string
	err      error
}

func (m *mockArchiver) Archive(ctx context.Context, msg *mail.RawMessage) error {
	if m.err != nil {
		return m.err
	}
	m.archived = append(m.archived, msg.ID)
	return nil
}

// flakyStore wraps the in-memory store to inject unavailability.
type flakyStore struct {
	store.Store
	markErr error
}

func (s *flakyStore) MarkEmailProcessed(ctx context.Context, emailID string, processedAt time.Time) error {
	if s.markErr != nil {
		return s.markErr
	}
	return s.Store.MarkEmailProcessed(ctx, emailID, processedAt)
}

func stubMessage(id string) *mail.RawMessage {
	return &mail.RawMessage{
		ID:           id,
		From:         "alerts@hdfcbank.net",
		Subject:      "Transaction alert",
		InternalDate: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
	}
}

func stubTransaction(id, currency string) *domain.Transaction {
	return &domain.Transaction{
		ID:        id,
		Date:      civil.Date{Year: 2024, Month: 1, Day: 15},
		Amount:    decimal.NewFromInt(500),
		Direction: domain.DirectionDebit,
		Currency:  currency,
		Source:    "hdfcbank",
	}
}

func singleTxMail(ids ...string) *mockMail {
	return &mockMail{
		listFn: func(ctx context.Context, q mail.Query) ([]string, error) {
			return ids, nil
		},
		fetchFn: func(ctx context.Context, id string) (*mail.RawMessage, error) {
			return stubMessage(id), nil
		},
	}
}

func newTestOrchestrator(m mail.Service, e extract.Extractor, st store.Store) *Orchestrator {
	return NewOrchestrator(m, e, st, reconcile.NewReconciler(st, reconcile.Config{}), nil)
}

func TestRunHappyPath(t *testing.T) {
	st := inmemory.NewStore()
	extractor := &mockExtractor{
		extractFn: func(ctx context.Context, msg *mail.RawMessage) (*extract.Extraction, error) {
			return &extract.Extraction{
				Transactions: []*domain.Transaction{stubTransaction("tx-"+msg.ID, "INR")},
			}, nil
		},
	}

	var progress []Progress
	o := newTestOrchestrator(singleTxMail("m1", "m2"), extractor, st)
	result, err := o.Run(context.Background(), Options{
		Observer: ProgressFunc(func(p Progress) { progress = append(progress, p) }),
	})
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, result.State)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 2, result.NewTransactions)
	assert.Equal(t, 0, result.Failures)
	assert.Equal(t, StateCompleted, o.State())

	// One progress report per email, in order.
	require.Len(t, progress, 2)
	assert.Equal(t, Progress{Processed: 1, Total: 2, NewTransactions: 1}, progress[0])
	assert.Equal(t, Progress{Processed: 2, Total: 2, NewTransactions: 2}, progress[1])

	for _, id := range []string{"m1", "m2"} {
		processed, err := st.IsEmailProcessed(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, processed, "email %s should be marked processed", id)
	}

	last, err := LastSync(context.Background(), st)
	require.NoError(t, err)
	assert.False(t, last.IsZero(), "last sync timestamp should be recorded")
}

func TestRunSkipsProcessedEmails(t *testing.T) {
	st := inmemory.NewStore()
	extractor := &mockExtractor{
		extractFn: func(ctx context.Context, msg *mail.RawMessage) (*extract.Extraction, error) {
			return &extract.Extraction{
				Transactions: []*domain.Transaction{stubTransaction("tx-"+msg.ID, "INR")},
			}, nil
		},
	}

	o := newTestOrchestrator(singleTxMail("m1"), extractor, st)
	first, err := o.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, first.NewTransactions)

	second, err := o.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, 0, second.NewTransactions)
}

func TestRunFullSyncReprocesses(t *testing.T) {
	st := inmemory.NewStore()
	var extractions int
	extractor := &mockExtractor{
		extractFn: func(ctx context.Context, msg *mail.RawMessage) (*extract.Extraction, error) {
			extractions++
			return &extract.Extraction{
				Transactions: []*domain.Transaction{stubTransaction("tx-"+msg.ID, "INR")},
			}, nil
		},
	}

	o := newTestOrchestrator(singleTxMail("m1"), extractor, st)
	_, err := o.Run(context.Background(), Options{})
	require.NoError(t, err)

	second, err := o.Run(context.Background(), Options{FullSync: true})
	require.NoError(t, err)
	assert.Equal(t, 2, extractions)
	assert.Equal(t, 0, second.Skipped)
	// Same candidate id upserts idempotently, so it is not new again.
	assert.Equal(t, 0, second.NewTransactions)
}

func TestRunCurrencyExclusion(t *testing.T) {
	st := inmemory.NewStore()
	extractor := &mockExtractor{
		extractFn: func(ctx context.Context, msg *mail.RawMessage) (*extract.Extraction, error) {
			return &extract.Extraction{
				Transactions: []*domain.Transaction{stubTransaction("tx-usd", "USD")},
			}, nil
		},
	}

	o := newTestOrchestrator(singleTxMail("m1"), extractor, st)
	result, err := o.Run(context.Background(), Options{Currency: "INR"})
	require.NoError(t, err)

	// Excluded, not failed; email still marked processed.
	assert.Equal(t, 0, result.NewTransactions)
	assert.Equal(t, 0, result.Failures)

	_, err = st.GetTransaction(context.Background(), "tx-usd")
	assert.ErrorIs(t, err, store.ErrNotFound)

	processed, err := st.IsEmailProcessed(context.Background(), "m1")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestRunFetchFailureLeavesEmailUnmarked(t *testing.T) {
	st := inmemory.NewStore()
	m := &mockMail{
		listFn: func(ctx context.Context, q mail.Query) ([]string, error) {
			return []string{"m1", "m2"}, nil
		},
		fetchFn: func(ctx context.Context, id string) (*mail.RawMessage, error) {
			if id == "m1" {
				return nil, fmt.Errorf("transient fetch error")
			}
			return stubMessage(id), nil
		},
	}
	extractor := &mockExtractor{
		extractFn: func(ctx context.Context, msg *mail.RawMessage) (*extract.Extraction, error) {
			return &extract.Extraction{}, nil
		},
	}

	o := newTestOrchestrator(m, extractor, st)
	result, err := o.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, result.State)
	assert.Equal(t, 1, result.Failures)
	assert.Equal(t, 2, result.Processed)

	// The failed fetch must be retried next sync.
	processed, err := st.IsEmailProcessed(context.Background(), "m1")
	require.NoError(t, err)
	assert.False(t, processed)

	processed, err = st.IsEmailProcessed(context.Background(), "m2")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestRunExtractionFailureMarksEmail(t *testing.T) {
	st := inmemory.NewStore()
	extractor := &mockExtractor{
		extractFn: func(ctx context.Context, msg *mail.RawMessage) (*extract.Extraction, error) {
			return nil, fmt.Errorf("malformed email")
		},
	}

	o := newTestOrchestrator(singleTxMail("m1"), extractor, st)
	result, err := o.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, result.State)
	assert.Equal(t, 1, result.Failures)

	// Marked despite the failure so it does not poison every future sync.
	processed, err := st.IsEmailProcessed(context.Background(), "m1")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestRunMailAccessFailureAbortsBatch(t *testing.T) {
	st := inmemory.NewStore()
	m := &mockMail{
		listFn: func(ctx context.Context, q mail.Query) ([]string, error) {
			return nil, fmt.Errorf("no stored credentials")
		},
	}
	extractor := &mockExtractor{
		extractFn: func(ctx context.Context, msg *mail.RawMessage) (*extract.Extraction, error) {
			return &extract.Extraction{}, nil
		},
	}

	o := newTestOrchestrator(m, extractor, st)
	result, err := o.Run(context.Background(), Options{})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMailAccess)
	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, StateFailed, o.State())

	// No last-sync metadata for a failed batch.
	last, err := LastSync(context.Background(), st)
	require.NoError(t, err)
	assert.True(t, last.IsZero())
}

func TestRunStoreUnavailableAbortsBatch(t *testing.T) {
	st := &flakyStore{Store: inmemory.NewStore(), markErr: store.ErrUnavailable}
	extractor := &mockExtractor{
		extractFn: func(ctx context.Context, msg *mail.RawMessage) (*extract.Extraction, error) {
			return &extract.Extraction{}, nil
		},
	}

	o := newTestOrchestrator(singleTxMail("m1", "m2"), extractor, st)
	result, err := o.Run(context.Background(), Options{})

	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.Equal(t, StateFailed, result.State)
}

func TestRunCancellationBetweenEmails(t *testing.T) {
	st := inmemory.NewStore()
	ctx, cancel := context.WithCancel(context.Background())

	extractor := &mockExtractor{
		extractFn: func(ctx context.Context, msg *mail.RawMessage) (*extract.Extraction, error) {
			return &extract.Extraction{
				Transactions: []*domain.Transaction{stubTransaction("tx-"+msg.ID, "INR")},
			}, nil
		},
	}

	o := newTestOrchestrator(singleTxMail("m1", "m2", "m3"), extractor, st)
	result, err := o.Run(ctx, Options{
		Observer: ProgressFunc(func(p Progress) {
			if p.Processed == 1 {
				cancel()
			}
		}),
	})
	require.NoError(t, err)

	assert.Equal(t, StateCancelled, result.State)
	assert.Equal(t, StateCancelled, o.State())
	assert.Equal(t, 1, result.Processed)

	// Rows written before cancellation stay intact.
	tx, err := st.GetTransaction(context.Background(), "tx-m1")
	require.NoError(t, err)
	assert.Equal(t, "tx-m1", tx.ID)

	processed, err := st.IsEmailProcessed(context.Background(), "m2")
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestRunSubscriptionUpsert(t *testing.T) {
	st := inmemory.NewStore()
	sub := &domain.Subscription{
		ID:           "sub-1",
		Name:         "Netflix",
		Amount:       decimal.NewFromInt(649),
		Currency:     "INR",
		BillingCycle: domain.BillingMonthly,
		Status:       domain.SubscriptionActive,
	}
	extractor := &mockExtractor{
		extractFn: func(ctx context.Context, msg *mail.RawMessage) (*extract.Extraction, error) {
			return &extract.Extraction{Subscription: sub}, nil
		},
	}

	o := newTestOrchestrator(singleTxMail("m1"), extractor, st)
	_, err := o.Run(context.Background(), Options{})
	require.NoError(t, err)

	subs, err := st.ListSubscriptions(context.Background())
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "Netflix", subs[0].Name)
}

func TestRunSubscriptionCurrencyFiltered(t *testing.T) {
	st := inmemory.NewStore()
	sub := &domain.Subscription{
		ID:       "sub-usd",
		Name:     "Vercel",
		Amount:   decimal.NewFromInt(20),
		Currency: "USD",
	}
	extractor := &mockExtractor{
		extractFn: func(ctx context.Context, msg *mail.RawMessage) (*extract.Extraction, error) {
			return &extract.Extraction{Subscription: sub}, nil
		},
	}

	o := newTestOrchestrator(singleTxMail("m1"), extractor, st)
	_, err := o.Run(context.Background(), Options{Currency: "INR"})
	require.NoError(t, err)

	subs, err := st.ListSubscriptions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestRunArchiverFailureIsNotFatal(t *testing.T) {
	st := inmemory.NewStore()
	extractor := &mockExtractor{
		extractFn: func(ctx context.Context, msg *mail.RawMessage) (*extract.Extraction, error) {
			return &extract.Extraction{}, nil
		},
	}
	archiver := &mockArchiver{err: errors.New("bucket gone")}

	o := NewOrchestrator(singleTxMail("m1"), extractor, st, reconcile.NewReconciler(st, reconcile.Config{}), archiver)
	result, err := o.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, result.State)
}

func TestRunUsesStoredCurrency(t *testing.T) {
	st := inmemory.NewStore()
	require.NoError(t, st.SetSetting(context.Background(), store.SettingUserCurrency, "USD"))

	extractor := &mockExtractor{
		extractFn: func(ctx context.Context, msg *mail.RawMessage) (*extract.Extraction, error) {
			return &extract.Extraction{
				Transactions: []*domain.Transaction{stubTransaction("tx-usd", "USD")},
			}, nil
		},
	}

	o := newTestOrchestrator(singleTxMail("m1"), extractor, st)
	result, err := o.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.NewTransactions)
}
