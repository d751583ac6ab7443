package bigquery

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/sanchay-app/sanchay/internal/domain"
	"github.com/sanchay-app/sanchay/internal/store"
)

const (
	transactionsTable    = "transactions"
	subscriptionsTable   = "subscriptions"
	processedEmailsTable = "processed_emails"
	settingsTable        = "settings"
)

const transactionColumns = `
	transaction_id,
	transaction_date,
	amount,
	description,
	direction,
	currency,
	category,
	source,
	merchant,
	email_id,
	fingerprint,
	is_duplicate,
	reverses,
	reversed_by,
	raw_metadata,
	created_ts`

// Store implements store.Store on BigQuery tables. All failures are wrapped
// in store.ErrUnavailable: a broken BigQuery connection is batch-fatal, not
// a per-row condition.
type Store struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// NewStore creates a store with its own BigQuery client.
func NewStore(ctx context.Context, projectID, datasetID string, opts ...option.ClientOption) (*Store, error) {
	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewStore: bigquery client: %w", err)
	}
	return NewStoreWithClient(client, projectID, datasetID), nil
}

// NewStoreWithClient wraps an existing BigQuery client.
func NewStoreWithClient(client *bigquery.Client, projectID, datasetID string) *Store {
	return &Store{
		client:    client,
		projectID: projectID,
		datasetID: datasetID,
	}
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", s.projectID, s.datasetID, name)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, store.ErrUnavailable, err)
}

// UpsertTransaction implements store.Ledger with a MERGE. The reversed_by
// column is append-only: an incoming NULL keeps whatever link the stored row
// carries, and created_ts survives replacement.
func (s *Store) UpsertTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx.ID == "" {
		return fmt.Errorf("UpsertTransaction: id is required")
	}

	row := transactionToRow(tx)

	var rawMetadata bigquery.NullString
	if len(tx.RawMetadata) > 0 {
		encoded, err := json.Marshal(tx.RawMetadata)
		if err != nil {
			return fmt.Errorf("UpsertTransaction: encoding metadata: %w", err)
		}
		rawMetadata = nullStr(string(encoded))
	}

	q := s.client.Query(fmt.Sprintf(`
		MERGE %s T
		USING (SELECT @transaction_id AS transaction_id) S
		ON T.transaction_id = S.transaction_id
		WHEN MATCHED THEN UPDATE SET
			transaction_date = @transaction_date,
			amount = @amount,
			description = @description,
			direction = @direction,
			currency = @currency,
			category = @category,
			source = @source,
			merchant = @merchant,
			email_id = @email_id,
			fingerprint = @fingerprint,
			is_duplicate = @is_duplicate,
			reverses = @reverses,
			reversed_by = IF(@reversed_by IS NULL, T.reversed_by, @reversed_by),
			raw_metadata = SAFE.PARSE_JSON(@raw_metadata)
		WHEN NOT MATCHED THEN INSERT (%s)
		VALUES (
			@transaction_id,
			@transaction_date,
			@amount,
			@description,
			@direction,
			@currency,
			@category,
			@source,
			@merchant,
			@email_id,
			@fingerprint,
			@is_duplicate,
			@reverses,
			@reversed_by,
			SAFE.PARSE_JSON(@raw_metadata),
			@created_ts
		)
	`, s.table(transactionsTable), transactionColumns))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "transaction_id", Value: row.TransactionID},
		{Name: "transaction_date", Value: row.TransactionDate},
		{Name: "amount", Value: row.Amount},
		{Name: "description", Value: row.Description},
		{Name: "direction", Value: row.Direction},
		{Name: "currency", Value: row.Currency},
		{Name: "category", Value: row.Category},
		{Name: "source", Value: row.Source},
		{Name: "merchant", Value: row.Merchant},
		{Name: "email_id", Value: row.EmailID},
		{Name: "fingerprint", Value: row.Fingerprint},
		{Name: "is_duplicate", Value: row.IsDuplicate},
		{Name: "reverses", Value: row.Reverses},
		{Name: "reversed_by", Value: row.ReversedBy},
		{Name: "raw_metadata", Value: rawMetadata},
		{Name: "created_ts", Value: row.CreatedTS},
	}

	if _, err := s.runDML(ctx, q); err != nil {
		return unavailable("UpsertTransaction", err)
	}
	return nil
}

// GetTransaction implements store.Ledger.
func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE transaction_id = @transaction_id
		LIMIT 1
	`, transactionColumns, s.table(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "transaction_id", Value: id},
	}

	rows, err := s.queryTransactions(ctx, q)
	if err != nil {
		return nil, unavailable("GetTransaction", err)
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return rows[0], nil
}

// FindByFingerprint implements store.Ledger.
func (s *Store) FindByFingerprint(ctx context.Context, fingerprint, excludeID string) (*domain.Transaction, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE fingerprint = @fingerprint
		  AND transaction_id != @exclude_id
		LIMIT 1
	`, transactionColumns, s.table(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "fingerprint", Value: fingerprint},
		{Name: "exclude_id", Value: excludeID},
	}

	rows, err := s.queryTransactions(ctx, q)
	if err != nil {
		return nil, unavailable("FindByFingerprint", err)
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return rows[0], nil
}

// ListSameDay implements store.Ledger.
func (s *Store) ListSameDay(ctx context.Context, date civil.Date, amount decimal.Decimal, direction domain.Direction, excludeID string) ([]*domain.Transaction, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE transaction_date = @transaction_date
		  AND amount = @amount
		  AND direction = @direction
		  AND transaction_id != @exclude_id
		  AND is_duplicate = FALSE
		ORDER BY created_ts DESC
	`, transactionColumns, s.table(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "transaction_date", Value: date},
		{Name: "amount", Value: amount.Rat()},
		{Name: "direction", Value: string(direction)},
		{Name: "exclude_id", Value: excludeID},
	}

	rows, err := s.queryTransactions(ctx, q)
	if err != nil {
		return nil, unavailable("ListSameDay", err)
	}
	return rows, nil
}

// ListUnreversedDebits implements store.Ledger.
func (s *Store) ListUnreversedDebits(ctx context.Context, amount decimal.Decimal, from, to civil.Date, limit int) ([]*domain.Transaction, error) {
	if limit <= 0 {
		limit = 5
	}
	q := s.client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE direction = 'debit'
		  AND amount = @amount
		  AND reversed_by IS NULL
		  AND is_duplicate = FALSE
		  AND transaction_date BETWEEN @from_date AND @to_date
		ORDER BY transaction_date DESC, created_ts DESC
		LIMIT %d
	`, transactionColumns, s.table(transactionsTable), limit))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "amount", Value: amount.Rat()},
		{Name: "from_date", Value: from},
		{Name: "to_date", Value: to},
	}

	rows, err := s.queryTransactions(ctx, q)
	if err != nil {
		return nil, unavailable("ListUnreversedDebits", err)
	}
	return rows, nil
}

// MarkReversed implements store.Ledger. The guard in the WHERE clause makes
// the link first-writer-wins; re-applying the same link still counts as an
// affected row, which keeps the operation idempotent.
func (s *Store) MarkReversed(ctx context.Context, originalID, reversalID string) (bool, error) {
	if originalID == reversalID {
		return false, fmt.Errorf("MarkReversed: self-link %s", originalID)
	}

	q := s.client.Query(fmt.Sprintf(`
		UPDATE %s
		SET reversed_by = @reversal_id
		WHERE transaction_id = @original_id
		  AND (reversed_by IS NULL OR reversed_by = @reversal_id)
	`, s.table(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "reversal_id", Value: reversalID},
		{Name: "original_id", Value: originalID},
	}

	affected, err := s.runDML(ctx, q)
	if err != nil {
		return false, unavailable("MarkReversed", err)
	}
	return affected > 0, nil
}

// ListRecent implements store.Ledger.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]*domain.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	q := s.client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		ORDER BY transaction_date DESC, created_ts DESC
		LIMIT %d
	`, transactionColumns, s.table(transactionsTable), limit))

	rows, err := s.queryTransactions(ctx, q)
	if err != nil {
		return nil, unavailable("ListRecent", err)
	}
	return rows, nil
}

// Totals implements store.Ledger. Duplicate-flagged rows never contribute.
func (s *Store) Totals(ctx context.Context) (store.Totals, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT direction, SUM(amount) AS total
		FROM %s
		WHERE is_duplicate = FALSE
		GROUP BY direction
	`, s.table(transactionsTable)))

	it, err := q.Read(ctx)
	if err != nil {
		return store.Totals{}, unavailable("Totals", err)
	}

	totals := store.Totals{
		Income:  decimal.Zero,
		Expense: decimal.Zero,
	}
	for {
		var r totalsRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return store.Totals{}, unavailable("Totals", err)
		}
		switch domain.Direction(r.Direction) {
		case domain.DirectionCredit:
			totals.Income = ratToDecimal(r.Total)
		case domain.DirectionDebit:
			totals.Expense = ratToDecimal(r.Total)
		}
	}
	return totals, nil
}

// UpsertSubscription implements store.Subscriptions.
func (s *Store) UpsertSubscription(ctx context.Context, sub *domain.Subscription) error {
	if sub.ID == "" {
		return fmt.Errorf("UpsertSubscription: id is required")
	}

	row := subscriptionToRow(sub)

	q := s.client.Query(fmt.Sprintf(`
		MERGE %s T
		USING (SELECT @subscription_id AS subscription_id) S
		ON T.subscription_id = S.subscription_id
		WHEN MATCHED THEN UPDATE SET
			name = @name,
			amount = @amount,
			currency = @currency,
			billing_cycle = @billing_cycle,
			next_billing_date = @next_billing_date,
			category = @category,
			status = @status,
			email_id = @email_id,
			last_detected = @last_detected
		WHEN NOT MATCHED THEN INSERT (
			subscription_id, name, amount, currency, billing_cycle,
			next_billing_date, category, status, email_id, last_detected
		)
		VALUES (
			@subscription_id, @name, @amount, @currency, @billing_cycle,
			@next_billing_date, @category, @status, @email_id, @last_detected
		)
	`, s.table(subscriptionsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "subscription_id", Value: row.SubscriptionID},
		{Name: "name", Value: row.Name},
		{Name: "amount", Value: row.Amount},
		{Name: "currency", Value: row.Currency},
		{Name: "billing_cycle", Value: row.BillingCycle},
		{Name: "next_billing_date", Value: row.NextBillingDate},
		{Name: "category", Value: row.Category},
		{Name: "status", Value: row.Status},
		{Name: "email_id", Value: row.EmailID},
		{Name: "last_detected", Value: row.LastDetected},
	}

	if _, err := s.runDML(ctx, q); err != nil {
		return unavailable("UpsertSubscription", err)
	}
	return nil
}

// ListSubscriptions implements store.Subscriptions.
func (s *Store) ListSubscriptions(ctx context.Context) ([]*domain.Subscription, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT
			subscription_id, name, amount, currency, billing_cycle,
			next_billing_date, category, status, email_id, last_detected
		FROM %s
		ORDER BY name
	`, s.table(subscriptionsTable)))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, unavailable("ListSubscriptions", err)
	}

	var subs []*domain.Subscription
	for {
		var r SubscriptionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, unavailable("ListSubscriptions", err)
		}
		subs = append(subs, rowToSubscription(&r))
	}
	return subs, nil
}

// IsEmailProcessed implements store.ProcessedEmails.
func (s *Store) IsEmailProcessed(ctx context.Context, emailID string) (bool, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT COUNT(*) AS n
		FROM %s
		WHERE email_id = @email_id
	`, s.table(processedEmailsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "email_id", Value: emailID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return false, unavailable("IsEmailProcessed", err)
	}

	var r struct {
		N int64 `bigquery:"n"`
	}
	if err := it.Next(&r); err != nil && err != iterator.Done {
		return false, unavailable("IsEmailProcessed", err)
	}
	return r.N > 0, nil
}

// MarkEmailProcessed implements store.ProcessedEmails. Insert-only: an
// existing marker keeps its original timestamp.
func (s *Store) MarkEmailProcessed(ctx context.Context, emailID string, processedAt time.Time) error {
	if emailID == "" {
		return fmt.Errorf("MarkEmailProcessed: email id is required")
	}

	q := s.client.Query(fmt.Sprintf(`
		MERGE %s T
		USING (SELECT @email_id AS email_id) S
		ON T.email_id = S.email_id
		WHEN NOT MATCHED THEN INSERT (email_id, processed_ts)
		VALUES (@email_id, @processed_ts)
	`, s.table(processedEmailsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "email_id", Value: emailID},
		{Name: "processed_ts", Value: processedAt},
	}

	if _, err := s.runDML(ctx, q); err != nil {
		return unavailable("MarkEmailProcessed", err)
	}
	return nil
}

// GetSetting implements store.Settings.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT key, value
		FROM %s
		WHERE key = @key
		LIMIT 1
	`, s.table(settingsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "key", Value: key},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return "", unavailable("GetSetting", err)
	}

	var r SettingRow
	if err := it.Next(&r); err != nil {
		if err == iterator.Done {
			return "", store.ErrNotFound
		}
		return "", unavailable("GetSetting", err)
	}
	return r.Value, nil
}

// SetSetting implements store.Settings.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	q := s.client.Query(fmt.Sprintf(`
		MERGE %s T
		USING (SELECT @key AS key) S
		ON T.key = S.key
		WHEN MATCHED THEN UPDATE SET value = @value
		WHEN NOT MATCHED THEN INSERT (key, value) VALUES (@key, @value)
	`, s.table(settingsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "key", Value: key},
		{Name: "value", Value: value},
	}

	if _, err := s.runDML(ctx, q); err != nil {
		return unavailable("SetSetting", err)
	}
	return nil
}

type totalsRow struct {
	Direction string   `bigquery:"direction"`
	Total     *big.Rat `bigquery:"total"`
}

func (s *Store) queryTransactions(ctx context.Context, q *bigquery.Query) ([]*domain.Transaction, error) {
	it, err := q.Read(ctx)
	if err != nil {
		return nil, err
	}

	var txs []*domain.Transaction
	for {
		var r TransactionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		txs = append(txs, rowToTransaction(&r))
	}
	return txs, nil
}

func (s *Store) runDML(ctx context.Context, q *bigquery.Query) (int64, error) {
	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("job error: %w", err)
	}
	if stats, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
		return stats.NumDMLAffectedRows, nil
	}
	return 0, nil
}

// Ensure Store implements the full store contract.
var _ store.Store = (*Store)(nil)
