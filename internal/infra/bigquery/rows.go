// Package bigquery implements store.Store on top of BigQuery tables. The
// in-memory store covers tests and local runs; this one is the durable
// backend.
package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/sanchay-app/sanchay/internal/domain"
)

// TransactionRow mirrors the <dataset>.transactions schema.
type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED

	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED
	Amount          *big.Rat   `bigquery:"amount"`           // REQUIRED NUMERIC
	Description     string     `bigquery:"description"`      // REQUIRED
	Direction       string     `bigquery:"direction"`        // REQUIRED
	Currency        string     `bigquery:"currency"`         // REQUIRED

	Category bigquery.NullString `bigquery:"category"` // NULLABLE
	Source   bigquery.NullString `bigquery:"source"`   // NULLABLE
	Merchant bigquery.NullString `bigquery:"merchant"` // NULLABLE
	EmailID  bigquery.NullString `bigquery:"email_id"` // NULLABLE

	Fingerprint bigquery.NullString `bigquery:"fingerprint"`  // NULLABLE
	IsDuplicate bool                `bigquery:"is_duplicate"` // REQUIRED, default false
	Reverses    bigquery.NullString `bigquery:"reverses"`     // NULLABLE
	ReversedBy  bigquery.NullString `bigquery:"reversed_by"`  // NULLABLE

	RawMetadata bigquery.NullJSON `bigquery:"raw_metadata"` // NULLABLE JSON

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}

// SubscriptionRow mirrors the <dataset>.subscriptions schema.
type SubscriptionRow struct {
	SubscriptionID string   `bigquery:"subscription_id"` // REQUIRED
	Name           string   `bigquery:"name"`            // REQUIRED
	Amount         *big.Rat `bigquery:"amount"`          // REQUIRED NUMERIC
	Currency       string   `bigquery:"currency"`        // REQUIRED
	BillingCycle   string   `bigquery:"billing_cycle"`   // REQUIRED

	NextBillingDate bigquery.NullDate   `bigquery:"next_billing_date"` // NULLABLE
	Category        bigquery.NullString `bigquery:"category"`          // NULLABLE
	Status          string              `bigquery:"status"`            // REQUIRED
	EmailID         bigquery.NullString `bigquery:"email_id"`          // NULLABLE

	LastDetected time.Time `bigquery:"last_detected"` // REQUIRED
}

// ProcessedEmailRow mirrors the <dataset>.processed_emails schema.
type ProcessedEmailRow struct {
	EmailID     string    `bigquery:"email_id"`     // REQUIRED, unique
	ProcessedTS time.Time `bigquery:"processed_ts"` // REQUIRED
}

// SettingRow mirrors the <dataset>.settings schema.
type SettingRow struct {
	Key   string `bigquery:"key"` // REQUIRED, unique
	Value string `bigquery:"value"`
}

func nullStr(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

func transactionToRow(tx *domain.Transaction) *TransactionRow {
	row := &TransactionRow{
		TransactionID:   tx.ID,
		TransactionDate: tx.Date,
		Amount:          tx.Amount.Rat(),
		Description:     tx.Description,
		Direction:       string(tx.Direction),
		Currency:        tx.Currency,
		Category:        nullStr(tx.Category),
		Source:          nullStr(tx.Source),
		Merchant:        nullStr(tx.Merchant),
		EmailID:         nullStr(tx.EmailID),
		Fingerprint:     nullStr(tx.Fingerprint),
		IsDuplicate:     tx.IsDuplicate,
		Reverses:        nullStr(tx.Reverses),
		ReversedBy:      nullStr(tx.ReversedBy),
		CreatedTS:       tx.CreatedAt,
	}
	if len(tx.RawMetadata) > 0 {
		row.RawMetadata = bigquery.NullJSON{JSONVal: tx.RawMetadata, Valid: true}
	}
	return row
}

func rowToTransaction(row *TransactionRow) *domain.Transaction {
	tx := &domain.Transaction{
		ID:          row.TransactionID,
		Date:        row.TransactionDate,
		Amount:      ratToDecimal(row.Amount),
		Description: row.Description,
		Category:    row.Category.StringVal,
		Direction:   domain.Direction(row.Direction),
		Source:      row.Source.StringVal,
		Merchant:    row.Merchant.StringVal,
		Currency:    row.Currency,
		EmailID:     row.EmailID.StringVal,
		Fingerprint: row.Fingerprint.StringVal,
		IsDuplicate: row.IsDuplicate,
		Reverses:    row.Reverses.StringVal,
		ReversedBy:  row.ReversedBy.StringVal,
		CreatedAt:   row.CreatedTS,
	}
	if row.RawMetadata.Valid {
		if m, ok := row.RawMetadata.JSONVal.(map[string]interface{}); ok {
			tx.RawMetadata = make(map[string]string, len(m))
			for k, v := range m {
				if s, ok := v.(string); ok {
					tx.RawMetadata[k] = s
				}
			}
		}
	}
	return tx
}

func subscriptionToRow(sub *domain.Subscription) *SubscriptionRow {
	row := &SubscriptionRow{
		SubscriptionID: sub.ID,
		Name:           sub.Name,
		Amount:         sub.Amount.Rat(),
		Currency:       sub.Currency,
		BillingCycle:   string(sub.BillingCycle),
		Category:       nullStr(sub.Category),
		Status:         string(sub.Status),
		EmailID:        nullStr(sub.EmailID),
		LastDetected:   sub.LastDetected,
	}
	if sub.NextBillingDate.IsValid() {
		row.NextBillingDate = bigquery.NullDate{Date: sub.NextBillingDate, Valid: true}
	}
	return row
}

func rowToSubscription(row *SubscriptionRow) *domain.Subscription {
	sub := &domain.Subscription{
		ID:           row.SubscriptionID,
		Name:         row.Name,
		Amount:       ratToDecimal(row.Amount),
		Currency:     row.Currency,
		BillingCycle: domain.BillingCycle(row.BillingCycle),
		Category:     row.Category.StringVal,
		Status:       domain.SubscriptionStatus(row.Status),
		EmailID:      row.EmailID.StringVal,
		LastDetected: row.LastDetected,
	}
	if row.NextBillingDate.Valid {
		sub.NextBillingDate = row.NextBillingDate.Date
	}
	return sub
}

func ratToDecimal(r *big.Rat) decimal.Decimal {
	if r == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigRat(r, 2)
}
