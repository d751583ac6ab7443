// Package extract turns raw emails into candidate transactions. Two
// interchangeable implementations satisfy the Extractor contract: a
// deterministic pattern matcher and a Gemini-backed parser. Which one runs is
// a configuration choice made by the caller.
package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/sanchay-app/sanchay/internal/domain"
	"github.com/sanchay-app/sanchay/internal/mail"
)

// Extraction is what one email yields: zero or more candidate transactions
// and at most one subscription.
type Extraction struct {
	Transactions []*domain.Transaction
	Subscription *domain.Subscription
}

// Extractor parses a fetched email into candidates. Implementations own
// their retry/timeout policy and must return within a bounded time.
type Extractor interface {
	Extract(ctx context.Context, msg *mail.RawMessage) (*Extraction, error)
}

// transactionID derives a stable id from the email and the extracted
// amount/date, so re-extracting the same email reproduces the same id and
// persistence converges instead of duplicating.
func transactionID(emailID string, amount decimal.Decimal, date civil.Date) string {
	return contentID(fmt.Sprintf("%s-%s-%s", emailID, amount.String(), date.String()))
}

// subscriptionID derives a stable id from the service name and amount, so a
// renewal email next month updates the same subscription row.
func subscriptionID(name string, amount decimal.Decimal) string {
	return contentID(fmt.Sprintf("%s-%s", name, amount.String()))
}

func contentID(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:16]
}
