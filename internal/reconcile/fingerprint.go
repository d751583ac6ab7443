package reconcile

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sanchay-app/sanchay/internal/domain"
)

// Fingerprint derives a stable content hash from the economically relevant
// fields of a transaction. Two candidates that differ only in description
// whitespace or casing collide; the digest carries no time or random salt, so
// it is stable across process restarts.
func Fingerprint(tx *domain.Transaction) string {
	input := strings.Join([]string{
		tx.Date.String(),
		canonicalAmount(tx.Amount),
		NormalizeDescription(tx.Description),
		string(tx.Direction),
		strings.ToLower(strings.TrimSpace(tx.Source)),
	}, "|")

	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// canonicalAmount renders an amount with exactly two decimal places so that
// upstream values like 500, 500.0 and 500.00 hash identically.
func canonicalAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
