package extract

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/sanchay-app/sanchay/internal/domain"
	"github.com/sanchay-app/sanchay/internal/mail"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
		ok   bool
	}{
		{"rupee symbol", "You paid ₹450.00 to Swiggy", "450", true},
		{"rs prefix", "Rs. 1,250.50 debited from your account", "1250.5", true},
		{"inr prefix", "INR 99 charged for subscription", "99", true},
		{"dollar", "$12.99 charged for Netflix", "12.99", true},
		{"amount keyword", "Transaction amount: 3500.00", "3500", true},
		{"suffix form", "2,000 Rs transferred", "2000", true},
		{"no amount", "Your OTP is 482913", "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseAmount(tt.text)
			if ok != tt.ok {
				t.Fatalf("parseAmount(%q) ok = %v, want %v", tt.text, ok, tt.ok)
			}
			if !tt.ok {
				return
			}
			want, _ := decimal.NewFromString(tt.want)
			if !got.Equal(want) {
				t.Errorf("parseAmount(%q) = %s, want %s", tt.text, got, want)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	internal := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		text string
		want civil.Date
	}{
		{"slash format", "debited on 12/03/2024 at 10:00", civil.Date{Year: 2024, Month: 3, Day: 12}},
		{"month name", "paid on 5 Mar 2024", civil.Date{Year: 2024, Month: 3, Day: 5}},
		{"fallback to email date", "no date mentioned here", civil.Date{Year: 2024, Month: 3, Day: 15}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseDate(tt.text, internal)
			if got != tt.want {
				t.Errorf("parseDate(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestDetectDirection(t *testing.T) {
	tests := []struct {
		text string
		want domain.Direction
	}{
		{"Rs 500 credited to your account", domain.DirectionCredit},
		{"Refund of Rs 200 processed", domain.DirectionCredit},
		{"You spent $40 at Amazon", domain.DirectionDebit},
		{"Rs 100 debited via UPI", domain.DirectionDebit},
		{"Payment of Rs 99", domain.DirectionDebit}, // no keyword defaults to debit
	}
	for _, tt := range tests {
		if got := detectDirection(tt.text); got != tt.want {
			t.Errorf("detectDirection(%q) = %s, want %s", tt.text, got, tt.want)
		}
	}
}

func TestDetectCategory(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		merchant string
		want     string
	}{
		{"merchant keyword", "order confirmed", "Swiggy", "Food"},
		{"text keyword", "your uber ride receipt", "", "Transport"},
		{"salary", "salary for March deposited", "", "Salary"},
		{"refund", "refund processed for order", "", "Refund"},
		{"unknown", "payment received", "", "Other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := detectCategory(tt.text, tt.merchant)
			if got != tt.want {
				t.Errorf("detectCategory(%q, %q) = %q, want %q", tt.text, tt.merchant, got, tt.want)
			}
		})
	}
}

func TestPatternExtractorTransaction(t *testing.T) {
	e := NewPatternExtractor()
	msg := &mail.RawMessage{
		ID:           "msg-001",
		From:         "alerts@hdfcbank.net",
		Subject:      "Rs 450.00 debited from your account",
		Snippet:      "UPI payment to Swiggy",
		Body:         "Rs 450.00 debited on 12/03/2024 for UPI payment to swiggy bangalore",
		InternalDate: time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC),
	}

	got, err := e.Extract(context.Background(), msg)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(got.Transactions) != 1 {
		t.Fatalf("Extract returned %d transactions, want 1", len(got.Transactions))
	}

	tx := got.Transactions[0]
	if !tx.Amount.Equal(decimal.NewFromInt(450)) {
		t.Errorf("Amount = %s, want 450", tx.Amount)
	}
	if tx.Direction != domain.DirectionDebit {
		t.Errorf("Direction = %s, want debit", tx.Direction)
	}
	if tx.Date != (civil.Date{Year: 2024, Month: 3, Day: 12}) {
		t.Errorf("Date = %v, want 2024-03-12", tx.Date)
	}
	if tx.Category != "Food" {
		t.Errorf("Category = %q, want Food", tx.Category)
	}
	if tx.Source != "hdfcbank" {
		t.Errorf("Source = %q, want hdfcbank", tx.Source)
	}
	if tx.Currency != "INR" {
		t.Errorf("Currency = %q, want INR", tx.Currency)
	}
	if tx.EmailID != "msg-001" {
		t.Errorf("EmailID = %q, want msg-001", tx.EmailID)
	}
	if tx.ID == "" {
		t.Error("ID is empty")
	}
}

func TestPatternExtractorNonFinancial(t *testing.T) {
	e := NewPatternExtractor()
	msg := &mail.RawMessage{
		ID:      "msg-002",
		From:    "newsletter@medium.com",
		Subject: "Your weekly digest",
		Body:    "Here are the top stories this week",
	}

	got, err := e.Extract(context.Background(), msg)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(got.Transactions) != 0 {
		t.Errorf("Extract returned %d transactions, want 0", len(got.Transactions))
	}
	if got.Subscription != nil {
		t.Error("Extract returned a subscription for a non-financial email")
	}
}

func TestPatternExtractorKnownSubscription(t *testing.T) {
	e := NewPatternExtractor()
	msg := &mail.RawMessage{
		ID:           "msg-003",
		From:         "info@mailer.netflix.com",
		Subject:      "Your Netflix payment",
		Body:         "Rs 649.00 charged for your Netflix membership",
		InternalDate: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
	}

	got, err := e.Extract(context.Background(), msg)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Subscription == nil {
		t.Fatal("Extract returned no subscription")
	}
	if got.Subscription.Name != "Netflix" {
		t.Errorf("Subscription.Name = %q, want Netflix", got.Subscription.Name)
	}
	if got.Subscription.BillingCycle != domain.BillingMonthly {
		t.Errorf("BillingCycle = %s, want monthly", got.Subscription.BillingCycle)
	}
	if !got.Subscription.Amount.Equal(decimal.NewFromInt(649)) {
		t.Errorf("Amount = %s, want 649", got.Subscription.Amount)
	}
}

func TestPatternExtractorGenericSubscription(t *testing.T) {
	e := NewPatternExtractor()
	msg := &mail.RawMessage{
		ID:           "msg-004",
		From:         "billing@acmetool.io",
		Subject:      "Subscription renewal receipt",
		Body:         "Your recurring payment of $15.00 was processed",
		InternalDate: time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC),
	}

	got, err := e.Extract(context.Background(), msg)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Subscription == nil {
		t.Fatal("Extract returned no subscription")
	}
	if got.Subscription.Name != "Acmetool" {
		t.Errorf("Subscription.Name = %q, want Acmetool", got.Subscription.Name)
	}
}

func TestTransactionIDDeterministic(t *testing.T) {
	date := civil.Date{Year: 2024, Month: 3, Day: 12}
	a := transactionID("msg-1", decimal.NewFromInt(450), date)
	b := transactionID("msg-1", decimal.NewFromInt(450), date)
	if a != b {
		t.Errorf("transactionID not deterministic: %q vs %q", a, b)
	}
	c := transactionID("msg-2", decimal.NewFromInt(450), date)
	if a == c {
		t.Error("transactionID collides across different emails")
	}
}
