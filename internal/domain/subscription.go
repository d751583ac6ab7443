package domain

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// BillingCycle is how often a subscription renews.
type BillingCycle string

const (
	BillingMonthly   BillingCycle = "monthly"
	BillingYearly    BillingCycle = "yearly"
	BillingWeekly    BillingCycle = "weekly"
	BillingQuarterly BillingCycle = "quarterly"
)

// SubscriptionStatus tracks whether a subscription is still being billed.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionPaused    SubscriptionStatus = "paused"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

// Subscription is a recurring payment detected from a billing email.
// At most one is extracted per email; re-detection upserts by ID.
type Subscription struct {
	ID              string
	Name            string
	Amount          decimal.Decimal
	Currency        string
	BillingCycle    BillingCycle
	NextBillingDate civil.Date // zero value when the email did not state one
	Category        string
	Status          SubscriptionStatus
	EmailID         string
	LastDetected    time.Time
}
