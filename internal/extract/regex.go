package extract

import (
	"context"
	"regexp"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/sanchay-app/sanchay/internal/domain"
	"github.com/sanchay-app/sanchay/internal/mail"
)

// PatternExtractor extracts candidate transactions with deterministic text
// heuristics, no network calls. It errs on the side of silence: an email
// without a recognizable amount yields an empty extraction, never an error.
type PatternExtractor struct{}

// NewPatternExtractor creates the regex-based extractor.
func NewPatternExtractor() *PatternExtractor {
	return &PatternExtractor{}
}

var amountPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:Rs\.?|INR|₹)\s*([\d,]+(?:\.\d{2})?)`),
	regexp.MustCompile(`(?i)(?:\$|USD)\s*([\d,]+(?:\.\d{2})?)`),
	regexp.MustCompile(`(?i)([\d,]+(?:\.\d{2})?)\s*(?:Rs\.?|INR|₹)`),
	regexp.MustCompile(`(?i)amount[:\s]*(?:Rs\.?|INR|₹)?\s*([\d,]+(?:\.\d{2})?)`),
	regexp.MustCompile(`(?i)debited[:\s]*(?:Rs\.?|INR|₹)?\s*([\d,]+(?:\.\d{2})?)`),
	regexp.MustCompile(`(?i)credited[:\s]*(?:Rs\.?|INR|₹)?\s*([\d,]+(?:\.\d{2})?)`),
	regexp.MustCompile(`(?i)paid[:\s]*(?:Rs\.?|INR|₹)?\s*([\d,]+(?:\.\d{2})?)`),
}

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\d{1,2}[-/]\d{1,2}[-/]\d{2,4})`),
	regexp.MustCompile(`(?i)(\d{1,2}\s+(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\s+\d{2,4})`),
	regexp.MustCompile(`(?i)(?:on|dated?)\s+(\d{1,2}[-/]\d{1,2}[-/]\d{2,4})`),
}

var dateLayouts = []string{
	"2/1/2006", "2/1/06", "2-1-2006", "2-1-06",
	"2 Jan 2006", "2 Jan 06", "2 January 2006",
}

var creditKeywords = []string{"credited", "received", "refund", "cashback", "salary", "deposit", "added"}
var debitKeywords = []string{"debited", "spent", "paid", "charged", "withdrawn", "deducted", "purchase"}

// merchantCategories maps merchant keywords to spending categories. Order
// matters: the first keyword found in the text wins.
var merchantCategories = []struct {
	keyword  string
	category string
}{
	{"swiggy", "Food"}, {"zomato", "Food"}, {"dominos", "Food"},
	{"starbucks", "Food"}, {"uber eats", "Food"}, {"blinkit", "Food"},
	{"zepto", "Food"}, {"bigbasket", "Groceries"},
	{"amazon", "Shopping"}, {"flipkart", "Shopping"}, {"myntra", "Shopping"},
	{"nykaa", "Shopping"}, {"ajio", "Shopping"},
	{"uber", "Transport"}, {"ola", "Transport"}, {"rapido", "Transport"},
	{"irctc", "Transport"},
	{"makemytrip", "Travel"}, {"goibibo", "Travel"}, {"cleartrip", "Travel"},
	{"airbnb", "Travel"}, {"oyo", "Travel"},
	{"paytm", "Bills"}, {"phonepe", "Bills"}, {"google pay", "Bills"},
	{"electricity", "Utilities"}, {"water", "Utilities"},
	{"airtel", "Telecom"}, {"jio", "Telecom"}, {"vodafone", "Telecom"},
	{"zerodha", "Investment"}, {"groww", "Investment"}, {"upstox", "Investment"},
	{"mutual fund", "Investment"}, {"sip", "Investment"},
	{"emi", "EMI"}, {"loan", "EMI"},
	{"insurance", "Insurance"}, {"lic", "Insurance"},
	{"salary", "Salary"}, {"credited", "Salary"},
}

// subscriptionServices are known recurring services detectable by name.
var subscriptionServices = []struct {
	keyword  string
	name     string
	category string
	cycle    domain.BillingCycle
}{
	{"netflix", "Netflix", "Entertainment", domain.BillingMonthly},
	{"spotify", "Spotify", "Entertainment", domain.BillingMonthly},
	{"amazon prime", "Amazon Prime", "Shopping", domain.BillingYearly},
	{"chatgpt", "ChatGPT Plus", "Productivity", domain.BillingMonthly},
	{"openai", "OpenAI", "Productivity", domain.BillingMonthly},
	{"youtube premium", "YouTube Premium", "Entertainment", domain.BillingMonthly},
	{"hotstar", "Disney+ Hotstar", "Entertainment", domain.BillingMonthly},
	{"aws", "AWS", "Cloud Services", domain.BillingMonthly},
	{"google workspace", "Google Workspace", "Productivity", domain.BillingMonthly},
	{"microsoft 365", "Microsoft 365", "Productivity", domain.BillingMonthly},
	{"dropbox", "Dropbox", "Productivity", domain.BillingMonthly},
	{"notion", "Notion", "Productivity", domain.BillingMonthly},
	{"figma", "Figma", "Design", domain.BillingMonthly},
	{"github", "GitHub", "Development", domain.BillingMonthly},
	{"vercel", "Vercel", "Cloud Services", domain.BillingMonthly},
	{"swiggy one", "Swiggy One", "Food", domain.BillingMonthly},
	{"zomato pro", "Zomato Pro", "Food", domain.BillingMonthly},
}

var sourceRe = regexp.MustCompile(`@([^.>]+)`)
var billingSenderRe = regexp.MustCompile(`(?i)(?:noreply@|support@|billing@)([^.]+)`)

// Extract implements Extractor.
func (e *PatternExtractor) Extract(ctx context.Context, msg *mail.RawMessage) (*Extraction, error) {
	result := &Extraction{}

	fullText := strings.TrimSpace(msg.Subject + " " + msg.Body)

	amount, ok := parseAmount(fullText)
	if !ok || amount.LessThan(decimal.NewFromInt(1)) {
		return result, nil
	}

	date := parseDate(fullText, msg.InternalDate)
	direction := detectDirection(fullText)
	merchant := detectMerchant(fullText, msg.From)
	category := detectCategory(fullText, merchant)
	currency := detectCurrency(fullText)

	if sub := detectSubscription(fullText, msg.From, amount); sub != nil {
		sub.EmailID = msg.ID
		result.Subscription = sub
	}

	description := msg.Subject
	if len(description) > 200 {
		description = description[:200]
	}

	tx := &domain.Transaction{
		ID:          transactionID(msg.ID, amount, date),
		Date:        date,
		Amount:      amount,
		Description: description,
		Category:    category,
		Direction:   direction,
		Source:      detectSource(msg.From),
		Merchant:    merchant,
		Currency:    currency,
		EmailID:     msg.ID,
		RawMetadata: map[string]string{
			"from":    msg.From,
			"subject": msg.Subject,
			"snippet": msg.Snippet,
		},
	}
	result.Transactions = append(result.Transactions, tx)

	return result, nil
}

func parseAmount(text string) (decimal.Decimal, bool) {
	for _, pattern := range amountPatterns {
		m := pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		raw := strings.ReplaceAll(m[1], ",", "")
		amount, err := decimal.NewFromString(raw)
		if err == nil && amount.IsPositive() {
			return amount, true
		}
	}
	return decimal.Zero, false
}

func parseDate(text string, internalDate time.Time) civil.Date {
	for _, pattern := range datePatterns {
		m := pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, m[1]); err == nil {
				return civil.DateOf(t)
			}
		}
	}

	if !internalDate.IsZero() {
		return civil.DateOf(internalDate)
	}
	return civil.DateOf(time.Now().UTC())
}

func detectDirection(text string) domain.Direction {
	lower := strings.ToLower(text)
	for _, kw := range creditKeywords {
		if strings.Contains(lower, kw) {
			return domain.DirectionCredit
		}
	}
	for _, kw := range debitKeywords {
		if strings.Contains(lower, kw) {
			return domain.DirectionDebit
		}
	}
	// An amount with no clear indicator is most often a charge.
	return domain.DirectionDebit
}

func detectMerchant(text, from string) string {
	combined := strings.ToLower(from + " " + text)
	for _, mc := range merchantCategories {
		if strings.Contains(combined, mc.keyword) {
			return strings.ToUpper(mc.keyword[:1]) + mc.keyword[1:]
		}
	}
	return ""
}

func detectCategory(text, merchant string) string {
	if merchant != "" {
		lowerMerchant := strings.ToLower(merchant)
		for _, mc := range merchantCategories {
			if strings.Contains(lowerMerchant, mc.keyword) {
				return mc.category
			}
		}
	}

	lower := strings.ToLower(text)
	for _, mc := range merchantCategories {
		if strings.Contains(lower, mc.keyword) {
			return mc.category
		}
	}

	switch {
	case strings.Contains(lower, "salary"), strings.Contains(lower, "credited to your account"):
		return "Salary"
	case strings.Contains(lower, "refund"):
		return "Refund"
	case strings.Contains(lower, "cashback"):
		return "Cashback"
	case strings.Contains(lower, "dividend"):
		return "Investment"
	case strings.Contains(lower, "interest"):
		return "Interest"
	case strings.Contains(lower, "atm"), strings.Contains(lower, "cash withdrawal"):
		return "Cash"
	case strings.Contains(lower, "transfer"):
		return "Transfer"
	}
	return "Other"
}

func detectCurrency(text string) string {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "$") || strings.Contains(lower, "usd") {
		return "USD"
	}
	return "INR"
}

func detectSource(from string) string {
	if m := sourceRe.FindStringSubmatch(from); m != nil {
		return m[1]
	}
	return "Unknown"
}

func detectSubscription(text, from string, amount decimal.Decimal) *domain.Subscription {
	combined := strings.ToLower(from + " " + text)

	for _, svc := range subscriptionServices {
		if !strings.Contains(combined, svc.keyword) {
			continue
		}
		return &domain.Subscription{
			ID:           subscriptionID(svc.name, amount),
			Name:         svc.name,
			Amount:       amount,
			Currency:     detectCurrency(combined),
			BillingCycle: svc.cycle,
			Category:     svc.category,
			Status:       domain.SubscriptionActive,
			LastDetected: time.Now().UTC(),
		}
	}

	// Generic renewal wording: attribute the subscription to the sender.
	if strings.Contains(combined, "subscription") ||
		strings.Contains(combined, "renewal") ||
		strings.Contains(combined, "auto-renew") ||
		strings.Contains(combined, "recurring") {
		if m := billingSenderRe.FindStringSubmatch(from); m != nil {
			name := strings.ToUpper(m[1][:1]) + m[1][1:]
			return &domain.Subscription{
				ID:           subscriptionID(name, amount),
				Name:         name,
				Amount:       amount,
				Currency:     detectCurrency(combined),
				BillingCycle: domain.BillingMonthly,
				Category:     "Other",
				Status:       domain.SubscriptionActive,
				LastDetected: time.Now().UTC(),
			}
		}
	}

	return nil
}

// Ensure PatternExtractor implements the extractor contract.
var _ Extractor = (*PatternExtractor)(nil)
