package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"google.golang.org/genai"

	"github.com/sanchay-app/sanchay/internal/domain"
	"github.com/sanchay-app/sanchay/internal/logger"
	"github.com/sanchay-app/sanchay/internal/mail"
)

// DefaultModelName is the Gemini model used when none is configured.
const DefaultModelName = "gemini-2.0-flash"

// maxBodyChars caps how much of the email body goes into the prompt.
const maxBodyChars = 3000

// GeminiExtractor classifies emails with a Gemini model. It expects the model
// to return a STRICT JSON object describing the transaction.
type GeminiExtractor struct {
	client *genai.Client
	model  string
}

// NewGeminiExtractor creates the client with the given model name.
// An empty model falls back to DefaultModelName.
func NewGeminiExtractor(ctx context.Context, model string) (*GeminiExtractor, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiExtractor: create genai client: %w", err)
	}
	if model == "" {
		model = DefaultModelName
	}
	return &GeminiExtractor{client: client, model: model}, nil
}

// geminiExtraction is the JSON shape the prompt instructs the model to emit.
type geminiExtraction struct {
	IsFinancial bool `json:"isFinancial"`
	Transaction *struct {
		Amount      float64 `json:"amount"`
		Currency    string  `json:"currency"`
		Date        string  `json:"date"`
		Description string  `json:"description"`
		Merchant    string  `json:"merchant"`
		Category    string  `json:"category"`
		Type        string  `json:"type"`
	} `json:"transaction"`
	Subscription *struct {
		Amount       float64 `json:"amount"`
		Name         string  `json:"name"`
		Currency     string  `json:"currency"`
		BillingCycle string  `json:"billingCycle"`
		Category     string  `json:"category"`
	} `json:"subscription"`
}

// Extract implements Extractor.
func (e *GeminiExtractor) Extract(ctx context.Context, msg *mail.RawMessage) (*Extraction, error) {
	log := logger.FromContext(ctx)

	body := msg.Body
	if len(body) > maxBodyChars {
		body = body[:maxBodyChars]
	}
	emailText := fmt.Sprintf("From: %s\nSubject: %s\nDate: %s\n\n%s",
		msg.From, msg.Subject, msg.InternalDate.Format(time.RFC3339), body)

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: geminiPrompt + emailText},
			},
		},
	}

	resp, err := e.client.Models.GenerateContent(ctx, e.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("GeminiExtractor.Extract: generate content: %w", err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return nil, fmt.Errorf("GeminiExtractor.Extract: empty response from model")
	}

	clean := cleanModelJSON(rawText)

	var parsed geminiExtraction
	if err := json.Unmarshal([]byte(clean), &parsed); err != nil {
		return nil, fmt.Errorf("GeminiExtractor.Extract: unmarshal JSON: %w\nraw response: %s", err, rawText)
	}

	result := &Extraction{}
	if !parsed.IsFinancial {
		log.Debug().Str("email_id", msg.ID).Msg("model classified email as non-financial")
		return result, nil
	}

	if t := parsed.Transaction; t != nil && t.Amount > 0 {
		amount := decimal.NewFromFloat(t.Amount)

		date := civil.DateOf(msg.InternalDate)
		if t.Date != "" {
			if parsedDate, err := civil.ParseDate(t.Date); err == nil {
				date = parsedDate
			}
		}

		direction := domain.DirectionDebit
		if t.Type == "income" {
			direction = domain.DirectionCredit
		}

		description := t.Description
		if description == "" {
			description = msg.Subject
			if len(description) > 200 {
				description = description[:200]
			}
		}

		currency := t.Currency
		if currency == "" {
			currency = "INR"
		}

		tx := &domain.Transaction{
			ID:          transactionID(msg.ID, amount, date),
			Date:        date,
			Amount:      amount,
			Description: description,
			Category:    valueOr(t.Category, "Other"),
			Direction:   direction,
			Source:      detectSource(msg.From),
			Merchant:    t.Merchant,
			Currency:    currency,
			EmailID:     msg.ID,
			RawMetadata: map[string]string{
				"from":    msg.From,
				"subject": msg.Subject,
				"snippet": msg.Snippet,
			},
		}
		result.Transactions = append(result.Transactions, tx)
	}

	if s := parsed.Subscription; s != nil && s.Name != "" && s.Amount > 0 {
		amount := decimal.NewFromFloat(s.Amount)
		result.Subscription = &domain.Subscription{
			ID:           subscriptionID(s.Name, amount),
			Name:         s.Name,
			Amount:       amount,
			Currency:     valueOr(s.Currency, "USD"),
			BillingCycle: parseBillingCycle(s.BillingCycle),
			Category:     valueOr(s.Category, "Subscription"),
			Status:       domain.SubscriptionActive,
			EmailID:      msg.ID,
			LastDetected: time.Now().UTC(),
		}
	}

	return result, nil
}

func parseBillingCycle(raw string) domain.BillingCycle {
	switch domain.BillingCycle(strings.ToLower(raw)) {
	case domain.BillingYearly:
		return domain.BillingYearly
	case domain.BillingWeekly:
		return domain.BillingWeekly
	case domain.BillingQuarterly:
		return domain.BillingQuarterly
	default:
		return domain.BillingMonthly
	}
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// cleanModelJSON strips Markdown fences and surrounding junk the model may
// emit despite instructions, keeping only the outermost JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = s[start : end+1]
			s = strings.TrimSpace(s)
		}
	}

	return s
}

var _ Extractor = (*GeminiExtractor)(nil)
