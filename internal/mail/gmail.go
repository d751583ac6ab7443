package mail

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const defaultMaxResults = 500

// Search queries for financial emails. The wide set casts a broader net and
// relies on the extractor to discard false positives.
var narrowQueries = []string{
	"subject:(transaction OR payment OR debit OR credit OR receipt OR invoice)",
	"subject:(subscription OR renewal OR billing)",
	"subject:(salary credited OR deposit)",
}

var wideQueries = []string{
	"subject:(transaction OR payment OR receipt OR invoice OR order OR purchase)",
	"subject:(subscription OR renewal OR billing OR charged)",
	"subject:(salary OR credited OR deposit OR refund OR cashback)",
	"from:(bank OR pay OR wallet OR finance)",
	"subject:(statement OR summary)",
}

// GmailService implements Service on top of the Gmail REST API, read-only.
// The caller supplies an already-authorized client option (token source or
// HTTP client); the OAuth dance is out of scope here.
type GmailService struct {
	svc *gmail.Service
}

// NewGmailService creates a Gmail-backed mail service.
func NewGmailService(ctx context.Context, opts ...option.ClientOption) (*GmailService, error) {
	opts = append(opts, option.WithScopes(gmail.GmailReadonlyScope))
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewGmailService: creating gmail client: %w", err)
	}
	return &GmailService{svc: svc}, nil
}

// ListMessageIDs implements Service. It runs every search query, merges the
// results and drops duplicate ids while keeping first-seen order.
func (g *GmailService) ListMessageIDs(ctx context.Context, q Query) ([]string, error) {
	queries := narrowQueries
	if q.Wide {
		queries = wideQueries
	}

	maxResults := q.MaxResults
	if maxResults == 0 {
		maxResults = defaultMaxResults
	}

	dateFilter := ""
	if !q.After.IsZero() {
		dateFilter = " after:" + q.After.Format("2006/01/02")
	}

	seen := make(map[string]bool)
	var ids []string
	for _, query := range queries {
		resp, err := g.svc.Users.Messages.List("me").
			Q(query + dateFilter).
			MaxResults(maxResults).
			Context(ctx).
			Do()
		if err != nil {
			return nil, fmt.Errorf("ListMessageIDs: query %q: %w", query, err)
		}
		for _, m := range resp.Messages {
			if !seen[m.Id] {
				seen[m.Id] = true
				ids = append(ids, m.Id)
			}
		}
	}

	return ids, nil
}

// FetchMessage implements Service.
func (g *GmailService) FetchMessage(ctx context.Context, id string) (*RawMessage, error) {
	msg, err := g.svc.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("FetchMessage: get %s: %w", id, err)
	}

	raw := &RawMessage{
		ID:      msg.Id,
		From:    header(msg, "From"),
		Subject: header(msg, "Subject"),
		Snippet: msg.Snippet,
		Body:    extractBody(msg),
	}
	if msg.InternalDate > 0 {
		raw.InternalDate = time.UnixMilli(msg.InternalDate).UTC()
	}

	return raw, nil
}

// Ensure GmailService implements the mail contract.
var _ Service = (*GmailService)(nil)
