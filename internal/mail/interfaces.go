// Package mail abstracts the mailbox the sync pipeline reads from. The core
// never talks to Gmail directly; it lists candidate message ids and fetches
// full messages through the Service interface.
package mail

import (
	"context"
	"time"
)

// Query narrows the candidate message search.
type Query struct {
	// After restricts the search to messages received on or after this time.
	After time.Time

	// Wide selects the broader financial search queries. The AI extractor
	// can classify loosely-worded emails, so it can afford a wider net.
	Wide bool

	// MaxResults caps each underlying search query. Zero means the
	// implementation default.
	MaxResults int64
}

// RawMessage is one fetched email, with the body already decoded to plain
// text. Extractors consume this shape regardless of the mail backend.
type RawMessage struct {
	ID           string
	From         string
	Subject      string
	Snippet      string
	InternalDate time.Time
	Body         string
}

// Service lists and fetches candidate financial emails.
type Service interface {
	// ListMessageIDs returns de-duplicated message ids matching the query,
	// in the order the backend returned them.
	ListMessageIDs(ctx context.Context, q Query) ([]string, error)

	// FetchMessage retrieves one full message.
	FetchMessage(ctx context.Context, id string) (*RawMessage, error)
}
