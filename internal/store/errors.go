package store

import "errors"

var (
	// ErrNotFound is returned by lookups that matched no row.
	ErrNotFound = errors.New("store: not found")

	// ErrUnavailable marks a store that cannot currently serve any request.
	// The orchestrator aborts the whole batch on it; other store errors are
	// isolated to the email being processed.
	ErrUnavailable = errors.New("store: unavailable")
)
