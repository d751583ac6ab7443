package reconcile

// Heuristic defaults. The thresholds have no documented derivation; they are
// configuration with working defaults, not invariants.
const (
	// DefaultJaccardThreshold is the token-set similarity above which two
	// same-day, same-amount transactions are treated as the same event.
	DefaultJaccardThreshold = 0.8

	// DefaultReversalWindowDays is how far back a credit may reach to find
	// the debit it reverses.
	DefaultReversalWindowDays = 30

	// DefaultReversalLookback caps how many candidate debits the linker
	// examines, most recent first.
	DefaultReversalLookback = 5
)

// Config tunes the reconciliation heuristics. The zero value selects the
// defaults above.
type Config struct {
	JaccardThreshold   float64
	ReversalWindowDays int
	ReversalLookback   int
}

func (c Config) withDefaults() Config {
	if c.JaccardThreshold == 0 {
		c.JaccardThreshold = DefaultJaccardThreshold
	}
	if c.ReversalWindowDays == 0 {
		c.ReversalWindowDays = DefaultReversalWindowDays
	}
	if c.ReversalLookback == 0 {
		c.ReversalLookback = DefaultReversalLookback
	}
	return c
}
