package reconcile

import (
	"regexp"
	"strings"
)

// Payment-rail prefixes that banks prepend to narration text. They carry no
// information about the underlying purchase and defeat text comparison.
var railPrefixRe = regexp.MustCompile(`^(?i:upi|imps|neft|rtgs|atm|pos|ecs|nach)[-/\s]*`)

// Long alphanumeric runs are bank reference numbers and transaction ids.
// Left in place they make every description unique.
var referenceTokenRe = regexp.MustCompile(`(?i)\b[a-z0-9]{12,}\b`)

var whitespaceRe = regexp.MustCompile(`\s+`)

// NormalizeDescription canonicalizes a free-text transaction description for
// comparison: lower-case, rail prefix and reference tokens removed, whitespace
// collapsed. Normalizing an already-normalized string is a no-op.
func NormalizeDescription(description string) string {
	if description == "" {
		return ""
	}

	s := strings.ToLower(strings.TrimSpace(description))
	s = railPrefixRe.ReplaceAllString(s, "")
	s = referenceTokenRe.ReplaceAllString(s, "")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// JaccardSimilarity computes intersection/union over the whitespace-tokenized
// forms of two normalized descriptions. Empty inputs never match.
func JaccardSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	setA := tokenSet(a)
	setB := tokenSet(b)

	var intersection int
	for tok := range setA {
		if setB[tok] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range splitTokens(s) {
		set[tok] = true
	}
	return set
}

// splitTokens breaks a normalized description into comparison tokens.
// Dashes and slashes are separators too: stripping a reference number can
// leave one glued to the next word.
func splitTokens(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '-' || r == '/'
	})
}

// refundKeywords is the vocabulary that marks a credit as a refund or
// reversal rather than fresh income. Matched as case-insensitive substrings.
var refundKeywords = []string{
	"refund",
	"reversal",
	"reversed",
	"cashback",
	"return",
	"cancelled",
	"canceled",
	"failed",
	"rejected",
	"credit back",
	"money back",
	"chargeback",
}

// IsRefundLanguage reports whether the description uses refund/reversal
// vocabulary.
func IsRefundLanguage(description string) bool {
	lower := strings.ToLower(description)
	for _, kw := range refundKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Merchant name patterns, tried in order: a preposition followed by words
// (stopping at trailing reference markers), then well-known merchant names.
var merchantPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:to|from|at|@)\s+([a-z0-9 ]+?)(?:\s+(?:upi|ref|txn|id)\b|$)`),
	regexp.MustCompile(`(?i)(amazon|flipkart|swiggy|zomato|uber|ola|netflix|spotify|google|apple)`),
}

// ExtractMerchant pulls a best-effort merchant name out of a raw description.
// Returns "" when no pattern matches.
func ExtractMerchant(description string) string {
	for _, pattern := range merchantPatterns {
		m := pattern.FindStringSubmatch(description)
		if m == nil {
			continue
		}
		if len(m) > 1 && m[1] != "" {
			return strings.TrimSpace(m[1])
		}
		return strings.TrimSpace(m[0])
	}
	return ""
}

// minSharedTokens is the fallback merchant-match requirement: this many
// shared tokens of length > 3 between the two normalized descriptions.
const minSharedTokens = 2

// MerchantsMatch decides whether two transactions plausibly involve the same
// merchant. Explicit merchant fields win, then merchants extracted from the
// descriptions, then a shared-token fallback.
func MerchantsMatch(merchantA, descA, merchantB, descB string) bool {
	if merchantA != "" && merchantB != "" {
		return strings.EqualFold(merchantA, merchantB)
	}

	extractedA := ExtractMerchant(descA)
	extractedB := ExtractMerchant(descB)
	if extractedA != "" && extractedB != "" {
		return strings.EqualFold(extractedA, extractedB)
	}

	return sharedLongTokens(NormalizeDescription(descA), NormalizeDescription(descB)) >= minSharedTokens
}

func sharedLongTokens(a, b string) int {
	setB := make(map[string]bool)
	for _, tok := range splitTokens(b) {
		if len(tok) > 3 {
			setB[tok] = true
		}
	}

	var shared int
	seen := make(map[string]bool)
	for _, tok := range splitTokens(a) {
		if len(tok) > 3 && setB[tok] && !seen[tok] {
			seen[tok] = true
			shared++
		}
	}
	return shared
}
