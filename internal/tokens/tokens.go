// Package tokens provides token and word counting for usage accounting.
// Because the platform supports multiple embedding and generation backends
// with different tokenizers, token counts use a conservative character-based
// heuristic: 1 token ≈ 4 characters (English prose). Every usage ledger
// entry carries the model and provider it was counted for, so the heuristic
// can be recalibrated per backend later without touching callers.
package tokens

import "strings"

// charsPerToken is the character-to-token ratio used for estimation.
// 4 chars/token is the standard approximation for English text.
const charsPerToken = 4

// Estimate returns a token count for s using the character heuristic.
// Non-empty input always counts as at least one token.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateAll returns the summed token count for a batch of texts.
func EstimateAll(texts []string) int {
	total := 0
	for _, t := range texts {
		total += Estimate(t)
	}
	return total
}

// Words returns the whitespace-delimited word count of s. Used by the
// per-document word quota and by chunk read-time statistics.
func Words(s string) int {
	return len(strings.Fields(s))
}

// Chars returns the character (byte) count of s. Chunk statistics are
// computed at read time from content, never stored.
func Chars(s string) int {
	return len(s)
}
