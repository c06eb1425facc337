package replay

import "regexp"

// Sentinel marks a pseudo-pattern in an expect list. Unlike a regexp or
// literal needle, a sentinel never matches buffered bytes — it changes
// what happens when the deadline is reached or the transport dies.
type Sentinel int

const (
	// NoSentinel marks an ordinary regexp or literal pattern.
	NoSentinel Sentinel = iota
	// SentinelTimeout, if present in a pattern list, turns a deadline
	// reached with no other match into a successful return of its
	// index rather than ErrTimeout.
	SentinelTimeout
	// SentinelEOF, if present in a pattern list, turns the transport
	// dying with no other match into a successful return of its index
	// rather than ErrEOF.
	SentinelEOF
)

// Pattern is one entry in an expect/expect_exact pattern list: a
// regexp, a literal byte needle, or the TIMEOUT/EOF sentinel.
type Pattern struct {
	Regexp   *regexp.Regexp
	Literal  []byte
	Sentinel Sentinel
}

// RegexPattern wraps a regexp for use with Expect.
func RegexPattern(re *regexp.Regexp) Pattern { return Pattern{Regexp: re} }

// LiteralPattern wraps a literal byte needle for use with ExpectExact.
func LiteralPattern(b []byte) Pattern { return Pattern{Literal: b} }

// TimeoutPattern is the TIMEOUT sentinel.
func TimeoutPattern() Pattern { return Pattern{Sentinel: SentinelTimeout} }

// EOFPattern is the EOF sentinel.
func EOFPattern() Pattern { return Pattern{Sentinel: SentinelEOF} }

// SentinelIndex returns the index of the pattern carrying want, or -1
// if the list has none.
func SentinelIndex(patterns []Pattern, want Sentinel) int {
	for i, p := range patterns {
		if p.Sentinel == want {
			return i
		}
	}
	return -1
}
