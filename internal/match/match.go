// Package match builds normalized matching keys and resolves which
// recorded exchange answers a given input during replay.
package match

import (
	"strings"

	"github.com/tapehouse/controltape/internal/norm"
)

// MatchingContext is the information available about the current
// exchange: the command being run, its environment and working
// directory, and the most recently observed prompt.
type MatchingContext struct {
	Program string
	Args    []string
	Env     map[string]string
	Cwd     string
	Prompt  string
}

// StdinMatcher decides whether actual stdin bytes satisfy an expected
// recorded input.
type StdinMatcher func(expected, actual []byte) bool

// CommandMatcher decides whether an actual command tuple (program plus
// args) satisfies an expected one, element-wise.
type CommandMatcher func(expected, actual []string) bool

// DefaultStdinMatcher reports equality after trimming a trailing CRLF
// or LF from both sides.
func DefaultStdinMatcher(expected, actual []byte) bool {
	return trimCRLF(expected) == trimCRLF(actual)
}

func trimCRLF(b []byte) string {
	s := string(b)
	s = strings.TrimRight(s, "\r\n")
	return s
}

// DefaultCommandMatcher reports equality of each element after
// stripping ANSI, scrubbing volatile tokens, and collapsing whitespace.
func DefaultCommandMatcher(expected, actual []string) bool {
	if len(expected) != len(actual) {
		return false
	}
	for i := range expected {
		if normalizeCommandElem(expected[i]) != normalizeCommandElem(actual[i]) {
			return false
		}
	}
	return true
}

func normalizeCommandElem(s string) string {
	return norm.CollapseWS(norm.Scrub(norm.StripANSI(s)))
}

// KeyBuilder constructs matching keys from a MatchingContext and
// pluggable override matchers, honoring an env allow/ignore list.
type KeyBuilder struct {
	AllowEnv       []string
	IgnoreEnv      []string
	StdinMatcher   StdinMatcher
	CommandMatcher CommandMatcher
}

// NewKeyBuilder returns a KeyBuilder with the supplied overrides,
// falling back to the default matchers when nil is passed.
func NewKeyBuilder(allowEnv, ignoreEnv []string, stdinMatcher StdinMatcher, commandMatcher CommandMatcher) *KeyBuilder {
	if stdinMatcher == nil {
		stdinMatcher = DefaultStdinMatcher
	}
	if commandMatcher == nil {
		commandMatcher = DefaultCommandMatcher
	}
	return &KeyBuilder{
		AllowEnv:       allowEnv,
		IgnoreEnv:      ignoreEnv,
		StdinMatcher:   stdinMatcher,
		CommandMatcher: commandMatcher,
	}
}

// FilterEnv applies this builder's allow/ignore lists to env.
func (b *KeyBuilder) FilterEnv(env map[string]string) map[string]string {
	return norm.FilterEnv(env, b.AllowEnv, b.IgnoreEnv)
}

func (b *KeyBuilder) commandTuple(ctx MatchingContext) []string {
	return append([]string{ctx.Program}, ctx.Args...)
}

const keySep = "\x1f"

func joinKey(parts ...string) string {
	return strings.Join(parts, keySep)
}

// ExactKey builds the full matching key: command tuple, sorted env
// items, cwd, ANSI-stripped prompt, and normalized stdin.
func (b *KeyBuilder) ExactKey(ctx MatchingContext, stdin []byte) string {
	cmd := strings.Join(b.commandTuple(ctx), "\x1e")
	envItems := strings.Join(norm.SortedEnvItems(b.FilterEnv(ctx.Env)), "\x1e")
	prompt := norm.StripANSI(ctx.Prompt)
	normStdin := trimCRLF(stdin)
	return joinKey(cmd, envItems, ctx.Cwd, prompt, normStdin)
}

// BucketKey builds the coarse fallback key: program, cwd, and
// ANSI-stripped prompt.
func (b *KeyBuilder) BucketKey(ctx MatchingContext) string {
	return joinKey(ctx.Program, ctx.Cwd, norm.StripANSI(ctx.Prompt))
}

// EnvEqual compares two environments after applying this builder's
// allow/ignore filter to both sides.
func (b *KeyBuilder) EnvEqual(a, c map[string]string) bool {
	fa := norm.SortedEnvItems(b.FilterEnv(a))
	fc := norm.SortedEnvItems(b.FilterEnv(c))
	if len(fa) != len(fc) {
		return false
	}
	for i := range fa {
		if fa[i] != fc[i] {
			return false
		}
	}
	return true
}

// Candidate identifies one recorded exchange inside a tape store by
// positional indices, so this package stays independent of the store's
// in-memory tape representation.
type Candidate struct {
	TapeIdx     int
	ExchangeIdx int
}

// CandidateInfo is what FindMatches needs to know about a bucket
// candidate in order to confirm it against the live context and stdin.
type CandidateInfo struct {
	Ctx   MatchingContext
	Stdin []byte
}

// FindMatches resolves matches for (ctx, stdin) against a two-level
// index: exact first, then bucket with per-candidate confirmation via
// this builder's env/command/stdin matchers. lookup resolves a
// Candidate to the context and stdin it was recorded with.
func (b *KeyBuilder) FindMatches(
	exact map[string][]Candidate,
	bucket map[string][]Candidate,
	lookup func(Candidate) CandidateInfo,
	ctx MatchingContext,
	stdin []byte,
) []Candidate {
	exactKey := b.ExactKey(ctx, stdin)
	if hits, ok := exact[exactKey]; ok && len(hits) > 0 {
		return hits
	}

	bucketKey := b.BucketKey(ctx)
	candidates := bucket[bucketKey]
	if len(candidates) == 0 {
		return nil
	}

	var survivors []Candidate
	wantCmd := b.commandTuple(ctx)
	for _, c := range candidates {
		info := lookup(c)
		if !b.EnvEqual(ctx.Env, info.Ctx.Env) {
			continue
		}
		if !b.CommandMatcher(wantCmd, b.commandTuple(info.Ctx)) {
			continue
		}
		if !b.StdinMatcher(info.Stdin, stdin) {
			continue
		}
		survivors = append(survivors, c)
	}
	return survivors
}
