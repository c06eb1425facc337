// Package store implements the tape store: loading tapes from a
// directory, a two-level matching index, and atomic durable writes.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/tapehouse/controltape/internal/match"
	"github.com/tapehouse/controltape/internal/tape"
)

// Store holds every tape loaded from a directory tree, plus the
// indexes built against them for matching.
type Store struct {
	Root string

	mu      sync.Mutex
	tapes   []*tape.Tape
	paths   []string
	used    map[string]struct{}
	newSet  map[string]struct{}
	exact   map[string][]match.Candidate
	bucket  map[string][]match.Candidate
	builder *match.KeyBuilder
}

// New returns a Store rooted at dir. Call LoadAll and BuildIndex before
// using it for matching.
func New(dir string) *Store {
	return &Store{
		Root:   dir,
		used:   make(map[string]struct{}),
		newSet: make(map[string]struct{}),
	}
}

// LoadAll recursively reads every *.json5 file under Root in sorted
// path order, decoding each into memory. It replaces any previously
// loaded tapes.
func (s *Store) LoadAll() error {
	var paths []string
	err := filepath.Walk(s.Root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) && p == s.Root {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		if filepath.Ext(p) == ".json5" {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: load all: %w", err)
	}
	sort.Strings(paths)

	tapes := make([]*tape.Tape, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("store: read %s: %w", p, err)
		}
		t, err := tape.Decode(data)
		if err != nil {
			return fmt.Errorf("store: decode %s: %w", p, err)
		}
		tapes = append(tapes, t)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths = paths
	s.tapes = tapes
	s.exact = nil
	s.bucket = nil
	return nil
}

// Tapes returns the loaded tapes in load order. Callers must not mutate
// the returned slice's tapes without going through WriteTape.
func (s *Store) Tapes() []*tape.Tape {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*tape.Tape(nil), s.tapes...)
}

// Paths returns the on-disk paths of the loaded tapes, parallel to
// Tapes().
func (s *Store) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

// contextFor builds the MatchingContext and stdin bytes recorded for a
// given exchange, used both for index construction and bucket
// candidate confirmation.
func (s *Store) contextFor(tapeIdx, exchangeIdx int) (match.MatchingContext, []byte) {
	t := s.tapes[tapeIdx]
	ex := t.Exchanges[exchangeIdx]
	ctx := match.MatchingContext{
		Program: t.Meta.Program,
		Args:    t.Meta.Args,
		Env:     t.Meta.Env,
		Cwd:     t.Meta.Cwd,
		Prompt:  ex.Pre.Prompt,
	}
	stdin, _ := ex.Input.Bytes()
	return ctx, stdin
}

// BuildIndex constructs the exact and bucket indexes from the
// currently loaded tapes using builder's key functions. It must be
// called again after LoadAll if the store was reloaded.
func (s *Store) BuildIndex(builder *match.KeyBuilder) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.builder = builder
	exact := make(map[string][]match.Candidate)
	bucket := make(map[string][]match.Candidate)

	for ti, t := range s.tapes {
		for ei := range t.Exchanges {
			ctx, stdin := s.contextFor(ti, ei)
			cand := match.Candidate{TapeIdx: ti, ExchangeIdx: ei}
			ek := builder.ExactKey(ctx, stdin)
			exact[ek] = append(exact[ek], cand)
			bk := builder.BucketKey(ctx)
			bucket[bk] = append(bucket[bk], cand)
		}
	}

	s.exact = exact
	s.bucket = bucket
}

// FindMatches resolves matches for (ctx, stdin) against the current
// index. BuildIndex must have been called at least once.
func (s *Store) FindMatches(ctx match.MatchingContext, stdin []byte) []match.Candidate {
	s.mu.Lock()
	builder := s.builder
	exact := s.exact
	bucket := s.bucket
	s.mu.Unlock()

	if builder == nil {
		return nil
	}
	lookup := func(c match.Candidate) match.CandidateInfo {
		s.mu.Lock()
		ctx, stdin := s.contextFor(c.TapeIdx, c.ExchangeIdx)
		s.mu.Unlock()
		return match.CandidateInfo{Ctx: ctx, Stdin: stdin}
	}
	return builder.FindMatches(exact, bucket, lookup, ctx, stdin)
}

// Exchange returns the tape and exchange a Candidate refers to.
func (s *Store) Exchange(c match.Candidate) (*tape.Tape, *tape.Exchange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tapes[c.TapeIdx]
	return t, &t.Exchanges[c.ExchangeIdx]
}

// TapeAt returns the loaded tape at position i. Mutating it in place
// and then calling WriteTape with its path is the supported way to
// rewrite an existing tape.
func (s *Store) TapeAt(i int) *tape.Tape {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tapes[i]
}

// PathAt returns the on-disk path of the loaded tape at position i.
func (s *Store) PathAt(i int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paths[i]
}

// SnapshotIndex builds a one-shot exact-key index over the currently
// loaded tapes, keeping only the first candidate in load order for
// each key. Unlike BuildIndex's live index, this snapshot is not
// invalidated by later WriteTape calls — it is meant to be taken once,
// before a recording session begins, so recording decisions are judged
// against pre-session state.
func (s *Store) SnapshotIndex(builder *match.KeyBuilder) map[string]match.Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := make(map[string]match.Candidate)
	for ti, t := range s.tapes {
		for ei := range t.Exchanges {
			ctx, stdin := s.contextFor(ti, ei)
			k := builder.ExactKey(ctx, stdin)
			if _, ok := idx[k]; !ok {
				idx[k] = match.Candidate{TapeIdx: ti, ExchangeIdx: ei}
			}
		}
	}
	return idx
}

// MarkUsed records that the tape at path was consulted during this
// session, for "unused tapes" reporting.
func (s *Store) MarkUsed(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.used[path] = struct{}{}
}

// NewTapePaths returns the paths written as brand-new tapes this
// session, in the order they were written.
func (s *Store) NewTapePaths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.newSet))
	for p := range s.newSet {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// UnusedPaths returns loaded tape paths never passed to MarkUsed.
func (s *Store) UnusedPaths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, p := range s.paths {
		if _, ok := s.used[p]; !ok {
			out = append(out, p)
		}
	}
	return out
}
