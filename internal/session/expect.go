package session

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/tapehouse/controltape/internal/ctlerr"
	"github.com/tapehouse/controltape/internal/replay"
	"github.com/tapehouse/controltape/internal/tape"
)

// Pattern is one entry in an Expect/ExpectExact pattern list: a
// regexp, a literal byte needle, or the TIMEOUT/EOF sentinel.
type Pattern = replay.Pattern

// RegexPattern wraps a regexp for use with Expect.
func RegexPattern(re *regexp.Regexp) Pattern { return replay.RegexPattern(re) }

// LiteralPattern wraps a literal byte needle for use with ExpectExact.
func LiteralPattern(b []byte) Pattern { return replay.LiteralPattern(b) }

// TimeoutPattern is the TIMEOUT sentinel: when present in a pattern
// list, a deadline reached with no other match returns this pattern's
// index instead of raising a TimeoutError.
func TimeoutPattern() Pattern { return replay.TimeoutPattern() }

// EOFPattern is the EOF sentinel: when present in a pattern list, the
// child or transport dying with no other match returns this pattern's
// index instead of raising a ProcessError.
func EOFPattern() Pattern { return replay.EOFPattern() }

// Expect blocks until one of patterns matches captured output, or
// timeout elapses (zero uses the session's default), returning the
// index of the first pattern that matched in declaration order. A
// TIMEOUT or EOF sentinel pattern suppresses the corresponding error.
func (s *Session) Expect(patterns []Pattern, timeout time.Duration) (int, error) {
	idx, _, _, err := s.expectWithRetry(patterns, false, timeout, false)
	return idx, err
}

// ExpectExact is Expect with literal byte-slice matching.
func (s *Session) ExpectExact(patterns []Pattern, timeout time.Duration) (int, error) {
	idx, _, _, err := s.expectWithRetry(patterns, true, timeout, false)
	return idx, err
}

// ReadUntil waits for pattern and returns the bytes preceding the
// match, plus the matched bytes themselves when includePattern is set.
func (s *Session) ReadUntil(pattern *regexp.Regexp, timeout time.Duration, includePattern bool) ([]byte, error) {
	_, before, after, err := s.expectWithRetry([]Pattern{RegexPattern(pattern)}, false, timeout, false)
	if err != nil {
		return nil, err
	}
	if includePattern {
		return append(before, after...), nil
	}
	return before, nil
}

// ReadNonblocking returns up to size bytes currently available,
// polling for up to timeout before giving up and returning no bytes.
func (s *Session) ReadNonblocking(size int, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	for {
		var out []byte
		if s.usingReplay() {
			out = s.replayT.ReadNonblocking(size)
		} else {
			s.mu.Lock()
			n := size
			if n > len(s.pending) {
				n = len(s.pending)
			}
			out = append([]byte(nil), s.pending[:n]...)
			s.pending = s.pending[n:]
			s.mu.Unlock()
		}
		if len(out) > 0 {
			return out, nil
		}
		if timeout <= 0 || time.Now().After(deadline) {
			return nil, nil
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// expectWithRetry runs one expect/expect_exact attempt and, on a
// timeout that looks like a child mid-continuation-prompt (recent
// output, last line ends in "..."), sends one blank line and retries
// once with the full session timeout. retried guards against recursion
// beyond that single compensating attempt. exact selects literal
// (ExpectExact) matching over regexp (Expect) matching.
func (s *Session) expectWithRetry(patterns []Pattern, exact bool, timeout time.Duration, retried bool) (idx int, before, after []byte, err error) {
	userTimeout := timeout
	effective := timeout
	if effective <= 0 {
		effective = s.cfg.timeout
	}

	idx, before, after, err = s.runExpect(patterns, exact, effective)
	if err == nil {
		s.mu.Lock()
		if len(after) > 0 {
			s.lastPrompt = string(after)
		}
		s.history = append(s.history, HistoryEntry{
			Pattern: historyPattern(patterns, idx),
			Matched: string(after),
		})
		s.mu.Unlock()
		return idx, before, after, nil
	}

	if retried || !errors.Is(err, replay.ErrTimeout) {
		return idx, before, after, s.translateExpectErr(err)
	}
	if userTimeout <= 0 || userTimeout >= s.cfg.timeout || !s.IsAlive() {
		return idx, before, after, s.translateExpectErr(err)
	}

	s.mu.Lock()
	recentEnough := time.Since(s.lastActivity) <= time.Second
	last := strings.TrimRight(s.ring.lastLines(1), "\r\n")
	s.mu.Unlock()
	if !recentEnough || !strings.HasSuffix(last, "...") {
		return idx, before, after, s.translateExpectErr(err)
	}

	if werr := s.sendWithKind([]byte("\n"), tape.InputLine); werr != nil {
		return idx, before, after, s.translateExpectErr(err)
	}
	return s.expectWithRetry(patterns, exact, s.cfg.timeout, true)
}

func (s *Session) runExpect(patterns []Pattern, exact bool, timeout time.Duration) (int, []byte, []byte, error) {
	if s.usingReplay() {
		var idx int
		var err error
		if exact {
			idx, err = s.replayT.ExpectExact(context.Background(), patterns, timeout)
		} else {
			idx, err = s.replayT.Expect(context.Background(), patterns, timeout)
		}
		if err != nil {
			return idx, nil, nil, err
		}
		return idx, s.replayT.Before(), s.replayT.After(), nil
	}
	return s.expectLivePoll(patterns, exact, timeout)
}

func (s *Session) expectLivePoll(patterns []Pattern, exact bool, timeout time.Duration) (int, []byte, []byte, error) {
	deadline := time.Now().Add(timeout)
	const pollInterval = 10 * time.Millisecond

	match := func(buf []byte) (int, []int) {
		if exact {
			bestIdx := -1
			var bestLoc []int
			for i, p := range patterns {
				if p.Literal == nil {
					continue
				}
				pos := bytes.Index(buf, p.Literal)
				if pos < 0 {
					continue
				}
				loc := []int{pos, pos + len(p.Literal)}
				if bestLoc == nil || loc[0] < bestLoc[0] {
					bestIdx, bestLoc = i, loc
				}
			}
			return bestIdx, bestLoc
		}
		for i, p := range patterns {
			if p.Regexp == nil {
				continue
			}
			if loc := p.Regexp.FindIndex(buf); loc != nil {
				return i, loc
			}
		}
		return -1, nil
	}

	for {
		s.mu.Lock()
		buf := append([]byte(nil), s.pending...)
		s.mu.Unlock()

		if idx, loc := match(buf); idx >= 0 {
			before := buf[:loc[0]]
			after := buf[loc[0]:loc[1]]
			s.mu.Lock()
			s.pending = s.pending[loc[1]:]
			s.mu.Unlock()
			return idx, before, after, nil
		}
		if !s.IsAlive() {
			if idx := replay.SentinelIndex(patterns, replay.SentinelEOF); idx >= 0 {
				return idx, nil, nil, nil
			}
			return -1, nil, nil, replay.ErrEOF
		}
		if time.Now().After(deadline) {
			if idx := replay.SentinelIndex(patterns, replay.SentinelTimeout); idx >= 0 {
				return idx, nil, nil, nil
			}
			return -1, nil, nil, replay.ErrTimeout
		}
		time.Sleep(pollInterval)
	}
}

func (s *Session) translateExpectErr(err error) error {
	switch {
	case errors.Is(err, replay.ErrTimeout):
		return &ctlerr.TimeoutError{Timeout: s.cfg.timeout, RecentOutput: s.GetRecentOutput(50)}
	case errors.Is(err, replay.ErrEOF):
		return &ctlerr.ProcessError{Command: s.command, Err: errors.New("eof reached before pattern matched")}
	default:
		return err
	}
}
