package session

import (
	"regexp"
	"time"

	"github.com/tapehouse/controltape/internal/ctlerr"
)

// Run is a one-shot convenience wrapper: it opens a non-persisted
// session, optionally expects a pattern and sends a line, waits for
// the child to exit when no expect pattern was given, and returns the
// captured output. A nonzero exit status or signal becomes a
// ProcessError with the captured output attached.
func Run(command string, expect *regexp.Regexp, send string, timeout time.Duration, opts ...Option) ([]byte, error) {
	allOpts := append([]Option{WithPersist(false), WithTimeout(timeout)}, opts...)
	s, err := New(command, allOpts...)
	if err != nil {
		return nil, err
	}
	defer s.Close(true)

	if expect != nil {
		if _, err := s.Expect([]Pattern{RegexPattern(expect)}, timeout); err != nil {
			return nil, err
		}
	}

	if send != "" {
		if err := s.SendLine(send); err != nil {
			return nil, err
		}
		time.Sleep(500 * time.Millisecond)
	}

	if expect == nil {
		deadline := time.Now().Add(timeout)
		for s.IsAlive() && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
		if s.IsAlive() {
			output := s.GetFullOutput()
			return nil, &ctlerr.TimeoutError{Timeout: timeout, RecentOutput: string(output)}
		}
	}

	output := s.GetFullOutput()

	code := s.ExitStatus()
	if code != nil && *code != 0 {
		return nil, &ctlerr.ProcessError{Command: command, Err: ctlerr.NewSessionError("exited with status %d", *code)}
	}

	return output, nil
}
