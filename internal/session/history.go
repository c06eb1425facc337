package session

import (
	"github.com/tapehouse/controltape/internal/config"
	"github.com/tapehouse/controltape/internal/replay"
)

// HistoryEntry records one successful Expect/ExpectExact call: the
// pattern (or literal needle, or sentinel name) that matched, and the
// bytes matched.
type HistoryEntry struct {
	Pattern string
	Matched string
}

func historyPattern(patterns []Pattern, idx int) string {
	if idx < 0 || idx >= len(patterns) {
		return ""
	}
	p := patterns[idx]
	switch {
	case p.Regexp != nil:
		return p.Regexp.String()
	case p.Literal != nil:
		return string(p.Literal)
	case p.Sentinel == replay.SentinelTimeout:
		return "TIMEOUT"
	case p.Sentinel == replay.SentinelEOF:
		return "EOF"
	default:
		return ""
	}
}

// History returns every pattern this session has successfully
// expected, in call order — the raw material for a saved program
// config.
func (s *Session) History() []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}

// SaveProgramConfig serializes this session's expect history into a
// named config.ProgramConfig under dir, so a later caller can drive
// the same program without rediscovering its prompt sequence.
func (s *Session) SaveProgramConfig(dir, name string) error {
	hist := s.History()
	sequence := make([]string, len(hist))
	for i, h := range hist {
		sequence[i] = h.Pattern
	}
	programs := config.NewPrograms(dir)
	return programs.Save(config.ProgramConfig{
		Name:           name,
		Command:        s.Command(),
		ExpectSequence: sequence,
	})
}

// FromConfig opens a new session from a saved config.ProgramConfig
// under dir, using its recorded command. The config's expect sequence
// is not replayed automatically — callers walk it themselves via
// ExpectSequence() once the session is open.
func FromConfig(dir, name string, opts ...Option) (*Session, error) {
	programs := config.NewPrograms(dir)
	pc, err := programs.Get(name)
	if err != nil {
		return nil, err
	}
	s, err := New(pc.Command, opts...)
	if err != nil {
		return nil, err
	}
	s.programConfig = &pc
	return s, nil
}

// ExpectSequence returns the ordered expect patterns recorded in the
// config this session was opened from, or nil if it wasn't opened via
// FromConfig.
func (s *Session) ExpectSequence() []string {
	if s.programConfig == nil {
		return nil
	}
	return s.programConfig.ExpectSequence
}
