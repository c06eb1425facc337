package store

import (
	"fmt"

	"github.com/tapehouse/controltape/internal/redact"
	"github.com/tapehouse/controltape/internal/tape"
)

// RedactDiff describes one exchange field that redaction changed.
type RedactDiff struct {
	Path         string
	ExchangeIdx  int
	Field        string
	Before       string
	After        string
}

// RedactAll walks every loaded tape's exchanges, applying the redactor
// to the input text and every output chunk. When inplace is true, any
// tape with at least one change is rewritten through WriteTape (without
// marking it new); otherwise the diffs are returned without touching
// disk.
func (s *Store) RedactAll(inplace bool) ([]RedactDiff, error) {
	s.mu.Lock()
	tapesCopy := append([]*tape.Tape(nil), s.tapes...)
	pathsCopy := append([]string(nil), s.paths...)
	s.mu.Unlock()

	var diffs []RedactDiff
	for ti, t := range tapesCopy {
		changed := false
		for ei := range t.Exchanges {
			ex := &t.Exchanges[ei]

			if ex.Input.DataText != "" {
				before := ex.Input.DataText
				after := string(redact.Redact([]byte(before)))
				if after != before {
					diffs = append(diffs, RedactDiff{Path: pathsCopy[ti], ExchangeIdx: ei, Field: "input", Before: before, After: after})
					ex.Input.DataText = after
					changed = true
				}
			}

			for ci := range ex.Output.Chunks {
				c := &ex.Output.Chunks[ci]
				raw, err := c.Bytes()
				if err != nil {
					continue
				}
				redacted := redact.Redact(raw)
				if string(redacted) != string(raw) {
					diffs = append(diffs, RedactDiff{
						Path:        pathsCopy[ti],
						ExchangeIdx: ei,
						Field:       fmt.Sprintf("output.chunks[%d]", ci),
						Before:      string(raw),
						After:       string(redacted),
					})
					*c = tape.NewChunk(c.DelayMs, redacted)
					changed = true
				}
			}
		}

		if changed && inplace {
			if err := s.WriteTape(pathsCopy[ti], t, false); err != nil {
				return diffs, fmt.Errorf("store: redact %s: %w", pathsCopy[ti], err)
			}
		}
	}

	return diffs, nil
}
