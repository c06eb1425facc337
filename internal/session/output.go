package session

import "time"

// onChildOutput is the single tee point for output, whether it came
// from a live child's PTY or from a replay transport's stream: it
// feeds the bounded ring, the full log, the on-disk rotating log, the
// observer pipe, and the active recorder's chunk sink.
func (s *Session) onChildOutput(data []byte) {
	s.mu.Lock()
	s.ring.appendBytes(data)
	s.fullLog = append(s.fullLog, data...)
	if s.replayT == nil {
		s.pending = append(s.pending, data...)
	}
	s.lastActivity = time.Now()
	s.mu.Unlock()

	if s.log != nil {
		s.log.Write(data)
	}
	if s.obs != nil {
		s.obs.writeOutput(data)
	}
	if s.recorder != nil && s.recorder.Active() {
		s.recorder.OnOutput(data)
	}
}

// GetFullOutput returns every byte of child output captured so far.
func (s *Session) GetFullOutput() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.fullLog...)
}

// GetRecentOutput returns the last n newline-delimited lines of the
// ring buffer's tail.
func (s *Session) GetRecentOutput(lines int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ring.lastLines(lines)
}
