// Package record implements the recorder: teeing child output into
// per-exchange chunks and deciding how staged exchanges are persisted
// at session close.
package record

import (
	"sync"
	"time"

	"github.com/tapehouse/controltape/internal/redact"
	"github.com/tapehouse/controltape/internal/tape"
)

// ChunkSink accumulates output bytes as a sequence of delay-tagged
// chunks, redacting each write before it is stored.
type ChunkSink struct {
	mu    sync.Mutex
	start time.Time
	last  time.Time
	chunks []tape.Chunk
}

// NewChunkSink returns a ready-to-use sink.
func NewChunkSink() *ChunkSink {
	s := &ChunkSink{}
	s.Reset()
	return s
}

// Reset clears accumulated chunks and restarts the inter-chunk clock,
// called at the start of every new exchange.
func (s *ChunkSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = nil
	now := time.Now()
	s.start = now
	s.last = now
}

// Write redacts data and appends it as a new chunk, with delay_ms
// computed as the elapsed time since the previous write (zero for the
// first chunk after Reset).
func (s *ChunkSink) Write(data []byte) {
	if len(data) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	delay := int(now.Sub(s.last).Milliseconds())
	s.last = now

	redacted := redact.Redact(data)
	s.chunks = append(s.chunks, tape.NewChunk(delay, redacted))
}

// Output snapshots the accumulated chunks as an IOOutput.
func (s *ChunkSink) Output() tape.IOOutput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return tape.IOOutput{Chunks: append([]tape.Chunk(nil), s.chunks...)}
}
