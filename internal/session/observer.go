package session

import (
	"fmt"
	"os"
	"regexp"
	"sync"
	"time"
)

// observer tags and writes lines to a named pipe opened O_RDWR +
// non-blocking, so the writer never blocks on an absent reader.
type observer struct {
	mu       sync.Mutex
	f        *os.File
	errRegex *regexp.Regexp
}

var defaultErrorRegex = regexp.MustCompile(`(?i)\b(error|fatal|panic|traceback|exception)\b`)

func newObserver(path string) (*observer, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("session: open observer pipe: %w", err)
	}
	return &observer{f: f, errRegex: defaultErrorRegex}, nil
}

// writeTagged writes one event line in the stable
// [<unix_ts>.<ms>][<TAG>] <payload> format.
func (o *observer) writeTagged(tag string, payload []byte) {
	if o == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	now := time.Now()
	line := fmt.Sprintf("[%d.%03d][%s] %s\n", now.Unix(), now.Nanosecond()/1e6, tag, payload)
	o.f.Write([]byte(line))
}

// writeOutput classifies and tags a chunk of child output, splitting
// on lines so each gets its own OUT/ERR tag.
func (o *observer) writeOutput(data []byte) {
	if o == nil {
		return
	}
	tag := "OUT"
	if o.errRegex.Match(data) {
		tag = "ERR"
	}
	o.writeTagged(tag, data)
}

func (o *observer) Close() error {
	if o == nil {
		return nil
	}
	return o.f.Close()
}
