package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const logRotateSize = 10 * 1024 * 1024 // 10 MiB

// rotatingLog is a single-writer append-only log file that rotates
// itself to output_<unix_ts>.log once it exceeds logRotateSize,
// continuing into a fresh output.log.
type rotatingLog struct {
	mu   sync.Mutex
	dir  string
	path string
	f    *os.File
	size int64
}

func newRotatingLog(dir string) (*rotatingLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("session: create log dir: %w", err)
	}
	path := filepath.Join(dir, "output.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("session: open log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("session: stat log: %w", err)
	}
	return &rotatingLog{dir: dir, path: path, f: f, size: info.Size()}, nil
}

func (l *rotatingLog) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n, err := l.f.Write(p)
	l.size += int64(n)
	if err != nil {
		return n, err
	}
	if l.size >= logRotateSize {
		if err := l.rotateLocked(); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (l *rotatingLog) rotateLocked() error {
	l.f.Close()
	rotated := filepath.Join(l.dir, fmt.Sprintf("output_%d.log", time.Now().Unix()))
	if err := os.Rename(l.path, rotated); err != nil {
		return fmt.Errorf("session: rotate log: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("session: reopen log after rotate: %w", err)
	}
	l.f = f
	l.size = 0
	return nil
}

func (l *rotatingLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}
