// Package session implements the PTY session: the central orchestrator
// tying together a live child or a replay transport, output capture
// (ring buffer, rotating log, observer pipe), and an optional recorder.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/moby/term"

	"github.com/tapehouse/controltape/internal/audit"
	progconfig "github.com/tapehouse/controltape/internal/config"
	"github.com/tapehouse/controltape/internal/ctlerr"
	"github.com/tapehouse/controltape/internal/events"
	"github.com/tapehouse/controltape/internal/match"
	"github.com/tapehouse/controltape/internal/record"
	"github.com/tapehouse/controltape/internal/replay"
	"github.com/tapehouse/controltape/internal/shlex"
	"github.com/tapehouse/controltape/internal/store"
	"github.com/tapehouse/controltape/internal/tape"
)

const interactEscape = 0x1d // Ctrl-]

// Version is embedded in every newly recorded tape's session header.
const Version = "0.1.0"

// DefaultRingBytes bounds get_recent_output's backing buffer.
const DefaultRingBytes = 1 * 1024 * 1024

// Session is the central orchestrator: one child process (or, in
// replay mode, one replay transport) behind a uniform expect-style
// interface.
type Session struct {
	id      string
	command string
	program string
	args    []string
	cfg     config

	store   *store.Store
	builder *match.KeyBuilder
	nameGen store.NameGenerator

	mu        sync.Mutex
	child     *childPTY
	replayT   *replay.Transport
	pending   []byte
	recorder  *record.Recorder
	ring      ringBuffer
	fullLog   []byte
	lastPrompt string
	history    []HistoryEntry
	exchangeSeq int

	programConfig *progconfig.ProgramConfig

	closed       bool
	closedAt     time.Time
	exitCode     *int
	signal       *int
	startedAt    time.Time
	lastActivity time.Time

	closeOnce sync.Once
	closeDone chan struct{}
	onCloseFn func()

	log *rotatingLog
	obs *observer
}

// New spawns (or, in replay mode, simulates) command and returns a
// ready-to-use Session.
func New(command string, opts ...Option) (*Session, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	parts := shlex.Split(command)
	if len(parts) == 0 {
		return nil, ctlerr.NewSessionError("empty command")
	}
	program, args := parts[0], parts[1:]

	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	id := newSessionID()
	sessionDir := filepath.Join(home, "."+cfg.appName, "sessions", id)

	logFile, err := newRotatingLog(sessionDir)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	var obs *observer
	if cfg.stream {
		obs, err = newObserver(filepath.Join(sessionDir, "observer.pipe"))
		if err != nil {
			logFile.Close()
			return nil, fmt.Errorf("session: %w", err)
		}
	}

	s := &Session{
		id:        id,
		command:   command,
		program:   program,
		args:      args,
		cfg:       cfg,
		ring:      newRingBuffer(DefaultRingBytes),
		startedAt: time.Now(),
		closeDone: make(chan struct{}),
		log:       logFile,
		obs:       obs,
	}
	s.lastActivity = s.startedAt

	needsStore := cfg.replay || cfg.record != record.Disabled
	if needsStore {
		if cfg.tapesPath == "" {
			return nil, ctlerr.NewSessionError("tapes_path is required when replay or record is enabled")
		}
		st := store.New(cfg.tapesPath)
		if err := st.LoadAll(); err != nil {
			return nil, fmt.Errorf("session: load tapes: %w", err)
		}
		builder := match.NewKeyBuilder(cfg.allowEnv, cfg.ignoreEnv, cfg.stdinMatcher, cfg.commandMatcher)
		st.BuildIndex(builder)
		s.store = st
		s.builder = builder
		s.nameGen = store.DefaultNameGenerator(cfg.tapesPath)
	}

	if cfg.record != record.Disabled {
		sessionInfo := tape.SessionInfo{Platform: runtime.GOOS, Version: Version}
		recOpts := []record.Option{record.WithDims(cfg.rows, cfg.cols)}
		if cfg.inputDecorator != nil {
			recOpts = append(recOpts, record.WithInputDecorator(cfg.inputDecorator))
		}
		if cfg.outputDecorator != nil {
			recOpts = append(recOpts, record.WithOutputDecorator(cfg.outputDecorator))
		}
		if cfg.tapeDecorator != nil {
			recOpts = append(recOpts, record.WithTapeDecorator(cfg.tapeDecorator))
		}
		s.recorder = record.NewRecorder(cfg.record, s.store, s.builder, s.nameGen, sessionInfo, recOpts...)
	}

	if cfg.replay {
		s.replayT = replay.New(s.store, s.builder, s.ctxFunc, cfg.latency, cfg.errorRate, s.onChildOutput)
		s.publishEvent(events.EventSessionStarted, "")
		s.auditSessionStart()
		return s, nil
	}

	child, err := spawnChild(program, args, cfg.cwd, envSlice(cfg.env), cfg.rows, cfg.cols, cfg.backend)
	if err != nil {
		logFile.Close()
		obs.Close()
		return nil, &ctlerr.ProcessError{Command: command, Err: err}
	}
	s.child = child
	s.startPump()
	s.publishEvent(events.EventSessionStarted, "")
	s.auditSessionStart()
	return s, nil
}

// sessionMode names this session's operating mode for the audit trail:
// replay, record, or plain live.
func (s *Session) sessionMode() string {
	switch {
	case s.cfg.replay:
		return "replay"
	case s.cfg.record != record.Disabled:
		return "record"
	default:
		return "live"
	}
}

// auditSessionStart is a best-effort fire-and-forget insert: a nil
// audit DB, or a record error, never affects the caller.
func (s *Session) auditSessionStart() {
	if s.cfg.audit == nil {
		return
	}
	s.cfg.audit.RecordSessionStart(context.Background(), s.id, s.command, s.sessionMode())
}

// auditSessionEnd records this session's terminal state. Called once,
// from closeInternal, after exitCode/signal/closedAt are finalized.
func (s *Session) auditSessionEnd() {
	if s.cfg.audit == nil {
		return
	}
	s.cfg.audit.RecordSessionEnd(context.Background(), s.id, s.closedAt, s.exitCode, s.signal)
}

// auditExchange records one send/response round trip, assigning it the
// session's next sequence number. A nil audit DB makes this a no-op.
func (s *Session) auditExchange(inputKind string, inputBytes, outputBytes int, tapePath string, miss bool) {
	if s.cfg.audit == nil {
		return
	}
	s.mu.Lock()
	s.exchangeSeq++
	seq := s.exchangeSeq
	s.mu.Unlock()
	s.cfg.audit.RecordExchange(context.Background(), s.id, seq, inputKind, inputBytes, outputBytes, tapePath, miss)
}

// publishEvent is a best-effort fire-and-forget publish: a nil or
// inactive bus, or a publish error, never affects the caller.
func (s *Session) publishEvent(t events.EventType, tapePath string) {
	if s.cfg.events == nil {
		return
	}
	s.cfg.events.Publish(events.Event{
		Type:      t,
		SessionID: s.id,
		Command:   s.command,
		TapePath:  tapePath,
	})
}

func newSessionID() string {
	return fmt.Sprintf("%d-%04x", time.Now().UnixNano(), rand.Intn(0x10000))
}

func envSlice(env map[string]string) []string {
	if env == nil {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Command returns the exact command line this session was started with.
func (s *Session) Command() string { return s.command }

// StartedAt returns the time the session was constructed.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// LastActivity returns the time output was last observed.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// OnClose registers a callback invoked once, when the session
// transitions to closed. Used by the registry to deregister itself
// without the session package needing to know about the registry.
func (s *Session) OnClose(fn func()) {
	s.mu.Lock()
	s.onCloseFn = fn
	s.mu.Unlock()
}

func (s *Session) usingReplay() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replayT != nil
}

func (s *Session) ctxFunc() match.MatchingContext {
	s.mu.Lock()
	prompt := s.lastPrompt
	s.mu.Unlock()
	return match.MatchingContext{Program: s.program, Args: s.args, Env: s.cfg.env, Cwd: s.cfg.cwd, Prompt: prompt}
}

// IsAlive reports false if the session never started, is closed, or
// has observed EOF.
func (s *Session) IsAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// ExitStatus returns the child's exit code, or nil until it has exited.
func (s *Session) ExitStatus() *int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitCode
}

func (s *Session) startPump() {
	go func() {
		buf := make([]byte, 32*1024)
		for {
			n, err := s.child.Read(buf)
			if n > 0 {
				chunk := append([]byte(nil), buf[:n]...)
				s.onChildOutput(chunk)
			}
			if err != nil {
				s.finalizeLive(err)
				return
			}
		}
	}()
}

func (s *Session) finalizeLive(readErr error) {
	waitErr := s.child.Wait()
	s.child.Close()
	code, sig := exitInfo(waitErr)

	s.mu.Lock()
	alreadyClosed := s.closed
	if !alreadyClosed {
		s.closed = true
		s.closedAt = time.Now()
		s.exitCode = code
		s.signal = sig
	}
	s.mu.Unlock()

	if !alreadyClosed && s.recorder != nil && s.recorder.Active() {
		s.recorder.OnExchangeEnd(&tape.ExitInfo{Code: code, Signal: sig})
		s.recorder.Finalize()
	}
	s.closeInternal()
}

func exitInfo(err error) (*int, *int) {
	if err == nil {
		zero := 0
		return &zero, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if ws.Signaled() {
				sig := int(ws.Signal())
				return nil, &sig
			}
			code := ws.ExitStatus()
			return &code, nil
		}
	}
	return nil, nil
}

func (s *Session) closeInternal() {
	s.closeOnce.Do(func() {
		close(s.closeDone)
		s.publishEvent(events.EventSessionClosed, "")
		s.auditSessionEnd()
		if s.log != nil {
			s.log.Close()
		}
		if s.obs != nil {
			s.obs.Close()
		}
		s.mu.Lock()
		fn := s.onCloseFn
		s.mu.Unlock()
		if fn != nil {
			fn()
		}
	})
}

// Close terminates the session. For a live child: SIGTERM, a 500ms
// grace period, then SIGKILL if force or the child is still alive.
// For a replay transport: immediate. Idempotent.
func (s *Session) Close(force bool) error {
	s.mu.Lock()
	alreadyClosed := s.closed
	s.mu.Unlock()
	if alreadyClosed {
		return nil
	}

	if s.usingReplay() {
		if s.recorder != nil && s.recorder.Active() {
			s.recorder.OnExchangeEnd(nil)
			s.recorder.Finalize()
		}
		s.mu.Lock()
		s.closed = true
		s.closedAt = time.Now()
		s.mu.Unlock()
		if s.cfg.summary && s.store != nil {
			s.store.PrintSummary()
		}
		s.closeInternal()
		return nil
	}

	s.child.Close()
	select {
	case <-s.closeDone:
	case <-time.After(500 * time.Millisecond):
		if force {
			s.child.Kill()
		}
		<-s.closeDone
	}
	if s.cfg.summary && s.store != nil {
		s.store.PrintSummary()
	}
	return nil
}

// Interact blocks, forwarding the local terminal to the child, until
// the child exits, Ctrl-] is pressed, or the caller's context is
// canceled. Not supported against a replay transport.
func (s *Session) Interact(ctx context.Context) error {
	if s.usingReplay() {
		return ctlerr.NewSessionError("interact is not supported against a replay transport")
	}

	fd := os.Stdin.Fd()
	state, err := term.SetRawTerminal(fd)
	if err == nil {
		defer term.RestoreTerminal(fd, state)
	}

	stop := make(chan struct{})
	var stopOnce sync.Once
	closeStop := func() { stopOnce.Do(func() { close(stop) }) }

	go func() {
		buf := make([]byte, 1)
		for {
			n, rerr := os.Stdin.Read(buf)
			if rerr != nil || n == 0 {
				closeStop()
				return
			}
			if buf[0] == interactEscape {
				closeStop()
				return
			}
			s.child.Write(buf[:1])
		}
	}()

	for {
		select {
		case <-stop:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if !s.IsAlive() {
			return nil
		}
		out, _ := s.ReadNonblocking(4096, 50*time.Millisecond)
		if len(out) > 0 {
			os.Stdout.Write(out)
		}
	}
}
