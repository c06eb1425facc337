package session

import (
	"time"

	"github.com/tapehouse/controltape/internal/audit"
	"github.com/tapehouse/controltape/internal/events"
	"github.com/tapehouse/controltape/internal/execenv"
	"github.com/tapehouse/controltape/internal/match"
	"github.com/tapehouse/controltape/internal/record"
	"github.com/tapehouse/controltape/internal/replay"
	"github.com/tapehouse/controltape/internal/tape"
)

// FallbackMode governs what happens when a replay send finds no
// matching tape exchange.
type FallbackMode int

const (
	// NotFound surfaces the miss to the caller as an error.
	NotFound FallbackMode = iota
	// Proxy upgrades the session to a live child and re-executes the
	// current send.
	Proxy
)

// config collects every construction option enumerated by the
// session's external interface.
type config struct {
	timeout    time.Duration
	cwd        string
	env        map[string]string
	rows, cols int

	persist bool
	stream  bool
	appName string

	replay    bool
	tapesPath string
	record    record.Mode
	fallback  FallbackMode
	summary   bool

	latency   replay.LatencyPolicy
	errorRate replay.ErrorPolicy

	allowEnv, ignoreEnv []string
	stdinMatcher        match.StdinMatcher
	commandMatcher      match.CommandMatcher
	inputDecorator      func([]byte) []byte
	outputDecorator     func(tape.Chunk) tape.Chunk
	tapeDecorator       func(*tape.TapeMeta)

	events  *events.Bus
	backend execenv.Backend
	audit   *audit.DB
}

func defaultConfig() config {
	return config{
		timeout:  30 * time.Second,
		rows:     24,
		cols:     80,
		persist:  true,
		appName:  "controltape",
		record:   record.Disabled,
		fallback: NotFound,
	}
}

// Option configures a Session at construction.
type Option func(*config)

// WithTimeout sets the default expect timeout.
func WithTimeout(d time.Duration) Option { return func(c *config) { c.timeout = d } }

// WithCwd sets the child's working directory.
func WithCwd(dir string) Option { return func(c *config) { c.cwd = dir } }

// WithEnv sets the child's environment (nil inherits the controller's).
func WithEnv(env map[string]string) Option { return func(c *config) { c.env = env } }

// WithDimensions sets the initial PTY size.
func WithDimensions(rows, cols int) Option {
	return func(c *config) { c.rows, c.cols = rows, cols }
}

// WithPersist controls whether the session is registered with a registry.
func WithPersist(persist bool) Option { return func(c *config) { c.persist = persist } }

// WithStream enables a named observer pipe with tagged event lines.
func WithStream(stream bool) Option { return func(c *config) { c.stream = stream } }

// WithAppName overrides the app directory name used for session log paths.
func WithAppName(name string) Option { return func(c *config) { c.appName = name } }

// WithReplay enables replay mode against tapesPath.
func WithReplay(enabled bool, tapesPath string) Option {
	return func(c *config) { c.replay = enabled; c.tapesPath = tapesPath }
}

// WithTapesPath sets the tape store path without enabling replay mode —
// used by a record-only session, which still needs a store to load the
// existing index against for NEW/OVERWRITE duplicate detection.
func WithTapesPath(tapesPath string) Option {
	return func(c *config) { c.tapesPath = tapesPath }
}

// WithRecordMode sets the persistence policy for newly observed exchanges.
func WithRecordMode(mode record.Mode) Option { return func(c *config) { c.record = mode } }

// WithFallback sets the policy applied on a replay TapeMiss.
func WithFallback(mode FallbackMode) Option { return func(c *config) { c.fallback = mode } }

// WithSummary enables printing a tape usage summary at close.
func WithSummary(enabled bool) Option { return func(c *config) { c.summary = enabled } }

// WithLatency overrides recorded per-chunk delays during replay.
func WithLatency(p replay.LatencyPolicy) Option { return func(c *config) { c.latency = p } }

// WithErrorRate sets the replay error-injection policy.
func WithErrorRate(p replay.ErrorPolicy) Option { return func(c *config) { c.errorRate = p } }

// WithEnvFilter sets the allow/ignore env key lists used when matching
// and when writing new tape metadata.
func WithEnvFilter(allow, ignore []string) Option {
	return func(c *config) { c.allowEnv = allow; c.ignoreEnv = ignore }
}

// WithStdinMatcher overrides the stdin equality matcher.
func WithStdinMatcher(m match.StdinMatcher) Option { return func(c *config) { c.stdinMatcher = m } }

// WithCommandMatcher overrides the command tuple matcher.
func WithCommandMatcher(m match.CommandMatcher) Option {
	return func(c *config) { c.commandMatcher = m }
}

// WithInputDecorator sets a callback applied to recorded input bytes.
func WithInputDecorator(f func([]byte) []byte) Option {
	return func(c *config) { c.inputDecorator = f }
}

// WithOutputDecorator sets a callback applied to each recorded chunk.
func WithOutputDecorator(f func(tape.Chunk) tape.Chunk) Option {
	return func(c *config) { c.outputDecorator = f }
}

// WithTapeDecorator sets a callback applied to a new tape's metadata
// right before it is written.
func WithTapeDecorator(f func(*tape.TapeMeta)) Option {
	return func(c *config) { c.tapeDecorator = f }
}

// WithEvents attaches a lifecycle event bus. A nil or inactive bus
// makes every publish a no-op.
func WithEvents(bus *events.Bus) Option { return func(c *config) { c.events = bus } }

// WithBackend spawns the live child through backend instead of
// directly on the local machine — e.g. an execenv.DockerBackend to run
// the session's program inside an already-running container.
func WithBackend(backend execenv.Backend) Option { return func(c *config) { c.backend = backend } }

// WithAudit attaches an optional Postgres audit trail. A nil DB makes
// every record call a no-op.
func WithAudit(db *audit.DB) Option { return func(c *config) { c.audit = db } }
