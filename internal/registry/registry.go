// Package registry implements the session registry: a single
// process-wide map of live sessions, guarded by one mutex, with
// reuse-by-command, a capacity cap, and best-effort cleanup.
package registry

import (
	"sync"
	"syscall"
	"time"

	"github.com/tapehouse/controltape/internal/ctlerr"
	"github.com/tapehouse/controltape/internal/session"
)

// Descriptor is a point-in-time snapshot of a registered session, safe
// to hand out to callers without exposing the live Session value.
type Descriptor struct {
	ID           string
	Command      string
	Alive        bool
	StartedAt    time.Time
	LastActivity time.Time
	ExitStatus   *int
}

// Registry owns every session created through it, up to MaxSessions.
type Registry struct {
	MaxSessions int

	mu       sync.Mutex
	sessions map[string]*session.Session
}

// New returns an empty Registry capped at maxSessions. A value of 0 or
// less means unlimited.
func New(maxSessions int) *Registry {
	return &Registry{
		MaxSessions: maxSessions,
		sessions:    make(map[string]*session.Session),
	}
}

// Control returns the first alive session whose command equals the
// requested one, when reuse is true. Otherwise (or if none match) it
// constructs a new session via session.New, enforcing MaxSessions
// before the child spawns.
func (r *Registry) Control(command string, reuse bool, opts ...session.Option) (*session.Session, error) {
	if reuse {
		if s := r.findReusable(command); s != nil {
			return s, nil
		}
	}

	r.mu.Lock()
	if r.MaxSessions > 0 && len(r.sessions) >= r.MaxSessions {
		r.mu.Unlock()
		return nil, ctlerr.NewSessionError("registry is at capacity (%d sessions)", r.MaxSessions)
	}
	r.mu.Unlock()

	s, err := session.New(command, opts...)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.sessions[s.ID()] = s
	r.mu.Unlock()

	id := s.ID()
	s.OnClose(func() { r.remove(id) })
	return s, nil
}

func (r *Registry) findReusable(command string) *session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.Command() == command && s.IsAlive() {
			return s
		}
	}
	return nil
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Get returns the session registered under id, or nil.
func (r *Registry) Get(id string) *session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

// List returns descriptors for every registered session. activeOnly
// filters to sessions whose IsAlive() is currently true.
func (r *Registry) List(activeOnly bool) []Descriptor {
	r.mu.Lock()
	snapshot := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		snapshot = append(snapshot, s)
	}
	r.mu.Unlock()

	out := make([]Descriptor, 0, len(snapshot))
	for _, s := range snapshot {
		alive := s.IsAlive()
		if activeOnly && !alive {
			continue
		}
		out = append(out, Descriptor{
			ID:           s.ID(),
			Command:      s.Command(),
			Alive:        alive,
			StartedAt:    s.StartedAt(),
			LastActivity: s.LastActivity(),
			ExitStatus:   s.ExitStatus(),
		})
	}
	return out
}

// CleanupSessions closes sessions under this registry. With force it
// closes every one regardless of state; otherwise it closes sessions
// that are dead or whose last activity is older than maxAge. Victims
// are collected under the lock but closed outside it, so a session's
// own Close -> OnClose -> remove callback never deadlocks against this
// call.
func (r *Registry) CleanupSessions(force bool, maxAge time.Duration) int {
	r.mu.Lock()
	var victims []*session.Session
	now := time.Now()
	for _, s := range r.sessions {
		if force || !s.IsAlive() || now.Sub(s.LastActivity()) > maxAge {
			victims = append(victims, s)
		}
	}
	r.mu.Unlock()

	for _, s := range victims {
		s.Close(true)
	}
	return len(victims)
}

// Len returns the number of currently registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CleanupZombies reaps any already-terminated child processes of the
// controller that nothing has wait()ed on yet, independent of the
// session map (a session's own child is reaped by its pump goroutine;
// this covers stray grandchildren a program may have forked and
// abandoned).
func CleanupZombies() int {
	reaped := 0
	for {
		var ws syscall.WaitStatus
		pid, err := syscall.Wait4(-1, &ws, syscall.WNOHANG, nil)
		if err != nil || pid <= 0 {
			break
		}
		reaped++
	}
	return reaped
}
