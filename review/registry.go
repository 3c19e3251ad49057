package review

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Scope decides how long a session lives.
type Scope string

const (
	// ScopeProcess shares one session for the whole process.
	ScopeProcess Scope = "process"
	// ScopeBrowser gives every browser its own session.
	ScopeBrowser Scope = "browser"
)

func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case "", ScopeProcess:
		return ScopeProcess, nil
	case ScopeBrowser:
		return ScopeBrowser, nil
	default:
		return "", fmt.Errorf("unknown session scope %q", s)
	}
}

const (
	processKey = "process"

	// DefaultSessionIdle is how long a browser session survives without a
	// request.
	DefaultSessionIdle = 12 * time.Hour
	// DefaultMaxSessions caps the number of browser sessions.
	DefaultMaxSessions = 64
)

type session struct {
	loop     *Loop
	lastUsed time.Time
}

// Registry hands out review loops by session key. Browser sessions that go
// unused for longer than the idle limit are dropped, and the least recently
// used one makes room when the cap is reached.
type Registry struct {
	scope   Scope
	factory func() *Loop
	idle    time.Duration
	max     int
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

func NewRegistry(scope Scope, factory func() *Loop) *Registry {
	return &Registry{
		scope:    scope,
		factory:  factory,
		idle:     DefaultSessionIdle,
		max:      DefaultMaxSessions,
		now:      time.Now,
		sessions: map[string]*session{},
	}
}

func (r *Registry) Scope() Scope { return r.scope }

func (r *Registry) key(key string) string {
	if r.scope == ScopeProcess || key == "" {
		return processKey
	}
	return key
}

// Get returns the loop for key, creating it on first use. In process scope
// the key is ignored.
func (r *Registry) Get(key string) *Loop {
	key = r.key(key)
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if s, ok := r.sessions[key]; ok {
		s.lastUsed = now
		return s.loop
	}
	if r.scope == ScopeBrowser {
		r.evict(now)
	}
	s := &session{loop: r.factory(), lastUsed: now}
	r.sessions[key] = s
	return s.loop
}

// Lookup returns the loop for key without creating one.
func (r *Registry) Lookup(key string) (*Loop, bool) {
	key = r.key(key)
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[key]
	if !ok {
		return nil, false
	}
	s.lastUsed = r.now()
	return s.loop, true
}

// evict drops idle sessions, then the least recently used ones until there is
// room for one more. Callers hold r.mu.
func (r *Registry) evict(now time.Time) {
	r.dropIdle(now)
	for r.max > 0 && len(r.sessions) >= r.max {
		oldest := ""
		for k, s := range r.sessions {
			if oldest == "" || s.lastUsed.Before(r.sessions[oldest].lastUsed) {
				oldest = k
			}
		}
		delete(r.sessions, oldest)
	}
}

func (r *Registry) dropIdle(now time.Time) {
	for k, s := range r.sessions {
		if now.Sub(s.lastUsed) > r.idle {
			delete(r.sessions, k)
		}
	}
}

// Loops returns every live session, in key order. Browser sessions past the
// idle limit are dropped first.
func (r *Registry) Loops() []*Loop {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scope == ScopeBrowser {
		r.dropIdle(r.now())
	}
	keys := make([]string, 0, len(r.sessions))
	for k := range r.sessions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*Loop, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.sessions[k].loop)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
