package presence

import (
	"sync"
	"time"
)

// PresenceState is a runner's liveness as derived from update recency.
type PresenceState struct {
	RunnerID string    `json:"runner_id"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen"`
}

type entry struct {
	lastSeen time.Time
	offline  bool // forced by explicit sign-out
}

// Registry tracks online/offline state per runner. A runner is online while
// its last update is younger than the TTL; expiry is evaluated lazily on
// read, no background sweep is required.
type Registry struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]entry
	now     func() time.Time
}

const DefaultTTL = 30 * time.Second

func NewRegistry(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{
		ttl:     ttl,
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Touch marks the runner online. LastSeen never regresses: an older at keeps
// the stored value. Returns true when the runner transitioned to online.
func (r *Registry) Touch(runnerID string, at time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, existed := r.entries[runnerID]
	wasOnline := existed && !e.offline && r.now().Sub(e.lastSeen) <= r.ttl

	if !existed || at.After(e.lastSeen) {
		e.lastSeen = at
	}
	e.offline = false
	r.entries[runnerID] = e

	return !wasOnline
}

// SetOffline forces a runner offline immediately, e.g. on explicit sign-out
// or a transport-level disconnect.
func (r *Registry) SetOffline(runnerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[runnerID]; ok {
		e.offline = true
		r.entries[runnerID] = e
	}
}

// IsOnline evaluates the TTL lazily against the current time.
func (r *Registry) IsOnline(runnerID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[runnerID]
	if !ok || e.offline {
		return false
	}
	return r.now().Sub(e.lastSeen) <= r.ttl
}

// State returns the runner's presence record, if it has ever been seen.
func (r *Registry) State(runnerID string) (PresenceState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[runnerID]
	if !ok {
		return PresenceState{}, false
	}
	online := !e.offline && r.now().Sub(e.lastSeen) <= r.ttl
	return PresenceState{RunnerID: runnerID, Online: online, LastSeen: e.lastSeen}, true
}

// Sweep compacts the registry by deleting entries that have been offline for
// at least one extra TTL. Purely an index-size optimization; IsOnline gives
// the same answers with or without it.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for id, e := range r.entries {
		if e.offline || now.Sub(e.lastSeen) > 2*r.ttl {
			delete(r.entries, id)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep on an interval until the returned stop func is
// called.
func (r *Registry) StartSweeper(interval time.Duration) func() {
	if interval <= 0 {
		interval = DefaultTTL
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.Sweep()
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}
