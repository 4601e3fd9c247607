// Package pool implements the Session Pool: an in-memory admission
// controller enforcing global and per-project concurrency limits over
// running Sessions.
package pool

import (
	"sync"

	"github.com/wangmax2011/maxclaw/internal/bus"
)

const (
	// DefaultMaxGlobalConcurrent is the default ceiling on simultaneously
	// active Sessions across all Projects.
	DefaultMaxGlobalConcurrent = 5
	// DefaultMaxPerProject is the default ceiling on simultaneously active
	// Sessions for a single Project.
	DefaultMaxPerProject = 2
)

// Decision is the outcome of Admit.
type Decision struct {
	Allocated              bool
	Reason                 string // "global limit" | "per-project limit", set when !Allocated
	SuggestedQueuePosition int    // set when !Allocated and the caller wants to enqueue
}

// Config configures a Pool's limits.
type Config struct {
	MaxGlobalConcurrent int
	MaxPerProject       int
}

// Pool tracks active Sessions in two in-memory indices and enforces
// concurrency limits.
type Pool struct {
	mu                  sync.Mutex
	maxGlobalConcurrent int
	maxPerProject       int
	sessionsByID        map[string]string // sessionId -> projectId
	sessionsByProject   map[string]map[string]struct{}
	bus                 *bus.Bus
}

// New creates a Pool. Zero-valued Config fields fall back to the package
// defaults.
func New(cfg Config, b *bus.Bus) *Pool {
	maxGlobal := cfg.MaxGlobalConcurrent
	if maxGlobal <= 0 {
		maxGlobal = DefaultMaxGlobalConcurrent
	}
	maxPerProject := cfg.MaxPerProject
	if maxPerProject <= 0 {
		maxPerProject = DefaultMaxPerProject
	}
	return &Pool{
		maxGlobalConcurrent: maxGlobal,
		maxPerProject:       maxPerProject,
		sessionsByID:        make(map[string]string),
		sessionsByProject:   make(map[string]map[string]struct{}),
		bus:                 b,
	}
}

// Admit reports whether a new Session for projectID could be allocated
// without changing any state.
func (p *Pool) Admit(projectID string) Decision {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.admitLocked(projectID)
}

func (p *Pool) admitLocked(projectID string) Decision {
	if len(p.sessionsByID) >= p.maxGlobalConcurrent {
		return Decision{Allocated: false, Reason: "global limit", SuggestedQueuePosition: len(p.sessionsByID) - p.maxGlobalConcurrent + 1}
	}
	if len(p.sessionsByProject[projectID]) >= p.maxPerProject {
		return Decision{Allocated: false, Reason: "per-project limit"}
	}
	return Decision{Allocated: true}
}

// Allocate re-checks Admit and, if still allowed, records sessionID against
// projectID. Returns the (possibly rejecting) Decision.
func (p *Pool) Allocate(sessionID, projectID string) Decision {
	p.mu.Lock()
	decision := p.admitLocked(projectID)
	if !decision.Allocated {
		p.mu.Unlock()
		return decision
	}
	p.sessionsByID[sessionID] = projectID
	if p.sessionsByProject[projectID] == nil {
		p.sessionsByProject[projectID] = make(map[string]struct{})
	}
	p.sessionsByProject[projectID][sessionID] = struct{}{}
	p.mu.Unlock()

	if p.bus != nil {
		p.bus.Publish("session.allocated", bus.Message{Type: bus.TypeNotification, Payload: map[string]string{"sessionId": sessionID, "projectId": projectID}})
	}
	return decision
}

// Release removes sessionID from the pool, dropping the projectId entry
// entirely once it has no more active Sessions.
func (p *Pool) Release(sessionID string) {
	p.mu.Lock()
	projectID, ok := p.sessionsByID[sessionID]
	if !ok {
		p.mu.Unlock()
		return
	}
	delete(p.sessionsByID, sessionID)
	if set := p.sessionsByProject[projectID]; set != nil {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(p.sessionsByProject, projectID)
		}
	}
	p.mu.Unlock()

	if p.bus != nil {
		p.bus.Publish("session.released", bus.Message{Type: bus.TypeNotification, Payload: map[string]string{"sessionId": sessionID, "projectId": projectID}})
	}
}

// ActiveCount returns the total number of Sessions currently tracked.
func (p *Pool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessionsByID)
}

// ActiveCountForProject returns the number of Sessions currently tracked for
// projectID.
func (p *Pool) ActiveCountForProject(projectID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessionsByProject[projectID])
}
