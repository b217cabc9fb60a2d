// Package scope keeps the per-session overlay state: role simulation, impersonation
// and the guard's notice tracker. State lives in process memory only, so a restart
// resets every overlay.
package scope

import (
	"net/http"
	"sync"
	"time"

	"github.com/agencyhub/portal/internal/guard"
	"github.com/agencyhub/portal/internal/impersonation"
	"github.com/agencyhub/portal/internal/shared"
	"github.com/agencyhub/portal/internal/simulation"
)

const cleanupInterval = time.Minute

// Scope bundles the contexts owned by one session.
type Scope struct {
	Simulation    *simulation.Context
	Impersonation *impersonation.Context
	Notices       *guard.NoticeTracker

	expiresAt time.Time
}

func newScope() *Scope {
	return &Scope{
		Simulation:    simulation.New(),
		Impersonation: impersonation.New(),
		Notices:       guard.NewNoticeTracker(),
	}
}

// Registry maps session IDs to scopes. Entries idle for longer than the TTL are
// dropped lazily.
type Registry struct {
	mu          sync.Mutex
	scopes      map[string]*Scope
	ttl         time.Duration
	now         func() time.Time
	lastCleanup time.Time
}

// NewRegistry builds a Registry whose entries live ttl past their last use.
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{scopes: make(map[string]*Scope), ttl: ttl, now: time.Now}
}

// Acquire returns the scope for sessionID, creating it on first use, and extends
// its lifetime.
func (r *Registry) Acquire(sessionID string) *Scope {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.cleanupLocked(now)
	sc, ok := r.scopes[sessionID]
	if !ok || now.After(sc.expiresAt) {
		sc = newScope()
		r.scopes[sessionID] = sc
	}
	sc.expiresAt = now.Add(r.ttl)
	return sc
}

// Lookup returns the live scope for sessionID without creating one.
func (r *Registry) Lookup(sessionID string) (*Scope, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sc, ok := r.scopes[sessionID]
	if !ok {
		return nil, false
	}
	if r.now().After(sc.expiresAt) {
		delete(r.scopes, sessionID)
		return nil, false
	}
	return sc, true
}

// Delete drops the scope of a signed-out session. Both overlays are stopped first
// so holders of the old pointers observe an idle state.
func (r *Registry) Delete(sessionID string) {
	r.mu.Lock()
	sc, ok := r.scopes[sessionID]
	delete(r.scopes, sessionID)
	r.mu.Unlock()
	if ok {
		sc.Simulation.Stop()
		sc.Impersonation.Stop()
	}
}

// Len reports the number of tracked sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.scopes)
}

func (r *Registry) cleanupLocked(now time.Time) {
	if now.Sub(r.lastCleanup) < cleanupInterval {
		return
	}
	for id, sc := range r.scopes {
		if now.After(sc.expiresAt) {
			delete(r.scopes, id)
		}
	}
	r.lastCleanup = now
}

// Middleware installs the current session's scope into the request context. It
// must run after the session middleware.
func (r *Registry) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		sess := shared.SessionFromContext(req.Context())
		if sess == nil || sess.ID == "" {
			next.ServeHTTP(w, req)
			return
		}
		sc := r.Acquire(sess.ID)
		ctx := simulation.WithContext(req.Context(), sc.Simulation)
		ctx = impersonation.WithContext(ctx, sc.Impersonation)
		ctx = guard.WithTracker(ctx, sc.Notices)
		next.ServeHTTP(w, req.WithContext(ctx))
	})
}
