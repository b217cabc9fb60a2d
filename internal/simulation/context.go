// Package simulation holds the role simulation overlay: an admin previews the portal
// through a lower-privileged role's module grants without changing who is signed in.
package simulation

import (
	"context"
	"errors"
	"sync"

	"github.com/agencyhub/portal/internal/rbac"
)

var (
	// ErrAlreadySimulating is returned when a different role is started over an active simulation.
	ErrAlreadySimulating = errors.New("simulation: another role is already being simulated")
	// ErrInvalidRole is returned for roles outside the closed set.
	ErrInvalidRole = errors.New("simulation: invalid role")
	// ErrModulesRequired is returned when no module map is supplied.
	ErrModulesRequired = errors.New("simulation: module access map required")
)

// Scoping narrows the simulation to one client and optionally one of its contacts.
type Scoping struct {
	ClientID  *int64
	ContactID *int64
}

// Snapshot is a consistent copy of the simulation state.
type Snapshot struct {
	IsSimulating bool
	Role         rbac.Role
	Modules      rbac.ModuleAccessMap
	ClientID     *int64
	ContactID    *int64
	// Generation changes on every start and stop.
	Generation uint64
}

// Allows reports whether the simulated role may open key.
func (s Snapshot) Allows(key rbac.ModuleKey) bool {
	return s.IsSimulating && s.Modules.Allows(key)
}

// Context owns the simulation state of one session. Role and module map are only
// ever written together inside Start and Stop.
type Context struct {
	mu    sync.RWMutex
	state Snapshot
}

// New returns an idle context.
func New() *Context {
	return &Context{}
}

// Start begins simulating role. Starting the role that is already active replaces
// its module map and scoping; starting a different role requires Stop first.
func (c *Context) Start(role rbac.Role, modules rbac.ModuleAccessMap, scoping Scoping) error {
	if !role.Valid() {
		return ErrInvalidRole
	}
	if modules == nil {
		return ErrModulesRequired
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.IsSimulating && c.state.Role != role {
		return ErrAlreadySimulating
	}
	c.state = Snapshot{
		IsSimulating: true,
		Role:         role,
		Modules:      modules.Clone(),
		ClientID:     copyID(scoping.ClientID),
		ContactID:    copyID(scoping.ContactID),
		Generation:   c.state.Generation + 1,
	}
	return nil
}

// Stop clears the simulation. Stopping an idle context is a no-op.
func (c *Context) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.IsSimulating {
		return
	}
	c.state = Snapshot{Generation: c.state.Generation + 1}
}

// Snapshot returns a copy that callers may keep and mutate freely.
func (c *Context) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := c.state
	snap.Modules = snap.Modules.Clone()
	snap.ClientID = copyID(snap.ClientID)
	snap.ContactID = copyID(snap.ContactID)
	return snap
}

// IsSimulating reports whether a simulation is active.
func (c *Context) IsSimulating() bool {
	return c.Snapshot().IsSimulating
}

// Role returns the simulated role, empty when idle.
func (c *Context) Role() rbac.Role {
	return c.Snapshot().Role
}

// Modules returns the simulated module map, nil when idle.
func (c *Context) Modules() rbac.ModuleAccessMap {
	return c.Snapshot().Modules
}

// ClientID returns the simulated client scope.
func (c *Context) ClientID() *int64 {
	return c.Snapshot().ClientID
}

// ContactID returns the simulated contact scope.
func (c *Context) ContactID() *int64 {
	return c.Snapshot().ContactID
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

type contextKey struct{}

// WithContext installs c into ctx.
func WithContext(ctx context.Context, c *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// MustFromContext returns the installed context. A missing context is a wiring bug,
// so it panics instead of pretending nobody is simulating.
func MustFromContext(ctx context.Context) *Context {
	c, ok := ctx.Value(contextKey{}).(*Context)
	if !ok || c == nil {
		panic("simulation: context read outside of a session scope")
	}
	return c
}
