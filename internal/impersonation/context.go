// Package impersonation lets an administrator act as a specific end customer. It only
// substitutes who is acting for display and data scoping; it never narrows access.
package impersonation

import (
	"context"
	"errors"
	"sync"
)

// ErrInvalidTarget is returned when the target user has no ID.
var ErrInvalidTarget = errors.New("impersonation: target user required")

// User is the impersonated end customer.
type User struct {
	ID         int64
	Name       string
	ClientID   *int64
	ClientName string
}

// Snapshot is a consistent copy of the impersonation state.
type Snapshot struct {
	IsImpersonating bool
	User            *User
	Generation      uint64
}

// Context owns the impersonation state of one session.
type Context struct {
	mu    sync.RWMutex
	state Snapshot
}

// New returns an idle context.
func New() *Context {
	return &Context{}
}

// Start impersonates target, replacing any current target.
func (c *Context) Start(target User) error {
	if target.ID <= 0 {
		return ErrInvalidTarget
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Snapshot{
		IsImpersonating: true,
		User:            copyUser(&target),
		Generation:      c.state.Generation + 1,
	}
	return nil
}

// Stop ends impersonation. Stopping an idle context is a no-op.
func (c *Context) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.IsImpersonating {
		return
	}
	c.state = Snapshot{Generation: c.state.Generation + 1}
}

// Snapshot returns a detached copy of the state.
func (c *Context) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := c.state
	snap.User = copyUser(snap.User)
	return snap
}

// IsImpersonating reports whether a target is active.
func (c *Context) IsImpersonating() bool {
	return c.Snapshot().IsImpersonating
}

// ImpersonatedUser returns the active target or nil.
func (c *Context) ImpersonatedUser() *User {
	return c.Snapshot().User
}

// ActingUserID returns the impersonated user's ID when active, otherwise realID.
// Data-fetching collaborators scope their queries with it.
func (c *Context) ActingUserID(realID int64) int64 {
	if u := c.ImpersonatedUser(); u != nil {
		return u.ID
	}
	return realID
}

func copyUser(u *User) *User {
	if u == nil {
		return nil
	}
	out := *u
	if u.ClientID != nil {
		id := *u.ClientID
		out.ClientID = &id
	}
	return &out
}

type contextKey struct{}

// WithContext installs c into ctx.
func WithContext(ctx context.Context, c *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// MustFromContext returns the installed context and panics when there is none.
func MustFromContext(ctx context.Context) *Context {
	c, ok := ctx.Value(contextKey{}).(*Context)
	if !ok || c == nil {
		panic("impersonation: context read outside of a session scope")
	}
	return c
}
