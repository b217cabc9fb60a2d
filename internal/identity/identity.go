// Package identity describes the authenticated principal as seen by the access layer.
// The provider behind it is external; the access layer only reads snapshots and asks it
// to sign a session out.
package identity

import (
	"context"
	"net/http"

	"github.com/agencyhub/portal/internal/rbac"
)

// Principal is the real authenticated user.
type Principal struct {
	ID          int64
	DisplayName string
	Email       string
	Role        rbac.Role
	ClientID    *int64
}

// Snapshot is the identity provider state for one request.
type Snapshot struct {
	User    *Principal
	Loading bool
}

// Authenticated reports whether a principal is present and resolved.
func (s Snapshot) Authenticated() bool {
	return !s.Loading && s.User != nil
}

// Role returns the real role or the empty role when unauthenticated.
func (s Snapshot) Role() rbac.Role {
	if s.User == nil {
		return ""
	}
	return s.User.Role
}

// Provider is implemented by the identity adapter.
type Provider interface {
	Resolve(r *http.Request) Snapshot
	SignOut(ctx context.Context, sessionID string) error
}

type snapshotContextKey struct{}

// WithSnapshot stores the resolved snapshot in ctx.
func WithSnapshot(ctx context.Context, snap Snapshot) context.Context {
	return context.WithValue(ctx, snapshotContextKey{}, snap)
}

// FromContext returns the snapshot stored by the guard, if any.
func FromContext(ctx context.Context) (Snapshot, bool) {
	snap, ok := ctx.Value(snapshotContextKey{}).(Snapshot)
	return snap, ok
}
