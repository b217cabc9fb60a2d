package guard

import (
	"context"
	"sync"

	"github.com/agencyhub/portal/internal/rbac"
)

// NoticeTracker remembers which blocked paths already produced a notice for one
// guard mount, so repeated evaluations of the same path notify once.
type NoticeTracker struct {
	mu       sync.Mutex
	current  string
	notified map[string]struct{}
}

// NewNoticeTracker returns an empty tracker.
func NewNoticeTracker() *NoticeTracker {
	return &NoticeTracker{notified: make(map[string]struct{})}
}

// Observe records the path being evaluated. Moving to a different path clears the
// notified set.
func (t *NoticeTracker) Observe(path string) {
	path = rbac.NormalizePath(path)
	t.mu.Lock()
	defer t.mu.Unlock()
	if path == t.current {
		return
	}
	t.current = path
	clear(t.notified)
}

// ShouldNotify reports true the first time it is asked about path since the last
// path change, and false afterwards.
func (t *NoticeTracker) ShouldNotify(path string) bool {
	path = rbac.NormalizePath(path)
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, done := t.notified[path]; done {
		return false
	}
	t.notified[path] = struct{}{}
	return true
}

type trackerContextKey struct{}

// WithTracker installs t into ctx.
func WithTracker(ctx context.Context, t *NoticeTracker) context.Context {
	return context.WithValue(ctx, trackerContextKey{}, t)
}

// MustTrackerFromContext returns the installed tracker and panics when there is none.
func MustTrackerFromContext(ctx context.Context) *NoticeTracker {
	t, ok := ctx.Value(trackerContextKey{}).(*NoticeTracker)
	if !ok || t == nil {
		panic("guard: notice tracker read outside of a session scope")
	}
	return t
}
