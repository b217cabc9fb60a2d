package scope

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agencyhub/portal/internal/guard"
	"github.com/agencyhub/portal/internal/impersonation"
	"github.com/agencyhub/portal/internal/rbac"
	"github.com/agencyhub/portal/internal/simulation"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestRegistry(ttl time.Duration) (*Registry, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	r := NewRegistry(ttl)
	r.now = clock.Now
	return r, clock
}

func TestAcquireReturnsSameScope(t *testing.T) {
	r, _ := newTestRegistry(time.Hour)
	first := r.Acquire("s1")
	assert.Same(t, first, r.Acquire("s1"))
	assert.NotSame(t, first, r.Acquire("s2"))
	assert.Equal(t, 2, r.Len())
}

func TestScopesAreIndependent(t *testing.T) {
	r, _ := newTestRegistry(time.Hour)
	require.NoError(t, r.Acquire("s1").Simulation.Start(rbac.RoleStaff, rbac.DefaultModuleAccess(rbac.RoleStaff), simulation.Scoping{}))
	assert.True(t, r.Acquire("s1").Simulation.IsSimulating())
	assert.False(t, r.Acquire("s2").Simulation.IsSimulating())
}

func TestIdleScopesExpire(t *testing.T) {
	r, clock := newTestRegistry(30 * time.Minute)
	sc := r.Acquire("s1")
	require.NoError(t, sc.Impersonation.Start(impersonation.User{ID: 9}))

	clock.now = clock.now.Add(20 * time.Minute)
	_, ok := r.Lookup("s1")
	assert.True(t, ok)
	r.Acquire("s1")

	clock.now = clock.now.Add(31 * time.Minute)
	_, ok = r.Lookup("s1")
	assert.False(t, ok)
	assert.False(t, r.Acquire("s1").Impersonation.IsImpersonating())
}

func TestCleanupSweepsOtherSessions(t *testing.T) {
	r, clock := newTestRegistry(time.Minute)
	r.Acquire("old")
	clock.now = clock.now.Add(2 * time.Minute)
	r.Acquire("new")
	assert.Equal(t, 1, r.Len())
}

func TestDeleteStopsOverlays(t *testing.T) {
	r, _ := newTestRegistry(time.Hour)
	sc := r.Acquire("s1")
	require.NoError(t, sc.Simulation.Start(rbac.RoleStaff, rbac.DefaultModuleAccess(rbac.RoleStaff), simulation.Scoping{}))
	require.NoError(t, sc.Impersonation.Start(impersonation.User{ID: 3}))

	r.Delete("s1")
	assert.False(t, sc.Simulation.IsSimulating())
	assert.False(t, sc.Impersonation.IsImpersonating())
	_, ok := r.Lookup("s1")
	assert.False(t, ok)
	r.Delete("s1")
}

func TestMiddlewareWithoutSessionLeavesContextEmpty(t *testing.T) {
	r, _ := newTestRegistry(time.Hour)
	var panicked bool
	handler := r.Middleware(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() { panicked = recover() != nil }()
		guard.MustTrackerFromContext(req.Context())
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, panicked)
	assert.Equal(t, 0, r.Len())
}
