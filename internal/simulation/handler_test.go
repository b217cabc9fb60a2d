package simulation

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agencyhub/portal/internal/i18n"
	"github.com/agencyhub/portal/internal/identity"
	"github.com/agencyhub/portal/internal/rbac"
	"github.com/agencyhub/portal/internal/shared"
)

type stubModules struct {
	err error
}

func (s stubModules) ModuleAccess(_ context.Context, role rbac.Role) (rbac.ModuleAccessMap, error) {
	if s.err != nil {
		return nil, s.err
	}
	return rbac.DefaultModuleAccess(role), nil
}

type memoryAuditor struct {
	entries []shared.AuditLog
}

func (m *memoryAuditor) RecordAudit(_ context.Context, entry shared.AuditLog) error {
	m.entries = append(m.entries, entry)
	return nil
}

type overlayRecorder struct {
	events []string
}

func (o *overlayRecorder) RecordOverlay(overlay, action string) {
	o.events = append(o.events, overlay+":"+action)
}

type handlerFixture struct {
	router   chi.Router
	sim      *Context
	sess     *shared.Session
	auditor  *memoryAuditor
	recorder *overlayRecorder
}

func newHandlerFixture(t *testing.T, modules ModuleSource) *handlerFixture {
	t.Helper()
	sessions := shared.NewSessionManager(nil, "test_session", "secret", time.Hour, false)
	sess, err := sessions.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	f := &handlerFixture{sim: New(), sess: sess, auditor: &memoryAuditor{}, recorder: &overlayRecorder{}}
	h := NewHandler(nil, modules, i18n.NewLocalizer("en-US"), f.auditor, f.recorder)
	h.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }

	admin := identity.Snapshot{User: &identity.Principal{ID: 1, DisplayName: "Ayu", Role: rbac.RoleAdmin}}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := shared.ContextWithSession(req.Context(), f.sess)
			ctx = WithContext(ctx, f.sim)
			ctx = identity.WithSnapshot(ctx, admin)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Route("/role-simulation", h.MountRoutes)
	f.router = r
	return f
}

func (f *handlerFixture) post(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func TestStartSimulationFromForm(t *testing.T) {
	f := newHandlerFixture(t, stubModules{})

	rr := f.post("/role-simulation/start", url.Values{"role": {"client-viewer"}, "client_id": {"7"}, "contact_id": {"9"}})

	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, StartedRedirect, rr.Header().Get("Location"))
	snap := f.sim.Snapshot()
	assert.True(t, snap.IsSimulating)
	assert.Equal(t, rbac.RoleClientViewer, snap.Role)
	assert.True(t, snap.Allows(rbac.ModuleDashboard))
	assert.False(t, snap.Allows(rbac.ModuleAnalytics))
	require.NotNil(t, snap.ClientID)
	assert.Equal(t, int64(7), *snap.ClientID)
	require.NotNil(t, snap.ContactID)
	assert.Equal(t, int64(9), *snap.ContactID)

	flash := f.sess.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "success", flash.Kind)
	assert.Equal(t, "Now viewing the portal as Client Viewer.", flash.Message)

	require.Len(t, f.auditor.entries, 1)
	entry := f.auditor.entries[0]
	assert.Equal(t, "simulation.start", entry.Action)
	assert.Equal(t, "role", entry.Entity)
	assert.Equal(t, "client_viewer", entry.EntityID)
	assert.Equal(t, int64(1), entry.ActorID)
	assert.Equal(t, int64(7), entry.Meta["client_id"])
	assert.Equal(t, []string{"simulation:start"}, f.recorder.events)
}

func TestStartSimulationRejectsInvalidInput(t *testing.T) {
	cases := map[string]url.Values{
		"missing role":        {},
		"unknown role":        {"role": {"superuser"}},
		"administrative role": {"role": {"admin"}},
		"bad client id":       {"role": {"staff"}, "client_id": {"seven"}},
	}
	for name, form := range cases {
		t.Run(name, func(t *testing.T) {
			f := newHandlerFixture(t, stubModules{})
			rr := f.post("/role-simulation/start", form)

			require.Equal(t, http.StatusSeeOther, rr.Code)
			assert.Equal(t, StoppedRedirect, rr.Header().Get("Location"))
			assert.False(t, f.sim.IsSimulating())
			flash := f.sess.PopFlash()
			require.NotNil(t, flash)
			assert.Equal(t, "error", flash.Kind)
			assert.Empty(t, f.auditor.entries)
		})
	}
}

func TestStartSimulationRejectsSecondRole(t *testing.T) {
	f := newHandlerFixture(t, stubModules{})
	f.post("/role-simulation/start", url.Values{"role": {"client_viewer"}})
	f.sess.PopFlash()

	rr := f.post("/role-simulation/start", url.Values{"role": {"staff"}})

	assert.Equal(t, StoppedRedirect, rr.Header().Get("Location"))
	assert.Equal(t, rbac.RoleClientViewer, f.sim.Role())
	flash := f.sess.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "Stop the current simulation before simulating another role.", flash.Message)
}

func TestStartSimulationModuleSourceFailure(t *testing.T) {
	f := newHandlerFixture(t, stubModules{err: errors.New("db down")})

	rr := f.post("/role-simulation/start", url.Values{"role": {"staff"}})

	assert.Equal(t, StoppedRedirect, rr.Header().Get("Location"))
	assert.False(t, f.sim.IsSimulating())
	assert.Empty(t, f.recorder.events)
}

func TestStopSimulation(t *testing.T) {
	f := newHandlerFixture(t, stubModules{})
	f.post("/role-simulation/start", url.Values{"role": {"manager"}})
	f.sess.PopFlash()

	rr := f.post("/role-simulation/stop", nil)
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, StoppedRedirect, rr.Header().Get("Location"))
	assert.False(t, f.sim.IsSimulating())
	flash := f.sess.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "Role simulation ended.", flash.Message)

	// A second stop changes nothing and records nothing.
	rr = f.post("/role-simulation/stop", nil)
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Nil(t, f.sess.PopFlash())
	assert.Equal(t, []string{"simulation:start", "simulation:stop"}, f.recorder.events)
	require.Len(t, f.auditor.entries, 2)
	assert.Equal(t, "simulation.stop", f.auditor.entries[1].Action)
	assert.Equal(t, "manager", f.auditor.entries[1].EntityID)
}
