package timeout

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agencyhub/portal/internal/i18n"
	"github.com/agencyhub/portal/internal/shared"
	"github.com/agencyhub/portal/internal/view"
)

type handlerHarness struct {
	handler *Handler
	manager *Manager
	clock   *fakeClock
	sess    *shared.Session
}

func newHandlerHarness(t *testing.T, signOut func(ctx context.Context, sessionID string) error) *handlerHarness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessions := shared.NewSessionManager(client, "test_session", "secret", time.Hour, false)
	sess, err := sessions.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	sess.SetUser("7")

	mg, clock, _ := newTestManager(t, signOut)
	templates, err := view.NewEngine()
	require.NoError(t, err)
	h := NewHandler(nil, mg, templates, i18n.NewLocalizer("en-US"))
	templates.Use(h.Decorator())
	return &handlerHarness{handler: h, manager: mg, clock: clock, sess: sess}
}

func (hh *handlerHarness) router() http.Handler {
	mux := http.NewServeMux()
	page := hh.handler.Enforce(hh.handler.TrackActivity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hh.handler.templates.Page(w, r, http.StatusOK, "pages/module.html", "Dashboard", map[string]any{"Summary": "ok"})
	})))
	mux.Handle("/dashboard", page)
	mux.Handle("/auth/login", hh.handler.Enforce(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))
	mux.HandleFunc("/session/timeout", hh.handler.status)
	mux.HandleFunc("/session/timeout/ws", hh.handler.stream)
	mux.HandleFunc("/session/extend", hh.handler.extend)
	mux.HandleFunc("/session/activity", hh.handler.activity)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mux.ServeHTTP(w, r.WithContext(shared.ContextWithSession(r.Context(), hh.sess)))
	})
}

func (hh *handlerHarness) do(method, target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res := httptest.NewRecorder()
	hh.router().ServeHTTP(res, req)
	return res
}

func TestPageRequestStartsMonitorAndRendersDialog(t *testing.T) {
	hh := newHandlerHarness(t, nil)
	res := hh.do(http.MethodGet, "/dashboard", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, 1, hh.manager.Len())
	body := res.Body.String()
	assert.Contains(t, body, `id="session-timeout"`)
	assert.Contains(t, body, `data-remaining="1800"`)
	assert.NotContains(t, body, " open\n")
}

func TestStatusRequiresMonitor(t *testing.T) {
	hh := newHandlerHarness(t, nil)
	res := hh.do(http.MethodGet, "/session/timeout", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	hh.manager.Acquire(hh.sess.ID)
	res = hh.do(http.MethodGet, "/session/timeout", nil)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `"remaining_seconds":1800`)
}

func TestExtendEndpoint(t *testing.T) {
	hh := newHandlerHarness(t, nil)
	m := hh.manager.Acquire(hh.sess.ID)
	hh.clock.Advance(1700 * time.Second)
	require.True(t, m.Tick().WarningShown)

	res := hh.do(http.MethodPost, "/session/activity", nil)
	assert.Equal(t, http.StatusNoContent, res.Code)
	assert.True(t, m.State().WarningShown)

	res = hh.do(http.MethodPost, "/session/extend", nil)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `"warning_shown":false`)
	assert.False(t, m.State().WarningShown)
}

func TestExtendFormRedirectsBack(t *testing.T) {
	hh := newHandlerHarness(t, nil)
	hh.manager.Acquire(hh.sess.ID)
	res := hh.do(http.MethodPost, "/session/extend", map[string]string{
		"Content-Type": "application/x-www-form-urlencoded",
		"Referer":      "http://example.com/analytics?tab=traffic",
	})
	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/analytics?tab=traffic", res.Header().Get("Location"))

	res = hh.do(http.MethodPost, "/session/extend", map[string]string{
		"Content-Type": "application/x-www-form-urlencoded",
		"Referer":      "http://evil.example/phish",
	})
	assert.Equal(t, "/dashboard", res.Header().Get("Location"))
}

func TestReauthRequiredBlocksPages(t *testing.T) {
	hh := newHandlerHarness(t, func(ctx context.Context, sessionID string) error {
		return errors.New("provider down")
	})
	m := hh.manager.Acquire(hh.sess.ID)
	hh.clock.Advance(time.Hour)
	require.True(t, m.Tick().ReauthRequired)

	res := hh.do(http.MethodGet, "/dashboard", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Contains(t, res.Body.String(), "Your session has ended. Please sign in again.")

	res = hh.do(http.MethodPost, "/session/extend", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	res = hh.do(http.MethodGet, "/auth/login", nil)
	assert.Equal(t, http.StatusOK, res.Code)
}

func TestStreamPushesStateAndAcceptsExtend(t *testing.T) {
	hh := newHandlerHarness(t, nil)
	m := hh.manager.Acquire(hh.sess.ID)
	srv := httptest.NewServer(hh.router())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/session/timeout/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var st State
	require.NoError(t, conn.ReadJSON(&st))
	assert.Equal(t, 1800, st.RemainingSeconds)

	hh.clock.Advance(1700 * time.Second)
	m.Tick()
	require.NoError(t, conn.ReadJSON(&st))
	assert.True(t, st.WarningShown)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": MessageExtend}))
	require.NoError(t, conn.ReadJSON(&st))
	assert.False(t, st.WarningShown)
	assert.Equal(t, 1800, st.RemainingSeconds)
}
