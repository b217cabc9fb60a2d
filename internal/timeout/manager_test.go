package timeout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	events  []string
	running int
}

func (r *recorder) RecordTimeoutEvent(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) MonitorStarted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running++
}

func (r *recorder) MonitorStopped() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running--
}

func (r *recorder) active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func newTestManager(t *testing.T, signOut func(ctx context.Context, sessionID string) error) (*Manager, *fakeClock, *recorder) {
	t.Helper()
	clock := newFakeClock()
	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	mg, err := NewManager(ctx, scenarioConfig, ManagerOptions{SignOut: signOut, Recorder: rec, Now: clock.Now})
	require.NoError(t, err)
	mg.manualTicks = true
	return mg, clock, rec
}

func TestManagerRejectsBadConfig(t *testing.T) {
	_, err := NewManager(context.Background(), Config{}, ManagerOptions{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestOneMonitorPerSession(t *testing.T) {
	mg, _, rec := newTestManager(t, nil)
	mg.manualTicks = false
	first := mg.Acquire("s1")
	assert.Same(t, first, mg.Acquire("s1"))
	assert.NotSame(t, first, mg.Acquire("s2"))
	assert.Equal(t, 2, mg.Len())
	assert.Equal(t, 2, rec.active())

	mg.Release("s1")
	mg.Release("s1")
	assert.Equal(t, 1, mg.Len())
	assert.Equal(t, 1, rec.active())
	select {
	case <-first.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("released monitor kept ticking")
	}

	_, ok := mg.Lookup("s1")
	assert.False(t, ok)
	assert.NotSame(t, first, mg.Acquire("s1"))
}

func TestExpiredSessionIsReleased(t *testing.T) {
	var signedOut []string
	mg, clock, rec := newTestManager(t, func(ctx context.Context, sessionID string) error {
		signedOut = append(signedOut, sessionID)
		return nil
	})
	m := mg.Acquire("s1")
	clock.Advance(time.Hour)
	m.Tick()

	assert.Equal(t, []string{"s1"}, signedOut)
	_, ok := mg.Lookup("s1")
	assert.False(t, ok)
	assert.Equal(t, 0, rec.active())
	assert.Equal(t, []string{EventWarning, EventExpired}, rec.events)
}

func TestReauthSessionKeepsMonitor(t *testing.T) {
	var seen []string
	mg, clock, _ := newTestManager(t, func(ctx context.Context, sessionID string) error {
		return errors.New("down")
	})
	mg.opts.OnEvent = func(sessionID, event string, st State) {
		seen = append(seen, sessionID+":"+event)
	}
	m := mg.Acquire("s1")
	clock.Advance(time.Hour)
	m.Tick()

	got, ok := mg.Lookup("s1")
	require.True(t, ok)
	assert.True(t, got.State().ReauthRequired)
	assert.Equal(t, []string{"s1:warning", "s1:reauth_required"}, seen)
}
