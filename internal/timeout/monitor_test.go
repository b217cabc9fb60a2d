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

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var scenarioConfig = Config{IdleThreshold: 1800 * time.Second, WarningWindow: 120 * time.Second, TickInterval: time.Second}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) record(event string, _ State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func newTestMonitor(t *testing.T, signOut SignOutFunc) (*Monitor, *fakeClock, *eventLog) {
	t.Helper()
	clock := newFakeClock()
	events := &eventLog{}
	m, err := NewMonitor(scenarioConfig, Options{SignOut: signOut, OnEvent: events.record, Now: clock.Now})
	require.NoError(t, err)
	return m, clock, events
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, scenarioConfig.Validate())
	bad := []Config{
		{IdleThreshold: 0, WarningWindow: time.Second, TickInterval: time.Second},
		{IdleThreshold: time.Minute, WarningWindow: time.Minute, TickInterval: time.Second},
		{IdleThreshold: time.Minute, WarningWindow: 0, TickInterval: time.Second},
		{IdleThreshold: time.Minute, WarningWindow: time.Second, TickInterval: 2 * time.Second},
	}
	for _, cfg := range bad {
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig, "%+v", cfg)
	}
}

func TestWarningThenExtendRestoresThreshold(t *testing.T) {
	m, clock, events := newTestMonitor(t, nil)
	start := m.State().LastActivityAt

	clock.Advance(1679 * time.Second)
	st := m.Tick()
	assert.False(t, st.WarningShown)
	assert.Equal(t, 121, st.RemainingSeconds)

	clock.Advance(time.Second)
	st = m.Tick()
	assert.True(t, st.WarningShown)
	assert.Equal(t, 120, st.RemainingSeconds)

	clock.Advance(30 * time.Second)
	st = m.Tick()
	assert.True(t, st.WarningShown)
	assert.Equal(t, 90, st.RemainingSeconds)

	st, err := m.Extend()
	require.NoError(t, err)
	assert.False(t, st.WarningShown)
	assert.Equal(t, 1800, st.RemainingSeconds)
	assert.True(t, st.LastActivityAt.After(start))
	assert.Equal(t, []string{EventWarning, EventExtended}, events.list())

	// The countdown starts over from the full threshold.
	clock.Advance(1679 * time.Second)
	assert.False(t, m.Tick().WarningShown)
}

func TestWarningFiresOnceBeforeExpiry(t *testing.T) {
	signedOut := 0
	m, clock, events := newTestMonitor(t, func(ctx context.Context) error {
		signedOut++
		return nil
	})

	clock.Advance(1680 * time.Second)
	for i := 0; i < 120; i++ {
		st := m.Tick()
		require.True(t, st.WarningShown)
		require.Equal(t, 120-i, st.RemainingSeconds)
		clock.Advance(time.Second)
	}
	st := m.Tick()
	assert.True(t, st.Expired)
	assert.Equal(t, 1, signedOut)
	assert.Equal(t, []string{EventWarning, EventExpired}, events.list())
}

func TestPassiveActivityDoesNotDismissWarning(t *testing.T) {
	m, clock, _ := newTestMonitor(t, nil)

	clock.Advance(10 * time.Minute)
	assert.True(t, m.RecordActivity())
	assert.Equal(t, clock.Now(), m.State().LastActivityAt)

	clock.Advance(1700 * time.Second)
	require.True(t, m.Tick().WarningShown)
	before := m.State().LastActivityAt

	assert.False(t, m.RecordActivity())
	st := m.State()
	assert.True(t, st.WarningShown)
	assert.Equal(t, before, st.LastActivityAt)
}

func TestThrottledTicksUseWallClock(t *testing.T) {
	signedOut := 0
	m, clock, events := newTestMonitor(t, func(ctx context.Context) error {
		signedOut++
		return nil
	})

	// One tick after a long stall must not leave the session alive past the threshold.
	clock.Advance(45 * time.Minute)
	st := m.Tick()
	assert.True(t, st.Expired)
	assert.Equal(t, 1, signedOut)
	assert.Equal(t, []string{EventWarning, EventExpired}, events.list())
}

func TestRemainingSecondsRoundsUp(t *testing.T) {
	m, clock, _ := newTestMonitor(t, nil)
	clock.Advance(1680*time.Second + 300*time.Millisecond)
	assert.Equal(t, 120, m.Tick().RemainingSeconds)
}

func TestSignOutRetriedOnce(t *testing.T) {
	calls := 0
	m, clock, events := newTestMonitor(t, func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("provider unavailable")
		}
		return nil
	})
	clock.Advance(time.Hour)
	st := m.Tick()
	assert.Equal(t, 2, calls)
	assert.True(t, st.Expired)
	assert.False(t, st.ReauthRequired)
	assert.Equal(t, []string{EventWarning, EventExpired}, events.list())
}

func TestSignOutFailureRequiresReauth(t *testing.T) {
	calls := 0
	m, clock, events := newTestMonitor(t, func(ctx context.Context) error {
		calls++
		return errors.New("provider unavailable")
	})
	clock.Advance(time.Hour)
	st := m.Tick()
	assert.Equal(t, 2, calls)
	assert.True(t, st.ReauthRequired)
	assert.False(t, st.Expired)
	assert.Equal(t, []string{EventWarning, EventReauthRequired}, events.list())

	_, err := m.Extend()
	assert.ErrorIs(t, err, ErrExpired)
	assert.False(t, m.RecordActivity())

	// No further sign-out attempts once blocked.
	m.Tick()
	assert.Equal(t, 2, calls)
}

func TestSubscribeReceivesLatestState(t *testing.T) {
	m, clock, _ := newTestMonitor(t, nil)
	states, cancel := m.Subscribe()
	defer cancel()

	initial := <-states
	assert.Equal(t, 1800, initial.RemainingSeconds)

	clock.Advance(1700 * time.Second)
	m.Tick()
	clock.Advance(10 * time.Second)
	m.Tick()

	latest := <-states
	assert.True(t, latest.WarningShown)
	assert.Equal(t, 90, latest.RemainingSeconds)
	select {
	case extra := <-states:
		t.Fatalf("unexpected queued state %+v", extra)
	default:
	}
}

func TestStopEndsTicker(t *testing.T) {
	m, _, _ := newTestMonitor(t, nil)
	m.Start(context.Background())
	m.Stop()
	m.Stop()
	select {
	case <-m.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("ticker goroutine did not exit")
	}
}

func TestTickerExpiresOnItsOwn(t *testing.T) {
	cfg := Config{IdleThreshold: 50 * time.Millisecond, WarningWindow: 20 * time.Millisecond, TickInterval: 5 * time.Millisecond}
	signedOut := make(chan struct{})
	m, err := NewMonitor(cfg, Options{SignOut: func(ctx context.Context) error {
		close(signedOut)
		return nil
	}})
	require.NoError(t, err)
	m.Start(context.Background())

	select {
	case <-signedOut:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor never signed out")
	}
	select {
	case <-m.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("ticker kept running after expiry")
	}
	assert.True(t, m.State().Expired)
}
