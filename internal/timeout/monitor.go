// Package timeout enforces the idle session timeout: one monitor per signed-in
// session tracks activity, raises a countdown warning and signs the session out when
// the countdown runs out.
package timeout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"
)

var (
	// ErrExpired is returned by Extend once the session has timed out.
	ErrExpired = errors.New("timeout: session expired")
	// ErrInvalidConfig reports an unusable threshold/window/tick combination.
	ErrInvalidConfig = errors.New("timeout: invalid config")
)

const signOutTimeout = 10 * time.Second

// Event names passed to observers.
const (
	EventWarning        = "warning"
	EventExtended       = "extended"
	EventExpired        = "expired"
	EventReauthRequired = "reauth_required"
)

// Config holds the idle timing. The warning opens WarningWindow before IdleThreshold.
type Config struct {
	IdleThreshold time.Duration
	WarningWindow time.Duration
	TickInterval  time.Duration
}

// Validate checks the timing invariants.
func (c Config) Validate() error {
	switch {
	case c.IdleThreshold <= 0:
		return fmt.Errorf("%w: idle threshold must be positive", ErrInvalidConfig)
	case c.WarningWindow <= 0 || c.WarningWindow >= c.IdleThreshold:
		return fmt.Errorf("%w: warning window must be between 0 and the idle threshold", ErrInvalidConfig)
	case c.TickInterval <= 0 || c.TickInterval > time.Second:
		return fmt.Errorf("%w: tick interval must be in (0, 1s]", ErrInvalidConfig)
	}
	return nil
}

// State is the observable idle state of one session.
type State struct {
	LastActivityAt   time.Time `json:"last_activity_at"`
	WarningShown     bool      `json:"warning_shown"`
	RemainingSeconds int       `json:"remaining_seconds"`
	Expired          bool      `json:"expired"`
	ReauthRequired   bool      `json:"reauth_required"`
}

// Closed reports whether the session can no longer be extended.
func (s State) Closed() bool {
	return s.Expired || s.ReauthRequired
}

// SignOutFunc ends the session with the identity provider.
type SignOutFunc func(ctx context.Context) error

// Options carries the collaborators of a Monitor.
type Options struct {
	SignOut SignOutFunc
	OnEvent func(event string, st State)
	Logger  *slog.Logger
	Now     func() time.Time
}

// Monitor owns the idle state and the ticker of one session.
type Monitor struct {
	cfg  Config
	opts Options

	mu          sync.Mutex
	state       State
	signingOut  bool
	subscribers map[int]chan State
	nextSub     int

	reset    chan struct{}
	quit     chan struct{}
	done     chan struct{}
	startOne sync.Once
	stopOne  sync.Once
}

// NewMonitor returns an idle monitor whose activity clock starts now. Call Start to
// run its ticker.
func NewMonitor(cfg Config, opts Options) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	m := &Monitor{
		cfg:         cfg,
		opts:        opts,
		subscribers: make(map[int]chan State),
		reset:       make(chan struct{}, 1),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	m.state = m.freshStateLocked()
	return m, nil
}

// Start runs the ticker until Stop is called, ctx ends or the session expires.
func (m *Monitor) Start(ctx context.Context) {
	m.startOne.Do(func() {
		go m.loop(ctx)
	})
}

// Stop cancels the ticker without waiting for it. Safe to call from any goroutine,
// including the sign-out path running on the ticker itself.
func (m *Monitor) Stop() {
	m.stopOne.Do(func() {
		close(m.quit)
	})
}

// Done is closed when the ticker goroutine has exited.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.quit:
			return
		case <-m.reset:
			ticker.Reset(m.cfg.TickInterval)
		case <-ticker.C:
			if st := m.Tick(); st.Closed() {
				return
			}
		}
	}
}

// State returns the current state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// RecordActivity registers a passive user-activity signal. It is ignored while the
// warning is open; only Extend dismisses the warning.
func (m *Monitor) RecordActivity() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.WarningShown || m.state.Closed() || m.signingOut {
		return false
	}
	m.state = m.freshStateLocked()
	return true
}

// Extend restarts the idle clock, closes the warning and reschedules the ticker.
func (m *Monitor) Extend() (State, error) {
	m.mu.Lock()
	if m.state.Closed() || m.signingOut {
		st := m.state
		m.mu.Unlock()
		return st, ErrExpired
	}
	wasWarning := m.state.WarningShown
	m.state = m.freshStateLocked()
	st := m.state
	m.publishLocked()
	m.mu.Unlock()

	select {
	case m.reset <- struct{}{}:
	default:
	}
	if wasWarning {
		m.emit(EventExtended, st)
	}
	return st, nil
}

// Tick recomputes the countdown from the wall clock. Elapsed time never comes from
// counting ticks, so a throttled or stalled ticker cannot stretch the session.
func (m *Monitor) Tick() State {
	m.mu.Lock()
	if m.state.Closed() || m.signingOut {
		st := m.state
		m.mu.Unlock()
		return st
	}
	elapsed := m.opts.Now().Sub(m.state.LastActivityAt)
	remaining := ceilSeconds(m.cfg.IdleThreshold - elapsed)
	m.state.RemainingSeconds = remaining
	warned := false
	if elapsed >= m.cfg.IdleThreshold-m.cfg.WarningWindow && !m.state.WarningShown {
		m.state.WarningShown = true
		warned = true
	}
	expire := m.state.WarningShown && remaining == 0
	if expire {
		m.signingOut = true
	}
	st := m.state
	m.publishLocked()
	m.mu.Unlock()

	if warned {
		m.emit(EventWarning, st)
	}
	if expire {
		return m.expire()
	}
	return st
}

// expire signs the session out, retrying once. A second failure leaves the session
// blocked behind re-authentication instead of silently keeping it alive.
func (m *Monitor) expire() State {
	err := m.signOut()
	if err != nil {
		m.opts.Logger.Warn("idle sign-out failed, retrying", slog.Any("error", err))
		err = m.signOut()
	}

	m.mu.Lock()
	m.signingOut = false
	event := EventExpired
	if err != nil {
		m.opts.Logger.Error("idle sign-out failed", slog.Any("error", err))
		m.state.ReauthRequired = true
		event = EventReauthRequired
	} else {
		m.state = State{Expired: true}
	}
	st := m.state
	m.publishLocked()
	m.mu.Unlock()

	m.Stop()
	m.emit(event, st)
	return st
}

func (m *Monitor) signOut() error {
	if m.opts.SignOut == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), signOutTimeout)
	defer cancel()
	return m.opts.SignOut(ctx)
}

// Subscribe returns a channel receiving the latest state after every change. Slow
// readers only ever see the newest state.
func (m *Monitor) Subscribe() (<-chan State, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	ch := make(chan State, 1)
	ch <- m.state
	m.subscribers[id] = ch
	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subscribers, id)
	}
}

func (m *Monitor) publishLocked() {
	for _, ch := range m.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- m.state
	}
}

func (m *Monitor) freshStateLocked() State {
	return State{
		LastActivityAt:   m.opts.Now(),
		RemainingSeconds: ceilSeconds(m.cfg.IdleThreshold),
	}
}

func (m *Monitor) emit(event string, st State) {
	if m.opts.OnEvent != nil {
		m.opts.OnEvent(event, st)
	}
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
