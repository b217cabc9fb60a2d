package timeout

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Recorder counts monitor lifecycle and transitions.
type Recorder interface {
	RecordTimeoutEvent(event string)
	MonitorStarted()
	MonitorStopped()
}

// ManagerOptions carries the collaborators shared by every monitor.
type ManagerOptions struct {
	// SignOut ends sessionID with the identity provider.
	SignOut func(ctx context.Context, sessionID string) error
	// OnEvent observes transitions, e.g. to audit expiries.
	OnEvent  func(sessionID, event string, st State)
	Recorder Recorder
	Logger   *slog.Logger
	Now      func() time.Time
}

// Manager owns at most one monitor, and so one ticker, per session.
type Manager struct {
	cfg  Config
	opts ManagerOptions
	ctx  context.Context

	mu       sync.Mutex
	monitors map[string]*Monitor

	// manualTicks leaves tickers stopped so tests drive Tick themselves.
	manualTicks bool
}

// NewManager validates cfg and returns a Manager whose tickers stop when ctx ends.
func NewManager(ctx context.Context, cfg Config, opts ManagerOptions) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{cfg: cfg, opts: opts, ctx: ctx, monitors: make(map[string]*Monitor)}, nil
}

// Config returns the idle timing shared by all monitors.
func (mg *Manager) Config() Config {
	return mg.cfg
}

// Acquire returns the running monitor of sessionID, starting one if needed.
func (mg *Manager) Acquire(sessionID string) *Monitor {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	if m, ok := mg.monitors[sessionID]; ok {
		return m
	}
	m, _ := NewMonitor(mg.cfg, Options{
		SignOut: func(ctx context.Context) error {
			if mg.opts.SignOut == nil {
				return nil
			}
			return mg.opts.SignOut(ctx, sessionID)
		},
		OnEvent: func(event string, st State) {
			mg.observe(sessionID, event, st)
		},
		Logger: mg.opts.Logger.With(slog.String("session_id", sessionID)),
		Now:    mg.opts.Now,
	})
	mg.monitors[sessionID] = m
	if !mg.manualTicks {
		m.Start(mg.ctx)
	}
	if mg.opts.Recorder != nil {
		mg.opts.Recorder.MonitorStarted()
	}
	return m
}

// Lookup returns the monitor of sessionID without creating one.
func (mg *Manager) Lookup(sessionID string) (*Monitor, bool) {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	m, ok := mg.monitors[sessionID]
	return m, ok
}

// Release stops and forgets the monitor of sessionID. Called on sign-out.
func (mg *Manager) Release(sessionID string) {
	mg.mu.Lock()
	m, ok := mg.monitors[sessionID]
	delete(mg.monitors, sessionID)
	mg.mu.Unlock()
	if !ok {
		return
	}
	m.Stop()
	if mg.opts.Recorder != nil {
		mg.opts.Recorder.MonitorStopped()
	}
}

// Len reports the number of live monitors.
func (mg *Manager) Len() int {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	return len(mg.monitors)
}

func (mg *Manager) observe(sessionID, event string, st State) {
	if mg.opts.Recorder != nil {
		mg.opts.Recorder.RecordTimeoutEvent(event)
	}
	if mg.opts.OnEvent != nil {
		mg.opts.OnEvent(sessionID, event, st)
	}
	// A signed-out session has nothing left to monitor. A session waiting for
	// re-authentication keeps its monitor so Enforce can block it.
	if event == EventExpired {
		mg.Release(sessionID)
	}
}
