package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/agencyhub/portal/internal/identity"
	"github.com/agencyhub/portal/internal/shared"
)

const (
	defaultLookupBudget = 2 * time.Second
	lookupTimeout       = 5 * time.Second
)

// Provider resolves the signed-in principal from the cookie session and the users
// table. It is the identity adapter the guard and the idle monitor talk to.
type Provider struct {
	service  *Service
	sessions *shared.SessionManager
	budget   time.Duration
	logger   *slog.Logger
	group    singleflight.Group
}

var _ identity.Provider = (*Provider)(nil)

// NewProvider constructs a Provider. A lookup still running after budget resolves
// as Loading; it keeps running and serves the next request.
func NewProvider(service *Service, sessions *shared.SessionManager, budget time.Duration, logger *slog.Logger) *Provider {
	if budget <= 0 {
		budget = defaultLookupBudget
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{service: service, sessions: sessions, budget: budget, logger: logger}
}

// Resolve returns the identity of the request's session.
func (p *Provider) Resolve(r *http.Request) identity.Snapshot {
	if snap, ok := identity.FromContext(r.Context()); ok {
		return snap
	}
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || sess.User() == "" {
		return identity.Snapshot{}
	}
	userID, err := strconv.ParseInt(sess.User(), 10, 64)
	if err != nil || userID <= 0 {
		p.logger.Warn("session carries malformed user id", slog.String("user", sess.User()))
		return identity.Snapshot{}
	}

	ch := p.group.DoChan(sess.User(), func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), lookupTimeout)
		defer cancel()
		return p.service.ActiveUser(ctx, userID)
	})
	timer := time.NewTimer(p.budget)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.Err != nil {
			if errors.Is(res.Err, shared.ErrNotFound) || errors.Is(res.Err, ErrInactive) {
				return identity.Snapshot{}
			}
			p.logger.Warn("identity lookup", slog.Int64("user_id", userID), slog.Any("error", res.Err))
			return identity.Snapshot{Loading: true}
		}
		return identity.Snapshot{User: res.Val.(*User).Principal()}
	case <-timer.C:
		return identity.Snapshot{Loading: true}
	case <-r.Context().Done():
		return identity.Snapshot{Loading: true}
	}
}

// SignOut ends sessionID. Only destroying the cookie session decides success; the
// audit row in sessions is removed best-effort.
func (p *Provider) SignOut(ctx context.Context, sessionID string) error {
	if p.sessions != nil {
		if err := p.sessions.DestroyByID(ctx, sessionID); err != nil {
			return err
		}
	}
	if p.service != nil {
		if err := p.service.RemoveSession(ctx, sessionID); err != nil {
			p.logger.Warn("remove session row", slog.Any("error", err))
		}
	}
	return nil
}
