package guard

import (
	"log/slog"
	"net/http"

	"github.com/agencyhub/portal/internal/i18n"
	"github.com/agencyhub/portal/internal/identity"
	"github.com/agencyhub/portal/internal/rbac"
	"github.com/agencyhub/portal/internal/shared"
	"github.com/agencyhub/portal/internal/simulation"
	"github.com/agencyhub/portal/internal/view"
)

// Recorder receives one call per guard evaluation.
type Recorder interface {
	RecordGuardDecision(outcome string)
}

// Middleware wires the route guard for HTTP handlers.
type Middleware struct {
	Identity  identity.Provider
	Localizer *i18n.Localizer
	Templates *view.Engine
	Logger    *slog.Logger
	Recorder  Recorder
}

type placeholderPage struct {
	Message string
}

// Protect guards the wrapped routes. An explicit module key overrides path-based
// resolution for routes that do not map onto a navigation path.
func (m Middleware) Protect(explicit ...rbac.ModuleKey) func(http.Handler) http.Handler {
	var key rbac.ModuleKey
	if len(explicit) > 0 {
		key = explicit[0]
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := m.Identity.Resolve(r)
			var sim simulation.Snapshot
			if id.Authenticated() {
				sim = simulation.MustFromContext(r.Context()).Snapshot()
			}
			d := Decide(id, sim, r.URL.Path, key)
			if m.Recorder != nil {
				m.Recorder.RecordGuardDecision(d.Outcome.String())
			}

			switch d.Outcome {
			case OutcomeLoading:
				m.renderLoading(w, r)
				return
			case OutcomeUnauthenticated:
				http.Redirect(w, r, d.Redirect, http.StatusSeeOther)
				return
			}

			tracker := MustTrackerFromContext(r.Context())
			tracker.Observe(r.URL.Path)
			if d.Outcome == OutcomeAllowed {
				next.ServeHTTP(w, r.WithContext(identity.WithSnapshot(r.Context(), id)))
				return
			}

			m.logger().Debug("guard blocked navigation",
				slog.String("path", r.URL.Path),
				slog.String("outcome", d.Outcome.String()),
				slog.String("module", string(d.Module)),
				slog.String("simulated_role", string(sim.Role)),
			)
			message := m.Localizer.Sprintf(r, d.NoticeKey)
			if tracker.ShouldNotify(r.URL.Path) {
				if sess := shared.SessionFromContext(r.Context()); sess != nil {
					sess.AddFlash(shared.FlashMessage{Kind: "warning", Message: message})
				}
			}
			if d.Redirect != "" {
				http.Redirect(w, r, d.Redirect, http.StatusSeeOther)
				return
			}
			ctx := identity.WithSnapshot(r.Context(), id)
			m.Templates.Page(w, r.WithContext(ctx), http.StatusForbidden, "pages/forbidden.html", http.StatusText(http.StatusForbidden), placeholderPage{Message: message})
		})
	}
}

// RequireRealRole lets the request through only when the real principal holds one of
// roles. Active overlays are ignored: simulation narrows modules, never the admin's
// own right to stop it.
func (m Middleware) RequireRealRole(roles ...rbac.Role) func(http.Handler) http.Handler {
	allowed := make(map[rbac.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := identity.FromContext(r.Context())
			if !ok {
				id = m.Identity.Resolve(r)
			}
			switch {
			case id.Loading:
				m.renderLoading(w, r)
				return
			case id.User == nil:
				http.Redirect(w, r, rbac.SignInRoute, http.StatusSeeOther)
				return
			}
			if _, ok := allowed[id.User.Role]; !ok {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(identity.WithSnapshot(r.Context(), id)))
		})
	}
}

func (m Middleware) renderLoading(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Refresh", "1")
	w.Header().Set("Cache-Control", "no-store")
	m.Templates.Page(w, r, http.StatusOK, "pages/loading.html", "", placeholderPage{Message: m.Localizer.Sprintf(r, i18n.KeyLoading)})
}

func (m Middleware) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}
