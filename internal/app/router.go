package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/agencyhub/portal/internal/auth"
	"github.com/agencyhub/portal/internal/guard"
	"github.com/agencyhub/portal/internal/i18n"
	"github.com/agencyhub/portal/internal/impersonation"
	"github.com/agencyhub/portal/internal/observability"
	"github.com/agencyhub/portal/internal/pages"
	"github.com/agencyhub/portal/internal/rbac"
	"github.com/agencyhub/portal/internal/scope"
	"github.com/agencyhub/portal/internal/shared"
	"github.com/agencyhub/portal/internal/simulation"
	"github.com/agencyhub/portal/internal/timeout"
	"github.com/agencyhub/portal/internal/view"
	"github.com/agencyhub/portal/jobs"
	"github.com/agencyhub/portal/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Templates      *view.Engine
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Localizer      *i18n.Localizer
	Scopes         *scope.Registry
	Guard          guard.Middleware

	AuthHandler          *auth.Handler
	PagesHandler         *pages.Handler
	SimulationHandler    *simulation.Handler
	ImpersonationHandler *impersonation.Handler
	TimeoutHandler       *timeout.Handler
	PermissionsHandler   *rbac.PermissionsHandler
	JobHandler           *jobs.Handler
	Metrics              *observability.Metrics
}

// NewRouter constructs the chi.Router with portal defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)
	r.Use(params.Scopes.Middleware)
	r.Use(params.Localizer.Middleware)
	if params.TimeoutHandler != nil {
		r.Use(params.TimeoutHandler.Enforce)
		r.Use(params.TimeoutHandler.TrackActivity)
	}

	// Unmatched paths still pass the guard, so admin-only prefixes without a page of
	// their own redirect under simulation instead of answering 404.
	r.NotFound(params.Guard.Protect()(http.NotFoundHandler()).ServeHTTP)
	r.MethodNotAllowed(params.Guard.Protect()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})).ServeHTTP)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/auth", params.AuthHandler.MountRoutes)
	if params.TimeoutHandler != nil {
		r.Route("/session", params.TimeoutHandler.MountRoutes)
	}

	// Overlay controls stay reachable while an overlay hides admin pages, otherwise
	// an admin could never stop a simulation.
	admins := params.Guard.RequireRealRole(rbac.RoleOwner, rbac.RoleAdmin)
	r.Route("/role-simulation", func(r chi.Router) {
		r.Use(admins)
		params.SimulationHandler.MountRoutes(r)
	})
	r.Route("/impersonation", func(r chi.Router) {
		r.Use(admins)
		params.ImpersonationHandler.MountRoutes(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(params.Guard.Protect())
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, rbac.DefaultRoute, http.StatusSeeOther)
		})
		params.PagesHandler.MountRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(admins)
			params.PagesHandler.MountAdmin(r)
			if params.PermissionsHandler != nil {
				r.Route("/permissions", params.PermissionsHandler.MountRoutes)
			}
			if params.JobHandler != nil {
				r.Route("/jobs", params.JobHandler.MountRoutes)
			}
		})
	})

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// staticCacheHandler lets browsers cache static assets for an hour.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
