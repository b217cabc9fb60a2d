// Package pages serves the portal's module pages. The pages themselves are
// placeholders for the product features; what matters here is that every one of
// them sits behind the route guard.
package pages

import (
	"log/slog"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/agencyhub/portal/internal/identity"
	"github.com/agencyhub/portal/internal/impersonation"
	"github.com/agencyhub/portal/internal/rbac"
	"github.com/agencyhub/portal/internal/view"
)

// Handler renders module pages.
type Handler struct {
	logger    *slog.Logger
	templates *view.Engine
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, templates *view.Engine) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, templates: templates}
}

type modulePage struct {
	Summary  string
	ActingAs string
	// OwnerID is the user whose data the page is scoped to.
	OwnerID int64
}

type adminPage struct {
	Roles []roleOption
}

type roleOption struct {
	Value string
	Label string
}

// MountRoutes registers one page per module path plus the unmapped profile page.
// Callers wrap r with the guard.
func (h *Handler) MountRoutes(r chi.Router) {
	table := rbac.PathModules()
	paths := make([]string, 0, len(table))
	for p := range table {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		page := h.module(table[p].Label())
		r.Get(p, page)
		r.Get(p+"/*", page)
	}
	r.Get("/profile", h.module("Profile"))
}

// MountAdmin registers the admin tools page.
func (h *Handler) MountAdmin(r chi.Router) {
	r.Get("/admin", h.admin)
}

func (h *Handler) module(title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := modulePage{Summary: title + " workspace."}
		imp := impersonation.MustFromContext(r.Context())
		if id, ok := identity.FromContext(r.Context()); ok && id.User != nil {
			page.OwnerID = imp.ActingUserID(id.User.ID)
		}
		if u := imp.ImpersonatedUser(); u != nil {
			page.ActingAs = u.Name
			if u.ClientName != "" {
				page.ActingAs += " (" + u.ClientName + ")"
			}
		}
		h.templates.Page(w, r, http.StatusOK, "pages/module.html", title, page)
	}
}

func (h *Handler) admin(w http.ResponseWriter, r *http.Request) {
	var page adminPage
	for _, role := range rbac.Roles() {
		if role.IsAdministrative() {
			continue
		}
		page.Roles = append(page.Roles, roleOption{Value: string(role), Label: role.Label()})
	}
	h.templates.Page(w, r, http.StatusOK, "pages/admin.html", "Admin tools", page)
}
