package rbac

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agencyhub/portal/internal/shared"
	"github.com/agencyhub/portal/internal/view"
)

// PermissionsHandler manages the role/module grant matrix.
type PermissionsHandler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, service *Service, templates *view.Engine) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, service: service, templates: templates}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/", h.listPermissions)
	r.Post("/{role}", h.updateRole)
}

type matrixRow struct {
	Role    Role
	Label   string
	Modules []matrixCell
}

type matrixCell struct {
	Module  ModuleKey
	Label   string
	Enabled bool
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	matrix, err := h.service.Matrix(r.Context())
	if err != nil {
		h.logger.Error("load permission matrix", slog.Any("error", err))
		h.render(w, r, map[string]any{"Errors": map[string]string{"general": err.Error()}}, http.StatusInternalServerError)
		return
	}
	rows := make([]matrixRow, 0, len(roleOrder))
	for _, role := range roleOrder {
		row := matrixRow{Role: role, Label: role.Label()}
		for _, key := range moduleOrder {
			row.Modules = append(row.Modules, matrixCell{Module: key, Label: key.Label(), Enabled: matrix[role].Allows(key)})
		}
		rows = append(rows, row)
	}
	h.render(w, r, map[string]any{"Rows": rows, "Modules": Modules()}, http.StatusOK)
}

func (h *PermissionsHandler) updateRole(w http.ResponseWriter, r *http.Request) {
	role, err := ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	enabled := make([]ModuleKey, 0, len(r.PostForm["module"]))
	for _, raw := range r.PostForm["module"] {
		key, err := ParseModule(raw)
		if err != nil {
			http.Error(w, "unknown module "+raw, http.StatusBadRequest)
			return
		}
		enabled = append(enabled, key)
	}
	sess := shared.SessionFromContext(r.Context())
	if err := h.service.SetRoleModules(r.Context(), role, enabled); err != nil {
		if errors.Is(err, ErrUnknownModule) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("update role modules", slog.String("role", string(role)), slog.Any("error", err))
		if sess != nil {
			sess.AddFlash(shared.FlashMessage{Kind: "error", Message: "Could not save grants for " + role.Label()})
		}
	} else if sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Saved grants for " + role.Label()})
	}
	http.Redirect(w, r, "/permissions", http.StatusSeeOther)
}

func (h *PermissionsHandler) render(w http.ResponseWriter, r *http.Request, data map[string]any, status int) {
	h.templates.Page(w, r, status, "pages/permissions.html", "Permissions", data)
}
