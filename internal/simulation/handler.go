package simulation

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/agencyhub/portal/internal/i18n"
	"github.com/agencyhub/portal/internal/identity"
	"github.com/agencyhub/portal/internal/rbac"
	"github.com/agencyhub/portal/internal/shared"
)

// Routes the overlay controls redirect to.
const (
	StartedRedirect = "/dashboard"
	StoppedRedirect = "/admin"
)

// ModuleSource builds the effective module map of a role.
type ModuleSource interface {
	ModuleAccess(ctx context.Context, role rbac.Role) (rbac.ModuleAccessMap, error)
}

// Auditor records overlay transitions.
type Auditor interface {
	RecordAudit(ctx context.Context, entry shared.AuditLog) error
}

// Recorder counts overlay transitions.
type Recorder interface {
	RecordOverlay(overlay, action string)
}

// Handler serves the admin controls that start and stop a simulation.
type Handler struct {
	logger    *slog.Logger
	modules   ModuleSource
	localizer *i18n.Localizer
	auditor   Auditor
	recorder  Recorder
	validator *validator.Validate
	now       func() time.Time
}

// NewHandler constructs a Handler. auditor and recorder may be nil.
func NewHandler(logger *slog.Logger, modules ModuleSource, localizer *i18n.Localizer, auditor Auditor, recorder Recorder) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		modules:   modules,
		localizer: localizer,
		auditor:   auditor,
		recorder:  recorder,
		validator: validator.New(),
		now:       time.Now,
	}
}

// MountRoutes registers the /role-simulation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/start", h.start)
	r.Post("/stop", h.stop)
}

type startForm struct {
	Role      string `validate:"required"`
	ClientID  string `validate:"omitempty,numeric"`
	ContactID string `validate:"omitempty,numeric"`
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := startForm{
		Role:      r.PostFormValue("role"),
		ClientID:  r.PostFormValue("client_id"),
		ContactID: r.PostFormValue("contact_id"),
	}
	if err := h.validator.Struct(form); err != nil {
		h.fail(w, r, i18n.KeySimulationInvalid)
		return
	}
	role, err := rbac.ParseRole(form.Role)
	if err != nil || role.IsAdministrative() {
		h.fail(w, r, i18n.KeySimulationInvalid)
		return
	}
	scoping := Scoping{ClientID: parseID(form.ClientID), ContactID: parseID(form.ContactID)}

	modules, err := h.modules.ModuleAccess(r.Context(), role)
	if err != nil {
		h.logger.Error("simulation module access", slog.String("role", string(role)), slog.Any("error", err))
		h.fail(w, r, i18n.KeyOverlayUnavailable)
		return
	}
	sim := MustFromContext(r.Context())
	if err := sim.Start(role, modules, scoping); err != nil {
		if errors.Is(err, ErrAlreadySimulating) {
			h.fail(w, r, i18n.KeySimulationBusy)
			return
		}
		h.logger.Error("start simulation", slog.Any("error", err))
		h.fail(w, r, i18n.KeyOverlayUnavailable)
		return
	}

	h.record("start")
	meta := map[string]any{"modules": len(modules.Granted())}
	if scoping.ClientID != nil {
		meta["client_id"] = *scoping.ClientID
	}
	if scoping.ContactID != nil {
		meta["contact_id"] = *scoping.ContactID
	}
	h.audit(r, "simulation.start", role, meta)
	flash(r, "success", h.localizer.Sprintf(r, i18n.KeySimulationStarted, role.Label()))
	http.Redirect(w, r, StartedRedirect, http.StatusSeeOther)
}

func (h *Handler) stop(w http.ResponseWriter, r *http.Request) {
	sim := MustFromContext(r.Context())
	before := sim.Snapshot()
	sim.Stop()
	if before.IsSimulating {
		h.record("stop")
		h.audit(r, "simulation.stop", before.Role, nil)
		flash(r, "info", h.localizer.Sprintf(r, i18n.KeySimulationStopped))
	}
	http.Redirect(w, r, StoppedRedirect, http.StatusSeeOther)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, key string) {
	flash(r, "error", h.localizer.Sprintf(r, key))
	http.Redirect(w, r, StoppedRedirect, http.StatusSeeOther)
}

func (h *Handler) record(action string) {
	if h.recorder != nil {
		h.recorder.RecordOverlay("simulation", action)
	}
}

func (h *Handler) audit(r *http.Request, action string, role rbac.Role, meta map[string]any) {
	if h.auditor == nil {
		return
	}
	var actor int64
	if id, ok := identity.FromContext(r.Context()); ok && id.User != nil {
		actor = id.User.ID
	}
	entry := shared.AuditLog{
		ActorID:  actor,
		Action:   action,
		Entity:   "role",
		EntityID: string(role),
		Meta:     meta,
		At:       h.now().UTC(),
	}
	if err := h.auditor.RecordAudit(r.Context(), entry); err != nil {
		h.logger.Warn("audit simulation", slog.String("action", action), slog.Any("error", err))
	}
}

func flash(r *http.Request, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
}

func parseID(raw string) *int64 {
	if raw == "" {
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil
	}
	return &id
}
