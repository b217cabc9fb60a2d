package impersonation

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/agencyhub/portal/internal/directory"
	"github.com/agencyhub/portal/internal/i18n"
	"github.com/agencyhub/portal/internal/identity"
	"github.com/agencyhub/portal/internal/shared"
)

// Routes the overlay controls redirect to.
const (
	StartedRedirect = "/dashboard"
	StoppedRedirect = "/admin"
)

// Members resolves the user to act as.
type Members interface {
	Member(ctx context.Context, id int64) (directory.Member, error)
}

// Auditor records overlay transitions.
type Auditor interface {
	RecordAudit(ctx context.Context, entry shared.AuditLog) error
}

// Recorder counts overlay transitions.
type Recorder interface {
	RecordOverlay(overlay, action string)
}

// Handler serves the admin controls that start and stop impersonation.
type Handler struct {
	logger    *slog.Logger
	members   Members
	localizer *i18n.Localizer
	auditor   Auditor
	recorder  Recorder
	validator *validator.Validate
	now       func() time.Time
}

// NewHandler constructs a Handler. auditor and recorder may be nil.
func NewHandler(logger *slog.Logger, members Members, localizer *i18n.Localizer, auditor Auditor, recorder Recorder) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		members:   members,
		localizer: localizer,
		auditor:   auditor,
		recorder:  recorder,
		validator: validator.New(),
		now:       time.Now,
	}
}

// MountRoutes registers the /impersonation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/start", h.start)
	r.Post("/stop", h.stop)
}

type startForm struct {
	UserID string `validate:"required,numeric"`
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := startForm{UserID: r.PostFormValue("user_id")}
	if err := h.validator.Struct(form); err != nil {
		h.fail(w, r, i18n.KeyImpersonationInvalid)
		return
	}
	userID, err := strconv.ParseInt(form.UserID, 10, 64)
	if err != nil || userID <= 0 {
		h.fail(w, r, i18n.KeyImpersonationInvalid)
		return
	}
	actor := actorID(r)
	if userID == actor {
		h.fail(w, r, i18n.KeyImpersonationSelf)
		return
	}

	member, err := h.members.Member(r.Context(), userID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			h.fail(w, r, i18n.KeyImpersonationInvalid)
			return
		}
		h.logger.Error("impersonation member lookup", slog.Int64("user_id", userID), slog.Any("error", err))
		h.fail(w, r, i18n.KeyOverlayUnavailable)
		return
	}
	target := User{ID: member.ID, Name: member.Name, ClientID: member.ClientID, ClientName: member.ClientName}
	if err := MustFromContext(r.Context()).Start(target); err != nil {
		h.fail(w, r, i18n.KeyImpersonationInvalid)
		return
	}

	h.record("start")
	meta := map[string]any{}
	if member.ClientID != nil {
		meta["client_id"] = *member.ClientID
	}
	h.audit(r, actor, "impersonation.start", member.ID, meta)
	flash(r, "success", h.localizer.Sprintf(r, i18n.KeyImpersonationOn, member.Name))
	http.Redirect(w, r, StartedRedirect, http.StatusSeeOther)
}

func (h *Handler) stop(w http.ResponseWriter, r *http.Request) {
	imp := MustFromContext(r.Context())
	before := imp.Snapshot()
	imp.Stop()
	if before.IsImpersonating && before.User != nil {
		h.record("stop")
		h.audit(r, actorID(r), "impersonation.stop", before.User.ID, nil)
		flash(r, "info", h.localizer.Sprintf(r, i18n.KeyImpersonationOff))
	}
	http.Redirect(w, r, StoppedRedirect, http.StatusSeeOther)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, key string) {
	flash(r, "error", h.localizer.Sprintf(r, key))
	http.Redirect(w, r, StoppedRedirect, http.StatusSeeOther)
}

func (h *Handler) record(action string) {
	if h.recorder != nil {
		h.recorder.RecordOverlay("impersonation", action)
	}
}

func (h *Handler) audit(r *http.Request, actor int64, action string, target int64, meta map[string]any) {
	if h.auditor == nil {
		return
	}
	entry := shared.AuditLog{
		ActorID:  actor,
		Action:   action,
		Entity:   "user",
		EntityID: strconv.FormatInt(target, 10),
		Meta:     meta,
		At:       h.now().UTC(),
	}
	if err := h.auditor.RecordAudit(r.Context(), entry); err != nil {
		h.logger.Warn("audit impersonation", slog.String("action", action), slog.Any("error", err))
	}
}

func actorID(r *http.Request) int64 {
	if id, ok := identity.FromContext(r.Context()); ok && id.User != nil {
		return id.User.ID
	}
	return 0
}

func flash(r *http.Request, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
}
