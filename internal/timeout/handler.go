package timeout

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/agencyhub/portal/internal/i18n"
	"github.com/agencyhub/portal/internal/platform/httpx"
	"github.com/agencyhub/portal/internal/shared"
	"github.com/agencyhub/portal/internal/view"
)

// Handler exposes the idle monitor over HTTP and guards pages of timed-out sessions.
type Handler struct {
	logger    *slog.Logger
	manager   *Manager
	templates *view.Engine
	localizer *i18n.Localizer
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, manager *Manager, templates *view.Engine, localizer *i18n.Localizer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, manager: manager, templates: templates, localizer: localizer}
}

// MountRoutes registers the /session routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/timeout", h.status)
	r.Get("/timeout/ws", h.stream)
	r.Post("/extend", h.extend)
	r.Post("/activity", h.activity)
}

type reauthPage struct {
	Message string
}

// Enforce blocks every page of a session that timed out but could not be signed
// out. Sign-in routes stay reachable so the user can authenticate again.
func (h *Handler) Enforce(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if exempt(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		m, ok := h.monitorFor(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		st := m.State()
		if !st.Closed() {
			next.ServeHTTP(w, r)
			return
		}
		if strings.HasPrefix(r.URL.Path, "/session/") {
			httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrUnauthorized, ErrExpired))
			return
		}
		key := i18n.KeySessionExpired
		if st.ReauthRequired {
			key = i18n.KeySessionReauth
		}
		h.templates.Page(w, r, http.StatusUnauthorized, "pages/reauth.html", http.StatusText(http.StatusUnauthorized), reauthPage{Message: h.localizer.Sprintf(r, key)})
	})
}

// TrackActivity treats every page request of a signed-in session as user activity
// and makes sure the session has a running monitor.
func (h *Handler) TrackActivity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !exempt(r.URL.Path) && !strings.HasPrefix(r.URL.Path, "/session/") {
			if sess := shared.SessionFromContext(r.Context()); sess != nil && sess.User() != "" {
				h.manager.Acquire(sess.ID).RecordActivity()
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Decorator adds the countdown dialog to pages of signed-in sessions.
func (h *Handler) Decorator() view.Decorator {
	return func(r *http.Request, data *view.TemplateData) {
		m, ok := h.monitorFor(r)
		if !ok {
			return
		}
		st := m.State()
		if st.Closed() {
			return
		}
		dialog := NewDialog(st)
		data.Session = &dialog
		if data.Messages == nil {
			data.Messages = make(map[string]string)
		}
		data.Messages[i18n.KeySessionWarning] = h.localizer.Sprintf(r, i18n.KeySessionWarning, st.RemainingSeconds)
		data.Messages[i18n.KeySessionExtend] = h.localizer.Sprintf(r, i18n.KeySessionExtend)
	}
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	m, ok := h.monitorFor(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	httpx.JSON(w, http.StatusOK, m.State())
}

func (h *Handler) extend(w http.ResponseWriter, r *http.Request) {
	m, ok := h.monitorFor(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	st, err := m.Extend()
	if wantsHTML(r) {
		if err != nil {
			http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
			return
		}
		http.Redirect(w, r, backTo(r), http.StatusSeeOther)
		return
	}
	if err != nil {
		if errors.Is(err, ErrExpired) {
			httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrUnauthorized, err))
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, st)
}

func (h *Handler) activity(w http.ResponseWriter, r *http.Request) {
	m, ok := h.monitorFor(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	m.RecordActivity()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) monitorFor(r *http.Request) (*Monitor, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || sess.ID == "" {
		return nil, false
	}
	return h.manager.Lookup(sess.ID)
}

func exempt(p string) bool {
	return strings.HasPrefix(p, "/auth/") || strings.HasPrefix(p, "/static/") || p == "/healthz" || p == "/metrics"
}

func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html") ||
		strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded")
}

// backTo returns the same-origin page the extend form was posted from.
func backTo(r *http.Request) string {
	u, err := url.Parse(r.Referer())
	if err != nil || u.Host != r.Host || !strings.HasPrefix(u.Path, "/") {
		return "/dashboard"
	}
	return u.RequestURI()
}
