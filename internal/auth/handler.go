package auth

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/agencyhub/portal/internal/i18n"
	"github.com/agencyhub/portal/internal/shared"
	"github.com/agencyhub/portal/internal/view"
)

// ReleaseFunc drops per-session state held outside the cookie session, such as
// overlays and idle monitors.
type ReleaseFunc func(sessionID string)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	templates      *view.Engine
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	localizer      *i18n.Localizer
	validator      *validator.Validate
	releasers      []ReleaseFunc
}

// NewHandler constructs a Handler instance. releasers run on every sign-in and
// sign-out so no state of a previous user survives in the session.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager, localizer *i18n.Localizer, releasers ...ReleaseFunc) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		templates:      templates,
		sessionManager: sessions,
		csrfManager:    csrf,
		localizer:      localizer,
		validator:      validator.New(),
		releasers:      releasers,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
}

type loginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8"`
}

type loginPageData struct {
	Form   loginForm
	Errors map[string]string
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	_, _ = h.csrfManager.EnsureToken(r.Context(), sess)
	h.templates.Page(w, r, http.StatusOK, "pages/login.html", "Sign in", loginPageData{})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	_, _ = h.csrfManager.EnsureToken(r.Context(), sess)

	form := loginForm{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}
	errors := make(map[string]string)
	if err := h.validator.Struct(form); err != nil {
		for _, fieldErr := range err.(validator.ValidationErrors) {
			errors[fieldErr.Field()] = fieldErr.Error()
		}
	}

	if len(errors) == 0 {
		user, err := h.service.Authenticate(r.Context(), form.Email, form.Password)
		if err != nil {
			errors["general"] = h.localizer.Sprintf(r, i18n.KeyLoginInvalid)
		} else if sess == nil {
			h.logger.Error("session missing during login")
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		} else {
			h.release(sess.ID)
			h.sessionManager.Renew(sess)
			_, _ = h.csrfManager.EnsureToken(r.Context(), sess)
			sess.SetUser(strconv.FormatInt(user.ID, 10))
			sess.AddFlash(shared.FlashMessage{Kind: "success", Message: h.localizer.Sprintf(r, i18n.KeyLoginWelcome, user.Principal().DisplayName)})
			expiresAt := time.Now().Add(h.sessionManager.TTL())
			if err := h.service.RegisterSession(r.Context(), sess.ID, user.ID, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
				h.logger.Warn("register session", slog.Any("error", err))
			}
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
	}

	h.templates.Page(w, r, http.StatusBadRequest, "pages/login.html", "Sign in", loginPageData{Form: loginForm{Email: form.Email}, Errors: errors})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		h.release(sess.ID)
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
}

func (h *Handler) release(sessionID string) {
	for _, release := range h.releasers {
		release(sessionID)
	}
}

// ShowLoginForTest exposes the GET handler for tests.
func (h *Handler) ShowLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.showLogin(w, r)
}

// HandleLoginForTest exposes the POST handler for tests.
func (h *Handler) HandleLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogin(w, r)
}

// HandleLogoutForTest exposes the logout handler for tests.
func (h *Handler) HandleLogoutForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogout(w, r)
}
