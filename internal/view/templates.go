package view

import (
	"bytes"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/agencyhub/portal/internal/shared"
	"github.com/agencyhub/portal/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates  *template.Template
	decorators []Decorator
	logger     *slog.Logger
}

// Banner is a persistent strip rendered above page content while an overlay is active.
type Banner struct {
	Kind       string
	Message    string
	StopAction string
	StopLabel  string
}

// NavItem is one entry of the module navigation.
type NavItem struct {
	Label  string
	Href   string
	Active bool
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	Lang        string
	UserName    string
	Banners     []Banner
	Nav         []NavItem
	// Session is nil on pages without an idle monitor.
	Session     *SessionDialog
	Messages    map[string]string
	Data        any
}

// SessionDialog is the idle countdown dialog and the endpoints its script talks to.
type SessionDialog struct {
	Open             bool
	RemainingSeconds int
	ExtendURL        string
	StatusURL        string
	StreamURL        string
	ActivityURL      string
}

// Decorator fills request-scoped chrome into TemplateData before a page renders.
type Decorator func(r *http.Request, data *TemplateData)

// NewEngine parses templates at build-time.
func NewEngine() (*Engine, error) {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006 15:04")
		},
		"msg": func(messages map[string]string, key string) string {
			if v, ok := messages[key]; ok {
				return v
			}
			return key
		},
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates, "templates/layouts/*.html", "templates/partials/*.html", "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl, logger: slog.Default()}, nil
}

// Use appends decorators applied by Page in registration order.
func (e *Engine) Use(decorators ...Decorator) {
	e.decorators = append(e.decorators, decorators...)
}

// WithLogger sets the logger used when Page fails to render.
func (e *Engine) WithLogger(logger *slog.Logger) *Engine {
	if logger != nil {
		e.logger = logger
	}
	return e
}

// Render executes a named template with TemplateData.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return e.templates.ExecuteTemplate(w, name, data)
}

// Page decorates and renders name with status. The template is executed into a
// buffer first so a failing template never leaves a half-written page behind.
func (e *Engine) Page(w http.ResponseWriter, r *http.Request, status int, name, title string, payload any) {
	if e == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	data := TemplateData{Title: title, CurrentPath: r.URL.Path, Data: payload}
	for _, decorate := range e.decorators {
		decorate(r, &data)
	}
	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, name, data); err != nil {
		e.logger.Error("render page", slog.String("template", name), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// SessionChrome pops the pending flash and ensures a CSRF token for forms on the page.
func SessionChrome(csrf *shared.CSRFManager) Decorator {
	return func(r *http.Request, data *TemplateData) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil {
			return
		}
		if data.Flash == nil {
			data.Flash = sess.PopFlash()
		}
		if csrf != nil {
			token, _ := csrf.EnsureToken(r.Context(), sess)
			data.CSRFToken = token
		}
	}
}
