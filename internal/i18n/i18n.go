// Package i18n localizes the handful of strings the access layer shows to users:
// guard notices, the idle countdown dialog and the re-authentication page.
package i18n

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	// LangParam is the query parameter used to select a language.
	LangParam = "lang"
	// LangCookieName stores the user's language preference.
	LangCookieName = "portal_lang"
)

// Message keys.
const (
	KeyNoticeAdminPath   = "notice.simulation.admin_path"
	KeyNoticeNoModule    = "notice.simulation.no_module"
	KeyNoticeNoModules   = "notice.simulation.no_modules"
	KeySimulationStarted = "notice.simulation.started"
	KeySimulationStopped = "notice.simulation.stopped"
	KeyImpersonationOn   = "notice.impersonation.started"
	KeyImpersonationOff  = "notice.impersonation.stopped"
	KeySessionWarning    = "session.warning"
	KeySessionExtend     = "session.extend"
	KeySessionReauth     = "session.reauth_required"
	KeySessionExpired    = "session.expired"
	KeyLoading           = "identity.loading"

	KeyBannerSimulation          = "banner.simulation"
	KeyBannerSimulationClient    = "banner.simulation.client"
	KeyBannerSimulationContact   = "banner.simulation.contact"
	KeyBannerImpersonation       = "banner.impersonation"
	KeyBannerImpersonationClient = "banner.impersonation.client"
	KeyBannerStop                = "banner.stop"

	KeySimulationInvalid    = "form.simulation.invalid"
	KeySimulationBusy       = "form.simulation.busy"
	KeyImpersonationInvalid = "form.impersonation.invalid"
	KeyImpersonationSelf    = "form.impersonation.self"
	KeyOverlayUnavailable   = "form.overlay.unavailable"
	KeyLoginInvalid         = "form.login.invalid"
	KeyLoginWelcome         = "notice.login.welcome"
)

var catalog = map[string]map[string]string{
	"en-US": {
		KeyNoticeAdminPath:   "This page is not available in role simulation mode.",
		KeyNoticeNoModule:    "The simulated role has no permission for this page.",
		KeyNoticeNoModules:   "The simulated role cannot open any page. Stop the simulation to continue.",
		KeySimulationStarted: "Now viewing the portal as %s.",
		KeySimulationStopped: "Role simulation ended.",
		KeyImpersonationOn:   "Now acting as %s.",
		KeyImpersonationOff:  "Impersonation ended.",
		KeySessionWarning:    "Your session will expire in %d seconds due to inactivity.",
		KeySessionExtend:     "Stay signed in",
		KeySessionReauth:     "Your session has ended. Please sign in again.",
		KeySessionExpired:    "You were signed out after a period of inactivity.",
		KeyLoading:           "Loading your workspace…",

		KeyBannerSimulation:          "Role simulation: viewing the portal as %s.",
		KeyBannerSimulationClient:    "Client: %s.",
		KeyBannerSimulationContact:   "Contact: %s (%s).",
		KeyBannerImpersonation:       "You are acting as %s.",
		KeyBannerImpersonationClient: "You are acting as %s of %s.",
		KeyBannerStop:                "Stop",

		KeySimulationInvalid:    "Choose a client-facing or staff role to simulate.",
		KeySimulationBusy:       "Stop the current simulation before simulating another role.",
		KeyImpersonationInvalid: "That user cannot be impersonated.",
		KeyImpersonationSelf:    "You cannot impersonate yourself.",
		KeyOverlayUnavailable:   "The request could not be completed. Please try again.",
		KeyLoginInvalid:         "Invalid email or password.",
		KeyLoginWelcome:         "Welcome back, %s.",
	},
	"id-ID": {
		KeyNoticeAdminPath:   "Halaman ini tidak tersedia dalam mode simulasi peran.",
		KeyNoticeNoModule:    "Peran yang disimulasikan tidak memiliki izin untuk halaman ini.",
		KeyNoticeNoModules:   "Peran yang disimulasikan tidak dapat membuka halaman apa pun. Hentikan simulasi untuk melanjutkan.",
		KeySimulationStarted: "Sekarang melihat portal sebagai %s.",
		KeySimulationStopped: "Simulasi peran selesai.",
		KeyImpersonationOn:   "Sekarang bertindak sebagai %s.",
		KeyImpersonationOff:  "Impersonasi selesai.",
		KeySessionWarning:    "Sesi Anda akan berakhir dalam %d detik karena tidak ada aktivitas.",
		KeySessionExtend:     "Tetap masuk",
		KeySessionReauth:     "Sesi Anda telah berakhir. Silakan masuk kembali.",
		KeySessionExpired:    "Anda dikeluarkan setelah tidak ada aktivitas.",
		KeyLoading:           "Memuat ruang kerja Anda…",

		KeyBannerSimulation:          "Simulasi peran: melihat portal sebagai %s.",
		KeyBannerSimulationClient:    "Klien: %s.",
		KeyBannerSimulationContact:   "Kontak: %s (%s).",
		KeyBannerImpersonation:       "Anda bertindak sebagai %s.",
		KeyBannerImpersonationClient: "Anda bertindak sebagai %s dari %s.",
		KeyBannerStop:                "Hentikan",

		KeySimulationInvalid:    "Pilih peran klien atau staf untuk disimulasikan.",
		KeySimulationBusy:       "Hentikan simulasi saat ini sebelum mensimulasikan peran lain.",
		KeyImpersonationInvalid: "Pengguna tersebut tidak dapat diimpersonasi.",
		KeyImpersonationSelf:    "Anda tidak dapat mengimpersonasi diri sendiri.",
		KeyOverlayUnavailable:   "Permintaan tidak dapat diselesaikan. Silakan coba lagi.",
		KeyLoginInvalid:         "Email atau password tidak valid.",
		KeyLoginWelcome:         "Selamat datang kembali, %s.",
	},
}

var supported []language.Tag

func init() {
	locales := make([]string, 0, len(catalog))
	for locale := range catalog {
		locales = append(locales, locale)
	}
	sort.Strings(locales)
	for _, locale := range locales {
		tag := language.MustParse(locale)
		supported = append(supported, tag)
		for key, value := range catalog[locale] {
			_ = message.SetString(tag, key, value)
		}
	}
}

// Supported returns the tags that have a catalog.
func Supported() []language.Tag {
	out := make([]language.Tag, len(supported))
	copy(out, supported)
	return out
}

// Localizer picks a language per request.
type Localizer struct {
	fallback language.Tag
	ordered  []language.Tag
	matcher  language.Matcher
}

// NewLocalizer returns a Localizer falling back to defaultLocale, or en-US when that
// locale has no catalog.
func NewLocalizer(defaultLocale string) *Localizer {
	fallback := language.AmericanEnglish
	if tag, err := language.Parse(strings.TrimSpace(defaultLocale)); err == nil {
		if _, ok := catalog[tag.String()]; ok {
			fallback = tag
		}
	}
	ordered := []language.Tag{fallback}
	for _, tag := range supported {
		if tag != fallback {
			ordered = append(ordered, tag)
		}
	}
	return &Localizer{fallback: fallback, ordered: ordered, matcher: language.NewMatcher(ordered)}
}

// Tag resolves the request language from ?lang, the language cookie, then
// Accept-Language. The bool reports whether ?lang should be persisted.
func (l *Localizer) Tag(r *http.Request) (language.Tag, bool) {
	if l == nil {
		return language.AmericanEnglish, false
	}
	if r == nil {
		return l.fallback, false
	}
	if raw := strings.TrimSpace(r.URL.Query().Get(LangParam)); raw != "" {
		if tag, ok := l.match(raw); ok {
			return tag, true
		}
	}
	if cookie, err := r.Cookie(LangCookieName); err == nil {
		if tag, ok := l.match(cookie.Value); ok {
			return tag, false
		}
	}
	if accept := strings.TrimSpace(r.Header.Get("Accept-Language")); accept != "" {
		if tags, _, err := language.ParseAcceptLanguage(accept); err == nil && len(tags) > 0 {
			_, idx, conf := l.matcher.Match(tags...)
			if conf != language.No {
				return l.supportedAt(idx), false
			}
		}
	}
	return l.fallback, false
}

// Printer returns a printer for the request language.
func (l *Localizer) Printer(r *http.Request) *message.Printer {
	tag, _ := l.Tag(r)
	return message.NewPrinter(tag)
}

// Sprintf localizes key for the request.
func (l *Localizer) Sprintf(r *http.Request, key string, args ...any) string {
	return l.Printer(r).Sprintf(key, args...)
}

// Middleware persists an explicit ?lang choice as a cookie.
func (l *Localizer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tag, persist := l.Tag(r); persist {
			http.SetCookie(w, &http.Cookie{
				Name:     LangCookieName,
				Value:    tag.String(),
				Path:     "/",
				MaxAge:   int((365 * 24 * time.Hour).Seconds()),
				SameSite: http.SameSiteLaxMode,
			})
		}
		next.ServeHTTP(w, r)
	})
}

func (l *Localizer) match(raw string) (language.Tag, bool) {
	tag, err := language.Parse(raw)
	if err != nil {
		return language.Und, false
	}
	_, idx, conf := l.matcher.Match(tag)
	if conf == language.No {
		return language.Und, false
	}
	return l.supportedAt(idx), true
}

func (l *Localizer) supportedAt(idx int) language.Tag {
	if idx < 0 || idx >= len(l.ordered) {
		return l.fallback
	}
	return l.ordered[idx]
}
