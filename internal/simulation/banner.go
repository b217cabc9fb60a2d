package simulation

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/agencyhub/portal/internal/directory"
	"github.com/agencyhub/portal/internal/i18n"
	"github.com/agencyhub/portal/internal/view"
)

// StopURL ends the active simulation.
const StopURL = "/role-simulation/stop"

// Directory resolves the display details shown on the banner.
type Directory interface {
	ClientName(ctx context.Context, id int64) (string, error)
	Contact(ctx context.Context, id int64) (directory.Contact, error)
}

// BannerPresenter renders the role simulation banner. It is passive: it reads the
// session's simulation and offers the stop action, nothing more.
type BannerPresenter struct {
	Directory Directory
	Localizer *i18n.Localizer
	Timeout   time.Duration
	Logger    *slog.Logger
}

type details struct {
	client  string
	contact *directory.Contact
}

// Present returns the banner for the request's session, or false when no simulation
// is active.
func (p BannerPresenter) Present(r *http.Request) (view.Banner, bool) {
	sim := MustFromContext(r.Context())
	snap := sim.Snapshot()
	if !snap.IsSimulating {
		return view.Banner{}, false
	}
	found := p.lookup(r.Context(), snap)

	// The lookup may have raced a stop or a restart; its result belongs to snap only.
	current := sim.Snapshot()
	if !current.IsSimulating {
		return view.Banner{}, false
	}
	if current.Generation != snap.Generation {
		found = details{}
	}

	parts := []string{p.Localizer.Sprintf(r, i18n.KeyBannerSimulation, current.Role.Label())}
	if found.client != "" {
		parts = append(parts, p.Localizer.Sprintf(r, i18n.KeyBannerSimulationClient, found.client))
	}
	if found.contact != nil {
		role := found.contact.Role
		if role == "" {
			role = "-"
		}
		parts = append(parts, p.Localizer.Sprintf(r, i18n.KeyBannerSimulationContact, found.contact.Name, role))
	}
	return view.Banner{
		Kind:       "simulation",
		Message:    strings.Join(parts, " "),
		StopAction: StopURL,
		StopLabel:  p.Localizer.Sprintf(r, i18n.KeyBannerStop),
	}, true
}

// Decorator appends the banner to every rendered page.
func (p BannerPresenter) Decorator() view.Decorator {
	return func(r *http.Request, data *view.TemplateData) {
		if banner, ok := p.Present(r); ok {
			data.Banners = append(data.Banners, banner)
		}
	}
}

// lookup fetches best-effort details. Failures only drop the detail.
func (p BannerPresenter) lookup(ctx context.Context, snap Snapshot) details {
	var out details
	if p.Directory == nil || (snap.ClientID == nil && snap.ContactID == nil) {
		return out
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	if snap.ClientID != nil {
		name, err := p.Directory.ClientName(ctx, *snap.ClientID)
		if err != nil {
			p.logger().Debug("simulation banner client lookup", slog.Int64("client_id", *snap.ClientID), slog.Any("error", err))
		} else {
			out.client = name
		}
	}
	if snap.ContactID != nil {
		contact, err := p.Directory.Contact(ctx, *snap.ContactID)
		if err != nil {
			p.logger().Debug("simulation banner contact lookup", slog.Int64("contact_id", *snap.ContactID), slog.Any("error", err))
		} else {
			out.contact = &contact
		}
	}
	return out
}

func (p BannerPresenter) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}
