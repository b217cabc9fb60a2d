package impersonation

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/agencyhub/portal/internal/i18n"
	"github.com/agencyhub/portal/internal/view"
)

// StopURL ends the active impersonation.
const StopURL = "/impersonation/stop"

// Directory resolves the client name of the impersonated user.
type Directory interface {
	ClientName(ctx context.Context, id int64) (string, error)
}

// BannerPresenter renders the "acting as" banner.
type BannerPresenter struct {
	Directory Directory
	Localizer *i18n.Localizer
	Timeout   time.Duration
	Logger    *slog.Logger
}

// Present returns the banner for the request's session, or false when nobody is
// being impersonated.
func (p BannerPresenter) Present(r *http.Request) (view.Banner, bool) {
	imp := MustFromContext(r.Context())
	snap := imp.Snapshot()
	if !snap.IsImpersonating || snap.User == nil {
		return view.Banner{}, false
	}
	clientName := snap.User.ClientName
	if clientName == "" && snap.User.ClientID != nil {
		clientName = p.clientName(r.Context(), *snap.User.ClientID)
	}

	current := imp.Snapshot()
	if !current.IsImpersonating || current.User == nil {
		return view.Banner{}, false
	}
	if current.Generation != snap.Generation {
		clientName = current.User.ClientName
	}

	message := p.Localizer.Sprintf(r, i18n.KeyBannerImpersonation, current.User.Name)
	if clientName != "" {
		message = p.Localizer.Sprintf(r, i18n.KeyBannerImpersonationClient, current.User.Name, clientName)
	}
	return view.Banner{
		Kind:       "impersonation",
		Message:    message,
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

func (p BannerPresenter) clientName(ctx context.Context, id int64) string {
	if p.Directory == nil {
		return ""
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	name, err := p.Directory.ClientName(ctx, id)
	if err != nil {
		p.logger().Debug("impersonation banner client lookup", slog.Int64("client_id", id), slog.Any("error", err))
		return ""
	}
	return name
}

func (p BannerPresenter) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}
