package pages

import (
	"net/http"
	"strings"

	"github.com/agencyhub/portal/internal/i18n"
	"github.com/agencyhub/portal/internal/identity"
	"github.com/agencyhub/portal/internal/rbac"
	"github.com/agencyhub/portal/internal/simulation"
	"github.com/agencyhub/portal/internal/view"
)

// Chrome fills the page frame: language, signed-in user and module navigation.
type Chrome struct {
	Localizer *i18n.Localizer
}

// Decorator returns the view decorator.
func (c Chrome) Decorator() view.Decorator {
	return func(r *http.Request, data *view.TemplateData) {
		if c.Localizer != nil {
			tag, _ := c.Localizer.Tag(r)
			data.Lang = tag.String()
		}
		id, ok := identity.FromContext(r.Context())
		if !ok || !id.Authenticated() {
			return
		}
		data.UserName = id.User.DisplayName
		data.Nav = Navigation(r, data.CurrentPath)
	}
}

// Navigation lists the modules the acting view may open. A simulation narrows it to
// the simulated grants; otherwise every module is listed, matching the guard.
func Navigation(r *http.Request, current string) []view.NavItem {
	modules := rbac.Modules()
	if snap := simulation.MustFromContext(r.Context()).Snapshot(); snap.IsSimulating {
		modules = snap.Modules.Granted()
	}
	active, _ := rbac.ResolveRequiredModule(current, "")
	items := make([]view.NavItem, 0, len(modules))
	for _, key := range modules {
		items = append(items, view.NavItem{
			Label:  key.Label(),
			Href:   "/" + strings.ReplaceAll(string(key), "_", "-"),
			Active: key == active,
		})
	}
	return items
}
