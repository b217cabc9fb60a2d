// Package guard decides, for every navigation, whether the page renders or the
// visitor is redirected, given the identity provider state and any active role
// simulation.
package guard

import (
	"github.com/agencyhub/portal/internal/i18n"
	"github.com/agencyhub/portal/internal/identity"
	"github.com/agencyhub/portal/internal/rbac"
	"github.com/agencyhub/portal/internal/simulation"
)

// Outcome is the result of one guard evaluation.
type Outcome int

const (
	OutcomeLoading Outcome = iota
	OutcomeUnauthenticated
	OutcomeAllowed
	OutcomeBlockedAdminPath
	OutcomeBlockedModule
)

func (o Outcome) String() string {
	switch o {
	case OutcomeLoading:
		return "loading"
	case OutcomeUnauthenticated:
		return "unauthenticated"
	case OutcomeAllowed:
		return "allowed"
	case OutcomeBlockedAdminPath:
		return "blocked_admin_path"
	case OutcomeBlockedModule:
		return "blocked_module"
	default:
		return "unknown"
	}
}

// Decision is what the middleware acts on. An empty Redirect on a blocked outcome
// means the page is refused in place.
type Decision struct {
	Outcome   Outcome
	Redirect  string
	NoticeKey string
	Module    rbac.ModuleKey
}

// Blocked reports whether a simulation refused the path.
func (d Decision) Blocked() bool {
	return d.Outcome == OutcomeBlockedAdminPath || d.Outcome == OutcomeBlockedModule
}

// Decide evaluates the rules in order; the first match wins.
func Decide(id identity.Snapshot, sim simulation.Snapshot, path string, explicit rbac.ModuleKey) Decision {
	if id.Loading {
		return Decision{Outcome: OutcomeLoading}
	}
	if id.User == nil {
		return Decision{Outcome: OutcomeUnauthenticated, Redirect: rbac.SignInRoute}
	}
	if !sim.IsSimulating {
		return Decision{Outcome: OutcomeAllowed}
	}
	if rbac.IsAdminOnlyPath(path) {
		return Decision{
			Outcome:   OutcomeBlockedAdminPath,
			Redirect:  rbac.DefaultRoute,
			NoticeKey: i18n.KeyNoticeAdminPath,
		}
	}
	key, required := rbac.ResolveRequiredModule(path, explicit)
	if !required || sim.Modules.Allows(key) {
		return Decision{Outcome: OutcomeAllowed, Module: key}
	}
	d := Decision{
		Outcome:   OutcomeBlockedModule,
		Redirect:  rbac.DefaultRoute,
		NoticeKey: i18n.KeyNoticeNoModule,
		Module:    key,
	}
	if rbac.NormalizePath(path) == rbac.DefaultRoute {
		// Redirecting the default route to itself would loop.
		d.Redirect = ""
		d.NoticeKey = i18n.KeyNoticeNoModules
	}
	return d
}
