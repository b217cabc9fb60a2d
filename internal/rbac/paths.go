package rbac

import (
	"path"
	"strings"
)

// Routes the guard redirects to.
const (
	DefaultRoute = "/dashboard"
	SignInRoute  = "/auth/login"
)

// pathModules maps route prefixes to the module they require. Paths missing from
// the table are unrestricted at the module level.
var pathModules = map[string]ModuleKey{
	"/dashboard":       ModuleDashboard,
	"/analytics":       ModuleAnalytics,
	"/ecommerce":       ModuleEcommerce,
	"/marketing":       ModuleMarketing,
	"/social-media":    ModuleMarketing,
	"/email-marketing": ModuleMarketing,
	"/campaigns":       ModuleCampaigns,
	"/tasks":           ModuleTasks,
	"/team":            ModuleTeam,
	"/insights":        ModuleInsights,
	"/ai-agent":        ModuleAIAgent,
	"/reports":         ModuleReports,
	"/leads":           ModuleLeads,
	"/billing":         ModuleBilling,
	"/invoices":        ModuleBilling,
	"/approvals":       ModuleApprovals,
	"/content":         ModuleContent,
	"/calendar":        ModuleCalendar,
}

// adminOnlyPaths are unreachable while a role simulation is active, whatever the
// simulated grants say.
var adminOnlyPaths = []string{
	"/client-management",
	"/user-management",
	"/role-simulation",
	"/impersonation",
	"/permissions",
	"/settings/roles",
	"/audit",
	"/admin",
	"/jobs",
}

// ResolveRequiredModule returns the module required to view p. A non-empty explicit
// key wins outright; otherwise the longest matching table prefix decides.
func ResolveRequiredModule(p string, explicit ModuleKey) (ModuleKey, bool) {
	if explicit != "" {
		return explicit, true
	}
	clean := normalizePath(p)
	if key, ok := pathModules[clean]; ok {
		return key, true
	}
	var (
		best    ModuleKey
		bestLen int
	)
	for prefix, key := range pathModules {
		if len(prefix) > bestLen && hasPathPrefix(clean, prefix) {
			best, bestLen = key, len(prefix)
		}
	}
	return best, bestLen > 0
}

// IsAdminOnlyPath reports whether p falls under an admin-only prefix.
func IsAdminOnlyPath(p string) bool {
	clean := normalizePath(p)
	for _, prefix := range adminOnlyPaths {
		if hasPathPrefix(clean, prefix) {
			return true
		}
	}
	return false
}

// PathModules returns a copy of the path table.
func PathModules() map[string]ModuleKey {
	out := make(map[string]ModuleKey, len(pathModules))
	for k, v := range pathModules {
		out[k] = v
	}
	return out
}

// AdminOnlyPaths returns a copy of the admin-only prefix set.
func AdminOnlyPaths() []string {
	out := make([]string, len(adminOnlyPaths))
	copy(out, adminOnlyPaths)
	return out
}

// NormalizePath cleans p the same way the resolver does.
func NormalizePath(p string) string {
	return normalizePath(p)
}

func normalizePath(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return strings.ToLower(path.Clean(p))
}

// hasPathPrefix matches on segment boundaries so /admin does not cover /administrator.
func hasPathPrefix(p, prefix string) bool {
	if p == prefix {
		return true
	}
	return strings.HasPrefix(p, prefix+"/")
}
