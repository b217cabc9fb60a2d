package rbac

import (
	"errors"
	"strings"
	"time"
)

// ErrUnknownRole is returned when a role is outside the closed role set.
var ErrUnknownRole = errors.New("rbac: unknown role")

// ErrUnknownModule is returned when a module key is outside the closed module set.
var ErrUnknownModule = errors.New("rbac: unknown module")

// Role is a principal's intrinsic privilege tier.
type Role string

// Roles known to the portal.
const (
	RoleOwner        Role = "owner"
	RoleAdmin        Role = "admin"
	RoleManager      Role = "manager"
	RoleStaff        Role = "staff"
	RoleClientAdmin  Role = "client_admin"
	RoleClientViewer Role = "client_viewer"
)

var roleOrder = []Role{RoleOwner, RoleAdmin, RoleManager, RoleStaff, RoleClientAdmin, RoleClientViewer}

var roleLabels = map[Role]string{
	RoleOwner:        "Owner",
	RoleAdmin:        "Administrator",
	RoleManager:      "Manager",
	RoleStaff:        "Staff",
	RoleClientAdmin:  "Client Admin",
	RoleClientViewer: "Client Viewer",
}

// Roles returns every role in display order.
func Roles() []Role {
	out := make([]Role, len(roleOrder))
	copy(out, roleOrder)
	return out
}

// ParseRole accepts both the canonical value and the dashed form used in URLs.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ReplaceAll(strings.TrimSpace(strings.ToLower(raw)), "-", "_"))
	if !role.Valid() {
		return "", ErrUnknownRole
	}
	return role, nil
}

// Valid reports membership in the closed role set.
func (r Role) Valid() bool {
	_, ok := roleLabels[r]
	return ok
}

// Label returns the human readable role name.
func (r Role) Label() string {
	if label, ok := roleLabels[r]; ok {
		return label
	}
	return string(r)
}

// IsAdministrative reports whether the role may run admin tooling
// such as role simulation and impersonation.
func (r Role) IsAdministrative() bool {
	return r == RoleOwner || r == RoleAdmin
}

// ModuleKey identifies a coarse-grained navigable capability.
type ModuleKey string

// Modules gating route subtrees.
const (
	ModuleDashboard ModuleKey = "dashboard"
	ModuleAnalytics ModuleKey = "analytics"
	ModuleEcommerce ModuleKey = "ecommerce"
	ModuleMarketing ModuleKey = "marketing"
	ModuleCampaigns ModuleKey = "campaigns"
	ModuleTasks     ModuleKey = "tasks"
	ModuleTeam      ModuleKey = "team"
	ModuleInsights  ModuleKey = "insights"
	ModuleAIAgent   ModuleKey = "ai_agent"
	ModuleReports   ModuleKey = "reports"
	ModuleLeads     ModuleKey = "leads"
	ModuleBilling   ModuleKey = "billing"
	ModuleApprovals ModuleKey = "approvals"
	ModuleContent   ModuleKey = "content"
	ModuleCalendar  ModuleKey = "calendar"
)

var moduleOrder = []ModuleKey{
	ModuleDashboard, ModuleAnalytics, ModuleEcommerce, ModuleMarketing, ModuleCampaigns,
	ModuleTasks, ModuleTeam, ModuleInsights, ModuleAIAgent, ModuleReports, ModuleLeads,
	ModuleBilling, ModuleApprovals, ModuleContent, ModuleCalendar,
}

var moduleLabels = map[ModuleKey]string{
	ModuleDashboard: "Dashboard",
	ModuleAnalytics: "Analytics",
	ModuleEcommerce: "E-commerce",
	ModuleMarketing: "Marketing",
	ModuleCampaigns: "Campaigns",
	ModuleTasks:     "Tasks",
	ModuleTeam:      "Team",
	ModuleInsights:  "Insights",
	ModuleAIAgent:   "AI Agent",
	ModuleReports:   "Reports",
	ModuleLeads:     "Leads",
	ModuleBilling:   "Billing",
	ModuleApprovals: "Approvals",
	ModuleContent:   "Content",
	ModuleCalendar:  "Calendar",
}

// Modules returns every module in navigation order.
func Modules() []ModuleKey {
	out := make([]ModuleKey, len(moduleOrder))
	copy(out, moduleOrder)
	return out
}

// ParseModule validates a module key.
func ParseModule(raw string) (ModuleKey, error) {
	key := ModuleKey(strings.TrimSpace(strings.ToLower(raw)))
	if !key.Valid() {
		return "", ErrUnknownModule
	}
	return key, nil
}

// Valid reports membership in the closed module set.
func (k ModuleKey) Valid() bool {
	_, ok := moduleLabels[k]
	return ok
}

// Label returns the navigation label.
func (k ModuleKey) Label() string {
	if label, ok := moduleLabels[k]; ok {
		return label
	}
	return string(k)
}

// ModuleAccessMap records which modules a role is granted.
type ModuleAccessMap map[ModuleKey]bool

// Allows reports whether key is granted. Missing keys are denied.
func (m ModuleAccessMap) Allows(key ModuleKey) bool {
	return m[key]
}

// Clone returns an independent copy; nil stays nil.
func (m ModuleAccessMap) Clone() ModuleAccessMap {
	if m == nil {
		return nil
	}
	out := make(ModuleAccessMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Granted lists the granted modules in navigation order.
func (m ModuleAccessMap) Granted() []ModuleKey {
	var out []ModuleKey
	for _, key := range moduleOrder {
		if m[key] {
			out = append(out, key)
		}
	}
	return out
}

// RoleModuleGrant is one row of role_module_permissions.
type RoleModuleGrant struct {
	Role      Role
	Module    ModuleKey
	Enabled   bool
	UpdatedAt time.Time
}

var defaultGrants = map[Role][]ModuleKey{
	RoleOwner:   moduleOrder,
	RoleAdmin:   moduleOrder,
	RoleManager: {ModuleDashboard, ModuleAnalytics, ModuleMarketing, ModuleCampaigns, ModuleTasks, ModuleTeam, ModuleInsights, ModuleAIAgent, ModuleReports, ModuleLeads, ModuleApprovals, ModuleContent, ModuleCalendar},
	RoleStaff:   {ModuleDashboard, ModuleMarketing, ModuleCampaigns, ModuleTasks, ModuleLeads, ModuleContent, ModuleCalendar},
	RoleClientAdmin: {
		ModuleDashboard, ModuleAnalytics, ModuleEcommerce, ModuleReports, ModuleBilling, ModuleApprovals,
	},
	RoleClientViewer: {ModuleDashboard, ModuleReports},
}

// DefaultModuleAccess returns the built-in grants for role, with every module present.
func DefaultModuleAccess(role Role) ModuleAccessMap {
	out := make(ModuleAccessMap, len(moduleOrder))
	for _, key := range moduleOrder {
		out[key] = false
	}
	for _, key := range defaultGrants[role] {
		out[key] = true
	}
	return out
}
