// Package routing maps a session to the screen it may see.
//
// Decide is pure: it reads a session.State snapshot and never blocks or
// mutates anything, so guards can call it on every navigation. The three
// guards (Protected, Public, Dashboard) all dispatch through it.
package routing

import (
	"strings"

	"github.com/ashaassist/portal/identity"
	"github.com/ashaassist/portal/session"
)

// Decision is a named destination.
type Decision int

const (
	// Pending means the session is still being restored; render a loading
	// state and make no redirect.
	Pending Decision = iota
	Landing
	Login
	Register
	PatientMaternityHome
	PatientPalliativeHome
	CommunityWorkerHome
	AdminHome
)

var decisionNames = map[Decision]string{
	Pending:               "Pending",
	Landing:               "Landing",
	Login:                 "Login",
	Register:              "Register",
	PatientMaternityHome:  "PatientMaternityHome",
	PatientPalliativeHome: "PatientPalliativeHome",
	CommunityWorkerHome:   "CommunityWorkerHome",
	AdminHome:             "AdminHome",
}

func (d Decision) String() string {
	if n, ok := decisionNames[d]; ok {
		return n
	}
	return "Unknown"
}

// DashboardPath resolves to the signed-in user's home.
const DashboardPath = "/dashboard"

var paths = map[Decision]string{
	Landing:               "/",
	Login:                 "/login",
	Register:              "/register",
	PatientMaternityHome:  "/maternity-dashboard",
	PatientPalliativeHome: "/palliative-dashboard",
	CommunityWorkerHome:   "/asha-dashboard",
	AdminHome:             "/admin/dashboard",
}

// Path returns the URL of d. Pending has no URL.
func Path(d Decision) string {
	return paths[d]
}

// Decide returns where s belongs.
func Decide(s session.State) Decision {
	switch {
	case s.Status == session.StatusInitializing:
		return Pending
	case !s.Authenticated():
		return Login
	}
	return Home(s.Profile)
}

// Home dispatches a profile to its role's landing screen. Care category is
// consulted for patients only; a missing or unknown category, like an
// unknown role, lands on the maternity home.
func Home(p *identity.Profile) Decision {
	switch effectiveRole(p) {
	case identity.RoleCommunityWorker:
		return CommunityWorkerHome
	case identity.RoleAdministrator:
		return AdminHome
	}
	if p.CareCategory == identity.CategoryPalliative {
		return PatientPalliativeHome
	}
	return PatientMaternityHome
}

// effectiveRole treats unknown roles as patients, matching Home.
func effectiveRole(p *identity.Profile) identity.Role {
	if p == nil || !p.Role.Known() {
		return identity.RolePatient
	}
	return p.Role
}

// Area is a role-scoped section of the portal.
type Area int

const (
	// AreaPublic screens are shown only without a session.
	AreaPublic Area = iota
	// AreaShared screens are open to every signed-in role.
	AreaShared
	AreaMaternity
	AreaPalliative
	AreaCommunityWorker
	AreaAdmin
)

// AreaFor classifies a request path.
func AreaFor(path string) Area {
	path = "/" + strings.Trim(path, "/")
	switch {
	case path == "/" || path == "/login" || path == "/register":
		return AreaPublic
	case within(path, "/maternity") || path == "/maternity-dashboard":
		return AreaMaternity
	case within(path, "/palliative") || path == "/palliative-dashboard":
		return AreaPalliative
	case within(path, "/asha") || path == "/asha-dashboard":
		return AreaCommunityWorker
	case within(path, "/admin"):
		return AreaAdmin
	}
	return AreaShared
}

func within(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// Roles returns the roles admitted to a. Public and shared areas return nil.
func (a Area) Roles() []identity.Role {
	switch a {
	case AreaMaternity, AreaPalliative:
		return []identity.Role{identity.RolePatient}
	case AreaCommunityWorker:
		return []identity.Role{identity.RoleCommunityWorker}
	case AreaAdmin:
		return []identity.Role{identity.RoleAdministrator}
	}
	return nil
}

// Allowed reports whether s may view path. Public screens require no
// session; every other screen requires one, and role-scoped areas require
// the matching role.
func Allowed(s session.State, path string) bool {
	area := AreaFor(path)
	if area == AreaPublic {
		return !s.Authenticated()
	}
	if !s.Authenticated() {
		return false
	}
	roles := area.Roles()
	if roles == nil {
		return true
	}
	role := effectiveRole(s.Profile)
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
