package routing

import (
	"testing"

	"github.com/ashaassist/portal/identity"
	"github.com/ashaassist/portal/session"
)

var (
	allStatuses = []session.Status{
		session.StatusInitializing,
		session.StatusUnauthenticated,
		session.StatusAuthenticating,
		session.StatusAuthenticated,
		session.StatusAuthenticationFailed,
	}
	allRoles      = []identity.Role{identity.RolePatient, identity.RoleCommunityWorker, identity.RoleAdministrator, "", "nurse"}
	allCategories = []identity.CareCategory{identity.CategoryNone, identity.CategoryMaternity, identity.CategoryPalliative, "Maternity", "oncology"}
)

func state(status session.Status, p *identity.Profile) session.State {
	if status != session.StatusAuthenticated {
		return session.State{Status: status}
	}
	return session.State{Status: status, Token: "tok", Profile: p}
}

func TestDecideTotalAndDeterministic(t *testing.T) {
	for _, status := range allStatuses {
		for _, role := range allRoles {
			for _, cat := range allCategories {
				for _, completed := range []bool{false, true} {
					for _, first := range []bool{false, true} {
						p := &identity.Profile{ID: "u", Role: role, CareCategory: cat, ProfileCompleted: completed, IsFirstLogin: first}
						s := state(status, p)

						d := Decide(s)
						if again := Decide(s); again != d {
							t.Fatalf("non-deterministic for %+v/%+v: %v then %v", s, p, d, again)
						}
						if _, ok := decisionNames[d]; !ok {
							t.Fatalf("undefined decision %d for %+v", d, p)
						}
						if want := expected(status, role, cat); d != want {
							t.Errorf("status=%v role=%q cat=%q completed=%v first=%v: expected %v, got %v",
								status, role, cat, completed, first, want, d)
						}
					}
				}
			}
		}
	}
}

// expected restates the routing rules independently of Decide.
func expected(status session.Status, role identity.Role, cat identity.CareCategory) Decision {
	if status == session.StatusInitializing {
		return Pending
	}
	if status != session.StatusAuthenticated {
		return Login
	}
	switch role {
	case identity.RoleCommunityWorker:
		return CommunityWorkerHome
	case identity.RoleAdministrator:
		return AdminHome
	}
	if cat == identity.CategoryPalliative {
		return PatientPalliativeHome
	}
	return PatientMaternityHome
}

func TestDecideScenarios(t *testing.T) {
	tests := []struct {
		name string
		s    session.State
		want Decision
	}{
		{"no session", session.State{Status: session.StatusUnauthenticated}, Login},
		{"restoring", session.State{Status: session.StatusInitializing}, Pending},
		{"maternity patient", state(session.StatusAuthenticated, &identity.Profile{
			Role: identity.RolePatient, CareCategory: identity.CategoryMaternity, ProfileCompleted: true,
		}), PatientMaternityHome},
		{"palliative patient", state(session.StatusAuthenticated, &identity.Profile{
			Role: identity.RolePatient, CareCategory: identity.CategoryPalliative,
		}), PatientPalliativeHome},
		{"admin with stray category", state(session.StatusAuthenticated, &identity.Profile{
			Role: identity.RoleAdministrator, CareCategory: identity.CategoryMaternity,
		}), AdminHome},
		{"worker with stray category", state(session.StatusAuthenticated, &identity.Profile{
			Role: identity.RoleCommunityWorker, CareCategory: identity.CategoryPalliative,
		}), CommunityWorkerHome},
		{"token without profile", session.State{Status: session.StatusAuthenticated, Token: "tok"}, Login},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(tt.s); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestPaths(t *testing.T) {
	seen := map[string]Decision{}
	for d := range decisionNames {
		p := Path(d)
		if d == Pending {
			if p != "" {
				t.Errorf("pending must have no path, got %q", p)
			}
			continue
		}
		if p == "" {
			t.Errorf("%v has no path", d)
		}
		if other, dup := seen[p]; dup {
			t.Errorf("%v and %v share path %q", d, other, p)
		}
		seen[p] = d
	}
	// Every home must be reachable by the role it is for.
	homes := map[Decision]identity.Profile{
		PatientMaternityHome:  {Role: identity.RolePatient, CareCategory: identity.CategoryMaternity},
		PatientPalliativeHome: {Role: identity.RolePatient, CareCategory: identity.CategoryPalliative},
		CommunityWorkerHome:   {Role: identity.RoleCommunityWorker},
		AdminHome:             {Role: identity.RoleAdministrator},
	}
	for d, p := range homes {
		p := p
		if !Allowed(state(session.StatusAuthenticated, &p), Path(d)) {
			t.Errorf("%v not allowed at its own home %s", p.Role, Path(d))
		}
	}
}

func TestAreaFor(t *testing.T) {
	tests := map[string]Area{
		"/":                      AreaPublic,
		"/login":                 AreaPublic,
		"/register/":             AreaPublic,
		"/maternity-dashboard":   AreaMaternity,
		"/maternity/visits":      AreaMaternity,
		"/palliative-dashboard":  AreaPalliative,
		"/palliative/care-plan":  AreaPalliative,
		"/asha-dashboard":        AreaCommunityWorker,
		"/asha/patients/12":      AreaCommunityWorker,
		"/admin/dashboard":       AreaAdmin,
		"/admin":                 AreaAdmin,
		"/administrator":         AreaShared,
		"/profile":               AreaShared,
		"/maternityleave":        AreaShared,
	}
	for path, want := range tests {
		if got := AreaFor(path); got != want {
			t.Errorf("%s: expected %v, got %v", path, want, got)
		}
	}
}

func TestAllowed(t *testing.T) {
	patient := state(session.StatusAuthenticated, &identity.Profile{Role: identity.RolePatient, CareCategory: identity.CategoryMaternity})
	worker := state(session.StatusAuthenticated, &identity.Profile{Role: identity.RoleCommunityWorker})
	admin := state(session.StatusAuthenticated, &identity.Profile{Role: identity.RoleAdministrator})
	unknown := state(session.StatusAuthenticated, &identity.Profile{Role: "nurse"})
	anon := session.State{Status: session.StatusUnauthenticated}

	tests := []struct {
		name string
		s    session.State
		path string
		want bool
	}{
		{"anon landing", anon, "/", true},
		{"anon protected", anon, "/profile", false},
		{"patient login page", patient, "/login", false},
		{"patient own area", patient, "/maternity/visits", true},
		{"patient other program", patient, "/palliative/care-plan", true},
		{"patient worker area", patient, "/asha/patients", false},
		{"patient admin area", patient, "/admin/users", false},
		{"worker own area", worker, "/asha-dashboard", true},
		{"worker patient area", worker, "/maternity-dashboard", false},
		{"admin own area", admin, "/admin/dashboard", true},
		{"admin worker area", admin, "/asha/patients", false},
		{"shared", worker, "/profile", true},
		{"unknown role lands as patient", unknown, "/maternity-dashboard", true},
		{"unknown role no admin", unknown, "/admin/dashboard", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Allowed(tt.s, tt.path); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
