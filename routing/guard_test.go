package routing

import (
	"testing"

	"github.com/ashaassist/portal/identity"
	"github.com/ashaassist/portal/session"
)

type signal bool

func (s signal) RequiredFor(session.State) bool { return bool(s) }

func TestProtectedGuard(t *testing.T) {
	patient := state(session.StatusAuthenticated, &identity.Profile{Role: identity.RolePatient, CareCategory: identity.CategoryPalliative})

	tests := []struct {
		name string
		g    *Guard
		s    session.State
		path string
		want Outcome
	}{
		{"restoring", NewGuard(nil), session.State{Status: session.StatusInitializing}, "/profile", Outcome{Pending: true}},
		{"signed out", NewGuard(nil), session.State{Status: session.StatusUnauthenticated}, "/profile", Outcome{Redirect: Login}},
		{"logging in", NewGuard(nil), session.State{Status: session.StatusAuthenticating}, "/profile", Outcome{Redirect: Login}},
		{"onboarding first", NewGuard(signal(true)), patient, "/palliative-dashboard", Outcome{Onboarding: true}},
		{"wrong area", NewGuard(signal(false)), patient, "/admin/dashboard", Outcome{Redirect: PatientPalliativeHome}},
		{"allowed", NewGuard(signal(false)), patient, "/palliative-dashboard", Outcome{Allow: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.g.Protected(tt.s, tt.path); got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestPublicGuard(t *testing.T) {
	g := NewGuard(signal(true))
	if got := g.Public(session.State{Status: session.StatusInitializing}); !got.Pending {
		t.Errorf("expected pending, got %+v", got)
	}
	if got := g.Public(session.State{Status: session.StatusUnauthenticated}); !got.Allow {
		t.Errorf("expected public screen shown, got %+v", got)
	}
	if got := g.Public(session.State{Status: session.StatusAuthenticationFailed}); !got.Allow {
		t.Errorf("expected public screen shown after a failed login, got %+v", got)
	}
	admin := state(session.StatusAuthenticated, &identity.Profile{Role: identity.RoleAdministrator})
	if got := g.Public(admin); got != (Outcome{Redirect: AdminHome}) {
		t.Errorf("expected redirect to admin home, got %+v", got)
	}
}

func TestDashboardGuard(t *testing.T) {
	worker := state(session.StatusAuthenticated, &identity.Profile{Role: identity.RoleCommunityWorker})

	if got := NewGuard(nil).Dashboard(session.State{Status: session.StatusUnauthenticated}); got != (Outcome{Redirect: Login}) {
		t.Errorf("expected login, got %+v", got)
	}
	if got := NewGuard(nil).Dashboard(session.State{}); !got.Pending {
		t.Errorf("expected pending for zero state, got %+v", got)
	}
	if got := NewGuard(signal(true)).Dashboard(worker); !got.Onboarding {
		t.Errorf("expected onboarding when signalled, got %+v", got)
	}
	if got := NewGuard(nil).Dashboard(worker); got != (Outcome{Redirect: CommunityWorkerHome}) {
		t.Errorf("expected worker home, got %+v", got)
	}
}
