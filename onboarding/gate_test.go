package onboarding

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/ashaassist/portal/backend/backendtest"
	"github.com/ashaassist/portal/domain"
	"github.com/ashaassist/portal/identity"
	"github.com/ashaassist/portal/persistence"
	"github.com/ashaassist/portal/session"
)

func setup(t *testing.T) (*session.Manager, *backendtest.Backend, *persistence.Store) {
	t.Helper()
	b := backendtest.New()
	fed := &backendtest.Federation{IDToken: "google-token"}
	b.AddFederatedIdentity("google-token", "first@x.com")
	store := persistence.NewStore(persistence.NewMemoryBackend())

	m := session.NewManager(b, fed, store)
	if err := m.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if err := m.LoginWithProvider(context.Background()); err != nil {
		t.Fatalf("provider login: %v", err)
	}
	return m, b, store
}

func TestSatisfy(t *testing.T) {
	m, b, store := setup(t)
	g := NewGate(m)

	if !g.IsRequired() {
		t.Fatal("expected onboarding to be required for a first provider login")
	}

	p, err := g.Satisfy(context.Background(), identity.CategoryPalliative)
	if err != nil {
		t.Fatalf("satisfy: %v", err)
	}
	if p.CareCategory != identity.CategoryPalliative || !p.ProfileCompleted || p.IsFirstLogin {
		t.Errorf("unexpected profile %+v", p)
	}
	if g.IsRequired() {
		t.Error("expected gate cleared after satisfy")
	}

	rec, _ := store.Load(context.Background())
	if rec == nil || !reflect.DeepEqual(*rec.Profile, *p) {
		t.Errorf("expected stored profile %+v, got %+v", p, rec)
	}
	if srv, _ := b.Profile("first@x.com"); srv.CareCategory != identity.CategoryPalliative {
		t.Errorf("expected backend updated, got %+v", srv)
	}
}

func TestSatisfyIdempotent(t *testing.T) {
	m, b, _ := setup(t)
	g := NewGate(m)

	once, err := g.Satisfy(context.Background(), identity.CategoryMaternity)
	if err != nil {
		t.Fatal(err)
	}
	twice, err := g.Satisfy(context.Background(), identity.CategoryMaternity)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("expected identical profiles, got %+v and %+v", once, twice)
	}
	if n := b.Calls(backendtest.OpUpdateProfile); n != 2 {
		t.Errorf("expected one update per call, got %d", n)
	}
}

func TestSatisfyRejectsUnknownCategory(t *testing.T) {
	m, b, _ := setup(t)
	g := NewGate(m)

	if _, err := g.Satisfy(context.Background(), identity.CareCategory("oncology")); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if b.Calls(backendtest.OpUpdateProfile) != 0 {
		t.Error("expected no backend call")
	}
}

func TestSkipIsSessionScoped(t *testing.T) {
	m, _, store := setup(t)
	g := NewGate(m)

	if err := g.Skip(); err != nil {
		t.Fatalf("skip: %v", err)
	}
	if g.IsRequired() {
		t.Error("expected gate suppressed after skip")
	}
	rec, _ := store.Load(context.Background())
	if !rec.Profile.IsFirstLogin || rec.Profile.ProfileCompleted {
		t.Errorf("skip must not change the profile, got %+v", rec.Profile)
	}

	// A new session brings the gate back.
	if err := m.Logout(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := m.LoginWithProvider(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !g.IsRequired() {
		t.Error("expected gate to return for a new session")
	}
}

func TestGateIgnoresNonPatients(t *testing.T) {
	g := &Gate{}
	s := session.State{
		Status: session.StatusAuthenticated,
		Token:  "t",
		Profile: &identity.Profile{
			ID:           "w1",
			Role:         identity.RoleCommunityWorker,
			IsFirstLogin: true,
		},
	}
	if g.RequiredFor(s) {
		t.Error("community workers never see onboarding")
	}
	if g.RequiredFor(session.State{Status: session.StatusUnauthenticated}) {
		t.Error("no gate without a session")
	}
}

func TestSkipRequiresSession(t *testing.T) {
	store := persistence.NewStore(persistence.NewMemoryBackend())
	m := session.NewManager(backendtest.New(), nil, store)
	m.Bootstrap(context.Background())
	if err := NewGate(m).Skip(); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("expected invalid state, got %v", err)
	}
}
