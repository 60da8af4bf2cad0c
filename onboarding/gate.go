// Package onboarding gates first-time patients behind the care-program
// selection step.
//
// The gate is derived from the session on every call; it stores nothing but
// an in-memory dismissal that lasts for the current session token.
package onboarding

import (
	"context"
	"sync"

	"github.com/ashaassist/portal/domain"
	"github.com/ashaassist/portal/identity"
	"github.com/ashaassist/portal/session"
)

// Gate decides whether onboarding must be shown and resolves it.
type Gate struct {
	m *session.Manager

	mu        sync.Mutex
	dismissed string // token of the session in which Skip was called
}

func NewGate(m *session.Manager) *Gate {
	return &Gate{m: m}
}

// IsRequired reports whether the current session must complete onboarding
// before any other screen is reachable.
func (g *Gate) IsRequired() bool {
	return g.RequiredFor(g.m.Current())
}

// RequiredFor evaluates the gate against a state snapshot.
func (g *Gate) RequiredFor(s session.State) bool {
	if !s.Authenticated() || !s.Profile.NeedsOnboarding() {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dismissed != s.Token
}

// Satisfy records the chosen care program and completes onboarding. Calling
// it again with the same category leaves the profile unchanged.
func (g *Gate) Satisfy(ctx context.Context, category identity.CareCategory) (*identity.Profile, error) {
	if !category.Known() {
		return nil, domain.NewError(domain.ReasonValidation, "unknown care program", nil)
	}
	completed, first := true, false
	return g.m.UpdateProfile(ctx, identity.ProfilePatch{
		CareCategory:     &category,
		ProfileCompleted: &completed,
		IsFirstLogin:     &first,
	})
}

// Skip suppresses the gate for the rest of the current session without
// touching the profile. A new login or a restart shows it again.
func (g *Gate) Skip() error {
	s := g.m.Current()
	if !s.Authenticated() {
		return domain.NewError(domain.ReasonInvalidState, "not signed in", nil)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dismissed = s.Token
	return nil
}
