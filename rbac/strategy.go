// Package rbac enforces portal roles on echo routes.
//
// The shell serves a single local session, so checks read the session
// manager's current state rather than a per-request credential.
package rbac

import (
	"github.com/ashaassist/portal/identity"
	"github.com/ashaassist/portal/routing"
	"github.com/ashaassist/portal/session"
)

// Strategy defines the interface for authorization checks.
type Strategy interface {
	HasRole(s session.State, role identity.Role) bool
	CanView(s session.State, path string) bool
}

// ProfileStrategy authorizes from the role on the session's profile and the
// routing package's area rules.
type ProfileStrategy struct{}

func (ProfileStrategy) HasRole(s session.State, role identity.Role) bool {
	return s.Authenticated() && s.Profile.Role == role
}

func (ProfileStrategy) CanView(s session.State, path string) bool {
	return routing.Allowed(s, path)
}
