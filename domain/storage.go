// Package domain defines the contracts the session engine depends on.
//
// The engine owns no network or storage code of its own. It talks to three
// collaborators:
//
//   - AuthBackend: the portal REST API (login, registration, federated token
//     exchange, profile fetch and update)
//   - IdentityFederation: a third-party identity provider that issues an ID
//     token and can end the federated session
//   - SessionStore: durable storage of the access token and profile snapshot
//
// See the backend, flow and persistence packages for implementations.
package domain

import (
	"context"

	"github.com/ashaassist/portal/identity"
)

// Grant is the result of a successful authentication: an access token and
// the profile it belongs to. The two are always handled as a pair.
type Grant struct {
	Token   string
	Profile *identity.Profile
}

// Record is the persisted form of an authenticated session.
type Record struct {
	Token   string
	Profile *identity.Profile
}

// Valid reports whether the record carries both halves of the pair.
func (r *Record) Valid() bool {
	return r != nil && r.Token != "" && r.Profile != nil
}

// Persisted key names. Both are always written and cleared together.
const (
	KeyToken   = "session.token"
	KeyProfile = "session.profile"
)

// AuthBackend is the REST backend as seen by the engine.
type AuthBackend interface {
	Login(ctx context.Context, email, password string) (*Grant, error)
	Register(ctx context.Context, form identity.RegistrationForm) error
	ExchangeFederatedToken(ctx context.Context, idToken string) (*Grant, error)
	GetProfile(ctx context.Context, token string) (*identity.Profile, error)
	// UpdateProfile applies patch server-side. It may return nil when the
	// backend only acknowledges the write; the caller then merges the patch.
	UpdateProfile(ctx context.Context, token string, patch identity.ProfilePatch) (*identity.Profile, error)
	CheckEmail(ctx context.Context, email string) (bool, error)
}

// IdentityFederation obtains an identity assertion from a federated provider.
type IdentityFederation interface {
	SignIn(ctx context.Context) (idToken string, err error)
	SignOut(ctx context.Context) error
}

// SessionStore persists the current session across restarts.
//
// Load returns (nil, nil) when nothing is stored or the stored data cannot be
// decoded; a malformed session is never reported to the caller. Save and
// Clear are synchronous: they have completed when they return.
type SessionStore interface {
	Load(ctx context.Context) (*Record, error)
	Save(ctx context.Context, r Record) error
	Clear(ctx context.Context) error
}
