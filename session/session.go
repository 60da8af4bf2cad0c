package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ashaassist/portal/identity"
)

// Status is the lifecycle position of a session.
type Status int

const (
	StatusInitializing Status = iota
	StatusUnauthenticated
	StatusAuthenticating
	StatusAuthenticated
	// StatusAuthenticationFailed is transient: it is always followed by
	// StatusUnauthenticated.
	StatusAuthenticationFailed
)

func (s Status) String() string {
	switch s {
	case StatusInitializing:
		return "initializing"
	case StatusUnauthenticated:
		return "unauthenticated"
	case StatusAuthenticating:
		return "authenticating"
	case StatusAuthenticated:
		return "authenticated"
	case StatusAuthenticationFailed:
		return "authentication_failed"
	}
	return "unknown"
}

// State is a snapshot of the session. Token and Profile are set only when
// Status is StatusAuthenticated.
type State struct {
	Status  Status
	Token   string
	Profile *identity.Profile
}

// Authenticated reports whether s carries a usable token/profile pair.
func (s State) Authenticated() bool {
	return s.Status == StatusAuthenticated && s.Token != "" && s.Profile != nil
}

func (s State) clone() State {
	s.Profile = s.Profile.Clone()
	return s
}

func (s State) equal(o State) bool {
	if s.Status != o.Status || s.Token != o.Token {
		return false
	}
	if s.Profile == nil || o.Profile == nil {
		return s.Profile == o.Profile
	}
	return *s.Profile == *o.Profile
}

// transitions lists, for each status, the statuses it may move to.
var transitions = map[Status][]Status{
	StatusInitializing:         {StatusUnauthenticated, StatusAuthenticated},
	StatusUnauthenticated:      {StatusAuthenticating, StatusUnauthenticated},
	StatusAuthenticating:       {StatusAuthenticated, StatusAuthenticationFailed, StatusUnauthenticated},
	StatusAuthenticationFailed: {StatusUnauthenticated},
	StatusAuthenticated:        {StatusAuthenticated, StatusUnauthenticated},
}

func canTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// tokenExpired reports whether token is a JWT whose exp claim is at or before
// now. Opaque tokens and tokens without exp never expire locally; the backend
// remains the authority.
func tokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !exp.After(now)
}
