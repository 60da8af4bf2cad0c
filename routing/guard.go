package routing

import "github.com/ashaassist/portal/session"

// OnboardingSignal reports whether a state must pass onboarding first.
// *onboarding.Gate implements it.
type OnboardingSignal interface {
	RequiredFor(s session.State) bool
}

// Outcome is a guard verdict. Exactly one of Pending, Onboarding, Allow or a
// Redirect applies.
type Outcome struct {
	Pending    bool
	Onboarding bool
	Allow      bool
	Redirect   Decision
}

func pending() Outcome { return Outcome{Pending: true} }
func allow() Outcome { return Outcome{Allow: true} }
func redirect(d Decision) Outcome { return Outcome{Redirect: d} }
func onboardingFirst() Outcome { return Outcome{Onboarding: true} }

// Guard applies routing decisions to navigation.
type Guard struct {
	onboarding OnboardingSignal
}

// NewGuard creates a guard. A nil signal disables the onboarding check.
func NewGuard(o OnboardingSignal) *Guard {
	return &Guard{onboarding: o}
}

func (g *Guard) needsOnboarding(s session.State) bool {
	return g.onboarding != nil && g.onboarding.RequiredFor(s)
}

// Protected guards a screen that needs a session.
func (g *Guard) Protected(s session.State, path string) Outcome {
	d := Decide(s)
	switch {
	case d == Pending:
		return pending()
	case d == Login:
		return redirect(Login)
	case g.needsOnboarding(s):
		return onboardingFirst()
	case !Allowed(s, path):
		return redirect(d)
	}
	return allow()
}

// Public guards landing, login and register: a signed-in user is sent home.
func (g *Guard) Public(s session.State) Outcome {
	d := Decide(s)
	switch d {
	case Pending:
		return pending()
	case Login:
		return allow()
	}
	return redirect(d)
}

// Dashboard resolves DashboardPath to the user's home.
func (g *Guard) Dashboard(s session.State) Outcome {
	d := Decide(s)
	switch {
	case d == Pending:
		return pending()
	case d == Login:
		return redirect(Login)
	case g.needsOnboarding(s):
		return onboardingFirst()
	}
	return redirect(d)
}
