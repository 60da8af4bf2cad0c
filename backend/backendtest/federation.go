package backendtest

import (
	"context"
	"sync"
)

// Federation is a scripted identity provider.
type Federation struct {
	mu sync.Mutex

	// IDToken is returned by SignIn when Err is nil.
	IDToken string
	// Err is returned by SignIn.
	Err error
	// SignOutErr is returned by SignOut.
	SignOutErr error

	signIns     int
	signOuts    int
	signOutGate *Gate
}

func (f *Federation) SignIn(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signIns++
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return f.IDToken, f.Err
}

func (f *Federation) SignOut(ctx context.Context) error {
	f.mu.Lock()
	f.signOuts++
	g, err := f.signOutGate, f.SignOutErr
	f.mu.Unlock()

	if g != nil {
		if werr := g.wait(ctx); werr != nil {
			return werr
		}
	}
	return err
}

// HoldSignOut parks every SignOut call until the returned gate is released.
func (f *Federation) HoldSignOut() *Gate {
	g := newGate()
	f.mu.Lock()
	f.signOutGate = g
	f.mu.Unlock()
	return g
}

// SignIns returns the number of SignIn calls.
func (f *Federation) SignIns() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signIns
}

// SignOuts returns the number of SignOut calls.
func (f *Federation) SignOuts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signOuts
}
