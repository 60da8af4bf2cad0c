package flow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/ashaassist/portal/domain"
)

type callbackResult struct {
	code  string
	state string
	err   error
}

// CallbackReceiver bridges a blocking SignIn to the provider's browser
// redirect. Authorize parks until the matching redirect reaches ServeHTTP
// (or Deliver), keyed by the OAuth state parameter.
type CallbackReceiver struct {
	mu       sync.Mutex
	pending  map[string]chan callbackResult
	lastURL  string
	announce func(authURL string)
}

// NewCallbackReceiver creates a receiver. announce, if set, is called with
// every authorization URL that must be opened in a browser.
func NewCallbackReceiver(announce func(authURL string)) *CallbackReceiver {
	return &CallbackReceiver{
		pending:  make(map[string]chan callbackResult),
		announce: announce,
	}
}

// Authorize implements AuthorizeFunc.
func (r *CallbackReceiver) Authorize(ctx context.Context, authURL string) (string, string, error) {
	u, err := url.Parse(authURL)
	if err != nil {
		return "", "", fmt.Errorf("callback: invalid authorization URL: %w", err)
	}
	state := u.Query().Get("state")
	if state == "" {
		return "", "", errors.New("callback: authorization URL has no state")
	}

	ch := make(chan callbackResult, 1)
	r.mu.Lock()
	r.pending[state] = ch
	r.lastURL = authURL
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.pending, state)
		if r.lastURL == authURL {
			r.lastURL = ""
		}
		r.mu.Unlock()
	}()

	if r.announce != nil {
		r.announce(authURL)
	}

	select {
	case res := <-ch:
		return res.code, res.state, res.err
	case <-ctx.Done():
		return "", "", ctx.Err()
	}
}

// Pending returns the authorization URL of the sign-in currently waiting for
// its redirect.
func (r *CallbackReceiver) Pending() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastURL, r.lastURL != ""
}

// Deliver hands a provider redirect to the waiting Authorize call. It reports
// false when no sign-in is waiting for state.
func (r *CallbackReceiver) Deliver(state, code, providerErr string) bool {
	r.mu.Lock()
	ch, ok := r.pending[state]
	r.mu.Unlock()
	if !ok {
		return false
	}

	res := callbackResult{code: code, state: state}
	switch {
	case providerErr != "":
		res.err = domain.NewError(domain.ReasonProviderDenied, providerErr, nil)
	case code == "":
		res.err = domain.NewError(domain.ReasonProviderDenied, "provider returned no authorization code", nil)
	}

	select {
	case ch <- res:
	default:
		// Already answered.
	}
	return true
}

func (r *CallbackReceiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	if !r.Deliver(q.Get("state"), q.Get("code"), q.Get("error")) {
		http.Error(w, "unknown or expired sign-in attempt", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "Sign-in complete. You can close this window.")
}
