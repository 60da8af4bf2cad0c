package flow

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ashaassist/portal/domain"
)

func TestCallbackReceiverDelivers(t *testing.T) {
	announced := make(chan string, 1)
	r := NewCallbackReceiver(func(u string) { announced <- u })

	type result struct {
		code, state string
		err         error
	}
	done := make(chan result, 1)
	go func() {
		code, state, err := r.Authorize(context.Background(), "https://idp.example/auth?state=s1&client_id=c")
		done <- result{code, state, err}
	}()

	select {
	case u := <-announced:
		if pending, ok := r.Pending(); !ok || pending != u {
			t.Errorf("expected pending %q, got %q", u, pending)
		}
	case <-time.After(time.Second):
		t.Fatal("authorization URL not announced")
	}

	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/auth/callback?state=s1&code=abc")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	res := <-done
	if res.err != nil || res.code != "abc" || res.state != "s1" {
		t.Errorf("unexpected result %+v", res)
	}
	if _, ok := r.Pending(); ok {
		t.Error("expected nothing pending after delivery")
	}
}

func TestCallbackReceiverUnknownState(t *testing.T) {
	r := NewCallbackReceiver(nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/callback?state=nope&code=abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestCallbackReceiverProviderError(t *testing.T) {
	r := NewCallbackReceiver(nil)
	errc := make(chan error, 1)
	go func() {
		_, _, err := r.Authorize(context.Background(), "https://idp.example/auth?state=s2")
		errc <- err
	}()

	deadline := time.Now().Add(time.Second)
	for !r.Deliver("s2", "", "access_denied") {
		if time.Now().After(deadline) {
			t.Fatal("sign-in never became pending")
		}
		time.Sleep(time.Millisecond)
	}
	if err := <-errc; !errors.Is(err, domain.ErrProviderDenied) {
		t.Errorf("expected provider denied, got %v", err)
	}
}

func TestCallbackReceiverCancel(t *testing.T) {
	r := NewCallbackReceiver(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := r.Authorize(ctx, "https://idp.example/auth?state=s3"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected cancellation, got %v", err)
	}
	if _, _, err := r.Authorize(context.Background(), "https://idp.example/auth"); err == nil {
		t.Error("expected error for a URL without state")
	}
}
