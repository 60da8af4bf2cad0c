package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorMatching(t *testing.T) {
	cause := errors.New("HTTP 401")
	err := fmt.Errorf("login: %w", NewError(ReasonInvalidCredentials, "Invalid email or password", cause))

	if !errors.Is(err, ErrInvalidCredentials) {
		t.Error("expected match on reason")
	}
	if errors.Is(err, ErrNetwork) {
		t.Error("unexpected match on a different reason")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to unwrap")
	}
	if ReasonOf(err) != ReasonInvalidCredentials {
		t.Errorf("unexpected reason %q", ReasonOf(err))
	}
	if ReasonOf(cause) != "" {
		t.Error("untyped errors have no reason")
	}
	if got := NewError(ReasonServer, "", nil).Error(); got != "server_error" {
		t.Errorf("expected reason as message, got %q", got)
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.Canceled, false},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), false},
		{ErrSessionExpired, true},
		{errors.New("boom"), true},
		{NewError(ReasonNetwork, "offline", nil), false},
		{NewError(ReasonServer, "down", nil), false},
		{ErrInvalidCredentials, false},
	}
	for _, tt := range tests {
		if got := IsFatal(tt.err); got != tt.want {
			t.Errorf("IsFatal(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
