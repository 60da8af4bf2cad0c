package flow

import (
	"context"

	"github.com/ashaassist/portal/domain"
)

// Built-in login methods.
const (
	MethodPassword  = "password"
	MethodFederated = "federated"
)

// LoginStrategy turns caller-supplied credentials into a Grant.
// Strategies that need no credentials ignore identifier and secret.
type LoginStrategy interface {
	ID() string
	Authenticate(ctx context.Context, identifier, secret string) (*domain.Grant, error)
}

// Hook runs before (grant is nil) or after a flow action.
// A hook error aborts the flow.
type Hook func(ctx context.Context, method string, grant *domain.Grant) error
