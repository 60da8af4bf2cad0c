package flow

import (
	"context"

	"github.com/ashaassist/portal/domain"
)

// FederatedStrategy obtains an ID token from the identity provider and
// exchanges it for a portal session.
type FederatedStrategy struct {
	federation domain.IdentityFederation
	backend    domain.AuthBackend
}

func NewFederatedStrategy(federation domain.IdentityFederation, backend domain.AuthBackend) *FederatedStrategy {
	return &FederatedStrategy{federation: federation, backend: backend}
}

func (s *FederatedStrategy) ID() string { return MethodFederated }

func (s *FederatedStrategy) Authenticate(ctx context.Context, _, _ string) (*domain.Grant, error) {
	idToken, err := s.federation.SignIn(ctx)
	if err != nil {
		if domain.ReasonOf(err) == "" {
			return nil, domain.NewError(domain.ReasonProviderDenied, "federated sign-in failed", err)
		}
		return nil, err
	}
	if idToken == "" {
		return nil, domain.NewError(domain.ReasonProviderDenied, "provider returned no identity token", nil)
	}
	return s.backend.ExchangeFederatedToken(ctx, idToken)
}
