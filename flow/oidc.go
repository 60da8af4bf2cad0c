package flow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/ashaassist/portal/config"
	"github.com/ashaassist/portal/domain"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// AuthorizeFunc sends the user to authURL and returns the code and state the
// provider redirected back with. CallbackReceiver.Authorize is the usual
// implementation.
type AuthorizeFunc func(ctx context.Context, authURL string) (code, state string, err error)

// OIDCFederation implements domain.IdentityFederation with the OpenID
// Connect authorization-code flow (PKCE, state and nonce checks).
type OIDCFederation struct {
	provider      *oidc.Provider
	oauthConfig   *oauth2.Config
	verifier      *oidc.IDTokenVerifier
	authorize     AuthorizeFunc
	revocationURL string
	httpClient    *http.Client

	mu    sync.Mutex
	token *oauth2.Token
}

// NewOIDCFederation discovers the provider at cfg.Issuer. ctx must outlive
// the federation: the provider's key set is refreshed with it.
func NewOIDCFederation(ctx context.Context, cfg config.OIDCProvider, authorize AuthorizeFunc) (*OIDCFederation, error) {
	if authorize == nil {
		return nil, errors.New("oidc: authorize func is required")
	}

	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to get provider %s: %w", cfg.Issuer, err)
	}

	oauthConfig := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  cfg.RedirectURL,
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
	}

	var extra struct {
		RevocationEndpoint string `json:"revocation_endpoint"`
	}
	if err := provider.Claims(&extra); err != nil {
		return nil, fmt.Errorf("failed to parse provider metadata: %w", err)
	}

	return &OIDCFederation{
		provider:      provider,
		oauthConfig:   oauthConfig,
		verifier:      provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		authorize:     authorize,
		revocationURL: extra.RevocationEndpoint,
		httpClient:    http.DefaultClient,
	}, nil
}

// AuthURL builds the provider authorization URL for the given parameters.
func (f *OIDCFederation) AuthURL(state, nonce, verifier string) string {
	return f.oauthConfig.AuthCodeURL(state, oidc.Nonce(nonce), oauth2.S256ChallengeOption(verifier))
}

func (f *OIDCFederation) SignIn(ctx context.Context) (string, error) {
	state := uuid.NewString()
	nonce := uuid.NewString()
	verifier := oauth2.GenerateVerifier()

	code, gotState, err := f.authorize(ctx, f.AuthURL(state, nonce, verifier))
	if err != nil {
		if domain.ReasonOf(err) != "" {
			return "", err
		}
		return "", domain.NewError(domain.ReasonProviderDenied, "sign-in was not completed", err)
	}
	if gotState != state {
		return "", domain.NewError(domain.ReasonProviderDenied, "state mismatch in provider callback", nil)
	}
	if code == "" {
		return "", domain.NewError(domain.ReasonProviderDenied, "provider returned no authorization code", nil)
	}

	token, err := f.oauthConfig.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return "", domain.NewError(domain.ReasonProviderDenied, "provider rejected the authorization code", err)
		}
		return "", domain.NewError(domain.ReasonNetwork, "failed to exchange token", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return "", domain.NewError(domain.ReasonProviderDenied, "no id_token in token response", nil)
	}

	idToken, err := f.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return "", domain.NewError(domain.ReasonProviderDenied, "failed to verify id token", err)
	}
	if idToken.Nonce != nonce {
		return "", domain.NewError(domain.ReasonProviderDenied, "nonce mismatch in id token", nil)
	}

	f.mu.Lock()
	f.token = token
	f.mu.Unlock()

	return rawIDToken, nil
}

// SignOut forgets the provider token and revokes it when the provider
// advertises a revocation endpoint.
func (f *OIDCFederation) SignOut(ctx context.Context) error {
	f.mu.Lock()
	token := f.token
	f.token = nil
	f.mu.Unlock()

	if token == nil || f.revocationURL == "" {
		return nil
	}

	value, hint := token.RefreshToken, "refresh_token"
	if value == "" {
		value, hint = token.AccessToken, "access_token"
	}
	form := url.Values{"token": {value}, "token_type_hint": {hint}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.revocationURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(url.QueryEscape(f.oauthConfig.ClientID), url.QueryEscape(f.oauthConfig.ClientSecret))

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("oidc: revoke token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("oidc: revoke token: HTTP %d", resp.StatusCode)
	}
	return nil
}
