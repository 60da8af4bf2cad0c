// Package backend implements domain.AuthBackend against the portal REST API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ashaassist/portal/domain"
	"github.com/ashaassist/portal/identity"
)

// Client talks to the portal REST API.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient creates a client for baseURL (e.g. http://localhost:5000/api).
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// endpoint identifies which call failed, since the same status code means
// different things on different routes.
type endpoint int

const (
	endpointLogin endpoint = iota
	endpointFederated
	endpointRegister
	endpointAuthenticated
	endpointPublic
)

type grantResponse struct {
	AccessToken string            `json:"access_token"`
	User        *identity.Profile `json:"user"`
}

type profileResponse struct {
	User *identity.Profile `json:"user"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ---- domain.AuthBackend ----

func (c *Client) Login(ctx context.Context, email, password string) (*domain.Grant, error) {
	var resp grantResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/login", "", body, &resp, endpointLogin); err != nil {
		return nil, err
	}
	return resp.grant()
}

func (c *Client) Register(ctx context.Context, form identity.RegistrationForm) error {
	// The response also carries a token; registration never signs in.
	return c.do(ctx, http.MethodPost, "/register", "", form, nil, endpointRegister)
}

func (c *Client) ExchangeFederatedToken(ctx context.Context, idToken string) (*domain.Grant, error) {
	var resp grantResponse
	body := map[string]string{"token": idToken}
	if err := c.do(ctx, http.MethodPost, "/auth/google", "", body, &resp, endpointFederated); err != nil {
		return nil, err
	}
	return resp.grant()
}

func (c *Client) GetProfile(ctx context.Context, token string) (*identity.Profile, error) {
	var resp profileResponse
	if err := c.do(ctx, http.MethodGet, "/profile", token, nil, &resp, endpointAuthenticated); err != nil {
		return nil, err
	}
	if resp.User == nil {
		return nil, domain.NewError(domain.ReasonServer, "profile response has no user", nil)
	}
	return resp.User, nil
}

func (c *Client) UpdateProfile(ctx context.Context, token string, patch identity.ProfilePatch) (*identity.Profile, error) {
	var resp profileResponse
	if err := c.do(ctx, http.MethodPut, "/profile", token, patch, &resp, endpointAuthenticated); err != nil {
		return nil, err
	}
	return resp.User, nil
}

func (c *Client) CheckEmail(ctx context.Context, email string) (bool, error) {
	var resp struct {
		Available bool `json:"available"`
	}
	body := map[string]string{"email": email}
	if err := c.do(ctx, http.MethodPost, "/check-email", "", body, &resp, endpointPublic); err != nil {
		return false, err
	}
	return resp.Available, nil
}

func (r *grantResponse) grant() (*domain.Grant, error) {
	if r.AccessToken == "" || r.User == nil {
		return nil, domain.NewError(domain.ReasonServer, "login response is missing the token or user", nil)
	}
	return &domain.Grant{Token: r.AccessToken, Profile: r.User}, nil
}

// ---- HTTP Helpers ----

func (c *Client) do(ctx context.Context, method, path, token string, body, out any, ep endpoint) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return domain.NewError(domain.ReasonNetwork, "portal API unreachable", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.NewError(domain.ReasonNetwork, "failed to read portal API response", err)
	}

	if resp.StatusCode >= 400 {
		return classify(resp.StatusCode, data, ep)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return domain.NewError(domain.ReasonServer, "malformed portal API response", err)
	}
	return nil
}

func classify(status int, data []byte, ep endpoint) error {
	var body errorResponse
	_ = json.Unmarshal(data, &body)
	msg := body.Error
	if msg == "" {
		msg = body.Message
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	cause := fmt.Errorf("HTTP %d", status)

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		if strings.Contains(strings.ToLower(msg), "deactivated") {
			return domain.NewError(domain.ReasonAccountDisabled, msg, cause)
		}
		switch ep {
		case endpointLogin:
			return domain.NewError(domain.ReasonInvalidCredentials, msg, cause)
		case endpointFederated:
			return domain.NewError(domain.ReasonProviderDenied, msg, cause)
		case endpointAuthenticated:
			return domain.NewError(domain.ReasonSessionExpired, msg, cause)
		}
		return domain.NewError(domain.ReasonInvalidCredentials, msg, cause)
	case status == http.StatusNotFound:
		return domain.NewError(domain.ReasonAccountNotFound, msg, cause)
	case status == http.StatusConflict:
		return domain.NewError(domain.ReasonAccountExists, msg, cause)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return domain.NewError(domain.ReasonValidation, msg, cause)
	case status >= 500:
		return domain.NewError(domain.ReasonServer, msg, cause)
	}
	return domain.NewError(domain.ReasonServer, msg, errors.Join(cause, errors.New("unexpected status")))
}
