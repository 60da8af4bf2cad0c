package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ashaassist/portal/domain"
	"github.com/ashaassist/portal/identity"
)

const userJSON = `{"id":"u1","email":"a@x.com","name":"Anita","userType":"user","beneficiaryCategory":"maternity","isFirstLogin":false,"profileCompleted":true}`

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/api/", time.Second)
}

func TestLogin(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/login" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "a@x.com" || body["password"] != "pw" {
			t.Errorf("unexpected body %v", body)
		}
		w.Write([]byte(`{"message":"Login successful","access_token":"tok","user":` + userJSON + `}`))
	})

	grant, err := c.Login(context.Background(), "a@x.com", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	want := identity.Profile{
		ID: "u1", Email: "a@x.com", DisplayName: "Anita", Role: identity.RolePatient,
		CareCategory: identity.CategoryMaternity, ProfileCompleted: true,
	}
	if grant.Token != "tok" || *grant.Profile != want {
		t.Errorf("unexpected grant %+v / %+v", grant, grant.Profile)
	}
}

func TestLoginMissingToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"user":` + userJSON + `}`))
	})
	if _, err := c.Login(context.Background(), "a@x.com", "pw"); !errors.Is(err, domain.ErrServer) {
		t.Errorf("expected server error, got %v", err)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		call   func(c *Client) error
		want   *domain.Error
	}{
		{"login 401", 401, `{"error":"Invalid email or password"}`, callLogin, domain.ErrInvalidCredentials},
		{"login deactivated", 401, `{"error":"Account is deactivated"}`, callLogin, domain.ErrAccountDisabled},
		{"login 400", 400, `{"error":"Email and password are required"}`, callLogin, domain.ErrValidation},
		{"login 404", 404, ``, callLogin, domain.ErrAccountNotFound},
		{"login 500", 500, `oops`, callLogin, domain.ErrServer},
		{"register 409", 409, `{"error":"User with this email already exists"}`, callRegister, domain.ErrAccountExists},
		{"google 401", 401, `{"error":"Invalid Google token"}`, callExchange, domain.ErrProviderDenied},
		{"profile 401", 401, `{"msg":"Token has expired"}`, callProfile, domain.ErrSessionExpired},
		{"update 401", 401, ``, callUpdate, domain.ErrSessionExpired},
		{"profile 502", 502, ``, callProfile, domain.ErrServer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			if err := tt.call(c); !errors.Is(err, tt.want) {
				t.Errorf("expected %s, got %v", tt.want.Reason, err)
			}
		})
	}
}

func callLogin(c *Client) error {
	_, err := c.Login(context.Background(), "a@x.com", "pw")
	return err
}

func callRegister(c *Client) error {
	return c.Register(context.Background(), identity.RegistrationForm{Email: "a@x.com", Password: "pw", Name: "A"})
}

func callExchange(c *Client) error {
	_, err := c.ExchangeFederatedToken(context.Background(), "id-token")
	return err
}

func callProfile(c *Client) error {
	_, err := c.GetProfile(context.Background(), "tok")
	return err
}

func callUpdate(c *Client) error {
	name := "x"
	_, err := c.UpdateProfile(context.Background(), "tok", identity.ProfilePatch{DisplayName: &name})
	return err
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := NewClient(srv.URL, time.Second)
	if _, err := c.Login(context.Background(), "a@x.com", "pw"); !errors.Is(err, domain.ErrNetwork) {
		t.Errorf("expected network error, got %v", err)
	}
}

func TestProfileCalls(t *testing.T) {
	var updateBody map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("expected bearer token, got %q", got)
		}
		switch r.Method {
		case http.MethodGet:
			w.Write([]byte(`{"user":` + userJSON + `}`))
		case http.MethodPut:
			json.NewDecoder(r.Body).Decode(&updateBody)
			w.Write([]byte(`{"message":"Profile updated successfully"}`))
		}
	})

	p, err := c.GetProfile(context.Background(), "tok")
	if err != nil || p.ID != "u1" {
		t.Fatalf("get profile: %+v, %v", p, err)
	}

	cat := identity.CategoryPalliative
	done := true
	got, err := c.UpdateProfile(context.Background(), "tok", identity.ProfilePatch{CareCategory: &cat, ProfileCompleted: &done})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got != nil {
		t.Errorf("expected no profile from an acknowledgement, got %+v", got)
	}
	if updateBody["beneficiaryCategory"] != "palliative" || updateBody["profileCompleted"] != true {
		t.Errorf("unexpected patch body %v", updateBody)
	}
	if _, ok := updateBody["name"]; ok {
		t.Error("unset patch fields must be omitted")
	}
}

func TestCheckEmail(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/check-email" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"available":false,"message":"Email already registered"}`))
	})
	available, err := c.CheckEmail(context.Background(), "a@x.com")
	if err != nil || available {
		t.Errorf("expected unavailable, got %v, %v", available, err)
	}
}
