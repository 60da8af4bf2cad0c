package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/ashaassist/portal/domain"
	"github.com/ashaassist/portal/identity"
)

func TestRegistration(t *testing.T) {
	backend := &mockBackend{}
	mgr := NewRegistrationManager(backend)

	form := identity.RegistrationForm{
		Email:        " New@Example.com ",
		Password:     "password123",
		Name:         "  Lakshmi ",
		Phone:        "9876543210",
		CareCategory: identity.CategoryMaternity,
	}
	if err := mgr.Submit(context.Background(), form); err != nil {
		t.Fatalf("failed to register: %v", err)
	}

	if len(backend.forms) != 1 {
		t.Fatalf("expected 1 backend call, got %d", len(backend.forms))
	}
	got := backend.forms[0]
	if got.Email != "new@example.com" || got.Name != "Lakshmi" {
		t.Errorf("expected normalized form, got %+v", got)
	}
	if got.Role != identity.RolePatient {
		t.Errorf("expected default patient role, got %q", got.Role)
	}
}

func TestRegistrationClearsCategoryForStaff(t *testing.T) {
	backend := &mockBackend{}
	mgr := NewRegistrationManager(backend)

	form := identity.RegistrationForm{
		Email:        "worker@example.com",
		Password:     "pw",
		Name:         "Worker",
		Role:         identity.RoleCommunityWorker,
		CareCategory: identity.CategoryPalliative,
	}
	if err := mgr.Submit(context.Background(), form); err != nil {
		t.Fatal(err)
	}
	if c := backend.forms[0].CareCategory; c != identity.CategoryNone {
		t.Errorf("expected category dropped for staff, got %q", c)
	}
}

func TestRegistrationValidation(t *testing.T) {
	base := identity.RegistrationForm{Email: "a@x.com", Password: "pw", Name: "A", CareCategory: identity.CategoryMaternity}

	tests := []struct {
		name   string
		mutate func(f *identity.RegistrationForm)
	}{
		{"no email", func(f *identity.RegistrationForm) { f.Email = " " }},
		{"no password", func(f *identity.RegistrationForm) { f.Password = "" }},
		{"no name", func(f *identity.RegistrationForm) { f.Name = "" }},
		{"unknown role", func(f *identity.RegistrationForm) { f.Role = "nurse" }},
		{"patient without program", func(f *identity.RegistrationForm) { f.CareCategory = "" }},
		{"patient with unknown program", func(f *identity.RegistrationForm) { f.CareCategory = "oncology" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &mockBackend{}
			form := base
			tt.mutate(&form)
			err := NewRegistrationManager(backend).Submit(context.Background(), form)
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
			if len(backend.forms) != 0 {
				t.Error("expected no backend call")
			}
		})
	}
}

func TestRegistrationHooks(t *testing.T) {
	backend := &mockBackend{}
	mgr := NewRegistrationManager(backend)

	var calls []string
	mgr.AddPreHook(func(_ context.Context, f identity.RegistrationForm) error {
		calls = append(calls, "pre:"+f.Email)
		return nil
	})
	mgr.AddPostHook(func(_ context.Context, f identity.RegistrationForm) error {
		calls = append(calls, "post:"+f.Email)
		return nil
	})

	form := identity.RegistrationForm{Email: "A@x.com", Password: "pw", Name: "A", CareCategory: identity.CategoryPalliative}
	if err := mgr.Submit(context.Background(), form); err != nil {
		t.Fatal(err)
	}
	if len(calls) != 2 || calls[0] != "pre:a@x.com" || calls[1] != "post:a@x.com" {
		t.Errorf("unexpected hook calls %v", calls)
	}

	backend.err = domain.NewError(domain.ReasonAccountExists, "exists", nil)
	calls = nil
	if err := mgr.Submit(context.Background(), form); !errors.Is(err, domain.ErrAccountExists) {
		t.Errorf("expected account exists, got %v", err)
	}
	if len(calls) != 1 {
		t.Errorf("post-hook must not run after a backend failure, got %v", calls)
	}
}
