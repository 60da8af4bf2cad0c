package flow

import (
	"context"
	"strings"

	"github.com/ashaassist/portal/domain"
	"github.com/ashaassist/portal/identity"
)

// RegistrationHook runs before or after an account is created.
type RegistrationHook func(ctx context.Context, form identity.RegistrationForm) error

// RegistrationManager creates backend accounts. It never signs the new user
// in; a separate login is required.
type RegistrationManager struct {
	backend   domain.AuthBackend
	preHooks  []RegistrationHook
	postHooks []RegistrationHook
}

func NewRegistrationManager(backend domain.AuthBackend) *RegistrationManager {
	return &RegistrationManager{backend: backend}
}

func (m *RegistrationManager) AddPreHook(h RegistrationHook)  { m.preHooks = append(m.preHooks, h) }
func (m *RegistrationManager) AddPostHook(h RegistrationHook) { m.postHooks = append(m.postHooks, h) }

func (m *RegistrationManager) Submit(ctx context.Context, form identity.RegistrationForm) error {
	form.Email = NormalizeEmail(form.Email)
	form.Name = strings.TrimSpace(form.Name)
	if form.Email == "" || form.Password == "" || form.Name == "" {
		return domain.NewError(domain.ReasonValidation, "email, password and name are required", nil)
	}
	if form.Role == "" {
		form.Role = identity.RolePatient
	}
	if !form.Role.Known() {
		return domain.NewError(domain.ReasonValidation, "unknown account type", nil)
	}
	if form.Role == identity.RolePatient && !form.CareCategory.Known() {
		return domain.NewError(domain.ReasonValidation, "a care program is required for patients", nil)
	}
	if form.Role != identity.RolePatient {
		form.CareCategory = identity.CategoryNone
	}

	// 1. Pre-hooks
	for _, h := range m.preHooks {
		if err := h(ctx, form); err != nil {
			return err
		}
	}

	// 2. Delegate to backend
	if err := m.backend.Register(ctx, form); err != nil {
		return err
	}

	// 3. Post-hooks
	for _, h := range m.postHooks {
		if err := h(ctx, form); err != nil {
			return err
		}
	}

	return nil
}
