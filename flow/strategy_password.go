package flow

import (
	"context"
	"strings"

	"github.com/ashaassist/portal/domain"
)

// PasswordStrategy authenticates an email/password pair against the backend.
type PasswordStrategy struct {
	backend domain.AuthBackend
}

func NewPasswordStrategy(backend domain.AuthBackend) *PasswordStrategy {
	return &PasswordStrategy{backend: backend}
}

func (s *PasswordStrategy) ID() string { return MethodPassword }

func (s *PasswordStrategy) Authenticate(ctx context.Context, email, password string) (*domain.Grant, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, domain.NewError(domain.ReasonValidation, "email and password are required", nil)
	}
	return s.backend.Login(ctx, email, password)
}

// NormalizeEmail trims and lowercases an email address the way the backend
// stores it.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
