// Package backendtest provides an in-memory portal backend and identity
// provider for engine tests and local demos.
//
// Backend keeps accounts in memory with bcrypt-hashed passwords and issues
// HS256 access tokens, so tokens behave like the real API's: they expire and
// are rejected once revoked. Individual operations can be held in flight with
// Hold or made to fail with Fail.
package backendtest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ashaassist/portal/domain"
	"github.com/ashaassist/portal/identity"
)

// Operation names accepted by Hold, Fail and Calls.
const (
	OpLogin         = "login"
	OpRegister      = "register"
	OpExchange      = "exchange"
	OpGetProfile    = "get_profile"
	OpUpdateProfile = "update_profile"
	OpCheckEmail    = "check_email"
)

type account struct {
	profile  identity.Profile
	hash     []byte
	disabled bool
}

// Backend implements domain.AuthBackend in memory.
type Backend struct {
	mu        sync.Mutex
	secret    []byte
	ttl       time.Duration
	accounts  map[string]*account // by email
	federated map[string]string   // id token -> email
	revoked   map[string]bool
	gates     map[string]*Gate
	errs      map[string]error
	calls     map[string]int

	// AckOnlyUpdates makes UpdateProfile return no profile, like the REST API.
	AckOnlyUpdates bool
}

func New() *Backend {
	return &Backend{
		secret:    []byte(uuid.NewString()),
		ttl:       24 * time.Hour,
		accounts:  make(map[string]*account),
		federated: make(map[string]string),
		revoked:   make(map[string]bool),
		gates:     make(map[string]*Gate),
		errs:      make(map[string]error),
		calls:     make(map[string]int),
	}
}

// AddUser creates an account. An empty ID is generated.
func (b *Backend) AddUser(p identity.Profile, password string) identity.Profile {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts[p.Email] = &account{profile: p, hash: hash}
	return p
}

// Disable deactivates the account for email.
func (b *Backend) Disable(email string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if a, ok := b.accounts[email]; ok {
		a.disabled = true
	}
}

// AddFederatedIdentity makes idToken exchangeable for the account of email.
// The account is created on first exchange when it does not exist.
func (b *Backend) AddFederatedIdentity(idToken, email string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.federated[idToken] = strings.ToLower(email)
}

// Profile returns the server-side profile for email.
func (b *Backend) Profile(email string) (identity.Profile, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.accounts[email]
	if !ok {
		return identity.Profile{}, false
	}
	return a.profile, true
}

// IssueToken signs an access token for userID valid for ttl. A negative ttl
// yields an already expired token.
func (b *Backend) IssueToken(userID string, ttl time.Duration) string {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.secret)
	return signed
}

// Revoke makes token unusable for authenticated calls.
func (b *Backend) Revoke(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revoked[token] = true
}

// Fail makes op return err until Fail(op, nil) is called.
func (b *Backend) Fail(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.errs, op)
		return
	}
	b.errs[op] = err
}

// Hold parks every call of op until the returned gate is released.
func (b *Backend) Hold(op string) *Gate {
	g := newGate()
	b.mu.Lock()
	b.gates[op] = g
	b.mu.Unlock()
	return g
}

// Calls returns how many times op has been invoked.
func (b *Backend) Calls(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

// enter counts the call, waits on a gate and returns an injected error.
func (b *Backend) enter(ctx context.Context, op string) error {
	b.mu.Lock()
	b.calls[op]++
	g := b.gates[op]
	b.mu.Unlock()

	if g != nil {
		if err := g.wait(ctx); err != nil {
			return err
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.errs[op]
}

// ---- domain.AuthBackend ----

func (b *Backend) Login(ctx context.Context, email, password string) (*domain.Grant, error) {
	if err := b.enter(ctx, OpLogin); err != nil {
		return nil, err
	}

	b.mu.Lock()
	a, ok := b.accounts[strings.ToLower(email)]
	b.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(a.hash, []byte(password)) != nil {
		return nil, domain.NewError(domain.ReasonInvalidCredentials, "Invalid email or password", nil)
	}
	if a.disabled {
		return nil, domain.NewError(domain.ReasonAccountDisabled, "Account is deactivated", nil)
	}
	return b.grant(a), nil
}

func (b *Backend) Register(ctx context.Context, form identity.RegistrationForm) error {
	if err := b.enter(ctx, OpRegister); err != nil {
		return err
	}
	if form.Email == "" || form.Password == "" || form.Name == "" {
		return domain.NewError(domain.ReasonValidation, "Email, password and name are required", nil)
	}

	b.mu.Lock()
	_, exists := b.accounts[strings.ToLower(form.Email)]
	b.mu.Unlock()
	if exists {
		return domain.NewError(domain.ReasonAccountExists, "User with this email already exists", nil)
	}

	b.AddUser(identity.Profile{
		Email:        form.Email,
		DisplayName:  form.Name,
		Role:         form.Role,
		CareCategory: form.CareCategory,
		IsFirstLogin: true,
	}, form.Password)
	return nil
}

func (b *Backend) ExchangeFederatedToken(ctx context.Context, idToken string) (*domain.Grant, error) {
	if err := b.enter(ctx, OpExchange); err != nil {
		return nil, err
	}

	b.mu.Lock()
	email, ok := b.federated[idToken]
	b.mu.Unlock()
	if !ok {
		return nil, domain.NewError(domain.ReasonProviderDenied, "Invalid Google token", nil)
	}

	b.mu.Lock()
	a, exists := b.accounts[email]
	b.mu.Unlock()
	if !exists {
		// Provider-created accounts start as maternity patients pending
		// onboarding.
		b.AddUser(identity.Profile{
			Email:        email,
			DisplayName:  strings.SplitN(email, "@", 2)[0],
			Role:         identity.RolePatient,
			CareCategory: identity.CategoryMaternity,
			IsFirstLogin: true,
		}, uuid.NewString())
		b.mu.Lock()
		a = b.accounts[email]
		b.mu.Unlock()
	}
	if a.disabled {
		return nil, domain.NewError(domain.ReasonAccountDisabled, "Account is deactivated", nil)
	}
	return b.grant(a), nil
}

func (b *Backend) GetProfile(ctx context.Context, token string) (*identity.Profile, error) {
	if err := b.enter(ctx, OpGetProfile); err != nil {
		return nil, err
	}
	a, err := b.authorize(token)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	p := a.profile
	return &p, nil
}

func (b *Backend) UpdateProfile(ctx context.Context, token string, patch identity.ProfilePatch) (*identity.Profile, error) {
	if err := b.enter(ctx, OpUpdateProfile); err != nil {
		return nil, err
	}
	a, err := b.authorize(token)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	a.profile = *patch.Apply(&a.profile)
	if b.AckOnlyUpdates {
		return nil, nil
	}
	p := a.profile
	return &p, nil
}

func (b *Backend) CheckEmail(ctx context.Context, email string) (bool, error) {
	if err := b.enter(ctx, OpCheckEmail); err != nil {
		return false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, exists := b.accounts[strings.ToLower(strings.TrimSpace(email))]
	return !exists, nil
}

func (b *Backend) grant(a *account) *domain.Grant {
	b.mu.Lock()
	p := a.profile
	b.mu.Unlock()
	return &domain.Grant{Token: b.IssueToken(p.ID, b.ttl), Profile: &p}
}

func (b *Backend) authorize(token string) (*account, error) {
	expired := domain.NewError(domain.ReasonSessionExpired, "Token has expired or is invalid", nil)

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return b.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, expired
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.revoked[token] {
		return nil, expired
	}
	for _, a := range b.accounts {
		if a.profile.ID == claims.Subject {
			return a, nil
		}
	}
	return nil, domain.NewError(domain.ReasonAccountNotFound, "User not found", nil)
}

// Gate holds backend calls in flight.
type Gate struct {
	entered     chan struct{}
	release     chan struct{}
	enterOnce   sync.Once
	releaseOnce sync.Once
}

func newGate() *Gate {
	return &Gate{entered: make(chan struct{}), release: make(chan struct{})}
}

// Entered is closed once the first call reaches the gate.
func (g *Gate) Entered() <-chan struct{} { return g.entered }

// Release lets every parked and future call through.
func (g *Gate) Release() {
	g.releaseOnce.Do(func() { close(g.release) })
}

func (g *Gate) wait(ctx context.Context) error {
	g.enterOnce.Do(func() { close(g.entered) })
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
