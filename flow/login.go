package flow

import (
	"context"
	"fmt"
	"sync"

	"github.com/ashaassist/portal/domain"
)

type LoginManager struct {
	mu         sync.RWMutex
	strategies map[string]LoginStrategy
	preHooks   []Hook
	postHooks  []Hook
}

func NewLoginManager() *LoginManager {
	return &LoginManager{
		strategies: make(map[string]LoginStrategy),
	}
}

func (m *LoginManager) RegisterStrategy(s LoginStrategy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strategies[s.ID()] = s
}

// Has reports whether a strategy is registered for method.
func (m *LoginManager) Has(method string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.strategies[method]
	return ok
}

func (m *LoginManager) AddPreHook(h Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.preHooks = append(m.preHooks, h)
}

func (m *LoginManager) AddPostHook(h Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.postHooks = append(m.postHooks, h)
}

func (m *LoginManager) Authenticate(ctx context.Context, method, identifier, secret string) (*domain.Grant, error) {
	m.mu.RLock()
	strategy, ok := m.strategies[method]
	pre := append([]Hook(nil), m.preHooks...)
	post := append([]Hook(nil), m.postHooks...)
	m.mu.RUnlock()

	if !ok {
		if method == MethodFederated {
			return nil, domain.NewError(domain.ReasonProviderDenied, "federated sign-in is not configured", nil)
		}
		return nil, domain.NewError(domain.ReasonValidation, fmt.Sprintf("login: unknown method %q", method), nil)
	}

	// 1. Pre-hooks
	for _, h := range pre {
		if err := h(ctx, method, nil); err != nil {
			return nil, err
		}
	}

	// 2. Delegate to strategy
	grant, err := strategy.Authenticate(ctx, identifier, secret)
	if err != nil {
		return nil, err
	}
	if grant == nil || grant.Token == "" || grant.Profile == nil {
		return nil, domain.NewError(domain.ReasonServer, "login: incomplete grant", nil)
	}

	// 3. Post-hooks
	for _, h := range post {
		if err := h(ctx, method, grant); err != nil {
			return nil, err
		}
	}

	return grant, nil
}
