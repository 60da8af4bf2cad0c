package persistence

import (
	"fmt"
	"sync"

	"gorm.io/gorm"
)

// DialectorOpener is an alias for a function that returns a gorm.Dialector for a given DSN.
type DialectorOpener = func(string) gorm.Dialector

// BackendFactory builds a non-GORM backend from a DSN.
type BackendFactory = func(dsn string) (Backend, error)

var (
	registryMu sync.RWMutex
	providers  = make(map[string]any)
)

// Register adds a new storage provider to the registry.
// Provider can be a DialectorOpener (for GORM) or a BackendFactory.
func Register(name string, provider any) {
	registryMu.Lock()
	defer registryMu.Unlock()
	providers[name] = provider
}

// NewBackend creates a backend based on the registered name.
func NewBackend(name, dsn string) (Backend, error) {
	registryMu.RLock()
	provider, ok := providers[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("persistence: unknown storage provider %q", name)
	}

	// Case 1: Standard GORM DialectorOpener
	if opener, ok := provider.(DialectorOpener); ok {
		db, err := gorm.Open(opener(dsn), &gorm.Config{})
		if err != nil {
			return nil, err
		}
		repo := NewRepository(db)
		if err := repo.AutoMigrate(); err != nil {
			return nil, err
		}
		return repo, nil
	}

	// Case 2: Custom factory
	if factory, ok := provider.(BackendFactory); ok {
		return factory(dsn)
	}

	return nil, fmt.Errorf("persistence: provider %q registered with incompatible type (expected DialectorOpener or BackendFactory)", name)
}

// Open creates a session store on the named backend.
func Open(name, dsn string) (*Store, error) {
	b, err := NewBackend(name, dsn)
	if err != nil {
		return nil, err
	}
	return NewStore(b), nil
}
