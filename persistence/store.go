// Package persistence stores the portal session on pluggable key/value
// backends.
//
// A Store writes the session as two keys, domain.KeyToken (the raw token) and
// domain.KeyProfile (the profile as JSON). Backends must write and delete the
// pair atomically.
//
// Built-in providers, selected by name with Open:
//
//   - memory: process memory, lost on exit
//   - file: a single JSON document on disk (DSN is the path)
//   - sqlite, postgres, mysql: a session_entries table via GORM
//   - redis: two keys written in a MULTI block (DSN is a redis:// URL)
package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/ashaassist/portal/domain"
	"github.com/ashaassist/portal/identity"
	"github.com/ashaassist/portal/logger"
)

// Backend is an atomic multi-key string store.
type Backend interface {
	// Get returns the values present for keys. Missing keys are absent from
	// the map.
	Get(ctx context.Context, keys ...string) (map[string]string, error)
	// Put writes all entries or none.
	Put(ctx context.Context, entries map[string]string) error
	// Delete removes all keys or none.
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// Store implements domain.SessionStore on a Backend.
type Store struct {
	backend Backend
}

func NewStore(b Backend) *Store {
	return &Store{backend: b}
}

func (s *Store) Load(ctx context.Context) (*domain.Record, error) {
	vals, err := s.backend.Get(ctx, domain.KeyToken, domain.KeyProfile)
	if err != nil {
		return nil, fmt.Errorf("persistence: load session: %w", err)
	}

	token, hasToken := vals[domain.KeyToken]
	raw, hasProfile := vals[domain.KeyProfile]
	if !hasToken && !hasProfile {
		return nil, nil
	}
	if token == "" || raw == "" {
		logger.Log.Warn("discarding stored session", zap.String("reason", string(domain.ReasonMalformedStoredSession)),
			zap.Bool("has_token", token != ""), zap.Bool("has_profile", raw != ""))
		return nil, nil
	}

	var p *identity.Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		logger.Log.Warn("discarding stored session", zap.String("reason", string(domain.ReasonMalformedStoredSession)), zap.Error(err))
		return nil, nil
	}
	// Load accepts exactly what Save accepts.
	rec := &domain.Record{Token: token, Profile: p}
	if !rec.Valid() {
		logger.Log.Warn("discarding stored session", zap.String("reason", string(domain.ReasonMalformedStoredSession)))
		return nil, nil
	}
	return rec, nil
}

func (s *Store) Save(ctx context.Context, r domain.Record) error {
	if !r.Valid() {
		return domain.NewError(domain.ReasonValidation, "persistence: token and profile are required", nil)
	}
	data, err := json.Marshal(r.Profile)
	if err != nil {
		return err
	}
	if err := s.backend.Put(ctx, map[string]string{
		domain.KeyToken:   r.Token,
		domain.KeyProfile: string(data),
	}); err != nil {
		return fmt.Errorf("persistence: save session: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if err := s.backend.Delete(ctx, domain.KeyToken, domain.KeyProfile); err != nil {
		return fmt.Errorf("persistence: clear session: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.backend.Close()
}
