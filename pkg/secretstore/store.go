// Package secretstore provides access to named secrets with an optional
// process-lifetime cache. Secrets back the payment gateway bearer token, the
// webhook signing secret and the serialized plan catalog.
package secretstore

import (
	"context"
	"sync"
)

// Store resolves a named secret to its string value.
type Store interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// Memory is an in-memory Store for tests.
type Memory struct {
	mu      sync.RWMutex
	secrets map[string]string
	gets    map[string]int
}

// NewMemory creates a Memory store seeded with the given secrets.
func NewMemory(secrets map[string]string) *Memory {
	cp := make(map[string]string, len(secrets))
	for k, v := range secrets {
		cp[k] = v
	}
	return &Memory{secrets: cp, gets: make(map[string]int)}
}

func (m *Memory) GetSecret(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gets[name]++
	v, ok := m.secrets[name]
	if !ok {
		return "", ErrSecretNotFound
	}
	return v, nil
}

// Set stores or replaces a secret value.
func (m *Memory) Set(name, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[name] = value
}

// Gets reports how many times a secret was fetched. Used by cache tests.
func (m *Memory) Gets(name string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gets[name]
}
