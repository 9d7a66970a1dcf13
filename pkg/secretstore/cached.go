package secretstore

import (
	"context"
	"sync"
)

// Cached wraps a Store with a best-effort in-memory cache. Values are valid
// for the lifetime of the process and are never invalidated; a colder process
// instance simply starts with an empty cache. Failed lookups are not cached.
type Cached struct {
	inner Store

	mu     sync.RWMutex
	values map[string]string
}

// NewCached wraps a Store with a process-lifetime cache.
func NewCached(inner Store) *Cached {
	return &Cached{inner: inner, values: make(map[string]string)}
}

func (c *Cached) GetSecret(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", ErrEmptySecretName
	}

	c.mu.RLock()
	if v, ok := c.values[name]; ok {
		c.mu.RUnlock()
		return v, nil
	}
	c.mu.RUnlock()

	v, err := c.inner.GetSecret(ctx, name)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.values[name] = v
	c.mu.Unlock()

	return v, nil
}
