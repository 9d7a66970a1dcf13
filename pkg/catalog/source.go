package catalog

import (
	"context"
	"errors"
	"sync"

	"github.com/gridshot/tierkit/pkg/secretstore"
)

// Source loads the plan catalog from the secret store and caches the parsed
// result for the lifetime of the process. The catalog rarely changes, so
// there is no invalidation; callers tolerate a cold load on first use.
type Source struct {
	secrets    secretstore.Store
	secretName string

	mu     sync.Mutex
	cached *Catalog
}

// NewSource creates a catalog Source reading the named secret.
func NewSource(secrets secretstore.Store, secretName string) *Source {
	if secrets == nil {
		panic("catalog: secretstore.Store is required")
	}
	return &Source{secrets: secrets, secretName: secretName}
}

// Load returns the cached catalog, fetching and parsing it on first call.
// Failed loads are not cached so a transient secret store error does not
// poison the process.
func (s *Source) Load(ctx context.Context) (Catalog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil {
		return *s.cached, nil
	}

	raw, err := s.secrets.GetSecret(ctx, s.secretName)
	if err != nil {
		return Catalog{}, errors.Join(ErrFailedToLoadCatalog, err)
	}

	c, err := Parse([]byte(raw))
	if err != nil {
		return Catalog{}, err
	}

	s.cached = &c
	return c, nil
}
