package subscription

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-memory Store for tests. Scans iterate records in
// deterministic (owner, project) key order so cursor behavior is stable.
type Memory struct {
	mu   sync.RWMutex
	subs map[string]Subscription
}

// NewMemory creates an empty in-memory subscription store.
func NewMemory() *Memory {
	return &Memory{subs: make(map[string]Subscription)}
}

func key(ownerID, projectID string) string {
	return ownerID + "/" + projectID
}

func (m *Memory) Get(_ context.Context, ownerID, projectID string) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sub, ok := m.subs[key(ownerID, projectID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := sub
	return &cp, nil
}

func (m *Memory) Put(_ context.Context, sub *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.subs[key(sub.OwnerID, sub.ProjectID)] = *sub
	return nil
}

func (m *Memory) Update(_ context.Context, ownerID, projectID string, changes Changes) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(ownerID, projectID)
	sub, ok := m.subs[k]
	if !ok {
		return ErrNotFound
	}

	if changes.Tier != nil {
		sub.Tier = *changes.Tier
	}
	if changes.Status != nil {
		sub.Status = *changes.Status
	}
	if changes.CredentialID != nil {
		sub.CredentialID = *changes.CredentialID
	}
	if changes.UsagePlanID != nil {
		sub.UsagePlanID = *changes.UsagePlanID
	}
	if changes.Card != nil {
		sub.Card = *changes.Card
	}
	if changes.NextPaymentAt != nil {
		sub.NextPaymentAt = *changes.NextPaymentAt
	}
	if changes.BilledAt != nil {
		sub.BilledAt = *changes.BilledAt
	}

	m.subs[k] = sub
	return nil
}

func (m *Memory) QueryDue(_ context.Context, status Status, before time.Time, cursor Cursor, limit int32) ([]Subscription, Cursor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.subs))
	for k, sub := range m.subs {
		if sub.Status == status && !sub.NextPaymentAt.After(before) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if cursor != "" {
		for i, k := range keys {
			if k > string(cursor) {
				start = i
				break
			}
			start = i + 1
		}
	}

	var out []Subscription
	var next Cursor
	for i := start; i < len(keys); i++ {
		if int32(len(out)) == limit {
			next = Cursor(keys[i-1])
			break
		}
		out = append(out, m.subs[keys[i]])
	}

	return out, next, nil
}

func (m *Memory) CountActiveFree(_ context.Context, ownerID string, limit int32) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, sub := range m.subs {
		if sub.OwnerID == ownerID && sub.Status == StatusActiveFree {
			count++
			if int32(count) >= limit {
				break
			}
		}
	}
	return count, nil
}
