package quota

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-memory quota Service for tests. It records per-method
// call counts so tests can assert the no-op and idempotency invariants.
type Memory struct {
	mu      sync.Mutex
	nextID  int
	members map[string]map[string]struct{} // credentialID -> set of planIDs
	enabled map[string]bool
	calls   map[string]int

	// Optional injected failures, keyed by method name.
	Fail map[string]error
}

// NewMemory creates an empty in-memory quota service.
func NewMemory() *Memory {
	return &Memory{
		members: make(map[string]map[string]struct{}),
		enabled: make(map[string]bool),
		calls:   make(map[string]int),
	}
}

func (m *Memory) fail(method string) error {
	if m.Fail == nil {
		return nil
	}
	return m.Fail[method]
}

func (m *Memory) CreateCredential(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls["CreateCredential"]++
	if err := m.fail("CreateCredential"); err != nil {
		return "", err
	}
	if name == "" {
		return "", ErrEmptyCredentialName
	}

	m.nextID++
	id := fmt.Sprintf("key-%d", m.nextID)
	m.members[id] = make(map[string]struct{})
	m.enabled[id] = true
	return id, nil
}

func (m *Memory) IsMember(_ context.Context, credentialID, planID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls["IsMember"]++
	if err := m.fail("IsMember"); err != nil {
		return false, err
	}

	plans, ok := m.members[credentialID]
	if !ok {
		return false, nil
	}
	_, member := plans[planID]
	return member, nil
}

func (m *Memory) Attach(_ context.Context, credentialID, planID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls["Attach"]++
	if err := m.fail("Attach"); err != nil {
		return err
	}

	if m.members[credentialID] == nil {
		m.members[credentialID] = make(map[string]struct{})
	}
	m.members[credentialID][planID] = struct{}{}
	return nil
}

func (m *Memory) Detach(_ context.Context, credentialID, planID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls["Detach"]++
	if err := m.fail("Detach"); err != nil {
		return err
	}

	if plans, ok := m.members[credentialID]; ok {
		delete(plans, planID)
	}
	return nil
}

func (m *Memory) SetEnabled(_ context.Context, credentialID string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls["SetEnabled"]++
	if err := m.fail("SetEnabled"); err != nil {
		return err
	}

	m.enabled[credentialID] = enabled
	return nil
}

// Member reports current membership without counting as a service call.
func (m *Memory) Member(credentialID, planID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	plans, ok := m.members[credentialID]
	if !ok {
		return false
	}
	_, member := plans[planID]
	return member
}

// Plans returns the set of plans the credential is attached to.
func (m *Memory) Plans(credentialID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for planID := range m.members[credentialID] {
		out = append(out, planID)
	}
	return out
}

// Enabled reports the credential's enabled flag.
func (m *Memory) Enabled(credentialID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled[credentialID]
}

// Calls returns the number of recorded calls to the named method.
func (m *Memory) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// SetMember force-sets membership state for test setup.
func (m *Memory) SetMember(credentialID, planID string, member bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.members[credentialID] == nil {
		m.members[credentialID] = make(map[string]struct{})
	}
	if member {
		m.members[credentialID][planID] = struct{}{}
	} else {
		delete(m.members[credentialID], planID)
	}
}
