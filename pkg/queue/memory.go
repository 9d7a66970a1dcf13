package queue

import (
	"context"
	"strconv"
	"sync"
)

// Memory is an in-process queue for tests. It implements Sender and hands
// out the pending messages as one batch.
type Memory struct {
	mu      sync.Mutex
	nextID  int
	pending []Message

	// SendErr, when set, is returned by Send to simulate enqueue failures.
	SendErr error
}

// NewMemoryQueue creates an empty in-process queue.
func NewMemoryQueue() *Memory {
	return &Memory{}
}

func (m *Memory) Send(_ context.Context, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SendErr != nil {
		return m.SendErr
	}
	if len(body) == 0 {
		return ErrEmptyBody
	}

	m.nextID++
	cp := make([]byte, len(body))
	copy(cp, body)
	m.pending = append(m.pending, Message{
		ID:   "msg-" + strconv.Itoa(m.nextID),
		Body: cp,
	})
	return nil
}

// Drain returns and clears all pending messages.
func (m *Memory) Drain() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := m.pending
	m.pending = nil
	return out
}

// Len reports the number of pending messages.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
