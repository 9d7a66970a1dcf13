// Package queue models the at-least-once message queue boundary: senders,
// batch messages and the partial-batch-failure result that lets only failed
// items be redelivered.
package queue

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var (
	ErrEmptyBody       = errors.New("queue message body cannot be empty")
	ErrFailedToSend    = errors.New("failed to send queue message")
	ErrFailedToReceive = errors.New("failed to receive queue messages")
	ErrFailedToResolve = errors.New("failed to resolve queue batch")
)

// Sender delivers a message body to one queue.
type Sender interface {
	Send(ctx context.Context, body []byte) error
}

// Message is one delivered queue message. Receipt is transport-specific
// and opaque to handlers.
type Message struct {
	ID      string
	Body    []byte
	Receipt string
}

// BatchResult collects per-item failures from one batch. Only failed item
// identifiers are reported back to the queue for redelivery.
type BatchResult struct {
	mu     sync.Mutex
	failed map[string]struct{}
}

// NewBatchResult creates an empty batch result.
func NewBatchResult() *BatchResult {
	return &BatchResult{failed: make(map[string]struct{})}
}

// Fail marks a message as failed. Safe for concurrent use.
func (r *BatchResult) Fail(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed[id] = struct{}{}
}

// Failed reports whether the given message failed.
func (r *BatchResult) Failed(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.failed[id]
	return ok
}

// FailedIDs returns the sorted identifiers of failed messages.
func (r *BatchResult) FailedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.failed))
	for id := range r.failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Empty reports whether every message in the batch succeeded.
func (r *BatchResult) Empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.failed) == 0
}
