// Package renewal drives the recurring billing cycle: it scans for due
// subscriptions per paid tier, charges each with a bounded retry, escalates
// terminal failures to the downgrade queue and returns a continuation when
// more pages remain.
package renewal

import (
	"encoding/json"
	"errors"

	"github.com/gridshot/tierkit/pkg/subscription"
)

// Continuation carries the per-tier scan cursors between invocations. The
// driver returns one when a scan page was full; a thin dispatcher turns it
// into the next queue message (trampoline style), keeping the driver itself
// free of queue plumbing.
type Continuation struct {
	Pro       subscription.Cursor `json:"pro,omitempty"`
	Executive subscription.Cursor `json:"executive,omitempty"`
}

// IsZero reports whether no tier has a cursor to resume from.
func (c Continuation) IsZero() bool {
	return c.Pro == "" && c.Executive == ""
}

// Encode serializes the continuation for a self-message body.
func (c Continuation) Encode() ([]byte, error) {
	return json.Marshal(c)
}

// DecodeContinuation parses a continuation queue message body.
func DecodeContinuation(body []byte) (Continuation, error) {
	var c Continuation
	if err := json.Unmarshal(body, &c); err != nil {
		return Continuation{}, errors.Join(ErrInvalidContinuation, err)
	}
	return c, nil
}
