package subscription

import (
	"context"
	"time"

	"github.com/gridshot/tierkit/pkg/catalog"
)

// Cursor is an opaque continuation token for paginated scans. The empty
// cursor starts a scan from the beginning; a scan that is exhausted returns
// an empty cursor.
type Cursor string

// Changes is a partial update to a subscription record. Nil fields are left
// untouched.
type Changes struct {
	Tier          *catalog.Tier
	Status        *Status
	CredentialID  *string
	UsagePlanID   *string
	Card          *Card
	NextPaymentAt *time.Time
	BilledAt      *time.Time
}

// Store is the subscription persistence boundary. Implementations are
// key-value stores queryable by two secondary attributes: (status,
// nextPaymentAt) for due-renewal scans and (owner, status) for free-tier
// quota counting.
type Store interface {
	// Get retrieves a subscription by (owner, project).
	// Returns ErrNotFound if no record exists.
	Get(ctx context.Context, ownerID, projectID string) (*Subscription, error)

	// Put creates or fully replaces a subscription record.
	Put(ctx context.Context, sub *Subscription) error

	// Update applies a partial update to an existing record.
	Update(ctx context.Context, ownerID, projectID string, changes Changes) error

	// QueryDue returns up to limit subscriptions in the given status whose
	// next payment is at or before the given time, resuming from cursor.
	// The returned cursor is empty when the scan is exhausted.
	QueryDue(ctx context.Context, status Status, before time.Time, cursor Cursor, limit int32) ([]Subscription, Cursor, error)

	// CountActiveFree counts the owner's subscriptions in StatusActiveFree,
	// reading at most limit records. The bound keeps quota checks cheap.
	CountActiveFree(ctx context.Context, ownerID string, limit int32) (int, error)
}
