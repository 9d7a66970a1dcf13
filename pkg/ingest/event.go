// Package ingest turns a verified payment webhook into a subscription
// create-or-update. It is one of the two entry points into the membership
// synchronizer, next to the renewal driver.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gridshot/tierkit/pkg/catalog"
)

// EventTypeChargeCompleted is the only event type this path consumes.
const EventTypeChargeCompleted = "charge.completed"

// EventMetadata is the customer context attached to the charge by checkout.
type EventMetadata struct {
	OwnerID     string `json:"owner_id"`
	ProjectID   string `json:"project_id"`
	Tier        string `json:"tier"`
	UsagePlanID string `json:"usage_plan_id"`
}

// EventCard is the stored-card information carried by the event.
type EventCard struct {
	Token  string `json:"token"`
	Expiry string `json:"expiry"`
}

// Event is the envelope of an inbound payment gateway webhook.
type Event struct {
	Type          string        `json:"event_type"`
	TransactionID string        `json:"transaction_id"`
	Status        string        `json:"status"`
	BilledAt      time.Time     `json:"billed_at"`
	Metadata      EventMetadata `json:"metadata"`
	Card          EventCard     `json:"card"`
}

// ParseEvent decodes and validates a webhook payload.
func ParseEvent(payload []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, errors.Join(ErrInvalidEvent, err)
	}
	if err := ev.Validate(); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// Validate checks the envelope carries everything ingestion needs.
func (e Event) Validate() error {
	if e.Type != EventTypeChargeCompleted {
		return fmt.Errorf("%w: %q", ErrUnsupportedEvent, e.Type)
	}
	if e.TransactionID == "" {
		return fmt.Errorf("%w: missing transaction_id", ErrInvalidEvent)
	}
	if e.Metadata.OwnerID == "" || e.Metadata.ProjectID == "" {
		return fmt.Errorf("%w: missing owner or project metadata", ErrInvalidEvent)
	}
	if _, err := catalog.ParseTier(e.Metadata.Tier); err != nil {
		return errors.Join(ErrInvalidEvent, err)
	}
	return nil
}
