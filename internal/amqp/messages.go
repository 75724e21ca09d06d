package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"expensetracker/internal/core"
)

// EventKind names what happened to a transaction.
type EventKind string

const (
	EventCreated EventKind = "transaction.created"
	EventUpdated EventKind = "transaction.updated"
	EventDeleted EventKind = "transaction.deleted"
)

// TransactionEvent is a lightweight notification about a transaction change.
// Consumers that need the full record fetch it from the database.
type TransactionEvent struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	TemplateID string    `json:"template_id,omitempty"`
	Kind       EventKind `json:"kind"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewTransactionEvent builds an event for tx.
func NewTransactionEvent(kind EventKind, tx core.Transaction) *TransactionEvent {
	return &TransactionEvent{
		ID:         tx.ID,
		UserID:     tx.UserID,
		TemplateID: tx.TemplateID,
		Kind:       kind,
		Timestamp:  time.Now(),
	}
}

// ToJSON converts the event to JSON bytes
func (e *TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// TransactionEventFromJSON decodes and validates an event.
func TransactionEventFromJSON(data []byte) (*TransactionEvent, error) {
	var ev TransactionEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	if ev.UserID == "" {
		return nil, fmt.Errorf("transaction event %q has no user id", ev.ID)
	}
	switch ev.Kind {
	case EventCreated, EventUpdated, EventDeleted:
	default:
		return nil, fmt.Errorf("unknown transaction event kind %q", ev.Kind)
	}
	return &ev, nil
}
