package models

import (
	"time"

	id "poe/pkg/domain"
)

// EventKind names a completed registry state transition.
type EventKind string

const (
	EventRecordCreated     EventKind = "record_created"
	EventRecordDeleted     EventKind = "record_deleted"
	EventRecordTransferred EventKind = "record_transferred"
)

func (k EventKind) String() string { return string(k) }

// IsValid reports whether k is one of the known kinds.
func (k EventKind) IsValid() bool {
	switch k {
	case EventRecordCreated, EventRecordDeleted, EventRecordTransferred:
		return true
	}
	return false
}

// Event is an immutable notification of a completed transition. It is
// written once, in application order, and never read back by the registry.
//
// Actor is the caller that performed the operation. Recipient is set only for
// transfers. Height is the ledger height at which the operation applied.
type Event struct {
	Kind      EventKind      `json:"kind"`
	RecordID  RecordID       `json:"record_id"`
	Actor     id.AccountID   `json:"actor"`
	Recipient id.AccountID   `json:"recipient,omitempty"`
	Height    id.BlockNumber `json:"height"`
	Timestamp time.Time      `json:"timestamp"`
	RequestID string         `json:"request_id,omitempty"`
}

// NewCreatedEvent records that actor created rid at height.
func NewCreatedEvent(actor id.AccountID, rid RecordID, height id.BlockNumber, now time.Time) Event {
	return Event{Kind: EventRecordCreated, Actor: actor, RecordID: rid, Height: height, Timestamp: now}
}

// NewDeletedEvent records that actor deleted rid at height.
func NewDeletedEvent(actor id.AccountID, rid RecordID, height id.BlockNumber, now time.Time) Event {
	return Event{Kind: EventRecordDeleted, Actor: actor, RecordID: rid, Height: height, Timestamp: now}
}

// NewTransferredEvent records that from transferred rid to at height.
func NewTransferredEvent(from, to id.AccountID, rid RecordID, height id.BlockNumber, now time.Time) Event {
	return Event{Kind: EventRecordTransferred, Actor: from, Recipient: to, RecordID: rid, Height: height, Timestamp: now}
}
