// Package audit captures the operational audit trail: one event per
// lifecycle transition, over and above the history embedded in each record.
// Events are transport-agnostic so stores and sinks can fan out.
package audit

import (
	"context"
	"time"
)

// Action names a lifecycle operation.
type Action string

const (
	ActionAddNew       Action = "participant.add_new"
	ActionAddPermanent Action = "participant.add_permanent"
	ActionUpdate       Action = "participant.update"
	ActionDeleteNew    Action = "participant.delete_new"
	ActionDeletePerm   Action = "participant.soft_delete"
	ActionUndoDelete   Action = "participant.undelete"
	ActionApprove      Action = "participant.approve"
	ActionDecline      Action = "participant.decline"
	ActionMove         Action = "participant.move"
	ActionStatsSeeded  Action = "statistics.seeded"
)

// Event is one audit trail entry.
type Event struct {
	Timestamp  time.Time `json:"timestamp"`
	Actor      string    `json:"actor"`
	Action     Action    `json:"action"`
	Collection string    `json:"collection,omitempty"`
	RecordID   string    `json:"recordId,omitempty"`
	RequestID  string    `json:"requestId,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}

// Store persists audit events. Append-only.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByRecord(ctx context.Context, recordID string) ([]Event, error)
}

// Sink receives a copy of every event for out-of-process delivery (e.g.
// Kafka). Sinks are best-effort: failures are logged, never propagated to
// the operation that emitted the event.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}
