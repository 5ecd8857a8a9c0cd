// Package participant defines the lifecycle record model: the shape of a
// participant document, its status state machine labels, and the embedded
// append-only audit history.
package participant

import (
	"time"

	"rosterd/internal/docstore"
)

// Status labels a participant's lifecycle state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDeclined Status = "declined"
	StatusDeleted  Status = "deleted"
)

// Collection names. Intake records live in CollectionNew until moved; roster
// records in CollectionPermanent are never hard-deleted.
const (
	CollectionNew       = "new"
	CollectionPermanent = "permanent"
	CollectionStats     = "statistics"

	// StatsDocID is the id of the statistics singleton.
	StatsDocID = "aggregate"
)

// Reserved document field names. Everything else in a participant document
// is caller-supplied and opaque to this layer.
const (
	FieldStatus    = "status"
	FieldCreatedAt = "createdAt"
	FieldHistory   = "history"

	// FieldNumOfNew is the denormalized count of live intake records on
	// the statistics singleton. It changes by exactly ±1 in the same
	// atomic unit as the record mutation that changes the count.
	FieldNumOfNew = "numOfNew"
)

// History event descriptions, one per lifecycle transition.
const (
	EventReceived  = "received"
	EventUpdated   = "updated"
	EventMoved     = "moved to permanent"
	EventApproved  = "approved"
	EventDeclined  = "declined"
	EventDeleted   = "deleted"
	EventUndeleted = "undeleted"
)

// HistoryEntry is one embedded audit record. Entries are append-only: never
// removed, never reordered.
type HistoryEntry struct {
	Actor     string
	Event     string
	Timestamp time.Time
}

// Doc renders the entry as a stored map.
func (h HistoryEntry) Doc() map[string]any {
	return map[string]any{
		"actor":     h.Actor,
		"event":     h.Event,
		"timestamp": h.Timestamp,
	}
}

// Participant is the decoded view of a participant document.
type Participant struct {
	ID        string
	Status    Status
	CreatedAt time.Time
	History   []HistoryEntry
	// Fields holds the caller-supplied domain fields (name, contact info,
	// and so on).
	Fields map[string]any
}

// Statistics is the decoded statistics singleton.
type Statistics struct {
	NumOfNew int64
}

// FromSnapshot decodes a stored document into a Participant. Unknown or
// malformed reserved fields degrade to zero values rather than failing: the
// store owns the schema and this layer stays permissive on read.
func FromSnapshot(snap docstore.Snapshot) Participant {
	p := Participant{
		ID:     snap.ID,
		Fields: make(map[string]any),
	}
	for k, v := range snap.Data {
		switch k {
		case FieldStatus:
			if s, ok := v.(string); ok {
				p.Status = Status(s)
			}
		case FieldCreatedAt:
			if t, ok := v.(time.Time); ok {
				p.CreatedAt = t
			}
		case FieldHistory:
			p.History = decodeHistory(v)
		default:
			p.Fields[k] = v
		}
	}
	return p
}

func decodeHistory(v any) []HistoryEntry {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]HistoryEntry, 0, len(raw))
	for _, e := range raw {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		entry := HistoryEntry{}
		if a, ok := m["actor"].(string); ok {
			entry.Actor = a
		}
		if ev, ok := m["event"].(string); ok {
			entry.Event = ev
		}
		if ts, ok := m["timestamp"].(time.Time); ok {
			entry.Timestamp = ts
		}
		out = append(out, entry)
	}
	return out
}

// StatsFromSnapshot decodes the statistics singleton.
func StatsFromSnapshot(snap docstore.Snapshot) Statistics {
	s := Statistics{}
	switch n := snap.Data[FieldNumOfNew].(type) {
	case int:
		s.NumOfNew = int64(n)
	case int64:
		s.NumOfNew = n
	case float64:
		s.NumOfNew = int64(n)
	}
	return s
}
