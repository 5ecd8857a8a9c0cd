// Package docstore defines the document store contract the rest of rosterd is
// written against: point CRUD per collection, atomic multi-document batches,
// serializable transactions with retry-on-conflict, and change subscriptions
// that deliver an initial snapshot followed by ordered incremental diffs.
//
// The contract is interface-driven so the in-memory engine, tests, and any
// future external backend can be swapped without rewiring business code.
package docstore

import (
	"context"
	"time"
)

// Document is the stored field set. Values are plain Go scalars, []any, or
// nested map[string]any; the store deep-copies on the way in and out, so
// callers never alias engine state.
type Document map[string]any

// Snapshot is a point-in-time view of one document.
type Snapshot struct {
	ID         string
	Data       Document
	CreateTime time.Time
	UpdateTime time.Time
	// Version increases on every committed write to the document. Two
	// snapshots of the same document are identical iff versions match.
	Version uint64
}

// Update names one field mutation inside an Update call. Value may be a plain
// value (merge) or one of the Increment/ArrayUnion/ServerTimestamp sentinels.
type Update struct {
	Field string
	Value any
}

type incrementValue struct{ Delta int64 }

type arrayUnionValue struct{ Elems []any }

type serverTimestampValue struct{}

// Increment returns a sentinel that atomically adds delta to a numeric field,
// treating a missing field as zero.
func Increment(delta int64) any { return incrementValue{Delta: delta} }

// ArrayUnion returns a sentinel that appends elems to an array field. Unlike
// a set union over scalars, appended elements are kept in arrival order;
// history entries rely on that.
func ArrayUnion(elems ...any) any { return arrayUnionValue{Elems: elems} }

// ServerTimestamp is a sentinel resolved to the engine's commit time.
var ServerTimestamp any = serverTimestampValue{}

// AsIncrement reports whether v is an Increment sentinel, returning its
// delta. Engines use these matchers when resolving writes.
func AsIncrement(v any) (int64, bool) {
	s, ok := v.(incrementValue)
	return s.Delta, ok
}

// AsArrayUnion reports whether v is an ArrayUnion sentinel, returning its
// elements.
func AsArrayUnion(v any) ([]any, bool) {
	s, ok := v.(arrayUnionValue)
	return s.Elems, ok
}

// IsServerTimestamp reports whether v is the ServerTimestamp sentinel.
func IsServerTimestamp(v any) bool {
	_, ok := v.(serverTimestampValue)
	return ok
}

// Operator is a filter comparison.
type Operator string

const (
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
)

// Filter restricts a query to documents whose field compares true against
// Value.
type Filter struct {
	Field string
	Op    Operator
	Value any
}

// Order sorts a query result by one field. Documents missing the field sort
// first ascending.
type Order struct {
	Field string
	Desc  bool
}

// Query describes a filtered, sorted, limited view over one collection.
// StartAfter, when set, must hold one cursor value per Order entry; documents
// at or before the cursor position are excluded, which is how paging advances
// the window.
type Query struct {
	Filters    []Filter
	Orders     []Order
	Limit      int
	StartAfter []any
}

// ChangeKind classifies one incremental change event.
type ChangeKind int

const (
	ChangeAdded ChangeKind = iota
	ChangeModified
	ChangeRemoved
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeModified:
		return "modified"
	case ChangeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Change is one event in a query subscription stream. Indices are positions
// within the visible (post-filter, post-sort, within-limit) result at the
// moment the event applies: a consumer applying changes in arrival order
// reconstructs the exact current list. OldIndex is -1 for added documents,
// NewIndex is -1 for removed ones. A position move arrives as ChangeModified
// with NewIndex != OldIndex.
type Change struct {
	Kind     ChangeKind
	Doc      Snapshot
	OldIndex int
	NewIndex int
}

// CancelFunc tears down a subscription. It is the only cancellation
// mechanism; once it returns, no further callbacks are observable, including
// events already in flight at the moment of the call.
type CancelFunc func()

// Batch accumulates writes across collections and commits them as one atomic
// unit: either every staged operation applies or none does. Batches offer no
// read consistency; use RunTransaction when a write depends on a read.
type Batch interface {
	// Create stages a new document and returns the id it will commit under.
	Create(collection string, doc Document) string
	// Set stages a full overwrite, creating the document if absent.
	Set(collection, id string, doc Document)
	// Update stages field mutations; commit fails with a not_found error if
	// the document is absent.
	Update(collection, id string, updates ...Update)
	// Delete stages a hard delete; commit fails with a not_found error if
	// the document is absent.
	Delete(collection, id string)
	// Commit applies every staged operation atomically.
	Commit(ctx context.Context) error
}

// Tx is the handle passed to a transaction body. Reads observe a consistent
// state; writes are staged and commit atomically with serializable isolation.
// The body may be re-executed on conflict, so it must be free of side effects
// outside the handle.
type Tx interface {
	Get(collection, id string) (Snapshot, error)
	Create(collection string, doc Document) string
	Set(collection, id string, doc Document)
	Update(collection, id string, updates ...Update)
	Delete(collection, id string)
}

// Store is the document store contract.
type Store interface {
	// Get reads one document. Fails with a not_found code when absent.
	Get(ctx context.Context, collection, id string) (Snapshot, error)
	// Add writes a new document under a store-assigned id.
	Add(ctx context.Context, collection string, doc Document) (string, error)
	// Set overwrites (or creates) one document.
	Set(ctx context.Context, collection, id string, doc Document) error
	// Update applies field mutations to an existing document.
	Update(ctx context.Context, collection, id string, updates ...Update) error
	// Delete removes one document.
	Delete(ctx context.Context, collection, id string) error

	// Batch starts an atomic multi-document write set.
	Batch() Batch
	// RunTransaction executes fn with consistent reads and staged writes,
	// retrying the body on write conflicts until the engine's retry budget
	// is exhausted (then failing with a conflict code).
	RunTransaction(ctx context.Context, fn func(tx Tx) error) error

	// Subscribe watches one document. onNext fires with the current value
	// immediately and after every committed change while the document
	// exists; when it does not exist, onErr fires with a not_found error
	// and the subscription terminates.
	Subscribe(collection, id string, onNext func(Snapshot), onErr func(error)) CancelFunc
	// SubscribeQuery watches a query result set. The initial snapshot
	// arrives as one batch of ChangeAdded events in sort order with indices
	// 0..N-1; each later commit produces one batch of diffs. Delivery is
	// ordered per subscription. An errored subscription is terminated and
	// never resubscribed by the store.
	SubscribeQuery(collection string, q Query, onNext func([]Change), onErr func(error)) CancelFunc

	// Close cancels every live subscription and releases engine resources.
	Close() error
}
