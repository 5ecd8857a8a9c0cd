// Package live builds consumer-facing watch primitives on top of the
// docstore subscription contract: an ordered, paginated list view and a
// single-document watcher, both with explicit stop handles.
package live

import (
	"sync"

	"rosterd/internal/docstore"
)

// Event is one indexed change delivered to a list consumer. Indices address
// the consumer's visible list at the moment the event applies; replaying
// events in arrival order reconstructs the current list. A position move
// arrives as ChangeModified with NewIndex != OldIndex.
type Event struct {
	Kind     docstore.ChangeKind
	Doc      docstore.Snapshot
	OldIndex int
	NewIndex int
}

// ListOptions configure a list view.
type ListOptions struct {
	Collection string
	Filters    []docstore.Filter
	Orders     []docstore.Order
	// PageSize bounds the visible window; NextPage extends it by another
	// PageSize. Zero means unbounded (and NextPage is a no-op).
	PageSize int
}

// List is a live, filtered, sorted, paginated view over one collection. It
// mirrors the consumer's list and guarantees that replaying delivered events
// in order reconstructs the current window, across page advances included.
// Stop and NextPage must not be called from inside the event callback.
type List struct {
	store   docstore.Store
	opts    ListOptions
	onEvent func(Event)
	onErr   func(error)

	mu      sync.Mutex
	current []docstore.Snapshot
	limit   int
	cancel  docstore.CancelFunc
	stopped bool
}

// NewList subscribes and starts delivering events. The first batch announces
// the initial result set as added events with indices 0..N-1 in sort order.
func NewList(store docstore.Store, opts ListOptions, onEvent func(Event), onErr func(error)) *List {
	l := &List{
		store:   store,
		opts:    opts,
		onEvent: onEvent,
		onErr:   onErr,
		limit:   opts.PageSize,
	}
	l.cancel = l.subscribe(l.limit, false)
	return l
}

// subscribe opens the store subscription for the given window size. A
// resuming subscription's first batch is the store's full initial snapshot;
// it gets reconciled against the mirror so the consumer only sees the delta.
func (l *List) subscribe(limit int, resuming bool) docstore.CancelFunc {
	first := resuming
	return l.store.SubscribeQuery(l.opts.Collection, docstore.Query{
		Filters: l.opts.Filters,
		Orders:  l.opts.Orders,
		Limit:   limit,
	}, func(changes []docstore.Change) {
		reconcile := first
		first = false
		l.deliver(changes, reconcile)
	}, func(err error) {
		l.onErr(err)
	})
}

func (l *List) deliver(changes []docstore.Change, reconcile bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	if reconcile {
		// The batch is an initial snapshot: added events carrying the new
		// window in order. Diff it against what the consumer already has so
		// documents that changed, moved, or vanished while the windows were
		// swapped surface correctly and unchanged ones stay silent.
		target := make([]docstore.Snapshot, 0, len(changes))
		for _, ch := range changes {
			if ch.Kind == docstore.ChangeAdded {
				target = append(target, ch.Doc)
			}
		}
		changes = docstore.Diff(l.current, target)
	}
	for _, ch := range changes {
		l.current = docstore.ApplyChange(l.current, ch)
		l.onEvent(Event{Kind: ch.Kind, Doc: ch.Doc, OldIndex: ch.OldIndex, NewIndex: ch.NewIndex})
	}
}

// Len reports the size of the currently mirrored window.
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.current)
}

// NextPage widens the window by another page and resubscribes. Documents the
// consumer already holds are not re-announced unless they changed while the
// windows were being swapped; advancement through the sorted result set is
// deterministic and gap-free because the new window is a superset of the old
// one's position range.
func (l *List) NextPage() {
	l.mu.Lock()
	if l.stopped || l.opts.PageSize <= 0 {
		l.mu.Unlock()
		return
	}
	old := l.cancel
	l.limit += l.opts.PageSize
	limit := l.limit
	l.mu.Unlock()

	// Tear down the old subscription before opening the wider one so the
	// two never interleave events.
	old()
	cancel := l.subscribe(limit, true)

	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		cancel()
		return
	}
	l.cancel = cancel
	l.mu.Unlock()
}

// Stop cancels the subscription. No events are delivered after it returns.
func (l *List) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	cancel := l.cancel
	l.mu.Unlock()
	cancel()
}
