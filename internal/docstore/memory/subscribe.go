package memory

import (
	"sync"

	"rosterd/internal/docstore"
)

// notifier serializes callback delivery for one subscription. Events are
// queued under the engine lock and drained by a dedicated goroutine, so a
// slow consumer never blocks commits and callbacks always arrive in commit
// order. stop drops anything undelivered and waits for the drain goroutine,
// which is what guarantees "no events after cancel returns".
//
// The cancel handle must not be invoked from inside the subscription's own
// callback; it would wait on itself.
type notifier struct {
	mu    sync.Mutex
	cond  *sync.Cond
	queue []func()
	// final marks the queue's last element as terminal (subscription errored).
	final   bool
	stopped bool
	done    chan struct{}
}

func newNotifier() *notifier {
	n := &notifier{done: make(chan struct{})}
	n.cond = sync.NewCond(&n.mu)
	go n.run()
	return n
}

func (n *notifier) enqueue(fn func()) {
	n.mu.Lock()
	if !n.stopped && !n.final {
		n.queue = append(n.queue, fn)
		n.cond.Signal()
	}
	n.mu.Unlock()
}

// enqueueFinal queues a terminal callback; the drain goroutine exits after
// running it.
func (n *notifier) enqueueFinal(fn func()) {
	n.mu.Lock()
	if !n.stopped && !n.final {
		n.queue = append(n.queue, fn)
		n.final = true
		n.cond.Signal()
	}
	n.mu.Unlock()
}

func (n *notifier) run() {
	defer close(n.done)
	for {
		n.mu.Lock()
		for len(n.queue) == 0 && !n.stopped {
			n.cond.Wait()
		}
		if n.stopped {
			n.mu.Unlock()
			return
		}
		fn := n.queue[0]
		n.queue = n.queue[1:]
		terminal := n.final && len(n.queue) == 0
		n.mu.Unlock()

		fn()
		if terminal {
			n.mu.Lock()
			n.stopped = true
			n.mu.Unlock()
			return
		}
	}
}

func (n *notifier) stop() {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		<-n.done
		return
	}
	n.stopped = true
	n.queue = nil
	n.cond.Broadcast()
	n.mu.Unlock()
	<-n.done
}

type docSub struct {
	id         uint64
	collection string
	docID      string
	onNext     func(docstore.Snapshot)
	onErr      func(error)
	notifier   *notifier
	// lastVersion is the version last queued for delivery; commits that
	// touch the collection but not this document are skipped against it.
	// Owned by the engine; only touched under s.mu.
	lastVersion uint64
}

type querySub struct {
	id         uint64
	collection string
	query      docstore.Query
	onNext     func([]docstore.Change)
	onErr      func(error)
	notifier   *notifier
	// last is the visible window after the most recent delivered commit.
	// Owned by the engine; only touched under s.mu.
	last []docstore.Snapshot
}

// Subscribe implements docstore.Store.
func (s *Store) Subscribe(collection, id string, onNext func(docstore.Snapshot), onErr func(error)) docstore.CancelFunc {
	sub := &docSub{
		collection: collection,
		docID:      id,
		onNext:     onNext,
		onErr:      onErr,
		notifier:   newNotifier(),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sub.notifier.enqueueFinal(func() { onErr(docstore.ErrUnavailable(errClosed)) })
		return sub.notifier.stop
	}
	s.nextSubID++
	sub.id = s.nextSubID
	if e, ok := s.collections[collection][id]; ok {
		snap := e.snapshot(id)
		sub.lastVersion = e.version
		sub.notifier.enqueue(func() { onNext(snap) })
		s.docSubs[sub.id] = sub
	} else {
		// A missing document is an error, not an empty value; the
		// subscription terminates without registering.
		sub.notifier.enqueueFinal(func() { onErr(docstore.ErrNotFound(collection, id)) })
	}
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.docSubs, sub.id)
		s.mu.Unlock()
		sub.notifier.stop()
	}
}

// SubscribeQuery implements docstore.Store.
func (s *Store) SubscribeQuery(collection string, q docstore.Query, onNext func([]docstore.Change), onErr func(error)) docstore.CancelFunc {
	sub := &querySub{
		collection: collection,
		query:      q,
		onNext:     onNext,
		onErr:      onErr,
		notifier:   newNotifier(),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sub.notifier.enqueueFinal(func() { onErr(docstore.ErrUnavailable(errClosed)) })
		return sub.notifier.stop
	}
	s.nextSubID++
	sub.id = s.nextSubID
	// The initial snapshot is always delivered, even empty, so consumers
	// (and resuming pagers) get a definite sync point.
	sub.last = s.visibleLocked(collection, q)
	initial := make([]docstore.Change, len(sub.last))
	for i, snap := range sub.last {
		initial[i] = docstore.Change{Kind: docstore.ChangeAdded, Doc: snap, OldIndex: -1, NewIndex: i}
	}
	sub.notifier.enqueue(func() { onNext(initial) })
	s.querySubs[sub.id] = sub
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.querySubs, sub.id)
		s.mu.Unlock()
		sub.notifier.stop()
	}
}

// notifyLocked refreshes every subscription on the touched collections.
// Caller holds s.mu; queueing under the lock keeps per-subscription delivery
// in commit order.
func (s *Store) notifyLocked(touched map[string]map[string]*entry) {
	for _, sub := range s.docSubs {
		col, ok := touched[sub.collection]
		if !ok {
			continue
		}
		if e, exists := col[sub.docID]; exists {
			// The staged copy carries the whole collection; only a version
			// bump means this document itself changed.
			if e.version == sub.lastVersion {
				continue
			}
			sub.lastVersion = e.version
			snap := e.snapshot(sub.docID)
			onNext := sub.onNext
			sub.notifier.enqueue(func() { onNext(snap) })
		} else {
			onErr := sub.onErr
			err := docstore.ErrNotFound(sub.collection, sub.docID)
			sub.notifier.enqueueFinal(func() { onErr(err) })
			delete(s.docSubs, sub.id)
		}
	}

	for _, sub := range s.querySubs {
		if _, ok := touched[sub.collection]; !ok {
			continue
		}
		next := s.visibleLocked(sub.collection, sub.query)
		changes := docstore.Diff(sub.last, next)
		sub.last = next
		if len(changes) == 0 {
			continue
		}
		onNext := sub.onNext
		sub.notifier.enqueue(func() { onNext(changes) })
	}
}
