// Package memory implements the docstore contract with an in-process engine.
//
// Commits are serialized by a single engine lock, so transactions are
// trivially serializable and the retry-on-conflict contract never has to
// re-execute a body here; external backends are free to. Committed entries
// are immutable: every write installs fresh entries into copied collection
// maps, and reads hand out deep copies, so no caller ever aliases engine
// state.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"rosterd/internal/docstore"
)

// entry is one committed document. Never mutated after commit.
type entry struct {
	data       docstore.Document
	createTime time.Time
	updateTime time.Time
	version    uint64
}

func (e *entry) snapshot(id string) docstore.Snapshot {
	return docstore.Snapshot{
		ID:         id,
		Data:       deepCopyDocument(e.data),
		CreateTime: e.createTime,
		UpdateTime: e.updateTime,
		Version:    e.version,
	}
}

// CommitEvent describes one document touched by a committed write set. It
// feeds the optional commit hook (e.g. the Redis changefeed mirror).
type CommitEvent struct {
	Collection string
	ID         string
	Kind       docstore.ChangeKind
	Doc        docstore.Document
}

// CommitHook observes committed write sets. Batches are queued under the
// engine lock and delivered outside it, one at a time, in commit order; a
// slow hook delays later deliveries but never blocks commits already queued
// behind it from being applied.
type CommitHook func(events []CommitEvent)

// Option configures a Store.
type Option func(*Store)

// WithCommitHook registers hook for every committed write set.
func WithCommitHook(hook CommitHook) Option {
	return func(s *Store) { s.hook = hook }
}

// WithClock overrides the engine clock; tests pin server timestamps with it.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.nowFn = now }
}

// Store is the in-memory docstore engine.
type Store struct {
	mu          sync.Mutex
	collections map[string]map[string]*entry
	seq         uint64
	closed      bool

	nowFn func() time.Time
	hook  CommitHook
	// hookQueue holds committed batches awaiting hook delivery; hookBusy
	// marks a goroutine currently draining, so delivery stays serialized.
	hookQueue [][]CommitEvent
	hookBusy  bool

	nextSubID uint64
	docSubs   map[uint64]*docSub
	querySubs map[uint64]*querySub
}

// New builds an empty engine.
func New(opts ...Option) *Store {
	s := &Store{
		collections: make(map[string]map[string]*entry),
		nowFn:       func() time.Time { return time.Now().UTC() },
		docSubs:     make(map[uint64]*docSub),
		querySubs:   make(map[uint64]*querySub),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) checkCtx(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return docstore.ErrUnavailable(err)
	}
	return nil
}

// Get implements docstore.Store.
func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Snapshot, error) {
	if err := s.checkCtx(ctx); err != nil {
		return docstore.Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.collections[collection][id]
	if !ok {
		return docstore.Snapshot{}, docstore.ErrNotFound(collection, id)
	}
	return e.snapshot(id), nil
}

// Add implements docstore.Store.
func (s *Store) Add(ctx context.Context, collection string, doc docstore.Document) (string, error) {
	b := s.Batch()
	id := b.Create(collection, doc)
	if err := b.Commit(ctx); err != nil {
		return "", err
	}
	return id, nil
}

// Set implements docstore.Store.
func (s *Store) Set(ctx context.Context, collection, id string, doc docstore.Document) error {
	b := s.Batch()
	b.Set(collection, id, doc)
	return b.Commit(ctx)
}

// Update implements docstore.Store.
func (s *Store) Update(ctx context.Context, collection, id string, updates ...docstore.Update) error {
	b := s.Batch()
	b.Update(collection, id, updates...)
	return b.Commit(ctx)
}

// Delete implements docstore.Store.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	b := s.Batch()
	b.Delete(collection, id)
	return b.Commit(ctx)
}

// Close implements docstore.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	docSubs := make([]*docSub, 0, len(s.docSubs))
	for _, sub := range s.docSubs {
		docSubs = append(docSubs, sub)
	}
	querySubs := make([]*querySub, 0, len(s.querySubs))
	for _, sub := range s.querySubs {
		querySubs = append(querySubs, sub)
	}
	s.docSubs = map[uint64]*docSub{}
	s.querySubs = map[uint64]*querySub{}
	s.mu.Unlock()

	for _, sub := range docSubs {
		sub.notifier.stop()
	}
	for _, sub := range querySubs {
		sub.notifier.stop()
	}
	return nil
}

type opKind int

const (
	opCreate opKind = iota
	opSet
	opUpdate
	opDelete
)

type stagedOp struct {
	kind       opKind
	collection string
	id         string
	doc        docstore.Document
	updates    []docstore.Update
}

type batch struct {
	store *Store
	ops   []stagedOp
	done  bool
}

// Batch implements docstore.Store.
func (s *Store) Batch() docstore.Batch {
	return &batch{store: s}
}

func (b *batch) Create(collection string, doc docstore.Document) string {
	id := uuid.NewString()
	b.ops = append(b.ops, stagedOp{kind: opCreate, collection: collection, id: id, doc: deepCopyDocument(doc)})
	return id
}

func (b *batch) Set(collection, id string, doc docstore.Document) {
	b.ops = append(b.ops, stagedOp{kind: opSet, collection: collection, id: id, doc: deepCopyDocument(doc)})
}

func (b *batch) Update(collection, id string, updates ...docstore.Update) {
	b.ops = append(b.ops, stagedOp{kind: opUpdate, collection: collection, id: id, updates: updates})
}

func (b *batch) Delete(collection, id string) {
	b.ops = append(b.ops, stagedOp{kind: opDelete, collection: collection, id: id})
}

func (b *batch) Commit(ctx context.Context) error {
	if b.done {
		return docstore.ErrConflict("batch already committed")
	}
	b.done = true
	if err := b.store.checkCtx(ctx); err != nil {
		return err
	}

	b.store.mu.Lock()
	err := b.store.applyLocked(b.ops)
	b.store.mu.Unlock()
	if err != nil {
		return err
	}
	b.store.drainHooks()
	return nil
}

// memTx stages transaction writes; reads overlay staged state on committed
// state so a body observes its own writes.
type memTx struct {
	store *Store
	ops   []stagedOp
}

// Get replays the transaction's staged ops for the document over committed
// state, so a body reads exactly what its commit will install. Sentinels
// resolve against the engine clock; staged writes read back with Version 0,
// the real version is assigned at commit.
func (t *memTx) Get(collection, id string) (docstore.Snapshot, error) {
	var snap docstore.Snapshot
	found := false
	if e, ok := t.store.collections[collection][id]; ok {
		snap = e.snapshot(id)
		found = true
	}

	now := t.store.nowFn()
	for _, op := range t.ops {
		if op.collection != collection || op.id != id {
			continue
		}
		switch op.kind {
		case opCreate, opSet:
			created := now
			if found {
				created = snap.CreateTime
			}
			snap = docstore.Snapshot{
				ID:         id,
				Data:       resolveDocument(op.doc, now),
				CreateTime: created,
				UpdateTime: now,
			}
			found = true
		case opUpdate:
			if !found {
				return docstore.Snapshot{}, docstore.ErrNotFound(collection, id)
			}
			data, err := applyUpdates(snap.Data, op.updates, now)
			if err != nil {
				return docstore.Snapshot{}, err
			}
			snap.Data = data
			snap.UpdateTime = now
			snap.Version = 0
		case opDelete:
			found = false
		}
	}
	if !found {
		return docstore.Snapshot{}, docstore.ErrNotFound(collection, id)
	}
	return snap, nil
}

func (t *memTx) Create(collection string, doc docstore.Document) string {
	id := uuid.NewString()
	t.ops = append(t.ops, stagedOp{kind: opCreate, collection: collection, id: id, doc: deepCopyDocument(doc)})
	return id
}

func (t *memTx) Set(collection, id string, doc docstore.Document) {
	t.ops = append(t.ops, stagedOp{kind: opSet, collection: collection, id: id, doc: deepCopyDocument(doc)})
}

func (t *memTx) Update(collection, id string, updates ...docstore.Update) {
	t.ops = append(t.ops, stagedOp{kind: opUpdate, collection: collection, id: id, updates: updates})
}

func (t *memTx) Delete(collection, id string) {
	t.ops = append(t.ops, stagedOp{kind: opDelete, collection: collection, id: id})
}

// RunTransaction implements docstore.Store. The body runs under the engine
// lock, so reads are consistent and commits are serializable without a retry
// loop; the body must still be side-effect free per the contract.
func (s *Store) RunTransaction(ctx context.Context, fn func(tx docstore.Tx) error) error {
	if err := s.checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return docstore.ErrUnavailable(errClosed)
	}
	tx := &memTx{store: s}
	if err := fn(tx); err != nil {
		s.mu.Unlock()
		return err
	}
	err := s.applyLocked(tx.ops)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.drainHooks()
	return nil
}

// applyLocked validates and applies a write set, then refreshes
// subscriptions and queues the hook batch. Caller holds s.mu. On validation
// failure nothing is applied.
func (s *Store) applyLocked(ops []stagedOp) error {
	if s.closed {
		return docstore.ErrUnavailable(errClosed)
	}
	if len(ops) == 0 {
		return nil
	}

	now := s.nowFn()
	version := s.seq + 1

	// Stage changes on copies; swap in only when every op validated.
	staged := make(map[string]map[string]*entry)
	colCopy := func(name string) map[string]*entry {
		if c, ok := staged[name]; ok {
			return c
		}
		c := make(map[string]*entry, len(s.collections[name])+1)
		for id, e := range s.collections[name] {
			c[id] = e
		}
		staged[name] = c
		return c
	}

	events := make([]CommitEvent, 0, len(ops))
	for _, op := range ops {
		col := colCopy(op.collection)
		switch op.kind {
		case opCreate, opSet:
			prev, exists := col[op.id]
			e := &entry{
				data:       resolveDocument(op.doc, now),
				createTime: now,
				updateTime: now,
				version:    version,
			}
			kind := docstore.ChangeAdded
			if exists {
				e.createTime = prev.createTime
				kind = docstore.ChangeModified
			}
			col[op.id] = e
			events = append(events, CommitEvent{Collection: op.collection, ID: op.id, Kind: kind, Doc: deepCopyDocument(e.data)})
		case opUpdate:
			prev, exists := col[op.id]
			if !exists {
				return docstore.ErrNotFound(op.collection, op.id)
			}
			data, err := applyUpdates(prev.data, op.updates, now)
			if err != nil {
				return err
			}
			col[op.id] = &entry{
				data:       data,
				createTime: prev.createTime,
				updateTime: now,
				version:    version,
			}
			events = append(events, CommitEvent{Collection: op.collection, ID: op.id, Kind: docstore.ChangeModified, Doc: deepCopyDocument(data)})
		case opDelete:
			if _, exists := col[op.id]; !exists {
				return docstore.ErrNotFound(op.collection, op.id)
			}
			delete(col, op.id)
			events = append(events, CommitEvent{Collection: op.collection, ID: op.id, Kind: docstore.ChangeRemoved})
		}
	}

	s.seq = version
	for name, col := range staged {
		s.collections[name] = col
	}
	s.notifyLocked(staged)
	if s.hook != nil {
		s.hookQueue = append(s.hookQueue, events)
	}
	return nil
}

// drainHooks delivers queued batches to the hook outside the engine lock.
// The busy flag keeps a single drainer at a time, so concurrent committers
// cannot reorder delivery; whichever goroutine holds the flag also picks up
// batches queued while it ran.
func (s *Store) drainHooks() {
	for {
		s.mu.Lock()
		if s.hookBusy || len(s.hookQueue) == 0 {
			s.mu.Unlock()
			return
		}
		s.hookBusy = true
		batch := s.hookQueue[0]
		s.hookQueue = s.hookQueue[1:]
		s.mu.Unlock()

		s.hook(batch)

		s.mu.Lock()
		s.hookBusy = false
		s.mu.Unlock()
	}
}
