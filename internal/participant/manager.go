package participant

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"rosterd/internal/audit"
	"rosterd/internal/docstore"
	"rosterd/internal/participant/metrics"
	"rosterd/pkg/errcode"
	"rosterd/pkg/requestcontext"
)

// Manager orchestrates participant lifecycle transitions. Every mutation is
// committed as one atomic unit together with its embedded history entry and,
// where the intake count changes, the statistics counter adjustment. One
// Manager per process owns the store handle.
type Manager struct {
	store  docstore.Store
	audit  *audit.Publisher
	log    zerolog.Logger
	met    *metrics.Metrics
	strict bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithAudit attaches an audit publisher. Emission is best-effort and never
// fails the operation that triggered it.
func WithAudit(pub *audit.Publisher) ManagerOption {
	return func(m *Manager) { m.audit = pub }
}

// WithLogger sets the manager logger.
func WithLogger(log zerolog.Logger) ManagerOption {
	return func(m *Manager) { m.log = log }
}

// WithMetrics attaches operation metrics.
func WithMetrics(met *metrics.Metrics) ManagerOption {
	return func(m *Manager) { m.met = met }
}

// WithStrictTransitions makes approve, decline, soft delete, and undelete
// verify the current status inside a transaction, failing with an
// invalid_state code on an illegal transition. Off by default: the lenient
// mode applies the transition unconditionally.
func WithStrictTransitions() ManagerOption {
	return func(m *Manager) { m.strict = true }
}

// NewManager builds a Manager and ensures the statistics singleton exists.
func NewManager(ctx context.Context, store docstore.Store, opts ...ManagerOption) (*Manager, error) {
	m := &Manager{store: store, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(m)
	}
	seeded := false
	err := store.RunTransaction(ctx, func(tx docstore.Tx) error {
		seeded = false
		_, err := tx.Get(CollectionStats, StatsDocID)
		if err == nil {
			return nil
		}
		if !docstore.IsNotFound(err) {
			return err
		}
		tx.Set(CollectionStats, StatsDocID, docstore.Document{FieldNumOfNew: int64(0)})
		seeded = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ensure statistics singleton: %w", err)
	}
	if seeded {
		m.emit(ctx, audit.ActionStatsSeeded, CollectionStats, StatsDocID, "")
	}
	return m, nil
}

// AddNew creates an intake record with status pending and increments the
// intake counter in the same atomic unit.
func (m *Manager) AddNew(ctx context.Context, fields map[string]any) (string, error) {
	doc, err := m.newDoc(ctx, fields, EventReceived)
	if err != nil {
		m.met.ObserveOp("add_new", err)
		return "", err
	}
	b := m.store.Batch()
	id := b.Create(CollectionNew, doc)
	b.Update(CollectionStats, StatsDocID,
		docstore.Update{Field: FieldNumOfNew, Value: docstore.Increment(1)})
	err = b.Commit(ctx)
	m.met.ObserveOp("add_new", err)
	if err != nil {
		return "", err
	}
	m.emit(ctx, audit.ActionAddNew, CollectionNew, id, "")
	return id, nil
}

// AddPermanent creates a roster record directly, bypassing intake. The
// counter tracks intake records only and is not touched.
func (m *Manager) AddPermanent(ctx context.Context, fields map[string]any) (string, error) {
	doc, err := m.newDoc(ctx, fields, EventReceived)
	if err != nil {
		m.met.ObserveOp("add_permanent", err)
		return "", err
	}
	id, err := m.store.Add(ctx, CollectionPermanent, doc)
	m.met.ObserveOp("add_permanent", err)
	if err != nil {
		return "", err
	}
	m.emit(ctx, audit.ActionAddPermanent, CollectionPermanent, id, "")
	return id, nil
}

// UpdateNew merges caller fields into an intake record and appends an
// "updated" history entry.
func (m *Manager) UpdateNew(ctx context.Context, id string, fields map[string]any) error {
	return m.update(ctx, CollectionNew, id, fields)
}

// UpdatePermanent merges caller fields into a roster record and appends an
// "updated" history entry.
func (m *Manager) UpdatePermanent(ctx context.Context, id string, fields map[string]any) error {
	return m.update(ctx, CollectionPermanent, id, fields)
}

func (m *Manager) update(ctx context.Context, collection, id string, fields map[string]any) error {
	updates := make([]docstore.Update, 0, len(fields)+1)
	for k, v := range fields {
		if reservedField(k) {
			err := errcode.Newf(errcode.CodeInvalidArgument, "field %q is reserved", k)
			m.met.ObserveOp("update", err)
			return err
		}
		updates = append(updates, docstore.Update{Field: k, Value: v})
	}
	updates = append(updates, m.historyUpdate(ctx, EventUpdated))
	err := m.store.Update(ctx, collection, id, updates...)
	m.met.ObserveOp("update", err)
	if err != nil {
		return err
	}
	m.emit(ctx, audit.ActionUpdate, collection, id, "")
	return nil
}

// DeleteNew hard-deletes an intake record and decrements the counter in the
// same atomic unit.
func (m *Manager) DeleteNew(ctx context.Context, id string) error {
	b := m.store.Batch()
	b.Delete(CollectionNew, id)
	b.Update(CollectionStats, StatsDocID,
		docstore.Update{Field: FieldNumOfNew, Value: docstore.Increment(-1)})
	err := b.Commit(ctx)
	m.met.ObserveOp("delete_new", err)
	if err != nil {
		return err
	}
	m.emit(ctx, audit.ActionDeleteNew, CollectionNew, id, "")
	return nil
}

// DeletePermanent soft-deletes a roster record: status becomes deleted, the
// document and its history are retained.
func (m *Manager) DeletePermanent(ctx context.Context, id string) error {
	return m.transition(ctx, id, "soft_delete", audit.ActionDeletePerm,
		StatusDeleted, EventDeleted, StatusPending, StatusApproved, StatusDeclined)
}

// UndoDeletePermanent restores a soft-deleted roster record to pending.
func (m *Manager) UndoDeletePermanent(ctx context.Context, id string) error {
	return m.transition(ctx, id, "undelete", audit.ActionUndoDelete,
		StatusPending, EventUndeleted, StatusDeleted)
}

// ApprovePending marks a roster record approved.
func (m *Manager) ApprovePending(ctx context.Context, id string) error {
	return m.transition(ctx, id, "approve", audit.ActionApprove,
		StatusApproved, EventApproved, StatusPending)
}

// DeclinePending marks a roster record declined.
func (m *Manager) DeclinePending(ctx context.Context, id string) error {
	return m.transition(ctx, id, "decline", audit.ActionDecline,
		StatusDeclined, EventDeclined, StatusPending)
}

// transition applies a status change plus history entry on a permanent
// record. In strict mode the current status must be one of from; lenient
// mode applies the change unconditionally.
func (m *Manager) transition(ctx context.Context, id, op string, action audit.Action,
	to Status, event string, from ...Status) error {
	updates := []docstore.Update{
		{Field: FieldStatus, Value: string(to)},
		m.historyUpdate(ctx, event),
	}
	var err error
	if m.strict {
		err = m.store.RunTransaction(ctx, func(tx docstore.Tx) error {
			snap, err := tx.Get(CollectionPermanent, id)
			if err != nil {
				return err
			}
			current := FromSnapshot(snap).Status
			if !statusIn(current, from) {
				return errcode.Newf(errcode.CodeInvalidState,
					"cannot %s record in status %q", op, current)
			}
			tx.Update(CollectionPermanent, id, updates...)
			return nil
		})
	} else {
		err = m.store.Update(ctx, CollectionPermanent, id, updates...)
	}
	m.met.ObserveOp(op, err)
	if err != nil {
		return err
	}
	m.emit(ctx, action, CollectionPermanent, id, "")
	return nil
}

// MoveToPermanent atomically moves an intake record to the roster: the
// record is recreated under a fresh id with status reset to pending, the
// original is hard-deleted, and the counter is decremented. Readers never
// observe the record in both collections or in neither.
func (m *Manager) MoveToPermanent(ctx context.Context, id string) (string, error) {
	start := time.Now()
	var newID string
	err := m.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		snap, err := tx.Get(CollectionNew, id)
		if err != nil {
			return err
		}
		doc := make(docstore.Document, len(snap.Data))
		for k, v := range snap.Data {
			doc[k] = v
		}
		doc[FieldStatus] = string(StatusPending)
		doc[FieldHistory] = appendHistory(snap.Data[FieldHistory], m.historyEntry(ctx, EventMoved))
		newID = tx.Create(CollectionPermanent, doc)
		tx.Delete(CollectionNew, id)
		tx.Update(CollectionStats, StatsDocID,
			docstore.Update{Field: FieldNumOfNew, Value: docstore.Increment(-1)})
		return nil
	})
	m.met.ObserveOp("move", err)
	if err != nil {
		return "", err
	}
	m.met.ObserveMove(start)
	m.emit(ctx, audit.ActionMove, CollectionPermanent, newID, "from "+CollectionNew+"/"+id)
	return newID, nil
}

// GetNew reads one intake record.
func (m *Manager) GetNew(ctx context.Context, id string) (Participant, error) {
	snap, err := m.store.Get(ctx, CollectionNew, id)
	if err != nil {
		return Participant{}, err
	}
	return FromSnapshot(snap), nil
}

// GetPermanent reads one roster record.
func (m *Manager) GetPermanent(ctx context.Context, id string) (Participant, error) {
	snap, err := m.store.Get(ctx, CollectionPermanent, id)
	if err != nil {
		return Participant{}, err
	}
	return FromSnapshot(snap), nil
}

// Statistics reads the aggregate counters.
func (m *Manager) Statistics(ctx context.Context) (Statistics, error) {
	snap, err := m.store.Get(ctx, CollectionStats, StatsDocID)
	if err != nil {
		return Statistics{}, err
	}
	stats := StatsFromSnapshot(snap)
	m.met.SetIntakeRecords(stats.NumOfNew)
	return stats, nil
}

// WatchStatistics streams the statistics singleton: the current value first,
// then every committed change.
func (m *Manager) WatchStatistics(onNext func(Statistics), onErr func(error)) docstore.CancelFunc {
	return m.store.Subscribe(CollectionStats, StatsDocID, func(snap docstore.Snapshot) {
		stats := StatsFromSnapshot(snap)
		m.met.SetIntakeRecords(stats.NumOfNew)
		onNext(stats)
	}, onErr)
}

// WatchNew streams one intake record.
func (m *Manager) WatchNew(id string, onNext func(Participant), onErr func(error)) docstore.CancelFunc {
	return m.watch(CollectionNew, id, onNext, onErr)
}

// WatchPermanent streams one roster record.
func (m *Manager) WatchPermanent(id string, onNext func(Participant), onErr func(error)) docstore.CancelFunc {
	return m.watch(CollectionPermanent, id, onNext, onErr)
}

func (m *Manager) watch(collection, id string, onNext func(Participant), onErr func(error)) docstore.CancelFunc {
	return m.store.Subscribe(collection, id, func(snap docstore.Snapshot) {
		onNext(FromSnapshot(snap))
	}, onErr)
}

// History returns the out-of-band audit trail for a record, when an audit
// publisher is attached.
func (m *Manager) History(ctx context.Context, recordID string) ([]audit.Event, error) {
	if m.audit == nil {
		return nil, nil
	}
	return m.audit.List(ctx, recordID)
}

func (m *Manager) newDoc(ctx context.Context, fields map[string]any, event string) (docstore.Document, error) {
	doc := make(docstore.Document, len(fields)+3)
	for k, v := range fields {
		if reservedField(k) {
			return nil, errcode.Newf(errcode.CodeInvalidArgument, "field %q is reserved", k)
		}
		doc[k] = v
	}
	doc[FieldStatus] = string(StatusPending)
	doc[FieldCreatedAt] = docstore.ServerTimestamp
	doc[FieldHistory] = []any{m.historyEntry(ctx, event).Doc()}
	return doc, nil
}

func (m *Manager) historyEntry(ctx context.Context, event string) HistoryEntry {
	return HistoryEntry{
		Actor:     requestcontext.Actor(ctx),
		Event:     event,
		Timestamp: requestcontext.Now(ctx).UTC(),
	}
}

func (m *Manager) historyUpdate(ctx context.Context, event string) docstore.Update {
	return docstore.Update{
		Field: FieldHistory,
		Value: docstore.ArrayUnion(m.historyEntry(ctx, event).Doc()),
	}
}

func (m *Manager) emit(ctx context.Context, action audit.Action, collection, id, detail string) {
	if m.audit == nil {
		return
	}
	err := m.audit.Emit(ctx, audit.Event{
		Timestamp:  requestcontext.Now(ctx).UTC(),
		Actor:      requestcontext.Actor(ctx),
		Action:     action,
		Collection: collection,
		RecordID:   id,
		RequestID:  requestcontext.RequestID(ctx),
		Detail:     detail,
	})
	if err != nil {
		m.log.Warn().Err(err).Str("action", string(action)).Msg("audit emit failed")
	}
}

func appendHistory(existing any, entry HistoryEntry) []any {
	raw, _ := existing.([]any)
	out := make([]any, 0, len(raw)+1)
	out = append(out, raw...)
	out = append(out, entry.Doc())
	return out
}

func reservedField(name string) bool {
	switch name {
	case FieldStatus, FieldCreatedAt, FieldHistory:
		return true
	}
	return false
}

func statusIn(s Status, set []Status) bool {
	for _, candidate := range set {
		if s == candidate {
			return true
		}
	}
	return false
}
