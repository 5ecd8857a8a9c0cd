package participant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rosterd/internal/audit"
	"rosterd/internal/docstore"
	"rosterd/internal/docstore/memory"
	"rosterd/pkg/errcode"
	"rosterd/pkg/requestcontext"
)

func newManager(t *testing.T, opts ...ManagerOption) (*Manager, *memory.Store) {
	t.Helper()
	store := memory.New()
	t.Cleanup(func() { store.Close() })
	m, err := NewManager(context.Background(), store, opts...)
	require.NoError(t, err)
	return m, store
}

func statsCount(t *testing.T, m *Manager) int64 {
	t.Helper()
	stats, err := m.Statistics(context.Background())
	require.NoError(t, err)
	return stats.NumOfNew
}

func TestNewManagerSeedsStatistics(t *testing.T) {
	m, _ := newManager(t)
	assert.Equal(t, int64(0), statsCount(t, m))
}

func TestNewManagerReusesExistingStatistics(t *testing.T) {
	store := memory.New()
	defer store.Close()
	require.NoError(t, store.Set(context.Background(), CollectionStats, StatsDocID,
		docstore.Document{FieldNumOfNew: int64(7)}))

	m, err := NewManager(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, int64(7), statsCount(t, m))
}

func TestAddNewCreatesPendingAndIncrementsCounter(t *testing.T) {
	m, _ := newManager(t)
	ctx := requestcontext.WithActor(context.Background(), "alice")

	id, err := m.AddNew(ctx, map[string]any{"name": "Alice", "email": "alice@example.com"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	p, err := m.GetNew(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, p.Status)
	assert.Equal(t, "Alice", p.Fields["name"])
	assert.False(t, p.CreatedAt.IsZero())
	require.Len(t, p.History, 1)
	assert.Equal(t, EventReceived, p.History[0].Event)
	assert.Equal(t, "alice", p.History[0].Actor)

	assert.Equal(t, int64(1), statsCount(t, m))
}

func TestAddNewRejectsReservedFields(t *testing.T) {
	m, _ := newManager(t)

	_, err := m.AddNew(context.Background(), map[string]any{"status": "approved"})
	require.Error(t, err)
	assert.True(t, errcode.IsCode(err, errcode.CodeInvalidArgument))
	assert.Equal(t, int64(0), statsCount(t, m))
}

func TestAddPermanentDoesNotTouchCounter(t *testing.T) {
	m, _ := newManager(t)

	id, err := m.AddPermanent(context.Background(), map[string]any{"name": "Bob"})
	require.NoError(t, err)

	p, err := m.GetPermanent(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, p.Status)
	assert.Equal(t, int64(0), statsCount(t, m))
}

func TestUpdateNewMergesFieldsAndAppendsHistory(t *testing.T) {
	m, _ := newManager(t)
	ctx := requestcontext.WithActor(context.Background(), "alice")

	id, err := m.AddNew(ctx, map[string]any{"name": "Alice", "city": "Oslo"})
	require.NoError(t, err)

	ctx = requestcontext.WithActor(context.Background(), "bob")
	require.NoError(t, m.UpdateNew(ctx, id, map[string]any{"city": "Bergen", "phone": "123"}))

	p, err := m.GetNew(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Alice", p.Fields["name"])
	assert.Equal(t, "Bergen", p.Fields["city"])
	assert.Equal(t, "123", p.Fields["phone"])
	require.Len(t, p.History, 2)
	assert.Equal(t, EventUpdated, p.History[1].Event)
	assert.Equal(t, "bob", p.History[1].Actor)
}

func TestUpdateMissingRecordIsNotFound(t *testing.T) {
	m, _ := newManager(t)

	err := m.UpdateNew(context.Background(), "nope", map[string]any{"x": 1})
	assert.True(t, docstore.IsNotFound(err))
}

func TestUpdateRejectsReservedFields(t *testing.T) {
	m, _ := newManager(t)
	id, err := m.AddNew(context.Background(), map[string]any{"name": "Alice"})
	require.NoError(t, err)

	err = m.UpdateNew(context.Background(), id, map[string]any{"history": []any{}})
	assert.True(t, errcode.IsCode(err, errcode.CodeInvalidArgument))
}

func TestDeleteNewRemovesAndDecrementsCounter(t *testing.T) {
	m, _ := newManager(t)
	id, err := m.AddNew(context.Background(), map[string]any{"name": "Alice"})
	require.NoError(t, err)
	require.Equal(t, int64(1), statsCount(t, m))

	require.NoError(t, m.DeleteNew(context.Background(), id))

	_, err = m.GetNew(context.Background(), id)
	assert.True(t, docstore.IsNotFound(err))
	assert.Equal(t, int64(0), statsCount(t, m))
}

func TestDeleteNewMissingLeavesCounterUntouched(t *testing.T) {
	m, _ := newManager(t)
	_, err := m.AddNew(context.Background(), map[string]any{"name": "Alice"})
	require.NoError(t, err)

	err = m.DeleteNew(context.Background(), "nope")
	require.True(t, docstore.IsNotFound(err))
	assert.Equal(t, int64(1), statsCount(t, m))
}

func TestMoveToPermanent(t *testing.T) {
	m, _ := newManager(t)
	ctx := requestcontext.WithActor(context.Background(), "alice")

	oldID, err := m.AddNew(ctx, map[string]any{"name": "Alice"})
	require.NoError(t, err)
	require.NoError(t, m.UpdateNew(ctx, oldID, map[string]any{"city": "Oslo"}))

	newID, err := m.MoveToPermanent(ctx, oldID)
	require.NoError(t, err)
	require.NotEmpty(t, newID)
	assert.NotEqual(t, oldID, newID)

	_, err = m.GetNew(ctx, oldID)
	assert.True(t, docstore.IsNotFound(err))

	p, err := m.GetPermanent(ctx, newID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, p.Status)
	assert.Equal(t, "Alice", p.Fields["name"])
	assert.Equal(t, "Oslo", p.Fields["city"])
	require.Len(t, p.History, 3)
	assert.Equal(t, EventReceived, p.History[0].Event)
	assert.Equal(t, EventUpdated, p.History[1].Event)
	assert.Equal(t, EventMoved, p.History[2].Event)

	assert.Equal(t, int64(0), statsCount(t, m))
}

func TestMoveMissingRecordFailsAtomically(t *testing.T) {
	m, _ := newManager(t)
	_, err := m.AddNew(context.Background(), map[string]any{"name": "Alice"})
	require.NoError(t, err)

	_, err = m.MoveToPermanent(context.Background(), "nope")
	require.True(t, docstore.IsNotFound(err))
	assert.Equal(t, int64(1), statsCount(t, m))
}

func TestApproveAndDeclineAppendOneHistoryEntry(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	approveID, err := m.AddPermanent(ctx, map[string]any{"name": "A"})
	require.NoError(t, err)
	declineID, err := m.AddPermanent(ctx, map[string]any{"name": "B"})
	require.NoError(t, err)

	require.NoError(t, m.ApprovePending(ctx, approveID))
	require.NoError(t, m.DeclinePending(ctx, declineID))

	approved, err := m.GetPermanent(ctx, approveID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, approved.Status)
	require.Len(t, approved.History, 2)
	assert.Equal(t, EventApproved, approved.History[1].Event)

	declined, err := m.GetPermanent(ctx, declineID)
	require.NoError(t, err)
	assert.Equal(t, StatusDeclined, declined.Status)
	assert.Equal(t, EventDeclined, declined.History[1].Event)
}

func TestDeleteThenUndeleteRestoresPendingAndGrowsHistory(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	id, err := m.AddPermanent(ctx, map[string]any{"name": "Alice"})
	require.NoError(t, err)

	require.NoError(t, m.DeletePermanent(ctx, id))
	p, err := m.GetPermanent(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusDeleted, p.Status)

	require.NoError(t, m.UndoDeletePermanent(ctx, id))
	p, err = m.GetPermanent(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, p.Status)
	require.Len(t, p.History, 3)
	assert.Equal(t, EventDeleted, p.History[1].Event)
	assert.Equal(t, EventUndeleted, p.History[2].Event)
}

func TestLenientModeAllowsIllegalTransition(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	id, err := m.AddPermanent(ctx, map[string]any{"name": "A"})
	require.NoError(t, err)
	require.NoError(t, m.DeclinePending(ctx, id))

	// No precondition check: approve applies even though already declined.
	require.NoError(t, m.ApprovePending(ctx, id))
	p, err := m.GetPermanent(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, p.Status)
}

func TestStrictModeRejectsIllegalTransition(t *testing.T) {
	m, _ := newManager(t, WithStrictTransitions())
	ctx := context.Background()

	id, err := m.AddPermanent(ctx, map[string]any{"name": "A"})
	require.NoError(t, err)
	require.NoError(t, m.DeclinePending(ctx, id))

	err = m.ApprovePending(ctx, id)
	require.Error(t, err)
	assert.True(t, errcode.IsCode(err, errcode.CodeInvalidState))

	p, err := m.GetPermanent(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusDeclined, p.Status)
	assert.Len(t, p.History, 2)
}

func TestStrictModeRejectsDoubleDelete(t *testing.T) {
	m, _ := newManager(t, WithStrictTransitions())
	ctx := context.Background()

	id, err := m.AddPermanent(ctx, map[string]any{"name": "A"})
	require.NoError(t, err)
	require.NoError(t, m.DeletePermanent(ctx, id))

	err = m.DeletePermanent(ctx, id)
	assert.True(t, errcode.IsCode(err, errcode.CodeInvalidState))

	err = m.UndoDeletePermanent(ctx, id)
	require.NoError(t, err)
	err = m.UndoDeletePermanent(ctx, id)
	assert.True(t, errcode.IsCode(err, errcode.CodeInvalidState))
}

func TestWatchStatisticsStreamsCounter(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	values := make(chan int64, 16)
	cancel := m.WatchStatistics(func(s Statistics) {
		values <- s.NumOfNew
	}, func(err error) {
		t.Errorf("unexpected watch error: %v", err)
	})
	defer cancel()

	waitValue := func(want int64) {
		t.Helper()
		deadline := time.After(2 * time.Second)
		for {
			select {
			case got := <-values:
				if got == want {
					return
				}
			case <-deadline:
				t.Fatalf("timed out waiting for counter %d", want)
			}
		}
	}

	waitValue(0)
	id, err := m.AddNew(ctx, map[string]any{"name": "A"})
	require.NoError(t, err)
	waitValue(1)
	_, err = m.MoveToPermanent(ctx, id)
	require.NoError(t, err)
	waitValue(0)
}

func TestWatchPermanentStreamsRecord(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	id, err := m.AddPermanent(ctx, map[string]any{"name": "A"})
	require.NoError(t, err)

	statuses := make(chan Status, 16)
	cancel := m.WatchPermanent(id, func(p Participant) {
		statuses <- p.Status
	}, func(err error) {
		t.Errorf("unexpected watch error: %v", err)
	})
	defer cancel()

	require.Equal(t, StatusPending, <-statuses)
	require.NoError(t, m.ApprovePending(ctx, id))

	select {
	case s := <-statuses:
		assert.Equal(t, StatusApproved, s)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for status change")
	}
}

func TestAuditTrailRecordsLifecycle(t *testing.T) {
	store := audit.NewMemoryStore()
	pub := audit.NewPublisher(store)
	m, _ := newManager(t, WithAudit(pub))
	ctx := requestcontext.WithActor(context.Background(), "alice")

	id, err := m.AddNew(ctx, map[string]any{"name": "Alice"})
	require.NoError(t, err)
	require.NoError(t, m.UpdateNew(ctx, id, map[string]any{"city": "Oslo"}))

	events, err := m.History(ctx, id)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, audit.ActionAddNew, events[0].Action)
	assert.Equal(t, audit.ActionUpdate, events[1].Action)
	assert.Equal(t, "alice", events[0].Actor)

	newID, err := m.MoveToPermanent(ctx, id)
	require.NoError(t, err)
	moved, err := m.History(ctx, newID)
	require.NoError(t, err)
	require.Len(t, moved, 1)
	assert.Equal(t, audit.ActionMove, moved[0].Action)
	assert.Contains(t, moved[0].Detail, id)
}

func TestPinnedTimeFlowsIntoHistory(t *testing.T) {
	m, _ := newManager(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), at)

	id, err := m.AddNew(ctx, map[string]any{"name": "A"})
	require.NoError(t, err)

	p, err := m.GetNew(ctx, id)
	require.NoError(t, err)
	require.Len(t, p.History, 1)
	assert.Equal(t, at, p.History[0].Timestamp)
}
