package memory

import (
	"sort"

	"rosterd/internal/docstore"
)

// matchesFilters reports whether data satisfies every filter. Incomparable
// value pairs never match, mirroring how document stores drop documents of
// the wrong type from typed queries.
func matchesFilters(data docstore.Document, filters []docstore.Filter) bool {
	for _, f := range filters {
		cmp, ok := compareValues(data[f.Field], f.Value)
		if !ok {
			return false
		}
		switch f.Op {
		case docstore.OpEqual:
			if cmp != 0 {
				return false
			}
		case docstore.OpNotEqual:
			if cmp == 0 {
				return false
			}
		case docstore.OpLess:
			if cmp >= 0 {
				return false
			}
		case docstore.OpLessEqual:
			if cmp > 0 {
				return false
			}
		case docstore.OpGreater:
			if cmp <= 0 {
				return false
			}
		case docstore.OpGreaterEqual:
			if cmp < 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// compareDocs orders two snapshots by the query's sort keys, tie-breaking on
// document id so every query has a total order.
func compareDocs(a, b docstore.Snapshot, orders []docstore.Order) int {
	for _, o := range orders {
		cmp, ok := compareValues(a.Data[o.Field], b.Data[o.Field])
		if !ok {
			cmp = 0
		}
		if cmp != 0 {
			if o.Desc {
				return -cmp
			}
			return cmp
		}
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	default:
		return 0
	}
}

// afterCursor reports whether doc sorts strictly after the StartAfter cursor.
// Cursor values align with the query's orders; an optional extra trailing
// value is compared against the document id, letting callers page past ties.
func afterCursor(doc docstore.Snapshot, q docstore.Query) bool {
	if len(q.StartAfter) == 0 {
		return true
	}
	for i, o := range q.Orders {
		if i >= len(q.StartAfter) {
			break
		}
		cmp, ok := compareValues(doc.Data[o.Field], q.StartAfter[i])
		if !ok {
			cmp = 0
		}
		if o.Desc {
			cmp = -cmp
		}
		if cmp != 0 {
			return cmp > 0
		}
	}
	if len(q.StartAfter) > len(q.Orders) {
		cursorID, _ := q.StartAfter[len(q.Orders)].(string)
		return doc.ID > cursorID
	}
	return false
}

// visibleLocked computes the query's visible result window from committed
// state. Caller holds s.mu.
func (s *Store) visibleLocked(collection string, q docstore.Query) []docstore.Snapshot {
	col := s.collections[collection]
	out := make([]docstore.Snapshot, 0, len(col))
	for id, e := range col {
		if !matchesFilters(e.data, q.Filters) {
			continue
		}
		out = append(out, e.snapshot(id))
	}
	sort.Slice(out, func(i, j int) bool {
		return compareDocs(out[i], out[j], q.Orders) < 0
	})
	if len(q.StartAfter) > 0 {
		n := 0
		for _, snap := range out {
			if afterCursor(snap, q) {
				out[n] = snap
				n++
			}
		}
		out = out[:n]
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}
