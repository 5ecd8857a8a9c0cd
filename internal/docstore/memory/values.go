package memory

import (
	"errors"
	"fmt"
	"time"

	"rosterd/internal/docstore"
	"rosterd/pkg/errcode"
)

var errClosed = errors.New("store closed")

// deepCopyDocument copies a document so engine state and caller state never
// alias.
func deepCopyDocument(doc docstore.Document) docstore.Document {
	if doc == nil {
		return docstore.Document{}
	}
	out := make(docstore.Document, len(doc))
	for k, v := range doc {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = deepCopyValue(e)
		}
		return out
	case docstore.Document:
		return map[string]any(deepCopyDocument(t))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		// Scalars (and time.Time) are value types.
		return v
	}
}

// resolveDocument replaces write sentinels in a full document write with
// their committed values.
func resolveDocument(doc docstore.Document, now time.Time) docstore.Document {
	out := make(docstore.Document, len(doc))
	for k, v := range doc {
		out[k] = resolveValue(v, now)
	}
	return out
}

func resolveValue(v any, now time.Time) any {
	if docstore.IsServerTimestamp(v) {
		return now
	}
	if delta, ok := docstore.AsIncrement(v); ok {
		return delta
	}
	if elems, ok := docstore.AsArrayUnion(v); ok {
		return deepCopyValue(elems)
	}
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = resolveValue(e, now)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = resolveValue(e, now)
		}
		return out
	default:
		return v
	}
}

// applyUpdates merges field updates into a copy of data, resolving sentinels.
// data itself is never mutated.
func applyUpdates(data docstore.Document, updates []docstore.Update, now time.Time) (docstore.Document, error) {
	out := deepCopyDocument(data)
	for _, u := range updates {
		if u.Field == "" {
			return nil, errcode.New(errcode.CodeInvalidArgument, "update with empty field name")
		}
		if docstore.IsServerTimestamp(u.Value) {
			out[u.Field] = now
			continue
		}
		if delta, ok := docstore.AsIncrement(u.Value); ok {
			next, err := incrementField(out[u.Field], delta)
			if err != nil {
				return nil, errcode.Wrap(err, errcode.CodeInvalidArgument, fmt.Sprintf("increment field %q", u.Field))
			}
			out[u.Field] = next
			continue
		}
		if elems, ok := docstore.AsArrayUnion(u.Value); ok {
			existing, isArray := out[u.Field].([]any)
			if !isArray && out[u.Field] != nil {
				return nil, errcode.Newf(errcode.CodeInvalidArgument, "array union on non-array field %q", u.Field)
			}
			out[u.Field] = append(existing, deepCopyValue(elems).([]any)...)
			continue
		}
		out[u.Field] = deepCopyValue(resolveValue(u.Value, now))
	}
	return out, nil
}

func incrementField(existing any, delta int64) (any, error) {
	switch t := existing.(type) {
	case nil:
		return delta, nil
	case int:
		return int64(t) + delta, nil
	case int32:
		return int64(t) + delta, nil
	case int64:
		return t + delta, nil
	case float64:
		return t + float64(delta), nil
	default:
		return nil, fmt.Errorf("field holds %T, not a number", existing)
	}
}

// compareValues orders two field values. ok is false when the values are not
// comparable (distinct, non-orderable types); such pairs never satisfy range
// filters. nil sorts before everything.
func compareValues(a, b any) (int, bool) {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0, true
		case a == nil:
			return -1, true
		default:
			return 1, true
		}
	}
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}
	switch at := a.(type) {
	case string:
		bt, ok := b.(string)
		if !ok {
			return 0, false
		}
		switch {
		case at < bt:
			return -1, true
		case at > bt:
			return 1, true
		default:
			return 0, true
		}
	case bool:
		bt, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case at == bt:
			return 0, true
		case !at:
			return -1, true
		default:
			return 1, true
		}
	case time.Time:
		bt, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		switch {
		case at.Before(bt):
			return -1, true
		case at.After(bt):
			return 1, true
		default:
			return 0, true
		}
	default:
		return 0, false
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}
