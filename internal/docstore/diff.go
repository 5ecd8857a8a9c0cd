package docstore

// Diff turns two visible result windows into an ordered change batch.
// Removals come first, indices taken as each removal applies. Then every
// added document and every document whose version changed gets one event, in
// final sort order; documents that merely shift position because a neighbor
// moved are not re-announced. A consumer applying the batch in order
// transforms old into next exactly.
func Diff(old, next []Snapshot) []Change {
	finalIndex := make(map[string]int, len(next))
	for i, snap := range next {
		finalIndex[snap.ID] = i
	}
	oldVersion := make(map[string]uint64, len(old))
	for _, snap := range old {
		oldVersion[snap.ID] = snap.Version
	}

	working := make([]Snapshot, 0, len(old))
	var changes []Change

	for _, snap := range old {
		if _, keep := finalIndex[snap.ID]; keep {
			working = append(working, snap)
			continue
		}
		// len(working) is the document's position in the consumer's list
		// at the moment this removal applies: surviving predecessors have
		// been counted, removed ones already dropped.
		changes = append(changes, Change{
			Kind:     ChangeRemoved,
			Doc:      snap,
			OldIndex: len(working),
			NewIndex: -1,
		})
	}

	for i, snap := range next {
		version, existed := oldVersion[snap.ID]
		if existed && version == snap.Version {
			continue
		}
		j := -1
		if existed {
			j = indexOf(working, snap.ID)
			working = removeAt(working, j)
		}
		// The document lands right after the last one already known to
		// precede it; unprocessed documents further right keep their
		// positions until their own event, matching what the consumer's
		// remove-and-insert replay produces.
		pos := 0
		for p := len(working) - 1; p >= 0; p-- {
			if finalIndex[working[p].ID] < i {
				pos = p + 1
				break
			}
		}
		working = insertAt(working, pos, snap)
		kind := ChangeModified
		if !existed {
			kind = ChangeAdded
		}
		changes = append(changes, Change{
			Kind:     kind,
			Doc:      snap,
			OldIndex: j,
			NewIndex: pos,
		})
	}
	return changes
}

// ApplyChange advances a consumer-side mirror of the visible list by one
// change event. It is the inverse of Diff: applying Diff(old, next) in order
// to old yields next.
func ApplyChange(list []Snapshot, ch Change) []Snapshot {
	switch ch.Kind {
	case ChangeAdded:
		return insertAt(list, ch.NewIndex, ch.Doc)
	case ChangeRemoved:
		return removeAt(list, ch.OldIndex)
	case ChangeModified:
		return insertAt(removeAt(list, ch.OldIndex), ch.NewIndex, ch.Doc)
	default:
		return list
	}
}

func indexOf(list []Snapshot, id string) int {
	for i, snap := range list {
		if snap.ID == id {
			return i
		}
	}
	return -1
}

func removeAt(list []Snapshot, i int) []Snapshot {
	out := make([]Snapshot, 0, len(list)-1)
	out = append(out, list[:i]...)
	return append(out, list[i+1:]...)
}

func insertAt(list []Snapshot, i int, snap Snapshot) []Snapshot {
	out := make([]Snapshot, 0, len(list)+1)
	out = append(out, list[:i]...)
	out = append(out, snap)
	return append(out, list[i:]...)
}
