package sync

import "github.com/rgsync/rgsync/internal/syncmodel"

// mergeByUpdatedAt builds the per-field merge winner for a conflicting
// mapping (spec §4.6 step 5): "for each field, pick the value from
// whichever of a/b has the greater updatedAt (ties → B)". Grounded on the
// teacher's mergeFieldByUpdatedAt idiom in internal/merge/merge.go, adapted
// from that file's three-way base/left/right comparison to this spec's
// two-way a/b-against-record-timestamp rule — there is no base value to
// fall back to here, only a clock comparison. A snapshot carries a single
// record-level UpdatedAt, so the comparison is made once and every field of
// the winner comes from the same side.
func mergeByUpdatedAt(a, b syncmodel.CanonicalSnapshot) syncmodel.CanonicalSnapshot {
	bWins := !a.UpdatedAt.After(b.UpdatedAt) // ties go to B
	winner := a
	if bWins {
		winner = b
	}

	return syncmodel.CanonicalSnapshot{
		Title:       mergeField(a.Title, b.Title, bWins),
		Description: mergeField(a.Description, b.Description, bWins),
		Labels:      mergeLabelsField(a.Labels, b.Labels, bWins),
		AssigneeID:  mergeAssigneeField(a.AssigneeID, b.AssigneeID, bWins),
		DueDate:     mergeDueDateField(a.DueDate, b.DueDate, bWins),
		Status:      mergeStatusField(a.Status, b.Status, bWins),
		UpdatedAt:   winner.UpdatedAt,
	}
}

func mergeField(aVal, bVal string, bWins bool) string {
	if bWins {
		return bVal
	}
	return aVal
}

func mergeStatusField(aVal, bVal syncmodel.Status, bWins bool) syncmodel.Status {
	if bWins {
		return bVal
	}
	return aVal
}

func mergeLabelsField(aVal, bVal []string, bWins bool) []string {
	if bWins {
		return bVal
	}
	return aVal
}

func mergeAssigneeField(aVal, bVal *int64, bWins bool) *int64 {
	if bWins {
		return bVal
	}
	return aVal
}

func mergeDueDateField(aVal, bVal *string, bWins bool) *string {
	if bWins {
		return bVal
	}
	return aVal
}
