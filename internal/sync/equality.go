package sync

import (
	"sort"
	"strings"

	"github.com/rgsync/rgsync/internal/syncmodel"
)

// snapshotsEqual implements spec §4.6's field-by-field value equality used
// to classify a mapping against its canonical snapshot.
func snapshotsEqual(x, y syncmodel.CanonicalSnapshot) bool {
	return x.Title == y.Title &&
		x.Description == y.Description &&
		strings.EqualFold(string(x.Status), string(y.Status)) &&
		nullableInt64Equal(x.AssigneeID, y.AssigneeID) &&
		nullableStringEqual(x.DueDate, y.DueDate) &&
		labelSetEqual(x.Labels, y.Labels)
}

func nullableInt64Equal(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func nullableStringEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// labelSetEqual compares two label slices as case-insensitive sets,
// ignoring order and duplicates (spec §4.6 "set-equality under
// case-insensitive comparison").
func labelSetEqual(a, b []string) bool {
	na, nb := normalizeLabelSet(a), normalizeLabelSet(b)
	if len(na) != len(nb) {
		return false
	}
	for i := range na {
		if na[i] != nb[i] {
			return false
		}
	}
	return true
}

func normalizeLabelSet(labels []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, l := range labels {
		lower := strings.ToLower(l)
		if seen[lower] {
			continue
		}
		seen[lower] = true
		out = append(out, lower)
	}
	sort.Strings(out)
	return out
}
