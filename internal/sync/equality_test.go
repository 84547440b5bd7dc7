package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rgsync/rgsync/internal/syncmodel"
)

func ptr[T any](v T) *T { return &v }

func TestSnapshotsEqual(t *testing.T) {
	base := syncmodel.CanonicalSnapshot{
		Title:       "Fix login bug",
		Description: "details",
		Labels:      []string{"Bug", "urgent"},
		AssigneeID:  ptr(int64(7)),
		DueDate:     ptr("2026-08-01"),
		Status:      syncmodel.StatusOpen,
	}

	tests := []struct {
		name  string
		other syncmodel.CanonicalSnapshot
		want  bool
	}{
		{"identical", base, true},
		{"status case-insensitive", withStatus(base, "open"), true},
		{"labels reordered and re-cased", withLabels(base, []string{"URGENT", "bug"}), true},
		{"labels with duplicate", withLabels(base, []string{"Bug", "urgent", "bug"}), true},
		{"different title", withTitle(base, "Fix logout bug"), false},
		{"different assignee", withAssignee(base, ptr(int64(8))), false},
		{"assignee cleared", withAssignee(base, nil), false},
		{"different due date", withDueDate(base, ptr("2026-08-02")), false},
		{"due date cleared", withDueDate(base, nil), false},
		{"different status", withStatus(base, "closed"), false},
		{"different label set size", withLabels(base, []string{"Bug"}), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, snapshotsEqual(base, tt.other))
		})
	}
}

func TestNullableInt64Equal(t *testing.T) {
	assert.True(t, nullableInt64Equal(nil, nil))
	assert.True(t, nullableInt64Equal(ptr(int64(1)), ptr(int64(1))))
	assert.False(t, nullableInt64Equal(ptr(int64(1)), ptr(int64(2))))
	assert.False(t, nullableInt64Equal(nil, ptr(int64(1))))
	assert.False(t, nullableInt64Equal(ptr(int64(1)), nil))
}

func TestLabelSetEqual(t *testing.T) {
	assert.True(t, labelSetEqual(nil, nil))
	assert.True(t, labelSetEqual([]string{}, nil))
	assert.True(t, labelSetEqual([]string{"Bug", "Urgent"}, []string{"urgent", "bug"}))
	assert.False(t, labelSetEqual([]string{"Bug"}, []string{"Bug", "Urgent"}))
}

func withTitle(s syncmodel.CanonicalSnapshot, title string) syncmodel.CanonicalSnapshot {
	s.Title = title
	return s
}

func withStatus(s syncmodel.CanonicalSnapshot, status syncmodel.Status) syncmodel.CanonicalSnapshot {
	s.Status = status
	return s
}

func withLabels(s syncmodel.CanonicalSnapshot, labels []string) syncmodel.CanonicalSnapshot {
	s.Labels = labels
	return s
}

func withAssignee(s syncmodel.CanonicalSnapshot, assigneeID *int64) syncmodel.CanonicalSnapshot {
	s.AssigneeID = assigneeID
	return s
}

func withDueDate(s syncmodel.CanonicalSnapshot, dueDate *string) syncmodel.CanonicalSnapshot {
	s.DueDate = dueDate
	return s
}
