package gitlab

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFirstCategoryLabel(t *testing.T) {
	categoryKeys := []string{"Bug", "Feature", "Chore"}

	tests := []struct {
		name   string
		labels []string
		want   string
		wantOk bool
	}{
		{"exact case match", []string{"frontend", "Bug"}, "Bug", true},
		{"case-insensitive match", []string{"frontend", "bug"}, "Bug", true},
		{"scan order follows labels not keys", []string{"Feature", "Bug"}, "Feature", true},
		{"no match", []string{"frontend", "backend"}, "", false},
		{"empty labels", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FirstCategoryLabel(tt.labels, categoryKeys)
			assert.Equal(t, tt.wantOk, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWithoutCategoryLabels(t *testing.T) {
	categoryKeys := []string{"Bug", "Feature"}
	got := WithoutCategoryLabels([]string{"frontend", "bug", "urgent"}, categoryKeys)
	assert.Equal(t, []string{"frontend", "urgent"}, got)
}
