package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rgsync/rgsync/internal/syncmodel"
)

func TestMergeByUpdatedAt(t *testing.T) {
	older := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 7, 2, 0, 0, 0, 0, time.UTC)

	a := syncmodel.CanonicalSnapshot{Title: "A title", Status: syncmodel.StatusOpen, UpdatedAt: older}
	b := syncmodel.CanonicalSnapshot{Title: "B title", Status: syncmodel.StatusClosed, UpdatedAt: newer}

	t.Run("newer b wins wholesale", func(t *testing.T) {
		got := mergeByUpdatedAt(a, b)
		assert.Equal(t, "B title", got.Title)
		assert.Equal(t, syncmodel.StatusClosed, got.Status)
		assert.Equal(t, newer, got.UpdatedAt)
	})

	t.Run("newer a wins wholesale", func(t *testing.T) {
		got := mergeByUpdatedAt(b, a) // b (newer) passed as "a" arg, a (older) as "b" arg
		assert.Equal(t, "B title", got.Title)
		assert.Equal(t, syncmodel.StatusClosed, got.Status)
	})

	t.Run("tie goes to b", func(t *testing.T) {
		same := older
		x := syncmodel.CanonicalSnapshot{Title: "X", UpdatedAt: same}
		y := syncmodel.CanonicalSnapshot{Title: "Y", UpdatedAt: same}
		got := mergeByUpdatedAt(x, y)
		assert.Equal(t, "Y", got.Title)
	})
}
