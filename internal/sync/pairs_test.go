package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rgsync/rgsync/internal/syncmodel"
)

func TestFilterByCategoryKey(t *testing.T) {
	views := []syncmodel.IssueView{
		{ExternalID: 1, Labels: []string{"Bug"}},
		{ExternalID: 2, Labels: []string{"Chore"}},
		{ExternalID: 3, Labels: nil},
		{ExternalID: 4, Labels: []string{"feature"}},
	}

	t.Run("with category keys", func(t *testing.T) {
		got := filterByCategoryKey(views, []string{"Bug", "Feature"})
		var ids []int64
		for _, v := range got {
			ids = append(ids, v.ExternalID)
		}
		assert.ElementsMatch(t, []int64{1, 4}, ids)
	})

	t.Run("nil category keys means pre-filtered", func(t *testing.T) {
		got := filterByCategoryKey(views, nil)
		var ids []int64
		for _, v := range got {
			ids = append(ids, v.ExternalID)
		}
		assert.ElementsMatch(t, []int64{1, 2, 4}, ids) // issue 3 still excluded: it carries no label at all
	})
}

func TestIndexByID(t *testing.T) {
	views := []syncmodel.IssueView{{ExternalID: 5, Title: "five"}, {ExternalID: 9, Title: "nine"}}
	got := indexByID(views)
	assert.Equal(t, "five", got[5].Title)
	assert.Equal(t, "nine", got[9].Title)
	assert.Len(t, got, 2)
}

func TestPresenceSet(t *testing.T) {
	views := []syncmodel.IssueView{{ExternalID: 1}, {ExternalID: 2}}
	got := presenceSet(views)
	assert.True(t, got[1])
	assert.True(t, got[2])
	assert.False(t, got[3])
}
