package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rgsync/rgsync/internal/syncmodel"
)

func TestDiscoverPairs_TitleSeedsAndCreatesMissingBothWays(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	project, remoteB := setupProject(t, store)

	now := time.Now().UTC()

	adapterA := newFakeAdapter()
	adapterB := newFakeAdapter()

	// Title-seed candidate: same title on both sides, neither mapped yet.
	adapterA.views[1] = syncmodel.IssueView{ExternalID: 1, Title: "Shared title", Labels: []string{"Bug"}, Status: syncmodel.StatusOpen, UpdatedAt: now}
	adapterB.views[1] = syncmodel.IssueView{ExternalID: 1, Title: "Shared title", Labels: []string{"Bug"}, Status: syncmodel.StatusOpen, UpdatedAt: now}

	// A-only issue: should get created on B.
	adapterA.views[2] = syncmodel.IssueView{ExternalID: 2, Title: "Only on A", Labels: []string{"Bug"}, Status: syncmodel.StatusOpen, UpdatedAt: now}

	// B-only issue: should get created on A.
	adapterB.views[2] = syncmodel.IssueView{ExternalID: 2, Title: "Only on B", Labels: []string{"Bug"}, Status: syncmodel.StatusOpen, UpdatedAt: now}

	d := NewPairDiscoverer(store, adapterA, adapterB, []string{"Bug"}, "https://redmine.example.com", "https://gitlab.example.com")
	_, _, err := d.DiscoverPairs(ctx, project, remoteB)
	require.NoError(t, err)

	mappings, err := store.ListIssueMappings(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, mappings, 3, "title-seed pair + a->b create + b->a create")

	var titleSeed, aCreated, bCreated bool
	for _, m := range mappings {
		switch {
		case m.ExternalAIssueID == 1 && m.ExternalBIssueID == 1:
			titleSeed = true
		case m.ExternalAIssueID == 2 && m.ExternalBIssueID != 1:
			aCreated = true
		case m.ExternalBIssueID == 2 && m.ExternalAIssueID != 1:
			bCreated = true
		}
	}
	require.True(t, titleSeed, "expected the matching-title pair to be seeded")
	require.True(t, aCreated, "expected A's orphan issue to be created on B")
	require.True(t, bCreated, "expected B's orphan issue to be created on A")
}

func TestDiscoverPairs_StaleMappingIsDeletedWhenOneSideGone(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	project, remoteB := setupProject(t, store)

	m, err := store.CreateIssueMapping(ctx, project.ID, 1, 1)
	require.NoError(t, err)

	adapterA := newFakeAdapter() // no view for issue 1: GetIssue probe returns ErrNotFound
	adapterB := newFakeAdapter()
	adapterB.views[1] = syncmodel.IssueView{ExternalID: 1, Title: "Still alive", Labels: []string{"Bug"}, Status: syncmodel.StatusOpen, UpdatedAt: time.Now().UTC()}

	d := NewPairDiscoverer(store, adapterA, adapterB, []string{"Bug"}, "https://redmine.example.com", "https://gitlab.example.com")
	_, _, err = d.DiscoverPairs(ctx, project, remoteB)
	require.NoError(t, err)

	_, err = store.GetIssueMapping(ctx, m.ID)
	require.Error(t, err, "stale mapping should have been deleted")
}
