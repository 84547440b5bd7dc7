package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rgsync/rgsync/internal/adapter"
	"github.com/rgsync/rgsync/internal/mapping"
	"github.com/rgsync/rgsync/internal/syncmodel"
)

// fakeAdapter is a minimal in-memory adapter.Adapter used to drive the
// reconciler without a real Redmine/GitLab backend. Views are supplied to
// ReconcileProject as hints, so GetIssue is only reached by the
// not-found-deletes-the-mapping scenario.
type fakeAdapter struct {
	views   map[int64]syncmodel.IssueView
	patches map[int64]syncmodel.IssuePatch
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{views: map[int64]syncmodel.IssueView{}, patches: map[int64]syncmodel.IssuePatch{}}
}

func (f *fakeAdapter) ListMembers(context.Context, int64) ([]adapter.Member, error) { return nil, nil }

func (f *fakeAdapter) ListIssues(context.Context, int64) ([]syncmodel.IssueView, error) {
	var out []syncmodel.IssueView
	for _, v := range f.views {
		out = append(out, v)
	}
	return out, nil
}

func (f *fakeAdapter) GetIssue(_ context.Context, _ int64, issueID int64) (*syncmodel.IssueView, error) {
	v, ok := f.views[issueID]
	if !ok {
		return nil, adapter.ErrNotFound
	}
	return &v, nil
}

func (f *fakeAdapter) CreateIssue(_ context.Context, _ int64, draft syncmodel.IssueDraft) (*syncmodel.IssueView, error) {
	id := int64(len(f.views) + 1)
	v := syncmodel.IssueView{ExternalID: id, Title: draft.Title, Description: draft.Description, Labels: draft.Labels, AssigneeID: draft.AssigneeID, DueDate: draft.DueDate, Status: draft.Status, UpdatedAt: time.Now().UTC()}
	f.views[id] = v
	return &v, nil
}

func (f *fakeAdapter) UpdateIssue(_ context.Context, _ int64, issueID int64, patch syncmodel.IssuePatch) error {
	f.patches[issueID] = patch
	return nil
}

func newTestStore(t *testing.T) *mapping.Store {
	t.Helper()
	store, err := mapping.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func setupProject(t *testing.T, store *mapping.Store) (syncmodel.Project, syncmodel.RemoteProjectB) {
	t.Helper()
	ctx := context.Background()

	project, err := store.UpsertProject(ctx, 100, "ACME")
	require.NoError(t, err)

	require.NoError(t, store.UpsertRemoteProjectB(ctx, project.ID, "acme/widgets", "https://gitlab.example.com/acme/widgets"))
	require.NoError(t, store.SetRemoteProjectBExternalID(ctx, project.ID, 900))

	remoteB, err := store.GetRemoteProjectB(ctx, project.ID)
	require.NoError(t, err)
	return *project, *remoteB
}

func TestReconcileOne_FirstObserve_BWinsAndPatchesA(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	project, remoteB := setupProject(t, store)

	m, err := store.CreateIssueMapping(ctx, project.ID, 1, 1)
	require.NoError(t, err)
	require.Nil(t, m.Canonical)

	adapterA := newFakeAdapter()
	adapterB := newFakeAdapter()

	now := time.Now().UTC()
	aHints := map[int64]syncmodel.IssueView{1: {ExternalID: 1, Title: "A's title", Status: syncmodel.StatusOpen, UpdatedAt: now}}
	bHints := map[int64]syncmodel.IssueView{1: {ExternalID: 1, Title: "B's title", Status: syncmodel.StatusOpen, UpdatedAt: now}}

	r := NewReconciler(store, adapterA, adapterB, "https://redmine.example.com", "https://gitlab.example.com")
	require.NoError(t, r.ReconcileProject(ctx, project, remoteB, aHints, bHints))

	patch, ok := adapterA.patches[1]
	require.True(t, ok, "expected A to be patched on first observe")
	require.NotNil(t, patch.Title)
	require.Equal(t, "B's title", *patch.Title)

	reloaded, err := store.GetIssueMapping(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.Canonical)
	require.Equal(t, "B's title", reloaded.Canonical.Title)
}

func TestReconcileOne_NoOpWhenBothMatchCanonical(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	project, remoteB := setupProject(t, store)

	m, err := store.CreateIssueMapping(ctx, project.ID, 1, 1)
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, store.UpdateCanonical(ctx, m.ID, syncmodel.CanonicalSnapshot{Title: "Stable title", Status: syncmodel.StatusOpen, UpdatedAt: now}))

	adapterA := newFakeAdapter()
	adapterB := newFakeAdapter()
	hints := map[int64]syncmodel.IssueView{1: {ExternalID: 1, Title: "Stable title", Status: syncmodel.StatusOpen, UpdatedAt: now}}

	r := NewReconciler(store, adapterA, adapterB, "https://redmine.example.com", "https://gitlab.example.com")
	require.NoError(t, r.ReconcileProject(ctx, project, remoteB, hints, hints))

	require.Empty(t, adapterA.patches)
	require.Empty(t, adapterB.patches)
}

func TestReconcileOne_AOnlyDiffers_PropagatesToB(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	project, remoteB := setupProject(t, store)

	m, err := store.CreateIssueMapping(ctx, project.ID, 1, 1)
	require.NoError(t, err)

	base := time.Now().UTC()
	require.NoError(t, store.UpdateCanonical(ctx, m.ID, syncmodel.CanonicalSnapshot{Title: "Original", Status: syncmodel.StatusOpen, UpdatedAt: base}))

	adapterA := newFakeAdapter()
	adapterB := newFakeAdapter()
	aHints := map[int64]syncmodel.IssueView{1: {ExternalID: 1, Title: "Changed on A", Status: syncmodel.StatusOpen, UpdatedAt: base.Add(time.Hour)}}
	bHints := map[int64]syncmodel.IssueView{1: {ExternalID: 1, Title: "Original", Status: syncmodel.StatusOpen, UpdatedAt: base}}

	r := NewReconciler(store, adapterA, adapterB, "https://redmine.example.com", "https://gitlab.example.com")
	require.NoError(t, r.ReconcileProject(ctx, project, remoteB, aHints, bHints))

	require.Empty(t, adapterA.patches)
	patch, ok := adapterB.patches[1]
	require.True(t, ok, "expected B to receive A's change")
	require.Equal(t, "Changed on A", *patch.Title)
}

func TestReconcileOne_Conflict_MergesByNewerUpdatedAt(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	project, remoteB := setupProject(t, store)

	m, err := store.CreateIssueMapping(ctx, project.ID, 1, 1)
	require.NoError(t, err)

	base := time.Now().UTC()
	require.NoError(t, store.UpdateCanonical(ctx, m.ID, syncmodel.CanonicalSnapshot{Title: "Original", Status: syncmodel.StatusOpen, UpdatedAt: base}))

	adapterA := newFakeAdapter()
	adapterB := newFakeAdapter()
	aHints := map[int64]syncmodel.IssueView{1: {ExternalID: 1, Title: "Changed on A", Status: syncmodel.StatusOpen, UpdatedAt: base.Add(time.Hour)}}
	bHints := map[int64]syncmodel.IssueView{1: {ExternalID: 1, Title: "Changed on B", Status: syncmodel.StatusOpen, UpdatedAt: base.Add(2 * time.Hour)}}

	r := NewReconciler(store, adapterA, adapterB, "https://redmine.example.com", "https://gitlab.example.com")
	require.NoError(t, r.ReconcileProject(ctx, project, remoteB, aHints, bHints))

	patch, ok := adapterA.patches[1]
	require.True(t, ok, "expected A to be patched with the newer B title")
	require.Equal(t, "Changed on B", *patch.Title)

	_, bPatched := adapterB.patches[1]
	require.False(t, bPatched, "B already holds the winning value, no patch needed")

	reloaded, err := store.GetIssueMapping(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, "Changed on B", reloaded.Canonical.Title)
}

func TestReconcileOne_ANotFound_DeletesMapping(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	project, remoteB := setupProject(t, store)

	m, err := store.CreateIssueMapping(ctx, project.ID, 1, 1)
	require.NoError(t, err)

	adapterA := newFakeAdapter() // views empty: GetIssue returns adapter.ErrNotFound
	adapterB := newFakeAdapter()
	adapterB.views[1] = syncmodel.IssueView{ExternalID: 1, Title: "Still here", Status: syncmodel.StatusOpen, UpdatedAt: time.Now().UTC()}

	r := NewReconciler(store, adapterA, adapterB, "https://redmine.example.com", "https://gitlab.example.com")
	require.NoError(t, r.ReconcileProject(ctx, project, remoteB, nil, nil))

	_, err = store.GetIssueMapping(ctx, m.ID)
	require.Error(t, err)
}
