package sync

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rgsync/rgsync/internal/adapter"
	"github.com/rgsync/rgsync/internal/mapping"
	"github.com/rgsync/rgsync/internal/rlog"
	"github.com/rgsync/rgsync/internal/syncmodel"
)

// Metrics receives per-reconciliation counts for an optional
// observability.Provider; internal/sync never imports that package
// directly, so any type with this shape (structural typing) works.
type Metrics interface {
	PatchApplied(ctx context.Context)
	ConflictDetected(ctx context.Context)
}

// Reconciler drives spec §4.6's per-mapping three-way convergence and
// §4.7's deletion semantics. It speaks only adapter.Adapter, never a
// concrete platform package.
type Reconciler struct {
	store      *mapping.Store
	adapterA   adapter.Adapter
	adapterB   adapter.Adapter
	publicURLA string
	publicURLB string
	metrics    Metrics
}

// NewReconciler builds a Reconciler. publicURLA/B are used to compose
// Source: backlinks (spec §4.5).
func NewReconciler(store *mapping.Store, adapterA, adapterB adapter.Adapter, publicURLA, publicURLB string) *Reconciler {
	return &Reconciler{store: store, adapterA: adapterA, adapterB: adapterB, publicURLA: publicURLA, publicURLB: publicURLB}
}

// WithMetrics attaches an observability.Provider (or test double). A nil
// Reconciler.metrics is a valid no-op, so this is optional.
func (r *Reconciler) WithMetrics(m Metrics) *Reconciler {
	r.metrics = m
	return r
}

func (r *Reconciler) recordPatch(ctx context.Context) {
	if r.metrics != nil {
		r.metrics.PatchApplied(ctx)
	}
}

func (r *Reconciler) recordConflict(ctx context.Context) {
	if r.metrics != nil {
		r.metrics.ConflictDetected(ctx)
	}
}

// issueURLA composes the browsable URL for an A-issue.
func issueURLA(publicURL string, issueID int64) string {
	return strings.TrimSuffix(publicURL, "/") + "/issues/" + strconv.FormatInt(issueID, 10)
}

// issueURLB composes the browsable URL for a B-issue.
func issueURLB(publicURL, pathWithNamespace string, issueIID int64) string {
	return strings.TrimSuffix(publicURL, "/") + "/" + pathWithNamespace + "/-/issues/" + strconv.FormatInt(issueIID, 10)
}

// ReconcileProject runs step §4.6 for every existing mapping in a project.
// aHints/bHints are the per-project listings keyed by external issue id,
// consulted before falling back to a live getIssue call (spec §4.1 "using
// hints from the per-project listings where available").
func (r *Reconciler) ReconcileProject(ctx context.Context, project syncmodel.Project, remoteB syncmodel.RemoteProjectB, aHints, bHints map[int64]syncmodel.IssueView) error {
	mappings, err := r.store.ListIssueMappings(ctx, project.ID)
	if err != nil {
		return fmt.Errorf("list mappings for project %d: %w", project.ID, err)
	}

	for _, m := range mappings {
		if err := r.reconcileOne(ctx, project, remoteB, m, aHints, bHints); err != nil {
			// per-project continuation is the caller's job (spec §4.8 "catches
			// errors per project"); within a project a failed mapping must not
			// block its siblings either, so only log here.
			rlog.Errorf("reconcile mapping failed", err, rlog.Fields{"mapping_id": m.ID, "project_id": project.ID})
		}
	}
	return nil
}

func (r *Reconciler) reconcileOne(ctx context.Context, project syncmodel.Project, remoteB syncmodel.RemoteProjectB, m syncmodel.IssueMapping, aHints, bHints map[int64]syncmodel.IssueView) error {
	aView, err := r.observe(ctx, r.adapterA, project.ID, m.ExternalAIssueID, aHints)
	if errors.Is(err, adapter.ErrNotFound) {
		return r.store.DeleteIssueMapping(ctx, m.ID)
	}
	if err != nil {
		return fmt.Errorf("observe a-side of mapping %d: %w", m.ID, err)
	}

	bView, err := r.observe(ctx, r.adapterB, *remoteB.ExternalBID, m.ExternalBIssueID, bHints)
	if errors.Is(err, adapter.ErrNotFound) {
		return r.store.DeleteIssueMapping(ctx, m.ID)
	}
	if err != nil {
		return fmt.Errorf("observe b-side of mapping %d: %w", m.ID, err)
	}

	urlA := issueURLA(r.publicURLA, m.ExternalAIssueID)
	urlB := issueURLB(r.publicURLB, remoteB.PathWithNamespace, m.ExternalBIssueID)
	// Both descriptions are held in A's form (Source: line pointing at B) so
	// equality compares the payload; a B-bound patch is switched to B's form.
	aView.Description = NormalizeDescription(aView.Description, urlB)
	bView.Description = NormalizeDescription(bView.Description, urlB)

	observedA, err := toCanonical(ctx, r.store, *aView, platformA)
	if err != nil {
		return fmt.Errorf("translate a-side of mapping %d: %w", m.ID, err)
	}
	observedB, err := toCanonical(ctx, r.store, *bView, platformB)
	if err != nil {
		return fmt.Errorf("translate b-side of mapping %d: %w", m.ID, err)
	}

	if m.Canonical == nil {
		// First-observe: B is the initial source of truth (spec §4.6 step 3).
		patch := buildPatch(observedA, observedB)
		if !patch.IsEmpty() {
			if err := r.adapterA.UpdateIssue(ctx, project.ID, m.ExternalAIssueID, patch); err != nil {
				return fmt.Errorf("first-observe patch a-side of mapping %d: %w", m.ID, err)
			}
			r.recordPatch(ctx)
		}
		return r.store.UpdateCanonical(ctx, m.ID, observedB)
	}

	canonical := *m.Canonical
	equalA := snapshotsEqual(observedA, canonical)
	equalB := snapshotsEqual(observedB, canonical)

	switch {
	case equalA && equalB:
		return nil

	case !equalA && equalB:
		// A is the writer.
		patch := buildPatch(observedB, observedA)
		if patch.IsEmpty() {
			return nil
		}
		if patch.Description != nil {
			desc := NormalizeDescription(*patch.Description, urlA)
			patch.Description = &desc
		}
		if err := r.adapterB.UpdateIssue(ctx, *remoteB.ExternalBID, m.ExternalBIssueID, patch); err != nil {
			return fmt.Errorf("propagate a-side change to b-side of mapping %d: %w", m.ID, err)
		}
		r.recordPatch(ctx)
		return r.store.UpdateCanonical(ctx, m.ID, observedA)

	case equalA && !equalB:
		// B is the writer.
		patch := buildPatch(observedA, observedB)
		if patch.IsEmpty() {
			return nil
		}
		if err := r.adapterA.UpdateIssue(ctx, project.ID, m.ExternalAIssueID, patch); err != nil {
			return fmt.Errorf("propagate b-side change to a-side of mapping %d: %w", m.ID, err)
		}
		r.recordPatch(ctx)
		return r.store.UpdateCanonical(ctx, m.ID, observedB)

	default:
		// Conflict: both sides moved. This is a pure observability pre-check
		// (grounded on the teacher's conflict.DetectConflicts) — it does not
		// alter the merge outcome below.
		rlog.Warnf("conflict detected", rlog.Fields{"mapping_id": m.ID, "project_id": project.ID})
		r.recordConflict(ctx)

		// Merge, then patch both; canonical only advances if both patches
		// succeed (spec §5 "atomic against other work touching that mapping").
		winner := mergeByUpdatedAt(observedA, observedB)

		aPatch := buildPatch(observedA, winner)
		if !aPatch.IsEmpty() {
			if err := r.adapterA.UpdateIssue(ctx, project.ID, m.ExternalAIssueID, aPatch); err != nil {
				return fmt.Errorf("apply merge winner to a-side of mapping %d: %w", m.ID, err)
			}
			r.recordPatch(ctx)
		}
		bPatch := buildPatch(observedB, winner)
		if bPatch.Description != nil {
			desc := NormalizeDescription(*bPatch.Description, urlA)
			bPatch.Description = &desc
		}
		if !bPatch.IsEmpty() {
			if err := r.adapterB.UpdateIssue(ctx, *remoteB.ExternalBID, m.ExternalBIssueID, bPatch); err != nil {
				return fmt.Errorf("apply merge winner to b-side of mapping %d: %w", m.ID, err)
			}
			r.recordPatch(ctx)
		}
		return r.store.UpdateCanonical(ctx, m.ID, winner)
	}
}

// observe returns the hinted view if present, falling back to a live fetch.
func (r *Reconciler) observe(ctx context.Context, a adapter.Adapter, projectID, issueID int64, hints map[int64]syncmodel.IssueView) (*syncmodel.IssueView, error) {
	if hints != nil {
		if v, ok := hints[issueID]; ok {
			return &v, nil
		}
	}
	return a.GetIssue(ctx, projectID, issueID)
}

// platform distinguishes which side's native user-id space an IssueView's
// AssigneeID lives in, for the User-table lookup in toCanonical.
type platform int

const (
	platformA platform = iota
	platformB
)

// toCanonical translates a native-id IssueView into a CanonicalSnapshot
// whose AssigneeID is the neutral User row id (spec §4.6 "compare after
// translating to the common user-row id").
func toCanonical(ctx context.Context, store *mapping.Store, v syncmodel.IssueView, p platform) (syncmodel.CanonicalSnapshot, error) {
	var assigneeID *int64
	if v.AssigneeID != nil {
		var user *syncmodel.User
		var err error
		if p == platformA {
			user, err = store.FindByExternalA(ctx, *v.AssigneeID)
		} else {
			user, err = store.FindByExternalB(ctx, *v.AssigneeID)
		}
		if err != nil && !errors.Is(err, mapping.ErrNotFound) {
			return syncmodel.CanonicalSnapshot{}, fmt.Errorf("translate assignee: %w", err)
		}
		if user != nil {
			id := user.ID
			assigneeID = &id
		}
		// An uncorrelated native assignee is treated as absent (nullable
		// equality in spec §4.6 treats absence as a comparable value rather
		// than an error).
	}

	return syncmodel.CanonicalSnapshot{
		Title:       v.Title,
		Description: v.Description,
		Labels:      v.Labels,
		AssigneeID:  assigneeID,
		DueDate:     v.DueDate,
		Status:      v.Status,
		UpdatedAt:   v.UpdatedAt,
	}, nil
}

// buildPatch emits only the fields that differ between from and to (spec
// §4.6 "Patch building... emits only fields that differ, eliding no-ops").
func buildPatch(from, to syncmodel.CanonicalSnapshot) syncmodel.IssuePatch {
	var patch syncmodel.IssuePatch

	if from.Title != to.Title {
		title := to.Title
		patch.Title = &title
	}
	if from.Description != to.Description {
		desc := to.Description
		patch.Description = &desc
	}
	if !labelSetEqual(from.Labels, to.Labels) {
		patch.Labels = to.Labels
		patch.LabelsSet = true
	}
	if !nullableInt64Equal(from.AssigneeID, to.AssigneeID) {
		assignee := to.AssigneeID
		patch.AssigneeID = &assignee
	}
	if !nullableStringEqual(from.DueDate, to.DueDate) {
		due := to.DueDate
		patch.DueDate = &due
	}
	if !strings.EqualFold(string(from.Status), string(to.Status)) {
		status := to.Status
		patch.Status = &status
	}

	return patch
}
