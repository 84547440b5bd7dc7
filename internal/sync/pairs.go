package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rgsync/rgsync/internal/adapter"
	"github.com/rgsync/rgsync/internal/mapping"
	"github.com/rgsync/rgsync/internal/rlog"
	"github.com/rgsync/rgsync/internal/syncmodel"
)

// PairDiscoverer implements spec §4.5's four-step pass: title seeding,
// stale-mapping sweep, and create-missing in both directions.
type PairDiscoverer struct {
	store        *mapping.Store
	adapterA     adapter.Adapter
	adapterB     adapter.Adapter
	categoryKeys []string
	publicURLA   string
	publicURLB   string
}

// NewPairDiscoverer builds a PairDiscoverer.
func NewPairDiscoverer(store *mapping.Store, adapterA, adapterB adapter.Adapter, categoryKeys []string, publicURLA, publicURLB string) *PairDiscoverer {
	return &PairDiscoverer{store: store, adapterA: adapterA, adapterB: adapterB, categoryKeys: categoryKeys, publicURLA: publicURLA, publicURLB: publicURLB}
}

// DiscoverPairs runs the full pass for one linked project and returns the
// per-project listings, unfiltered by category key, so the reconciler can
// reuse them as observation hints (spec §4.1 "hints from the
// per-project listings").
func (d *PairDiscoverer) DiscoverPairs(ctx context.Context, project syncmodel.Project, remoteB syncmodel.RemoteProjectB) (aByID, bByID map[int64]syncmodel.IssueView, err error) {
	if !remoteB.Linked() {
		return nil, nil, fmt.Errorf("project %d has no linked b-project", project.ID)
	}
	externalBID := *remoteB.ExternalBID

	aIssues, err := d.adapterA.ListIssues(ctx, project.ExternalAID)
	if err != nil {
		return nil, nil, fmt.Errorf("list a-issues for project %d: %w", project.ID, err)
	}
	bIssues, err := d.adapterB.ListIssues(ctx, externalBID)
	if err != nil {
		return nil, nil, fmt.Errorf("list b-issues for project %d: %w", project.ID, err)
	}

	aFiltered := filterByCategoryKey(aIssues, d.categoryKeys)
	bFiltered := filterByCategoryKey(bIssues, nil) // B's adapter already folds to a single category-matching label

	mappings, err := d.store.ListIssueMappings(ctx, project.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list mappings for project %d: %w", project.ID, err)
	}
	mappedA := map[int64]bool{}
	mappedB := map[int64]bool{}
	for _, m := range mappings {
		mappedA[m.ExternalAIssueID] = true
		mappedB[m.ExternalBIssueID] = true
	}

	if err := d.staleMappingSweep(ctx, project, externalBID, mappings, aFiltered, bFiltered); err != nil {
		return nil, nil, fmt.Errorf("stale mapping sweep for project %d: %w", project.ID, err)
	}

	if err := d.titleSeed(ctx, project, externalBID, aFiltered, bFiltered, mappedA, mappedB); err != nil {
		return nil, nil, fmt.Errorf("title seed for project %d: %w", project.ID, err)
	}

	if err := d.createMissingAToB(ctx, project, externalBID, remoteB, aFiltered, mappedA); err != nil {
		return nil, nil, fmt.Errorf("create-missing a->b for project %d: %w", project.ID, err)
	}
	if err := d.createMissingBToA(ctx, project, externalBID, remoteB, bFiltered, mappedB); err != nil {
		return nil, nil, fmt.Errorf("create-missing b->a for project %d: %w", project.ID, err)
	}

	aByID = indexByID(aIssues)
	bByID = indexByID(bIssues)
	return aByID, bByID, nil
}

func indexByID(views []syncmodel.IssueView) map[int64]syncmodel.IssueView {
	out := make(map[int64]syncmodel.IssueView, len(views))
	for _, v := range views {
		out[v.ExternalID] = v
	}
	return out
}

// filterByCategoryKey keeps only issues whose labels[0] is in categoryKeys
// (case-insensitive). A nil categoryKeys means "already filtered upstream"
// (the GitLab adapter folds to a category-matching label at read time).
func filterByCategoryKey(views []syncmodel.IssueView, categoryKeys []string) []syncmodel.IssueView {
	var out []syncmodel.IssueView
	for _, v := range views {
		if len(v.Labels) == 0 {
			continue
		}
		if categoryKeys == nil {
			out = append(out, v)
			continue
		}
		for _, key := range categoryKeys {
			if strings.EqualFold(v.Labels[0], key) {
				out = append(out, v)
				break
			}
		}
	}
	return out
}

// staleMappingSweep implements spec §4.5 step 2: confirm both sides of
// every existing mapping still exist, probing getIssue when a listing
// doesn't confirm it, deleting the mapping if either side is gone.
func (d *PairDiscoverer) staleMappingSweep(ctx context.Context, project syncmodel.Project, externalBID int64, mappings []syncmodel.IssueMapping, aFiltered, bFiltered []syncmodel.IssueView) error {
	aSeen := presenceSet(aFiltered)
	bSeen := presenceSet(bFiltered)

	for _, m := range mappings {
		aGone, err := d.confirmGone(ctx, d.adapterA, project.ID, m.ExternalAIssueID, aSeen)
		if err != nil {
			return err
		}
		bGone, err := d.confirmGone(ctx, d.adapterB, externalBID, m.ExternalBIssueID, bSeen)
		if err != nil {
			return err
		}
		if aGone || bGone {
			if err := d.store.DeleteIssueMapping(ctx, m.ID); err != nil {
				return fmt.Errorf("delete stale mapping %d: %w", m.ID, err)
			}
		}
	}
	return nil
}

func presenceSet(views []syncmodel.IssueView) map[int64]bool {
	out := make(map[int64]bool, len(views))
	for _, v := range views {
		out[v.ExternalID] = true
	}
	return out
}

func (d *PairDiscoverer) confirmGone(ctx context.Context, a adapter.Adapter, projectID, issueID int64, seen map[int64]bool) (bool, error) {
	if seen[issueID] {
		return false, nil
	}
	_, err := a.GetIssue(ctx, projectID, issueID)
	if errors.Is(err, adapter.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("probe issue %d: %w", issueID, err)
	}
	return false, nil
}

// titleSeed implements spec §4.5 step 1: unmapped A-issues with a unique
// trimmed-title match to a single unmapped B-issue are paired, with B's
// live view pushed onto A and set as the initial canonical.
func (d *PairDiscoverer) titleSeed(ctx context.Context, project syncmodel.Project, externalBID int64, aFiltered, bFiltered []syncmodel.IssueView, mappedA, mappedB map[int64]bool) error {
	byTitle := map[string][]syncmodel.IssueView{}
	for _, b := range bFiltered {
		if mappedB[b.ExternalID] {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(b.Title))
		byTitle[key] = append(byTitle[key], b)
	}

	for _, a := range aFiltered {
		if mappedA[a.ExternalID] {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(a.Title))
		candidates := byTitle[key]
		if len(candidates) != 1 {
			continue
		}
		b := candidates[0]

		m, err := d.store.CreateIssueMapping(ctx, project.ID, a.ExternalID, b.ExternalID)
		if err != nil {
			if errors.Is(err, mapping.ErrConflict) {
				continue
			}
			return fmt.Errorf("create title-seed mapping a=%d b=%d: %w", a.ExternalID, b.ExternalID, err)
		}
		mappedA[a.ExternalID] = true
		mappedB[b.ExternalID] = true

		canonicalA, err := toCanonical(ctx, d.store, a, platformA)
		if err != nil {
			return fmt.Errorf("canonicalize title-seed a-view: %w", err)
		}
		canonicalB, err := toCanonical(ctx, d.store, b, platformB)
		if err != nil {
			return fmt.Errorf("canonicalize title-seed b-view: %w", err)
		}

		patch := buildPatch(canonicalA, canonicalB)
		if !patch.IsEmpty() {
			if err := d.adapterA.UpdateIssue(ctx, project.ID, a.ExternalID, patch); err != nil {
				rlog.Errorf("push title-seed a-patch failed", err, rlog.Fields{"mapping_id": m.ID})
				continue
			}
		}
		if err := d.store.UpdateCanonical(ctx, m.ID, canonicalB); err != nil {
			return fmt.Errorf("set title-seed canonical for mapping %d: %w", m.ID, err)
		}
	}
	return nil
}

// createMissingAToB implements spec §4.5 step 3.
func (d *PairDiscoverer) createMissingAToB(ctx context.Context, project syncmodel.Project, externalBID int64, remoteB syncmodel.RemoteProjectB, aFiltered []syncmodel.IssueView, mappedA map[int64]bool) error {
	for _, a := range aFiltered {
		if mappedA[a.ExternalID] {
			continue
		}

		canonicalA, err := toCanonical(ctx, d.store, a, platformA)
		if err != nil {
			return fmt.Errorf("canonicalize a-issue %d: %w", a.ExternalID, err)
		}

		draft := syncmodel.IssueDraft{
			Title:       canonicalA.Title,
			Description: NormalizeDescription(canonicalA.Description, issueURLA(d.publicURLA, a.ExternalID)),
			Labels:      canonicalA.Labels,
			AssigneeID:  canonicalA.AssigneeID,
			DueDate:     canonicalA.DueDate,
			Status:      canonicalA.Status,
		}
		created, err := d.adapterB.CreateIssue(ctx, externalBID, draft)
		if err != nil {
			rlog.Errorf("create-missing a->b failed", err, rlog.Fields{"external_a_issue_id": a.ExternalID})
			continue
		}

		m, err := d.store.CreateIssueMapping(ctx, project.ID, a.ExternalID, created.ExternalID)
		if err != nil {
			return fmt.Errorf("record a->b mapping for a=%d b=%d: %w", a.ExternalID, created.ExternalID, err)
		}
		canonicalB, err := toCanonical(ctx, d.store, *created, platformB)
		if err != nil {
			return fmt.Errorf("canonicalize created b-issue %d: %w", created.ExternalID, err)
		}
		if err := d.store.UpdateCanonical(ctx, m.ID, canonicalB); err != nil {
			return fmt.Errorf("set canonical for mapping %d: %w", m.ID, err)
		}
		mappedA[a.ExternalID] = true
	}
	return nil
}

// createMissingBToA implements spec §4.5 step 4.
func (d *PairDiscoverer) createMissingBToA(ctx context.Context, project syncmodel.Project, externalBID int64, remoteB syncmodel.RemoteProjectB, bFiltered []syncmodel.IssueView, mappedB map[int64]bool) error {
	for _, b := range bFiltered {
		if mappedB[b.ExternalID] {
			continue
		}

		canonicalB, err := toCanonical(ctx, d.store, b, platformB)
		if err != nil {
			return fmt.Errorf("canonicalize b-issue %d: %w", b.ExternalID, err)
		}

		draft := syncmodel.IssueDraft{
			Title:       canonicalB.Title,
			Description: NormalizeDescription(canonicalB.Description, issueURLB(d.publicURLB, remoteB.PathWithNamespace, b.ExternalID)),
			Labels:      canonicalB.Labels,
			AssigneeID:  canonicalB.AssigneeID,
			DueDate:     canonicalB.DueDate,
			Status:      canonicalB.Status,
		}
		created, err := d.adapterA.CreateIssue(ctx, project.ExternalAID, draft)
		if err != nil {
			rlog.Errorf("create-missing b->a failed", err, rlog.Fields{"external_b_issue_id": b.ExternalID})
			continue
		}

		m, err := d.store.CreateIssueMapping(ctx, project.ID, created.ExternalID, b.ExternalID)
		if err != nil {
			return fmt.Errorf("record b->a mapping for a=%d b=%d: %w", created.ExternalID, b.ExternalID, err)
		}
		canonicalA, err := toCanonical(ctx, d.store, *created, platformA)
		if err != nil {
			return fmt.Errorf("canonicalize created a-issue %d: %w", created.ExternalID, err)
		}
		if err := d.store.UpdateCanonical(ctx, m.ID, canonicalA); err != nil {
			return fmt.Errorf("set canonical for mapping %d: %w", m.ID, err)
		}
		mappedB[b.ExternalID] = true
	}
	return nil
}
