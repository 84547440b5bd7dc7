package sync

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rgsync/rgsync/internal/adapter"
	"github.com/rgsync/rgsync/internal/mapping"
	"github.com/rgsync/rgsync/internal/rlog"
)

// DiscoverProjects implements spec §4.3: for each A-project whose
// configured custom field parses as an absolute URL pointing at a B-repo,
// upsert a Project and its RemoteProjectB, resolving the B-side numeric id
// when not yet known.
func DiscoverProjects(ctx context.Context, store *mapping.Store, lister adapter.ProjectLister, resolver adapter.ProjectResolver, customFieldName string) error {
	projects, err := lister.ListProjects(ctx)
	if err != nil {
		return fmt.Errorf("list a-projects: %w", err)
	}

	for _, p := range projects {
		raw, ok := p.CustomFields[customFieldName]
		if !ok || strings.TrimSpace(raw) == "" {
			continue // no configured custom field: silently skipped (spec §4.3)
		}
		pathWithNamespace, repoURL, ok := parseRepoURL(raw)
		if !ok {
			continue // unparseable custom field: silently skipped (spec §4.3)
		}

		project, err := store.UpsertProject(ctx, p.ExternalID, p.Key)
		if err != nil {
			rlog.Errorf("upsert project failed", err, rlog.Fields{"external_a_id": p.ExternalID})
			continue
		}
		if err := store.UpsertRemoteProjectB(ctx, project.ID, pathWithNamespace, repoURL); err != nil {
			rlog.Errorf("upsert remote project b failed", err, rlog.Fields{"project_id": project.ID})
			continue
		}

		remote, err := store.GetRemoteProjectB(ctx, project.ID)
		if err != nil {
			rlog.Errorf("read remote project b failed", err, rlog.Fields{"project_id": project.ID})
			continue
		}
		if remote.Linked() {
			continue
		}

		externalBID, err := resolver.ResolveProjectID(ctx, pathWithNamespace)
		if err != nil {
			if !errors.Is(err, adapter.ErrNotFound) {
				rlog.Warnf("resolve project id failed, remains unlinked", rlog.Fields{"project_id": project.ID, "path": pathWithNamespace, "err": err.Error()})
			}
			continue // unlinked until a subsequent pass (spec §4.3)
		}
		if err := store.SetRemoteProjectBExternalID(ctx, project.ID, externalBID); err != nil {
			rlog.Errorf("set remote project b external id failed", err, rlog.Fields{"project_id": project.ID})
		}
	}
	return nil
}

// parseRepoURL validates raw as an absolute URL and extracts B's
// path-with-namespace, stripping a trailing ".git" (spec §4.3).
func parseRepoURL(raw string) (pathWithNamespace, repoURL string, ok bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || !u.IsAbs() || u.Host == "" {
		return "", "", false
	}
	path := strings.Trim(u.Path, "/")
	path = strings.TrimSuffix(path, ".git")
	if path == "" {
		return "", "", false
	}
	return path, raw, true
}
