// Package adapter defines the uniform contract both platform adapters
// implement (spec §4.1). The core (internal/sync) only ever talks to this
// interface; it never sees a raw REST payload. Shaped after the teacher's
// tracker.IssueTracker/FieldMapper plugin contract, narrowed to the fixed
// two-platform, read/write/list surface this spec needs — there is no
// plugin registry here because A and B are each exactly one adapter, not
// an open set.
package adapter

import (
	"context"
	"errors"

	"github.com/rgsync/rgsync/internal/syncmodel"
)

// ErrNotFound is returned by GetIssue and ResolveProjectID when the remote
// has no such id. It is never retried (spec §7 "not-found on probe").
var ErrNotFound = errors.New("adapter: not found")

// Member is one project member as either platform reports it.
type Member struct {
	ExternalID int64
	Handle     string
	Name       string
}

// ProjectInfo is one of A's projects, including whatever custom fields it
// carries (project discovery reads CustomFields[cfg.PlatformA.CustomFieldName]).
type ProjectInfo struct {
	ExternalID  int64
	Key         string
	Name        string
	CustomFields map[string]string
}

// CategoryAdapter is implemented only by platform A: it offers the global
// tracker/status vocabulary the reference cache mirrors (spec §4.2).
type CategoryAdapter interface {
	ListTrackers(ctx context.Context) ([]syncmodel.TrackerA, error)
	ListStatuses(ctx context.Context) ([]syncmodel.StatusA, error)
}

// ProjectLister is implemented only by platform A: enumerate all projects a
// credential can see, for project discovery (spec §4.3).
type ProjectLister interface {
	ListProjects(ctx context.Context) ([]ProjectInfo, error)
}

// ProjectResolver is implemented only by platform B: resolve a
// path-with-namespace to B's numeric project id (spec §4.1, §4.3).
type ProjectResolver interface {
	ResolveProjectID(ctx context.Context, pathWithNamespace string) (int64, error)
}

// Adapter is the read/write surface both platforms expose once a project
// id is known (spec §4.1). Retry/backoff is the HTTP layer's concern (§5);
// Adapter methods return a plain error for transport failures and
// ErrNotFound specifically for a confirmed-absent id.
type Adapter interface {
	ListMembers(ctx context.Context, projectID int64) ([]Member, error)
	ListIssues(ctx context.Context, projectID int64) ([]syncmodel.IssueView, error)
	GetIssue(ctx context.Context, projectID, issueID int64) (*syncmodel.IssueView, error)
	CreateIssue(ctx context.Context, projectID int64, draft syncmodel.IssueDraft) (*syncmodel.IssueView, error)
	UpdateIssue(ctx context.Context, projectID, issueID int64, patch syncmodel.IssuePatch) error
}

// Resolver is the read-only slice of the mapping repository an adapter
// needs to translate a neutral patch into platform-native ids at patch
// time (spec §4.6 "A-side translations happen at patch time"): label name
// → TrackerA id, neutral status → StatusA id, neutral User row id →
// platform-native user id. Implemented by internal/mapping.Store.
type Resolver interface {
	TrackerIDByName(ctx context.Context, name string) (int64, bool, error)
	StatusIDByName(ctx context.Context, name string) (int64, bool, error)
	ExternalAUserID(ctx context.Context, userRowID int64) (int64, bool, error)
	ExternalBUserID(ctx context.Context, userRowID int64) (int64, bool, error)
}
