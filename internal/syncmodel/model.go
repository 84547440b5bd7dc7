// Package syncmodel defines the durable data model shared by both platform
// adapters and the reconciler: Project, RemoteProjectB, IssueMapping, User,
// TrackerA, StatusA, and the neutral IssueView/IssueDraft/IssuePatch shapes
// adapters translate to and from. Types here carry no persistence or
// transport code; see internal/mapping for the repository and internal/
// redmine, internal/gitlab for the adapters.
package syncmodel

import "time"

// Status is the neutral open/closed vocabulary a CanonicalSnapshot uses.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// Project is the local record of an A-side project, one-to-one with a
// RemoteProjectB. A Project without a resolved RemoteProjectB.ExternalBID
// is unlinked and skipped by reconciliation (spec §3).
type Project struct {
	ID           int64
	ExternalAID  int64
	ExternalAKey string
	LastSyncAt   *time.Time
}

// RemoteProjectB is the B-side half of a linked Project.
type RemoteProjectB struct {
	ProjectID         int64
	ExternalBID       *int64
	PathWithNamespace string
	URL               string
}

// Linked reports whether the B-side project id has been resolved.
func (r RemoteProjectB) Linked() bool { return r.ExternalBID != nil }

// CanonicalSnapshot is the engine's record of the last state both sides
// agreed on; the three-way merge base (spec §3, §4.6).
type CanonicalSnapshot struct {
	Title       string
	Description string
	Labels      []string
	AssigneeID  *int64 // neutral User.ID
	DueDate     *string // YYYY-MM-DD, no time zone
	Status      Status
	UpdatedAt   time.Time
}

// IssueMapping is a durable pair (A-issue, B-issue) plus its canonical
// snapshot (spec §3). CanonicalSnapshot is nil only in the transient window
// between mapping creation and the first successful reconciliation.
type IssueMapping struct {
	ID               int64
	ProjectID        int64
	ExternalAIssueID int64
	ExternalBIssueID int64
	Canonical        *CanonicalSnapshot
}

// User correlates an A-side account with a B-side account. Either platform
// id may be absent, but never both (spec §3 invariant).
type User struct {
	ID               int64
	ExternalAUserID  *int64
	ExternalBUserID  *int64
	DisplayKey       string
}

// TrackerA mirrors one of A's global issue categories (spec §3, §4.2).
type TrackerA struct {
	ExternalID int64
	Name       string
}

// StatusA mirrors one of A's global status vocabulary entries.
type StatusA struct {
	ExternalID int64
	Name       string
}

// IssueView is the neutral snapshot shape an adapter's read operations
// return (spec §4.1). AssigneeID is the platform's native user id, which
// the caller translates to a User row id; DueDate is a calendar-date
// string. Adapters never see User rows.
type IssueView struct {
	ExternalID     int64
	Title          string
	Description    string
	Labels         []string
	AssigneeID     *int64 // A's or B's native user id, not yet translated
	DueDate        *string
	Status         Status
	UpdatedAt      time.Time
}

// IssueDraft is the input to createIssue: every field is meaningful (there
// is no absent-field discipline on create, unlike IssuePatch).
type IssueDraft struct {
	Title       string
	Description string
	Labels      []string
	AssigneeID  *int64
	DueDate     *string
	Status      Status
}

// IssuePatch uses a present/absent discipline: a nil field means "do not
// touch" (spec §4.1). Adapters must turn a patch with every field nil into
// a no-op rather than an HTTP request.
type IssuePatch struct {
	Title       *string
	Description *string
	Labels      []string // read only when LabelsSet; nil or empty then clears the category
	LabelsSet   bool     // false means absent
	AssigneeID  **int64 // outer nil = absent; inner nil = "clear assignee"
	DueDate     **string
	Status      *Status
}

// IsEmpty reports whether the patch has no fields set, i.e. would be a
// no-op if sent (spec §4.1, §4.6 "an empty patch is not sent").
func (p IssuePatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && !p.LabelsSet &&
		p.AssigneeID == nil && p.DueDate == nil && p.Status == nil
}
