// Package redmine implements the platform A adapter (spec §4.1): Redmine's
// REST API, numeric tracker/status ids, and a configurable custom field
// pointing at the paired B-repo. Structured after the teacher's
// internal/jira package (client.go's HTTP shape, tracker.go's IssueTracker
// wiring, refs.go's timestamp parsing) since both are enterprise trackers
// with numeric ids and JSON-over-HTTPS REST APIs, unlike GitLab's
// label-based model.
package redmine

// IssueRef is the subset of a Redmine cross-reference used throughout
// (tracker, status, project, assigned_to all share this {id, name} shape).
type IssueRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// CustomField is one entry of a Redmine issue's or project's custom_fields
// array.
type CustomField struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Issue represents an issue from the Redmine REST API.
type Issue struct {
	ID          int64         `json:"id"`
	Project     IssueRef      `json:"project"`
	Tracker     IssueRef      `json:"tracker"`
	Status      IssueRef      `json:"status"`
	Subject     string        `json:"subject"`
	Description string        `json:"description"`
	AssignedTo  *IssueRef     `json:"assigned_to,omitempty"`
	DueDate     string        `json:"due_date,omitempty"` // YYYY-MM-DD
	CreatedOn   string        `json:"created_on"`
	UpdatedOn   string        `json:"updated_on"`
	CustomFields []CustomField `json:"custom_fields,omitempty"`
}

// issuesEnvelope wraps Redmine's paginated /issues.json response.
type issuesEnvelope struct {
	Issues     []Issue `json:"issues"`
	TotalCount int     `json:"total_count"`
	Offset     int     `json:"offset"`
	Limit      int     `json:"limit"`
}

// issueEnvelope wraps a single-issue GET/POST/PUT response or request body.
type issueEnvelope struct {
	Issue Issue `json:"issue"`
}

// Project represents a Redmine project, including its custom fields (used
// by project discovery to find the B-repo URL, spec §4.3).
type Project struct {
	ID           int64         `json:"id"`
	Identifier   string        `json:"identifier"`
	Name         string        `json:"name"`
	CustomFields []CustomField `json:"custom_fields,omitempty"`
}

type projectsEnvelope struct {
	Projects   []Project `json:"projects"`
	TotalCount int       `json:"total_count"`
	Offset     int       `json:"offset"`
	Limit      int       `json:"limit"`
}

// Membership represents one entry of /projects/:id/memberships.json.
type Membership struct {
	User *IssueRef `json:"user,omitempty"`
}

type membershipsEnvelope struct {
	Memberships []Membership `json:"memberships"`
	TotalCount  int          `json:"total_count"`
}

// Tracker is a global Redmine category (spec's TrackerA).
type Tracker struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type trackersEnvelope struct {
	Trackers []Tracker `json:"trackers"`
}

// IssueStatus is a global Redmine status (spec's StatusA).
type IssueStatus struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	IsClosed bool `json:"is_closed"`
}

type issueStatusesEnvelope struct {
	IssueStatuses []IssueStatus `json:"issue_statuses"`
}
