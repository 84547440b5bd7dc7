// Package gitlab implements the platform B adapter (spec §4.1): GitLab's
// REST API, label-encoded category/status, and project resolution by
// path-with-namespace. Structured after the teacher's internal/gitlab
// package (types.go's issue/label shapes, mapping.go's label-prefix
// convention, fieldmapper.go's FieldMapper contract), since that package
// covers the same domain this spec's platform B does. The teacher's
// client.go was not present in the retrieved sources (only client_test.go
// survived); this file's HTTP binding is written fresh, grounded instead on
// internal/jira/client.go's shape (see client.go's doc comment).
package gitlab

import "time"

// Issue represents an issue from the GitLab REST API (v4).
type Issue struct {
	IID         int64     `json:"iid"`
	ProjectID   int64     `json:"project_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	State       string    `json:"state"` // "opened" or "closed"
	Labels      []string  `json:"labels"`
	Assignee    *User     `json:"assignee,omitempty"`
	DueDate     string    `json:"due_date,omitempty"` // YYYY-MM-DD
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// User is a GitLab user reference, as returned embedded in issues or from
// /projects/:id/members.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

// Project represents a GitLab project.
type Project struct {
	ID                int64  `json:"id"`
	PathWithNamespace string `json:"path_with_namespace"`
	Name              string `json:"name"`
}

// stateOpened / stateClosed are GitLab's two issue states.
const (
	stateOpened = "opened"
	stateClosed = "closed"
)
