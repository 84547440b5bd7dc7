package redmine

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rgsync/rgsync/internal/adapter"
	"github.com/rgsync/rgsync/internal/httpx"
	"github.com/rgsync/rgsync/internal/syncmodel"
)

// statusClosedName / statusOpenName are the two StatusA names the
// reference cache is keyed on when translating a neutral Status (spec §4.2
// "the StatusA row whose name equals 'New' (OPEN) or 'Closed' (CLOSED)").
const (
	statusOpenName   = "New"
	statusClosedName = "Closed"
)

// Adapter implements adapter.Adapter, adapter.CategoryAdapter, and
// adapter.ProjectLister for Redmine, grounded on the teacher's
// internal/jira.Tracker (Init/FetchIssues/CreateIssue/UpdateIssue shape),
// adapted to this spec's neutral IssueView/IssueDraft/IssuePatch instead
// of beads' types.Issue.
type Adapter struct {
	client          *Client
	customFieldName string
	resolver        adapter.Resolver
}

// New builds a Redmine Adapter. resolver supplies the TrackerA/StatusA/User
// lookups needed to translate a neutral patch at patch time.
func New(client *Client, customFieldName string, resolver adapter.Resolver) *Adapter {
	return &Adapter{client: client, customFieldName: customFieldName, resolver: resolver}
}

// CustomFieldValue returns the named custom field's value from a project's
// custom fields, used by project discovery to find the B-repo URL (spec §4.3).
func CustomFieldValue(fields []CustomField, name string) (string, bool) {
	for _, f := range fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// ListProjects implements adapter.ProjectLister.
func (a *Adapter) ListProjects(ctx context.Context) ([]adapter.ProjectInfo, error) {
	projects, err := a.client.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]adapter.ProjectInfo, 0, len(projects))
	for _, p := range projects {
		cf := make(map[string]string, len(p.CustomFields))
		for _, f := range p.CustomFields {
			cf[f.Name] = f.Value
		}
		result = append(result, adapter.ProjectInfo{
			ExternalID:   p.ID,
			Key:          p.Identifier,
			Name:         p.Name,
			CustomFields: cf,
		})
	}
	return result, nil
}

// ListTrackers implements adapter.CategoryAdapter.
func (a *Adapter) ListTrackers(ctx context.Context) ([]syncmodel.TrackerA, error) {
	trackers, err := a.client.ListTrackers(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]syncmodel.TrackerA, 0, len(trackers))
	for _, t := range trackers {
		result = append(result, syncmodel.TrackerA{ExternalID: t.ID, Name: t.Name})
	}
	return result, nil
}

// ListStatuses implements adapter.CategoryAdapter.
func (a *Adapter) ListStatuses(ctx context.Context) ([]syncmodel.StatusA, error) {
	statuses, err := a.client.ListStatuses(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]syncmodel.StatusA, 0, len(statuses))
	for _, s := range statuses {
		result = append(result, syncmodel.StatusA{ExternalID: s.ID, Name: s.Name})
	}
	return result, nil
}

// ListMembers implements adapter.Adapter.
func (a *Adapter) ListMembers(ctx context.Context, projectID int64) ([]adapter.Member, error) {
	memberships, err := a.client.ListMemberships(ctx, projectID)
	if err != nil {
		return nil, err
	}
	result := make([]adapter.Member, 0, len(memberships))
	for _, m := range memberships {
		if m.User == nil {
			continue
		}
		result = append(result, adapter.Member{ExternalID: m.User.ID, Handle: m.User.Name, Name: m.User.Name})
	}
	return result, nil
}

// ListIssues implements adapter.Adapter.
func (a *Adapter) ListIssues(ctx context.Context, projectID int64) ([]syncmodel.IssueView, error) {
	issues, err := a.client.ListIssues(ctx, projectID)
	if err != nil {
		return nil, err
	}
	result := make([]syncmodel.IssueView, 0, len(issues))
	for i := range issues {
		view, err := toIssueView(&issues[i])
		if err != nil {
			return nil, fmt.Errorf("issue %d: %w", issues[i].ID, err)
		}
		result = append(result, *view)
	}
	return result, nil
}

// GetIssue implements adapter.Adapter. A 404 is translated to adapter.ErrNotFound.
func (a *Adapter) GetIssue(ctx context.Context, _ int64, issueID int64) (*syncmodel.IssueView, error) {
	issue, status, err := a.client.GetIssue(ctx, issueID)
	if err != nil {
		if status == http.StatusNotFound || httpx.StatusCode(err) == http.StatusNotFound {
			return nil, adapter.ErrNotFound
		}
		return nil, err
	}
	return toIssueView(issue)
}

// CreateIssue implements adapter.Adapter. Translates the neutral draft's
// label (category key) and status to a Redmine tracker_id/status_id via the
// resolver (spec §4.5 step 4 "create-missing B→A").
func (a *Adapter) CreateIssue(ctx context.Context, projectID int64, draft syncmodel.IssueDraft) (*syncmodel.IssueView, error) {
	fields := map[string]any{
		"project_id": projectID,
		"subject":    draft.Title,
	}
	if draft.Description != "" {
		fields["description"] = draft.Description
	}
	if len(draft.Labels) > 0 {
		if trackerID, ok, err := a.resolver.TrackerIDByName(ctx, draft.Labels[0]); err == nil && ok {
			fields["tracker_id"] = trackerID
		}
	}
	statusName := statusOpenName
	if draft.Status == syncmodel.StatusClosed {
		statusName = statusClosedName
	}
	if statusID, ok, err := a.resolver.StatusIDByName(ctx, statusName); err == nil && ok {
		fields["status_id"] = statusID
	}
	if draft.AssigneeID != nil {
		if externalID, ok, err := a.resolver.ExternalAUserID(ctx, *draft.AssigneeID); err == nil && ok {
			fields["assigned_to_id"] = externalID
		}
	}
	if draft.DueDate != nil {
		fields["due_date"] = *draft.DueDate
	}

	created, err := a.client.CreateIssue(ctx, fields)
	if err != nil {
		return nil, err
	}
	return toIssueView(created)
}

// UpdateIssue implements adapter.Adapter. An empty patch is a no-op (spec
// §4.6 "an empty patch is not sent").
func (a *Adapter) UpdateIssue(ctx context.Context, _ int64, issueID int64, patch syncmodel.IssuePatch) error {
	if patch.IsEmpty() {
		return nil
	}

	fields := map[string]any{}
	if patch.Title != nil {
		fields["subject"] = *patch.Title
	}
	if patch.Description != nil {
		fields["description"] = *patch.Description
	}
	if patch.LabelsSet && len(patch.Labels) > 0 {
		if trackerID, ok, err := a.resolver.TrackerIDByName(ctx, patch.Labels[0]); err != nil {
			return fmt.Errorf("resolve tracker for label %q: %w", patch.Labels[0], err)
		} else if ok {
			fields["tracker_id"] = trackerID
		}
		// If the category name has no TrackerA match, the field is omitted
		// rather than failing the pair (spec §4.2).
	}
	if patch.Status != nil {
		statusName := statusOpenName
		if *patch.Status == syncmodel.StatusClosed {
			statusName = statusClosedName
		}
		if statusID, ok, err := a.resolver.StatusIDByName(ctx, statusName); err != nil {
			return fmt.Errorf("resolve status %q: %w", statusName, err)
		} else if ok {
			fields["status_id"] = statusID
		}
	}
	if patch.AssigneeID != nil {
		if *patch.AssigneeID == nil {
			fields["assigned_to_id"] = ""
		} else if externalID, ok, err := a.resolver.ExternalAUserID(ctx, **patch.AssigneeID); err != nil {
			return fmt.Errorf("resolve assignee: %w", err)
		} else if ok {
			fields["assigned_to_id"] = externalID
		}
	}
	if patch.DueDate != nil {
		if *patch.DueDate == nil {
			fields["due_date"] = ""
		} else {
			fields["due_date"] = **patch.DueDate
		}
	}

	if len(fields) == 0 {
		return nil
	}
	return a.client.UpdateIssue(ctx, issueID, fields)
}

// toIssueView translates a Redmine Issue into the neutral IssueView (spec
// §4.1: subject↔title, tracker.name folded into labels, status.name
// mapped to OPEN/CLOSED with "Closed" the only CLOSED name).
func toIssueView(issue *Issue) (*syncmodel.IssueView, error) {
	updatedAt, err := ParseTimestamp(issue.UpdatedOn)
	if err != nil {
		return nil, fmt.Errorf("parse updated_on: %w", err)
	}

	status := syncmodel.StatusOpen
	if strings.EqualFold(issue.Status.Name, statusClosedName) {
		status = syncmodel.StatusClosed
	}

	var labels []string
	if issue.Tracker.Name != "" {
		labels = []string{issue.Tracker.Name}
	}

	var assigneeID *int64
	if issue.AssignedTo != nil {
		id := issue.AssignedTo.ID
		assigneeID = &id
	}

	var dueDate *string
	if issue.DueDate != "" {
		d := issue.DueDate
		dueDate = &d
	}

	return &syncmodel.IssueView{
		ExternalID:  issue.ID,
		Title:       issue.Subject,
		Description: issue.Description,
		Labels:      labels,
		AssigneeID:  assigneeID,
		DueDate:     dueDate,
		Status:      status,
		UpdatedAt:   updatedAt,
	}, nil
}
