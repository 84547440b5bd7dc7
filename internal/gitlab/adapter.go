package gitlab

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rgsync/rgsync/internal/adapter"
	"github.com/rgsync/rgsync/internal/httpx"
	"github.com/rgsync/rgsync/internal/syncmodel"
)

// Adapter implements adapter.Adapter and adapter.ProjectResolver for
// GitLab, grounded on the teacher's internal/gitlab.Tracker's FetchIssues/
// CreateIssue/UpdateIssue responsibilities, adapted to this spec's neutral
// IssueView/IssueDraft/IssuePatch and the scoped-less categoryKeys label
// convention (spec §4.1) instead of beads' multi-field label scheme.
type Adapter struct {
	client       *Client
	categoryKeys []string
	resolver     adapter.Resolver
}

// New builds a GitLab Adapter. categoryKeys is the configured vocabulary
// used to pick the single category label out of an issue's label set.
// resolver supplies the neutral-user-id → external-B-id lookup needed to
// translate a neutral patch's assignee at patch time.
func New(client *Client, categoryKeys []string, resolver adapter.Resolver) *Adapter {
	return &Adapter{client: client, categoryKeys: categoryKeys, resolver: resolver}
}

// ResolveProjectID implements adapter.ProjectResolver.
func (a *Adapter) ResolveProjectID(ctx context.Context, pathWithNamespace string) (int64, error) {
	id, err := a.client.ResolveProjectID(ctx, pathWithNamespace)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return 0, adapter.ErrNotFound
		}
		return 0, err
	}
	return id, nil
}

// ListMembers implements adapter.Adapter.
func (a *Adapter) ListMembers(ctx context.Context, projectID int64) ([]adapter.Member, error) {
	users, err := a.client.ListMembers(ctx, projectID)
	if err != nil {
		return nil, err
	}
	result := make([]adapter.Member, 0, len(users))
	for _, u := range users {
		result = append(result, adapter.Member{ExternalID: u.ID, Handle: u.Username, Name: u.Name})
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
		result = append(result, toIssueView(&issues[i], a.categoryKeys))
	}
	return result, nil
}

// GetIssue implements adapter.Adapter. A 404 is translated to adapter.ErrNotFound.
func (a *Adapter) GetIssue(ctx context.Context, projectID, issueID int64) (*syncmodel.IssueView, error) {
	issue, status, err := a.client.GetIssue(ctx, projectID, issueID)
	if err != nil {
		if status == http.StatusNotFound || httpx.StatusCode(err) == http.StatusNotFound {
			return nil, adapter.ErrNotFound
		}
		return nil, err
	}
	view := toIssueView(issue, a.categoryKeys)
	return &view, nil
}

// CreateIssue implements adapter.Adapter (spec §4.5 step 3 "create-missing
// A→B"). GitLab's create/update forms are url.Values (form-encoded), the
// way the REST v4 API takes them, rather than a JSON body.
func (a *Adapter) CreateIssue(ctx context.Context, projectID int64, draft syncmodel.IssueDraft) (*syncmodel.IssueView, error) {
	form := url.Values{}
	form.Set("title", draft.Title)
	if draft.Description != "" {
		form.Set("description", draft.Description)
	}
	if len(draft.Labels) > 0 {
		form.Set("labels", draft.Labels[0])
	}
	if draft.AssigneeID != nil {
		if externalID, ok, err := a.resolver.ExternalBUserID(ctx, *draft.AssigneeID); err == nil && ok {
			form.Set("assignee_ids", strconv.FormatInt(externalID, 10))
		}
	}
	if draft.DueDate != nil {
		form.Set("due_date", *draft.DueDate)
	}

	created, err := a.client.CreateIssue(ctx, projectID, form)
	if err != nil {
		return nil, err
	}
	if draft.Status == syncmodel.StatusClosed {
		closeForm := url.Values{"state_event": {"close"}}
		if err := a.client.UpdateIssue(ctx, projectID, created.IID, closeForm); err != nil {
			return nil, fmt.Errorf("close newly created issue %d: %w", created.IID, err)
		}
		created.State = stateClosed
	}
	view := toIssueView(created, a.categoryKeys)
	return &view, nil
}

// UpdateIssue implements adapter.Adapter. An empty patch is a no-op (spec
// §4.6 "an empty patch is not sent"). GitLab's labels field has no partial
// update: the category label is reassembled from the patch's labels plus
// whatever non-category labels the issue already carried, which requires a
// fresh read when only the category is changing.
func (a *Adapter) UpdateIssue(ctx context.Context, projectID, issueID int64, patch syncmodel.IssuePatch) error {
	if patch.IsEmpty() {
		return nil
	}

	form := url.Values{}
	if patch.Title != nil {
		form.Set("title", *patch.Title)
	}
	if patch.Description != nil {
		form.Set("description", *patch.Description)
	}
	if patch.LabelsSet {
		current, _, err := a.client.GetIssue(ctx, projectID, issueID)
		if err != nil {
			return fmt.Errorf("read current labels before patch: %w", err)
		}
		labels := WithoutCategoryLabels(current.Labels, a.categoryKeys)
		if len(patch.Labels) > 0 {
			labels = append(labels, patch.Labels[0])
		}
		form.Set("labels", joinLabels(labels))
	}
	if patch.Status != nil {
		if *patch.Status == syncmodel.StatusClosed {
			form.Set("state_event", "close")
		} else {
			form.Set("state_event", "reopen")
		}
	}
	if patch.AssigneeID != nil {
		if *patch.AssigneeID == nil {
			form.Set("assignee_ids", "0")
		} else if externalID, ok, err := a.resolver.ExternalBUserID(ctx, **patch.AssigneeID); err != nil {
			return fmt.Errorf("resolve assignee: %w", err)
		} else if ok {
			form.Set("assignee_ids", strconv.FormatInt(externalID, 10))
		}
	}
	if patch.DueDate != nil {
		if *patch.DueDate == nil {
			form.Set("due_date", "")
		} else {
			form.Set("due_date", **patch.DueDate)
		}
	}

	if len(form) == 0 {
		return nil
	}
	return a.client.UpdateIssue(ctx, projectID, issueID, form)
}

func joinLabels(labels []string) string {
	out := ""
	for i, l := range labels {
		if i > 0 {
			out += ","
		}
		out += l
	}
	return out
}

// toIssueView translates a GitLab Issue into the neutral IssueView (spec
// §4.1: state "closed"↔CLOSED, "opened"↔OPEN; first matching category-key
// label folded into a single-element labels).
func toIssueView(issue *Issue, categoryKeys []string) syncmodel.IssueView {
	status := syncmodel.StatusOpen
	if issue.State == stateClosed {
		status = syncmodel.StatusClosed
	}

	var labels []string
	if category, ok := FirstCategoryLabel(issue.Labels, categoryKeys); ok {
		labels = []string{category}
	}

	var assigneeID *int64
	if issue.Assignee != nil {
		id := issue.Assignee.ID
		assigneeID = &id
	}

	var dueDate *string
	if issue.DueDate != "" {
		d := issue.DueDate
		dueDate = &d
	}

	return syncmodel.IssueView{
		ExternalID:  issue.IID,
		Title:       issue.Title,
		Description: issue.Description,
		Labels:      labels,
		AssigneeID:  assigneeID,
		DueDate:     dueDate,
		Status:      status,
		UpdatedAt:   issue.UpdatedAt.UTC(),
	}
}
