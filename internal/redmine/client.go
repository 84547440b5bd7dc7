package redmine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rgsync/rgsync/internal/httpx"
)

const pageSize = 100

// Client is the thin HTTP binding to one Redmine instance, grounded on the
// teacher's jira.Client: a base URL, a credential, and a retrying httpx
// client underneath (see internal/httpx) instead of a bare http.Client,
// since spec §5 puts retry/backoff in the HTTP layer rather than the
// adapter contract.
type Client struct {
	baseURL string
	http    *httpx.Client
}

// NewClient builds a Client authenticating with Redmine's X-Redmine-API-Key
// header convention.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http: httpx.New(func(r *http.Request) {
			r.Header.Set("X-Redmine-API-Key", apiKey)
		}, "rgsync-redmine/1.0"),
	}
}

// ListTrackers returns A's global tracker vocabulary (spec §4.2).
func (c *Client) ListTrackers(ctx context.Context) ([]Tracker, error) {
	body, _, err := c.http.Do(ctx, "GET", c.baseURL+"/trackers.json", nil)
	if err != nil {
		return nil, fmt.Errorf("list trackers: %w", err)
	}
	var env trackersEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("parse trackers: %w", err)
	}
	return env.Trackers, nil
}

// ListStatuses returns A's global status vocabulary (spec §4.2).
func (c *Client) ListStatuses(ctx context.Context) ([]IssueStatus, error) {
	body, _, err := c.http.Do(ctx, "GET", c.baseURL+"/issue_statuses.json", nil)
	if err != nil {
		return nil, fmt.Errorf("list issue statuses: %w", err)
	}
	var env issueStatusesEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("parse issue statuses: %w", err)
	}
	return env.IssueStatuses, nil
}

// ListProjects enumerates every project the API key can see, paging until
// exhaustion (spec §4.1 "listProjects").
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var all []Project
	offset := 0
	for {
		params := url.Values{
			"limit":  {strconv.Itoa(pageSize)},
			"offset": {strconv.Itoa(offset)},
		}
		apiURL := fmt.Sprintf("%s/projects.json?%s", c.baseURL, params.Encode())
		body, _, err := c.http.Do(ctx, "GET", apiURL, nil)
		if err != nil {
			return nil, fmt.Errorf("list projects: %w", err)
		}
		var env projectsEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, fmt.Errorf("parse projects: %w", err)
		}
		all = append(all, env.Projects...)
		offset += len(env.Projects)
		if len(env.Projects) == 0 || offset >= env.TotalCount {
			break
		}
	}
	return all, nil
}

// ListMemberships returns a project's memberships (spec §4.1 "listMembers").
func (c *Client) ListMemberships(ctx context.Context, projectID int64) ([]Membership, error) {
	var all []Membership
	offset := 0
	for {
		params := url.Values{
			"limit":  {strconv.Itoa(pageSize)},
			"offset": {strconv.Itoa(offset)},
		}
		apiURL := fmt.Sprintf("%s/projects/%d/memberships.json?%s", c.baseURL, projectID, params.Encode())
		body, _, err := c.http.Do(ctx, "GET", apiURL, nil)
		if err != nil {
			return nil, fmt.Errorf("list memberships for project %d: %w", projectID, err)
		}
		var env membershipsEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, fmt.Errorf("parse memberships: %w", err)
		}
		all = append(all, env.Memberships...)
		offset += len(env.Memberships)
		if len(env.Memberships) == 0 || offset >= env.TotalCount {
			break
		}
	}
	return all, nil
}

// ListIssues returns every issue in a project in any state, paging until
// exhaustion (spec §4.1 "listIssues", "any state").
func (c *Client) ListIssues(ctx context.Context, projectID int64) ([]Issue, error) {
	var all []Issue
	offset := 0
	for {
		params := url.Values{
			"project_id": {strconv.FormatInt(projectID, 10)},
			"status_id":  {"*"},
			"limit":      {strconv.Itoa(pageSize)},
			"offset":     {strconv.Itoa(offset)},
		}
		apiURL := fmt.Sprintf("%s/issues.json?%s", c.baseURL, params.Encode())
		body, _, err := c.http.Do(ctx, "GET", apiURL, nil)
		if err != nil {
			return nil, fmt.Errorf("list issues for project %d: %w", projectID, err)
		}
		var env issuesEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, fmt.Errorf("parse issues: %w", err)
		}
		all = append(all, env.Issues...)
		offset += len(env.Issues)
		if len(env.Issues) == 0 || offset >= env.TotalCount {
			break
		}
	}
	return all, nil
}

// GetIssue fetches a single issue by id. A 404 from the HTTP layer is
// translated to adapter.ErrNotFound by the caller (internal/redmine/adapter.go).
func (c *Client) GetIssue(ctx context.Context, issueID int64) (*Issue, int, error) {
	apiURL := fmt.Sprintf("%s/issues/%d.json", c.baseURL, issueID)
	body, status, err := c.http.Do(ctx, "GET", apiURL, nil)
	if err != nil {
		return nil, status, err
	}
	var env issueEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, status, fmt.Errorf("parse issue: %w", err)
	}
	return &env.Issue, status, nil
}

// CreateIssue POSTs a new issue and returns Redmine's representation of it.
func (c *Client) CreateIssue(ctx context.Context, fields map[string]any) (*Issue, error) {
	data, err := json.Marshal(map[string]any{"issue": fields})
	if err != nil {
		return nil, fmt.Errorf("marshal create request: %w", err)
	}
	body, _, err := c.http.Do(ctx, "POST", c.baseURL+"/issues.json", data)
	if err != nil {
		return nil, fmt.Errorf("create issue: %w", err)
	}
	var env issueEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("parse create response: %w", err)
	}
	return &env.Issue, nil
}

// UpdateIssue PUTs a partial fields map; Redmine returns 200 with an empty
// body on success.
func (c *Client) UpdateIssue(ctx context.Context, issueID int64, fields map[string]any) error {
	data, err := json.Marshal(map[string]any{"issue": fields})
	if err != nil {
		return fmt.Errorf("marshal update request: %w", err)
	}
	apiURL := fmt.Sprintf("%s/issues/%d.json", c.baseURL, issueID)
	_, _, err = c.http.Do(ctx, "PUT", apiURL, data)
	if err != nil {
		return fmt.Errorf("update issue %d: %w", issueID, err)
	}
	return nil
}

// ParseTimestamp parses Redmine's ISO 8601 timestamp format
// ("2024-01-15T10:30:00Z"), grounded on the teacher's jira.ParseTimestamp.
func ParseTimestamp(ts string) (time.Time, error) {
	if ts == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	formats := []string{time.RFC3339, time.RFC3339Nano, "2006-01-02T15:04:05Z"}
	for _, format := range formats {
		if t, err := time.Parse(format, ts); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %s", ts)
}
