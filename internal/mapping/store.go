// Package mapping is the durable repository for every entity in
// internal/syncmodel: projects, their B-side link, issue mappings and
// canonical snapshots, the user correlation table, and A's global
// tracker/status vocabulary (spec §3). It implements adapter.Resolver so
// both platform adapters can translate a neutral patch into native ids at
// patch time without depending on internal/sync.
//
// Grounded on the teacher's internal/storage package: modernc.org/sqlite as
// the pure-Go driver (no cgo at the edge deployment this engine targets),
// a forward-only numbered migration runner (internal/storage/sqlite/
// migrations), and connection-string pragma construction (connstring.go).
package mapping

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rgsync/rgsync/internal/syncmodel"
)

// Store is the sqlite-backed repository. A single Store is safe for
// concurrent use; modernc.org/sqlite serializes writers and busy_timeout
// rides out the rest (see dsn.go).
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the sqlite database at connectionString
// and applies any pending migrations.
func Open(ctx context.Context, connectionString string) (*Store, error) {
	dsn := sqliteConnString(connectionString)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mapping store: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: one writer connection avoids SQLITE_BUSY churn

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate mapping store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- Project ---

// UpsertProject inserts or updates a Project by its external A id and
// returns the row with its local ID populated.
func (s *Store) UpsertProject(ctx context.Context, externalAID int64, externalAKey string) (*syncmodel.Project, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (external_a_id, external_a_key) VALUES (?, ?)
		ON CONFLICT (external_a_id) DO UPDATE SET external_a_key = excluded.external_a_key
	`, externalAID, externalAKey)
	if err != nil {
		return nil, fmt.Errorf("upsert project %d: %w", externalAID, err)
	}
	return s.GetProjectByExternalA(ctx, externalAID)
}

// GetProjectByExternalA looks up a Project by its A-side id.
func (s *Store) GetProjectByExternalA(ctx context.Context, externalAID int64) (*syncmodel.Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, external_a_id, external_a_key, last_sync_at FROM projects WHERE external_a_id = ?
	`, externalAID)
	return scanProject(row)
}

// ListProjects returns every known Project.
func (s *Store) ListProjects(ctx context.Context) ([]syncmodel.Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, external_a_id, external_a_key, last_sync_at FROM projects`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []syncmodel.Project
	for rows.Next() {
		p, err := scanProjectRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// SetLastSyncAt records the completion time of the most recent reconciliation pass.
func (s *Store) SetLastSyncAt(ctx context.Context, projectID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE projects SET last_sync_at = ? WHERE id = ?`, at.UTC().Format(time.RFC3339), projectID)
	if err != nil {
		return fmt.Errorf("set last_sync_at for project %d: %w", projectID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*syncmodel.Project, error) {
	var p syncmodel.Project
	var lastSync sql.NullString
	if err := row.Scan(&p.ID, &p.ExternalAID, &p.ExternalAKey, &lastSync); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan project: %w", err)
	}
	if lastSync.Valid {
		t, err := time.Parse(time.RFC3339, lastSync.String)
		if err == nil {
			p.LastSyncAt = &t
		}
	}
	return &p, nil
}

func scanProjectRows(rows *sql.Rows) (*syncmodel.Project, error) {
	return scanProject(rows)
}

// --- RemoteProjectB ---

// UpsertRemoteProjectB links a Project to its B-side path, with the
// external id left nil until ResolveProjectID succeeds (spec §4.3).
func (s *Store) UpsertRemoteProjectB(ctx context.Context, projectID int64, pathWithNamespace, url string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO remote_projects_b (project_id, path_with_namespace, url) VALUES (?, ?, ?)
		ON CONFLICT (project_id) DO UPDATE SET path_with_namespace = excluded.path_with_namespace, url = excluded.url
	`, projectID, pathWithNamespace, url)
	if err != nil {
		return fmt.Errorf("upsert remote project b for project %d: %w", projectID, err)
	}
	return nil
}

// SetRemoteProjectBExternalID records the resolved B-side numeric project id.
func (s *Store) SetRemoteProjectBExternalID(ctx context.Context, projectID, externalBID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE remote_projects_b SET external_b_id = ? WHERE project_id = ?`, externalBID, projectID)
	if err != nil {
		return fmt.Errorf("set external_b_id for project %d: %w", projectID, err)
	}
	return nil
}

// GetRemoteProjectB returns the B-side half of a Project, or ErrNotFound if unlinked.
func (s *Store) GetRemoteProjectB(ctx context.Context, projectID int64) (*syncmodel.RemoteProjectB, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT project_id, external_b_id, path_with_namespace, url FROM remote_projects_b WHERE project_id = ?
	`, projectID)
	var r syncmodel.RemoteProjectB
	var externalBID sql.NullInt64
	if err := row.Scan(&r.ProjectID, &externalBID, &r.PathWithNamespace, &r.URL); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan remote project b: %w", err)
	}
	if externalBID.Valid {
		id := externalBID.Int64
		r.ExternalBID = &id
	}
	return &r, nil
}

// --- IssueMapping ---

// CreateIssueMapping inserts a new mapping row with no canonical snapshot
// yet (the transient window spec §3 describes between creation and the
// first successful reconciliation).
func (s *Store) CreateIssueMapping(ctx context.Context, projectID, externalAIssueID, externalBIssueID int64) (*syncmodel.IssueMapping, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO issue_mappings (project_id, external_a_issue_id, external_b_issue_id) VALUES (?, ?, ?)
	`, projectID, externalAIssueID, externalBIssueID)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, fmt.Errorf("%w: issue mapping for project %d a=%d b=%d already claimed: %v", ErrConflict, projectID, externalAIssueID, externalBIssueID, err)
		}
		return nil, fmt.Errorf("create issue mapping for project %d a=%d b=%d: %w", projectID, externalAIssueID, externalBIssueID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create issue mapping: %w", err)
	}
	return s.GetIssueMapping(ctx, id)
}

// GetIssueMapping looks up a mapping by its local id.
func (s *Store) GetIssueMapping(ctx context.Context, id int64) (*syncmodel.IssueMapping, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, external_a_issue_id, external_b_issue_id, canonical_json
		FROM issue_mappings WHERE id = ?
	`, id)
	return scanIssueMapping(row)
}

// GetIssueMappingByExternalA looks up a mapping by its A-side issue id within a project.
func (s *Store) GetIssueMappingByExternalA(ctx context.Context, projectID, externalAIssueID int64) (*syncmodel.IssueMapping, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, external_a_issue_id, external_b_issue_id, canonical_json
		FROM issue_mappings WHERE project_id = ? AND external_a_issue_id = ?
	`, projectID, externalAIssueID)
	return scanIssueMapping(row)
}

// GetIssueMappingByExternalB looks up a mapping by its B-side issue id within a project.
func (s *Store) GetIssueMappingByExternalB(ctx context.Context, projectID, externalBIssueID int64) (*syncmodel.IssueMapping, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, external_a_issue_id, external_b_issue_id, canonical_json
		FROM issue_mappings WHERE project_id = ? AND external_b_issue_id = ?
	`, projectID, externalBIssueID)
	return scanIssueMapping(row)
}

// ListIssueMappings returns every mapping for a project.
func (s *Store) ListIssueMappings(ctx context.Context, projectID int64) ([]syncmodel.IssueMapping, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, external_a_issue_id, external_b_issue_id, canonical_json
		FROM issue_mappings WHERE project_id = ?
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list issue mappings for project %d: %w", projectID, err)
	}
	defer rows.Close()

	var out []syncmodel.IssueMapping
	for rows.Next() {
		m, err := scanIssueMapping(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// UpdateCanonical persists the merge winner as the new canonical snapshot
// (spec §4.6 step 5).
func (s *Store) UpdateCanonical(ctx context.Context, mappingID int64, snapshot syncmodel.CanonicalSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal canonical snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `UPDATE issue_mappings SET canonical_json = ? WHERE id = ?`, string(data), mappingID)
	if err != nil {
		return fmt.Errorf("update canonical for mapping %d: %w", mappingID, err)
	}
	return nil
}

func scanIssueMapping(row rowScanner) (*syncmodel.IssueMapping, error) {
	var m syncmodel.IssueMapping
	var canonicalJSON sql.NullString
	if err := row.Scan(&m.ID, &m.ProjectID, &m.ExternalAIssueID, &m.ExternalBIssueID, &canonicalJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan issue mapping: %w", err)
	}
	if canonicalJSON.Valid && canonicalJSON.String != "" {
		var snap syncmodel.CanonicalSnapshot
		if err := json.Unmarshal([]byte(canonicalJSON.String), &snap); err != nil {
			return nil, fmt.Errorf("unmarshal canonical snapshot for mapping %d: %w", m.ID, err)
		}
		m.Canonical = &snap
	}
	return &m, nil
}

// DeleteIssueMapping removes a mapping, used when either side returns
// NotFound during reconciliation (spec §4.7).
func (s *Store) DeleteIssueMapping(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM issue_mappings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete issue mapping %d: %w", id, err)
	}
	return nil
}

// --- User correlation ---

// UpsertUser correlates the two platform ids under a single neutral row,
// keyed by displayKey (e.g. a shared email or handle convention). Either
// platform id may be nil but not both (spec §3 invariant).
//
// Insert-only: if a row already owns either platform id or this display
// key, that row is returned unmodified rather than merged into (spec §4.4
// "existing rows are not mutated") — this matters when two A-members would
// otherwise race to claim the same B-handle.
func (s *Store) UpsertUser(ctx context.Context, displayKey string, externalAUserID, externalBUserID *int64) (*syncmodel.User, error) {
	if externalAUserID == nil && externalBUserID == nil {
		return nil, fmt.Errorf("%w: user %q needs at least one platform id", ErrInvalidID, displayKey)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (display_key, external_a_user_id, external_b_user_id) VALUES (?, ?, ?)
		ON CONFLICT DO NOTHING
	`, displayKey, externalAUserID, externalBUserID)
	if err != nil {
		return nil, fmt.Errorf("insert user %q: %w", displayKey, err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return s.getUserByDisplayKey(ctx, displayKey)
	}

	if externalAUserID != nil {
		u, err := s.FindByExternalA(ctx, *externalAUserID)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	if externalBUserID != nil {
		u, err := s.FindByExternalB(ctx, *externalBUserID)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return s.getUserByDisplayKey(ctx, displayKey)
}

func (s *Store) getUserByDisplayKey(ctx context.Context, displayKey string) (*syncmodel.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, external_a_user_id, external_b_user_id, display_key FROM users WHERE display_key = ?
	`, displayKey)
	return scanUser(row)
}

func scanUser(row rowScanner) (*syncmodel.User, error) {
	var u syncmodel.User
	var a, b sql.NullInt64
	if err := row.Scan(&u.ID, &a, &b, &u.DisplayKey); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	if a.Valid {
		v := a.Int64
		u.ExternalAUserID = &v
	}
	if b.Valid {
		v := b.Int64
		u.ExternalBUserID = &v
	}
	return &u, nil
}

// FindByExternalA looks up the neutral User row owning an A-side user id.
func (s *Store) FindByExternalA(ctx context.Context, externalAUserID int64) (*syncmodel.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, external_a_user_id, external_b_user_id, display_key FROM users WHERE external_a_user_id = ?
	`, externalAUserID)
	return scanUser(row)
}

// FindByExternalB looks up the neutral User row owning a B-side user id.
func (s *Store) FindByExternalB(ctx context.Context, externalBUserID int64) (*syncmodel.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, external_a_user_id, external_b_user_id, display_key FROM users WHERE external_b_user_id = ?
	`, externalBUserID)
	return scanUser(row)
}

// ExternalAUserID implements adapter.Resolver.
func (s *Store) ExternalAUserID(ctx context.Context, userRowID int64) (int64, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT external_a_user_id FROM users WHERE id = ?`, userRowID)
	var id sql.NullInt64
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("resolve external a user id for %d: %w", userRowID, err)
	}
	return id.Int64, id.Valid, nil
}

// ExternalBUserID implements adapter.Resolver.
func (s *Store) ExternalBUserID(ctx context.Context, userRowID int64) (int64, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT external_b_user_id FROM users WHERE id = ?`, userRowID)
	var id sql.NullInt64
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("resolve external b user id for %d: %w", userRowID, err)
	}
	return id.Int64, id.Valid, nil
}

// --- TrackerA / StatusA (spec §4.2, refreshed each pass) ---

// ReplaceTrackersA replaces A's mirrored tracker vocabulary wholesale, the
// way the reconciler re-reads A's full tracker list every pass.
func (s *Store) ReplaceTrackersA(ctx context.Context, trackers []syncmodel.TrackerA) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace trackers: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM trackers_a`); err != nil {
		return fmt.Errorf("clear trackers_a: %w", err)
	}
	for _, t := range trackers {
		if _, err := tx.ExecContext(ctx, `INSERT INTO trackers_a (external_id, name) VALUES (?, ?)`, t.ExternalID, t.Name); err != nil {
			return fmt.Errorf("insert tracker %q: %w", t.Name, err)
		}
	}
	return tx.Commit()
}

// ReplaceStatusesA replaces A's mirrored status vocabulary wholesale.
func (s *Store) ReplaceStatusesA(ctx context.Context, statuses []syncmodel.StatusA) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace statuses: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM statuses_a`); err != nil {
		return fmt.Errorf("clear statuses_a: %w", err)
	}
	for _, st := range statuses {
		if _, err := tx.ExecContext(ctx, `INSERT INTO statuses_a (external_id, name) VALUES (?, ?)`, st.ExternalID, st.Name); err != nil {
			return fmt.Errorf("insert status %q: %w", st.Name, err)
		}
	}
	return tx.Commit()
}

// TrackerIDByName implements adapter.Resolver: case-insensitive lookup into
// the mirrored tracker vocabulary (spec §4.2 "case-insensitive name lookup").
func (s *Store) TrackerIDByName(ctx context.Context, name string) (int64, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT external_id FROM trackers_a WHERE name = ? COLLATE NOCASE`, name)
	var id int64
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("resolve tracker %q: %w", name, err)
	}
	return id, true, nil
}

// StatusIDByName implements adapter.Resolver: case-insensitive lookup into
// the mirrored status vocabulary.
func (s *Store) StatusIDByName(ctx context.Context, name string) (int64, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT external_id FROM statuses_a WHERE name = ? COLLATE NOCASE`, name)
	var id int64
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("resolve status %q: %w", name, err)
	}
	return id, true, nil
}
