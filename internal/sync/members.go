package sync

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rgsync/rgsync/internal/adapter"
	"github.com/rgsync/rgsync/internal/mapping"
	"github.com/rgsync/rgsync/internal/rlog"
)

// syntheticBotHandle matches GitLab's project/group bot account naming
// convention (spec §4.4 "platform-synthetic").
var syntheticBotHandle = regexp.MustCompile(`(?i)^(project|group)_\d+_bot(_|$)`)

// CorrelateMembers implements spec §4.4's crude-but-deterministic handle
// matching: for each linked project, fetch members from both platforms,
// compute a search key from each B-handle, and insert a User row for any
// A-member whose name contains that key and has no existing mapping.
func CorrelateMembers(ctx context.Context, store *mapping.Store, adapterA, adapterB adapter.Adapter, projectAID, projectBID int64) error {
	aMembers, err := adapterA.ListMembers(ctx, projectAID)
	if err != nil {
		return fmt.Errorf("list a-members for project %d: %w", projectAID, err)
	}
	bMembers, err := adapterB.ListMembers(ctx, projectBID)
	if err != nil {
		return fmt.Errorf("list b-members for project %d: %w", projectBID, err)
	}

	for _, b := range bMembers {
		if syntheticBotHandle.MatchString(b.Handle) {
			continue
		}
		key := searchKey(b.Handle)
		lowerKey := strings.ToLower(key)

		for _, a := range aMembers {
			if !strings.Contains(strings.ToLower(a.Name), lowerKey) {
				continue
			}
			existing, err := store.FindByExternalA(ctx, a.ExternalID)
			if err != nil && !errors.Is(err, mapping.ErrNotFound) {
				return fmt.Errorf("lookup existing user for a-id %d: %w", a.ExternalID, err)
			}
			if existing != nil {
				continue // existing rows are not mutated (spec §4.4)
			}
			aID, bID := a.ExternalID, b.ExternalID
			if _, err := store.UpsertUser(ctx, b.Handle, &aID, &bID); err != nil {
				rlog.Warnf("correlate member failed", rlog.Fields{"a_id": aID, "b_id": bID, "err": err.Error()})
			}
		}
	}
	return nil
}

// searchKey implements spec §4.4's handle-to-key heuristic:
//  1. split on '.', '_', '-'; if ≥2 parts, the key is the last part.
//  2. otherwise, if the handle is ≥4 chars, drop the first character.
//  3. otherwise, the key is the handle.
func searchKey(handle string) string {
	parts := strings.FieldsFunc(handle, func(r rune) bool {
		return r == '.' || r == '_' || r == '-'
	})
	if len(parts) >= 2 {
		return parts[len(parts)-1]
	}
	if len(handle) >= 4 {
		return handle[1:]
	}
	return handle
}
