// Package sync is the reconciliation core (spec §4.2-§4.8): the reference
// cache refresh, project discovery, member correlator, pair discoverer,
// three-way reconciler, and poll driver. It depends only on
// internal/adapter, internal/mapping, and internal/syncmodel — never on a
// concrete platform package — so it can drive any pair of conforming
// adapters. Grounded on the teacher's internal/merge (three-way merge
// idiom) and internal/tracker (engine orchestration shape), rewritten
// around this spec's in-memory IssueView/CanonicalSnapshot rather than
// beads' JSONL-file merge inputs.
package sync

import "strings"

const sourcePrefix = "Source:"

// NormalizeDescription drops an existing leading "Source: ..." line
// (case-insensitive) from desc and prepends a fresh one pointing at
// counterpartURL, followed by a blank line if a body remains (spec §4.5
// "The Source: line management is centralized... idempotent").
func NormalizeDescription(desc, counterpartURL string) string {
	body := stripSourceLine(desc)
	line := sourcePrefix + " " + counterpartURL
	if body == "" {
		return line
	}
	return line + "\n\n" + body
}

// stripSourceLine removes a leading "Source:" line and the blank line that
// may follow it, returning whatever body remains.
func stripSourceLine(desc string) string {
	lines := strings.SplitN(desc, "\n", 2)
	if len(lines) == 0 {
		return desc
	}
	first := strings.TrimSpace(lines[0])
	if !strings.HasPrefix(strings.ToLower(first), strings.ToLower(sourcePrefix)) {
		return desc
	}
	if len(lines) == 1 {
		return ""
	}
	rest := lines[1]
	rest = strings.TrimPrefix(rest, "\n")
	return rest
}
