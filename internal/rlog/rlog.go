// Package rlog is the engine's plain-stderr logger, grounded on the
// teacher's fmt.Fprintf(os.Stderr, ...) convention rather than a
// structured logging library — the teacher never imports one directly
// either. Output is key=value pairs after a level-ish prefix; lipgloss
// styling is layered on top only for the status CLI path (see
// internal/rlog/style.go), never here.
package rlog

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

// Fields is an ordered-insignificant set of key=value pairs appended to a
// log line, sorted by key for deterministic output.
type Fields map[string]any

func (f Fields) String() string {
	if len(f) == 0 {
		return ""
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, f[k]))
	}
	return strings.Join(parts, " ")
}

func write(level, msg string, fields Fields) {
	ts := time.Now().UTC().Format(time.RFC3339)
	if f := fields.String(); f != "" {
		fmt.Fprintf(os.Stderr, "%s %s %s %s\n", ts, level, msg, f)
		return
	}
	fmt.Fprintf(os.Stderr, "%s %s %s\n", ts, level, msg)
}

// Infof logs an informational line.
func Infof(msg string, fields Fields) { write("INFO", msg, fields) }

// Warnf logs a recoverable-condition line.
func Warnf(msg string, fields Fields) { write("WARN", msg, fields) }

// Errorf logs a failed-operation line. err is included as the "err" field
// when non-nil.
func Errorf(msg string, err error, fields Fields) {
	if err != nil {
		if fields == nil {
			fields = Fields{}
		}
		fields["err"] = err.Error()
	}
	write("ERROR", msg, fields)
}

// RedactSecret returns a value safe to include in a log line: the first two
// and last two characters, with the middle collapsed, or "***" for very
// short values. Mirrors the teacher's care around not leaking API keys and
// tokens into debug output.
func RedactSecret(secret string) string {
	if len(secret) <= 4 {
		return "***"
	}
	return secret[:2] + "..." + secret[len(secret)-2:]
}
