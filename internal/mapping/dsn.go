package mapping

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// lockTimeoutEnv overrides the default busy_timeout, grounded on the
// teacher's storage.SQLiteConnString / BD_LOCK_TIMEOUT convention, renamed
// to this project's RGSYNC_ prefix.
const lockTimeoutEnv = "RGSYNC_LOCK_TIMEOUT"

const defaultBusyTimeout = 30 * time.Second

// sqliteConnString builds a modernc.org/sqlite connection string with the
// pragmas this engine needs under concurrent poll-driver + CLI access:
// busy_timeout to ride out writer contention, foreign_keys to enforce the
// mapping/project/user referential integrity, and time_format so scanned
// timestamps round-trip through time.Time without a manual layout.
func sqliteConnString(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}

	busy := defaultBusyTimeout
	if v := strings.TrimSpace(os.Getenv(lockTimeoutEnv)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			busy = d
		}
	}
	busyMs := int64(busy / time.Millisecond)

	if strings.HasPrefix(path, "file:") {
		conn := path
		sep := "?"
		if strings.Contains(conn, "?") {
			sep = "&"
		}
		if !strings.Contains(conn, "_pragma=busy_timeout") {
			conn += fmt.Sprintf("%s_pragma=busy_timeout(%d)", sep, busyMs)
			sep = "&"
		}
		if !strings.Contains(conn, "_pragma=foreign_keys") {
			conn += sep + "_pragma=foreign_keys(ON)"
			sep = "&"
		}
		if !strings.Contains(conn, "_time_format=") {
			conn += sep + "_time_format=sqlite"
		}
		return conn
	}

	return fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)&_pragma=busy_timeout(%d)&_time_format=sqlite", path, busyMs)
}
