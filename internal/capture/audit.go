package capture

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/sgx-labs/gitmemory/internal/memtypes"
)

// AuditEntry is a single line in the append-only blocked-capture audit log:
// gitmemory rejects the capture outright but preserves an audit trail of
// what was rejected and why, rather than silently dropping it.
type AuditEntry struct {
	Timestamp string           `json:"timestamp"`
	Namespace memtypes.Namespace `json:"namespace"`
	Domain    memtypes.Domain    `json:"domain"`
	Reason    string           `json:"reason"`
	Score     float64          `json:"score,omitempty"`
	Snippet   string           `json:"snippet"`
}

func auditLogPath(dataDir string) string {
	return filepath.Join(dataDir, "capture_audit.log")
}

// appendAudit appends entry to the blocked-capture audit log.
func appendAudit(dataDir string, entry AuditEntry) error {
	path := auditLogPath(dataDir)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// auditSnippet bounds how much of a blocked capture's content is retained in
// the audit trail.
func auditSnippet(s string) string {
	const max = 300
	if len(s) <= max {
		return s
	}
	return s[:max]
}
