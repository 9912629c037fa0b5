package store

import (
	"fmt"
	"strings"
	"time"
)

// maxHookActivityRows bounds how much hook history the index retains; older
// rows are pruned on every insert so this table never grows unbounded.
const maxHookActivityRows = 500

// HookActivityRecord summarizes one hook transport invocation.
type HookActivityRecord struct {
	TimestampUnix    int64
	HookName         string
	Status           string
	SurfacedMemories int
	EstimatedTokens  int
	ErrorMessage     string
}

// InsertHookActivity appends a hook activity row and prunes anything past
// maxHookActivityRows. Best-effort by contract: the hook transport calls
// this after already emitting its response, so a failure here never affects
// what the host process sees.
func (db *DB) InsertHookActivity(rec HookActivityRecord) error {
	ts := rec.TimestampUnix
	if ts <= 0 {
		ts = time.Now().Unix()
	}
	status := strings.ToLower(strings.TrimSpace(rec.Status))
	if status == "" {
		status = "empty"
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(`
		INSERT INTO hook_activity (timestamp_unix, hook_name, status, surfaced_memories, estimated_tokens, error_message)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ts, rec.HookName, status, max(rec.SurfacedMemories, 0), max(rec.EstimatedTokens, 0), rec.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("insert hook activity: %w", err)
	}

	_, _ = db.conn.Exec(`
		DELETE FROM hook_activity
		WHERE id NOT IN (SELECT id FROM hook_activity ORDER BY timestamp_unix DESC, id DESC LIMIT ?)`,
		maxHookActivityRows,
	)
	return nil
}

// GetRecentHookActivity returns the most recent hook activity rows,
// newest first.
func (db *DB) GetRecentHookActivity(limit int) ([]HookActivityRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := db.conn.Query(`
		SELECT timestamp_unix, hook_name, status, surfaced_memories, estimated_tokens, error_message
		FROM hook_activity
		ORDER BY timestamp_unix DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query hook activity: %w", err)
	}
	defer rows.Close()

	var out []HookActivityRecord
	for rows.Next() {
		var rec HookActivityRecord
		if err := rows.Scan(&rec.TimestampUnix, &rec.HookName, &rec.Status, &rec.SurfacedMemories, &rec.EstimatedTokens, &rec.ErrorMessage); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
