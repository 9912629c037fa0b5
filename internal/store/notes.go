package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"github.com/sgx-labs/gitmemory/internal/memerr"
	"github.com/sgx-labs/gitmemory/internal/memtypes"
)

// contentHash digests a memory's full content, for the stored content_hash
// column consistency checks compare against without re-reading the object
// store on the indexed side.
func contentHash(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:])
}

// truncatePrefix bounds s to the derived index's content excerpt length,
// safe on multi-byte boundaries.
func truncatePrefix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Insert indexes a memory and its embedding. Insert is idempotent on
// memory.ID: re-inserting the same id replaces the prior row rather than
// duplicating it, so a repeated reindex converges rather than accumulates.
// Only a bounded excerpt of m.Content is stored, alongside a hash of the
// full content — the full body lives exclusively in the object store.
func (db *DB) Insert(m memtypes.Memory, embedding []float32) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tagsJSON, err := json.Marshal(m.Tags)
	if err != nil {
		return memerr.Wrap(memerr.KindIndexError, "store.Insert", err)
	}
	relatesJSON, err := json.Marshal(m.RelatesTo)
	if err != nil {
		return memerr.Wrap(memerr.KindIndexError, "store.Insert", err)
	}
	extraJSON, err := json.Marshal(m.Extra)
	if err != nil {
		return memerr.Wrap(memerr.KindIndexError, "store.Insert", err)
	}
	status := m.Status
	if status == "" {
		status = memtypes.StatusActive
	}
	prefix := truncatePrefix(m.Content, contentPrefixLen)
	hash := contentHash(m.Content)

	tx, err := db.conn.Begin()
	if err != nil {
		return memerr.Wrap(memerr.KindIndexError, "store.Insert", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM vec_memories WHERE memory_row_id = (SELECT id FROM memories WHERE memory_id = ?)`, m.ID); err != nil {
		return memerr.Wrap(memerr.KindIndexError, "store.Insert", err)
	}

	res, err := tx.Exec(`
		INSERT INTO memories (memory_id, namespace, domain, summary, content_prefix, content_hash, commit_ref, ordinal, tags, spec, status, relates_to, extra, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(memory_id) DO UPDATE SET
			namespace = excluded.namespace, domain = excluded.domain, summary = excluded.summary,
			content_prefix = excluded.content_prefix, content_hash = excluded.content_hash,
			commit_ref = excluded.commit_ref, ordinal = excluded.ordinal,
			tags = excluded.tags, spec = excluded.spec, status = excluded.status,
			relates_to = excluded.relates_to, extra = excluded.extra, timestamp = excluded.timestamp`,
		m.ID, string(m.Namespace), string(m.Domain), m.Summary, prefix, hash, m.CommitRef, m.Ordinal,
		string(tagsJSON), m.Spec, string(status), string(relatesJSON), string(extraJSON), m.Timestamp.Unix(),
	)
	if err != nil {
		return memerr.Wrap(memerr.KindIndexError, "store.Insert", err)
	}
	rowID, err := res.LastInsertId()
	if err != nil || rowID == 0 {
		// ON CONFLICT DO UPDATE doesn't populate LastInsertId on sqlite3;
		// look the row up explicitly.
		if err := tx.QueryRow(`SELECT id FROM memories WHERE memory_id = ?`, m.ID).Scan(&rowID); err != nil {
			return memerr.Wrap(memerr.KindIndexError, "store.Insert", err)
		}
	}

	if len(embedding) > 0 {
		vecData, err := sqlite_vec.SerializeFloat32(embedding)
		if err != nil {
			return memerr.Wrap(memerr.KindIndexError, "store.Insert", fmt.Errorf("serialize embedding: %w", err))
		}
		if _, err := tx.Exec(`INSERT INTO vec_memories (memory_row_id, embedding) VALUES (?, ?)`, rowID, vecData); err != nil {
			return memerr.Wrap(memerr.KindIndexError, "store.Insert", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return memerr.Wrap(memerr.KindIndexError, "store.Insert", err)
	}
	return nil
}

// row is the shared scan target for every query that returns memory rows.
// contentPrefix is a bounded excerpt used for text search and SUMMARY-level
// reads; the full body lives only in the object store and is hydrated
// on-demand by recall.Hydrate/HydrateBatch.
type row struct {
	memoryID      string
	namespace     string
	domain        string
	summary       string
	contentPrefix string
	contentHash   string
	commitRef     string
	ordinal       int
	tags          string
	spec          string
	status        string
	relatesTo     string
	extra         string
	timestamp     int64
	confidence    float64
}

func scanRow(scanner interface {
	Scan(dest ...any) error
}) (row, error) {
	var r row
	err := scanner.Scan(
		&r.memoryID, &r.namespace, &r.domain, &r.summary, &r.contentPrefix, &r.contentHash, &r.commitRef, &r.ordinal,
		&r.tags, &r.spec, &r.status, &r.relatesTo, &r.extra, &r.timestamp, &r.confidence,
	)
	return r, err
}

func (r row) toMemory() (memtypes.Memory, error) {
	var tags, relatesTo []string
	var extra map[string]any
	if err := json.Unmarshal([]byte(r.tags), &tags); err != nil {
		return memtypes.Memory{}, err
	}
	if err := json.Unmarshal([]byte(r.relatesTo), &relatesTo); err != nil {
		return memtypes.Memory{}, err
	}
	if err := json.Unmarshal([]byte(r.extra), &extra); err != nil {
		return memtypes.Memory{}, err
	}
	return memtypes.Memory{
		ID:        r.memoryID,
		Namespace: memtypes.Namespace(r.namespace),
		Domain:    memtypes.Domain(r.domain),
		Summary:   r.summary,
		// Content here is only the bounded excerpt stored in the index.
		// recall.Hydrate/HydrateBatch overwrite it with the full object
		// store body at FULL/FILES hydration levels.
		Content:   r.contentPrefix,
		CommitRef: r.commitRef,
		Ordinal:   r.ordinal,
		Tags:      tags,
		Spec:      r.spec,
		Status:    memtypes.Status(r.status),
		RelatesTo: relatesTo,
		Extra:     extra,
		Timestamp: time.Unix(r.timestamp, 0).UTC(),
	}, nil
}

const memoryColumns = `memory_id, namespace, domain, summary, content_prefix, content_hash, commit_ref, ordinal, tags, spec, status, relates_to, extra, timestamp, confidence`

// Get retrieves a single memory by id.
func (db *DB) Get(memoryID string) (memtypes.Memory, error) {
	r, err := scanRow(db.conn.QueryRow(`SELECT `+memoryColumns+` FROM memories WHERE memory_id = ?`, memoryID))
	if err == sql.ErrNoRows {
		return memtypes.Memory{}, memerr.New(memerr.KindNotFound, "store.Get", "memory not found: "+memoryID)
	}
	if err != nil {
		return memtypes.Memory{}, memerr.Wrap(memerr.KindIndexError, "store.Get", err)
	}
	return r.toMemory()
}

// GetByNamespace returns all active memories in a namespace, newest first.
func (db *DB) GetByNamespace(ns memtypes.Namespace, domain memtypes.Domain, limit int) ([]memtypes.Memory, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.Query(`
		SELECT `+memoryColumns+` FROM memories
		WHERE namespace = ? AND domain = ? AND status = 'active'
		ORDER BY timestamp DESC LIMIT ?`,
		string(ns), string(domain), limit,
	)
	if err != nil {
		return nil, memerr.Wrap(memerr.KindIndexError, "store.GetByNamespace", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// GetBySpec returns all active memories tagged with the given spec
// identifier, across namespaces.
func (db *DB) GetBySpec(spec string, domain memtypes.Domain) ([]memtypes.Memory, error) {
	rows, err := db.conn.Query(`
		SELECT `+memoryColumns+` FROM memories
		WHERE spec = ? AND domain = ? AND status = 'active'
		ORDER BY timestamp DESC`,
		spec, string(domain),
	)
	if err != nil {
		return nil, memerr.Wrap(memerr.KindIndexError, "store.GetBySpec", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// ListRecent returns the most recently captured active memories across all
// namespaces for a domain.
func (db *DB) ListRecent(domain memtypes.Domain, limit int) ([]memtypes.Memory, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT `+memoryColumns+` FROM memories
		WHERE domain = ? AND status = 'active'
		ORDER BY timestamp DESC LIMIT ?`,
		string(domain), limit,
	)
	if err != nil {
		return nil, memerr.Wrap(memerr.KindIndexError, "store.ListRecent", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// AllMemoryIDs returns every memory_id currently indexed for a domain,
// regardless of status — used by Sync Service's verify_consistency to diff
// against the object store's full note list.
func (db *DB) AllMemoryIDs(domain memtypes.Domain) ([]string, error) {
	rows, err := db.conn.Query(`SELECT memory_id FROM memories WHERE domain = ?`, string(domain))
	if err != nil {
		return nil, memerr.Wrap(memerr.KindIndexError, "store.AllMemoryIDs", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, memerr.Wrap(memerr.KindIndexError, "store.AllMemoryIDs", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AllContentHashes returns the stored content_hash for every memory indexed
// in a domain, keyed by memory_id — used by Sync Service's verify_consistency
// to detect corruption without re-reading every object store body's indexed
// counterpart.
func (db *DB) AllContentHashes(domain memtypes.Domain) (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT memory_id, content_hash FROM memories WHERE domain = ?`, string(domain))
	if err != nil {
		return nil, memerr.Wrap(memerr.KindIndexError, "store.AllContentHashes", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var id, hash string
		if err := rows.Scan(&id, &hash); err != nil {
			return nil, memerr.Wrap(memerr.KindIndexError, "store.AllContentHashes", err)
		}
		out[id] = hash
	}
	return out, rows.Err()
}

// Delete removes a memory from the index (used by repair to drop orphans —
// rows present in DI with no corresponding OSA note).
func (db *DB) Delete(memoryID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, err := db.conn.Exec(`DELETE FROM vec_memories WHERE memory_row_id = (SELECT id FROM memories WHERE memory_id = ?)`, memoryID); err != nil {
		return memerr.Wrap(memerr.KindIndexError, "store.Delete", err)
	}
	if _, err := db.conn.Exec(`DELETE FROM memories WHERE memory_id = ?`, memoryID); err != nil {
		return memerr.Wrap(memerr.KindIndexError, "store.Delete", err)
	}
	return nil
}

// DeleteAll clears every row for a domain, used by `sync full --force` to
// rebuild the index from scratch. It also clears the recorded embedding
// metadata, so a subsequent reindex under a different provider or model
// doesn't trip CheckEmbeddingMeta against the stale values.
func (db *DB) DeleteAll(domain memtypes.Domain) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, err := db.conn.Exec(`
		DELETE FROM vec_memories WHERE memory_row_id IN (SELECT id FROM memories WHERE domain = ?)`, string(domain)); err != nil {
		return memerr.Wrap(memerr.KindIndexError, "store.DeleteAll", err)
	}
	if _, err := db.conn.Exec(`DELETE FROM memories WHERE domain = ?`, string(domain)); err != nil {
		return memerr.Wrap(memerr.KindIndexError, "store.DeleteAll", err)
	}
	if _, err := db.conn.Exec(`DELETE FROM schema_meta WHERE key IN ('embed_provider', 'embed_model', 'embed_dims')`); err != nil {
		return memerr.Wrap(memerr.KindIndexError, "store.DeleteAll", err)
	}
	return nil
}

// Stats summarizes the index for `gitmem status`.
type Stats struct {
	TotalMemories int
	ByNamespace   map[string]int
	SchemaVersion int
	FTSAvailable  bool
	LastReindex   string
}

// Stats reports index-level counts and metadata.
func (db *DB) Stats(domain memtypes.Domain) (Stats, error) {
	s := Stats{ByNamespace: map[string]int{}, SchemaVersion: db.SchemaVersion(), FTSAvailable: db.ftsAvailable}
	if v, ok := db.GetMeta("last_reindex_time"); ok {
		s.LastReindex = v
	}

	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM memories WHERE domain = ? AND status = 'active'`, string(domain)).Scan(&s.TotalMemories); err != nil {
		return s, memerr.Wrap(memerr.KindIndexError, "store.Stats", err)
	}

	rows, err := db.conn.Query(`SELECT namespace, COUNT(*) FROM memories WHERE domain = ? AND status = 'active' GROUP BY namespace`, string(domain))
	if err != nil {
		return s, memerr.Wrap(memerr.KindIndexError, "store.Stats", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ns string
		var count int
		if err := rows.Scan(&ns, &count); err != nil {
			return s, memerr.Wrap(memerr.KindIndexError, "store.Stats", err)
		}
		s.ByNamespace[ns] = count
	}
	return s, rows.Err()
}

func scanMemories(rows *sql.Rows) ([]memtypes.Memory, error) {
	var out []memtypes.Memory
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, memerr.Wrap(memerr.KindIndexError, "store.scanMemories", err)
		}
		m, err := r.toMemory()
		if err != nil {
			return nil, memerr.Wrap(memerr.KindIndexError, "store.scanMemories", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
