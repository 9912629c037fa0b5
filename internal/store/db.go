// Package store is the Derived Index: a SQLite + sqlite-vec database that
// must always be rebuildable from the object store. It exclusively owns the
// embedding and the query accelerators.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sgx-labs/gitmemory/internal/memerr"
)

func init() {
	sqlite_vec.Auto()
}

// SchemaVersion is the schema version this binary knows how to write.
// Opening a database whose stored version is ahead of this is refused
// outright.
const SchemaVersion = 4

// contentPrefixLen bounds the excerpt of a memory's content kept in the
// derived index for text search. Full content lives only in the object
// store; a row in this index is never a substitute for hydrating it.
const contentPrefixLen = 500

// DB wraps a SQLite connection with sqlite-vec and FTS5 support.
type DB struct {
	conn         *sql.DB
	mu           sync.Mutex // serialize writes; SQLite allows only one writer at a time
	ftsAvailable bool
	embeddingDim int
}

// OpenPath opens or creates the derived index at path, sized for
// embeddingDim-wide vectors.
func OpenPath(path string, embeddingDim int) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, memerr.Wrap(memerr.KindStoreUnavailable, "store.OpenPath", fmt.Errorf("create data dir: %w", err))
	}

	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, memerr.Wrap(memerr.KindStoreUnavailable, "store.OpenPath", fmt.Errorf("open db: %w", err))
	}

	var vecVersion string
	if err := conn.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		conn.Close()
		return nil, memerr.Wrap(memerr.KindStoreUnavailable, "store.OpenPath", fmt.Errorf("sqlite-vec not available: %w", err))
	}

	db := &DB{conn: conn, embeddingDim: embeddingDim}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// OpenMemory opens an in-memory database, for tests.
func OpenMemory(embeddingDim int) (*DB, error) {
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, memerr.Wrap(memerr.KindStoreUnavailable, "store.OpenMemory", err)
	}
	db := &DB{conn: conn, embeddingDim: embeddingDim}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying sql.DB, for callers that need direct queries
// (e.g. the doctor-style diagnostics in `gitmem status --verbose`).
func (db *DB) Conn() *sql.DB {
	return db.conn
}

func (db *DB) migrate() error {
	baseline := []string{
		`CREATE TABLE IF NOT EXISTS schema_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS memories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			memory_id TEXT NOT NULL UNIQUE,
			namespace TEXT NOT NULL,
			domain TEXT NOT NULL,
			summary TEXT NOT NULL,
			content_prefix TEXT NOT NULL DEFAULT '',
			content_hash TEXT NOT NULL DEFAULT '',
			commit_ref TEXT NOT NULL,
			ordinal INTEGER NOT NULL DEFAULT 0,
			tags TEXT DEFAULT '[]',
			spec TEXT DEFAULT '',
			status TEXT NOT NULL DEFAULT 'active',
			relates_to TEXT DEFAULT '[]',
			extra TEXT DEFAULT '{}',
			timestamp INTEGER NOT NULL,
			confidence REAL DEFAULT 0.5,
			access_count INTEGER DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_namespace ON memories(namespace)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_domain ON memories(domain)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_status ON memories(status)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_spec ON memories(spec)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_commit_ref ON memories(commit_ref)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_namespace_timestamp ON memories(namespace, timestamp DESC)`,

		fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS vec_memories USING vec0(
			memory_row_id INTEGER PRIMARY KEY,
			embedding float[%d]
		)`, db.embeddingDim),
	}
	for _, stmt := range baseline {
		if _, err := db.conn.Exec(stmt); err != nil {
			return memerr.Wrap(memerr.KindIndexError, "store.migrate", fmt.Errorf("baseline migration: %w\nSQL: %s", err, stmt))
		}
	}

	storedVersion := db.SchemaVersion()
	if storedVersion > SchemaVersion {
		return memerr.New(memerr.KindConfiguration, "store.migrate",
			fmt.Sprintf("database schema version %d is ahead of this binary's known version %d — upgrade gitmem", storedVersion, SchemaVersion))
	}

	versioned := []struct {
		version int
		fn      func() error
	}{
		{1, db.migrateV1},
		{2, db.migrateV2},
		{3, db.migrateV3},
		{4, db.migrateV4},
	}
	for _, m := range versioned {
		if storedVersion < m.version {
			if err := m.fn(); err != nil {
				return memerr.Wrap(memerr.KindIndexError, "store.migrate", fmt.Errorf("migration v%d: %w", m.version, err))
			}
			if err := db.SetMeta("schema_version", strconv.Itoa(m.version)); err != nil {
				return memerr.Wrap(memerr.KindIndexError, "store.migrate", fmt.Errorf("record migration v%d: %w", m.version, err))
			}
		}
	}
	return nil
}

// migrateV1 establishes schema version 1 as the post-baseline state.
func (db *DB) migrateV1() error {
	return nil
}

// migrateV2 creates an FTS5 virtual table for keyword fallback search.
// Best-effort: FTS5 may not be available on every SQLite build, and its
// absence is non-fatal — text search then falls back to LIKE-based
// scanning.
func (db *DB) migrateV2() error {
	_, err := db.conn.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
		summary, content_prefix,
		content=memories, content_rowid=id
	)`)
	if err != nil {
		db.ftsAvailable = false
		return nil
	}
	db.ftsAvailable = true
	_, _ = db.conn.Exec(`INSERT INTO memories_fts(memories_fts) VALUES('rebuild')`)
	return nil
}

// migrateV3 creates the hook_activity table the hook transport logs each
// lifecycle invocation to.
func (db *DB) migrateV3() error {
	_, err := db.conn.Exec(`CREATE TABLE IF NOT EXISTS hook_activity (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp_unix INTEGER NOT NULL,
		hook_name TEXT NOT NULL,
		status TEXT NOT NULL,
		surfaced_memories INTEGER NOT NULL DEFAULT 0,
		estimated_tokens INTEGER NOT NULL DEFAULT 0,
		error_message TEXT DEFAULT ''
	)`)
	if err != nil {
		return fmt.Errorf("create hook_activity: %w", err)
	}
	_, err = db.conn.Exec(`CREATE INDEX IF NOT EXISTS idx_hook_activity_timestamp ON hook_activity(timestamp_unix DESC)`)
	return err
}

// migrateV4 replaces the memories table's full content column with
// content_prefix (a bounded excerpt for text search) and content_hash (a
// stored digest verify_consistency compares against, instead of
// recomputing content hashes from both sides on every pass). A database
// created under the current baseline already has these columns and this
// is a no-op; one created under schema <4 still has the old content
// column and needs backfilling.
func (db *DB) migrateV4() error {
	if !db.hasColumn("memories", "content") {
		return nil
	}
	if !db.hasColumn("memories", "content_prefix") {
		if _, err := db.conn.Exec(`ALTER TABLE memories ADD COLUMN content_prefix TEXT NOT NULL DEFAULT ''`); err != nil {
			return fmt.Errorf("add content_prefix: %w", err)
		}
	}
	if !db.hasColumn("memories", "content_hash") {
		if _, err := db.conn.Exec(`ALTER TABLE memories ADD COLUMN content_hash TEXT NOT NULL DEFAULT ''`); err != nil {
			return fmt.Errorf("add content_hash: %w", err)
		}
	}
	if _, err := db.conn.Exec(`UPDATE memories SET content_prefix = substr(content, 1, ?)`, contentPrefixLen); err != nil {
		return fmt.Errorf("backfill content_prefix: %w", err)
	}
	if _, err := db.conn.Exec(`ALTER TABLE memories DROP COLUMN content`); err != nil {
		return fmt.Errorf("drop content column: %w", err)
	}
	if !db.ftsAvailable {
		return nil
	}
	if _, err := db.conn.Exec(`DROP TABLE IF EXISTS memories_fts`); err != nil {
		return fmt.Errorf("drop stale fts table: %w", err)
	}
	if _, err := db.conn.Exec(`CREATE VIRTUAL TABLE memories_fts USING fts5(
		summary, content_prefix,
		content=memories, content_rowid=id
	)`); err != nil {
		return fmt.Errorf("recreate fts table: %w", err)
	}
	_, err := db.conn.Exec(`INSERT INTO memories_fts(memories_fts) VALUES('rebuild')`)
	return err
}

// hasColumn reports whether table has the named column, for migrations that
// must behave differently depending on the schema version a database was
// originally created under.
func (db *DB) hasColumn(table, column string) bool {
	rows, err := db.conn.Query(fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return false
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var name, ctype string
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return false
		}
		if name == column {
			return true
		}
	}
	return false
}

// SchemaVersion returns the currently stored schema version (0 if unset).
func (db *DB) SchemaVersion() int {
	v, ok := db.GetMeta("schema_version")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// GetMeta reads a value from schema_meta. Returns ("", false) if not found.
func (db *DB) GetMeta(key string) (string, bool) {
	var value string
	err := db.conn.QueryRow(`SELECT value FROM schema_meta WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return "", false
	}
	return value, true
}

// SetMeta writes a key-value pair to schema_meta.
func (db *DB) SetMeta(key, value string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	_, err := db.conn.Exec(
		`INSERT INTO schema_meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// RebuildFTS rebuilds the FTS5 index. No-op if FTS5 is unavailable.
func (db *DB) RebuildFTS() error {
	if !db.ftsAvailable {
		return nil
	}
	_, err := db.conn.Exec(`INSERT INTO memories_fts(memories_fts) VALUES('rebuild')`)
	return err
}

// IntegrityCheck runs PRAGMA integrity_check.
func (db *DB) IntegrityCheck() error {
	var result string
	if err := db.conn.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return memerr.Wrap(memerr.KindIndexError, "store.IntegrityCheck", err)
	}
	if result != "ok" {
		return memerr.New(memerr.KindIndexError, "store.IntegrityCheck", result)
	}
	return nil
}

// CheckEmbeddingMeta compares the given embedding config against what was
// used at last reindex, returning a typed error on a dimension mismatch (the
// most critical, since it silently corrupts KNN distances) or a model
// mismatch. No stored metadata is always compatible (first index / upgrade).
func (db *DB) CheckEmbeddingMeta(provider, model string, dims int) error {
	storedProvider, hasProvider := db.GetMeta("embed_provider")
	storedModel, hasModel := db.GetMeta("embed_model")
	storedDimsStr, hasDims := db.GetMeta("embed_dims")

	if !hasProvider && !hasModel && !hasDims {
		return nil
	}
	storedDims, _ := strconv.Atoi(storedDimsStr)

	if hasDims && dims > 0 && storedDims > 0 && storedDims != dims {
		return memerr.New(memerr.KindEmbeddingDimension, "store.CheckEmbeddingMeta",
			fmt.Sprintf("embedding dimensions changed from %d to %d — run 'gitmem sync full --force' to rebuild", storedDims, dims))
	}
	if hasProvider && hasModel && (storedProvider != provider || storedModel != model) {
		return memerr.New(memerr.KindEmbeddingDimension, "store.CheckEmbeddingMeta",
			fmt.Sprintf("embedding model changed from %s/%s to %s/%s — run 'gitmem sync full --force' to rebuild",
				storedProvider, storedModel, provider, model))
	}
	return nil
}

// SetEmbeddingMeta records the embedding provider/model/dims used for the
// most recent successful reindex.
func (db *DB) SetEmbeddingMeta(provider, model string, dims int) error {
	if err := db.SetMeta("embed_provider", provider); err != nil {
		return err
	}
	if err := db.SetMeta("embed_model", model); err != nil {
		return err
	}
	return db.SetMeta("embed_dims", strconv.Itoa(dims))
}
