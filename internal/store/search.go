package store

import (
	"fmt"
	"sort"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"github.com/sgx-labs/gitmemory/internal/memerr"
	"github.com/sgx-labs/gitmemory/internal/memtypes"
)

// SearchOptions filters and bounds a vector or text search.
type SearchOptions struct {
	Domain     memtypes.Domain
	Namespaces []memtypes.Namespace
	TopK       int
}

// searchRow is the single-join scan target VectorSearch and TextSearch
// share — one row per candidate with its distance already attached.
type searchRow struct {
	distance float64
	row
}

// VectorSearch performs a KNN search over vec_memories joined to memories in
// a single query — no N+1 lookups on the hot recall path.
func (db *DB) VectorSearch(queryVec []float32, opts SearchOptions) ([]memtypes.MemoryResult, error) {
	if opts.TopK <= 0 {
		opts.TopK = 10
	}
	if opts.TopK > 200 {
		opts.TopK = 200
	}
	vecData, err := sqlite_vec.SerializeFloat32(queryVec)
	if err != nil {
		return nil, memerr.Wrap(memerr.KindIndexError, "store.VectorSearch", fmt.Errorf("serialize query vector: %w", err))
	}

	// Fetch extra candidates so post-filtering by domain/namespace/status
	// doesn't starve TopK.
	fetchK := opts.TopK * 5
	if fetchK > 1000 {
		fetchK = 1000
	}

	rows, err := db.conn.Query(`
		SELECT v.distance, `+memoryColumns+`
		FROM vec_memories v
		JOIN memories m ON m.id = v.memory_row_id
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance`,
		vecData, fetchK,
	)
	if err != nil {
		return nil, memerr.Wrap(memerr.KindIndexError, "store.VectorSearch", err)
	}
	defer rows.Close()

	candidates, err := scanSearchRows(rows)
	if err != nil {
		return nil, err
	}
	return filterAndRank(candidates, opts)
}

// TextSearch performs FTS5 keyword search when available, falling back to a
// LIKE-based scan over summary/content otherwise. Results carry a synthetic
// distance (1 - normalized rank) so they compose with VectorSearch results
// under the same tie-break rule.
func (db *DB) TextSearch(terms []string, opts SearchOptions) ([]memtypes.MemoryResult, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	if opts.TopK <= 0 {
		opts.TopK = 10
	}

	var candidates []searchRow
	var err error
	if db.ftsAvailable {
		candidates, err = db.ftsSearch(terms, opts.TopK*5)
	} else {
		candidates, err = db.likeSearch(terms, opts.TopK*5)
	}
	if err != nil {
		return nil, err
	}
	return filterAndRank(candidates, opts)
}

func (db *DB) ftsSearch(terms []string, limit int) ([]searchRow, error) {
	query := strings.Join(terms, " OR ")
	rows, err := db.conn.Query(`
		SELECT bm25(memories_fts), `+prefixColumns("m")+`
		FROM memories_fts
		JOIN memories m ON m.id = memories_fts.rowid
		WHERE memories_fts MATCH ?
		ORDER BY bm25(memories_fts)
		LIMIT ?`,
		query, limit,
	)
	if err != nil {
		return nil, memerr.Wrap(memerr.KindIndexError, "store.ftsSearch", err)
	}
	defer rows.Close()
	return scanSearchRows(rows)
}

func (db *DB) likeSearch(terms []string, limit int) ([]searchRow, error) {
	var conds []string
	var args []any
	for _, t := range terms {
		conds = append(conds, "(summary LIKE ? OR content_prefix LIKE ?)")
		pattern := "%" + t + "%"
		args = append(args, pattern, pattern)
	}
	args = append(args, limit)
	query := fmt.Sprintf(`
		SELECT 0.5, %s FROM memories m
		WHERE %s
		ORDER BY timestamp DESC
		LIMIT ?`, prefixColumns("m"), strings.Join(conds, " OR "))

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, memerr.Wrap(memerr.KindIndexError, "store.likeSearch", err)
	}
	defer rows.Close()
	return scanSearchRows(rows)
}

func prefixColumns(alias string) string {
	cols := strings.Split(memoryColumns, ", ")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

func scanSearchRows(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]searchRow, error) {
	var out []searchRow
	for rows.Next() {
		var sr searchRow
		err := rows.Scan(
			&sr.distance,
			&sr.memoryID, &sr.namespace, &sr.domain, &sr.summary, &sr.contentPrefix, &sr.contentHash, &sr.commitRef, &sr.ordinal,
			&sr.tags, &sr.spec, &sr.status, &sr.relatesTo, &sr.extra, &sr.timestamp, &sr.confidence,
		)
		if err != nil {
			return nil, memerr.Wrap(memerr.KindIndexError, "store.scanSearchRows", err)
		}
		out = append(out, sr)
	}
	return out, rows.Err()
}

// filterAndRank applies domain/namespace/status filtering, truncates to
// TopK, and sorts by the fixed tie-break: distance ascending, then
// timestamp descending, then id lexically ascending.
func filterAndRank(candidates []searchRow, opts SearchOptions) ([]memtypes.MemoryResult, error) {
	nsFilter := map[memtypes.Namespace]bool{}
	for _, ns := range opts.Namespaces {
		nsFilter[ns] = true
	}

	var results []memtypes.MemoryResult
	for _, c := range candidates {
		if c.status != string(memtypes.StatusActive) {
			continue
		}
		if opts.Domain != "" && c.domain != string(opts.Domain) {
			continue
		}
		if len(nsFilter) > 0 && !nsFilter[memtypes.Namespace(c.namespace)] {
			continue
		}
		m, err := c.row.toMemory()
		if err != nil {
			return nil, memerr.Wrap(memerr.KindIndexError, "store.filterAndRank", err)
		}
		results = append(results, memtypes.MemoryResult{
			Memory:         m,
			Distance:       c.distance,
			HydrationLevel: memtypes.HydrationSummary,
		})
	}

	results = SortByTieBreak(results)

	if opts.TopK > 0 && len(results) > opts.TopK {
		results = results[:opts.TopK]
	}
	return results, nil
}

// SortByTieBreak orders results by the fixed tie-break rule (distance
// ascending, then timestamp descending, then id lexically ascending) and
// returns the same slice, sorted in place. Exported so callers outside this
// package — Recall Service's cross-domain merge, in particular — can apply
// the identical ordering after combining result sets from more than one DB.
func SortByTieBreak(results []memtypes.MemoryResult) []memtypes.MemoryResult {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		if !results[i].Memory.Timestamp.Equal(results[j].Memory.Timestamp) {
			return results[i].Memory.Timestamp.After(results[j].Memory.Timestamp)
		}
		return results[i].Memory.ID < results[j].Memory.ID
	})
	return results
}

// ExtractSearchTerms tokenizes a query into lowercase words, dropping very
// short tokens. Stop-word filtering is layered on top of this in the Recall
// Service, which has the stopwords dependency; this package stays a pure
// index and doesn't import it.
func ExtractSearchTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	var terms []string
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:\"'()[]{}")
		if len(f) >= 2 {
			terms = append(terms, f)
		}
	}
	return terms
}
