// Package sync is the Sync Service: the component responsible for keeping
// the derived index convergent with the object store, and for moving notes
// to and from a remote. It never owns data — every operation here is
// either rebuildable from OSA or a thin wrapper over OSA's remote
// operations.
package sync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/sgx-labs/gitmemory/internal/codec"
	"github.com/sgx-labs/gitmemory/internal/embedding"
	"github.com/sgx-labs/gitmemory/internal/memerr"
	"github.com/sgx-labs/gitmemory/internal/memtypes"
	"github.com/sgx-labs/gitmemory/internal/osa"
	"github.com/sgx-labs/gitmemory/internal/store"
)

// Stats holds reindex statistics.
type Stats struct {
	TotalNotes   int       `json:"total_notes"`
	NewlyIndexed int       `json:"newly_indexed"`
	Errors       int       `json:"errors"`
	Timestamp    time.Time `json:"timestamp"`
}

// ProgressFunc reports reindex progress, mirroring indexer.ProgressFunc.
type ProgressFunc func(current, total int, namespace memtypes.Namespace)

// Service is the Sync Service, bound to one domain's object store and
// derived index.
type Service struct {
	OSA        *osa.Store
	Index      *store.DB
	Embedder   embedding.Provider // nil disables embedding during reindex
	Namespaces memtypes.NamespaceSet
	Domain     memtypes.Domain
	BatchSize  int
}

// New constructs a Service. batchSize <= 0 falls back to 32, matching the
// teacher's indexer default worker/batch sizing.
func New(o *osa.Store, idx *store.DB, embedder embedding.Provider, namespaces memtypes.NamespaceSet, domain memtypes.Domain, batchSize int) *Service {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &Service{OSA: o, Index: idx, Embedder: embedder, Namespaces: namespaces, Domain: domain, BatchSize: batchSize}
}

// noteUnit is one object-store note ready to be embedded and indexed.
type noteUnit struct {
	ns        memtypes.Namespace
	commitRef string
	body      []byte
}

// Reindex walks every configured namespace's object-store chain, batch-reads
// note bodies, and re-embeds/re-inserts them into the derived index. It is
// always safe to run: Insert is idempotent on memory ID.
func (s *Service) Reindex(ctx context.Context, progress ProgressFunc) (*Stats, error) {
	stats := &Stats{Timestamp: time.Now().UTC()}

	if s.Embedder != nil {
		if err := s.Index.CheckEmbeddingMeta(s.Embedder.Name(), s.Embedder.Model(), s.Embedder.Dimensions()); err != nil {
			return nil, err
		}
	}

	var units []noteUnit
	for _, ns := range s.Namespaces.All() {
		refs, err := s.OSA.ListNotes(ctx, ns)
		if err != nil {
			return nil, err
		}
		if len(refs) == 0 {
			continue
		}
		for start := 0; start < len(refs); start += s.BatchSize {
			end := start + s.BatchSize
			if end > len(refs) {
				end = len(refs)
			}
			batch := refs[start:end]
			bodies, err := s.OSA.ReadBatch(ctx, ns, batch)
			if err != nil {
				return nil, err
			}
			for _, ref := range batch {
				body, ok := bodies[ref]
				if !ok {
					stats.Errors++
					continue
				}
				units = append(units, noteUnit{ns: ns, commitRef: ref, body: body})
			}
		}
	}
	stats.TotalNotes = len(units)

	// Worker pool fan-out over decode only; decoding is CPU-bound and
	// independent per note. Embedding is a network call and benefits from
	// batching instead of fan-out, so it runs afterward, grouped by
	// BatchSize, using the provider's batch API when there's more than one
	// note in a group.
	const numWorkers = 4
	parsed := make([]memtypes.Memory, len(units))
	parseErr := make([]error, len(units))
	workCh := make(chan int, len(units))
	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range workCh {
				u := units[i]
				m, err := codec.Parse(string(u.body))
				if err != nil {
					parseErr[i] = err
					continue
				}
				m.Domain = s.Domain
				m.CommitRef = u.commitRef
				m.Ordinal = 0
				m.ID = fmt.Sprintf("%s:%s:%d", u.ns, u.commitRef, m.Ordinal)
				parsed[i] = m
			}
		}()
	}
	for i := range units {
		workCh <- i
	}
	close(workCh)
	wg.Wait()

	processed := 0
	for start := 0; start < len(units); start += s.BatchSize {
		end := start + s.BatchSize
		if end > len(units) {
			end = len(units)
		}

		var group []memtypes.Memory
		for i := start; i < end; i++ {
			if parseErr[i] != nil {
				fmt.Fprintf(os.Stderr, "gitmem: sync: %v\n", parseErr[i])
				stats.Errors++
				continue
			}
			group = append(group, parsed[i])
		}

		var vecs [][]float32
		if s.Embedder != nil && len(group) > 0 {
			texts := make([]string, len(group))
			for i, m := range group {
				texts[i] = m.Content
			}
			var err error
			vecs, err = s.Embedder.GetDocumentEmbeddings(texts)
			if err != nil {
				fmt.Fprintf(os.Stderr, "gitmem: sync: batch embed: %v\n", err)
				stats.Errors += len(group)
				processed += end - start
				if progress != nil {
					progress(processed, stats.TotalNotes, "")
				}
				continue
			}
		}

		for i, m := range group {
			var vec []float32
			if vecs != nil {
				vec = vecs[i]
			}
			if err := s.Index.Insert(m, vec); err != nil {
				fmt.Fprintf(os.Stderr, "gitmem: sync: index %s: %v\n", m.ID, err)
				stats.Errors++
				continue
			}
			stats.NewlyIndexed++
		}
		processed += end - start
		if progress != nil {
			progress(processed, stats.TotalNotes, "")
		}
	}

	if s.Embedder != nil && stats.NewlyIndexed > 0 {
		if err := s.Index.SetEmbeddingMeta(s.Embedder.Name(), s.Embedder.Model(), s.Embedder.Dimensions()); err != nil {
			fmt.Fprintf(os.Stderr, "gitmem: sync: record embedding metadata: %v\n", err)
		}
	}

	return stats, nil
}

// ForceReindex clears the derived index for this domain, including its
// recorded embedding metadata, and rebuilds it from scratch. Use this after
// switching embedding provider or model, where a plain Reindex would refuse
// to run against the mismatched metadata CheckEmbeddingMeta detects.
func (s *Service) ForceReindex(ctx context.Context, progress ProgressFunc) (*Stats, error) {
	if err := s.Index.DeleteAll(s.Domain); err != nil {
		return nil, err
	}
	return s.Reindex(ctx, progress)
}

// VerifyConsistency diffs the object store's full note list against the
// derived index's memory IDs, producing the report repair acts on. For IDs
// present on both sides it also recomputes a content hash from the
// object-store body and compares it against the index's stored content_hash
// column, catching index-level corruption that a presence-only diff would
// miss without re-reading every indexed row's (now prefix-only) content.
func (s *Service) VerifyConsistency(ctx context.Context) (memtypes.ConsistencyReport, error) {
	osaIDs := make(map[string]bool)
	refsByNamespace := make(map[memtypes.Namespace][]string)
	for _, ns := range s.Namespaces.All() {
		refs, err := s.OSA.ListNotes(ctx, ns)
		if err != nil {
			return memtypes.ConsistencyReport{}, err
		}
		refsByNamespace[ns] = refs
		for _, ref := range refs {
			osaIDs[fmt.Sprintf("%s:%s:0", ns, ref)] = true
		}
	}

	indexIDs, err := s.Index.AllMemoryIDs(s.Domain)
	if err != nil {
		return memtypes.ConsistencyReport{}, err
	}
	indexSet := make(map[string]bool, len(indexIDs))
	for _, id := range indexIDs {
		indexSet[id] = true
	}

	var report memtypes.ConsistencyReport
	for id := range osaIDs {
		if !indexSet[id] {
			report.MissingInIndex = append(report.MissingInIndex, id)
		}
	}
	for id := range indexSet {
		if !osaIDs[id] {
			report.OrphanedInIndex = append(report.OrphanedInIndex, id)
		}
	}

	indexedHashes, err := s.Index.AllContentHashes(s.Domain)
	if err != nil {
		return memtypes.ConsistencyReport{}, err
	}

	for ns, refs := range refsByNamespace {
		bodies, err := s.OSA.ReadBatch(ctx, ns, refs)
		if err != nil {
			return memtypes.ConsistencyReport{}, err
		}
		for _, ref := range refs {
			id := fmt.Sprintf("%s:%s:0", ns, ref)
			if !indexSet[id] {
				continue
			}
			body, ok := bodies[ref]
			if !ok {
				continue
			}
			m, err := codec.Parse(string(body))
			if err != nil {
				continue
			}
			stored, ok := indexedHashes[id]
			if !ok {
				continue
			}
			if contentHash(m.Content) != stored {
				report.HashMismatches = append(report.HashMismatches, id)
			}
		}
	}

	sort.Strings(report.MissingInIndex)
	sort.Strings(report.OrphanedInIndex)
	sort.Strings(report.HashMismatches)
	return report, nil
}

func contentHash(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

// Repair reconciles the derived index against the report produced by
// VerifyConsistency: missing and hash-mismatched notes are reindexed (by
// running Reindex, which is idempotent and cheap relative to the size of a
// typical memory store — re-inserting a mismatched id simply overwrites the
// stale row), orphaned rows are deleted outright.
func (s *Service) Repair(ctx context.Context, report memtypes.ConsistencyReport) (*Stats, error) {
	for _, id := range report.OrphanedInIndex {
		if err := s.Index.Delete(id); err != nil {
			return nil, err
		}
	}
	if len(report.MissingInIndex) == 0 && len(report.HashMismatches) == 0 {
		return &Stats{Timestamp: time.Now().UTC()}, nil
	}
	stats, err := s.Reindex(ctx, nil)
	if err != nil {
		return nil, err
	}
	if err := s.Index.RebuildFTS(); err != nil {
		fmt.Fprintf(os.Stderr, "gitmem: repair: rebuild fts index: %v\n", err)
	}
	return stats, nil
}

// SyncResult reports the outcome of SyncWithRemote.
type SyncResult struct {
	Fetch  osa.FetchStats
	Merges []osa.MergeStats
	Push   *osa.PushStats
}

// SyncWithRemote fetches and merges every configured namespace from the
// remote, then optionally pushes local state back.
func (s *Service) SyncWithRemote(ctx context.Context, push bool) (*SyncResult, error) {
	namespaces := s.Namespaces.All()
	fetchStats, err := s.OSA.FetchRemote(ctx, namespaces)
	if err != nil {
		return nil, memerr.Wrap(memerr.KindStoreUnavailable, "sync.SyncWithRemote", err)
	}

	result := &SyncResult{Fetch: fetchStats}
	for _, ns := range namespaces {
		mergeStats, err := s.OSA.MergeFromTracking(ctx, ns)
		if err != nil {
			return nil, err
		}
		result.Merges = append(result.Merges, mergeStats)
	}

	if push {
		pushStats, err := s.OSA.PushRemote(ctx, namespaces)
		if err != nil {
			return nil, err
		}
		result.Push = &pushStats
	}

	if _, err := s.Reindex(ctx, nil); err != nil {
		return nil, err
	}

	return result, nil
}
