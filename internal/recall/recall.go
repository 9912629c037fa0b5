// Package recall implements the Recall Service: query and assemble context
// for consumers (the hook layer, the CLI, MCP tools). It is the only
// component that merges project- and user-domain results and composes the
// token-budgeted context document.
package recall

import (
	"context"
	"math"
	"sort"

	"github.com/sgx-labs/gitmemory/internal/config"
	"github.com/sgx-labs/gitmemory/internal/embedding"
	"github.com/sgx-labs/gitmemory/internal/memerr"
	"github.com/sgx-labs/gitmemory/internal/memtypes"
	"github.com/sgx-labs/gitmemory/internal/osa"
	"github.com/sgx-labs/gitmemory/internal/store"
)

// DomainBoth requests the union-with-merge policy across project and user
// stores.
const DomainBoth memtypes.Domain = "both"

// Service is the Recall Service, bound to both the project-domain and
// (optionally) the user-domain object store and derived index.
type Service struct {
	ProjectIndex *store.DB
	ProjectOSA   *osa.Store
	UserIndex    *store.DB  // nil disables the user domain entirely
	UserOSA      *osa.Store // nil disables the user domain entirely
	Embedder     embedding.Provider
	Namespaces   memtypes.NamespaceSet
	Cfg          *config.Config
}

// SearchOptions configures search/search_text.
type SearchOptions struct {
	K             int
	Namespace     memtypes.Namespace // empty = all configured namespaces
	Domain        memtypes.Domain    // DomainProject, DomainUser, or DomainBoth
	MinSimilarity float64            // cosine similarity in [0,1]; 0 = no floor
	Spec          string
}

func (s *Service) namespaceFilter(ns memtypes.Namespace) []memtypes.Namespace {
	if ns == "" {
		return nil
	}
	return []memtypes.Namespace{ns}
}

// Search embeds query, runs vector search against the requested domain(s),
// applies the domain-merge policy, and returns SUMMARY-level results
// ordered by the normative tie-break rules.
func (s *Service) Search(ctx context.Context, query string, opts SearchOptions) ([]memtypes.MemoryResult, error) {
	if opts.K <= 0 {
		opts.K = 5
	}
	if s.Embedder == nil {
		return nil, memerr.New(memerr.KindConfiguration, "recall.Search", "no embedding provider configured")
	}
	vec, err := s.Embedder.GetQueryEmbedding(query)
	if err != nil {
		return nil, memerr.Wrap(memerr.KindIndexError, "recall.Search", err)
	}

	maxDistance := 2.0 // effectively unbounded under the cosine-distance convention (range [0,2])
	if opts.MinSimilarity > 0 {
		maxDistance = 1 - opts.MinSimilarity
	}

	domain := opts.Domain
	if domain == "" {
		domain = DomainBoth
	}

	var projectResults, userResults []memtypes.MemoryResult
	if domain == memtypes.DomainProject || domain == DomainBoth {
		projectResults, err = s.vectorSearch(s.ProjectIndex, vec, store.SearchOptions{
			Domain: memtypes.DomainProject, Namespaces: s.namespaceFilter(opts.Namespace), TopK: opts.K,
		}, maxDistance)
		if err != nil {
			return nil, err
		}
	}
	if (domain == memtypes.DomainUser || domain == DomainBoth) && s.UserIndex != nil {
		userResults, err = s.vectorSearch(s.UserIndex, vec, store.SearchOptions{
			Domain: memtypes.DomainUser, Namespaces: s.namespaceFilter(opts.Namespace), TopK: opts.K,
		}, maxDistance)
		if err != nil {
			return nil, err
		}
	}

	merged := s.mergeDomains(projectResults, userResults)
	if len(merged) > opts.K {
		merged = merged[:opts.K]
	}
	if opts.Spec != "" {
		merged = filterBySpec(merged, opts.Spec)
	}
	return merged, nil
}

func (s *Service) vectorSearch(db *store.DB, vec []float32, opts store.SearchOptions, maxDistance float64) ([]memtypes.MemoryResult, error) {
	if db == nil {
		return nil, nil
	}
	// Overfetch so the maxDistance floor can trim without starving TopK.
	fetchOpts := opts
	fetchOpts.TopK = opts.TopK * 3
	results, err := db.VectorSearch(vec, fetchOpts)
	if err != nil {
		return nil, memerr.Wrap(memerr.KindIndexError, "recall.vectorSearch", err)
	}
	out := make([]memtypes.MemoryResult, 0, len(results))
	for _, r := range results {
		if r.Distance > maxDistance {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func filterBySpec(results []memtypes.MemoryResult, spec string) []memtypes.MemoryResult {
	out := make([]memtypes.MemoryResult, 0, len(results))
	for _, r := range results {
		if r.Memory.Spec == spec {
			out = append(out, r)
		}
	}
	return out
}

// SearchText runs full-text search against the requested domain(s),
// analogous to Search but without embedding the query.
func (s *Service) SearchText(ctx context.Context, query string, opts SearchOptions) ([]memtypes.MemoryResult, error) {
	if opts.K <= 0 {
		opts.K = 5
	}
	terms := store.ExtractSearchTerms(query)

	domain := opts.Domain
	if domain == "" {
		domain = DomainBoth
	}

	var projectResults, userResults []memtypes.MemoryResult
	var err error
	if domain == memtypes.DomainProject || domain == DomainBoth {
		projectResults, err = s.ProjectIndex.TextSearch(terms, store.SearchOptions{
			Domain: memtypes.DomainProject, Namespaces: s.namespaceFilter(opts.Namespace), TopK: opts.K,
		})
		if err != nil {
			return nil, memerr.Wrap(memerr.KindIndexError, "recall.SearchText", err)
		}
	}
	if (domain == memtypes.DomainUser || domain == DomainBoth) && s.UserIndex != nil {
		userResults, err = s.UserIndex.TextSearch(terms, store.SearchOptions{
			Domain: memtypes.DomainUser, Namespaces: s.namespaceFilter(opts.Namespace), TopK: opts.K,
		})
		if err != nil {
			return nil, memerr.Wrap(memerr.KindIndexError, "recall.SearchText", err)
		}
	}

	merged := s.mergeDomains(projectResults, userResults)
	if len(merged) > opts.K {
		merged = merged[:opts.K]
	}
	return merged, nil
}

// Recent returns the most recently captured memories across configured
// namespaces, newest first, without requiring a query — the fallback `search`
// takes when invoked with no search terms.
func (s *Service) Recent(ctx context.Context, domain memtypes.Domain, limit int) ([]memtypes.MemoryResult, error) {
	if limit <= 0 {
		limit = 5
	}
	toResults := func(memories []memtypes.Memory) []memtypes.MemoryResult {
		out := make([]memtypes.MemoryResult, len(memories))
		for i, m := range memories {
			out[i] = memtypes.MemoryResult{Memory: m, HydrationLevel: memtypes.HydrationSummary}
		}
		return out
	}

	var project, user []memtypes.MemoryResult
	if domain == memtypes.DomainProject || domain == DomainBoth || domain == "" {
		memories, err := s.ProjectIndex.ListRecent(memtypes.DomainProject, limit)
		if err != nil {
			return nil, memerr.Wrap(memerr.KindIndexError, "recall.Recent", err)
		}
		project = toResults(memories)
	}
	if (domain == memtypes.DomainUser || domain == DomainBoth) && s.UserIndex != nil {
		memories, err := s.UserIndex.ListRecent(memtypes.DomainUser, limit)
		if err != nil {
			return nil, memerr.Wrap(memerr.KindIndexError, "recall.Recent", err)
		}
		user = toResults(memories)
	}

	merged := append(project, user...)
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Memory.Timestamp.After(merged[j].Memory.Timestamp)
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

// mergeDomains implements the domain-merge policy: union the two
// result sets; when a project and a user result's summaries cosine-match
// above cfg.Recall.DomainMergeThreshold, the project result wins and the
// user result is dropped. Remaining results interleave by ascending
// distance, with the store package's tie-break applied on equal distance.
func (s *Service) mergeDomains(project, user []memtypes.MemoryResult) []memtypes.MemoryResult {
	if len(user) == 0 {
		return project
	}
	if len(project) == 0 {
		return user
	}

	threshold := 0.9
	if s.Cfg != nil && s.Cfg.Recall.DomainMergeThreshold > 0 {
		threshold = s.Cfg.Recall.DomainMergeThreshold
	}

	suppressed := make(map[int]bool, len(user))
	for _, p := range project {
		pVec, err := s.summaryEmbedding(p.Memory.Summary)
		if err != nil {
			continue
		}
		for ui, u := range user {
			if suppressed[ui] {
				continue
			}
			uVec, err := s.summaryEmbedding(u.Memory.Summary)
			if err != nil {
				continue
			}
			if cosineSimilarity(pVec, uVec) >= threshold {
				suppressed[ui] = true
			}
		}
	}

	merged := make([]memtypes.MemoryResult, 0, len(project)+len(user))
	merged = append(merged, project...)
	for ui, u := range user {
		if !suppressed[ui] {
			merged = append(merged, u)
		}
	}
	return store.SortByTieBreak(merged)
}

// summaryEmbedding is a best-effort helper for the domain-merge collision
// check; embedding failures degrade to "no collision detected" rather than
// failing the whole search.
func (s *Service) summaryEmbedding(summary string) ([]float32, error) {
	if s.Embedder == nil {
		return nil, memerr.New(memerr.KindConfiguration, "recall.summaryEmbedding", "no embedding provider configured")
	}
	return s.Embedder.GetDocumentEmbedding(summary)
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
