package recall

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/sgx-labs/gitmemory/internal/memtypes"
)

// workingMemoryNamespaces are the namespaces proactive_recall pulls into the
// working-memory slice, in the
// fixed rendering order step 4 requires.
var workingMemoryNamespaces = []memtypes.Namespace{
	memtypes.NamespaceBlockers,
	memtypes.NamespaceDecisions,
	memtypes.NamespaceProgress,
}

// charsPerToken approximates token count from character count: roughly 4
// characters per token, good enough for budgeting without a real tokenizer.
const charsPerToken = 4

// workingMemoryPerNamespaceLimit bounds how many recent entries per
// namespace feed the working-memory slice before budgeting trims further.
const workingMemoryPerNamespaceLimit = 10

// ProactiveRecallOptions configures a single context-document composition.
type ProactiveRecallOptions struct {
	TriggerTerms  []string
	TokenBudget   int             // 0 = use s.Cfg's default
	Spec          string          // active spec id for the working-memory slice; "" = all
	Domain        memtypes.Domain // "" = DomainBoth
	K             int             // per-term semantic fanout; 0 = 5
	MinSimilarity float64         // 0 = use s.Cfg's default
}

// estimateTokens applies the characters/4 heuristic.
func estimateTokens(s string) int {
	return (len(s) + charsPerToken - 1) / charsPerToken
}

// ProactiveRecall composes a token-budgeted ContextDocument from a
// working-memory slice (recent unresolved blockers/decisions/progress for
// the active spec) and a semantic slice (vector search over the trigger
// terms). It never returns an error for an empty index or for trigger terms
// that yield no semantic matches — those are edge cases, not failures.
func (s *Service) ProactiveRecall(ctx context.Context, opts ProactiveRecallOptions) (memtypes.ContextDocument, error) {
	budget := opts.TokenBudget
	if budget <= 0 {
		budget = 2000
		if s.Cfg != nil && s.Cfg.Recall.TokenBudget > 0 {
			budget = s.Cfg.Recall.TokenBudget
		}
	}
	workingFraction := 0.5
	if s.Cfg != nil && s.Cfg.Recall.WorkingMemoryFraction > 0 {
		workingFraction = s.Cfg.Recall.WorkingMemoryFraction
	}
	workingBudget := int(float64(budget) * workingFraction)
	semanticBudget := budget - workingBudget

	minSim := opts.MinSimilarity
	if minSim <= 0 && s.Cfg != nil {
		minSim = s.Cfg.Recall.SimilarityThreshold
	}
	k := opts.K
	if k <= 0 {
		k = 5
	}
	domain := opts.Domain
	if domain == "" {
		domain = DomainBoth
	}

	workingSection, workingUsed := s.composeWorkingMemory(ctx, opts.Spec, domain, workingBudget)
	semanticSection, semanticUsed := s.composeSemanticSlice(ctx, opts.TriggerTerms, SearchOptions{
		K: k, Domain: domain, MinSimilarity: minSim, Spec: opts.Spec,
	}, semanticBudget)

	doc := memtypes.ContextDocument{
		Version: 1,
		Sections: []memtypes.ContextSection{
			workingSection,
			semanticSection,
		},
		TokenEstimate: workingUsed + semanticUsed,
	}
	doc.Hash = hashContextDocument(doc)
	return doc, nil
}

// composeWorkingMemory fetches the most recent active blockers, decisions,
// and progress entries tagged with spec (or all, if spec == ""), rendering
// them in fixed namespace order (blockers, decisions, progress) and
// descending timestamp within each section, stopping once workingBudget
// tokens would be exceeded.
func (s *Service) composeWorkingMemory(ctx context.Context, spec string, domain memtypes.Domain, workingBudget int) (memtypes.ContextSection, int) {
	section := memtypes.ContextSection{Name: "working_memory"}
	used := 0

	domains := []memtypes.Domain{memtypes.DomainProject}
	if domain == memtypes.DomainUser || domain == DomainBoth {
		domains = append(domains, memtypes.DomainUser)
	}
	if domain == memtypes.DomainUser {
		domains = []memtypes.Domain{memtypes.DomainUser}
	}

	for _, ns := range workingMemoryNamespaces {
		var candidates []memtypes.Memory
		for _, d := range domains {
			db := s.indexFor(d)
			if db == nil {
				continue
			}
			var rows []memtypes.Memory
			var err error
			if spec != "" {
				rows, err = db.GetBySpec(spec, d)
				if err == nil {
					filtered := rows[:0]
					for _, m := range rows {
						if m.Namespace == ns {
							filtered = append(filtered, m)
						}
					}
					rows = filtered
				}
			} else {
				rows, err = db.GetByNamespace(ns, d, workingMemoryPerNamespaceLimit)
			}
			if err != nil {
				continue
			}
			candidates = append(candidates, rows...)
		}

		// unresolved == active; archived supersessions are excluded from
		// the default working-memory slice.
		active := candidates[:0]
		for _, m := range candidates {
			if m.Status == memtypes.StatusActive {
				active = append(active, m)
			}
		}
		sort.Slice(active, func(i, j int) bool { return active[i].Timestamp.After(active[j].Timestamp) })
		if len(active) > workingMemoryPerNamespaceLimit {
			active = active[:workingMemoryPerNamespaceLimit]
		}

		for _, m := range active {
			cost := estimateTokens(m.Summary)
			if used+cost > workingBudget {
				continue
			}
			used += cost
			section.Elements = append(section.Elements, memtypes.ContextElement{
				ID: m.ID, Namespace: m.Namespace, Summary: m.Summary,
				Timestamp: m.Timestamp, Available: true,
			})
		}
	}
	return section, used
}

// composeSemanticSlice runs Search for each trigger term carrying enough
// signal, unions the results by id, sorts by the documented
// tie-break (distance asc, timestamp desc, id asc), and includes results in
// rank order until the next one would exceed semanticBudget.
func (s *Service) composeSemanticSlice(ctx context.Context, terms []string, opts SearchOptions, semanticBudget int) (memtypes.ContextSection, int) {
	section := memtypes.ContextSection{Name: "semantic_context"}
	if s.Embedder == nil {
		return section, 0
	}

	seen := map[string]memtypes.MemoryResult{}
	for _, term := range terms {
		if !hasEnoughSignal(term) {
			continue
		}
		results, err := s.Search(ctx, term, opts)
		if err != nil {
			continue
		}
		for _, r := range results {
			existing, ok := seen[r.Memory.ID]
			if !ok || r.Distance < existing.Distance {
				seen[r.Memory.ID] = r
			}
		}
	}

	ranked := make([]memtypes.MemoryResult, 0, len(seen))
	for _, r := range seen {
		ranked = append(ranked, r)
	}
	ranked = sortSemanticTieBreak(ranked)

	used := 0
	for _, r := range ranked {
		cost := estimateTokens(r.Memory.Summary)
		if used+cost > semanticBudget {
			break
		}
		used += cost
		section.Elements = append(section.Elements, memtypes.ContextElement{
			ID: r.Memory.ID, Namespace: r.Memory.Namespace, Summary: r.Memory.Summary,
			Timestamp: r.Memory.Timestamp, Distance: r.Distance, Available: true,
		})
	}
	return section, used
}

// sortSemanticTieBreak applies the normative ordering for semantic results:
// ascending distance, then descending timestamp, then lexicographic id.
func sortSemanticTieBreak(results []memtypes.MemoryResult) []memtypes.MemoryResult {
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		if !a.Memory.Timestamp.Equal(b.Memory.Timestamp) {
			return a.Memory.Timestamp.After(b.Memory.Timestamp)
		}
		return a.Memory.ID < b.Memory.ID
	})
	return results
}

// hashContextDocument computes the deterministic envelope hash an outer
// hook layer uses to replace rather than accumulate prior injections.
func hashContextDocument(doc memtypes.ContextDocument) string {
	h := sha256.New()
	for _, section := range doc.Sections {
		h.Write([]byte(section.Name))
		for _, el := range section.Elements {
			fmt.Fprintf(h, "|%s|%s|%s", el.ID, el.Namespace, el.Summary)
		}
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// RenderContext renders doc as the inner XML the session-start envelope
// wraps. Defined here rather than on ContextDocument directly
// since memtypes stays dependency-free of any rendering format.
func RenderContext(doc memtypes.ContextDocument) string {
	var b strings.Builder
	for _, section := range doc.Sections {
		if len(section.Elements) == 0 {
			continue
		}
		fmt.Fprintf(&b, "<%s>\n", section.Name)
		for _, el := range section.Elements {
			if !el.Available {
				fmt.Fprintf(&b, "  <unavailable id=%q/>\n", el.ID)
				continue
			}
			fmt.Fprintf(&b, "  <memory id=%q namespace=%q hydration=\"summary\">%s</memory>\n",
				el.ID, el.Namespace, escapeXMLText(sanitizeSnippet(el.Summary)))
		}
		fmt.Fprintf(&b, "</%s>\n", section.Name)
	}
	return b.String()
}

func escapeXMLText(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}
