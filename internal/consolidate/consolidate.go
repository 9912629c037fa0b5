// Package consolidate implements the optional LLM-powered
// consolidation/decay post-processor: a pluggable filter layered on top of
// the core. Nothing in capture, sync, or recall depends on this package; it
// only ever produces new supersession records through the ordinary Capture
// Service archive protocol, never by mutating or deleting an original note.
package consolidate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sgx-labs/gitmemory/internal/llmchat"
	"github.com/sgx-labs/gitmemory/internal/memtypes"
)

// ActionKind is the disposition the processor recommends for a cluster of
// related memories.
type ActionKind string

const (
	// ActionKeep leaves all memories in the cluster untouched.
	ActionKeep ActionKind = "keep"
	// ActionMerge recommends superseding the cluster with one consolidated
	// summary, via the ordinary archive-then-recapture protocol.
	ActionMerge ActionKind = "merge"
	// ActionArchive recommends archiving a memory outright (decay): it is
	// stale or superseded by events the cluster's other memories describe.
	ActionArchive ActionKind = "archive"
)

// Action is one recommendation over a cluster of candidate memory ids.
// Applying an Action is the caller's responsibility (via the Capture
// Service's archive protocol) — Processor never writes anything itself.
type Action struct {
	Kind      ActionKind
	MemoryIDs []string
	Summary   string // proposed consolidated summary, set only for ActionMerge
	Reason    string
}

// Processor recommends consolidation/decay actions over a set of candidate
// memories sharing a namespace and/or spec. It is read-only: it never
// mutates the object store or the derived index.
type Processor interface {
	Consolidate(ctx context.Context, candidates []memtypes.Memory) ([]Action, error)
}

// NoopProcessor is the default Processor: it recommends nothing. gitmemory
// ships with consolidation disabled (config.ConsolidateConfig.Enabled ==
// false) so that the core's behavior never implicitly depends on an LLM
// being reachable.
type NoopProcessor struct{}

func (NoopProcessor) Consolidate(context.Context, []memtypes.Memory) ([]Action, error) {
	return nil, nil
}

// llmResponse is the structured shape the consolidation prompt asks the
// model to return: a JSON-forced response strictly unmarshaled into a list
// of proposed actions.
type llmResponse struct {
	Actions []struct {
		Kind      string   `json:"kind"`
		MemoryIDs []string `json:"memory_ids"`
		Summary   string   `json:"summary"`
		Reason    string   `json:"reason"`
	} `json:"actions"`
}

// LLMProcessor recommends consolidation/decay actions by asking a chat
// model to compare candidate memories: a construct-time client + model, a
// single JSON-forced prompt, strict unmarshal of the response.
type LLMProcessor struct {
	client *llmchat.Client
}

// NewLLMProcessor constructs an LLMProcessor bound to an Ollama chat
// endpoint. Returns a NoopProcessor-compatible nil is never returned; the
// caller decides whether to wire this in based on
// config.ConsolidateConfig.Enabled.
func NewLLMProcessor(baseURL, model string) *LLMProcessor {
	return &LLMProcessor{client: llmchat.New(baseURL, model)}
}

func (p *LLMProcessor) Consolidate(ctx context.Context, candidates []memtypes.Memory) ([]Action, error) {
	if len(candidates) < 2 {
		return nil, nil
	}

	var b strings.Builder
	for _, m := range candidates {
		fmt.Fprintf(&b, "- id=%s namespace=%s timestamp=%s summary=%q\n",
			m.ID, m.Namespace, m.Timestamp.Format("2006-01-02T15:04:05Z"), m.Summary)
	}

	prompt := fmt.Sprintf(`You are reviewing a developer's captured memories for redundancy and staleness.
Below are memories from the same namespace. Identify groups that should be merged (near-duplicate or superseded information) or archived (no longer relevant given a later memory).

Rules:
1. Only recommend "merge" when two or more memories describe the same decision/fact with no meaningful difference.
2. Only recommend "archive" for a single memory id that a later memory has clearly superseded.
3. Leave everything else alone — do not recommend "keep" actions, omit them instead.
4. Never invent a memory id not listed below.

Memories:
%s
Return ONLY a JSON object: {"actions":[{"kind":"merge"|"archive","memory_ids":["..."],"summary":"...","reason":"..."}]}`, b.String())

	raw, err := p.client.GenerateJSON(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("consolidate: generate: %w", err)
	}

	var resp llmResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("consolidate: unmarshal response: %w", err)
	}

	valid := make(map[string]bool, len(candidates))
	for _, m := range candidates {
		valid[m.ID] = true
	}

	out := make([]Action, 0, len(resp.Actions))
	for _, a := range resp.Actions {
		kind := ActionKind(a.Kind)
		if kind != ActionMerge && kind != ActionArchive {
			continue
		}
		ids := make([]string, 0, len(a.MemoryIDs))
		for _, id := range a.MemoryIDs {
			if valid[id] {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			continue
		}
		out = append(out, Action{Kind: kind, MemoryIDs: ids, Summary: a.Summary, Reason: a.Reason})
	}
	return out, nil
}
