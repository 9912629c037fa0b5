package mcpserver

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sgx-labs/gitmemory/internal/capture"
	"github.com/sgx-labs/gitmemory/internal/memtypes"
	"github.com/sgx-labs/gitmemory/internal/recall"
)

type searchInput struct {
	Query     string `json:"query" jsonschema:"Natural language search query"`
	Namespace string `json:"namespace,omitempty" jsonschema:"Optional namespace filter"`
	Domain    string `json:"domain,omitempty" jsonschema:"project, user, or both (default project)"`
	TopK      int    `json:"top_k" jsonschema:"Number of results (default 10, max 100)"`
}

type getInput struct {
	ID           string `json:"id" jsonschema:"Memory id as returned by search_memories"`
	Domain       string `json:"domain,omitempty" jsonschema:"project or user (default project)"`
	IncludeFiles bool   `json:"include_files" jsonschema:"Attach referenced file snapshots"`
}

type saveInput struct {
	Namespace string `json:"namespace" jsonschema:"One of the configured namespaces"`
	Summary   string `json:"summary" jsonschema:"One-line summary, <=100 characters"`
	Content   string `json:"content" jsonschema:"Full memory content"`
	Domain    string `json:"domain,omitempty" jsonschema:"project or user (default project)"`
	Tags      string `json:"tags,omitempty" jsonschema:"Comma-separated tags"`
}

type emptyInput struct{}

func parseDomain(s string, def memtypes.Domain) memtypes.Domain {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user":
		return memtypes.DomainUser
	case "project":
		return memtypes.DomainProject
	case "both":
		return recall.DomainBoth
	default:
		return def
	}
}

func (s *Server) handleSearchMemories(ctx context.Context, req *mcp.CallToolRequest, input searchInput) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(input.Query) == "" {
		return errorResult("query is required."), nil, nil
	}
	if len(input.Query) > maxQueryLen {
		return errorResult("query too long (max %d characters).", maxQueryLen), nil, nil
	}
	if s.App.Recall == nil {
		return errorResult("recall is not available."), nil, nil
	}

	opts := recall.SearchOptions{
		K:         clampTopK(input.TopK, 10),
		Namespace: memtypes.Namespace(input.Namespace),
		Domain:    parseDomain(input.Domain, memtypes.DomainProject),
	}
	if opts.Domain == memtypes.DomainUser || opts.Domain == recall.DomainBoth {
		if err := s.App.OpenUserDomain(ctx); err != nil {
			return errorResult("open user domain: %v", err), nil, nil
		}
	}

	results, err := s.App.Recall.Search(ctx, input.Query, opts)
	if err != nil {
		// Degrade to text search rather than fail the tool call outright.
		results, err = s.App.Recall.SearchText(ctx, input.Query, opts)
		if err != nil {
			return errorResult("search failed: %v", err), nil, nil
		}
	}
	if len(results) == 0 {
		return textResult("No results found."), nil, nil
	}

	data, _ := json.MarshalIndent(summarize(results), "", "  ")
	return textResult(string(data)), nil, nil
}

func (s *Server) handleGetMemory(ctx context.Context, req *mcp.CallToolRequest, input getInput) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(input.ID) == "" {
		return errorResult("id is required."), nil, nil
	}
	domain := parseDomain(input.Domain, memtypes.DomainProject)
	level := memtypes.HydrationFull
	if input.IncludeFiles {
		level = memtypes.HydrationFiles
	}
	if domain == memtypes.DomainUser {
		if err := s.App.OpenUserDomain(ctx); err != nil {
			return errorResult("open user domain: %v", err), nil, nil
		}
	}

	m, err := s.App.Recall.Hydrate(ctx, domain, input.ID, level)
	if err != nil {
		return errorResult("hydrate failed: %v", err), nil, nil
	}

	data, _ := json.MarshalIndent(m, "", "  ")
	return textResult(string(data)), nil, nil
}

func (s *Server) handleSaveMemory(ctx context.Context, req *mcp.CallToolRequest, input saveInput) (*mcp.CallToolResult, any, error) {
	if !s.checkWriteRateLimit() {
		return errorResult("write rate limit exceeded, try again shortly."), nil, nil
	}
	if strings.TrimSpace(input.Namespace) == "" {
		return errorResult("namespace is required."), nil, nil
	}
	if strings.TrimSpace(input.Summary) == "" {
		return errorResult("summary is required."), nil, nil
	}
	if len(input.Summary) > memtypes.MaxSummaryLen {
		return errorResult("summary too long (max %d characters).", memtypes.MaxSummaryLen), nil, nil
	}
	if strings.TrimSpace(input.Content) == "" {
		return errorResult("content is required."), nil, nil
	}
	if len(input.Content) > maxContentSize {
		return errorResult("content too large (max %d bytes).", maxContentSize), nil, nil
	}

	domain := parseDomain(input.Domain, memtypes.DomainProject)
	svc, err := s.App.CaptureServiceFor(ctx, domain)
	if err != nil {
		return errorResult("open %s domain: %v", domain, err), nil, nil
	}

	var tags []string
	if input.Tags != "" {
		for _, t := range strings.Split(input.Tags, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
	}

	result, err := svc.Capture(ctx, capture.Request{
		Namespace: memtypes.Namespace(input.Namespace),
		Domain:    domain,
		Summary:   input.Summary,
		Content:   input.Content,
		Tags:      tags,
	})
	if err != nil {
		return errorResult("capture failed: %v", err), nil, nil
	}
	if !result.Success {
		return errorResult("capture rejected: %s", result.Warning), nil, nil
	}

	msg := "Saved as " + result.Memory.ID
	if result.Warning != "" {
		msg += " (" + result.Warning + ")"
	}
	return textResult(msg), nil, nil
}

func (s *Server) handleReindex(ctx context.Context, req *mcp.CallToolRequest, input emptyInput) (*mcp.CallToolResult, any, error) {
	if s.App.Sync == nil {
		return errorResult("sync is not available."), nil, nil
	}
	stats, err := s.App.Sync.Reindex(ctx, nil)
	if err != nil {
		return errorResult("reindex failed: %v", err), nil, nil
	}
	data, _ := json.MarshalIndent(stats, "", "  ")
	return textResult(string(data)), nil, nil
}

func (s *Server) handleIndexStatus(ctx context.Context, req *mcp.CallToolRequest, input emptyInput) (*mcp.CallToolResult, any, error) {
	if s.App.Sync == nil {
		return errorResult("sync is not available."), nil, nil
	}
	report, err := s.App.Sync.VerifyConsistency(ctx)
	if err != nil {
		return errorResult("consistency check failed: %v", err), nil, nil
	}
	data, _ := json.MarshalIndent(report, "", "  ")
	return textResult(string(data)), nil, nil
}

// summaryResult is the JSON shape returned to MCP clients: a MemoryResult
// trimmed to what search should ever surface (summary fidelity only — full
// content requires an explicit get_memory call).
type summaryResult struct {
	ID        string  `json:"id"`
	Namespace string  `json:"namespace"`
	Domain    string  `json:"domain"`
	Summary   string  `json:"summary"`
	Distance  float64 `json:"distance"`
}

func summarize(results []memtypes.MemoryResult) []summaryResult {
	out := make([]summaryResult, len(results))
	for i, r := range results {
		out[i] = summaryResult{
			ID:        r.Memory.ID,
			Namespace: string(r.Memory.Namespace),
			Domain:    string(r.Memory.Domain),
			Summary:   r.Memory.Summary,
			Distance:  r.Distance,
		}
	}
	return out
}
