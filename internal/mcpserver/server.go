// Package mcpserver exposes gitmem's Capture/Recall/Sync services as an MCP
// tool surface over stdio, built around a Server struct holding an
// *appctx.Context instead of package-level globals, so tests can instantiate
// fresh contexts without any process-global reset.
package mcpserver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sgx-labs/gitmemory/internal/appctx"
)

// Size and rate caps for the tool surface.
const (
	maxContentSize  = 100 * 1024  // 100KB max memory content via MCP
	maxQueryLen     = 10_000      // 10K chars max for search queries
	writeRateLimit  = 30          // max write operations per minute
	writeRateWindow = 60 * time.Second
)

// Version is set by the caller (cmd/gitmem) before constructing a Server.
var Version = "dev"

// Server is the MCP tool surface, bound to one application context. Every
// handler closes over this struct rather than a package-level global, so
// tests can stand up independent servers against independent contexts in
// the same process.
type Server struct {
	App *appctx.Context

	writeMu    sync.Mutex
	writeTimes []time.Time
}

// New constructs a Server bound to app.
func New(app *appctx.Context) *Server {
	return &Server{App: app}
}

// checkWriteRateLimit enforces writeRateLimit writes per writeRateWindow,
// guarding against rapid write abuse via prompt injection in tool-calling
// transcripts.
func (s *Server) checkWriteRateLimit() bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	now := time.Now()
	cutoff := now.Add(-writeRateWindow)
	valid := s.writeTimes[:0]
	for _, t := range s.writeTimes {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	s.writeTimes = valid
	if len(s.writeTimes) >= writeRateLimit {
		return false
	}
	s.writeTimes = append(s.writeTimes, now)
	return true
}

// Serve starts the MCP server on stdio and blocks until the transport
// closes or ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "gitmem",
		Version: Version,
	}, nil)

	s.registerTools(server)

	return server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools(server *mcp.Server) {
	readOnly := &mcp.ToolAnnotations{ReadOnlyHint: true}
	boolPtr := func(b bool) *bool { return &b }
	writeNonDestructive := &mcp.ToolAnnotations{DestructiveHint: boolPtr(false), IdempotentHint: true}
	writeDestructive := &mcp.ToolAnnotations{DestructiveHint: boolPtr(true)}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_memories",
		Description: "Search captured memories by meaning. Use this when you need background on a prior decision, blocker, or piece of context from this project or your global notes.\n\nArgs:\n  query: Natural language search query\n  namespace: Optional namespace filter (decisions, blockers, progress, learnings, ...)\n  domain: project, user, or both (default project)\n  top_k: Number of results (default 10, max 100)\n\nReturns ranked results at summary fidelity.",
		Annotations: readOnly,
	}, s.handleSearchMemories)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_memory",
		Description: "Read the full content of a memory, upgrading it from summary to full fidelity. Use this after search_memories returns a relevant id and you need the complete text.\n\nArgs:\n  id: Memory id as returned by search_memories\n  domain: project or user (default project)\n  include_files: Attach referenced file snapshots (default false)\n\nReturns the full memory.",
		Annotations: readOnly,
	}, s.handleGetMemory)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "save_memory",
		Description: "Capture a new memory. The content is durably appended to the project's (or your global) memory store and indexed for later recall.\n\nArgs:\n  namespace: One of the configured namespaces (e.g. decisions, blockers, progress, learnings)\n  summary: One-line summary, <=100 characters\n  content: Full memory content\n  domain: project or user (default project)\n  tags: Comma-separated tags (optional)\n\nReturns confirmation with the new memory's id.",
		Annotations: writeNonDestructive,
	}, s.handleSaveMemory)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "reindex",
		Description: "Rebuild the derived search index from the durable memory store. Use this if search results seem stale or inconsistent.\n\nReturns indexing statistics.",
		Annotations: writeDestructive,
	}, s.handleReindex)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "index_status",
		Description: "Check consistency between the durable memory store and the search index. Use this to verify the index is up to date before reporting results to the user.\n\nReturns a consistency report.",
		Annotations: readOnly,
	}, s.handleIndexStatus)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func errorResult(format string, args ...any) *mcp.CallToolResult {
	return textResult(fmt.Sprintf("Error: "+format, args...))
}

func clampTopK(requested, def int) int {
	if requested <= 0 {
		return def
	}
	if requested > 100 {
		return 100
	}
	return requested
}
