package mcpserver

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sgx-labs/gitmemory/internal/memtypes"
	"github.com/sgx-labs/gitmemory/internal/recall"
)

func TestParseDomain(t *testing.T) {
	cases := []struct {
		in   string
		want memtypes.Domain
	}{
		{"project", memtypes.DomainProject},
		{"user", memtypes.DomainUser},
		{"both", recall.DomainBoth},
		{"PROJECT", memtypes.DomainProject},
		{"", memtypes.DomainProject},
		{"nonsense", memtypes.DomainProject},
	}
	for _, c := range cases {
		if got := parseDomain(c.in, memtypes.DomainProject); got != c.want {
			t.Errorf("parseDomain(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func resultText(t *testing.T, r *mcp.CallToolResult) string {
	t.Helper()
	tc, ok := r.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("expected a text content block, got %+v", r.Content[0])
	}
	return tc.Text
}

func TestHandleSearchMemories_RejectsEmptyQuery(t *testing.T) {
	s := newTestServer(t)
	r, _, err := s.handleSearchMemories(context.Background(), nil, searchInput{Query: ""})
	if err != nil {
		t.Fatalf("handleSearchMemories: %v", err)
	}
	if !strings.Contains(resultText(t, r), "query is required") {
		t.Fatalf("expected a query-required error, got %q", resultText(t, r))
	}
}

func TestHandleSearchMemories_RejectsOversizeQuery(t *testing.T) {
	s := newTestServer(t)
	r, _, err := s.handleSearchMemories(context.Background(), nil, searchInput{Query: strings.Repeat("a", maxQueryLen+1)})
	if err != nil {
		t.Fatalf("handleSearchMemories: %v", err)
	}
	if !strings.Contains(resultText(t, r), "too long") {
		t.Fatalf("expected a too-long error, got %q", resultText(t, r))
	}
}

func TestHandleSearchMemories_NoResultsMessage(t *testing.T) {
	s := newTestServer(t)
	r, _, err := s.handleSearchMemories(context.Background(), nil, searchInput{Query: "something nobody captured"})
	if err != nil {
		t.Fatalf("handleSearchMemories: %v", err)
	}
	if resultText(t, r) != "No results found." {
		t.Fatalf("got %q", resultText(t, r))
	}
}

func TestHandleSaveMemory_RequiresNamespaceSummaryContent(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		input saveInput
		want  string
	}{
		{"missing namespace", saveInput{Summary: "s", Content: "c"}, "namespace is required"},
		{"missing summary", saveInput{Namespace: "decisions", Content: "c"}, "summary is required"},
		{"missing content", saveInput{Namespace: "decisions", Summary: "s"}, "content is required"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r, _, err := s.handleSaveMemory(ctx, nil, c.input)
			if err != nil {
				t.Fatalf("handleSaveMemory: %v", err)
			}
			if !strings.Contains(resultText(t, r), c.want) {
				t.Fatalf("got %q, want substring %q", resultText(t, r), c.want)
			}
		})
	}
}

func TestHandleSaveMemory_SucceedsAndIsSearchable(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	r, _, err := s.handleSaveMemory(ctx, nil, saveInput{
		Namespace: "decisions",
		Summary:   "chose plain git plumbing",
		Content:   "git notes attaches to commits we don't have, so we use plumbing directly.",
	})
	if err != nil {
		t.Fatalf("handleSaveMemory: %v", err)
	}
	if !strings.Contains(resultText(t, r), "Saved as") {
		t.Fatalf("expected a confirmation message, got %q", resultText(t, r))
	}

	status, _, err := s.handleIndexStatus(ctx, nil, emptyInput{})
	if err != nil {
		t.Fatalf("handleIndexStatus: %v", err)
	}
	if strings.Contains(resultText(t, status), "consistency check failed") {
		t.Fatalf("expected a successful consistency report, got %q", resultText(t, status))
	}
}

func TestHandleSaveMemory_RejectsOversizeSummary(t *testing.T) {
	s := newTestServer(t)
	r, _, err := s.handleSaveMemory(context.Background(), nil, saveInput{
		Namespace: "decisions",
		Summary:   strings.Repeat("a", memtypes.MaxSummaryLen+1),
		Content:   "content",
	})
	if err != nil {
		t.Fatalf("handleSaveMemory: %v", err)
	}
	if !strings.Contains(resultText(t, r), "too long") {
		t.Fatalf("expected an oversize-summary error, got %q", resultText(t, r))
	}
}

func TestHandleSaveMemory_RateLimited(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	for i := 0; i < writeRateLimit; i++ {
		s.writeTimes = append(s.writeTimes, time.Now())
	}
	r, _, err := s.handleSaveMemory(ctx, nil, saveInput{Namespace: "decisions", Summary: "s", Content: "c"})
	if err != nil {
		t.Fatalf("handleSaveMemory: %v", err)
	}
	if !strings.Contains(resultText(t, r), "rate limit") {
		t.Fatalf("expected a rate-limit error, got %q", resultText(t, r))
	}
}

func TestHandleGetMemory_RequiresID(t *testing.T) {
	s := newTestServer(t)
	r, _, err := s.handleGetMemory(context.Background(), nil, getInput{})
	if err != nil {
		t.Fatalf("handleGetMemory: %v", err)
	}
	if !strings.Contains(resultText(t, r), "id is required") {
		t.Fatalf("got %q", resultText(t, r))
	}
}

func TestHandleGetMemory_RoundTripsASavedMemory(t *testing.T) {
	s := newTestServer(t)
	// Force keyword-only mode so the round trip doesn't depend on a
	// reachable embedding backend: Capture indexes a memory immediately
	// only when an embedder is configured, and reindex likewise needs one
	// to succeed per-note. With no embedder both skip vector work and
	// insert with a nil embedding, which store.Insert accepts.
	s.App.Capture.Embedder = nil
	s.App.Sync.Embedder = nil
	ctx := context.Background()

	saveResult, _, err := s.handleSaveMemory(ctx, nil, saveInput{
		Namespace: "decisions",
		Summary:   "round trip test",
		Content:   "full content body",
	})
	if err != nil {
		t.Fatalf("handleSaveMemory: %v", err)
	}
	saved := resultText(t, saveResult)
	rest := strings.TrimPrefix(saved, "Saved as ")
	gotID := strings.SplitN(rest, " (", 2)[0]

	if _, _, err := s.handleReindex(ctx, nil, emptyInput{}); err != nil {
		t.Fatalf("handleReindex: %v", err)
	}

	getResult, _, err := s.handleGetMemory(ctx, nil, getInput{ID: gotID})
	if err != nil {
		t.Fatalf("handleGetMemory: %v", err)
	}
	if !strings.Contains(resultText(t, getResult), "full content body") {
		t.Fatalf("expected hydrated content, got %q", resultText(t, getResult))
	}
}

func TestHandleReindex_ReportsStats(t *testing.T) {
	s := newTestServer(t)
	r, _, err := s.handleReindex(context.Background(), nil, emptyInput{})
	if err != nil {
		t.Fatalf("handleReindex: %v", err)
	}
	if resultText(t, r) == "" {
		t.Fatal("expected non-empty reindex stats")
	}
}
