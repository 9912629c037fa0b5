package mcpserver

import (
	"context"
	"os/exec"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sgx-labs/gitmemory/internal/appctx"
)

func skipIfNoGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	skipIfNoGit(t)

	app, err := appctx.Open(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("appctx.Open: %v", err)
	}
	t.Cleanup(func() { app.Close() })
	return New(app)
}

func TestCheckWriteRateLimit_AllowsUpToLimit(t *testing.T) {
	s := &Server{}
	for i := 0; i < writeRateLimit; i++ {
		if !s.checkWriteRateLimit() {
			t.Fatalf("expected write %d to be allowed", i)
		}
	}
	if s.checkWriteRateLimit() {
		t.Fatal("expected the write beyond the limit to be rejected")
	}
}

func TestClampTopK(t *testing.T) {
	cases := []struct {
		requested, def, want int
	}{
		{0, 10, 10},
		{-5, 10, 10},
		{5, 10, 5},
		{500, 10, 100},
		{100, 10, 100},
	}
	for _, c := range cases {
		if got := clampTopK(c.requested, c.def); got != c.want {
			t.Errorf("clampTopK(%d, %d) = %d, want %d", c.requested, c.def, got, c.want)
		}
	}
}

func TestTextResultAndErrorResult(t *testing.T) {
	r := textResult("hello")
	if len(r.Content) != 1 {
		t.Fatalf("expected 1 content block, got %d", len(r.Content))
	}
	if tc, ok := r.Content[0].(*mcp.TextContent); !ok || tc.Text != "hello" {
		t.Fatalf("expected a text content block with %q, got %+v", "hello", r.Content[0])
	}

	e := errorResult("bad %s", "input")
	tc, ok := e.Content[0].(*mcp.TextContent)
	if !ok || !strings.Contains(tc.Text, "Error: bad input") {
		t.Fatalf("expected formatted error text, got %+v", e.Content[0])
	}
}
