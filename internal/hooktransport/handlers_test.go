package hooktransport

import (
	"context"
	"strings"
	"testing"

	"github.com/sgx-labs/gitmemory/internal/appctx"
	"github.com/sgx-labs/gitmemory/internal/memtypes"
	"github.com/sgx-labs/gitmemory/internal/store"
)

func TestDeriveSummary_ShortContentPassesThrough(t *testing.T) {
	got := deriveSummary("use plain git plumbing")
	if got != "use plain git plumbing" {
		t.Fatalf("got %q", got)
	}
}

func TestDeriveSummary_TakesFirstLineOnly(t *testing.T) {
	got := deriveSummary("first line\nsecond line\nthird line")
	if got != "first line" {
		t.Fatalf("got %q, want only the first line", got)
	}
}

func TestDeriveSummary_TruncatesOversizeContent(t *testing.T) {
	long := strings.Repeat("a", memtypes.MaxSummaryLen*2)
	got := deriveSummary(long)
	if len(got) > memtypes.MaxSummaryLen {
		t.Fatalf("summary length %d exceeds MaxSummaryLen %d", len(got), memtypes.MaxSummaryLen)
	}
	if strings.HasSuffix(got, "…") {
		t.Fatalf("truncated summary must not carry a trailing ellipsis, got %q", got)
	}
	if got != strings.Repeat("a", len(got)) {
		t.Fatalf("expected plain truncation of the input, got %q", got)
	}
}

func TestPromptTerms_EmptyPromptYieldsNil(t *testing.T) {
	if got := promptTerms("   "); got != nil {
		t.Fatalf("expected nil for a blank prompt, got %v", got)
	}
}

func TestPromptTerms_SplitsOnSentenceBoundaries(t *testing.T) {
	got := promptTerms("fix the bug. then ship it!")
	if len(got) < 3 {
		t.Fatalf("expected the full prompt plus its clauses, got %v", got)
	}
	if got[0] != "fix the bug. then ship it!" {
		t.Fatalf("expected the first term to be the whole prompt, got %q", got[0])
	}
}

func TestRecallOutput_NilAppReturnsEmptyOutput(t *testing.T) {
	out := recallOutput(context.Background(), nil, "SessionStart", "", nil)
	if out.HookSpecificOutput != nil {
		t.Fatal("expected no hook-specific output when app is nil")
	}
}

func TestHandleStop_IsANoop(t *testing.T) {
	out := handleStop(context.Background(), nil, Input{})
	if out.HookSpecificOutput != nil || out.SystemMessage != "" {
		t.Fatalf("expected an empty Output, got %+v", out)
	}
}

func TestHandlePreToolUse_IsANoop(t *testing.T) {
	out := handlePreToolUse(context.Background(), nil, Input{})
	if out.HookSpecificOutput != nil {
		t.Fatalf("expected an empty Output, got %+v", out)
	}
}

func TestHandlePostToolUse_IsANoop(t *testing.T) {
	out := handlePostToolUse(context.Background(), nil, Input{})
	if out.HookSpecificOutput != nil {
		t.Fatalf("expected an empty Output, got %+v", out)
	}
}

func TestHandleStop_LogsHookActivityWhenIndexAvailable(t *testing.T) {
	db, err := store.OpenMemory(4)
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	handleStop(context.Background(), &appctx.Context{ProjectIndex: db}, Input{})

	activity, err := db.GetRecentHookActivity(10)
	if err != nil {
		t.Fatalf("GetRecentHookActivity: %v", err)
	}
	if len(activity) != 1 || activity[0].HookName != "Stop" || activity[0].Status != "noop" {
		t.Fatalf("GetRecentHookActivity() = %+v, want one Stop/noop row", activity)
	}
}

func TestRecallOutput_LogsUnavailableWhenRecallIsNil(t *testing.T) {
	db, err := store.OpenMemory(4)
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	recallOutput(context.Background(), &appctx.Context{ProjectIndex: db}, "SessionStart", "", nil)

	activity, err := db.GetRecentHookActivity(10)
	if err != nil {
		t.Fatalf("GetRecentHookActivity: %v", err)
	}
	if len(activity) != 1 || activity[0].HookName != "SessionStart" || activity[0].Status != "unavailable" {
		t.Fatalf("GetRecentHookActivity() = %+v, want one SessionStart/unavailable row", activity)
	}
}
