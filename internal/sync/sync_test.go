package sync

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/sgx-labs/gitmemory/internal/codec"
	"github.com/sgx-labs/gitmemory/internal/memtypes"
	"github.com/sgx-labs/gitmemory/internal/osa"
	"github.com/sgx-labs/gitmemory/internal/store"
)

func skipIfNoGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

func newTestDeps(t *testing.T) (*osa.Store, *store.DB) {
	t.Helper()
	skipIfNoGit(t)

	root := t.TempDir()
	lockDir := filepath.Join(t.TempDir(), "locks")
	o, err := osa.Open(context.Background(), osa.Options{
		Root:        root,
		RefRoot:     "refs/notes/gitmemory",
		LockDir:     lockDir,
		LockTimeout: 2 * time.Second,
		Domain:      memtypes.DomainProject,
		Bare:        true,
	})
	if err != nil {
		t.Fatalf("osa.Open: %v", err)
	}
	db, err := store.OpenMemory(4)
	if err != nil {
		t.Fatalf("store.OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return o, db
}

func appendNote(t *testing.T, o *osa.Store, ns memtypes.Namespace, summary string) string {
	t.Helper()
	m := memtypes.Memory{
		Namespace: ns,
		Domain:    memtypes.DomainProject,
		Summary:   summary,
		Content:   "content for " + summary,
		Timestamp: time.Now().UTC(),
		Status:    memtypes.StatusActive,
		Extra:     map[string]any{},
	}
	body, err := codec.Serialize(m)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	ref, err := o.Append(context.Background(), ns, []byte(body))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	return ref
}

func TestReindex_IndexesAppendedNotes(t *testing.T) {
	o, db := newTestDeps(t)
	ctx := context.Background()

	appendNote(t, o, memtypes.NamespaceDecisions, "first decision")
	appendNote(t, o, memtypes.NamespaceDecisions, "second decision")

	svc := New(o, db, nil, memtypes.NewNamespaceSet(nil), memtypes.DomainProject, 10)
	stats, err := svc.Reindex(ctx, nil)
	if err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	if stats.NewlyIndexed != 2 {
		t.Fatalf("NewlyIndexed = %d, want 2", stats.NewlyIndexed)
	}

	ids, err := db.AllMemoryIDs(memtypes.DomainProject)
	if err != nil {
		t.Fatalf("AllMemoryIDs: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 indexed ids, got %d", len(ids))
	}
}

func TestReindex_IsIdempotent(t *testing.T) {
	o, db := newTestDeps(t)
	ctx := context.Background()
	appendNote(t, o, memtypes.NamespaceDecisions, "only decision")

	svc := New(o, db, nil, memtypes.NewNamespaceSet(nil), memtypes.DomainProject, 10)
	if _, err := svc.Reindex(ctx, nil); err != nil {
		t.Fatalf("Reindex 1: %v", err)
	}
	if _, err := svc.Reindex(ctx, nil); err != nil {
		t.Fatalf("Reindex 2: %v", err)
	}

	ids, err := db.AllMemoryIDs(memtypes.DomainProject)
	if err != nil {
		t.Fatalf("AllMemoryIDs: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected reindex to converge to 1 row, got %d", len(ids))
	}
}

func TestVerifyConsistency_DetectsMissingAndOrphaned(t *testing.T) {
	o, db := newTestDeps(t)
	ctx := context.Background()

	ref := appendNote(t, o, memtypes.NamespaceDecisions, "in osa only")
	_ = ref

	// Insert an orphan directly: present in the index, absent from OSA.
	orphan := memtypes.Memory{
		ID: "decisions:0000000000000000000000000000000000000000:0", Namespace: memtypes.NamespaceDecisions,
		Domain: memtypes.DomainProject, Summary: "orphan", Content: "orphan",
		Timestamp: time.Now(), Status: memtypes.StatusActive, Extra: map[string]any{},
	}
	if err := db.Insert(orphan, []float32{0.1, 0.2, 0.3, 0.4}); err != nil {
		t.Fatalf("Insert orphan: %v", err)
	}

	svc := New(o, db, nil, memtypes.NewNamespaceSet(nil), memtypes.DomainProject, 10)
	report, err := svc.VerifyConsistency(ctx)
	if err != nil {
		t.Fatalf("VerifyConsistency: %v", err)
	}
	if len(report.MissingInIndex) != 1 {
		t.Fatalf("expected 1 missing note, got %v", report.MissingInIndex)
	}
	if len(report.OrphanedInIndex) != 1 {
		t.Fatalf("expected 1 orphaned row, got %v", report.OrphanedInIndex)
	}
	if report.IsConsistent() {
		t.Fatal("expected report to be inconsistent")
	}
}

func TestRepair_ConvergesIndex(t *testing.T) {
	o, db := newTestDeps(t)
	ctx := context.Background()
	appendNote(t, o, memtypes.NamespaceDecisions, "needs indexing")

	svc := New(o, db, nil, memtypes.NewNamespaceSet(nil), memtypes.DomainProject, 10)
	report, err := svc.VerifyConsistency(ctx)
	if err != nil {
		t.Fatalf("VerifyConsistency: %v", err)
	}
	if len(report.MissingInIndex) != 1 {
		t.Fatalf("expected 1 missing note before repair, got %v", report.MissingInIndex)
	}

	if _, err := svc.Repair(ctx, report); err != nil {
		t.Fatalf("Repair: %v", err)
	}

	report, err = svc.VerifyConsistency(ctx)
	if err != nil {
		t.Fatalf("VerifyConsistency after repair: %v", err)
	}
	if !report.IsConsistent() {
		t.Fatalf("expected consistent report after repair, got %+v", report)
	}
}
