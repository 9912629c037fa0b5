package store

import (
	"testing"
	"time"

	"github.com/sgx-labs/gitmemory/internal/memtypes"
)

func testMemory(id string, ns memtypes.Namespace, summary string, ts time.Time) memtypes.Memory {
	return memtypes.Memory{
		ID:        id,
		Namespace: ns,
		Domain:    memtypes.DomainProject,
		Summary:   summary,
		Content:   "content for " + summary,
		CommitRef: "deadbeef",
		Status:    memtypes.StatusActive,
		Timestamp: ts,
		Extra:     map[string]any{},
	}
}

func TestInsertGet_RoundTrip(t *testing.T) {
	db, err := OpenMemory(4)
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	m := testMemory("decisions:deadbeef:0", memtypes.NamespaceDecisions, "chose sqlite-vec", time.Now())
	if err := db.Insert(m, []float32{0.1, 0.2, 0.3, 0.4}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := db.Get(m.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Summary != m.Summary || got.Namespace != m.Namespace {
		t.Errorf("Get() = %+v, want summary/namespace from %+v", got, m)
	}
}

func TestInsert_IdempotentOnMemoryID(t *testing.T) {
	db, err := OpenMemory(4)
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	m := testMemory("decisions:deadbeef:0", memtypes.NamespaceDecisions, "first version", time.Now())
	if err := db.Insert(m, []float32{0.1, 0.2, 0.3, 0.4}); err != nil {
		t.Fatalf("Insert 1: %v", err)
	}
	m.Summary = "second version"
	if err := db.Insert(m, []float32{0.4, 0.3, 0.2, 0.1}); err != nil {
		t.Fatalf("Insert 2: %v", err)
	}

	stats, err := db.Stats(memtypes.DomainProject)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalMemories != 1 {
		t.Fatalf("expected 1 memory after idempotent re-insert, got %d", stats.TotalMemories)
	}
	got, err := db.Get(m.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Summary != "second version" {
		t.Errorf("Get().Summary = %q, want second version", got.Summary)
	}
}

func TestGet_NotFound(t *testing.T) {
	db, err := OpenMemory(4)
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	if _, err := db.Get("does-not-exist"); err == nil {
		t.Fatal("expected error for missing memory")
	}
}

func TestVectorSearch_OrdersByDistance(t *testing.T) {
	db, err := OpenMemory(2)
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	now := time.Now()
	vectors := map[string][]float32{
		"decisions:aaa:0": {1, 0},
		"decisions:bbb:0": {0.9, 0.1},
		"decisions:ccc:0": {0, 1},
	}
	for id, v := range vectors {
		m := testMemory(id, memtypes.NamespaceDecisions, "note "+id, now)
		if err := db.Insert(m, v); err != nil {
			t.Fatalf("Insert %s: %v", id, err)
		}
	}

	results, err := db.VectorSearch([]float32{1, 0}, SearchOptions{Domain: memtypes.DomainProject, TopK: 3})
	if err != nil {
		t.Fatalf("VectorSearch: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Memory.ID != "decisions:aaa:0" {
		t.Errorf("closest result = %s, want decisions:aaa:0", results[0].Memory.ID)
	}
	for i := 1; i < len(results); i++ {
		if results[i-1].Distance > results[i].Distance {
			t.Errorf("results not sorted by distance ascending: %v", results)
		}
	}
}

func TestVectorSearch_FiltersByNamespace(t *testing.T) {
	db, err := OpenMemory(2)
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	now := time.Now()
	if err := db.Insert(testMemory("decisions:a:0", memtypes.NamespaceDecisions, "a", now), []float32{1, 0}); err != nil {
		t.Fatal(err)
	}
	if err := db.Insert(testMemory("learnings:b:0", memtypes.NamespaceLearnings, "b", now), []float32{0.9, 0.1}); err != nil {
		t.Fatal(err)
	}

	results, err := db.VectorSearch([]float32{1, 0}, SearchOptions{
		Domain:     memtypes.DomainProject,
		Namespaces: []memtypes.Namespace{memtypes.NamespaceLearnings},
		TopK:       10,
	})
	if err != nil {
		t.Fatalf("VectorSearch: %v", err)
	}
	if len(results) != 1 || results[0].Memory.ID != "learnings:b:0" {
		t.Fatalf("expected only learnings:b:0, got %v", results)
	}
}

func TestDelete_RemovesFromIndex(t *testing.T) {
	db, err := OpenMemory(2)
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	m := testMemory("decisions:a:0", memtypes.NamespaceDecisions, "a", time.Now())
	if err := db.Insert(m, []float32{1, 0}); err != nil {
		t.Fatal(err)
	}
	if err := db.Delete(m.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := db.Get(m.ID); err == nil {
		t.Fatal("expected Get to fail after Delete")
	}
}

func TestAllMemoryIDs(t *testing.T) {
	db, err := OpenMemory(2)
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	now := time.Now()
	for _, id := range []string{"decisions:a:0", "decisions:b:0"} {
		if err := db.Insert(testMemory(id, memtypes.NamespaceDecisions, id, now), []float32{0.1, 0.2}); err != nil {
			t.Fatal(err)
		}
	}
	ids, err := db.AllMemoryIDs(memtypes.DomainProject)
	if err != nil {
		t.Fatalf("AllMemoryIDs: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %v", ids)
	}
}

func TestSchemaVersion_RefusesFutureVersion(t *testing.T) {
	db, err := OpenMemory(2)
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()
	if err := db.SetMeta("schema_version", "999"); err != nil {
		t.Fatalf("SetMeta: %v", err)
	}
	// Re-running migrate (as a fresh OpenPath would) must refuse to proceed.
	if err := db.migrate(); err == nil {
		t.Fatal("expected migrate to refuse a future schema version")
	}
}
