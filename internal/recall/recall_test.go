package recall

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/sgx-labs/gitmemory/internal/codec"
	"github.com/sgx-labs/gitmemory/internal/config"
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

// fakeEmbedder returns a deterministic vector per input string so cosine
// similarity behaves predictably in tests without a real model.
type fakeEmbedder struct {
	vectors map[string][]float32
}

func (f *fakeEmbedder) GetEmbedding(text string, _ string) ([]float32, error) { return f.vec(text), nil }
func (f *fakeEmbedder) GetDocumentEmbedding(text string) ([]float32, error)   { return f.vec(text), nil }
func (f *fakeEmbedder) GetQueryEmbedding(text string) ([]float32, error)      { return f.vec(text), nil }
func (f *fakeEmbedder) GetDocumentEmbeddings(texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vec(t)
	}
	return out, nil
}
func (f *fakeEmbedder) Name() string       { return "fake" }
func (f *fakeEmbedder) Model() string      { return "fake-model" }
func (f *fakeEmbedder) Dimensions() int    { return 4 }

func (f *fakeEmbedder) vec(text string) []float32 {
	if v, ok := f.vectors[text]; ok {
		return v
	}
	return []float32{0, 0, 0, 1}
}

func newTestStore(t *testing.T, domain memtypes.Domain) (*osa.Store, *store.DB) {
	t.Helper()
	skipIfNoGit(t)

	root := t.TempDir()
	lockDir := filepath.Join(t.TempDir(), "locks")
	o, err := osa.Open(context.Background(), osa.Options{
		Root:        root,
		RefRoot:     "refs/notes/gitmemory",
		LockDir:     lockDir,
		LockTimeout: 2 * time.Second,
		Domain:      domain,
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

func insertMemory(t *testing.T, o *osa.Store, db *store.DB, ns memtypes.Namespace, domain memtypes.Domain, summary string, vec []float32) memtypes.Memory {
	t.Helper()
	m := memtypes.Memory{
		Namespace: ns,
		Domain:    domain,
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
	m.CommitRef = ref
	m.ID = string(ns) + ":" + ref + ":0"
	if err := db.Insert(m, vec); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	return m
}

func TestSearch_RequiresEmbedder(t *testing.T) {
	_, db := newTestStore(t, memtypes.DomainProject)
	svc := &Service{ProjectIndex: db, Namespaces: memtypes.NewNamespaceSet(nil)}
	_, err := svc.Search(context.Background(), "query", SearchOptions{})
	if err == nil {
		t.Fatal("expected error when no embedder is configured")
	}
}

func TestSearch_ReturnsVectorMatches(t *testing.T) {
	o, db := newTestStore(t, memtypes.DomainProject)
	insertMemory(t, o, db, memtypes.NamespaceDecisions, memtypes.DomainProject, "chose git plumbing", []float32{1, 0, 0, 0})

	emb := &fakeEmbedder{vectors: map[string][]float32{"plumbing": {1, 0, 0, 0}}}
	svc := &Service{ProjectIndex: db, ProjectOSA: o, Embedder: emb, Namespaces: memtypes.NewNamespaceSet(nil)}

	results, err := svc.Search(context.Background(), "plumbing", SearchOptions{Domain: memtypes.DomainProject})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
}

func TestMergeDomains_SuppressesHighSimilarityCollision(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"same thing, project voice": {1, 0, 0, 0},
		"same thing, user voice":    {1, 0, 0, 0},
	}}
	svc := &Service{Embedder: emb, Cfg: &config.Config{Recall: config.RecallConfig{DomainMergeThreshold: 0.9}}}

	project := []memtypes.MemoryResult{{Memory: memtypes.Memory{ID: "p1", Summary: "same thing, project voice"}, Distance: 0.1}}
	user := []memtypes.MemoryResult{{Memory: memtypes.Memory{ID: "u1", Summary: "same thing, user voice"}, Distance: 0.2}}

	merged := svc.mergeDomains(project, user)
	if len(merged) != 1 {
		t.Fatalf("expected the colliding user result to be suppressed, got %d results", len(merged))
	}
	if merged[0].Memory.ID != "p1" {
		t.Fatalf("expected project result to win the collision, got %s", merged[0].Memory.ID)
	}
}

func TestMergeDomains_KeepsDistinctResults(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"project thing": {1, 0, 0, 0},
		"user thing":    {0, 1, 0, 0},
	}}
	svc := &Service{Embedder: emb}

	project := []memtypes.MemoryResult{{Memory: memtypes.Memory{ID: "p1", Summary: "project thing"}, Distance: 0.1}}
	user := []memtypes.MemoryResult{{Memory: memtypes.Memory{ID: "u1", Summary: "user thing"}, Distance: 0.2}}

	merged := svc.mergeDomains(project, user)
	if len(merged) != 2 {
		t.Fatalf("expected both distinct results to survive, got %d", len(merged))
	}
}

func TestCosineSimilarity(t *testing.T) {
	if got := cosineSimilarity([]float32{1, 0}, []float32{1, 0}); got != 1 {
		t.Fatalf("identical vectors: got %v, want 1", got)
	}
	if got := cosineSimilarity([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Fatalf("orthogonal vectors: got %v, want 0", got)
	}
	if got := cosineSimilarity(nil, []float32{1}); got != 0 {
		t.Fatalf("mismatched lengths should degrade to 0, got %v", got)
	}
}
