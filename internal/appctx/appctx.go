// Package appctx is the top-level application context: it constructs the
// Object-Store Adapter, Derived Index, and Capture/Sync/Recall Services once
// per process and hands out the resulting handles, rather than relying on
// service-locator globals or lazy package-level singletons.
package appctx

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sgx-labs/gitmemory/internal/capture"
	"github.com/sgx-labs/gitmemory/internal/config"
	"github.com/sgx-labs/gitmemory/internal/embedding"
	"github.com/sgx-labs/gitmemory/internal/memtypes"
	"github.com/sgx-labs/gitmemory/internal/osa"
	"github.com/sgx-labs/gitmemory/internal/recall"
	"github.com/sgx-labs/gitmemory/internal/store"
	"github.com/sgx-labs/gitmemory/internal/sync"
)

// Context owns every long-lived handle gitmem needs: the project-domain
// object store and index, the optional user-domain object store and
// index, and the three services built on top of them.
type Context struct {
	Config *config.Config

	ProjectOSA   *osa.Store
	ProjectIndex *store.DB
	UserOSA      *osa.Store // nil if the user domain was never touched
	UserIndex    *store.DB  // nil if the user domain was never touched

	Embedder embedding.Provider // nil in keyword-only mode

	Namespaces memtypes.NamespaceSet

	Capture *capture.Service
	Recall  *recall.Service
	Sync    *sync.Service
}

// Open builds a Context rooted at repoRoot, loading configuration, opening
// the project-domain object store and derived index, and constructing an
// embedding provider. The user domain is opened lazily by OpenUserDomain
// since most invocations never touch it.
func Open(ctx context.Context, repoRoot string) (*Context, error) {
	cfg, err := config.LoadConfig(repoRoot)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	namespaces := memtypes.NewNamespaceSet(namespacesOf(cfg))

	embedder, err := embedding.NewProvider(embedding.ProviderConfig{
		Provider:   cfg.Embedding.Provider,
		Model:      cfg.Embedding.Model,
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Dimensions: cfg.EmbeddingDim(),
	})
	if err != nil {
		// Keyword-only mode: capture and text search still work, vector
		// search does not.
		embedder = nil
	}

	projectOSA, err := osa.Open(ctx, osa.Options{
		Root:        repoRoot,
		RefRoot:     cfg.NotesRefRoot,
		LockDir:     filepath.Join(cfg.DataDir, "locks"),
		LockTimeout: lockTimeout(cfg),
		Domain:      memtypes.DomainProject,
	})
	if err != nil {
		return nil, fmt.Errorf("open project object store: %w", err)
	}

	projectIndex, err := store.OpenPath(filepath.Join(cfg.DataDir, "index.db"), cfg.EmbeddingDim())
	if err != nil {
		return nil, fmt.Errorf("open project index: %w", err)
	}

	c := &Context{
		Config:       cfg,
		ProjectOSA:   projectOSA,
		ProjectIndex: projectIndex,
		Embedder:     embedder,
		Namespaces:   namespaces,
	}

	c.Capture = capture.New(c.ProjectOSA, c.ProjectIndex, c.Embedder, c.Namespaces, cfg.DataDir)
	c.Sync = sync.New(c.ProjectOSA, c.ProjectIndex, c.Embedder, c.Namespaces, memtypes.DomainProject, cfg.Reindex.BatchSize)
	c.Recall = &recall.Service{
		ProjectIndex: c.ProjectIndex,
		ProjectOSA:   c.ProjectOSA,
		Embedder:     c.Embedder,
		Namespaces:   c.Namespaces,
		Cfg:          cfg,
	}

	return c, nil
}

// OpenUserDomain lazily initializes the per-user bare object store and
// index and rebuilds Capture/Recall to use it for domain=user requests.
// Safe to call more than once; a no-op after the first call.
func (c *Context) OpenUserDomain(ctx context.Context) error {
	if c.UserOSA != nil {
		return nil
	}
	userDataDir, err := config.UserDataDir()
	if err != nil {
		return fmt.Errorf("resolve user data dir: %w", err)
	}

	userOSA, err := osa.Open(ctx, osa.Options{
		Root:        filepath.Join(userDataDir, "notes.git"),
		RefRoot:     c.Config.NotesRefRoot,
		LockDir:     filepath.Join(userDataDir, "locks"),
		LockTimeout: lockTimeout(c.Config),
		Domain:      memtypes.DomainUser,
		Bare:        true,
	})
	if err != nil {
		return fmt.Errorf("open user object store: %w", err)
	}
	userIndex, err := store.OpenPath(filepath.Join(userDataDir, "index.db"), c.Config.EmbeddingDim())
	if err != nil {
		return fmt.Errorf("open user index: %w", err)
	}

	c.UserOSA = userOSA
	c.UserIndex = userIndex
	c.Recall.UserOSA = userOSA
	c.Recall.UserIndex = userIndex
	return nil
}

// CaptureServiceFor returns a Capture Service bound to the requested
// domain, lazily opening the user-domain store if needed.
func (c *Context) CaptureServiceFor(ctx context.Context, domain memtypes.Domain) (*capture.Service, error) {
	if domain != memtypes.DomainUser {
		return c.Capture, nil
	}
	if err := c.OpenUserDomain(ctx); err != nil {
		return nil, err
	}
	return capture.New(c.UserOSA, c.UserIndex, c.Embedder, c.Namespaces, c.Config.DataDir), nil
}

// Close releases every handle the context owns. Safe to call on a
// partially-opened Context.
func (c *Context) Close() error {
	var firstErr error
	if c.ProjectIndex != nil {
		if err := c.ProjectIndex.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.UserIndex != nil {
		if err := c.UserIndex.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func namespacesOf(cfg *config.Config) []memtypes.Namespace {
	if len(cfg.Namespaces) == 0 {
		return nil
	}
	out := make([]memtypes.Namespace, len(cfg.Namespaces))
	for i, n := range cfg.Namespaces {
		out[i] = memtypes.Namespace(n)
	}
	return out
}

func lockTimeout(cfg *config.Config) time.Duration {
	if cfg.Lock.TimeoutMS <= 0 {
		return 30 * time.Second
	}
	return time.Duration(cfg.Lock.TimeoutMS) * time.Millisecond
}
