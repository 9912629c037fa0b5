// Package osa is the Object-Store Adapter: a thin wrapper over the real git
// binary that exposes append-to-note, read-note, list-notes, batch-read, and
// push/fetch/merge against a remote, partitioned by namespace. It is the
// sole owner of persistent note storage.
package osa

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sgx-labs/gitmemory/internal/memerr"
	"github.com/sgx-labs/gitmemory/internal/memtypes"
)

// FetchStats reports the result of FetchRemote.
type FetchStats struct {
	NamespacesFetched []memtypes.Namespace
}

// MergeStats reports the result of MergeFromTracking.
type MergeStats struct {
	Namespace    memtypes.Namespace
	CommitsAdded int
}

// PushStats reports the result of PushRemote.
type PushStats struct {
	NamespacesPushed []memtypes.Namespace
	MergedFirst      bool
}

// Store is an Object-Store Adapter bound to one repository root (either the
// project repo or the lazily-initialized user-domain bare repo) and one
// remote name.
type Store struct {
	root        string
	refRoot     string // e.g. "refs/notes/gitmemory"
	lockDir     string
	lockTimeout time.Duration
	remoteName  string
	domain      memtypes.Domain
}

// Options configures a new Store.
type Options struct {
	Root        string
	RefRoot     string
	LockDir     string
	LockTimeout time.Duration
	RemoteName  string
	Domain      memtypes.Domain
	Bare        bool
}

// Open binds a Store to root, lazily initializing the repository (bare for
// the user domain, non-bare for a project working tree that is expected to
// already exist) if it is not already a git repository.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.RefRoot == "" {
		opts.RefRoot = "refs/notes/gitmemory"
	}
	if opts.RemoteName == "" {
		opts.RemoteName = "origin"
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = 30 * time.Second
	}
	if err := ensureRepo(ctx, opts.Root, opts.Bare); err != nil {
		return nil, err
	}
	return &Store{
		root:        opts.Root,
		refRoot:     opts.RefRoot,
		lockDir:     opts.LockDir,
		lockTimeout: opts.LockTimeout,
		remoteName:  opts.RemoteName,
		domain:      opts.Domain,
	}, nil
}

func (s *Store) namespaceRef(ns memtypes.Namespace) string {
	return fmt.Sprintf("%s/%s", s.refRoot, ns)
}

func (s *Store) trackingRef(ns memtypes.Namespace) string {
	return fmt.Sprintf("refs/gitmemory-tracking/%s/%s", s.remoteName, ns)
}

// Append atomically writes body under namespace and returns the commit_ref
// used in the Memory id. Local appends to the same
// (namespace, domain) are serialized via an advisory file lock.
func (s *Store) Append(ctx context.Context, ns memtypes.Namespace, body []byte) (commitRef string, err error) {
	if ns == "" {
		return "", memerr.New(memerr.KindInvalidNamespace, "osa.Append", "namespace must not be empty")
	}
	lock, err := acquireLock(ctx, s.lockDir, s.domain, ns, s.lockTimeout)
	if err != nil {
		return "", err
	}
	defer lock.release()

	ref := s.namespaceRef(ns)
	parent, err := resolveRef(ctx, s.root, ref)
	if err != nil {
		return "", memerr.Wrap(memerr.KindStoreUnavailable, "osa.Append", err)
	}

	blob, err := hashObjectBlob(ctx, s.root, body)
	if err != nil {
		return "", err
	}
	tree, err := mkTreeSingle(ctx, s.root, "note", blob)
	if err != nil {
		return "", err
	}
	commit, err := commitTree(ctx, s.root, tree, parent, "gitmemory note")
	if err != nil {
		return "", err
	}
	if err := updateRefCAS(ctx, s.root, ref, commit, parent); err != nil {
		return "", err
	}
	return commit, nil
}

// Read retrieves a previously appended body. A missing commitRef returns a
// memerr.KindNotFound error.
func (s *Store) Read(ctx context.Context, ns memtypes.Namespace, commitRef string) ([]byte, error) {
	body, err := readBlobAt(ctx, s.root, commitRef)
	if err != nil {
		return nil, err
	}
	return []byte(body), nil
}

// ReadBatch performs a single-call batched fetch for N refs via
// `git cat-file --batch`, avoiding a linear per-ref fallback on the hot
// hydration path.
func (s *Store) ReadBatch(ctx context.Context, ns memtypes.Namespace, refs []string) (map[string][]byte, error) {
	if len(refs) == 0 {
		return map[string][]byte{}, nil
	}
	var input strings.Builder
	for _, r := range refs {
		input.WriteString(r)
		input.WriteString(":note\n")
	}
	out, err := runGit(ctx, s.root, []byte(input.String()), "cat-file", "--batch")
	if err != nil {
		return nil, memerr.Wrap(memerr.KindStoreUnavailable, "osa.ReadBatch", err)
	}
	return parseCatFileBatch(out, refs)
}

// parseCatFileBatch parses `git cat-file --batch` output. Each requested
// object produces either a header line "<sha> blob <size>\n" followed by
// exactly size bytes and a trailing newline, or "<ref> missing\n" for an
// object that does not resolve.
func parseCatFileBatch(out string, refs []string) (map[string][]byte, error) {
	result := make(map[string][]byte, len(refs))
	remaining := out
	idx := 0
	for idx < len(refs) {
		nl := strings.IndexByte(remaining, '\n')
		if nl == -1 {
			break
		}
		header := remaining[:nl]
		remaining = remaining[nl+1:]
		fields := strings.Fields(header)
		if len(fields) == 2 && fields[1] == "missing" {
			idx++
			continue
		}
		if len(fields) != 3 {
			return nil, memerr.New(memerr.KindStoreUnavailable, "osa.ReadBatch", "malformed cat-file --batch header: "+header)
		}
		size, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, memerr.Wrap(memerr.KindStoreUnavailable, "osa.ReadBatch", err)
		}
		if len(remaining) < size+1 {
			return nil, memerr.New(memerr.KindStoreUnavailable, "osa.ReadBatch", "truncated cat-file --batch output")
		}
		content := remaining[:size]
		remaining = remaining[size+1:] // skip trailing newline
		result[refs[idx]] = []byte(content)
		idx++
	}
	return result, nil
}

// ListNotes returns every commit_ref ever appended under namespace, oldest
// first.
func (s *Store) ListNotes(ctx context.Context, ns memtypes.Namespace) ([]string, error) {
	ref := s.namespaceRef(ns)
	head, err := resolveRef(ctx, s.root, ref)
	if err != nil {
		return nil, memerr.Wrap(memerr.KindStoreUnavailable, "osa.ListNotes", err)
	}
	if head == "" {
		return nil, nil
	}
	return logChain(ctx, s.root, ref)
}

// FetchRemote fetches remote notes into tracking refs for the given
// namespaces (all configured namespaces if empty).
func (s *Store) FetchRemote(ctx context.Context, namespaces []memtypes.Namespace) (FetchStats, error) {
	stats := FetchStats{}
	for _, ns := range namespaces {
		refspec := fmt.Sprintf("+%s:%s", s.namespaceRef(ns), s.trackingRef(ns))
		if _, err := runGit(ctx, s.root, nil, "fetch", s.remoteName, refspec); err != nil {
			return stats, err
		}
		stats.NamespacesFetched = append(stats.NamespacesFetched, ns)
	}
	return stats, nil
}

// MergeFromTracking reconciles the local namespace ref with its tracking ref
// using an append-combining strategy: the union of commits from both
// chains, deduplicated by tree content and replayed in a content-addressed
// deterministic order.
func (s *Store) MergeFromTracking(ctx context.Context, ns memtypes.Namespace) (MergeStats, error) {
	lock, err := acquireLock(ctx, s.lockDir, s.domain, ns, s.lockTimeout)
	if err != nil {
		return MergeStats{}, err
	}
	defer lock.release()

	localRef := s.namespaceRef(ns)
	localHead, err := resolveRef(ctx, s.root, localRef)
	if err != nil {
		return MergeStats{}, memerr.Wrap(memerr.KindStoreUnavailable, "osa.MergeFromTracking", err)
	}
	trackingHead, err := resolveRef(ctx, s.root, s.trackingRef(ns))
	if err != nil {
		return MergeStats{}, memerr.Wrap(memerr.KindStoreUnavailable, "osa.MergeFromTracking", err)
	}
	if trackingHead == "" || trackingHead == localHead {
		return MergeStats{Namespace: ns}, nil
	}

	localChain, err := logChain(ctx, s.root, localRef)
	if err != nil {
		return MergeStats{}, err
	}
	trackingChain, err := logChain(ctx, s.root, s.trackingRef(ns))
	if err != nil {
		return MergeStats{}, err
	}

	merged, added, err := s.unionChains(ctx, localChain, trackingChain)
	if err != nil {
		return MergeStats{}, err
	}
	if added == 0 {
		return MergeStats{Namespace: ns}, nil
	}

	if err := updateRefCAS(ctx, s.root, localRef, merged, localHead); err != nil {
		return MergeStats{}, err
	}
	return MergeStats{Namespace: ns, CommitsAdded: added}, nil
}

// unionChains replays the deduplicated union of two commit chains (by
// note-blob content hash) as a fresh linear chain, sorted by tree hash for
// determinism, and returns the new chain's head and how many commits from
// trackingChain were newly incorporated.
func (s *Store) unionChains(ctx context.Context, localChain, trackingChain []string) (string, int, error) {
	type entry struct {
		commit string
		tree   string
	}
	seenTrees := map[string]bool{}
	var all []entry

	collect := func(chain []string) error {
		for _, c := range chain {
			tree, err := runGit(ctx, s.root, nil, "rev-parse", "--verify", "--quiet", c+"^{tree}")
			if err != nil {
				return err
			}
			if seenTrees[tree] {
				continue
			}
			seenTrees[tree] = true
			all = append(all, entry{commit: c, tree: tree})
		}
		return nil
	}
	if err := collect(localChain); err != nil {
		return "", 0, err
	}
	preLocalCount := len(all)
	if err := collect(trackingChain); err != nil {
		return "", 0, err
	}
	added := len(all) - preLocalCount
	if added == 0 {
		if len(localChain) == 0 {
			return "", 0, nil
		}
		return localChain[len(localChain)-1], 0, nil
	}

	sort.Slice(all, func(i, j int) bool { return all[i].tree < all[j].tree })

	var parent string
	for _, e := range all {
		commit, err := commitTree(ctx, s.root, e.tree, parent, "gitmemory note (merged)")
		if err != nil {
			return "", 0, err
		}
		parent = commit
	}
	return parent, added, nil
}

// PushRemote publishes local notes for the given namespaces. If the remote
// has diverged it fetches and merges first.
func (s *Store) PushRemote(ctx context.Context, namespaces []memtypes.Namespace) (PushStats, error) {
	stats := PushStats{}
	if _, err := s.FetchRemote(ctx, namespaces); err != nil {
		return stats, err
	}
	for _, ns := range namespaces {
		mergeStats, err := s.MergeFromTracking(ctx, ns)
		if err != nil {
			return stats, err
		}
		if mergeStats.CommitsAdded > 0 {
			stats.MergedFirst = true
		}
		refspec := fmt.Sprintf("%s:%s", s.namespaceRef(ns), s.namespaceRef(ns))
		if _, err := runGit(ctx, s.root, nil, "push", s.remoteName, refspec); err != nil {
			return stats, err
		}
		stats.NamespacesPushed = append(stats.NamespacesPushed, ns)
	}
	return stats, nil
}

// Root returns the repository root this Store is bound to (used by callers
// wiring up path-derived state such as the lock directory).
func (s *Store) Root() string { return s.root }

// RefRoot returns the configured ref namespace root (e.g. "refs/notes/gitmemory"),
// for callers that need to derive a filesystem path under .git from it rather
// than hardcoding the default.
func (s *Store) RefRoot() string { return s.refRoot }
