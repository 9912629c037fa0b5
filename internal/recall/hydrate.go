package recall

import (
	"context"
	"fmt"

	"github.com/sgx-labs/gitmemory/internal/memerr"
	"github.com/sgx-labs/gitmemory/internal/memtypes"
	"github.com/sgx-labs/gitmemory/internal/osa"
	"github.com/sgx-labs/gitmemory/internal/store"
)

func (s *Service) indexFor(domain memtypes.Domain) *store.DB {
	if domain == memtypes.DomainUser {
		return s.UserIndex
	}
	return s.ProjectIndex
}

func (s *Service) osaFor(domain memtypes.Domain) *osa.Store {
	if domain == memtypes.DomainUser {
		return s.UserOSA
	}
	return s.ProjectOSA
}

// Hydrate upgrades a single memory's fidelity. SUMMARY is a pure index read
// and never touches OSA. FULL additionally reads the note body once. FILES
// further attaches bounded file snapshots. Hydration is idempotent: calling
// it again at the same or a lower level just re-reads the same data.
func (s *Service) Hydrate(ctx context.Context, domain memtypes.Domain, id string, level memtypes.HydrationLevel) (memtypes.Memory, error) {
	db := s.indexFor(domain)
	if db == nil {
		return memtypes.Memory{}, memerr.New(memerr.KindConfiguration, "recall.Hydrate", fmt.Sprintf("domain %q is not configured", domain))
	}
	m, err := db.Get(id)
	if err != nil {
		return memtypes.Memory{}, err
	}
	if level == memtypes.HydrationSummary {
		return m, nil
	}

	store := s.osaFor(domain)
	if store == nil {
		return memtypes.Memory{}, memerr.New(memerr.KindConfiguration, "recall.Hydrate", fmt.Sprintf("domain %q has no object store bound", domain))
	}
	body, err := store.Read(ctx, m.Namespace, m.CommitRef)
	if err != nil {
		return memtypes.Memory{}, err
	}
	m.Content = string(body)

	if level == memtypes.HydrationFiles {
		m.Files = s.hydrateFiles(m)
	}
	return m, nil
}

// HydrateBatch upgrades many memories at once, grouped by (domain,
// namespace) so each group issues exactly one OSA batched read regardless
// of how many ids in it share a commit_ref. A hydration failure for one
// id yields an Unavailable placeholder rather than failing the batch.
func (s *Service) HydrateBatch(ctx context.Context, domain memtypes.Domain, ids []string, level memtypes.HydrationLevel) ([]memtypes.Memory, error) {
	db := s.indexFor(domain)
	if db == nil {
		return nil, memerr.New(memerr.KindConfiguration, "recall.HydrateBatch", fmt.Sprintf("domain %q is not configured", domain))
	}

	rows := make([]memtypes.Memory, 0, len(ids))
	for _, id := range ids {
		m, err := db.Get(id)
		if err != nil {
			rows = append(rows, memtypes.Memory{ID: id})
			continue
		}
		rows = append(rows, m)
	}
	if level == memtypes.HydrationSummary {
		return rows, nil
	}

	store := s.osaFor(domain)
	if store == nil {
		return rows, nil
	}

	byNamespace := map[memtypes.Namespace]map[string]bool{}
	for _, m := range rows {
		if m.CommitRef == "" {
			continue
		}
		if byNamespace[m.Namespace] == nil {
			byNamespace[m.Namespace] = map[string]bool{}
		}
		byNamespace[m.Namespace][m.CommitRef] = true
	}

	bodies := map[string]map[string][]byte{} // namespace -> commitRef -> body
	for ns, refSet := range byNamespace {
		refs := make([]string, 0, len(refSet))
		for ref := range refSet {
			refs = append(refs, ref)
		}
		batch, err := store.ReadBatch(ctx, ns, refs)
		if err != nil {
			continue // this namespace's group falls back to Unavailable below
		}
		bodies[ns] = make(map[string][]byte, len(batch))
		for ref, body := range batch {
			bodies[ns][ref] = body
		}
	}

	out := make([]memtypes.Memory, 0, len(rows))
	for _, m := range rows {
		nsBodies, ok := bodies[m.Namespace]
		if !ok {
			out = append(out, m)
			continue
		}
		body, ok := nsBodies[m.CommitRef]
		if !ok {
			out = append(out, m)
			continue
		}
		m.Content = string(body)
		if level == memtypes.HydrationFiles {
			m.Files = s.hydrateFiles(m)
		}
		out = append(out, m)
	}
	return out, nil
}

// hydrateFiles materializes bounded file snapshots referenced by a memory.
//
// gitmemory's Memory records reference project files by relative path in
// Extra["files"] (populated at capture time by a caller, e.g. the hook
// layer noting which files were open), not by a pinned project commit SHA —
// so FILES hydration reads the current working-tree contents rather than
// materializing a historical snapshot from a pinned commit — a deliberate
// simplification for a memory model that doesn't carry a project-repo
// commit pointer.
func (s *Service) hydrateFiles(m memtypes.Memory) []memtypes.FileSnapshot {
	raw, ok := m.Extra["files"]
	if !ok {
		return nil
	}
	paths, ok := raw.([]any)
	if !ok {
		return nil
	}

	fileCap := memtypes.MaxFilesPerMemory
	byteCap := int64(64 * 1024)
	if s.Cfg != nil {
		if s.Cfg.Hydration.FileCap > 0 {
			fileCap = s.Cfg.Hydration.FileCap
		}
		if s.Cfg.Hydration.FileBytes > 0 {
			byteCap = s.Cfg.Hydration.FileBytes
		}
	}

	root := ""
	if s.ProjectOSA != nil {
		root = s.ProjectOSA.Root()
	}

	var out []memtypes.FileSnapshot
	for _, p := range paths {
		if len(out) >= fileCap {
			break
		}
		path, ok := p.(string)
		if !ok || path == "" {
			continue
		}
		out = append(out, readFileSnapshot(root, path, byteCap))
	}
	return out
}
