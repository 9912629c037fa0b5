// Package memtypes holds the domain types shared by every gitmemory
// package: osa, codec, store, capture, sync, recall. Keeping them in one
// dependency-free package avoids import cycles between the components that
// all need to agree on what a Memory looks like.
package memtypes

import "time"

// Namespace is one of the closed set of typed partitions a memory can live
// in. The set is extensible by configuration but stable within a deployment.
type Namespace string

const (
	NamespaceInception     Namespace = "inception"
	NamespaceElicitation   Namespace = "elicitation"
	NamespaceResearch      Namespace = "research"
	NamespaceDecisions     Namespace = "decisions"
	NamespaceProgress      Namespace = "progress"
	NamespaceBlockers      Namespace = "blockers"
	NamespaceReviews       Namespace = "reviews"
	NamespaceLearnings     Namespace = "learnings"
	NamespaceRetrospective Namespace = "retrospective"
	NamespacePatterns      Namespace = "patterns"
)

// DefaultNamespaces is the built-in closed set of ten namespaces.
var DefaultNamespaces = []Namespace{
	NamespaceInception, NamespaceElicitation, NamespaceResearch,
	NamespaceDecisions, NamespaceProgress, NamespaceBlockers,
	NamespaceReviews, NamespaceLearnings, NamespaceRetrospective,
	NamespacePatterns,
}

// Domain scopes a memory to a repository (project) or to a per-user global
// store (user).
type Domain string

const (
	DomainProject Domain = "project"
	DomainUser    Domain = "user"
)

// Status is the lifecycle state of a memory. Archived memories are hidden
// from default queries but retained — see the archive protocol in Memory's
// doc comment.
type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

// HydrationLevel is the ordered fidelity at which a MemoryResult has been
// enriched. SUMMARY < FULL < FILES.
type HydrationLevel int

const (
	HydrationSummary HydrationLevel = iota
	HydrationFull
	HydrationFiles
)

func (h HydrationLevel) String() string {
	switch h {
	case HydrationSummary:
		return "summary"
	case HydrationFull:
		return "full"
	case HydrationFiles:
		return "files"
	default:
		return "unknown"
	}
}

// FileSnapshot is a bounded attachment of a file referenced in a memory's
// content, captured at the memory's commit ref. Oversized files are elided
// rather than omitted, so callers always know a reference existed.
type FileSnapshot struct {
	Path    string
	Content string
	Elided  bool
	Size    int64
}

// Memory is the primary entity: a small structured note captured into the
// object store under a typed namespace.
//
// Mutation only ever happens through the archive protocol: a new append with
// Status=StatusArchived and RelatesTo=[originalID]. The codec and OSA never
// rewrite an existing note (see the memtypes package doc).
type Memory struct {
	ID        string
	Namespace Namespace
	Domain    Domain
	Summary   string
	Content   string
	Timestamp time.Time
	Tags      []string
	Spec      string
	Status    Status
	RelatesTo []string

	// Extra holds header keys the codec didn't recognize, preserved for
	// forward compatibility.
	Extra map[string]any

	// CommitRef is the object-store identifier of the write that produced
	// this note. Part of ID but also kept separately since OSA batch reads
	// group by it.
	CommitRef string
	// Ordinal disambiguates multiple notes written in the same append.
	Ordinal int

	// Files is populated only at HydrationFiles.
	Files []FileSnapshot
}

// CaptureResult is returned by the Capture Service for every capture
// attempt that passes validation (errors short-circuit before this).
type CaptureResult struct {
	Success bool
	Memory  *Memory
	Indexed bool
	Warning string
}

// MemoryResult is a Memory annotated with similarity distance (lower = more
// similar) and the hydration level it was returned at.
type MemoryResult struct {
	Memory         Memory
	Distance       float64
	HydrationLevel HydrationLevel
}

// ConsistencyReport is the diff between OSA and DI contents, the input to
// Sync Service's repair operation.
type ConsistencyReport struct {
	MissingInIndex  []string
	OrphanedInIndex []string
	HashMismatches  []string
}

// IsConsistent reports whether the report found no discrepancies.
func (r ConsistencyReport) IsConsistent() bool {
	return len(r.MissingInIndex) == 0 && len(r.OrphanedInIndex) == 0 && len(r.HashMismatches) == 0
}

// MaxSummaryLen is the scannability contract for a one-line summary: the
// codec must reject, never truncate, an oversize summary.
const MaxSummaryLen = 100

// MaxFilesPerMemory bounds HydrationFiles attachments.
const MaxFilesPerMemory = 20

// ContextElement is one rendered memory within a ContextDocument section —
// always SUMMARY-fidelity, or an unavailable placeholder when hydration
// failed for that id.
type ContextElement struct {
	ID        string
	Namespace Namespace
	Summary   string
	Timestamp time.Time
	Distance  float64 // meaningful only in the semantic_context section
	Available bool
}

// ContextSection is one named, ordered group of elements in a
// ContextDocument ("working_memory" or "semantic_context").
type ContextSection struct {
	Name     string
	Elements []ContextElement
}

// ContextDocument is the composed output of Recall Service's
// proactive_recall operation: a token-budgeted document with
// stable section/element order, wrapped in a versioned, content-hashed
// envelope so a hook layer can replace rather than accumulate injections.
type ContextDocument struct {
	Version      int
	Hash         string
	Sections     []ContextSection
	TokenEstimate int
}
