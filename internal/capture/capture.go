// Package capture implements the Capture Service: the single write path
// into gitmemory. It validates, screens, durably appends to the object
// store, and then best-effort embeds and indexes — a durable barrier: once
// OSA.Append succeeds the note exists regardless of what happens to the
// rest of the pipeline, and Sync Service can always converge the derived
// index from the object store afterward.
package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/sgx-labs/gitmemory/internal/codec"
	"github.com/sgx-labs/gitmemory/internal/embedding"
	"github.com/sgx-labs/gitmemory/internal/memerr"
	"github.com/sgx-labs/gitmemory/internal/memtypes"
	"github.com/sgx-labs/gitmemory/internal/osa"
	"github.com/sgx-labs/gitmemory/internal/secrets"
	"github.com/sgx-labs/gitmemory/internal/store"

	"github.com/mdombrov-33/go-promptguard/detector"
)

// ContentFilter screens note content for adversarial or unsafe material
// before it is persisted. A narrow interface so the promptguard-backed
// default can be swapped in tests or by an alternative detector.
type ContentFilter interface {
	// Detect reports whether text is unsafe (an injection/override attempt).
	Detect(ctx context.Context, text string) (unsafe bool)
}

// promptGuard is the package-level detector instance: all pattern and
// statistical detectors, no LLM judge, so detection stays sub-millisecond
// on the capture hot path.
var promptGuard = detector.New(
	detector.WithThreshold(0.6),
	detector.WithAllDetectors(),
	detector.WithMaxInputLength(8000),
)

// promptGuardFilter wraps the package-level promptGuard detector.
type promptGuardFilter struct{}

// NewPromptGuardFilter constructs the default ContentFilter.
func NewPromptGuardFilter() ContentFilter {
	return promptGuardFilter{}
}

func (promptGuardFilter) Detect(ctx context.Context, text string) bool {
	if text == "" {
		return false
	}
	result := promptGuard.Detect(ctx, text)
	return !result.Safe
}

// Request is the input to Capture.
type Request struct {
	Namespace memtypes.Namespace
	Domain    memtypes.Domain
	Summary   string
	Content   string
	Tags      []string
	Spec      string
	RelatesTo []string
}

// Service is the Capture Service: validate, redact, filter, append, embed,
// index.
type Service struct {
	OSA        *osa.Store
	Index      *store.DB
	Embedder   embedding.Provider // nil disables embedding (keyword-only mode)
	Redactor   *secrets.Redactor
	Filter     ContentFilter
	Namespaces memtypes.NamespaceSet
	DataDir    string // base dir for capture_audit.log
}

// New constructs a Service with the default redactor and content filter.
func New(o *osa.Store, idx *store.DB, embedder embedding.Provider, namespaces memtypes.NamespaceSet, dataDir string) *Service {
	return &Service{
		OSA:        o,
		Index:      idx,
		Embedder:   embedder,
		Redactor:   secrets.New(),
		Filter:     NewPromptGuardFilter(),
		Namespaces: namespaces,
		DataDir:    dataDir,
	}
}

// Capture validates req, durably appends it to the object store, and then
// best-effort embeds and indexes it. The returned CaptureResult always
// reflects Success=true once the durable append has happened, even if
// embedding or indexing failed — Sync Service's reindex will converge the
// derived index later.
func (s *Service) Capture(ctx context.Context, req Request) (*memtypes.CaptureResult, error) {
	if !s.Namespaces.Contains(req.Namespace) {
		return nil, memerr.New(memerr.KindInvalidNamespace, "capture.Capture", fmt.Sprintf("namespace %q is not configured", req.Namespace))
	}
	if req.Summary == "" {
		return nil, memerr.New(memerr.KindInvalidSummary, "capture.Capture", "summary must not be empty")
	}
	if len(req.Summary) > memtypes.MaxSummaryLen {
		return nil, memerr.New(memerr.KindInvalidSummary, "capture.Capture", fmt.Sprintf("summary exceeds %d characters", memtypes.MaxSummaryLen))
	}
	if req.Content == "" {
		return nil, memerr.New(memerr.KindInvalidContent, "capture.Capture", "content must not be empty")
	}

	content := req.Content
	if s.Redactor != nil {
		redacted, matched := s.Redactor.Redact(content)
		if matched {
			content = redacted
		}
	}

	if s.Filter != nil {
		if s.Filter.Detect(ctx, content) {
			s.recordRejection(req.Namespace, req.Domain, content)
			return nil, memerr.New(memerr.KindContentBlocked, "capture.Capture", "content failed adversarial screening")
		}
	}

	now := time.Now().UTC()
	m := memtypes.Memory{
		Namespace: req.Namespace,
		Domain:    req.Domain,
		Summary:   req.Summary,
		Content:   content,
		Timestamp: now,
		Tags:      req.Tags,
		Spec:      req.Spec,
		Status:    memtypes.StatusActive,
		RelatesTo: req.RelatesTo,
		Extra:     map[string]any{},
	}

	body, err := codec.Serialize(m)
	if err != nil {
		return nil, memerr.Wrap(memerr.KindParse, "capture.Capture", err)
	}

	// DURABLE barrier: once Append returns successfully the note exists in
	// the object store regardless of anything that follows.
	commitRef, err := s.OSA.Append(ctx, req.Namespace, []byte(body))
	if err != nil {
		return nil, err
	}
	m.CommitRef = commitRef
	m.Ordinal = 0
	m.ID = fmt.Sprintf("%s:%s:%d", m.Namespace, m.CommitRef, m.Ordinal)

	result := &memtypes.CaptureResult{Success: true, Memory: &m, Indexed: false}

	if s.Embedder == nil {
		result.Warning = "embedding disabled: note is durable but not yet searchable by vector similarity"
		return result, nil
	}

	vec, err := s.Embedder.GetDocumentEmbedding(content)
	if err != nil {
		result.Warning = fmt.Sprintf("embedding failed, will be picked up by reindex: %v", err)
		return result, nil
	}

	if s.Index == nil {
		result.Warning = "derived index unavailable, will be picked up by reindex"
		return result, nil
	}
	if err := s.Index.Insert(m, vec); err != nil {
		result.Warning = fmt.Sprintf("indexing failed, will be picked up by reindex: %v", err)
		return result, nil
	}

	result.Indexed = true
	return result, nil
}

func (s *Service) recordRejection(ns memtypes.Namespace, domain memtypes.Domain, content string) {
	if s.DataDir == "" {
		return
	}
	_ = appendAudit(s.DataDir, AuditEntry{
		Namespace: ns,
		Domain:    domain,
		Reason:    "content_filter_rejected",
		Snippet:   auditSnippet(content),
	})
}
