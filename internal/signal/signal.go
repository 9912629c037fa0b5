// Package signal is the narrow interface boundary to the capture-marker
// classifier: the signal-detection heuristics that classify free-text into
// namespaces. The core (capture, recall, sync) never imports this package
// directly — only the hook transport layer does, through the Classifier
// interface, so an alternative (ML-based, host-provided) classifier can be
// swapped in without touching gitmem's write path.
package signal

import (
	"regexp"
	"strings"

	"github.com/sgx-labs/gitmemory/internal/memtypes"
)

// Classification is one capture marker detected in free text.
type Classification struct {
	Namespace  memtypes.Namespace
	Domain     memtypes.Domain
	Content    string
	Confidence float64 // 0..1; >0.99 signals "safe to auto-capture without confirmation"
}

// Classifier turns free-form assistant/user text into zero or more capture
// requests, per a marker syntax embedded in the text itself.
type Classifier interface {
	Classify(text string) []Classification
}

// markerPattern matches `[remember]`, `[remember:ns]`, `[capture]`,
// `[capture:ns]`, and `@memory`/`@memory:ns`, capturing an optional
// namespace and the rest of the line as content.
var markerPattern = regexp.MustCompile(`(?m)^\s*(?:\[(remember|capture)(?::([a-z_]+))?\]|@memory(?::([a-z_]+))?)\s*(.*)$`)

// domainPattern matches a standalone domain-selector marker on its own
// line: `[global]`/`[user]` (USER) or `[project]`/`[local]` (PROJECT).
var domainPattern = regexp.MustCompile(`(?m)^\s*\[(global|user|project|local)\]\s*$`)

// blockPattern matches the block-capture syntax: a line starting with
// "▶ <namespace>" followed by a run of "─", the block body, then a
// matching closing rule line.
var blockPattern = regexp.MustCompile(`(?ms)^▶\s+([a-z_]+)\s+─+\s*\n(.*?)\n─+\s*$`)

// RegexClassifier is the default Classifier: a reference implementation of
// the literal marker grammar. It is not a real signal-detection engine —
// see the package doc — just a concrete, swappable default so the hook
// transport layer has something to call out of the box.
type RegexClassifier struct {
	DefaultNamespace memtypes.Namespace
}

// NewRegexClassifier constructs the default classifier. Unmarked markers
// ("[remember]", "@memory") fall back to the learnings namespace.
func NewRegexClassifier() *RegexClassifier {
	return &RegexClassifier{DefaultNamespace: memtypes.NamespaceLearnings}
}

func (c *RegexClassifier) Classify(text string) []Classification {
	var out []Classification

	domain := memtypes.DomainProject
	if m := domainPattern.FindStringSubmatch(text); m != nil {
		switch m[1] {
		case "global", "user":
			domain = memtypes.DomainUser
		case "project", "local":
			domain = memtypes.DomainProject
		}
	}

	for _, m := range markerPattern.FindAllStringSubmatch(text, -1) {
		ns := c.DefaultNamespace
		if m[2] != "" {
			ns = memtypes.Namespace(m[2])
		} else if m[3] != "" {
			ns = memtypes.Namespace(m[3])
		}
		content := strings.TrimSpace(m[4])
		if content == "" {
			continue
		}
		out = append(out, Classification{
			Namespace: ns, Domain: domain, Content: content, Confidence: 0.95,
		})
	}

	for _, m := range blockPattern.FindAllStringSubmatch(text, -1) {
		ns := memtypes.Namespace(m[1])
		content := strings.TrimSpace(m[2])
		if content == "" {
			continue
		}
		out = append(out, Classification{
			Namespace: ns, Domain: domain, Content: content, Confidence: 0.995,
		})
	}

	return out
}
