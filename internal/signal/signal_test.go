package signal

import (
	"testing"

	"github.com/sgx-labs/gitmemory/internal/memtypes"
)

func TestClassify_BracketRememberMarker(t *testing.T) {
	c := NewRegexClassifier()
	got := c.Classify("[remember] ship the migration before Friday")
	if len(got) != 1 {
		t.Fatalf("expected 1 classification, got %d", len(got))
	}
	if got[0].Namespace != memtypes.NamespaceLearnings {
		t.Fatalf("expected default namespace %q, got %q", memtypes.NamespaceLearnings, got[0].Namespace)
	}
	if got[0].Content != "ship the migration before Friday" {
		t.Fatalf("Content = %q", got[0].Content)
	}
}

func TestClassify_NamespacedCaptureMarker(t *testing.T) {
	c := NewRegexClassifier()
	got := c.Classify("[capture:decisions] chose plumbing over notes porcelain")
	if len(got) != 1 {
		t.Fatalf("expected 1 classification, got %d", len(got))
	}
	if got[0].Namespace != memtypes.Namespace("decisions") {
		t.Fatalf("Namespace = %q, want decisions", got[0].Namespace)
	}
}

func TestClassify_AtMemoryMarker(t *testing.T) {
	c := NewRegexClassifier()
	got := c.Classify("@memory:blockers CI is flaky on the windows runner")
	if len(got) != 1 {
		t.Fatalf("expected 1 classification, got %d", len(got))
	}
	if got[0].Namespace != memtypes.Namespace("blockers") {
		t.Fatalf("Namespace = %q, want blockers", got[0].Namespace)
	}
}

func TestClassify_DomainSelectorAppliesToSubsequentMarkers(t *testing.T) {
	c := NewRegexClassifier()
	got := c.Classify("[global]\n[remember] prefers tabs over spaces")
	if len(got) != 1 {
		t.Fatalf("expected 1 classification, got %d", len(got))
	}
	if got[0].Domain != memtypes.DomainUser {
		t.Fatalf("Domain = %q, want user", got[0].Domain)
	}
}

func TestClassify_DefaultsToProjectDomain(t *testing.T) {
	c := NewRegexClassifier()
	got := c.Classify("[remember] some project-scoped note")
	if len(got) != 1 {
		t.Fatalf("expected 1 classification, got %d", len(got))
	}
	if got[0].Domain != memtypes.DomainProject {
		t.Fatalf("Domain = %q, want project", got[0].Domain)
	}
}

func TestClassify_BlockSyntax(t *testing.T) {
	c := NewRegexClassifier()
	text := "▶ decisions ─────\nchose git plumbing over notes porcelain\nbecause notes attach to commits we don't have\n─────"
	got := c.Classify(text)
	if len(got) != 1 {
		t.Fatalf("expected 1 classification, got %d", len(got))
	}
	if got[0].Namespace != memtypes.Namespace("decisions") {
		t.Fatalf("Namespace = %q, want decisions", got[0].Namespace)
	}
	if got[0].Confidence <= 0.99 {
		t.Fatalf("expected block syntax to carry high confidence, got %v", got[0].Confidence)
	}
}

func TestClassify_NoMarkersYieldsNothing(t *testing.T) {
	c := NewRegexClassifier()
	got := c.Classify("just a normal sentence with no markers in it")
	if len(got) != 0 {
		t.Fatalf("expected no classifications, got %d", len(got))
	}
}

func TestClassify_EmptyMarkerContentIsSkipped(t *testing.T) {
	c := NewRegexClassifier()
	got := c.Classify("[remember]\n")
	if len(got) != 0 {
		t.Fatalf("expected empty-content markers to be skipped, got %d", len(got))
	}
}
