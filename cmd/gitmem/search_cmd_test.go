package main

import (
	"testing"

	"github.com/sgx-labs/gitmemory/internal/memtypes"
	"github.com/sgx-labs/gitmemory/internal/recall"
)

func TestParseSearchDomain(t *testing.T) {
	cases := []struct {
		in   string
		want memtypes.Domain
	}{
		{"project", memtypes.DomainProject},
		{"user", memtypes.DomainUser},
		{"both", recall.DomainBoth},
		{"USER", memtypes.DomainUser},
		{"", memtypes.DomainProject},
		{"nonsense", memtypes.DomainProject},
	}
	for _, c := range cases {
		if got := parseSearchDomain(c.in); got != c.want {
			t.Errorf("parseSearchDomain(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestPrintResults_NoResultsDoesNotPanic(t *testing.T) {
	printResults(nil)
}

func TestPrintResults_RendersSummary(t *testing.T) {
	printResults([]memtypes.MemoryResult{
		{
			Memory: memtypes.Memory{
				ID:        "decisions:abc123:0",
				Namespace: memtypes.NamespaceDecisions,
				Summary:   "chose plain git plumbing",
			},
			Distance: 0.1234,
		},
	})
}
