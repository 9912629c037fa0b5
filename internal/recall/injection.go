package recall

import (
	"strings"
	"sync"

	"github.com/coregx/ahocorasick"
)

// injectionPatterns are phrases that could hijack the consuming agent if a
// captured memory quoted them verbatim; gitmemory scans for all of them in
// one pass with a single Aho-Corasick automaton rather than a per-pattern
// strings.Contains loop.
var injectionPatterns = []string{
	"ignore previous",
	"ignore all previous",
	"ignore above",
	"disregard previous",
	"disregard all previous",
	"you are now",
	"new instructions",
	"system prompt",
	"<system>",
	"</system>",
	"important:",
	"critical:",
	"override",
}

var (
	injectionAC     *ahocorasick.Automaton
	injectionACOnce sync.Once
)

func getInjectionAutomaton() *ahocorasick.Automaton {
	injectionACOnce.Do(func() {
		ac, err := ahocorasick.NewBuilder().
			AddStrings(injectionPatterns).
			SetMatchKind(ahocorasick.LeftmostLongest).
			SetPrefilter(true).
			Build()
		if err != nil {
			// The pattern list is a fixed literal; a build failure here is a
			// programming error, not a runtime condition to recover from.
			panic("recall: building injection automaton: " + err.Error())
		}
		injectionAC = ac
	})
	return injectionAC
}

// sanitizeSnippet strips injection-pattern matches from rendered summary
// text before it is placed in a ContextDocument, preventing a captured
// memory from hijacking the consuming agent.
func sanitizeSnippet(text string) string {
	ac := getInjectionAutomaton()
	lower := strings.ToLower(text)
	matches := ac.FindAllOverlapping([]byte(lower))
	if len(matches) == 0 {
		return text
	}

	// Mask matched byte ranges in the original text, preserving casing and
	// length outside the matched spans (lower/text share byte offsets since
	// strings.ToLower is a 1:1 byte mapping for the ASCII patterns above).
	masked := []byte(text)
	for _, m := range matches {
		if m.Start < 0 || m.End > len(masked) || m.Start >= m.End {
			continue
		}
		for i := m.Start; i < m.End; i++ {
			masked[i] = '*'
		}
	}
	return string(masked)
}
