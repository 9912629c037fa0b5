package recall

import (
	"strings"

	"github.com/orsinium-labs/stopwords"

	"github.com/sgx-labs/gitmemory/internal/store"
)

// minMeaningfulWords is the minimum number of non-stopword tokens a trigger
// term must contain to be worth a semantic search; shorter terms skip the
// semantic slice for that term.
const minMeaningfulWords = 3

var englishStopwords = stopwords.MustGet("en")

// meaningfulTerms tokenizes term the same way store.ExtractSearchTerms does
// and then drops English stop words using github.com/orsinium-labs/stopwords.
func meaningfulTerms(term string) []string {
	tokens := store.ExtractSearchTerms(term)
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if englishStopwords.Contains(tok) {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// hasEnoughSignal reports whether term carries at least minMeaningfulWords
// non-stopword tokens, gating whether proactive_recall runs the semantic
// slice for it at all.
func hasEnoughSignal(term string) bool {
	return len(meaningfulTerms(strings.TrimSpace(term))) >= minMeaningfulWords
}
