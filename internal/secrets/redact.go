// Package secrets is a narrow, optional pre-processor: it strips obvious
// credential material out of captured content before the note reaches the
// object store. It is construct-time configured with a fixed pattern list.
package secrets

import "regexp"

// pattern pairs a detector regexp with the literal replacement token logged
// in its place, so a redacted note still shows a reader what kind of
// credential was removed without revealing it.
type pattern struct {
	re          *regexp.Regexp
	replacement string
}

// defaultPatterns covers the common credential shapes the reference
// implementation screens for: cloud provider keys, bearer tokens, and
// PEM-style private key blocks. Not exhaustive by design — secrets
// redaction is a best-effort safety net, not the capture path's sole
// defense (go-promptguard's content filter runs after it).
var defaultPatterns = []pattern{
	{regexp.MustCompile(`AKIA[0-9A-Z]{16}`), "[REDACTED-AWS-ACCESS-KEY]"},
	{regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`), "[REDACTED-API-KEY]"},
	{regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._\-]{20,}`), "[REDACTED-BEARER-TOKEN]"},
	{regexp.MustCompile(`ghp_[A-Za-z0-9]{36}`), "[REDACTED-GITHUB-TOKEN]"},
	{regexp.MustCompile(`(?s)-----BEGIN [A-Z ]*PRIVATE KEY-----.*?-----END [A-Z ]*PRIVATE KEY-----`), "[REDACTED-PRIVATE-KEY]"},
	{regexp.MustCompile(`(?i)(password|passwd|secret|api[_-]?key)\s*[:=]\s*["']?[^\s"']{8,}["']?`), "[REDACTED-CREDENTIAL]"},
}

// Redactor strips credential-shaped substrings from text.
type Redactor struct {
	patterns []pattern
}

// New constructs a Redactor with the default pattern set.
func New() *Redactor {
	return &Redactor{patterns: defaultPatterns}
}

// Redact returns text with every recognized credential shape replaced, and
// reports whether any replacement was made.
func (r *Redactor) Redact(text string) (redacted string, matched bool) {
	out := text
	for _, p := range r.patterns {
		if p.re.MatchString(out) {
			matched = true
			out = p.re.ReplaceAllString(out, p.replacement)
		}
	}
	return out, matched
}
