// Package codec serializes and parses gitmemory notes: a restricted
// frontmatter header block followed by free-form markdown content, decoded
// into a plain map rather than a struct so no custom YAML tag handler ever
// runs against untrusted note bodies.
package codec

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/sgx-labs/gitmemory/internal/memtypes"
)

// headerOrder is the fixed key order Serialize writes recognized fields in.
// Parse does not require this order on the way in — only the way out must be
// deterministic, so repeated Serialize(Parse(x)) round-trips produce
// byte-identical notes. id is derived (namespace:commit_ref:ordinal) and
// never stored; domain is structural to which object store a note lives in,
// not a note property, so neither appears here.
var headerOrder = []string{
	"namespace", "timestamp", "summary", "spec", "status", "tags", "relates_to",
}

// ParseError reports a codec failure with enough context to locate it in the
// source note. Line is 1-indexed and 0 when not applicable.
type ParseError struct {
	Reason string
	Line   int
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("codec: %s (line %d)", e.Reason, e.Line)
	}
	return fmt.Sprintf("codec: %s", e.Reason)
}

const timeLayout = time.RFC3339

// Serialize renders a Memory as a frontmatter note: a fixed-order header
// block bounded by `---` delimiters, followed by the content body.
//
// Unknown keys preserved in m.Extra are appended after the recognized header
// fields, sorted by key for determinism, so round-tripping a note that
// carries forward-compatible fields this binary doesn't understand doesn't
// scramble their order from run to run.
func Serialize(m memtypes.Memory) (string, error) {
	if len(m.Summary) > memtypes.MaxSummaryLen {
		return "", &ParseError{Reason: fmt.Sprintf("summary exceeds %d characters", memtypes.MaxSummaryLen)}
	}

	header := make(map[string]any, len(headerOrder)+len(m.Extra))
	header["namespace"] = string(m.Namespace)
	header["summary"] = m.Summary
	header["timestamp"] = m.Timestamp.UTC().Format(timeLayout)
	if len(m.Tags) > 0 {
		header["tags"] = m.Tags
	}
	if m.Spec != "" {
		header["spec"] = m.Spec
	}
	status := m.Status
	if status == "" {
		status = memtypes.StatusActive
	}
	header["status"] = string(status)

	var buf bytes.Buffer
	buf.WriteString("---\n")
	for _, key := range headerOrder {
		if key == "relates_to" {
			if len(m.RelatesTo) == 0 {
				continue
			}
			buf.WriteString("relates_to: " + strings.Join(m.RelatesTo, ", ") + "\n")
			continue
		}
		v, ok := header[key]
		if !ok {
			continue
		}
		line, err := encodeHeaderLine(key, v)
		if err != nil {
			return "", err
		}
		buf.WriteString(line)
	}

	extraKeys := make([]string, 0, len(m.Extra))
	for k := range m.Extra {
		extraKeys = append(extraKeys, k)
	}
	sort.Strings(extraKeys)
	for _, k := range extraKeys {
		line, err := encodeHeaderLine(k, m.Extra[k])
		if err != nil {
			return "", err
		}
		buf.WriteString(line)
	}
	buf.WriteString("---\n\n")
	buf.WriteString(m.Content)
	if !strings.HasSuffix(m.Content, "\n") {
		buf.WriteString("\n")
	}
	return buf.String(), nil
}

// encodeHeaderLine renders a single `key: value` header line using the YAML
// library's scalar/flow-sequence encoding only — never a block style, and
// never a custom MarshalYAML hook.
func encodeHeaderLine(key string, value any) (string, error) {
	node := &yaml.Node{}
	if err := node.Encode(value); err != nil {
		return "", &ParseError{Reason: fmt.Sprintf("encode header key %q: %v", key, err)}
	}
	if node.Kind == yaml.SequenceNode || node.Kind == yaml.MappingNode {
		node.Style = yaml.FlowStyle
	}
	out, err := yaml.Marshal(node)
	if err != nil {
		return "", &ParseError{Reason: fmt.Sprintf("encode header key %q: %v", key, err)}
	}
	return key + ": " + strings.TrimRight(string(out), "\n") + "\n", nil
}

// Parse splits a note into its header block and body, and decodes the
// header into a Memory.
//
// The header is decoded with yaml.Unmarshal into a map[string]any — the
// restricted "safe" decode path: only scalars, flow sequences and flow
// mappings are ever produced, because map[string]any has no UnmarshalYAML
// method for a crafted `!!` tag to target. Unknown keys are preserved in
// Memory.Extra rather than rejected, per the forward-compatibility
// invariant.
func Parse(raw string) (memtypes.Memory, error) {
	headerBlock, body, err := splitDelimiters(raw)
	if err != nil {
		return memtypes.Memory{}, err
	}

	var fields map[string]any
	if err := yaml.Unmarshal([]byte(headerBlock), &fields); err != nil {
		return memtypes.Memory{}, &ParseError{Reason: fmt.Sprintf("invalid header YAML: %v", err)}
	}
	if fields == nil {
		fields = map[string]any{}
	}

	m := memtypes.Memory{Content: body, Extra: map[string]any{}}

	for key, v := range fields {
		switch key {
		case "namespace":
			var s string
			s, err = asString(key, v)
			m.Namespace = memtypes.Namespace(s)
		case "summary":
			m.Summary, err = asString(key, v)
		case "timestamp":
			var s string
			s, err = asString(key, v)
			if err == nil {
				m.Timestamp, err = time.Parse(timeLayout, s)
				if err != nil {
					err = &ParseError{Reason: fmt.Sprintf("invalid timestamp %q: %v", s, err)}
				}
			}
		case "tags":
			m.Tags, err = asStringSlice(key, v)
		case "spec":
			m.Spec, err = asString(key, v)
		case "status":
			var s string
			s, err = asString(key, v)
			m.Status = memtypes.Status(s)
		case "relates_to":
			var s string
			s, err = asString(key, v)
			m.RelatesTo = splitRelatesTo(s)
		default:
			// Includes legacy "id"/"domain" headers from notes written before
			// those became derived/structural rather than stored fields.
			m.Extra[key] = v
		}
		if err != nil {
			return memtypes.Memory{}, err
		}
	}

	if m.Summary == "" {
		return memtypes.Memory{}, &ParseError{Reason: "missing required header key \"summary\""}
	}
	if len(m.Summary) > memtypes.MaxSummaryLen {
		return memtypes.Memory{}, &ParseError{Reason: fmt.Sprintf("summary exceeds %d characters", memtypes.MaxSummaryLen)}
	}
	if m.Namespace == "" {
		return memtypes.Memory{}, &ParseError{Reason: "missing required header key \"namespace\""}
	}
	if m.Status == "" {
		m.Status = memtypes.StatusActive
	}

	return m, nil
}

func asString(key string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", &ParseError{Reason: fmt.Sprintf("header key %q must be a string, got %T", key, v)}
	}
	return s, nil
}

// splitRelatesTo parses the comma-separated `relates_to` scalar into
// individual ids, trimming surrounding whitespace and dropping empty
// entries (a trailing comma or doubled separator shouldn't produce a
// spurious empty id).
func splitRelatesTo(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func asStringSlice(key string, v any) ([]string, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, &ParseError{Reason: fmt.Sprintf("header key %q must be a sequence, got %T", key, v)}
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			return nil, &ParseError{Reason: fmt.Sprintf("header key %q contains a non-string element", key)}
		}
		out = append(out, s)
	}
	return out, nil
}

// splitDelimiters finds the opening and closing `---` lines and returns the
// header block (without delimiters) and the body, trimmed of the blank line
// convention Serialize writes between them.
func splitDelimiters(raw string) (header, body string, err error) {
	const delim = "---"
	lines := strings.Split(raw, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != delim {
		return "", "", &ParseError{Reason: "note does not begin with a frontmatter delimiter", Line: 1}
	}
	closeIdx := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == delim {
			closeIdx = i
			break
		}
	}
	if closeIdx == -1 {
		return "", "", &ParseError{Reason: "unterminated frontmatter block"}
	}
	header = strings.Join(lines[1:closeIdx], "\n")
	rest := lines[closeIdx+1:]
	for len(rest) > 0 && strings.TrimSpace(rest[0]) == "" {
		rest = rest[1:]
	}
	body = strings.Join(rest, "\n")
	return header, body, nil
}
