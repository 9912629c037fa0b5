package hooktransport

import (
	"context"
	"strings"

	"github.com/sgx-labs/gitmemory/internal/appctx"
	"github.com/sgx-labs/gitmemory/internal/capture"
	"github.com/sgx-labs/gitmemory/internal/memtypes"
	"github.com/sgx-labs/gitmemory/internal/recall"
	"github.com/sgx-labs/gitmemory/internal/signal"
	"github.com/sgx-labs/gitmemory/internal/store"
)

// classifier is the default capture-marker detector. The hook
// transport layer is the only thing in gitmem that depends on it — the
// core components never classify free text.
var classifier signal.Classifier = signal.NewRegexClassifier()

// envelopeTag is the XML-ish tag name the session-start injection envelope
// wraps its rendered document in.
const envelopeTag = "memory_consolidated_summaries"

// handleSessionStart injects a context document built purely from the
// working-memory slice (no trigger terms yet — the session has no prompt
// to derive them from) into the new session.
func handleSessionStart(ctx context.Context, app *appctx.Context, in Input) Output {
	return recallOutput(ctx, app, "SessionStart", in.Spec, nil)
}

// handlePreCompact re-injects the same context document ahead of
// compaction, so working memory survives the compaction boundary.
func handlePreCompact(ctx context.Context, app *appctx.Context, in Input) Output {
	return recallOutput(ctx, app, "PreCompact", in.Spec, nil)
}

// handleUserPromptSubmit scans the prompt for capture markers, captures any it finds, and additionally runs proactive_recall using
// the prompt itself as a trigger-term source so relevant prior memories
// surface before the assistant answers.
func handleUserPromptSubmit(ctx context.Context, app *appctx.Context, in Input) Output {
	for _, c := range classifier.Classify(in.Prompt) {
		req := capture.Request{
			Namespace: c.Namespace,
			Domain:    c.Domain,
			Summary:   deriveSummary(c.Content),
			Content:   c.Content,
		}
		svc, err := app.CaptureServiceFor(ctx, c.Domain)
		if err != nil {
			continue
		}
		_, _ = svc.Capture(ctx, req) // best-effort; a hook never fails the turn over a capture error
	}

	terms := promptTerms(in.Prompt)
	return recallOutput(ctx, app, "UserPromptSubmit", in.Spec, terms)
}

// handleStop is a no-op placeholder: gitmem's core has no component that
// extracts structured memories from a transcript on its own (that's the
// out-of-scope signal-detection layer, see internal/signal), so Stop
// currently only exists to keep the event dispatch table complete.
func handleStop(ctx context.Context, app *appctx.Context, in Input) Output {
	logHookActivity(app, "Stop", "noop", 0, 0, "")
	return Output{}
}

func handlePreToolUse(ctx context.Context, app *appctx.Context, in Input) Output {
	logHookActivity(app, "PreToolUse", "noop", 0, 0, "")
	return Output{}
}

func handlePostToolUse(ctx context.Context, app *appctx.Context, in Input) Output {
	logHookActivity(app, "PostToolUse", "noop", 0, 0, "")
	return Output{}
}

// recallOutput composes a ContextDocument via proactive_recall and wraps
// it in the session-start injection envelope, for any event
// that injects context.
func recallOutput(ctx context.Context, app *appctx.Context, eventName, spec string, terms []string) Output {
	if app == nil || app.Recall == nil {
		logHookActivity(app, eventName, "unavailable", 0, 0, "")
		return Output{}
	}
	doc, err := app.Recall.ProactiveRecall(ctx, recall.ProactiveRecallOptions{
		TriggerTerms: terms,
		Spec:         spec,
		Domain:       recall.DomainBoth,
	})
	if err != nil {
		logHookActivity(app, eventName, "error", 0, 0, err.Error())
		return Output{}
	}
	surfaced := 0
	for _, section := range doc.Sections {
		surfaced += len(section.Elements)
	}
	rendered := recall.RenderContext(doc)
	if strings.TrimSpace(rendered) == "" {
		logHookActivity(app, eventName, "empty", surfaced, doc.TokenEstimate, "")
		return Output{}
	}
	logHookActivity(app, eventName, "ok", surfaced, doc.TokenEstimate, "")
	return Output{
		HookSpecificOutput: &HookSpecific{
			HookEventName:     eventName,
			AdditionalContext: "<" + envelopeTag + " version=\"" + doc.Hash + "\">\n" + rendered + "</" + envelopeTag + ">",
		},
	}
}

// logHookActivity records one hook invocation to the derived index's
// hook_activity table for gitmem status --verbose to surface. Best-effort:
// a logging failure never changes what the host process sees on stdout.
func logHookActivity(app *appctx.Context, eventName, status string, surfaced, tokens int, errMsg string) {
	if app == nil || app.ProjectIndex == nil {
		return
	}
	_ = app.ProjectIndex.InsertHookActivity(store.HookActivityRecord{
		HookName:         eventName,
		Status:           status,
		SurfacedMemories: surfaced,
		EstimatedTokens:  tokens,
		ErrorMessage:     errMsg,
	})
}

// promptTerms splits a user prompt into trigger-term candidates for the
// semantic slice: sentences/clauses, since proactive_recall's own
// minMeaningfulWords gate filters out anything too short to carry signal.
func promptTerms(prompt string) []string {
	if strings.TrimSpace(prompt) == "" {
		return nil
	}
	raw := strings.FieldsFunc(prompt, func(r rune) bool {
		return r == '.' || r == '\n' || r == '!' || r == '?'
	})
	out := make([]string, 0, len(raw)+1)
	out = append(out, prompt)
	for _, r := range raw {
		if t := strings.TrimSpace(r); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// deriveSummary builds a codec-safe summary (<=100 chars, single line)
// from captured content, for marker syntax that doesn't carry an explicit
// summary line. This is gitmem's own derivation, not a silent truncation of
// caller-supplied input — the codec rejects an oversize explicit summary
// outright rather than truncating it.
func deriveSummary(content string) string {
	line := strings.TrimSpace(strings.SplitN(content, "\n", 2)[0])
	if len(line) <= memtypes.MaxSummaryLen {
		return line
	}
	runes := []rune(line)
	const keep = 80 // generous headroom below MaxSummaryLen for multi-byte runes
	if len(runes) > keep {
		runes = runes[:keep]
	}
	summary := string(runes)
	for len(summary) > memtypes.MaxSummaryLen {
		runes = runes[:len(runes)-1]
		summary = string(runes)
	}
	return summary
}
