// Package hooktransport implements the hook-facing JSON-over-stdio
// protocol: one JSON document read from stdin, one written to stdout, exit
// 0 always — nonzero exit codes are never used for flow control; errors
// surface inside the JSON instead. Timeouts are enforced cooperatively via
// context.Context deadlines rather than OS signals, so the dispatch loop
// stays safe to call from library code.
package hooktransport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sgx-labs/gitmemory/internal/appctx"
)

// maxStdinBytes bounds hook input.
const maxStdinBytes = 10 * 1024 * 1024

// hookTimeout bounds total hook processing, covering a cold embedding
// provider plus one retry with margin.
const hookTimeout = 10 * time.Second

// Input is the JSON document a host process sends on stdin for any of the
// five lifecycle events.
type Input struct {
	Prompt         string `json:"prompt,omitempty"`
	TranscriptPath string `json:"transcript_path,omitempty"`
	SessionID      string `json:"session_id,omitempty"`
	HookEventName  string `json:"hook_event_name,omitempty"`
	ToolName       string `json:"tool_name,omitempty"`
	Spec           string `json:"spec,omitempty"`
}

// Output is the JSON document written to stdout.
type Output struct {
	HookSpecificOutput *HookSpecific `json:"hookSpecificOutput,omitempty"`
	SystemMessage      string        `json:"systemMessage,omitempty"`
}

// HookSpecific carries the envelope used for context injection: a
// uniquely-tagged, content-hashed block an outer host layer replaces rather
// than accumulates across turns.
type HookSpecific struct {
	HookEventName     string `json:"hookEventName"`
	AdditionalContext string `json:"additionalContext,omitempty"`
}

// Handler processes one hook invocation's Input and returns the Output to
// emit. It must never block longer than the context's deadline allows.
type Handler func(ctx context.Context, app *appctx.Context, in Input) Output

// handlers maps each of the five session lifecycle events to its
// processing function.
var handlers = map[string]Handler{
	"SessionStart":     handleSessionStart,
	"UserPromptSubmit": handleUserPromptSubmit,
	"Stop":             handleStop,
	"PreToolUse":       handlePreToolUse,
	"PostToolUse":      handlePostToolUse,
	"PreCompact":       handlePreCompact,
}

// Run reads stdin, dispatches eventName to its handler bound against app,
// and writes the resulting JSON to stdout. Panics are recovered so a bug
// in one handler never breaks the host's turn; any error is surfaced
// inside the JSON body, never via a nonzero exit.
func Run(app *appctx.Context, eventName string) {
	defer func() {
		if r := recover(); r != nil {
			emit(Output{SystemMessage: fmt.Sprintf("gitmem: internal error in %s hook: %v", eventName, r)})
		}
	}()

	in, ok := readInput()
	if !ok {
		emit(Output{})
		return
	}
	if in.HookEventName == "" {
		in.HookEventName = eventName
	}

	handler, ok := handlers[eventName]
	if !ok {
		emit(Output{})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
	defer cancel()

	emit(handler(ctx, app, in))
}

// readInput reads and decodes stdin, bounded to maxStdinBytes. A read or
// parse failure returns ok=false so Run emits an empty, non-blocking
// response rather than propagating an error through the hook boundary.
func readInput() (Input, bool) {
	data, err := io.ReadAll(io.LimitReader(os.Stdin, maxStdinBytes+1))
	if err != nil {
		return Input{}, false
	}
	if len(data) > maxStdinBytes {
		return Input{}, false
	}
	if len(data) == 0 {
		return Input{}, true
	}
	var in Input
	if err := json.Unmarshal(data, &in); err != nil {
		return Input{}, false
	}
	return in, true
}

func emit(out Output) {
	data, err := json.Marshal(out)
	if err != nil {
		fmt.Println("{}")
		return
	}
	fmt.Println(string(data))
}
