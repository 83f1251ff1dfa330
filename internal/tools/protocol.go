// Package tools is the tool dispatch facade: it validates and coerces tool
// arguments, sanitizes text before it reaches the core, and serializes
// every result to a human-readable JSON string so the calling protocol
// never has to know about the engine's internal error types.
package tools

import (
	"encoding/json"
	"fmt"
)

// Tool names, the stable surface the stdio request loop dispatches on.
const (
	ToolMemoryRecall         = "memory_recall"
	ToolMemorySave           = "memory_save"
	ToolMemoryUpdate         = "memory_update"
	ToolMemoryTimeline       = "memory_timeline"
	ToolMemoryStats          = "memory_stats"
	ToolMemoryConsolidate    = "memory_consolidate"
	ToolMemoryExport         = "memory_export"
	ToolMemoryForget         = "memory_forget"
	ToolMemoryHistory        = "memory_history"
	ToolMemoryDelete         = "memory_delete"
	ToolMemoryRelate         = "memory_relate"
	ToolMemorySearchByTag    = "memory_search_by_tag"
	ToolMemoryExtractSession = "memory_extract_session"
	ToolMemoryObserve        = "memory_observe"

	ToolSelfErrorLog     = "self_error_log"
	ToolSelfInsight      = "self_insight"
	ToolSelfRules        = "self_rules"
	ToolSelfPatterns     = "self_patterns"
	ToolSelfReflect      = "self_reflect"
	ToolSelfRulesContext = "self_rules_context"
)

// Request is one tool invocation, read as a single line of the stdio
// protocol.
type Request struct {
	Tool      string          `json:"tool"`
	Args      json.RawMessage `json:"args,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

// Response is always emitted, success or failure; Result carries the
// marshaled payload as indented JSON text, never a raw exception.
type Response struct {
	Success   bool   `json:"success"`
	Result    string `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func ok(v interface{}) Response {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fail(fmt.Errorf("marshal result: %w", err))
	}
	return Response{Success: true, Result: string(b)}
}

func fail(err error) Response {
	return Response{Success: false, Error: err.Error()}
}

func decodeArgs(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}
