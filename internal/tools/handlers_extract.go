package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// ExtractSessionArgs is memory_extract_session's argument shape; Action is
// one of "list", "get", "complete".
type ExtractSessionArgs struct {
	Action     string `json:"action"`
	SessionID  string `json:"session_id,omitempty"`
	Status     string `json:"status,omitempty"`
	ChunkIndex int    `json:"chunk_index,omitempty"`
}

func (e *Engine) handleExtractSession(ctx context.Context, raw json.RawMessage) Response {
	var args ExtractSessionArgs
	if err := decodeArgs(raw, &args); err != nil {
		return fail(err)
	}
	switch args.Action {
	case "list":
		entries, err := e.Queue.List(args.Status)
		if err != nil {
			return fail(err)
		}
		return ok(map[string]interface{}{"entries": entries})
	case "get":
		if args.SessionID == "" {
			return fail(fmt.Errorf("session_id is required"))
		}
		chunk, err := e.Queue.Get(args.SessionID, args.ChunkIndex)
		if err != nil {
			return fail(err)
		}
		return ok(chunk)
	case "complete":
		if args.SessionID == "" {
			return fail(fmt.Errorf("session_id is required"))
		}
		if err := e.Queue.Complete(args.SessionID); err != nil {
			return fail(err)
		}
		return ok(map[string]interface{}{"completed": true, "session_id": args.SessionID})
	default:
		return fail(fmt.Errorf("unknown action: %s", args.Action))
	}
}
