package daemon

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// SentinelID addresses responses to frames whose id could not be recovered.
const SentinelID = "unknown"

// maxFrameSize bounds a single command frame. Storage-state payloads can be
// large but are still far below this.
const maxFrameSize = 16 * 1024 * 1024

// Request is one decoded command frame. Action-specific fields arrive flat
// in the frame object and are collected into Params.
type Request struct {
	ID     string
	Action string
	Params map[string]any
}

// Response is one reply frame. Warnings carries non-fatal soft failures
// (auto-load/auto-save) accumulated while executing the command.
type Response struct {
	ID       string   `json:"id"`
	Success  bool     `json:"success"`
	Data     any      `json:"data,omitempty"`
	Error    string   `json:"error,omitempty"`
	Code     string   `json:"code,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// ParseFrame decodes one newline-delimited frame into a Request. The frame
// must be a JSON object with a string id and a non-empty string action;
// anything else is a protocol parse error.
func ParseFrame(line []byte) (*Request, error) {
	var raw map[string]any
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	id, _ := raw["id"].(string)
	action, _ := raw["action"].(string)
	if action == "" {
		return nil, fmt.Errorf("missing action")
	}

	params := make(map[string]any, len(raw))
	for key, value := range raw {
		if key == "id" || key == "action" {
			continue
		}
		params[key] = value
	}
	return &Request{ID: id, Action: action, Params: params}, nil
}

var idPattern = regexp.MustCompile(`"id"\s*:\s*"((?:[^"\\]|\\.)*)"`)

// recoverID extracts the best-effort request id from a malformed frame so
// the parse-error response can still be addressed. Falls back to SentinelID
// when nothing is recoverable.
func recoverID(line []byte) string {
	var partial struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(line, &partial); err == nil && partial.ID != "" {
		return partial.ID
	}
	if m := idPattern.FindSubmatch(line); m != nil && len(m[1]) > 0 {
		return string(m[1])
	}
	return SentinelID
}

// ok builds a success response.
func ok(id string, data any, warnings []string) Response {
	return Response{ID: id, Success: true, Data: data, Warnings: warnings}
}

// fail builds an error response with a wire code.
func fail(id string, err error, code string, warnings []string) Response {
	return Response{ID: id, Success: false, Error: err.Error(), Code: code, Warnings: warnings}
}
