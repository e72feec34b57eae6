package agent

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/hayride-dev/hayride-go/domain/entities"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Tags that delimit a tool call in raw model text.
const (
	ToolCallOpen  = "<tool_call>"
	ToolCallClose = "</tool_call>"
)

type rawToolCall struct {
	Arguments *orderedmap.OrderedMap[string, json.RawMessage] `json:"arguments"`
	ID        string                                          `json:"id"`
	Name      string                                          `json:"name"`
}

// ParseToolCalls extracts the tool calls embedded in model text as
//
//	<tool_call>{"name": "weather", "arguments": {"city": "Oslo", "days": 3}}</tool_call>
//
// and returns the text with the calls removed. Argument order is preserved.
// String arguments keep their value; other JSON values keep their compact
// encoding. Calls without an id get a fresh one.
//
// A call whose body does not decode is still returned, with an empty name
// and its body under the "raw" argument, so the caller can answer it with an
// error output. The decode failures are joined into the returned error.
func ParseToolCalls(text string) (string, []*entities.ToolInput, error) {
	var (
		rest  strings.Builder
		calls []*entities.ToolInput
		errs  []error
	)
	for {
		start := strings.Index(text, ToolCallOpen)
		if start < 0 {
			rest.WriteString(text)
			break
		}
		rest.WriteString(text[:start])
		body := text[start+len(ToolCallOpen):]
		end := strings.Index(body, ToolCallClose)
		if end < 0 {
			// An unterminated call runs to the end of the text.
			end = len(body)
			text = ""
		} else {
			text = body[end+len(ToolCallClose):]
		}
		call, err := parseToolCall(strings.TrimSpace(body[:end]))
		if err != nil {
			errs = append(errs, err)
		}
		calls = append(calls, call)
	}
	return strings.TrimSpace(rest.String()), calls, errors.Join(errs...)
}

func parseToolCall(body string) (*entities.ToolInput, error) {
	var raw rawToolCall
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		in := entities.NewToolInput(uuid.NewString(), "")
		in.Set("raw", body)
		return in, fmt.Errorf("malformed tool call %q: %w", body, err)
	}
	id := raw.ID
	if id == "" {
		id = uuid.NewString()
	}
	in := entities.NewToolInput(id, strings.TrimSpace(raw.Name))
	if raw.Arguments == nil {
		return in, nil
	}
	for pair := raw.Arguments.Oldest(); pair != nil; pair = pair.Next() {
		in.Set(pair.Key, argumentValue(pair.Value))
	}
	return in, nil
}

func argumentValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return string(raw)
	}
	return compact.String()
}
