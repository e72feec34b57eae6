package entities

import (
	"fmt"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Role identifies the author of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
	RoleUnknown   Role = "unknown"
)

// ParseRole maps a wire string onto a Role. Unrecognised values become RoleUnknown.
func ParseRole(s string) Role {
	switch Role(strings.ToLower(s)) {
	case RoleUser:
		return RoleUser
	case RoleAssistant:
		return RoleAssistant
	case RoleSystem:
		return RoleSystem
	case RoleTool:
		return RoleTool
	default:
		return RoleUnknown
	}
}

// ContentKind tags the active variant of a Content value.
type ContentKind string

const (
	ContentNone       ContentKind = "none"
	ContentText       ContentKind = "text"
	ContentToolSchema ContentKind = "tool-schema"
	ContentToolInput  ContentKind = "tool-input"
	ContentToolOutput ContentKind = "tool-output"
)

// TextContent is a plain text fragment of a message.
type TextContent struct {
	Text        string `json:"text"`
	ContentType string `json:"content_type"`
}

// ToolSchema describes a tool a component advertises. ID is stable for the
// lifetime of the providing component.
type ToolSchema struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	ParamsSchema string `json:"params_schema"`
}

// ToolInput is a model-issued request to invoke a tool.
type ToolInput struct {
	Input       *orderedmap.OrderedMap[string, string] `json:"input"`
	ContentType string                                 `json:"content_type"`
	ID          string                                 `json:"id"`
	Name        string                                 `json:"name"`
}

// NewToolInput creates a ToolInput with an empty ordered argument map.
func NewToolInput(id, name string) *ToolInput {
	return &ToolInput{
		ID:          id,
		Name:        name,
		ContentType: "application/json",
		Input:       orderedmap.New[string, string](),
	}
}

// Set appends or replaces an argument, preserving first-insertion order.
func (t *ToolInput) Set(key, value string) *ToolInput {
	if t.Input == nil {
		t.Input = orderedmap.New[string, string]()
	}
	t.Input.Set(key, value)
	return t
}

// Arguments returns the arguments as a plain map.
func (t *ToolInput) Arguments() map[string]string {
	out := make(map[string]string)
	if t.Input == nil {
		return out
	}
	for pair := t.Input.Oldest(); pair != nil; pair = pair.Next() {
		out[pair.Key] = pair.Value
	}
	return out
}

// ToolOutput is the result of a tool invocation, correlated by ID with its ToolInput.
type ToolOutput struct {
	ContentType string `json:"content_type"`
	ID          string `json:"id"`
	Name        string `json:"name"`
	Output      string `json:"output"`
}

// Content is a tagged variant. Exactly one payload field is set, matching Kind.
type Content struct {
	Text       *TextContent `json:"text,omitempty"`
	ToolSchema *ToolSchema  `json:"tool_schema,omitempty"`
	ToolInput  *ToolInput   `json:"tool_input,omitempty"`
	ToolOutput *ToolOutput  `json:"tool_output,omitempty"`
	Kind       ContentKind  `json:"kind"`
}

// NoContent returns the empty variant.
func NoContent() Content {
	return Content{Kind: ContentNone}
}

// NewTextContent returns a text/plain content entry.
func NewTextContent(text string) Content {
	return Content{Kind: ContentText, Text: &TextContent{Text: text, ContentType: "text/plain"}}
}

// NewToolSchemaContent wraps a ToolSchema.
func NewToolSchemaContent(s ToolSchema) Content {
	return Content{Kind: ContentToolSchema, ToolSchema: &s}
}

// NewToolInputContent wraps a ToolInput.
func NewToolInputContent(in *ToolInput) Content {
	return Content{Kind: ContentToolInput, ToolInput: in}
}

// NewToolOutputContent wraps a ToolOutput.
func NewToolOutputContent(out ToolOutput) Content {
	return Content{Kind: ContentToolOutput, ToolOutput: &out}
}

// Message is a single conversation turn.
type Message struct {
	Role    Role      `json:"role"`
	Content []Content `json:"content"`
}

// NewUserMessage builds a user message holding a single text entry.
func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Content: []Content{NewTextContent(text)}}
}

// Text concatenates all text entries of the message.
func (m Message) Text() string {
	var b strings.Builder
	for _, c := range m.Content {
		if c.Kind == ContentText && c.Text != nil {
			b.WriteString(c.Text.Text)
		}
	}
	return b.String()
}

// ToolInputs returns the tool-input entries in order.
func (m Message) ToolInputs() []*ToolInput {
	var out []*ToolInput
	for _, c := range m.Content {
		if c.Kind == ContentToolInput && c.ToolInput != nil {
			out = append(out, c.ToolInput)
		}
	}
	return out
}

// ToolOutputs returns the tool-output entries in order.
func (m Message) ToolOutputs() []*ToolOutput {
	var out []*ToolOutput
	for _, c := range m.Content {
		if c.Kind == ContentToolOutput && c.ToolOutput != nil {
			out = append(out, c.ToolOutput)
		}
	}
	return out
}

// CheckToolPairing verifies that every tool-output in history is preceded by
// a tool-input with the same id, and that no two outstanding calls share an id.
func CheckToolPairing(history []Message) error {
	outstanding := make(map[string]bool)
	for i, msg := range history {
		for _, in := range msg.ToolInputs() {
			if outstanding[in.ID] {
				return fmt.Errorf("message %d: duplicate outstanding tool call id %q", i, in.ID)
			}
			outstanding[in.ID] = true
		}
		for _, out := range msg.ToolOutputs() {
			if !outstanding[out.ID] {
				return fmt.Errorf("message %d: tool output %q has no preceding tool input", i, out.ID)
			}
			delete(outstanding, out.ID)
		}
	}
	return nil
}
