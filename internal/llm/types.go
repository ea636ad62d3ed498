package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleDeveloper Role = "developer"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

type ContentKind string

const (
	ContentText       ContentKind = "text"
	ContentImage      ContentKind = "image"
	ContentAudio      ContentKind = "audio"
	ContentDocument   ContentKind = "document"
	ContentToolCall   ContentKind = "tool_call"
	ContentToolResult ContentKind = "tool_result"
)

type ImageData struct {
	URL       string `json:"url,omitempty"`
	Data      []byte `json:"data,omitempty"`
	MediaType string `json:"media_type,omitempty"`
}

// ToolCallData is a tool invocation requested by the model. Arguments is
// the parsed JSON argument object; RawArguments preserves the exact
// accumulated argument text and ParseError records a non-fatal JSON parse
// failure (the raw text is still available in that case).
type ToolCallData struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Arguments    json.RawMessage `json:"arguments,omitempty"`
	Type         string          `json:"type,omitempty"`
	RawArguments string          `json:"raw_arguments,omitempty"`
	ParseError   string          `json:"parse_error,omitempty"`
}

type ToolResultData struct {
	ToolCallID string `json:"tool_call_id"`
	Content    any    `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

type ContentPart struct {
	Kind       ContentKind     `json:"kind"`
	Text       string          `json:"text,omitempty"`
	Image      *ImageData      `json:"image,omitempty"`
	ToolCall   *ToolCallData   `json:"tool_call,omitempty"`
	ToolResult *ToolResultData `json:"tool_result,omitempty"`
}

type Message struct {
	Role    Role          `json:"role"`
	Content []ContentPart `json:"content"`
}

// Text concatenates the message's text parts.
func (m Message) Text() string {
	var b strings.Builder
	for _, p := range m.Content {
		if p.Kind == ContentText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

func System(text string) Message {
	return Message{Role: RoleSystem, Content: []ContentPart{{Kind: ContentText, Text: text}}}
}

func User(text string) Message {
	return Message{Role: RoleUser, Content: []ContentPart{{Kind: ContentText, Text: text}}}
}

func Assistant(text string) Message {
	return Message{Role: RoleAssistant, Content: []ContentPart{{Kind: ContentText, Text: text}}}
}

// ToolResult builds a tool-role message carrying one tool result.
func ToolResult(callID string, content any, isError bool) Message {
	return Message{Role: RoleTool, Content: []ContentPart{{
		Kind:       ContentToolResult,
		ToolResult: &ToolResultData{ToolCallID: callID, Content: content, IsError: isError},
	}}}
}

type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Strict      bool           `json:"strict,omitempty"`
}

// ToolChoice constrains which tool the model may call. Mode is one of
// "auto", "none", "required" or "named" (Name required).
type ToolChoice struct {
	Mode string `json:"mode"`
	Name string `json:"name,omitempty"`
}

type ResponseFormat struct {
	Type       string         `json:"type"`
	JSONSchema map[string]any `json:"json_schema,omitempty"`
	Strict     bool           `json:"strict,omitempty"`
}

type Request struct {
	Provider string    `json:"provider,omitempty"`
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`

	Tools      []ToolDefinition `json:"tools,omitempty"`
	ToolChoice *ToolChoice      `json:"tool_choice,omitempty"`

	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"top_p,omitempty"`
	MaxTokens       *int     `json:"max_tokens,omitempty"`
	ReasoningEffort *string  `json:"reasoning_effort,omitempty"`

	ResponseFormat *ResponseFormat   `json:"response_format,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`

	// ProviderOptions is the per-provider escape hatch; keys are provider
	// option keys, values are merged into the provider request body.
	ProviderOptions map[string]any `json:"provider_options,omitempty"`
}

func (r Request) Validate() error {
	if strings.TrimSpace(r.Model) == "" {
		return &ConfigurationError{Message: "request.model is required"}
	}
	if len(r.Messages) == 0 {
		return &ConfigurationError{Message: "request.messages must not be empty"}
	}
	return nil
}

type FinishReason struct {
	Reason string `json:"reason"`
}

type Usage struct {
	InputTokens     int            `json:"input_tokens"`
	OutputTokens    int            `json:"output_tokens"`
	TotalTokens     int            `json:"total_tokens"`
	ReasoningTokens *int           `json:"reasoning_tokens,omitempty"`
	CacheReadTokens *int           `json:"cache_read_tokens,omitempty"`
	Raw             map[string]any `json:"raw,omitempty"`
}

// RateLimitInfo carries provider rate-limit headers captured from a
// response, surfaced on Finish events.
type RateLimitInfo struct {
	RequestsRemaining *int `json:"requests_remaining,omitempty"`
	TokensRemaining   *int `json:"tokens_remaining,omitempty"`
	ResetSeconds      *int `json:"reset_seconds,omitempty"`
}

type Response struct {
	ID        string         `json:"id,omitempty"`
	Provider  string         `json:"provider"`
	Model     string         `json:"model"`
	Message   Message        `json:"message"`
	Finish    FinishReason   `json:"finish"`
	Usage     Usage          `json:"usage"`
	RateLimit *RateLimitInfo `json:"rate_limit,omitempty"`
	Raw       map[string]any `json:"raw,omitempty"`
}

// Text concatenates the text parts of the response message.
func (r Response) Text() string { return r.Message.Text() }

// ToolCalls returns the tool calls requested in the response message.
func (r Response) ToolCalls() []ToolCallData {
	var out []ToolCallData
	for _, p := range r.Message.Content {
		if p.Kind == ContentToolCall && p.ToolCall != nil {
			out = append(out, *p.ToolCall)
		}
	}
	return out
}

var toolNameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// ValidateToolName checks a tool name against the cross-provider safe
// charset.
func ValidateToolName(name string) error {
	if !toolNameRe.MatchString(name) {
		return &ConfigurationError{Message: fmt.Sprintf("invalid tool name: %q", name)}
	}
	return nil
}

// ParseToolArguments parses a raw tool-argument string into a JSON object.
// Parse errors are non-fatal: the raw string is preserved by the caller
// and the error message returned for surfacing.
func ParseToolArguments(raw string) (map[string]any, string) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return map[string]any{}, ""
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return nil, err.Error()
	}
	return parsed, ""
}
