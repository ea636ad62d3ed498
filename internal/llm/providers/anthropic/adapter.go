package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/stencila/stencila/internal/llm"
)

const apiVersion = "2023-06-01"

const defaultMaxTokens = 8192

// Adapter speaks the Anthropic Messages API over HTTP with SSE streaming.
type Adapter struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

func init() {
	llm.RegisterEnvAdapterFactory(func() (llm.ProviderAdapter, bool, error) {
		if strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")) == "" {
			return nil, false, nil
		}
		a, err := NewFromEnv()
		if err != nil {
			return nil, true, err
		}
		return a, true, nil
	})
}

func NewFromEnv() (*Adapter, error) {
	key := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	if key == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is required")
	}
	return New(key, os.Getenv("ANTHROPIC_BASE_URL")), nil
}

func New(apiKey, baseURL string) *Adapter {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = "https://api.anthropic.com"
	}
	return &Adapter{
		APIKey:  strings.TrimSpace(apiKey),
		BaseURL: base,
		Client:  &http.Client{Timeout: 0},
	}
}

func (a *Adapter) Name() string { return "anthropic" }

func (a *Adapter) Close() error {
	if a.Client != nil {
		a.Client.CloseIdleConnections()
	}
	return nil
}

func (a *Adapter) buildBody(req llm.Request, stream bool) (map[string]any, error) {
	system, messages, err := toMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	maxTokens := defaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	body := map[string]any{
		"model":      req.Model,
		"messages":   messages,
		"max_tokens": maxTokens,
	}
	if stream {
		body["stream"] = true
	}
	if system != "" {
		body["system"] = system
	}
	if len(req.Tools) > 0 {
		tools := make([]map[string]any, 0, len(req.Tools))
		for _, t := range req.Tools {
			params := t.Parameters
			if params == nil {
				params = map[string]any{"type": "object", "properties": map[string]any{}}
			}
			tools = append(tools, map[string]any{
				"name":         t.Name,
				"description":  t.Description,
				"input_schema": params,
			})
		}
		body["tools"] = tools
	}
	if req.ToolChoice != nil {
		switch strings.ToLower(strings.TrimSpace(req.ToolChoice.Mode)) {
		case "", "auto":
			body["tool_choice"] = map[string]any{"type": "auto"}
		case "none":
			body["tool_choice"] = map[string]any{"type": "none"}
		case "required":
			body["tool_choice"] = map[string]any{"type": "any"}
		case "named":
			if strings.TrimSpace(req.ToolChoice.Name) == "" {
				return nil, &llm.ConfigurationError{Message: "tool_choice mode=named requires name"}
			}
			body["tool_choice"] = map[string]any{"type": "tool", "name": req.ToolChoice.Name}
		default:
			return nil, llm.NewUnsupportedToolChoiceError("anthropic", req.ToolChoice.Mode)
		}
	}
	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		body["top_p"] = *req.TopP
	}
	if req.ProviderOptions != nil {
		if ov, ok := req.ProviderOptions["anthropic"].(map[string]any); ok {
			for k, v := range ov {
				body[k] = v
			}
		}
	}
	return body, nil
}

func (a *Adapter) do(ctx context.Context, body map[string]any) (*http.Response, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/v1/messages", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("x-api-key", a.APIKey)
	httpReq.Header.Set("anthropic-version", apiVersion)
	httpReq.Header.Set("Content-Type", "application/json")
	if a.Client == nil {
		a.Client = &http.Client{Timeout: 0}
	}
	return a.Client.Do(httpReq)
}

func (a *Adapter) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	body, err := a.buildBody(req, false)
	if err != nil {
		return llm.Response{}, err
	}
	resp, err := a.do(ctx, body)
	if err != nil {
		return llm.Response{}, llm.WrapContextError(a.Name(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	var raw map[string]any
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return llm.Response{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		ra := llm.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		msg := fmt.Sprintf("messages.create failed: %v", raw)
		return llm.Response{}, llm.ErrorFromHTTPStatus(a.Name(), resp.StatusCode, msg, raw, ra)
	}
	return fromMessages(raw, req.Model), nil
}

func (a *Adapter) Stream(ctx context.Context, req llm.Request) (llm.Stream, error) {
	sctx, cancel := context.WithCancel(ctx)

	body, err := a.buildBody(req, true)
	if err != nil {
		cancel()
		return nil, err
	}
	b, err := json.Marshal(body)
	if err != nil {
		cancel()
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(sctx, http.MethodPost, a.BaseURL+"/v1/messages", bytes.NewReader(b))
	if err != nil {
		cancel()
		return nil, err
	}
	httpReq.Header.Set("x-api-key", a.APIKey)
	httpReq.Header.Set("anthropic-version", apiVersion)
	httpReq.Header.Set("Content-Type", "application/json")
	if a.Client == nil {
		a.Client = &http.Client{Timeout: 0}
	}

	resp, err := a.Client.Do(httpReq)
	if err != nil {
		cancel()
		return nil, llm.WrapContextError(a.Name(), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer func() { _ = resp.Body.Close() }()
		var raw map[string]any
		dec := json.NewDecoder(resp.Body)
		dec.UseNumber()
		_ = dec.Decode(&raw)
		ra := llm.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		msg := fmt.Sprintf("messages.create(stream) failed: %v", raw)
		cancel()
		return nil, llm.ErrorFromHTTPStatus(a.Name(), resp.StatusCode, msg, raw, ra)
	}

	s := llm.NewChanStream(cancel)

	go func() {
		defer func() {
			_ = resp.Body.Close()
			s.CloseSend()
		}()

		s.Send(llm.StreamEvent{Type: llm.StreamEventStreamStart})

		// Per-block reassembly state, keyed by content block index.
		type blockState struct {
			kind   string // "text" | "tool_use" | "thinking"
			textID string
			callID string
			name   string
			args   strings.Builder
		}
		blocks := map[int64]*blockState{}
		response := llm.Response{Provider: a.Name(), Model: req.Model, Message: llm.Message{Role: llm.RoleAssistant}}
		finished := false

		_ = llm.ParseSSE(sctx, resp.Body, func(ev llm.SSEEvent) error {
			var payload map[string]any
			dec := json.NewDecoder(bytes.NewReader(ev.Data))
			dec.UseNumber()
			if err := dec.Decode(&payload); err != nil {
				s.Send(llm.StreamEvent{Type: llm.StreamEventProviderEvent, Raw: map[string]any{"event": ev.Event, "data": string(ev.Data)}})
				return nil
			}
			typ, _ := payload["type"].(string)
			if typ == "" {
				typ = ev.Event
			}

			switch typ {
			case "message_start":
				if msg, ok := payload["message"].(map[string]any); ok {
					if id, _ := msg["id"].(string); id != "" {
						response.ID = id
					}
					if m, _ := msg["model"].(string); m != "" {
						response.Model = m
					}
				}
			case "content_block_start":
				index := numberOr(payload, "index", 0)
				block, _ := payload["content_block"].(map[string]any)
				kind, _ := block["type"].(string)
				st := &blockState{kind: kind}
				blocks[index] = st
				switch kind {
				case "text":
					st.textID = fmt.Sprintf("text_%d", index)
					s.Send(llm.StreamEvent{Type: llm.StreamEventTextStart, TextID: st.textID, Raw: payload})
				case "thinking":
					st.textID = fmt.Sprintf("reasoning_%d", index)
					s.Send(llm.StreamEvent{Type: llm.StreamEventReasoningStart, TextID: st.textID, Raw: payload})
				case "tool_use":
					st.callID, _ = block["id"].(string)
					st.name, _ = block["name"].(string)
					call := llm.ToolCallData{ID: st.callID, Name: st.name, Type: "function"}
					s.Send(llm.StreamEvent{Type: llm.StreamEventToolCallStart, ToolCall: &call, Raw: payload})
				default:
					s.Send(llm.StreamEvent{Type: llm.StreamEventProviderEvent, Raw: payload})
				}
			case "content_block_delta":
				index := numberOr(payload, "index", 0)
				st := blocks[index]
				if st == nil {
					s.Send(llm.StreamEvent{Type: llm.StreamEventProviderEvent, Raw: payload})
					return nil
				}
				delta, _ := payload["delta"].(map[string]any)
				deltaType, _ := delta["type"].(string)
				switch deltaType {
				case "text_delta":
					text, _ := delta["text"].(string)
					s.Send(llm.StreamEvent{Type: llm.StreamEventTextDelta, TextID: st.textID, Delta: text, Raw: payload})
				case "thinking_delta":
					text, _ := delta["thinking"].(string)
					s.Send(llm.StreamEvent{Type: llm.StreamEventReasoningDelta, TextID: st.textID, ReasoningDelta: text, Raw: payload})
				case "input_json_delta":
					partial, _ := delta["partial_json"].(string)
					st.args.WriteString(partial)
					call := llm.ToolCallData{ID: st.callID, Name: st.name, Type: "function", RawArguments: partial}
					s.Send(llm.StreamEvent{Type: llm.StreamEventToolCallDelta, ToolCall: &call, Raw: payload})
				default:
					s.Send(llm.StreamEvent{Type: llm.StreamEventProviderEvent, Raw: payload})
				}
			case "content_block_stop":
				index := numberOr(payload, "index", 0)
				st := blocks[index]
				if st == nil {
					s.Send(llm.StreamEvent{Type: llm.StreamEventProviderEvent, Raw: payload})
					return nil
				}
				switch st.kind {
				case "text":
					s.Send(llm.StreamEvent{Type: llm.StreamEventTextEnd, TextID: st.textID, Raw: payload})
				case "thinking":
					s.Send(llm.StreamEvent{Type: llm.StreamEventReasoningEnd, TextID: st.textID, Raw: payload})
				case "tool_use":
					raw := st.args.String()
					parsed, parseError := llm.ParseToolArguments(raw)
					call := llm.ToolCallData{ID: st.callID, Name: st.name, Type: "function", RawArguments: raw, ParseError: parseError}
					if parseError == "" {
						b, _ := json.Marshal(parsed)
						call.Arguments = b
					}
					response.Message.Content = append(response.Message.Content, llm.ContentPart{Kind: llm.ContentToolCall, ToolCall: &call})
					s.Send(llm.StreamEvent{Type: llm.StreamEventToolCallEnd, ToolCall: &call, Raw: payload})
				}
				delete(blocks, index)
			case "message_delta":
				if delta, ok := payload["delta"].(map[string]any); ok {
					if reason, _ := delta["stop_reason"].(string); reason != "" {
						response.Finish = llm.FinishReason{Reason: mapStopReason(reason)}
					}
				}
				if usage, ok := payload["usage"].(map[string]any); ok {
					response.Usage.OutputTokens = int(numberOr(usage, "output_tokens", 0))
					response.Usage.TotalTokens = response.Usage.InputTokens + response.Usage.OutputTokens
				}
			case "message_stop":
				finish := response.Finish
				if finish.Reason == "" {
					finish = llm.FinishReason{Reason: "stop"}
				}
				usage := response.Usage
				rp := response
				s.Send(llm.StreamEvent{Type: llm.StreamEventFinish, FinishReason: &finish, Usage: &usage, Response: &rp, Raw: payload})
				finished = true
				cancel()
			case "error":
				message := "anthropic stream failed"
				if errObj, ok := payload["error"].(map[string]any); ok {
					if m, _ := errObj["message"].(string); m != "" {
						message = m
					}
				}
				s.Send(llm.StreamEvent{
					Type: llm.StreamEventError,
					Err:  &llm.ServerError{ProviderName: a.Name(), Message: message, IsRetryable: true, Raw: payload},
					Raw:  payload,
				})
				finished = true
				cancel()
			case "ping":
				// keepalive
			default:
				s.Send(llm.StreamEvent{Type: llm.StreamEventProviderEvent, Raw: payload})
			}
			return nil
		})

		if !finished {
			if err := sctx.Err(); err != nil {
				s.Send(llm.StreamEvent{Type: llm.StreamEventError, Err: llm.WrapContextError(a.Name(), err)})
			}
		}
	}()

	return s, nil
}

func mapStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "length"
	case "tool_use":
		return "tool_calls"
	default:
		return reason
	}
}

func toMessages(msgs []llm.Message) (system string, out []map[string]any, _ error) {
	var systemParts []string
	for _, m := range msgs {
		switch m.Role {
		case llm.RoleSystem, llm.RoleDeveloper:
			if t := strings.TrimSpace(m.Text()); t != "" {
				systemParts = append(systemParts, t)
			}
		}
	}
	system = strings.Join(systemParts, "\n\n")

	for _, m := range msgs {
		switch m.Role {
		case llm.RoleSystem, llm.RoleDeveloper:
			continue
		case llm.RoleUser, llm.RoleAssistant:
			var content []map[string]any
			for _, p := range m.Content {
				switch p.Kind {
				case llm.ContentText:
					if strings.TrimSpace(p.Text) == "" {
						continue
					}
					content = append(content, map[string]any{"type": "text", "text": p.Text})
				case llm.ContentImage:
					if p.Image == nil || len(p.Image.Data) == 0 {
						continue
					}
					mt := p.Image.MediaType
					if mt == "" {
						mt = "image/png"
					}
					content = append(content, map[string]any{
						"type": "image",
						"source": map[string]any{
							"type":       "base64",
							"media_type": mt,
							"data":       p.Image.Data,
						},
					})
				case llm.ContentToolCall:
					if p.ToolCall == nil {
						continue
					}
					var input any = map[string]any{}
					if len(p.ToolCall.Arguments) > 0 {
						_ = json.Unmarshal(p.ToolCall.Arguments, &input)
					}
					content = append(content, map[string]any{
						"type":  "tool_use",
						"id":    p.ToolCall.ID,
						"name":  p.ToolCall.Name,
						"input": input,
					})
				}
			}
			if len(content) > 0 {
				out = append(out, map[string]any{"role": string(m.Role), "content": content})
			}
		case llm.RoleTool:
			for _, p := range m.Content {
				if p.Kind != llm.ContentToolResult || p.ToolResult == nil {
					continue
				}
				contentStr := ""
				switch v := p.ToolResult.Content.(type) {
				case string:
					contentStr = v
				default:
					b, _ := json.Marshal(v)
					contentStr = string(b)
				}
				out = append(out, map[string]any{
					"role": "user",
					"content": []map[string]any{{
						"type":        "tool_result",
						"tool_use_id": p.ToolResult.ToolCallID,
						"content":     contentStr,
						"is_error":    p.ToolResult.IsError,
					}},
				})
			}
		}
	}
	return system, out, nil
}

func fromMessages(raw map[string]any, requestedModel string) llm.Response {
	r := llm.Response{Provider: "anthropic", Model: requestedModel, Raw: raw}
	if id, _ := raw["id"].(string); id != "" {
		r.ID = id
	}
	if m, _ := raw["model"].(string); m != "" {
		r.Model = m
	}

	msg := llm.Message{Role: llm.RoleAssistant}
	if content, ok := raw["content"].([]any); ok {
		for _, cAny := range content {
			c, ok := cAny.(map[string]any)
			if !ok {
				continue
			}
			switch c["type"] {
			case "text":
				if text, _ := c["text"].(string); text != "" {
					msg.Content = append(msg.Content, llm.ContentPart{Kind: llm.ContentText, Text: text})
				}
			case "tool_use":
				id, _ := c["id"].(string)
				name, _ := c["name"].(string)
				input := c["input"]
				b, _ := json.Marshal(input)
				msg.Content = append(msg.Content, llm.ContentPart{
					Kind: llm.ContentToolCall,
					ToolCall: &llm.ToolCallData{
						ID: id, Name: name, Arguments: b, Type: "function", RawArguments: string(b),
					},
				})
			}
		}
	}
	r.Message = msg

	if reason, _ := raw["stop_reason"].(string); reason != "" {
		r.Finish = llm.FinishReason{Reason: mapStopReason(reason)}
	} else if len(r.ToolCalls()) > 0 {
		r.Finish = llm.FinishReason{Reason: "tool_calls"}
	} else {
		r.Finish = llm.FinishReason{Reason: "stop"}
	}

	if usage, ok := raw["usage"].(map[string]any); ok {
		r.Usage.InputTokens = int(numberOr(usage, "input_tokens", 0))
		r.Usage.OutputTokens = int(numberOr(usage, "output_tokens", 0))
		r.Usage.TotalTokens = r.Usage.InputTokens + r.Usage.OutputTokens
	}
	return r
}

func numberOr(m map[string]any, key string, fallback int64) int64 {
	switch v := m[key].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
	case float64:
		return int64(v)
	}
	return fallback
}
