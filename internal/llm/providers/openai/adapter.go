package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/stencila/stencila/internal/llm"
	"github.com/stencila/stencila/internal/providerspec"
)

// Adapter speaks the OpenAI Responses API over HTTP with SSE streaming.
type Adapter struct {
	Provider string
	APIKey   string
	BaseURL  string
	Client   *http.Client
}

func init() {
	llm.RegisterEnvAdapterFactory(func() (llm.ProviderAdapter, bool, error) {
		if strings.TrimSpace(os.Getenv("OPENAI_API_KEY")) == "" {
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
	key := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if key == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	return New(key, os.Getenv("OPENAI_BASE_URL")), nil
}

func New(apiKey, baseURL string) *Adapter {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = "https://api.openai.com"
	}
	return &Adapter{
		Provider: "openai",
		APIKey:   strings.TrimSpace(apiKey),
		BaseURL:  base,
		// No client-level timeout; request context deadlines govern.
		Client: &http.Client{Timeout: 0},
	}
}

func (a *Adapter) Name() string {
	if p := providerspec.CanonicalProviderKey(a.Provider); p != "" {
		return p
	}
	return "openai"
}

func (a *Adapter) buildBody(req llm.Request, stream bool) (map[string]any, error) {
	instructions, inputItems, err := toResponsesInput(req.Messages)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"model":               req.Model,
		"instructions":        instructions,
		"input":               inputItems,
		"parallel_tool_calls": false,
		"store":               false,
	}
	if stream {
		body["stream"] = true
	}
	if len(req.Tools) > 0 {
		body["tools"] = toResponsesTools(req.Tools)
	}
	if req.ToolChoice != nil {
		tc, err := toResponsesToolChoice(*req.ToolChoice)
		if err != nil {
			return nil, err
		}
		body["tool_choice"] = tc
	}
	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		body["top_p"] = *req.TopP
	}
	if req.MaxTokens != nil {
		body["max_output_tokens"] = *req.MaxTokens
	}
	if len(req.Metadata) > 0 {
		body["metadata"] = req.Metadata
	}
	if req.ReasoningEffort != nil {
		body["reasoning"] = map[string]any{"effort": *req.ReasoningEffort}
	}
	if req.ResponseFormat != nil {
		if rf := toResponsesResponseFormat(*req.ResponseFormat); rf != nil {
			body["response_format"] = rf
		}
	}
	// provider_options escape hatch.
	if req.ProviderOptions != nil {
		if ov, ok := req.ProviderOptions["openai"].(map[string]any); ok {
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
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/v1/responses", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.APIKey)
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
		msg := fmt.Sprintf("responses.create failed: %v", raw)
		return llm.Response{}, llm.ErrorFromHTTPStatus(a.Name(), resp.StatusCode, msg, raw, ra)
	}

	return fromResponses(a.Name(), raw, req.Model), nil
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
	httpReq, err := http.NewRequestWithContext(sctx, http.MethodPost, a.BaseURL+"/v1/responses", bytes.NewReader(b))
	if err != nil {
		cancel()
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.APIKey)
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
		msg := fmt.Sprintf("responses.create(stream) failed: %v", raw)
		cancel()
		return nil, llm.ErrorFromHTTPStatus(a.Name(), resp.StatusCode, msg, raw, ra)
	}

	s := llm.NewChanStream(cancel)
	state := newStreamState(a.Name(), req.Model, rateLimitFromHeaders(resp.Header))

	go func() {
		defer func() {
			_ = resp.Body.Close()
			s.CloseSend()
		}()

		parseErr := llm.ParseSSE(sctx, resp.Body, func(ev llm.SSEEvent) error {
			events, err := state.translateEvent(ev)
			if err != nil {
				return err
			}
			for _, out := range events {
				s.Send(out)
			}
			if state.finished {
				cancel()
			}
			return nil
		})

		if parseErr != nil && !state.finished {
			if sctx.Err() == nil {
				s.Send(llm.StreamEvent{Type: llm.StreamEventError, Err: parseErr})
				return
			}
			s.Send(llm.StreamEvent{Type: llm.StreamEventError, Err: llm.WrapContextError(a.Name(), sctx.Err())})
			return
		}
		for _, out := range state.onStreamEnd() {
			s.Send(out)
		}
	}()

	return s, nil
}

// Close closes the http.Client's idle connections; the client holds no
// pinned connections beyond its idle pool.
func (a *Adapter) Close() error {
	if a.Client != nil {
		a.Client.CloseIdleConnections()
	}
	return nil
}

func rateLimitFromHeaders(h http.Header) *llm.RateLimitInfo {
	parse := func(key string) *int {
		v := strings.TrimSpace(h.Get(key))
		if v == "" {
			return nil
		}
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
			return nil
		}
		return &n
	}
	requests := parse("x-ratelimit-remaining-requests")
	tokens := parse("x-ratelimit-remaining-tokens")
	if requests == nil && tokens == nil {
		return nil
	}
	return &llm.RateLimitInfo{RequestsRemaining: requests, TokensRemaining: tokens}
}

func toResponsesResponseFormat(rf llm.ResponseFormat) any {
	switch strings.ToLower(strings.TrimSpace(rf.Type)) {
	case "", "text":
		return nil
	case "json":
		return map[string]any{"type": "json"}
	case "json_schema":
		return map[string]any{
			"type":        "json_schema",
			"json_schema": rf.JSONSchema,
			"strict":      rf.Strict,
		}
	default:
		return nil
	}
}

func toResponsesTools(tools []llm.ToolDefinition) []map[string]any {
	out := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		// OpenAI strict mode requires object schemas to set
		// additionalProperties=false and required to list every property.
		params = strictifyJSONSchema(params)
		out = append(out, map[string]any{
			"type":        "function",
			"name":        t.Name,
			"description": t.Description,
			"parameters":  params,
			"strict":      true,
		})
	}
	return out
}

func strictifyJSONSchema(in map[string]any) map[string]any {
	cp := deepCopyAny(in).(map[string]any)
	strictifyInPlace(cp)
	return cp
}

func strictifyInPlace(m map[string]any) {
	if m == nil {
		return
	}
	typ, _ := m["type"].(string)
	switch typ {
	case "object":
		m["additionalProperties"] = false
		props, _ := m["properties"].(map[string]any)
		if props == nil {
			props = map[string]any{}
			m["properties"] = props
		}
		keys := make([]string, 0, len(props))
		for k := range props {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m["required"] = keys
		for _, k := range keys {
			if child, ok := props[k].(map[string]any); ok {
				strictifyInPlace(child)
			}
		}
	case "array":
		if items, ok := m["items"].(map[string]any); ok {
			strictifyInPlace(items)
		}
	}
	for _, comb := range []string{"anyOf", "oneOf", "allOf"} {
		arr, ok := m[comb].([]any)
		if !ok {
			continue
		}
		for _, it := range arr {
			if child, ok := it.(map[string]any); ok {
				strictifyInPlace(child)
			}
		}
	}
}

func deepCopyAny(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, vv := range x {
			out[k] = deepCopyAny(vv)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = deepCopyAny(x[i])
		}
		return out
	default:
		return v
	}
}

func toResponsesToolChoice(tc llm.ToolChoice) (any, error) {
	switch strings.ToLower(strings.TrimSpace(tc.Mode)) {
	case "", "auto":
		return "auto", nil
	case "none":
		return "none", nil
	case "required":
		return "required", nil
	case "named":
		if strings.TrimSpace(tc.Name) == "" {
			return nil, &llm.ConfigurationError{Message: "tool_choice mode=named requires name"}
		}
		return map[string]any{
			"type":     "function",
			"function": map[string]any{"name": tc.Name},
		}, nil
	default:
		if strings.TrimSpace(tc.Name) != "" {
			return map[string]any{
				"type":     "function",
				"function": map[string]any{"name": tc.Name},
			}, nil
		}
		return nil, llm.NewUnsupportedToolChoiceError("openai", tc.Mode)
	}
}

func toResponsesInput(msgs []llm.Message) (instructions string, items []any, _ error) {
	var instrParts []string
	for _, m := range msgs {
		switch m.Role {
		case llm.RoleSystem, llm.RoleDeveloper:
			if t := strings.TrimSpace(m.Text()); t != "" {
				instrParts = append(instrParts, t)
			}
		}
	}
	instructions = strings.Join(instrParts, "\n\n")

	for _, m := range msgs {
		switch m.Role {
		case llm.RoleSystem, llm.RoleDeveloper:
			continue
		case llm.RoleUser, llm.RoleAssistant:
			content := make([]any, 0, len(m.Content))
			for _, p := range m.Content {
				switch p.Kind {
				case llm.ContentText:
					if strings.TrimSpace(p.Text) == "" {
						continue
					}
					typ := "input_text"
					if m.Role == llm.RoleAssistant {
						typ = "output_text"
					}
					content = append(content, map[string]any{
						"type": typ,
						"text": p.Text,
					})
				case llm.ContentImage:
					if p.Image == nil {
						continue
					}
					url := strings.TrimSpace(p.Image.URL)
					if len(p.Image.Data) > 0 {
						mt := strings.TrimSpace(p.Image.MediaType)
						if mt == "" {
							mt = "image/png"
						}
						url = llm.DataURI(mt, p.Image.Data)
					} else if llm.IsLocalPath(url) {
						path := llm.ExpandTilde(url)
						b, err := os.ReadFile(path)
						if err != nil {
							return "", nil, err
						}
						mt := strings.TrimSpace(p.Image.MediaType)
						if mt == "" {
							mt = llm.InferMimeTypeFromPath(path)
						}
						if mt == "" {
							mt = "image/png"
						}
						url = llm.DataURI(mt, b)
					}
					if url != "" {
						content = append(content, map[string]any{
							"type":      "input_image",
							"image_url": url,
						})
					}
				case llm.ContentAudio, llm.ContentDocument:
					return "", nil, &llm.ConfigurationError{Message: fmt.Sprintf("unsupported content kind for openai: %s", p.Kind)}
				default:
					// tool calls are top-level items
				}
			}
			if len(content) > 0 {
				items = append(items, map[string]any{
					"type":    "message",
					"role":    string(m.Role),
					"content": content,
				})
			}
			for _, p := range m.Content {
				if p.Kind == llm.ContentToolCall && p.ToolCall != nil {
					items = append(items, map[string]any{
						"type":      "function_call",
						"call_id":   p.ToolCall.ID,
						"name":      p.ToolCall.Name,
						"arguments": string(p.ToolCall.Arguments),
					})
				}
			}
		case llm.RoleTool:
			for _, p := range m.Content {
				if p.Kind != llm.ContentToolResult || p.ToolResult == nil {
					continue
				}
				outStr := ""
				switch v := p.ToolResult.Content.(type) {
				case string:
					outStr = v
				default:
					b, _ := json.Marshal(v)
					outStr = string(b)
				}
				items = append(items, map[string]any{
					"type":    "function_call_output",
					"call_id": p.ToolResult.ToolCallID,
					"output":  outStr,
				})
			}
		default:
			// ignore unknown roles
		}
	}
	return instructions, items, nil
}

func fromResponses(provider string, raw map[string]any, requestedModel string) llm.Response {
	r := llm.Response{
		Provider: provider,
		Model:    requestedModel,
		Raw:      raw,
	}
	if id, _ := raw["id"].(string); id != "" {
		r.ID = id
	}
	if m, _ := raw["model"].(string); m != "" {
		r.Model = m
	}

	msg := llm.Message{Role: llm.RoleAssistant}

	if out, ok := raw["output"].([]any); ok {
		for _, itemAny := range out {
			item, ok := itemAny.(map[string]any)
			if !ok {
				continue
			}
			typ, _ := item["type"].(string)
			switch typ {
			case "message":
				if content, ok := item["content"].([]any); ok {
					for _, cAny := range content {
						c, ok := cAny.(map[string]any)
						if !ok {
							continue
						}
						ct, _ := c["type"].(string)
						if ct == "output_text" {
							if text, _ := c["text"].(string); text != "" {
								msg.Content = append(msg.Content, llm.ContentPart{Kind: llm.ContentText, Text: text})
							}
						}
					}
				}
			case "function_call":
				name, _ := item["name"].(string)
				args, _ := item["arguments"].(string)
				callID, _ := item["call_id"].(string)
				msg.Content = append(msg.Content, llm.ContentPart{
					Kind: llm.ContentToolCall,
					ToolCall: &llm.ToolCallData{
						ID:           callID,
						Name:         name,
						Arguments:    json.RawMessage(args),
						Type:         "function",
						RawArguments: args,
					},
				})
			default:
				// reasoning, web_search_call, etc.
			}
		}
	}

	r.Message = msg
	if len(r.ToolCalls()) > 0 {
		r.Finish = llm.FinishReason{Reason: "tool_calls"}
	} else {
		r.Finish = llm.FinishReason{Reason: "stop"}
	}

	if u, ok := raw["usage"].(map[string]any); ok {
		r.Usage = parseUsage(u)
	}
	return r
}

func parseUsage(u map[string]any) llm.Usage {
	getInt := func(v any) int {
		switch x := v.(type) {
		case json.Number:
			n, _ := x.Int64()
			return int(n)
		case float64:
			return int(x)
		case int:
			return x
		default:
			return 0
		}
	}
	usage := llm.Usage{
		InputTokens:  getInt(u["input_tokens"]),
		OutputTokens: getInt(u["output_tokens"]),
		TotalTokens:  getInt(u["total_tokens"]),
		Raw:          map[string]any{},
	}
	if outDetails, ok := u["output_tokens_details"].(map[string]any); ok {
		rt := getInt(outDetails["reasoning_tokens"])
		usage.ReasoningTokens = &rt
	}
	if inDetails, ok := u["input_tokens_details"].(map[string]any); ok {
		ct := getInt(inDetails["cached_tokens"])
		usage.CacheReadTokens = &ct
	}
	return usage
}
