package openai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stencila/stencila/internal/llm"
)

// toolCallState accumulates a tool call across SSE events. The name is
// only available on response.output_item.added; argument deltas do not
// carry it.
type toolCallState struct {
	name      string
	arguments strings.Builder
}

// streamState is the per-stream translator from OpenAI Responses SSE
// events to the unified stream.
type streamState struct {
	provider       string
	requestedModel string

	emittedStreamStart bool
	startedTextIDs     map[string]bool
	openTextIDs        []string
	toolCalls          map[string]*toolCallState
	rateLimit          *llm.RateLimitInfo

	// Whether a ReasoningStart has been emitted for the current
	// reasoning summary block.
	emittedReasoningStart bool

	finished bool
}

func newStreamState(provider, requestedModel string, rateLimit *llm.RateLimitInfo) *streamState {
	return &streamState{
		provider:       provider,
		requestedModel: requestedModel,
		startedTextIDs: map[string]bool{},
		toolCalls:      map[string]*toolCallState{},
		rateLimit:      rateLimit,
	}
}

// translateEvent maps a single parsed SSE event into zero or more unified
// stream events.
func (st *streamState) translateEvent(ev llm.SSEEvent) ([]llm.StreamEvent, error) {
	var out []llm.StreamEvent

	if !st.emittedStreamStart {
		st.emittedStreamStart = true
		out = append(out, llm.StreamEvent{Type: llm.StreamEventStreamStart})
	}

	var payload map[string]any
	dec := json.NewDecoder(bytes.NewReader(ev.Data))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, &llm.StreamError{Message: fmt.Sprintf("invalid SSE payload JSON: %v", err)}
	}

	eventType, _ := payload["type"].(string)
	if eventType == "" {
		eventType = ev.Event
	}

	switch eventType {
	// Tool call state is pre-populated when the output item is first
	// announced: the function name is only available here.
	case "response.output_item.added":
		item := itemOf(payload)
		itemType, _ := item["type"].(string)
		switch itemType {
		case "function_call":
			callID := stringOr(item, "call_id", stringOr(item, "id", "call_0"))
			name := stringOr(item, "name", "unknown_tool")
			state := &toolCallState{name: name}
			st.toolCalls[callID] = state
			out = append(out, toolCallEvent(llm.StreamEventToolCallStart, llm.ToolCallData{
				ID: callID, Name: name, Type: "function",
			}, payload))
		case "custom_tool_call", "local_shell_call":
			callID, name, _, rawArguments, _ := normalizeNonFunctionToolCall(item)
			state := &toolCallState{name: name}
			state.arguments.WriteString(rawArguments)
			st.toolCalls[callID] = state
			out = append(out, toolCallEvent(llm.StreamEventToolCallStart, llm.ToolCallData{
				ID: callID, Name: name, Type: "function",
			}, payload))
		default:
			out = append(out, providerEvent(payload))
		}

	case "response.reasoning_summary_part.added":
		if st.emittedReasoningStart {
			out = append(out, providerEvent(payload))
		} else {
			st.emittedReasoningStart = true
			out = append(out, llm.StreamEvent{
				Type:   llm.StreamEventReasoningStart,
				TextID: "reasoning_0",
				Raw:    payload,
			})
		}

	case "response.reasoning_summary_text.delta":
		if !st.emittedReasoningStart {
			st.emittedReasoningStart = true
			out = append(out, llm.StreamEvent{
				Type:   llm.StreamEventReasoningStart,
				TextID: "reasoning_0",
				Raw:    payload,
			})
		}
		if delta, _ := payload["delta"].(string); delta != "" {
			out = append(out, llm.StreamEvent{
				Type:           llm.StreamEventReasoningDelta,
				TextID:         "reasoning_0",
				ReasoningDelta: delta,
				Raw:            payload,
			})
		}

	case "response.reasoning_summary_text.done", "response.reasoning_summary_part.done":
		if st.emittedReasoningStart {
			st.emittedReasoningStart = false
			out = append(out, llm.StreamEvent{
				Type:   llm.StreamEventReasoningEnd,
				TextID: "reasoning_0",
				Raw:    payload,
			})
		} else {
			out = append(out, providerEvent(payload))
		}

	case "response.output_text.delta":
		delta, ok := payload["delta"].(string)
		if !ok {
			return nil, &llm.StreamError{Message: "response.output_text.delta missing `delta` field"}
		}
		textID := extractTextID(payload)
		if !st.startedTextIDs[textID] {
			st.startedTextIDs[textID] = true
			st.openTextIDs = append(st.openTextIDs, textID)
			out = append(out, llm.StreamEvent{Type: llm.StreamEventTextStart, TextID: textID, Raw: payload})
		}
		out = append(out, llm.StreamEvent{Type: llm.StreamEventTextDelta, TextID: textID, Delta: delta, Raw: payload})

	case "response.function_call_arguments.delta":
		callID := extractCallID(payload)
		name := stringOr(payload, "name", "")
		if name == "" {
			name = pointerString(payload, "item", "name")
		}
		if name == "" {
			if state := st.toolCalls[callID]; state != nil {
				name = state.name
			}
		}
		if name == "" {
			name = "unknown_tool"
		}
		delta, _ := payload["delta"].(string)

		state, alreadyStarted := st.toolCalls[callID]
		if !alreadyStarted {
			state = &toolCallState{name: name}
			st.toolCalls[callID] = state
			// Synthesize a start if output_item.added never announced it.
			out = append(out, toolCallEvent(llm.StreamEventToolCallStart, llm.ToolCallData{
				ID: callID, Name: name, Type: "function",
			}, payload))
		}

		// A good name from output_item.added is never overwritten by the
		// "unknown_tool" fallback of a later delta.
		if name != "unknown_tool" {
			state.name = name
		}
		state.arguments.WriteString(delta)

		out = append(out, toolCallEvent(llm.StreamEventToolCallDelta, llm.ToolCallData{
			ID: callID, Name: state.name, Type: "function", RawArguments: delta,
		}, payload))

	case "response.output_item.done":
		item := itemOf(payload)
		itemType, _ := item["type"].(string)
		switch itemType {
		case "message", "output_text":
			textID := extractTextID(item)
			if st.startedTextIDs[textID] {
				st.closeTextID(textID)
				out = append(out, llm.StreamEvent{Type: llm.StreamEventTextEnd, TextID: textID, Raw: payload})
			}
		case "function_call":
			callID := stringOr(item, "call_id", stringOr(item, "id", "call_0"))
			arguments, _ := item["arguments"].(string)
			name, _ := item["name"].(string)
			if name == "" {
				if state := st.toolCalls[callID]; state != nil {
					name = state.name
				}
			}
			if name == "" {
				name = "unknown_tool"
			}
			if arguments == "" {
				if state := st.toolCalls[callID]; state != nil {
					arguments = state.arguments.String()
				}
			}
			parsed, parseError := llm.ParseToolArguments(arguments)
			call := llm.ToolCallData{
				ID: callID, Name: name, Type: "function",
				RawArguments: arguments, ParseError: parseError,
			}
			if parseError == "" {
				b, _ := json.Marshal(parsed)
				call.Arguments = b
			}
			out = append(out, toolCallEvent(llm.StreamEventToolCallEnd, call, payload))
			delete(st.toolCalls, callID)
		case "custom_tool_call", "local_shell_call":
			callID, name, arguments, rawArguments, parseError := normalizeNonFunctionToolCall(item)
			// Non-function calls usually arrive only at .done; synthesize
			// a start if one was never announced.
			if _, ok := st.toolCalls[callID]; !ok {
				out = append(out, toolCallEvent(llm.StreamEventToolCallStart, llm.ToolCallData{
					ID: callID, Name: name, Type: "function",
				}, payload))
			}
			call := llm.ToolCallData{
				ID: callID, Name: name, Type: "function",
				RawArguments: rawArguments, ParseError: parseError,
			}
			if arguments != nil {
				b, _ := json.Marshal(arguments)
				call.Arguments = b
			}
			out = append(out, toolCallEvent(llm.StreamEventToolCallEnd, call, payload))
			delete(st.toolCalls, callID)
		default:
			out = append(out, providerEvent(payload))
		}

	case "response.completed":
		responsePayload, _ := payload["response"].(map[string]any)
		if responsePayload == nil {
			responsePayload = payload
		}
		response := fromResponses(st.provider, responsePayload, st.requestedModel)
		if response.RateLimit == nil {
			response.RateLimit = st.rateLimit
		}

		// Close any blocks still open so every *Start has an *End before
		// Finish.
		if st.emittedReasoningStart {
			st.emittedReasoningStart = false
			out = append(out, llm.StreamEvent{Type: llm.StreamEventReasoningEnd, TextID: "reasoning_0"})
		}
		for _, textID := range st.openTextIDs {
			out = append(out, llm.StreamEvent{Type: llm.StreamEventTextEnd, TextID: textID})
		}
		st.openTextIDs = nil

		finish := response.Finish
		usage := response.Usage
		out = append(out, llm.StreamEvent{
			Type:         llm.StreamEventFinish,
			FinishReason: &finish,
			Usage:        &usage,
			Response:     &response,
			Raw:          payload,
		})
		st.finished = true

	case "response.failed", "error":
		message := pointerString(payload, "error", "message")
		if message == "" {
			message = stringOr(payload, "message", "openai stream failed")
		}
		out = append(out, llm.StreamEvent{
			Type: llm.StreamEventError,
			Err: &llm.ServerError{
				ProviderName: st.provider,
				Message:      message,
				IsRetryable:  true,
				Raw:          payload,
			},
			Raw: payload,
		})
		st.finished = true

	// In-progress events are surfaced as provider passthrough events.
	default:
		out = append(out, providerEvent(payload))
	}

	return out, nil
}

// onStreamEnd synthesizes a StreamStart for streams that carried no
// events at all.
func (st *streamState) onStreamEnd() []llm.StreamEvent {
	if st.emittedStreamStart {
		return nil
	}
	st.emittedStreamStart = true
	return []llm.StreamEvent{{Type: llm.StreamEventStreamStart}}
}

func (st *streamState) closeTextID(textID string) {
	for i, id := range st.openTextIDs {
		if id == textID {
			st.openTextIDs = append(st.openTextIDs[:i], st.openTextIDs[i+1:]...)
			return
		}
	}
}

func providerEvent(payload map[string]any) llm.StreamEvent {
	return llm.StreamEvent{Type: llm.StreamEventProviderEvent, Raw: payload}
}

func toolCallEvent(eventType llm.StreamEventType, call llm.ToolCallData, raw map[string]any) llm.StreamEvent {
	return llm.StreamEvent{Type: eventType, ToolCall: &call, Raw: raw}
}

// itemOf returns payload["item"] as an object, falling back to the
// payload itself.
func itemOf(payload map[string]any) map[string]any {
	if item, ok := payload["item"].(map[string]any); ok {
		return item
	}
	if item, ok := payload["output_item"].(map[string]any); ok {
		return item
	}
	return payload
}

func stringOr(m map[string]any, key, fallback string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func pointerString(m map[string]any, keys ...string) string {
	cur := any(m)
	for _, key := range keys {
		obj, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur = obj[key]
	}
	s, _ := cur.(string)
	return s
}

// extractTextID resolves the text block id for a text event:
// text_id, then item_id, then item.id, then id, then a synthetic id from
// the output and content indices.
func extractTextID(payload map[string]any) string {
	if v := stringOr(payload, "text_id", ""); v != "" {
		return v
	}
	if v := stringOr(payload, "item_id", ""); v != "" {
		return v
	}
	if v := pointerString(payload, "item", "id"); v != "" {
		return v
	}
	// A done item carries its id directly.
	if v := stringOr(payload, "id", ""); v != "" {
		return v
	}
	outputIndex := numberOr(payload, "output_index", 0)
	contentIndex := numberOr(payload, "content_index", 0)
	return fmt.Sprintf("text_%d_%d", outputIndex, contentIndex)
}

// extractCallID resolves a tool call id with precedence
// call_id > id > item_id, defaulting to "call_0".
func extractCallID(payload map[string]any) string {
	if v := stringOr(payload, "call_id", ""); v != "" {
		return v
	}
	if v := stringOr(payload, "id", ""); v != "" {
		return v
	}
	if v := stringOr(payload, "item_id", ""); v != "" {
		return v
	}
	return "call_0"
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

// normalizeNonFunctionToolCall maps Responses API custom_tool_call and
// local_shell_call items into the unified tool-call shape: apply_patch
// custom input is wrapped as {"patch": raw}, shell actions as
// {"command": joined}.
func normalizeNonFunctionToolCall(item map[string]any) (callID, name string, arguments map[string]any, rawArguments string, parseError string) {
	itemType, _ := item["type"].(string)
	callID = stringOr(item, "call_id", stringOr(item, "id", "call_0"))

	switch itemType {
	case "custom_tool_call":
		name = stringOr(item, "name", "unknown_tool")
		input, _ := item["input"].(string)
		parsed, perr := llm.ParseToolArguments(input)
		switch {
		case perr == "" && parsed != nil && input != "":
			arguments = parsed
		case name == "apply_patch":
			arguments = map[string]any{"patch": input}
		default:
			arguments = map[string]any{"input": input}
		}
		return callID, name, arguments, input, perr
	case "local_shell_call":
		action, _ := item["action"].(map[string]any)
		var parts []string
		if command, ok := action["command"].([]any); ok {
			for _, p := range command {
				if s, ok := p.(string); ok {
					parts = append(parts, s)
				}
			}
		}
		command := strings.Join(parts, " ")
		arguments = map[string]any{}
		if command != "" {
			arguments = map[string]any{"command": command}
		}
		raw, _ := json.Marshal(action)
		return callID, "shell", arguments, string(raw), ""
	default:
		return callID, "unknown_tool", map[string]any{}, "", ""
	}
}
