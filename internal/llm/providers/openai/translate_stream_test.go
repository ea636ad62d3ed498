package openai

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stencila/stencila/internal/llm"
)

func event(t *testing.T, payload map[string]any) llm.SSEEvent {
	t.Helper()
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	return llm.SSEEvent{Data: b}
}

func translate(t *testing.T, state *streamState, payload map[string]any) []llm.StreamEvent {
	t.Helper()
	out, err := state.translateEvent(event(t, payload))
	require.NoError(t, err)
	return out
}

func types(events []llm.StreamEvent) []llm.StreamEventType {
	out := make([]llm.StreamEventType, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

func TestTranslate_StreamStartEmittedOnce(t *testing.T) {
	state := newStreamState("openai", "m", nil)
	first := translate(t, state, map[string]any{"type": "response.in_progress"})
	require.Equal(t, llm.StreamEventStreamStart, first[0].Type)

	second := translate(t, state, map[string]any{"type": "response.in_progress"})
	for _, ev := range second {
		assert.NotEqual(t, llm.StreamEventStreamStart, ev.Type)
	}
}

func TestTranslate_TextStartDeltaEnd(t *testing.T) {
	state := newStreamState("openai", "m", nil)
	out := translate(t, state, map[string]any{
		"type": "response.output_text.delta", "item_id": "msg_1", "delta": "Hel",
	})
	assert.Equal(t, []llm.StreamEventType{
		llm.StreamEventStreamStart, llm.StreamEventTextStart, llm.StreamEventTextDelta,
	}, types(out))
	assert.Equal(t, "msg_1", out[1].TextID)
	assert.Equal(t, "Hel", out[2].Delta)

	// Subsequent deltas for the same id have no TextStart.
	out = translate(t, state, map[string]any{
		"type": "response.output_text.delta", "item_id": "msg_1", "delta": "lo",
	})
	assert.Equal(t, []llm.StreamEventType{llm.StreamEventTextDelta}, types(out))

	out = translate(t, state, map[string]any{
		"type": "response.output_item.done",
		"item": map[string]any{"type": "message", "id": "msg_1"},
	})
	assert.Equal(t, []llm.StreamEventType{llm.StreamEventTextEnd}, types(out))
	assert.Equal(t, "msg_1", out[0].TextID)
}

func TestTranslate_TextIDFallbackToIndices(t *testing.T) {
	state := newStreamState("openai", "m", nil)
	out := translate(t, state, map[string]any{
		"type": "response.output_text.delta", "delta": "x",
		"output_index": 2, "content_index": 1,
	})
	assert.Equal(t, "text_2_1", out[1].TextID)
}

func TestTranslate_MissingDeltaIsStreamError(t *testing.T) {
	state := newStreamState("openai", "m", nil)
	_, err := state.translateEvent(event(t, map[string]any{"type": "response.output_text.delta"}))
	require.Error(t, err)
	var se *llm.StreamError
	require.ErrorAs(t, err, &se)
}

func TestTranslate_InvalidJSONIsStreamError(t *testing.T) {
	state := newStreamState("openai", "m", nil)
	_, err := state.translateEvent(llm.SSEEvent{Data: []byte("{not json")})
	require.Error(t, err)
}

// Tool-call reassembly: the name arrives only on output_item.added, the
// arguments only in deltas; the concatenated delta raw arguments equal
// the ToolCallEnd raw arguments.
func TestTranslate_ToolCallReassembly(t *testing.T) {
	state := newStreamState("openai", "m", nil)

	out := translate(t, state, map[string]any{
		"type": "response.output_item.added",
		"item": map[string]any{"type": "function_call", "call_id": "call_1", "name": "read_file"},
	})
	require.Equal(t, []llm.StreamEventType{llm.StreamEventStreamStart, llm.StreamEventToolCallStart}, types(out))
	assert.Equal(t, "read_file", out[1].ToolCall.Name)

	var deltas string
	for _, chunk := range []string{`{"pa`, `th":"a`, `.md"}`} {
		out = translate(t, state, map[string]any{
			"type": "response.function_call_arguments.delta", "call_id": "call_1", "delta": chunk,
		})
		require.Equal(t, []llm.StreamEventType{llm.StreamEventToolCallDelta}, types(out))
		// The name known from output_item.added is preserved even though
		// deltas carry none.
		assert.Equal(t, "read_file", out[0].ToolCall.Name)
		deltas += out[0].ToolCall.RawArguments
	}

	out = translate(t, state, map[string]any{
		"type": "response.output_item.done",
		"item": map[string]any{"type": "function_call", "call_id": "call_1", "name": "read_file"},
	})
	require.Equal(t, []llm.StreamEventType{llm.StreamEventToolCallEnd}, types(out))
	end := out[0].ToolCall
	assert.Equal(t, deltas, end.RawArguments)
	assert.Empty(t, end.ParseError)
	assert.JSONEq(t, `{"path":"a.md"}`, string(end.Arguments))

	// Reassembly state is destroyed on ToolCallEnd.
	assert.Empty(t, state.toolCalls)
}

// A delta with no prior output_item.added synthesizes the ToolCallStart.
func TestTranslate_DeltaWithoutStartSynthesizesStart(t *testing.T) {
	state := newStreamState("openai", "m", nil)
	out := translate(t, state, map[string]any{
		"type": "response.function_call_arguments.delta", "call_id": "call_9", "delta": "{",
	})
	assert.Equal(t, []llm.StreamEventType{
		llm.StreamEventStreamStart, llm.StreamEventToolCallStart, llm.StreamEventToolCallDelta,
	}, types(out))
	assert.Equal(t, "unknown_tool", out[1].ToolCall.Name)
}

func TestTranslate_CallIDPrecedence(t *testing.T) {
	cases := []struct {
		payload map[string]any
		want    string
	}{
		{map[string]any{"call_id": "a", "id": "b", "item_id": "c"}, "a"},
		{map[string]any{"id": "b", "item_id": "c"}, "b"},
		{map[string]any{"item_id": "c"}, "c"},
		{map[string]any{}, "call_0"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, extractCallID(tc.payload))
	}
}

func TestTranslate_ArgumentParseErrorNonFatal(t *testing.T) {
	state := newStreamState("openai", "m", nil)
	translate(t, state, map[string]any{
		"type": "response.function_call_arguments.delta", "call_id": "c", "delta": "{bad json",
	})
	out := translate(t, state, map[string]any{
		"type": "response.output_item.done",
		"item": map[string]any{"type": "function_call", "call_id": "c", "name": "f"},
	})
	end := out[len(out)-1].ToolCall
	assert.NotEmpty(t, end.ParseError)
	assert.Equal(t, "{bad json", end.RawArguments)
}

func TestTranslate_CustomToolCallApplyPatchWrapped(t *testing.T) {
	state := newStreamState("openai", "m", nil)
	out := translate(t, state, map[string]any{
		"type": "response.output_item.done",
		"item": map[string]any{
			"type": "custom_tool_call", "call_id": "c1", "name": "apply_patch",
			"input": "*** Begin Patch\n*** End Patch",
		},
	})
	// Start synthesized, then End.
	require.Equal(t, []llm.StreamEventType{
		llm.StreamEventStreamStart, llm.StreamEventToolCallStart, llm.StreamEventToolCallEnd,
	}, types(out))
	end := out[2].ToolCall
	var args map[string]any
	require.NoError(t, json.Unmarshal(end.Arguments, &args))
	assert.Equal(t, "*** Begin Patch\n*** End Patch", args["patch"])
}

func TestTranslate_LocalShellCallJoinsCommand(t *testing.T) {
	state := newStreamState("openai", "m", nil)
	out := translate(t, state, map[string]any{
		"type": "response.output_item.done",
		"item": map[string]any{
			"type": "local_shell_call", "id": "ls1",
			"action": map[string]any{"command": []any{"ls", "-la", "/tmp"}},
		},
	})
	end := out[len(out)-1].ToolCall
	assert.Equal(t, "shell", end.Name)
	var args map[string]any
	require.NoError(t, json.Unmarshal(end.Arguments, &args))
	assert.Equal(t, "ls -la /tmp", args["command"])
}

func TestTranslate_ReasoningLifecycle(t *testing.T) {
	state := newStreamState("openai", "m", nil)

	out := translate(t, state, map[string]any{"type": "response.reasoning_summary_part.added"})
	assert.Equal(t, []llm.StreamEventType{llm.StreamEventStreamStart, llm.StreamEventReasoningStart}, types(out))
	assert.Equal(t, "reasoning_0", out[1].TextID)

	// A second part.added inside an open block degrades to passthrough.
	out = translate(t, state, map[string]any{"type": "response.reasoning_summary_part.added"})
	assert.Equal(t, []llm.StreamEventType{llm.StreamEventProviderEvent}, types(out))

	out = translate(t, state, map[string]any{
		"type": "response.reasoning_summary_text.delta", "delta": "thinking...",
	})
	assert.Equal(t, []llm.StreamEventType{llm.StreamEventReasoningDelta}, types(out))
	assert.Equal(t, "thinking...", out[0].ReasoningDelta)

	out = translate(t, state, map[string]any{"type": "response.reasoning_summary_text.done"})
	assert.Equal(t, []llm.StreamEventType{llm.StreamEventReasoningEnd}, types(out))

	// Done without an open block is passthrough.
	out = translate(t, state, map[string]any{"type": "response.reasoning_summary_part.done"})
	assert.Equal(t, []llm.StreamEventType{llm.StreamEventProviderEvent}, types(out))
}

func TestTranslate_ReasoningDeltaSynthesizesStart(t *testing.T) {
	state := newStreamState("openai", "m", nil)
	out := translate(t, state, map[string]any{
		"type": "response.reasoning_summary_text.delta", "delta": "x",
	})
	assert.Equal(t, []llm.StreamEventType{
		llm.StreamEventStreamStart, llm.StreamEventReasoningStart, llm.StreamEventReasoningDelta,
	}, types(out))
}

func TestTranslate_CompletedEmitsFinishAndClosesOpenText(t *testing.T) {
	state := newStreamState("openai", "m", nil)
	translate(t, state, map[string]any{
		"type": "response.output_text.delta", "item_id": "t1", "delta": "partial",
	})

	out := translate(t, state, map[string]any{
		"type": "response.completed",
		"response": map[string]any{
			"id":    "resp_1",
			"model": "gpt-5.2",
			"output": []any{map[string]any{
				"type": "message",
				"content": []any{map[string]any{"type": "output_text", "text": "partial"}},
			}},
			"usage": map[string]any{"input_tokens": 10, "output_tokens": 5, "total_tokens": 15},
		},
	})
	require.Equal(t, []llm.StreamEventType{llm.StreamEventTextEnd, llm.StreamEventFinish}, types(out))

	finish := out[1]
	require.NotNil(t, finish.Response)
	assert.Equal(t, "resp_1", finish.Response.ID)
	assert.Equal(t, "gpt-5.2", finish.Response.Model)
	assert.Equal(t, "stop", finish.FinishReason.Reason)
	assert.Equal(t, 15, finish.Usage.TotalTokens)
	assert.True(t, state.finished)
}

func TestTranslate_FinishCarriesRateLimit(t *testing.T) {
	requests := 42
	state := newStreamState("openai", "m", &llm.RateLimitInfo{RequestsRemaining: &requests})
	out := translate(t, state, map[string]any{
		"type":     "response.completed",
		"response": map[string]any{"output": []any{}},
	})
	finish := out[len(out)-1]
	require.NotNil(t, finish.Response.RateLimit)
	assert.Equal(t, 42, *finish.Response.RateLimit.RequestsRemaining)
}

func TestTranslate_FailedEmitsRetryableError(t *testing.T) {
	state := newStreamState("openai", "m", nil)
	out := translate(t, state, map[string]any{
		"type":  "response.failed",
		"error": map[string]any{"message": "overloaded"},
	})
	errEvent := out[len(out)-1]
	require.Equal(t, llm.StreamEventError, errEvent.Type)
	var server *llm.ServerError
	require.ErrorAs(t, errEvent.Err, &server)
	assert.True(t, server.IsRetryable)
	assert.Contains(t, server.Message, "overloaded")
}

func TestTranslate_UnknownEventsPassThrough(t *testing.T) {
	state := newStreamState("openai", "m", nil)
	out := translate(t, state, map[string]any{"type": "response.web_search_call.searching"})
	assert.Equal(t, []llm.StreamEventType{llm.StreamEventStreamStart, llm.StreamEventProviderEvent}, types(out))
}

func TestOnStreamEnd_SynthesizesStreamStartForEmptyStream(t *testing.T) {
	state := newStreamState("openai", "m", nil)
	out := state.onStreamEnd()
	require.Len(t, out, 1)
	assert.Equal(t, llm.StreamEventStreamStart, out[0].Type)
	assert.Empty(t, state.onStreamEnd())
}
