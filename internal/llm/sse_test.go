package llm

import (
	"context"
	"strings"
	"testing"
)

func TestParseSSE_EventsAndComments(t *testing.T) {
	input := strings.Join([]string{
		": comment",
		"event: update",
		"data: {\"a\":1}",
		"",
		"data: line1",
		"data: line2",
		"",
	}, "\n")

	var events []SSEEvent
	err := ParseSSE(context.Background(), strings.NewReader(input), func(ev SSEEvent) error {
		events = append(events, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("ParseSSE: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events: %d", len(events))
	}
	if events[0].Event != "update" || string(events[0].Data) != `{"a":1}` {
		t.Fatalf("event 0: %+v", events[0])
	}
	if string(events[1].Data) != "line1\nline2" {
		t.Fatalf("event 1 data: %q", events[1].Data)
	}
}

func TestParseSSE_DoneSentinelEndsStream(t *testing.T) {
	input := "data: {\"a\":1}\n\ndata: [DONE]\n\ndata: {\"b\":2}\n\n"
	var count int
	err := ParseSSE(context.Background(), strings.NewReader(input), func(ev SSEEvent) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("ParseSSE: %v", err)
	}
	if count != 1 {
		t.Fatalf("events after [DONE]: count=%d", count)
	}
}

func TestParseSSE_TrailingEventWithoutBlankLine(t *testing.T) {
	input := "data: {\"a\":1}"
	var count int
	err := ParseSSE(context.Background(), strings.NewReader(input), func(ev SSEEvent) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("ParseSSE: %v", err)
	}
	if count != 1 {
		t.Fatalf("count=%d", count)
	}
}

func TestParseSSE_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := ParseSSE(ctx, strings.NewReader("data: x\n\n"), func(ev SSEEvent) error {
		t.Fatal("handler should not run after cancellation")
		return nil
	})
	if err == nil {
		t.Fatalf("expected context error")
	}
}
