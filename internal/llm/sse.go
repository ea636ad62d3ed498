package llm

import (
	"bufio"
	"context"
	"io"
	"strings"
)

// SSEEvent is one Server-Sent Event: an optional event name and the
// concatenated data lines.
type SSEEvent struct {
	Event string
	Data  []byte
}

// ParseSSE reads Server-Sent Events from r, invoking handle for each
// complete event, until EOF, a read error, a handler error, or context
// cancellation. Comment lines (leading ':') are ignored; multiple data
// lines within one event are joined with '\n' per the SSE spec. A
// "[DONE]" sentinel ends the stream.
func ParseSSE(ctx context.Context, r io.Reader, handle func(SSEEvent) error) error {
	scanner := bufio.NewScanner(r)
	// SSE data lines can be large (whole JSON payloads).
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var event string
	var data []string

	flush := func() error {
		if len(data) == 0 {
			event = ""
			return nil
		}
		ev := event
		joined := strings.Join(data, "\n")
		event, data = "", nil
		if strings.TrimSpace(joined) == "[DONE]" {
			return io.EOF
		}
		return handle(SSEEvent{Event: ev, Data: []byte(joined)})
	}

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Text()
		switch {
		case line == "":
			if err := flush(); err != nil {
				if err == io.EOF {
					return nil
				}
				return err
			}
		case strings.HasPrefix(line, ":"):
			// comment
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	// Flush a trailing event not terminated by a blank line.
	if err := flush(); err != nil && err != io.EOF {
		return err
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return ctx.Err()
}
