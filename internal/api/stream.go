package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

const (
	dataPrefix   = "data: "
	doneSentinel = "[DONE]"

	// maxLineSize bounds a single SSE line; model output chunks are small,
	// but tool payloads can be large.
	maxLineSize = 1 << 20
)

// StreamResult is the outcome of consuming a streamed chat response.
type StreamResult struct {
	// Content is the concatenation, in arrival order, of every non-empty
	// delta in the stream.
	Content string
	// Interrupted is true when consumption stopped because the context was
	// cancelled (user interrupt) rather than the stream ending.
	Interrupted bool
}

// streamChunk is one "data:" payload of a streamed chat completion.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// ConsumeStream reads a line-delimited event stream of the form
// "data: <json-or-sentinel>", writes each non-empty content delta to out as
// it arrives, and returns the accumulated text.
//
// Lines without the data prefix are skipped, as are lines whose payload is
// not valid JSON; one malformed chunk never aborts the stream. The [DONE]
// sentinel stops consumption; lines after it are never processed. A trailing
// newline is written once the loop ends. When ctx is cancelled mid-stream,
// reading stops immediately, the trailing newline is still written, and the
// partial content is returned with Interrupted set.
func ConsumeStream(ctx context.Context, body io.Reader, out io.Writer) (StreamResult, error) {
	type scanned struct {
		line string
		err  error
	}
	lines := make(chan scanned)

	// The scan runs in its own goroutine so a blocking read cannot outlive
	// an interrupt; after cancellation it exits when the caller closes the
	// response body.
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 64*1024), maxLineSize)
		for scanner.Scan() {
			select {
			case lines <- scanned{line: scanner.Text()}:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case lines <- scanned{err: err}:
			case <-ctx.Done():
			}
		}
	}()

	var content strings.Builder
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return StreamResult{Content: content.String(), Interrupted: true}, nil
		case s, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				return StreamResult{Content: content.String()}, nil
			}
			if s.err != nil {
				fmt.Fprintln(out)
				return StreamResult{Content: content.String()}, classifyTransport(s.err)
			}
			if !strings.HasPrefix(s.line, dataPrefix) {
				continue
			}
			payload := s.line[len(dataPrefix):]
			if strings.TrimSpace(payload) == doneSentinel {
				fmt.Fprintln(out)
				return StreamResult{Content: content.String()}, nil
			}
			var chunk streamChunk
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				continue
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			fmt.Fprint(out, delta)
			content.WriteString(delta)
		}
	}
}
