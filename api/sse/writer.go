// Package sse provides Server-Sent Events utilities for streaming chat
// responses to the embedded widget.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Event names emitted on the chat stream.
const (
	EventContent  = "content"
	EventProducts = "products"
	EventDone     = "done"
	EventError    = "error"
)

// Writer wraps an http.ResponseWriter for SSE streaming. The widget reads
// JSON payloads from named events; there is no markup in the stream.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter creates an SSE writer and sets the streaming headers.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flusher interface")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	return &Writer{w: w, flusher: flusher}, nil
}

// WriteJSON sends one named event with a JSON payload and flushes it.
func (w *Writer) WriteJSON(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return w.writeData(event, string(data))
}

// WriteError sends an error event. Safe to call at any point in the stream.
func (w *Writer) WriteError(code, message string) error {
	return w.WriteJSON(EventError, map[string]string{"code": code, "message": message})
}

// writeData writes one event in wire format. The SSE spec requires each
// line of a multi-line payload to carry its own "data: " prefix.
func (w *Writer) writeData(event, content string) error {
	if _, err := fmt.Fprintf(w.w, "event: %s\n", event); err != nil {
		return fmt.Errorf("write event name: %w", err)
	}

	for _, line := range strings.Split(content, "\n") {
		if _, err := fmt.Fprintf(w.w, "data: %s\n", line); err != nil {
			return fmt.Errorf("write data line: %w", err)
		}
	}

	// Empty line terminates the event
	if _, err := w.w.Write([]byte("\n")); err != nil {
		return fmt.Errorf("write terminator: %w", err)
	}

	w.flusher.Flush()
	return nil
}
