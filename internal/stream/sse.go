// Package stream carries generation progress to clients over Server-Sent
// Events and merges overlapping text chunks from resumed generations.
package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/studyhall/backend/internal/models"
)

// Event is one SSE payload. Exactly one terminal event (done or error)
// ends every stream.
type Event struct {
	Type     string           `json:"type"`
	Subtopic *models.Subtopic `json:"subtopic,omitempty"`
	Title    string           `json:"title,omitempty"`
	Delta    string           `json:"delta,omitempty"`
	Error    string           `json:"error,omitempty"`
}

const (
	EventSubtopic = "subtopic"
	EventTitle    = "title"
	EventChunk    = "chunk"
	EventDone     = "done"
	EventError    = "error"
)

func SubtopicEvent(s *models.Subtopic) Event { return Event{Type: EventSubtopic, Subtopic: s} }
func TitleEvent(title string) Event          { return Event{Type: EventTitle, Title: title} }
func ChunkEvent(delta string) Event          { return Event{Type: EventChunk, Delta: delta} }
func DoneEvent() Event                       { return Event{Type: EventDone} }
func ErrorEvent(msg string) Event            { return Event{Type: EventError, Error: msg} }

func (e Event) terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

// Writer serializes events onto an SSE response. After a terminal event it
// refuses further sends, so a stream can never emit two outcomes.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher

	mu     sync.Mutex
	closed bool
}

// NewWriter prepares w for SSE and returns a Writer, or an error when the
// underlying connection cannot flush.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	return &Writer{w: w, flusher: flusher}, nil
}

// Send writes one event and flushes it. Sending after a terminal event is
// an error and writes nothing.
func (sw *Writer) Send(e Event) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.closed {
		return fmt.Errorf("send after stream already ended")
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	if _, err := fmt.Fprintf(sw.w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}
	sw.flusher.Flush()

	if e.terminal() {
		sw.closed = true
	}
	return nil
}

// Closed reports whether a terminal event was already sent.
func (sw *Writer) Closed() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.closed
}
