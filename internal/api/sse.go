package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/okarin0/relay/internal/stream"
)

// sseWriter emits orchestrator events as data-only SSE lines, flushing
// after every write. Named events are not used; clients dispatch on the
// "type" field of the JSON payload.
type sseWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

// newSSEWriter prepares w for streaming and returns false when the
// underlying writer cannot flush.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	return &sseWriter{w: w, f: f}, true
}

// Emit writes one event as a `data: <json>` line.
func (s *sseWriter) Emit(e stream.Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", b); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

// Comment writes an SSE comment line, used as a keepalive around the
// event stream.
func (s *sseWriter) Comment() error {
	if _, err := io.WriteString(s.w, ":\n\n"); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}
