package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var errStreamingUnsupported = errors.New("response writer does not support streaming")

// streamError is sent when the chat fails after the stream started.
type streamError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// eventStream writes server-sent events as "data: <json>" lines.
// Headers are sent with the first event so earlier failures can still use
// a normal JSON error response.
type eventStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func newEventStream(w http.ResponseWriter) (*eventStream, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, errStreamingUnsupported
	}
	return &eventStream{w: w, flusher: f}, nil
}

func (s *eventStream) Started() bool { return s.started }

func (s *eventStream) start() {
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	s.started = true
}

// Send writes one event and flushes it.
func (s *eventStream) Send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return s.write(b)
}

// Done writes the terminating [DONE] marker.
func (s *eventStream) Done() error {
	return s.write([]byte("[DONE]"))
}

func (s *eventStream) write(payload []byte) error {
	if !s.started {
		s.start()
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	s.flusher.Flush()
	return nil
}
