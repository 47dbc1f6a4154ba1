package relay

import (
	"fmt"
	"net/http"
	"strings"

	"goa.design/docchat/stream"
)

// sseSink writes frames as server-sent events and flushes after each one so
// tokens render as they arrive instead of buffering at the proxy.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// newSSESink prepares the response for event streaming. It fails when the
// writer cannot flush, since a buffered SSE stream defeats the point.
func newSSESink(w http.ResponseWriter) (*sseSink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseSink{w: w, flusher: flusher}, nil
}

// Send writes one frame as an SSE event. Multi-line payloads become multiple
// data lines per the SSE framing rules so newlines survive the transport.
func (s *sseSink) Send(f stream.Frame) error {
	payload := f.Encode()
	var b strings.Builder
	for _, line := range strings.Split(payload, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	if _, err := fmt.Fprint(s.w, b.String()); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	s.flusher.Flush()
	return nil
}
