// Package client consumes the chat streaming endpoint: it opens the SSE
// stream, decodes the frame protocol and surfaces incremental message
// updates to the caller.
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"

	"goa.design/docchat/stream"
)

// ErrStreamActive is returned when Ask is called while a previous stream is
// still being consumed.
var ErrStreamActive = errors.New("a chat stream is already active")

// Message is the consumer's view of one assistant reply as it streams in.
type Message struct {
	ID          string
	Role        string
	Content     string
	IsStreaming bool
	// Progress is the current phase label; empty once content flows.
	Progress string
	// Error is the terminal error message, if the stream failed.
	Error string
}

// Consumer talks to the chat API. At most one stream is active at a time;
// concurrent Ask calls beyond the first fail with ErrStreamActive.
type Consumer struct {
	baseURL string
	http    *http.Client

	mu     sync.Mutex
	active bool
}

// NewConsumer returns a consumer of the chat API at baseURL. A nil
// httpClient selects a default with no overall timeout, since streams are
// long-lived.
func NewConsumer(baseURL string, httpClient *http.Client) *Consumer {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 0}
	}
	return &Consumer{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Ask streams the answer to query over the documents under docPath. onUpdate
// is invoked after every frame with the message so far; it may be nil. Ask
// returns the final message once the stream terminates.
func (c *Consumer) Ask(ctx context.Context, query, docPath string, onUpdate func(Message)) (Message, error) {
	if strings.TrimSpace(query) == "" {
		return Message{}, fmt.Errorf("query must not be empty")
	}
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return Message{}, ErrStreamActive
	}
	c.active = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.active = false
		c.mu.Unlock()
	}()

	q := url.Values{}
	q.Set("query", query)
	if docPath != "" {
		q.Set("doc_path", docPath)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/chat/stream?"+q.Encode(), nil)
	if err != nil {
		return Message{}, fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		return Message{}, fmt.Errorf("connect to chat stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Message{}, decodeAPIError(resp)
	}

	msg := Message{
		ID:          uuid.NewString(),
		Role:        "assistant",
		IsStreaming: true,
		Progress:    "Connecting...",
	}
	notify := func() {
		if onUpdate != nil {
			onUpdate(msg)
		}
	}
	notify()

	reader := bufio.NewReader(resp.Body)
	for {
		payload, err := readSSEData(reader)
		if err != nil {
			msg.IsStreaming = false
			if errors.Is(err, io.EOF) && msg.Content != "" {
				// Server closed cleanly after streaming content; treat the
				// answer as complete even without an explicit done frame.
				msg.Progress = ""
				notify()
				return msg, nil
			}
			msg.Error = "connection error"
			notify()
			return msg, fmt.Errorf("read stream: %w", err)
		}

		frame := stream.ParseFrame(payload)
		switch frame.Type {
		case stream.FrameContent:
			msg.Content += frame.Text
			msg.Progress = ""
		case stream.FrameProgress:
			msg.Progress = frame.Text
		case stream.FrameError:
			msg.Error = frame.Text
			msg.IsStreaming = false
			msg.Progress = ""
			notify()
			return msg, nil
		case stream.FrameDone:
			msg.IsStreaming = false
			msg.Progress = ""
			notify()
			return msg, nil
		}
		notify()
	}
}

// readSSEData reads one SSE event and returns its data payload. Multiple
// data lines are rejoined with newlines; comment lines are skipped.
func readSSEData(reader *bufio.Reader) (string, error) {
	var (
		data []byte
		seen bool
	)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if !seen {
				continue
			}
			return string(data), nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		if after, ok := strings.CutPrefix(line, "data:"); ok {
			// A single leading space is framing, not payload.
			after = strings.TrimPrefix(after, " ")
			if seen {
				data = append(data, '\n')
			}
			data = append(data, after...)
			seen = true
		}
	}
}

// apiError is the JSON error body for non-streaming failures.
type apiError struct {
	Error string `json:"error"`
}

func decodeAPIError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if err == nil {
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("chat request failed (%d): %s", resp.StatusCode, apiErr.Error)
		}
	}
	return fmt.Errorf("chat request failed with status %d", resp.StatusCode)
}
