package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

// MessagesClient is the subset of the Anthropic SDK used by the adapter. It
// is satisfied by *sdk.MessageService so tests can substitute a fake stream.
type MessagesClient interface {
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// Anthropic streams completions from the Claude Messages API.
type Anthropic struct {
	msg   MessagesClient
	model string
}

// NewAnthropic constructs an adapter using the default Anthropic HTTP client.
func NewAnthropic(apiKey, model string) *Anthropic {
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return &Anthropic{msg: &ac.Messages, model: model}
}

// NewAnthropicWithClient constructs an adapter over a caller-provided
// Messages client, typically a test fake.
func NewAnthropicWithClient(msg MessagesClient, model string) *Anthropic {
	return &Anthropic{msg: msg, model: model}
}

// Provider implements Client.
func (c *Anthropic) Provider() string { return ProviderClaude }

// Model implements Client.
func (c *Anthropic) Model() string { return c.model }

// Stream implements Client.
func (c *Anthropic) Stream(ctx context.Context, req Request) (Streamer, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, errors.New("anthropic: prompt cannot be empty")
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt))},
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(req.Temperature)
	}
	stream := c.msg.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("anthropic messages stream: %w", err)
	}
	return &anthropicStreamer{stream: stream, model: c.model}, nil
}

// anthropicStreamer walks the SSE event stream and surfaces text deltas in
// order. Stop reasons arrive on message_delta events and are emitted as a
// final text-less chunk before EOF.
type anthropicStreamer struct {
	stream     *ssestream.Stream[sdk.MessageStreamEventUnion]
	model      string
	stopReason string
	flushed    bool
}

func (s *anthropicStreamer) Recv() (Chunk, error) {
	for s.stream.Next() {
		event := s.stream.Current()
		switch ev := event.AsAny().(type) {
		case sdk.ContentBlockDeltaEvent:
			if delta, ok := ev.Delta.AsAny().(sdk.TextDelta); ok && delta.Text != "" {
				return Chunk{Text: delta.Text, Model: s.model}, nil
			}
		case sdk.MessageDeltaEvent:
			s.stopReason = string(ev.Delta.StopReason)
		}
	}
	if err := s.stream.Err(); err != nil {
		return Chunk{}, fmt.Errorf("anthropic stream: %w", err)
	}
	if s.stopReason != "" && !s.flushed {
		s.flushed = true
		return Chunk{FinishReason: s.stopReason, Model: s.model}, nil
	}
	return Chunk{}, io.EOF
}

func (s *anthropicStreamer) Close() error {
	return s.stream.Close()
}
