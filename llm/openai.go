package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
)

// OpenAI streams completions from the Chat Completions API.
type OpenAI struct {
	client openai.Client
	model  string
}

// NewOpenAI constructs an adapter. Extra request options (base URL, HTTP
// client) are forwarded to the SDK, which tests use to point at a local
// server.
func NewOpenAI(apiKey, model string, reqOpts ...option.RequestOption) *OpenAI {
	opts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, reqOpts...)
	return &OpenAI{client: openai.NewClient(opts...), model: model}
}

// Provider implements Client.
func (c *OpenAI) Provider() string { return ProviderOpenAI }

// Model implements Client.
func (c *OpenAI) Model() string { return c.model }

// Stream implements Client.
func (c *OpenAI) Stream(ctx context.Context, req Request) (Streamer, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, errors.New("openai: prompt cannot be empty")
	}
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("openai chat completions stream: %w", err)
	}
	return &openaiStreamer{stream: stream, model: c.model}, nil
}

type openaiStreamer struct {
	stream       *ssestream.Stream[openai.ChatCompletionChunk]
	model        string
	finishReason string
	flushed      bool
}

func (s *openaiStreamer) Recv() (Chunk, error) {
	for s.stream.Next() {
		chunk := s.stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			s.finishReason = choice.FinishReason
		}
		if choice.Delta.Content != "" {
			model := chunk.Model
			if model == "" {
				model = s.model
			}
			return Chunk{Text: choice.Delta.Content, Model: model}, nil
		}
	}
	if err := s.stream.Err(); err != nil {
		return Chunk{}, fmt.Errorf("openai stream: %w", err)
	}
	if s.finishReason != "" && !s.flushed {
		s.flushed = true
		return Chunk{FinishReason: s.finishReason, Model: s.model}, nil
	}
	return Chunk{}, io.EOF
}

func (s *openaiStreamer) Close() error {
	return s.stream.Close()
}
