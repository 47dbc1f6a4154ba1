package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// BedrockRuntime is the subset of the AWS Bedrock runtime client used by the
// adapter. It matches *bedrockruntime.Client so tests can substitute a fake.
type BedrockRuntime interface {
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// Bedrock streams completions through the AWS Bedrock Converse API.
type Bedrock struct {
	runtime BedrockRuntime
	model   string
}

// NewBedrock constructs an adapter over a Bedrock runtime client.
func NewBedrock(runtime BedrockRuntime, model string) *Bedrock {
	return &Bedrock{runtime: runtime, model: model}
}

// Provider implements Client.
func (c *Bedrock) Provider() string { return ProviderBedrock }

// Model implements Client.
func (c *Bedrock) Model() string { return c.model }

// Stream implements Client.
func (c *Bedrock) Stream(ctx context.Context, req Request) (Streamer, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, errors.New("bedrock: prompt cannot be empty")
	}
	input := &bedrockruntime.ConverseStreamInput{
		ModelId: aws.String(c.model),
		Messages: []brtypes.Message{{
			Role:    brtypes.ConversationRoleUser,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: req.Prompt}},
		}},
	}
	cfg := &brtypes.InferenceConfiguration{}
	if req.MaxTokens > 0 {
		cfg.MaxTokens = aws.Int32(int32(req.MaxTokens))
	}
	if req.Temperature > 0 {
		cfg.Temperature = aws.Float32(float32(req.Temperature))
	}
	if cfg.MaxTokens != nil || cfg.Temperature != nil {
		input.InferenceConfig = cfg
	}

	out, err := c.runtime.ConverseStream(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("bedrock converse stream: %w", err)
	}
	es := out.GetStream()
	if es == nil {
		return nil, errors.New("bedrock: stream output missing event stream")
	}
	return &bedrockStreamer{ctx: ctx, stream: es, events: es.Events(), model: c.model}, nil
}

// converseEventStream is the lifecycle surface of the SDK event stream the
// streamer uses. *bedrockruntime.ConverseStreamEventStream satisfies it.
type converseEventStream interface {
	Err() error
	Close() error
}

type bedrockStreamer struct {
	ctx        context.Context
	stream     converseEventStream
	events     <-chan brtypes.ConverseStreamOutput
	model      string
	stopReason string
	flushed    bool
}

func (s *bedrockStreamer) Recv() (Chunk, error) {
	for {
		select {
		case <-s.ctx.Done():
			return Chunk{}, s.ctx.Err()
		case event, ok := <-s.events:
			if !ok {
				if err := s.stream.Err(); err != nil {
					return Chunk{}, fmt.Errorf("bedrock stream: %w", err)
				}
				if s.stopReason != "" && !s.flushed {
					s.flushed = true
					return Chunk{FinishReason: s.stopReason, Model: s.model}, nil
				}
				return Chunk{}, io.EOF
			}
			switch ev := event.(type) {
			case *brtypes.ConverseStreamOutputMemberContentBlockDelta:
				if text, ok := ev.Value.Delta.(*brtypes.ContentBlockDeltaMemberText); ok && text.Value != "" {
					return Chunk{Text: text.Value, Model: s.model}, nil
				}
			case *brtypes.ConverseStreamOutputMemberMessageStop:
				s.stopReason = string(ev.Value.StopReason)
			}
		}
	}
}

func (s *bedrockStreamer) Close() error {
	return s.stream.Close()
}
