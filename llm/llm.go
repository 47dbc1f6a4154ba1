// Package llm abstracts the streaming text-generation vendors behind a small
// iterator interface and provides adapters for Anthropic, OpenAI and AWS
// Bedrock. Adapters yield plain text chunks in generation order; everything
// tool- or multimodal-shaped is out of scope for document chat.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"
)

// Chunk is a single increment of a streamed completion. Text may be empty on
// chunks that only carry a finish reason.
type Chunk struct {
	Text         string
	FinishReason string
	Model        string
}

// Streamer is a lazy, finite, order-preserving sequence of chunks. Recv
// returns io.EOF after the final chunk; any other error is terminal for the
// stream. Close releases the underlying connection and is safe to call after
// Recv returned an error.
type Streamer interface {
	Recv() (Chunk, error)
	Close() error
}

// Request describes one completion call.
type Request struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Client is a streaming completion provider.
type Client interface {
	Stream(ctx context.Context, req Request) (Streamer, error)
	Provider() string
	Model() string
}

// Provider identifiers accepted by the factory.
const (
	ProviderClaude  = "claude"
	ProviderOpenAI  = "openai"
	ProviderBedrock = "bedrock"
)

// Default model identifiers used when the configuration leaves Model empty.
const (
	defaultClaudeModel  = "claude-sonnet-4-5-20250929"
	defaultOpenAIModel  = "gpt-4o"
	defaultBedrockModel = "anthropic.claude-3-5-sonnet-20241022-v2:0"
)

// ErrProvider wraps invalid provider configuration (unknown provider name or
// missing credentials).
var ErrProvider = errors.New("llm provider configuration")

// Options configures the provider factory.
type Options struct {
	// Provider selects the vendor: "claude" (default), "openai" or "bedrock".
	Provider string
	// Model overrides the provider's default model identifier.
	Model string
	// APIKey authenticates claude/openai calls. Bedrock uses the ambient AWS
	// credential chain instead.
	APIKey string
	// AWSRegion overrides the region for bedrock.
	AWSRegion string
}

// New constructs the configured provider client.
func New(ctx context.Context, opts Options) (Client, error) {
	provider := strings.ToLower(strings.TrimSpace(opts.Provider))
	if provider == "" {
		provider = ProviderClaude
	}
	switch provider {
	case ProviderClaude:
		if opts.APIKey == "" {
			return nil, fmt.Errorf("%w: Claude API key not found, set ANTHROPIC_API_KEY", ErrProvider)
		}
		model := opts.Model
		if model == "" {
			model = defaultClaudeModel
		}
		return NewAnthropic(opts.APIKey, model), nil
	case ProviderOpenAI:
		if opts.APIKey == "" {
			return nil, fmt.Errorf("%w: OpenAI API key not found, set OPENAI_API_KEY", ErrProvider)
		}
		model := opts.Model
		if model == "" {
			model = defaultOpenAIModel
		}
		return NewOpenAI(opts.APIKey, model), nil
	case ProviderBedrock:
		loadOpts := []func(*awsconfig.LoadOptions) error{}
		if opts.AWSRegion != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(opts.AWSRegion))
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("%w: load AWS config: %v", ErrProvider, err)
		}
		model := opts.Model
		if model == "" {
			model = defaultBedrockModel
		}
		return NewBedrock(bedrockruntime.NewFromConfig(cfg), model), nil
	default:
		return nil, fmt.Errorf("%w: invalid provider %q, must be %q, %q or %q",
			ErrProvider, opts.Provider, ProviderClaude, ProviderOpenAI, ProviderBedrock)
	}
}

// TranslateError converts a provider failure into the single human-readable
// message surfaced to the client. Raw transport errors never cross this
// boundary untranslated.
func TranslateError(provider string, err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return provider + " request timed out"
	case errors.Is(err, context.Canceled):
		return provider + " request was canceled"
	case errors.Is(err, io.ErrUnexpectedEOF):
		return provider + " connection was interrupted mid-stream"
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if apiErr.ErrorCode() == "ThrottlingException" {
			return provider + " is rate limited, try again shortly"
		}
		return fmt.Sprintf("%s request failed (%s)", provider, apiErr.ErrorCode())
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "quota"):
		return provider + " is rate limited, try again shortly"
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") || strings.Contains(msg, "api key") || strings.Contains(msg, "authentication"):
		return provider + " rejected the configured credentials"
	}
	return fmt.Sprintf("%s streaming failed: %s", provider, err.Error())
}
