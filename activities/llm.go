package activities

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.temporal.io/sdk/activity"

	"goa.design/docchat/llm"
	"goa.design/docchat/stream"
)

// StreamCompletionName registers the streaming completion activity.
const StreamCompletionName = "stream_completion"

const (
	// defaultBatchSize is the fragments accumulated before an append signal.
	defaultBatchSize = 5
	// heartbeatEvery is the token cadence for activity heartbeats.
	heartbeatEvery = 20
	// phaseEvery is the token cadence for progress phase updates.
	phaseEvery = 50
)

// Signaler delivers signals to a running workflow. It is the narrow slice of
// client.Client the producer needs, so tests can fake delivery.
type Signaler interface {
	SignalWorkflow(ctx context.Context, workflowID, runID, signalName string, arg interface{}) error
}

// LLMActivities streams model completions back into workflow state.
type LLMActivities struct {
	signaler  Signaler
	llm       llm.Client
	batchSize int
}

// NewLLMActivities returns activities that stream via the given provider and
// signal results through signaler. batchSize <= 0 selects the default.
func NewLLMActivities(signaler Signaler, client llm.Client, batchSize int) *LLMActivities {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &LLMActivities{signaler: signaler, llm: client, batchSize: batchSize}
}

// StreamInput configures one streaming completion run.
type StreamInput struct {
	Prompt      string  `json:"prompt"`
	WorkflowID  string  `json:"workflow_id"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

// StreamStats summarizes a completed stream.
type StreamStats struct {
	TokenCount   int    `json:"token_count"`
	FinishReason string `json:"finish_reason"`
	Model        string `json:"model"`
	Provider     string `json:"provider"`
}

// StreamCompletion runs the provider stream and forwards every text fragment
// to the workflow as append signals in sequence-numbered batches. On success
// it sends the complete signal; on failure it sends fail with a user-facing
// message and returns the underlying error so Temporal records it.
func (a *LLMActivities) StreamCompletion(ctx context.Context, in StreamInput) (StreamStats, error) {
	if in.WorkflowID == "" {
		return StreamStats{}, fmt.Errorf("stream completion: workflow ID is required")
	}

	streamer, err := a.llm.Stream(ctx, llm.Request{
		Prompt:      in.Prompt,
		MaxTokens:   in.MaxTokens,
		Temperature: in.Temperature,
	})
	if err != nil {
		a.signalFail(ctx, in.WorkflowID, err)
		return StreamStats{}, fmt.Errorf("start %s stream: %w", a.llm.Provider(), err)
	}
	defer streamer.Close()

	buf := newSignalBuffer(a.signaler, in.WorkflowID, a.batchSize)
	stats := StreamStats{Provider: a.llm.Provider(), Model: a.llm.Model()}
	for {
		chunk, err := streamer.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			a.signalFail(ctx, in.WorkflowID, err)
			return stats, fmt.Errorf("%s stream: %w", a.llm.Provider(), err)
		}
		if chunk.FinishReason != "" {
			stats.FinishReason = chunk.FinishReason
		}
		if chunk.Model != "" {
			stats.Model = chunk.Model
		}
		if chunk.Text == "" {
			continue
		}
		stats.TokenCount++
		if err := buf.add(ctx, chunk.Text); err != nil {
			return stats, fmt.Errorf("signal append: %w", err)
		}
		if stats.TokenCount%heartbeatEvery == 0 {
			activity.RecordHeartbeat(ctx, stats.TokenCount)
		}
		if stats.TokenCount%phaseEvery == 0 {
			phase := fmt.Sprintf("Generating response... (%d tokens)", stats.TokenCount)
			if err := a.signaler.SignalWorkflow(ctx, in.WorkflowID, "", stream.SignalSetPhase, phase); err != nil {
				return stats, fmt.Errorf("signal phase: %w", err)
			}
		}
	}

	if err := buf.flush(ctx); err != nil {
		return stats, fmt.Errorf("signal final append: %w", err)
	}
	if err := a.signaler.SignalWorkflow(ctx, in.WorkflowID, "", stream.SignalComplete, nil); err != nil {
		return stats, fmt.Errorf("signal complete: %w", err)
	}
	return stats, nil
}

// signalFail delivers the translated failure message on a best effort basis.
// The activity error carries the real cause either way.
func (a *LLMActivities) signalFail(ctx context.Context, workflowID string, cause error) {
	msg := llm.TranslateError(a.llm.Provider(), cause)
	_ = a.signaler.SignalWorkflow(ctx, workflowID, "", stream.SignalFail, msg)
}

// signalBuffer batches token fragments into sequence-numbered append signals.
// The sequence number lets the workflow drop redelivered batches when the
// activity retries.
type signalBuffer struct {
	signaler   Signaler
	workflowID string
	limit      int

	seq     int
	pending []string
}

func newSignalBuffer(s Signaler, workflowID string, limit int) *signalBuffer {
	return &signalBuffer{signaler: s, workflowID: workflowID, limit: limit}
}

func (b *signalBuffer) add(ctx context.Context, token string) error {
	b.pending = append(b.pending, token)
	if len(b.pending) < b.limit {
		return nil
	}
	return b.flush(ctx)
}

func (b *signalBuffer) flush(ctx context.Context) error {
	if len(b.pending) == 0 {
		return nil
	}
	batch := stream.Batch{Seq: b.seq, Tokens: b.pending}
	if err := b.signaler.SignalWorkflow(ctx, b.workflowID, "", stream.SignalAppend, batch); err != nil {
		return err
	}
	b.seq++
	b.pending = nil
	return nil
}
