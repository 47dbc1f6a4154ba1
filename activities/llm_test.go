package activities

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"

	"goa.design/docchat/llm"
	"goa.design/docchat/stream"
)

// recordedSignal is one SignalWorkflow call captured by the fake signaler.
type recordedSignal struct {
	workflowID string
	name       string
	arg        interface{}
}

type fakeSignaler struct {
	mu      sync.Mutex
	signals []recordedSignal
	err     error
}

func (f *fakeSignaler) SignalWorkflow(ctx context.Context, workflowID, runID, signalName string, arg interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.signals = append(f.signals, recordedSignal{workflowID: workflowID, name: signalName, arg: arg})
	return nil
}

func (f *fakeSignaler) recorded() []recordedSignal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedSignal(nil), f.signals...)
}

// scriptedStreamer replays chunks then the terminal error.
type scriptedStreamer struct {
	chunks []llm.Chunk
	final  error
	closed bool
}

func (s *scriptedStreamer) Recv() (llm.Chunk, error) {
	if len(s.chunks) == 0 {
		if s.final != nil {
			return llm.Chunk{}, s.final
		}
		return llm.Chunk{}, io.EOF
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, nil
}

func (s *scriptedStreamer) Close() error {
	s.closed = true
	return nil
}

type fakeLLM struct {
	streamer *scriptedStreamer
	err      error
	gotReq   llm.Request
}

func (f *fakeLLM) Stream(ctx context.Context, req llm.Request) (llm.Streamer, error) {
	f.gotReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.streamer, nil
}

func (f *fakeLLM) Provider() string { return "claude" }
func (f *fakeLLM) Model() string    { return "claude-sonnet-4-5-20250929" }

func textChunks(tokens ...string) []llm.Chunk {
	chunks := make([]llm.Chunk, len(tokens))
	for i, tok := range tokens {
		chunks[i] = llm.Chunk{Text: tok}
	}
	return chunks
}

func runStream(t *testing.T, acts *LLMActivities, in StreamInput) (StreamStats, error) {
	t.Helper()
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	env.RegisterActivityWithOptions(acts.StreamCompletion, activity.RegisterOptions{Name: StreamCompletionName})
	val, err := env.ExecuteActivity(StreamCompletionName, in)
	if err != nil {
		return StreamStats{}, err
	}
	var stats StreamStats
	require.NoError(t, val.Get(&stats))
	return stats, nil
}

func TestStreamCompletionBatchesAndCompletes(t *testing.T) {
	streamer := &scriptedStreamer{chunks: append(
		textChunks("The ", "cat ", "sat ", "on ", "the ", "mat", "."),
		llm.Chunk{FinishReason: "end_turn"},
	)}
	signaler := &fakeSignaler{}
	acts := NewLLMActivities(signaler, &fakeLLM{streamer: streamer}, 3)

	stats, err := runStream(t, acts, StreamInput{
		Prompt:      "where did the cat sit?",
		WorkflowID:  "chat-1",
		MaxTokens:   128,
		Temperature: 0.7,
	})
	require.NoError(t, err)
	assert.Equal(t, 7, stats.TokenCount)
	assert.Equal(t, "end_turn", stats.FinishReason)
	assert.Equal(t, "claude", stats.Provider)
	assert.True(t, streamer.closed)

	signals := signaler.recorded()
	require.Len(t, signals, 4)

	// Seven fragments at batch size three give batches of 3, 3, 1, in order.
	wantBatches := []stream.Batch{
		{Seq: 0, Tokens: []string{"The ", "cat ", "sat "}},
		{Seq: 1, Tokens: []string{"on ", "the ", "mat"}},
		{Seq: 2, Tokens: []string{"."}},
	}
	for i, want := range wantBatches {
		assert.Equal(t, "chat-1", signals[i].workflowID)
		assert.Equal(t, stream.SignalAppend, signals[i].name)
		assert.Equal(t, want, signals[i].arg)
	}
	assert.Equal(t, stream.SignalComplete, signals[3].name)
}

func TestStreamCompletionPhaseUpdates(t *testing.T) {
	tokens := make([]string, 120)
	for i := range tokens {
		tokens[i] = "x"
	}
	signaler := &fakeSignaler{}
	acts := NewLLMActivities(signaler, &fakeLLM{streamer: &scriptedStreamer{chunks: textChunks(tokens...)}}, 0)

	_, err := runStream(t, acts, StreamInput{Prompt: "p", WorkflowID: "chat-2"})
	require.NoError(t, err)

	var phases []string
	for _, sig := range signaler.recorded() {
		if sig.name == stream.SignalSetPhase {
			phases = append(phases, sig.arg.(string))
		}
	}
	assert.Equal(t, []string{
		"Generating response... (50 tokens)",
		"Generating response... (100 tokens)",
	}, phases)
}

func TestStreamCompletionMidStreamFailure(t *testing.T) {
	streamer := &scriptedStreamer{
		chunks: textChunks("partial "),
		final:  errors.New("429 too many requests"),
	}
	signaler := &fakeSignaler{}
	acts := NewLLMActivities(signaler, &fakeLLM{streamer: streamer}, 5)

	_, err := runStream(t, acts, StreamInput{Prompt: "p", WorkflowID: "chat-3"})
	require.Error(t, err)

	signals := signaler.recorded()
	require.NotEmpty(t, signals)
	last := signals[len(signals)-1]
	assert.Equal(t, stream.SignalFail, last.name)
	assert.Contains(t, last.arg.(string), "rate limit")
	for _, sig := range signals {
		assert.NotEqual(t, stream.SignalComplete, sig.name)
	}
}

func TestStreamCompletionStartFailure(t *testing.T) {
	signaler := &fakeSignaler{}
	acts := NewLLMActivities(signaler, &fakeLLM{err: errors.New("invalid api key")}, 5)

	_, err := runStream(t, acts, StreamInput{Prompt: "p", WorkflowID: "chat-4"})
	require.Error(t, err)

	signals := signaler.recorded()
	require.Len(t, signals, 1)
	assert.Equal(t, stream.SignalFail, signals[0].name)
}

func TestStreamCompletionRequiresWorkflowID(t *testing.T) {
	acts := NewLLMActivities(&fakeSignaler{}, &fakeLLM{streamer: &scriptedStreamer{}}, 5)
	_, err := runStream(t, acts, StreamInput{Prompt: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workflow ID is required")
}
