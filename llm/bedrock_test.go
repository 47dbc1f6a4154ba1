package llm

import (
	"context"
	"errors"
	"io"
	"testing"

	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEventStream scripts the Converse event channel the streamer reads from.
type fakeEventStream struct {
	ch     chan brtypes.ConverseStreamOutput
	err    error
	closed bool
}

func (f *fakeEventStream) Err() error   { return f.err }
func (f *fakeEventStream) Close() error { f.closed = true; return nil }

func newBedrockStreamer(ctx context.Context, fake *fakeEventStream) *bedrockStreamer {
	return &bedrockStreamer{ctx: ctx, stream: fake, events: fake.ch, model: "test-model-id"}
}

func textDelta(text string) brtypes.ConverseStreamOutput {
	return &brtypes.ConverseStreamOutputMemberContentBlockDelta{
		Value: brtypes.ContentBlockDeltaEvent{
			Delta: &brtypes.ContentBlockDeltaMemberText{Value: text},
		},
	}
}

func messageStop(reason brtypes.StopReason) brtypes.ConverseStreamOutput {
	return &brtypes.ConverseStreamOutputMemberMessageStop{
		Value: brtypes.MessageStopEvent{StopReason: reason},
	}
}

func TestBedrockStreamerTextDeltas(t *testing.T) {
	fake := &fakeEventStream{ch: make(chan brtypes.ConverseStreamOutput, 8)}
	fake.ch <- textDelta("The ")
	fake.ch <- textDelta("cat ")
	fake.ch <- &brtypes.ConverseStreamOutputMemberContentBlockStop{}
	fake.ch <- textDelta("sat.")
	fake.ch <- messageStop(brtypes.StopReasonEndTurn)
	close(fake.ch)

	s := newBedrockStreamer(context.Background(), fake)

	var texts []string
	for {
		chunk, err := s.Recv()
		require.NoError(t, err)
		if chunk.FinishReason != "" {
			assert.Equal(t, "end_turn", chunk.FinishReason)
			assert.Equal(t, "test-model-id", chunk.Model)
			assert.Empty(t, chunk.Text)
			break
		}
		require.NotEmpty(t, chunk.Text)
		texts = append(texts, chunk.Text)
	}
	assert.Equal(t, []string{"The ", "cat ", "sat."}, texts)

	// Stop reason flushes once; subsequent reads report end of stream.
	_, err := s.Recv()
	assert.ErrorIs(t, err, io.EOF)
	_, err = s.Recv()
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, s.Close())
	assert.True(t, fake.closed)
}

func TestBedrockStreamerStreamError(t *testing.T) {
	fake := &fakeEventStream{
		ch:  make(chan brtypes.ConverseStreamOutput, 2),
		err: errors.New("connection reset"),
	}
	fake.ch <- textDelta("partial")
	fake.ch <- messageStop(brtypes.StopReasonEndTurn)
	close(fake.ch)

	s := newBedrockStreamer(context.Background(), fake)

	chunk, err := s.Recv()
	require.NoError(t, err)
	assert.Equal(t, "partial", chunk.Text)

	// The stream error wins over the buffered stop reason.
	_, err = s.Recv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestBedrockStreamerContextCanceled(t *testing.T) {
	fake := &fakeEventStream{ch: make(chan brtypes.ConverseStreamOutput)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := newBedrockStreamer(ctx, fake)

	_, err := s.Recv()
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBedrockStreamerEOFWithoutStopReason(t *testing.T) {
	fake := &fakeEventStream{ch: make(chan brtypes.ConverseStreamOutput)}
	close(fake.ch)

	s := newBedrockStreamer(context.Background(), fake)

	_, err := s.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

func TestBedrockRejectsEmptyPrompt(t *testing.T) {
	c := NewBedrock(nil, "test-model-id")
	_, err := c.Stream(context.Background(), Request{Prompt: "   "})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prompt cannot be empty")
}
