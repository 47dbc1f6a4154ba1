// Package relay bridges durable workflow stream state to live HTTP clients.
// A bridge polls the workflow's snapshot query with a cursor and forwards
// new tokens and phase changes as frames; the SSE sink writes those frames
// to the browser.
package relay

import (
	"context"
	"fmt"
	"time"

	"goa.design/clue/log"

	"goa.design/docchat/stream"
)

// Source is a cursor-addressed view of a stream buffer. SnapshotSince
// returns the tokens after the cursor along with current status and phase.
type Source interface {
	SnapshotSince(ctx context.Context, since int) (stream.Snapshot, error)
}

// Sink receives relayed frames. A Send error means the client is gone and
// the relay must stop.
type Sink interface {
	Send(f stream.Frame) error
}

// Bridge default tuning.
const (
	DefaultPollInterval  = 250 * time.Millisecond
	DefaultMaxStreamTime = 10 * time.Minute

	// maxQueryFailures is how many consecutive snapshot query errors the
	// bridge tolerates before declaring the stream lost. Transient failures
	// happen while the workflow task is being scheduled.
	maxQueryFailures = 5
)

// Bridge relays one stream from a source to a sink.
type Bridge struct {
	source        Source
	pollInterval  time.Duration
	maxStreamTime time.Duration
}

// NewBridge returns a bridge over source. Zero durations select defaults.
func NewBridge(source Source, pollInterval, maxStreamTime time.Duration) *Bridge {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if maxStreamTime <= 0 {
		maxStreamTime = DefaultMaxStreamTime
	}
	return &Bridge{source: source, pollInterval: pollInterval, maxStreamTime: maxStreamTime}
}

// Run polls the source until the stream reaches a terminal state, the
// deadline passes, the context ends or the sink rejects a write. Every token
// is forwarded exactly once and in order: the cursor only advances past
// tokens the sink accepted, so a failed write never loses text. Run returns
// nil when a terminal frame was delivered.
func (b *Bridge) Run(ctx context.Context, sink Sink) error {
	var (
		cursor    int
		lastPhase string
		failures  int
		deadline  = time.Now().Add(b.maxStreamTime)
		ticker    = time.NewTicker(b.pollInterval)
	)
	defer ticker.Stop()

	for {
		snap, err := b.source.SnapshotSince(ctx, cursor)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			if failures >= maxQueryFailures {
				_ = sink.Send(stream.Error("stream state unavailable"))
				return fmt.Errorf("snapshot query failed %d times: %w", failures, err)
			}
			log.Debugf(ctx, "snapshot query failed, retrying: %v", err)
		} else {
			failures = 0
			if snap.Phase != "" && snap.Phase != lastPhase {
				if err := sink.Send(stream.Progress(snap.Phase)); err != nil {
					return fmt.Errorf("send progress frame: %w", err)
				}
				lastPhase = snap.Phase
			}
			for _, tok := range snap.Tokens {
				if err := sink.Send(stream.Content(tok)); err != nil {
					return fmt.Errorf("send content frame: %w", err)
				}
				cursor++
			}
			if snap.Status.Terminal() {
				if snap.Status == stream.StatusFailed {
					msg := snap.ErrorMessage
					if msg == "" {
						msg = "stream failed"
					}
					if err := sink.Send(stream.Error(msg)); err != nil {
						return fmt.Errorf("send error frame: %w", err)
					}
					return nil
				}
				if err := sink.Send(stream.Done()); err != nil {
					return fmt.Errorf("send done frame: %w", err)
				}
				return nil
			}
		}

		if time.Now().After(deadline) {
			_ = sink.Send(stream.Error("stream timed out"))
			return fmt.Errorf("stream exceeded maximum duration %s", b.maxStreamTime)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
