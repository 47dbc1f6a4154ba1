// Package stream holds the durable token buffer owned by a single chat
// workflow execution together with the signal/query vocabulary used to feed
// it and the frame vocabulary used to relay it to clients.
//
// The buffer is an append-only log of text fragments plus a status flag. The
// producer activity writes to it through workflow signals; the relay reads it
// through workflow queries. The workflow scheduler guarantees a single
// logical writer, so State performs no locking of its own.
package stream

import (
	"errors"
	"fmt"
)

// Signal and query names forming the buffer's external interface. The
// producer activity signals by workflow ID; the relay queries by workflow ID.
const (
	// SignalAppend carries a Batch to append to the token log.
	SignalAppend = "append_tokens"
	// SignalSetPhase carries a short human-readable phase label.
	SignalSetPhase = "set_phase"
	// SignalComplete marks the stream completed.
	SignalComplete = "complete"
	// SignalFail carries a human-readable failure message.
	SignalFail = "fail"
	// QuerySnapshot takes a cursor (int) and returns a Snapshot with the
	// token suffix from that cursor.
	QuerySnapshot = "stream_snapshot"
)

// Status is the lifecycle state of a stream buffer. Transitions are monotone:
// Running moves to exactly one of Completed or Failed and never back.
type Status string

const (
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Terminal reports whether the status is one of the two end states.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Batch is an ordered group of fragments appended atomically. Seq increases
// by one per flush from the producer; the buffer rejects any batch whose Seq
// it has already applied, so a producer retried with at-least-once semantics
// cannot duplicate fragments.
type Batch struct {
	Seq    int      `json:"seq"`
	Tokens []string `json:"tokens"`
}

var (
	// ErrTerminal is returned by mutating operations invoked after the
	// buffer reached Completed or Failed. Callers log and drop the
	// operation; the buffer is left untouched.
	ErrTerminal = errors.New("stream buffer is terminal")

	// ErrStaleBatch is returned when a batch's sequence number was already
	// applied, i.e. a retried producer replayed a delivered batch.
	ErrStaleBatch = errors.New("stale batch sequence")
)

// State is the append-only token log for one request. Fragments are never
// mutated or reordered once written, only appended.
type State struct {
	tokens  []string
	lastSeq int
	status  Status
	errMsg  string
	phase   string
}

// NewState returns a buffer in the Running state with an empty log.
func NewState() *State {
	return &State{status: StatusRunning, lastSeq: -1}
}

// Append applies one batch to the log. It fails with ErrTerminal after
// Complete or Fail and with ErrStaleBatch when the batch was already applied.
// The first applied batch clears any pending phase label: once token
// production is visible the label is stale.
func (s *State) Append(b Batch) error {
	if s.status != StatusRunning {
		return fmt.Errorf("%w: append after %s", ErrTerminal, s.status)
	}
	if b.Seq <= s.lastSeq {
		return fmt.Errorf("%w: seq %d already applied (last %d)", ErrStaleBatch, b.Seq, s.lastSeq)
	}
	s.tokens = append(s.tokens, b.Tokens...)
	s.lastSeq = b.Seq
	s.phase = ""
	return nil
}

// SetPhase overwrites the phase label. Labels are replaced, never queued.
func (s *State) SetPhase(label string) error {
	if s.status != StatusRunning {
		return fmt.Errorf("%w: set phase after %s", ErrTerminal, s.status)
	}
	s.phase = label
	return nil
}

// Complete moves the buffer to its successful terminal state.
func (s *State) Complete() error {
	if s.status != StatusRunning {
		return fmt.Errorf("%w: complete after %s", ErrTerminal, s.status)
	}
	s.status = StatusCompleted
	s.phase = ""
	return nil
}

// Fail moves the buffer to its failed terminal state with a human-readable
// message. The message is the only error detail that reaches the client.
func (s *State) Fail(msg string) error {
	if s.status != StatusRunning {
		return fmt.Errorf("%w: fail after %s", ErrTerminal, s.status)
	}
	s.status = StatusFailed
	s.errMsg = msg
	s.phase = ""
	return nil
}

// Status returns the current lifecycle state.
func (s *State) Status() Status { return s.status }

// Terminal reports whether the buffer reached an end state.
func (s *State) Terminal() bool { return s.status.Terminal() }

// Len returns the number of fragments appended so far.
func (s *State) Len() int { return len(s.tokens) }

// Snapshot is a consistent view of the buffer taken at one instant. Tokens
// holds the suffix of the log starting at the cursor the reader requested;
// TokenCount is the total number of fragments appended, so
// TokenCount == cursor + len(Tokens) always holds.
type Snapshot struct {
	Tokens       []string `json:"tokens"`
	TokenCount   int      `json:"token_count"`
	Status       Status   `json:"status"`
	ErrorMessage string   `json:"error_message,omitempty"`
	Phase        string   `json:"phase,omitempty"`
}

// SnapshotSince returns a snapshot with the fragments not yet seen by a
// reader whose cursor is from. Cursors outside [0, Len] are clamped. The
// returned slice is a copy so later appends cannot alias into it.
func (s *State) SnapshotSince(from int) Snapshot {
	if from < 0 {
		from = 0
	}
	if from > len(s.tokens) {
		from = len(s.tokens)
	}
	suffix := make([]string, len(s.tokens)-from)
	copy(suffix, s.tokens[from:])
	return Snapshot{
		Tokens:       suffix,
		TokenCount:   len(s.tokens),
		Status:       s.status,
		ErrorMessage: s.errMsg,
		Phase:        s.phase,
	}
}
