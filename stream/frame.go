package stream

import "strings"

// FrameType discriminates the events multiplexed onto the client stream.
// Content frames carry literal text; the others are control frames encoded
// with reserved sentinel prefixes on the wire.
type FrameType int

const (
	FrameContent FrameType = iota
	FrameProgress
	FrameError
	FrameDone
)

// Reserved wire literals. Any payload not matching one of these is content.
const (
	doneSentinel   = "__DONE__"
	errorSentinel  = "__ERROR__:"
	statusSentinel = "__STATUS__:"
)

// Frame is one event on the client stream: a token, a phase label, a
// terminal error message, or the completion marker.
type Frame struct {
	Type FrameType
	Text string
}

// Content returns a frame carrying literal token text.
func Content(text string) Frame { return Frame{Type: FrameContent, Text: text} }

// Progress returns a control frame carrying the latest phase label.
func Progress(label string) Frame { return Frame{Type: FrameProgress, Text: label} }

// Error returns the terminal error control frame.
func Error(msg string) Frame { return Frame{Type: FrameError, Text: msg} }

// Done returns the terminal completion control frame.
func Done() Frame { return Frame{Type: FrameDone} }

// Encode renders the frame as its wire payload.
func (f Frame) Encode() string {
	switch f.Type {
	case FrameDone:
		return doneSentinel
	case FrameError:
		return errorSentinel + f.Text
	case FrameProgress:
		return statusSentinel + f.Text
	default:
		return f.Text
	}
}

// ParseFrame classifies a wire payload. Control sentinels are matched first;
// everything else, including payloads with unknown "__"-style prefixes, is
// treated as literal content so a malformed frame degrades to visible text
// instead of breaking the stream.
func ParseFrame(payload string) Frame {
	switch {
	case payload == doneSentinel:
		return Done()
	case strings.HasPrefix(payload, errorSentinel):
		return Error(strings.TrimSpace(strings.TrimPrefix(payload, errorSentinel)))
	case strings.HasPrefix(payload, statusSentinel):
		return Progress(strings.TrimSpace(strings.TrimPrefix(payload, statusSentinel)))
	default:
		return Content(payload)
	}
}
