package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrameEncode(t *testing.T) {
	assert.Equal(t, "__DONE__", Done().Encode())
	assert.Equal(t, "__ERROR__:rate limited", Error("rate limited").Encode())
	assert.Equal(t, "__STATUS__:Reading files...", Progress("Reading files...").Encode())
	assert.Equal(t, "The ", Content("The ").Encode())
}

func TestParseFrame(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    Frame
	}{
		{"done", "__DONE__", Done()},
		{"error", "__ERROR__:boom", Error("boom")},
		{"error trims remainder", "__ERROR__:  boom \t", Error("boom")},
		{"status", "__STATUS__:Scanning files...", Progress("Scanning files...")},
		{"plain content", "hello", Content("hello")},
		{"content with newline", "line one\nline two", Content("line one\nline two")},
		// Close-but-not-matching payloads degrade to literal text.
		{"done with suffix", "__DONE__!", Content("__DONE__!")},
		{"unknown sentinel", "__PING__:x", Content("__PING__:x")},
		{"error without colon", "__ERROR__", Content("__ERROR__")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseFrame(tc.payload))
		})
	}
}

func TestFrameRoundTrip(t *testing.T) {
	for _, f := range []Frame{Done(), Error("boom"), Progress("p"), Content("token ")} {
		assert.Equal(t, f, ParseFrame(f.Encode()))
	}
}
