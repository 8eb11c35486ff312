package stream

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineBuffer_HoldsPartialLines(t *testing.T) {
	var lb LineBuffer

	assert.Empty(t, lb.Feed([]byte("data: {\"type\":")))
	lines := lb.Feed([]byte("\"start\"}\n\ndata: [DO"))
	assert.Equal(t, []string{"data: {\"type\":\"start\"}", ""}, lines)

	lines = lb.Feed([]byte("NE]\r\n"))
	assert.Equal(t, []string{"data: [DONE]"}, lines)
	assert.Equal(t, "", lb.Flush())
}

func TestDataPayload(t *testing.T) {
	cases := []struct {
		line    string
		payload string
		ok      bool
	}{
		{"data: {\"a\":1}", "{\"a\":1}", true},
		{"data:{\"a\":1}", "{\"a\":1}", true},
		{": OPENROUTER PROCESSING", "", false},
		{"", "", false},
		{"event: message", "", false},
	}
	for _, c := range cases {
		payload, ok := DataPayload(c.line)
		assert.Equal(t, c.ok, ok, c.line)
		assert.Equal(t, c.payload, payload, c.line)
	}
}

func TestWriter_FramesAndDone(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.Write(Chunk{Type: TypeTextDelta, ID: "t1", Delta: "Hi"}))
	require.NoError(t, w.Comment("ping"))
	require.NoError(t, w.Done())

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "data: {\"type\":\"text-delta\",\"id\":\"t1\",\"delta\":\"Hi\"}\n\n"))
	assert.Contains(t, out, ": ping\n\n")
	assert.True(t, strings.HasSuffix(out, "data: [DONE]\n\n"))
}

// oneByteReader returns one byte per Read, like arbitrarily split network reads.
type oneByteReader struct {
	data []byte
}

func (r *oneByteReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	p[0] = r.data[0]
	r.data = r.data[1:]
	return 1, nil
}

func TestConsume_AccumulatesAcrossArbitrarySplits(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	output, _ := json.Marshal(VideoSelections{
		Type:   VideoSelectionsType,
		Videos: []ToolVideo{{VideoID: "jab00000001", Title: "Jab", Reason: "Relevant video for Jab"}},
	})
	require.NoError(t, w.Write(Chunk{Type: TypeStart, MessageID: "m1"}))
	require.NoError(t, w.Comment("OPENROUTER PROCESSING"))
	require.NoError(t, w.Write(Chunk{Type: TypeTextDelta, Delta: "Keep "}))
	require.NoError(t, w.Write(Chunk{Type: TypeTextDelta, TextDelta: "your chin down."}))
	require.NoError(t, w.Write(Chunk{Type: TypeToolInputStart, ToolName: "search_video_library"}))
	require.NoError(t, w.Write(Chunk{Type: TypeToolOutputAvail, Output: output}))
	require.NoError(t, w.Write(Chunk{Type: TypeFinish}))
	require.NoError(t, w.Done())
	buf.WriteString("data: {\"type\":\"text-delta\",\"delta\":\"after done\"}\n\n")

	r := &oneByteReader{data: buf.Bytes()}
	var seen int
	acc, err := Consume(r, func(Chunk, *Accumulator) { seen++ })
	require.NoError(t, err)

	assert.Equal(t, 6, seen)
	assert.Equal(t, "Keep your chin down.", acc.Text())
	assert.True(t, acc.Finished)
	assert.Equal(t, []string{"search_video_library"}, acc.ToolNames)

	parsed := acc.Reconcile()
	assert.Equal(t, "Keep your chin down.", parsed.CleanText)
	require.Len(t, parsed.VideoRecommendations, 1)
	assert.Equal(t, "jab00000001", parsed.VideoRecommendations[0].VideoID)
}

func TestConsume_ErrorFrameAndTruncatedStream(t *testing.T) {
	in := "data: {\"type\":\"text-delta\",\"delta\":\"Partial\"}\n\ndata: not-json\n\ndata: {\"type\":\"error\",\"errorText\":\"upstream failed\"}"

	acc, err := Consume(strings.NewReader(in), nil)
	require.NoError(t, err)

	assert.Equal(t, "Partial", acc.Text())
	assert.Equal(t, "upstream failed", acc.ErrorText)
	assert.False(t, acc.Finished)
}
