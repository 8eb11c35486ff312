package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// Chunk types carried in the "type" discriminator.
const (
	TypeStart              = "start"
	TypeTextStart          = "text-start"
	TypeTextDelta          = "text-delta"
	TypeTextEnd            = "text-end"
	TypeText               = "text"
	TypeToolInputStart     = "tool-input-start"
	TypeToolInputAvailable = "tool-input-available"
	TypeToolOutputAvail    = "tool-output-available"
	TypeReconciled         = "data-reconciled"
	TypeError              = "error"
	TypeFinish             = "finish"
)

// Chunk is one JSON frame of the stream.
type Chunk struct {
	Type         string          `json:"type"`
	ID           string          `json:"id,omitempty"`
	MessageID    string          `json:"messageId,omitempty"`
	Delta        string          `json:"delta,omitempty"`
	TextDelta    string          `json:"textDelta,omitempty"` // older producers use this instead of delta
	Text         string          `json:"text,omitempty"`
	ToolCallID   string          `json:"toolCallId,omitempty"`
	ToolName     string          `json:"toolName,omitempty"`
	Input        json.RawMessage `json:"input,omitempty"`
	Output       json.RawMessage `json:"output,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
	ErrorText    string          `json:"errorText,omitempty"`
	FinishReason string          `json:"finishReason,omitempty"`
}

// Writer encodes chunks as "data: <JSON>\n\n" frames and flushes after each one.
// It is safe for concurrent use, so a heartbeat goroutine can share it with the relay.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
}

// NewWriter wraps w. Flushing is used when w implements http.Flusher.
func NewWriter(w io.Writer) *Writer {
	f, _ := w.(http.Flusher)
	return &Writer{w: w, flusher: f}
}

// Write sends one chunk.
func (sw *Writer) Write(c Chunk) error {
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal stream chunk: %w", err)
	}
	return sw.writeRaw("data: " + string(b) + "\n\n")
}

// Comment sends an SSE comment line, used as a keep-alive.
func (sw *Writer) Comment(text string) error {
	return sw.writeRaw(": " + text + "\n\n")
}

// Done sends the terminating sentinel.
func (sw *Writer) Done() error {
	return sw.writeRaw("data: " + DoneSentinel + "\n\n")
}

func (sw *Writer) writeRaw(s string) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if _, err := io.WriteString(sw.w, s); err != nil {
		return err
	}
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
	return nil
}

// VideoSelections is the output of the video library search tool.
type VideoSelections struct {
	Type   string      `json:"type"`
	Videos []ToolVideo `json:"videos"`
	Error  string      `json:"error,omitempty"`
}

// VideoSelectionsType is the discriminator of VideoSelections.
const VideoSelectionsType = "video_selections"

// ToolVideo is one video picked by the search tool.
type ToolVideo struct {
	VideoID  string  `json:"video_id"`
	Title    string  `json:"title"`
	Topic    string  `json:"topic"`
	Subtopic *string `json:"subtopic"`
	Reason   string  `json:"reason"`
}
