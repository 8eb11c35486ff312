// Package voice implements the duplex voice coaching session: microphone audio goes up,
// coach audio comes back and is laid out on a gapless playback timeline.
package voice

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"boxing-locker-go/pkg/log"
)

// LiveSession is the remote side of a real-time voice session.
type LiveSession interface {
	SendAudio(pcm []byte, mimeType string) error
	SendAudioStreamEnd() error
	SendToolResponse(responses []ToolResponse) error
	// Receive blocks until the next server event. It returns io.EOF once the session is closed.
	Receive() (*ServerEvent, error)
	Close() error
}

// ServerEvent is one message from the remote session.
type ServerEvent struct {
	Audio        [][]byte // 16-bit PCM at PlaybackSampleRate
	Text         []string
	Transcript   string
	Interrupted  bool
	TurnComplete bool
	ToolCalls    []ToolCall
}

// ToolCall is a function call requested by the remote model.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResponse answers a ToolCall.
type ToolResponse struct {
	ID       string
	Name     string
	Response map[string]any
}

// Outbound message types sent to the browser.
const (
	MsgAudio       = "audio"
	MsgInterrupted = "interrupted"
	MsgTranscript  = "transcript"
	MsgPlan        = "plan"
	MsgError       = "error"
	MsgClosed      = "closed"
)

// Outbound is one JSON message delivered to the browser.
type Outbound struct {
	Type       string   `json:"type"`
	Data       string   `json:"data,omitempty"`
	StartMs    *float64 `json:"startMs,omitempty"`
	DurationMs *float64 `json:"durationMs,omitempty"`
	Text       string   `json:"text,omitempty"`
	Title      string   `json:"title,omitempty"`
	URL        string   `json:"url,omitempty"`
	Message    string   `json:"message,omitempty"`
}

// Sink receives messages destined for the browser.
type Sink interface {
	Send(msg Outbound) error
}

// PlanHandler stores a generated plan and returns where it can be downloaded.
type PlanHandler func(ctx context.Context, req PlanRequest) (PlanArtifact, error)

const (
	planSuccessMessage = "Plan generated and downloaded successfully!"
	planFailureMessage = "Failed to generate plan"
	coachName          = "Freya"
)

// Client drives one voice session between the browser and the remote model.
type Client struct {
	session   LiveSession
	sink      Sink
	plans     PlanHandler
	scheduler *Scheduler

	now     func() time.Time
	started time.Time

	recording atomic.Bool
	ended     atomic.Bool
	endOnce   sync.Once

	mu         sync.Mutex
	transcript strings.Builder
}

// NewClient wraps an open session. plans may be nil, in which case plan requests fail.
func NewClient(session LiveSession, sink Sink, plans PlanHandler) *Client {
	c := &Client{
		session:   session,
		sink:      sink,
		plans:     plans,
		scheduler: NewScheduler(),
		now:       time.Now,
	}
	c.started = c.now()
	return c
}

// Scheduler exposes the playback timeline.
func (c *Client) Scheduler() *Scheduler {
	return c.scheduler
}

// StartRecording enables forwarding of microphone audio.
func (c *Client) StartRecording() {
	c.recording.Store(true)
}

// StopRecording disables forwarding of microphone audio.
func (c *Client) StopRecording() {
	c.recording.Store(false)
}

// Recording reports whether microphone audio is forwarded.
func (c *Client) Recording() bool {
	return c.recording.Load()
}

// SendAudio forwards one base64 PCM capture buffer. Audio arriving while not recording is dropped.
func (c *Client) SendAudio(data string) error {
	if !c.Recording() {
		return nil
	}
	pcm, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return fmt.Errorf("failed to decode audio: %w", err)
	}
	return c.session.SendAudio(pcm, MicMIMEType)
}

// SendSamples encodes and forwards one capture buffer of float samples.
func (c *Client) SendSamples(samples []float32) error {
	if !c.Recording() {
		return nil
	}
	return c.session.SendAudio(EncodePCM16(samples), MicMIMEType)
}

// Transcript returns what the coach has said so far.
func (c *Client) Transcript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript.String()
}

// Run reads server events until the session ends or ctx is cancelled.
// It always sends a closed message before returning.
func (c *Client) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer func() {
		close(done)
		c.End()
		_ = c.sink.Send(Outbound{Type: MsgClosed})
	}()
	go func() {
		select {
		case <-ctx.Done():
			c.End()
		case <-done:
		}
	}()

	for {
		ev, err := c.session.Receive()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil || c.ended.Load() {
				return nil
			}
			_ = c.sink.Send(Outbound{Type: MsgError, Message: "Connection error - please try again"})
			return fmt.Errorf("failed to receive from voice session: %w", err)
		}
		if err := c.handle(ctx, ev); err != nil {
			return err
		}
	}
}

func (c *Client) handle(ctx context.Context, ev *ServerEvent) error {
	if len(ev.ToolCalls) > 0 {
		for _, call := range ev.ToolCalls {
			c.handleToolCall(ctx, call)
		}
		return nil
	}

	if ev.Interrupted {
		dropped := c.scheduler.Interrupt()
		log.Debugf("[VoiceClient] interrupted, dropped %d fragments", dropped)
		return c.sink.Send(Outbound{Type: MsgInterrupted})
	}

	for _, pcm := range ev.Audio {
		if len(pcm) < 2 {
			continue
		}
		now := c.now().Sub(c.started)
		c.scheduler.Drain(now)
		dur := PCMDuration(pcm, PlaybackSampleRate)
		start := c.scheduler.Schedule(now, dur)
		startMs, durMs := millis(start), millis(dur)
		if err := c.sink.Send(Outbound{
			Type:       MsgAudio,
			Data:       base64.StdEncoding.EncodeToString(pcm),
			StartMs:    &startMs,
			DurationMs: &durMs,
		}); err != nil {
			return err
		}
	}

	texts := ev.Text
	if ev.Transcript != "" {
		texts = append(texts, ev.Transcript)
	}
	for _, text := range texts {
		text = strings.TrimSpace(text)
		if text == "" || IsThinkingText(text) {
			continue
		}
		c.mu.Lock()
		c.transcript.WriteString("\n\n" + coachName + ": " + text)
		c.mu.Unlock()
		if err := c.sink.Send(Outbound{Type: MsgTranscript, Text: text}); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) handleToolCall(ctx context.Context, call ToolCall) {
	log.Infof("[VoiceClient] tool call received: %s", call.Name)
	if call.Name != PlanToolName {
		c.respond(call, map[string]any{"success": false, "error": "Unknown tool: " + call.Name})
		return
	}
	if c.plans == nil {
		c.respond(call, map[string]any{"success": false, "error": planFailureMessage})
		return
	}

	req := planRequestFromArgs(call.Args)
	req.Transcript = c.Transcript()
	if req.Transcript == "" {
		req.Transcript = "Voice coaching session with Freya Mills"
	}
	req.Duration = c.now().Sub(c.started)

	artifact, err := c.plans(ctx, req)
	if err != nil {
		log.Errorf("[VoiceClient] failed to generate plan: %v", err)
		c.respond(call, map[string]any{"success": false, "error": planFailureMessage})
		return
	}
	if err := c.sink.Send(Outbound{Type: MsgPlan, Title: artifact.Title, URL: artifact.URL}); err != nil {
		log.Warnf("[VoiceClient] failed to deliver plan link: %v", err)
	}
	c.respond(call, map[string]any{"success": true, "message": planSuccessMessage})
}

func (c *Client) respond(call ToolCall, response map[string]any) {
	err := c.session.SendToolResponse([]ToolResponse{{ID: call.ID, Name: call.Name, Response: response}})
	if err != nil {
		log.Warnf("[VoiceClient] failed to send tool response: %v", err)
	}
}

// End stops recording, signals end of audio and closes the session. Calling it again is a no-op.
func (c *Client) End() {
	c.endOnce.Do(func() {
		c.ended.Store(true)
		c.StopRecording()
		if err := c.session.SendAudioStreamEnd(); err != nil {
			log.Debugf("[VoiceClient] audio stream end not delivered: %v", err)
		}
		if err := c.session.Close(); err != nil {
			log.Debugf("[VoiceClient] close session: %v", err)
		}
		c.scheduler.Interrupt()
	})
}

// IsThinkingText reports whether a text part is the model narrating its own planning
// rather than speaking to the user.
func IsThinkingText(text string) bool {
	if strings.HasPrefix(text, "**") {
		return true
	}
	for _, marker := range []string{"Responding", "Figuring", "I'm just", "Trying to", "I'm getting"} {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
