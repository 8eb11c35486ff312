// Package llm provides a streaming client for OpenAI-compatible chat completion APIs (OpenRouter).
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"boxing-locker-go/internal/config"
	"boxing-locker-go/pkg/log"
	"boxing-locker-go/pkg/stream"
)

// Client defines the interface for an LLM client.
type Client interface {
	// Stream starts a streamed completion. An error here means no output was produced.
	Stream(ctx context.Context, req Request) (Stream, error)
}

// Stream yields events of one completion. Next returns io.EOF after the last event.
type Stream interface {
	Next() (Event, error)
	Close() error
}

// Message is a role-based chat message.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a function call requested by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the function name and its JSON encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool declares a function the model may call.
type Tool struct {
	Type     string      `json:"type"`
	Function FunctionDef `json:"function"`
}

// FunctionDef describes a callable function with a JSON schema for its parameters.
type FunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// GenerationParams controls sampling for one request.
type GenerationParams struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Request is one completion call.
type Request struct {
	Messages   []Message
	Tools      []Tool
	Generation *GenerationParams
}

// EventType discriminates stream events.
type EventType int

const (
	EventTextDelta EventType = iota
	EventToolCall
	EventFinish
)

// Event is one decoded stream event. ToolCall events carry fully assembled arguments.
type Event struct {
	Type         EventType
	Delta        string
	ToolCall     *ToolCall
	FinishReason string
}

type openRouterClient struct {
	cfg    config.LLMConfig
	client *http.Client
}

// NewClient creates a new LLM client from config.
func NewClient(cfg config.LLMConfig) Client {
	return &openRouterClient{
		cfg:    cfg,
		client: &http.Client{},
	}
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Tools       []Tool    `json:"tools,omitempty"`
	ToolChoice  string    `json:"tool_choice,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Type     string `json:"type"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *openRouterClient) Stream(ctx context.Context, req Request) (Stream, error) {
	reqBody := chatRequest{
		Model:    c.cfg.Model,
		Messages: req.Messages,
		Stream:   true,
		Tools:    req.Tools,
	}
	if len(req.Tools) > 0 {
		reqBody.ToolChoice = "auto"
	}
	// Request params win; otherwise fall back to the configured non-zero values.
	if gen := req.Generation; gen != nil {
		reqBody.Temperature = gen.Temperature
		reqBody.TopP = gen.TopP
		reqBody.MaxTokens = gen.MaxTokens
	} else {
		if c.cfg.Generation.Temperature != 0 {
			t := c.cfg.Generation.Temperature
			reqBody.Temperature = &t
		}
		if c.cfg.Generation.TopP != 0 {
			p := c.cfg.Generation.TopP
			reqBody.TopP = &p
		}
		if c.cfg.Generation.MaxTokens != 0 {
			m := c.cfg.Generation.MaxTokens
			reqBody.MaxTokens = &m
		}
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.cfg.Referer != "" {
		httpReq.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		httpReq.Header.Set("X-Title", c.cfg.Title)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call chat api: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("chat api returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}
	return newSSEStream(resp.Body), nil
}

// sseStream decodes the provider's SSE body. Partial lines are held back by a LineBuffer
// until their newline arrives, so no delta is split or lost across reads.
type sseStream struct {
	body    io.ReadCloser
	lines   stream.LineBuffer
	buf     []byte
	queue   []Event
	calls   map[int]*ToolCall
	done    bool
	flushed bool
}

func newSSEStream(body io.ReadCloser) *sseStream {
	return &sseStream{body: body, buf: make([]byte, 4096), calls: make(map[int]*ToolCall)}
}

// NewStreamFromReader decodes an already opened SSE body. Useful for replaying captured streams.
func NewStreamFromReader(body io.ReadCloser) Stream {
	return newSSEStream(body)
}

func (s *sseStream) Next() (Event, error) {
	for len(s.queue) == 0 {
		if s.done {
			s.flushCalls("")
			if len(s.queue) == 0 {
				return Event{}, io.EOF
			}
			break
		}
		n, err := s.body.Read(s.buf)
		if n > 0 {
			for _, line := range s.lines.Feed(s.buf[:n]) {
				if perr := s.handleLine(line); perr != nil {
					return Event{}, perr
				}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return Event{}, fmt.Errorf("failed to read from stream: %w", err)
			}
			if rest := s.lines.Flush(); rest != "" {
				if perr := s.handleLine(rest); perr != nil {
					return Event{}, perr
				}
			}
			s.done = true
		}
	}
	ev := s.queue[0]
	s.queue = s.queue[1:]
	return ev, nil
}

func (s *sseStream) handleLine(line string) error {
	if s.done {
		return nil
	}
	data, ok := stream.DataPayload(line)
	if !ok {
		return nil
	}
	if strings.TrimSpace(data) == stream.DoneSentinel {
		s.done = true
		return nil
	}
	var chunk chatChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		log.Debugf("[LLM] skipping undecodable chunk: %v", err)
		return nil
	}
	if chunk.Error != nil {
		return fmt.Errorf("chat api stream error: %s", chunk.Error.Message)
	}
	if len(chunk.Choices) == 0 {
		return nil
	}
	choice := chunk.Choices[0]
	if choice.Delta.Content != "" {
		s.queue = append(s.queue, Event{Type: EventTextDelta, Delta: choice.Delta.Content})
	}
	for _, tc := range choice.Delta.ToolCalls {
		call, ok := s.calls[tc.Index]
		if !ok {
			call = &ToolCall{Type: "function"}
			s.calls[tc.Index] = call
		}
		if tc.ID != "" {
			call.ID = tc.ID
		}
		if tc.Function.Name != "" {
			call.Function.Name = tc.Function.Name
		}
		call.Function.Arguments += tc.Function.Arguments
	}
	if choice.FinishReason != nil && *choice.FinishReason != "" {
		s.flushCalls(*choice.FinishReason)
	}
	return nil
}

// flushCalls emits assembled tool calls in index order followed by the finish event.
func (s *sseStream) flushCalls(reason string) {
	if s.flushed {
		return
	}
	s.flushed = true
	indexes := make([]int, 0, len(s.calls))
	for i := range s.calls {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	for _, i := range indexes {
		s.queue = append(s.queue, Event{Type: EventToolCall, ToolCall: s.calls[i]})
	}
	if reason == "" {
		reason = "stop"
		if len(indexes) > 0 {
			reason = "tool_calls"
		}
	}
	s.queue = append(s.queue, Event{Type: EventFinish, FinishReason: reason})
}

func (s *sseStream) Close() error {
	return s.body.Close()
}
