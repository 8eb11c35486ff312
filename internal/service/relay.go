package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"boxing-locker-go/pkg/llm"
	"boxing-locker-go/pkg/log"
	"boxing-locker-go/pkg/stream"
)

// heartbeatInterval 是流式响应的保活间隔。
const heartbeatInterval = 15 * time.Second

// ToolFunc 执行一次工具调用，返回写回模型与前端的 JSON 结果。
type ToolFunc func(ctx context.Context, arguments string) (json.RawMessage, error)

// ToolOutput 记录一次已执行的工具调用。
type ToolOutput struct {
	CallID string          `json:"toolCallId"`
	Name   string          `json:"toolName"`
	Input  json.RawMessage `json:"input"`
	Output json.RawMessage `json:"output"`
}

// RelayResult 是一次流式响应结束后的汇总。
type RelayResult struct {
	MessageID string
	Text      string
	Tools     []ToolOutput
	Err       error
}

// FinalizeFunc 在流结束、finish 帧之前调用一次，可返回额外的帧（如结构化解析结果）。
type FinalizeFunc func(ctx context.Context, result RelayResult) []stream.Chunk

// Relay 把上游模型的事件流转发为 data: <JSON> 帧。
// 它在打开时已经读到第一个事件，因此上游在产生任何输出前失败会在 openRelay 返回错误，
// 调用方可以直接返回 HTTP 错误而不是一个被截断的流。
type Relay struct {
	client   llm.Client
	req      llm.Request
	tools    map[string]ToolFunc
	maxSteps int

	current llm.Stream
	first   *llm.Event
	firstErr error
}

func openRelay(ctx context.Context, client llm.Client, req llm.Request, tools map[string]ToolFunc, maxSteps int) (*Relay, error) {
	if maxSteps <= 0 {
		maxSteps = 1
	}
	st, err := client.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	ev, err := st.Next()
	if err != nil && !errors.Is(err, io.EOF) {
		_ = st.Close()
		return nil, fmt.Errorf("failed to read first event: %w", err)
	}
	r := &Relay{client: client, req: req, tools: tools, maxSteps: maxSteps, current: st}
	if err == nil {
		r.first = &ev
	} else {
		r.firstErr = err
	}
	return r, nil
}

// Close 释放上游连接。Run 结束时会自动调用。
func (r *Relay) Close() {
	if r.current != nil {
		_ = r.current.Close()
		r.current = nil
	}
}

func (r *Relay) next() (llm.Event, error) {
	if r.first != nil {
		ev := *r.first
		r.first = nil
		return ev, nil
	}
	if r.firstErr != nil {
		err := r.firstErr
		r.firstErr = nil
		return llm.Event{}, err
	}
	return r.current.Next()
}

// Run 写出完整的帧序列：start → text-* / tool-* → finalize 帧 → finish → [DONE]。
// 流开始后的任何上游错误只结束流（写出 error 帧），已累积的文本仍交给 finalize。
func (r *Relay) Run(ctx context.Context, w *stream.Writer, finalize FinalizeFunc) RelayResult {
	defer r.Close()

	result := RelayResult{MessageID: "msg-" + uuid.NewString()}
	textID := "text-" + uuid.NewString()
	var text strings.Builder

	hbCtx, cancelHeartbeat := context.WithCancel(ctx)
	hbDone := make(chan struct{})
	stopHeartbeat := func() {
		cancelHeartbeat()
		<-hbDone
	}
	go func() {
		defer close(hbDone)
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				_ = w.Comment("ping")
			}
		}
	}()

	write := func(c stream.Chunk) {
		if err := w.Write(c); err != nil {
			log.Debugf("[Relay] 写出帧失败(客户端可能已断开): %v", err)
		}
	}

	write(stream.Chunk{Type: stream.TypeStart, MessageID: result.MessageID})
	write(stream.Chunk{Type: stream.TypeTextStart, ID: textID})

	messages := append([]llm.Message(nil), r.req.Messages...)
	final := false
	for step := 1; ; step++ {
		var calls []llm.ToolCall
		var stepText strings.Builder
		for {
			ev, err := r.next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				result.Err = err
				break
			}
			switch ev.Type {
			case llm.EventTextDelta:
				text.WriteString(ev.Delta)
				stepText.WriteString(ev.Delta)
				write(stream.Chunk{Type: stream.TypeTextDelta, ID: textID, Delta: ev.Delta})
			case llm.EventToolCall:
				calls = append(calls, *ev.ToolCall)
			}
		}
		if result.Err != nil || len(calls) == 0 || len(r.tools) == 0 || final {
			break
		}

		messages = append(messages, llm.Message{Role: "assistant", Content: stepText.String(), ToolCalls: calls})
		for _, call := range calls {
			out := r.execTool(ctx, call, write)
			result.Tools = append(result.Tools, out)
			messages = append(messages, llm.Message{Role: "tool", ToolCallID: call.ID, Content: string(out.Output)})
		}

		// 工具结果回填后继续请求，使最终文本在同一个流中到达
		r.Close()
		req := r.req
		req.Messages = messages
		if step >= r.maxSteps {
			// 达到步数上限：最后一轮不再提供工具，只要求文本
			req.Tools = nil
			final = true
		}
		st, err := r.client.Stream(ctx, req)
		if err != nil {
			result.Err = err
			break
		}
		r.current = st
	}

	write(stream.Chunk{Type: stream.TypeTextEnd, ID: textID})
	result.Text = text.String()
	if result.Err != nil {
		log.Warnf("[Relay] 上游流中断, message=%s: %v", result.MessageID, result.Err)
		write(stream.Chunk{Type: stream.TypeError, ErrorText: "The coach stopped responding. Please try again."})
	}

	if finalize != nil {
		// 使用独立的上下文，客户端断开后仍然完成持久化
		for _, c := range finalize(context.WithoutCancel(ctx), result) {
			write(c)
		}
	}

	stopHeartbeat()
	reason := "stop"
	if result.Err != nil {
		reason = "error"
	}
	write(stream.Chunk{Type: stream.TypeFinish, FinishReason: reason})
	if err := w.Done(); err != nil {
		log.Debugf("[Relay] 写出结束标记失败: %v", err)
	}
	return result
}

func (r *Relay) execTool(ctx context.Context, call llm.ToolCall, write func(stream.Chunk)) ToolOutput {
	input := json.RawMessage(call.Function.Arguments)
	if !json.Valid(input) {
		input = json.RawMessage("{}")
	}
	write(stream.Chunk{Type: stream.TypeToolInputStart, ToolCallID: call.ID, ToolName: call.Function.Name})
	write(stream.Chunk{Type: stream.TypeToolInputAvailable, ToolCallID: call.ID, ToolName: call.Function.Name, Input: input})

	out := ToolOutput{CallID: call.ID, Name: call.Function.Name, Input: input}
	fn, ok := r.tools[call.Function.Name]
	if !ok {
		out.Output, _ = json.Marshal(map[string]string{"error": "unknown tool " + call.Function.Name})
	} else {
		res, err := fn(ctx, string(input))
		if err != nil {
			log.Errorf("[Relay] 工具执行失败, tool=%s: %v", call.Function.Name, err)
			res, _ = json.Marshal(map[string]string{"error": err.Error()})
		}
		out.Output = res
	}
	write(stream.Chunk{Type: stream.TypeToolOutputAvail, ToolCallID: call.ID, Output: out.Output})
	return out
}
