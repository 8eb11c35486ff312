package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"boxing-locker-go/pkg/database"
	"boxing-locker-go/pkg/llm"
	"boxing-locker-go/pkg/stream"
)

// scriptedStream 依次返回预设事件，结束后返回 err（为空时 io.EOF）。
type scriptedStream struct {
	events []llm.Event
	err    error
	closed bool
}

func (s *scriptedStream) Next() (llm.Event, error) {
	if len(s.events) == 0 {
		if s.err != nil {
			return llm.Event{}, s.err
		}
		return llm.Event{}, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func (s *scriptedStream) Close() error {
	s.closed = true
	return nil
}

type fakeLLM struct {
	mu       sync.Mutex
	streams  []*scriptedStream
	openErr  error
	requests []llm.Request
}

func (f *fakeLLM) Stream(_ context.Context, req llm.Request) (llm.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.openErr != nil {
		return nil, f.openErr
	}
	if len(f.streams) == 0 {
		return &scriptedStream{}, nil
	}
	s := f.streams[0]
	f.streams = f.streams[1:]
	return s, nil
}

func textEvents(deltas ...string) []llm.Event {
	events := make([]llm.Event, 0, len(deltas)+1)
	for _, d := range deltas {
		events = append(events, llm.Event{Type: llm.EventTextDelta, Delta: d})
	}
	return append(events, llm.Event{Type: llm.EventFinish, FinishReason: "stop"})
}

func toolCallEvents(id, name, args string) []llm.Event {
	return []llm.Event{
		{Type: llm.EventToolCall, ToolCall: &llm.ToolCall{ID: id, Type: "function", Function: llm.FunctionCall{Name: name, Arguments: args}}},
		{Type: llm.EventFinish, FinishReason: "tool_calls"},
	}
}

// decodeFrames 解析写出的帧，返回 chunk 列表以及是否以 [DONE] 结束。
func decodeFrames(t *testing.T, out []byte) ([]stream.Chunk, bool) {
	t.Helper()
	var chunks []stream.Chunk
	done := false
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 1024*1024), 1024*1024)
	for sc.Scan() {
		payload, ok := stream.DataPayload(sc.Text())
		if !ok {
			continue
		}
		require.False(t, done, "frame after [DONE]")
		if strings.TrimSpace(payload) == stream.DoneSentinel {
			done = true
			continue
		}
		var c stream.Chunk
		require.NoError(t, json.Unmarshal([]byte(payload), &c))
		chunks = append(chunks, c)
	}
	return chunks, done
}

func chunkTypes(chunks []stream.Chunk) []string {
	types := make([]string, 0, len(chunks))
	for _, c := range chunks {
		types = append(types, c.Type)
	}
	return types
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(db))
	return db
}
