package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boxing-locker-go/internal/model"
	"boxing-locker-go/internal/repository"
	"boxing-locker-go/pkg/reconcile"
	"boxing-locker-go/pkg/stream"
)

func userMessage(text string) UIMessage {
	return UIMessage{ID: "u1", Role: model.RoleUser, Parts: []UIMessagePart{{Type: "text", Text: text}}}
}

func TestUIMessage_Text(t *testing.T) {
	m := UIMessage{Parts: []UIMessagePart{{Type: "text", Text: "a"}, {Type: "reasoning", Text: "x"}, {Type: "text", Text: "b"}}, Content: "ignored"}
	assert.Equal(t, "a\nb", m.Text())
	assert.Equal(t, "plain", UIMessage{Content: "plain"}.Text())
}

func TestComposeMessages(t *testing.T) {
	msgs := composeMessages("system prompt", []UIMessage{
		userMessage("hi"),
		{Role: model.RoleAssistant, Content: "hello"},
		{Role: "tool", Content: "dropped"},
		{Role: model.RoleUser, Content: "   "},
	})

	require.Len(t, msgs, 3)
	assert.Equal(t, model.RoleSystem, msgs[0].Role)
	assert.Equal(t, "system prompt", msgs[0].Content)
	assert.Equal(t, "hi", msgs[1].Content)
	assert.Equal(t, "hello", msgs[2].Content)
}

func TestChatService_PersistsUserAndAssistantOnce(t *testing.T) {
	sessions := NewSessionService(repository.NewSessionRepository(openTestDB(t)))
	reply := "Keep the jab long.\n\n```json\n{\"actions\":[{\"label\":\"Footwork\",\"type\":\"explore_topic\",\"query\":\"footwork\"}],\"videos\":[\"jab basics\"]}\n```"
	client := &fakeLLM{streams: []*scriptedStream{{events: textEvents(reply[:20], reply[20:])}}}
	resolver := reconcile.NewResolver(func(_ context.Context, term string) (*reconcile.VideoRecommendation, error) {
		return &reconcile.VideoRecommendation{VideoID: "jabjabjab01", Title: "Jab Basics", Reason: term}, nil
	}, 0)
	svc := NewChatService(sessions, client, resolver)
	ctx := context.Background()

	prepared, err := svc.Open(ctx, ChatRequest{SessionID: "test-1", Messages: []UIMessage{userMessage("How do I jab?")}})
	require.NoError(t, err)
	var buf bytes.Buffer
	prepared.Run(ctx, stream.NewWriter(&buf))

	history, err := sessions.History(ctx, "test-1", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.RoleUser, history[0].Role)
	assert.Equal(t, "How do I jab?", history[0].Content)
	assert.Equal(t, model.RoleAssistant, history[1].Role)
	assert.Equal(t, reply, history[1].Content)
	assert.Equal(t, []string{"jab basics"}, []string(history[1].VideoRecommendations))

	chunks, done := decodeFrames(t, buf.Bytes())
	require.True(t, done)
	var reconciled *stream.Chunk
	for i := range chunks {
		if chunks[i].Type == stream.TypeReconciled {
			reconciled = &chunks[i]
		}
	}
	require.NotNil(t, reconciled)
	var parsed reconcile.Parsed
	require.NoError(t, json.Unmarshal(reconciled.Data, &parsed))
	assert.Equal(t, "Keep the jab long.", parsed.CleanText)
	require.Len(t, parsed.Actions, 1)
	require.Len(t, parsed.VideoRecommendations, 1)
	assert.Equal(t, "jabjabjab01", parsed.VideoRecommendations[0].VideoID)

	// system prompt + 用户消息
	require.Len(t, client.requests, 1)
	assert.Len(t, client.requests[0].Messages, 2)
}

func TestChatService_RequiresSessionID(t *testing.T) {
	svc := NewChatService(NewSessionService(repository.NewSessionRepository(openTestDB(t))), &fakeLLM{}, nil)

	_, err := svc.Open(context.Background(), ChatRequest{Messages: []UIMessage{userMessage("hi")}})

	assert.ErrorIs(t, err, ErrSessionIDRequired)
}

func TestChatService_UpstreamFailureBeforeOutput(t *testing.T) {
	sessions := NewSessionService(repository.NewSessionRepository(openTestDB(t)))
	svc := NewChatService(sessions, &fakeLLM{openErr: errors.New("boom")}, nil)

	_, err := svc.Open(context.Background(), ChatRequest{SessionID: "s", Messages: []UIMessage{userMessage("hi")}})
	require.Error(t, err)

	history, err := sessions.History(context.Background(), "s", 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestSessionService_SanitizesAndSkipsEmptyUserMessages(t *testing.T) {
	sessions := NewSessionService(repository.NewSessionRepository(openTestDB(t)))
	ctx := context.Background()
	_, err := sessions.GetOrCreate(ctx, "s")
	require.NoError(t, err)

	saved, err := sessions.Append(ctx, "s", model.RoleUser, "\x00\x07", nil)
	require.NoError(t, err)
	assert.False(t, saved)

	saved, err = sessions.Append(ctx, "s", model.RoleUser, "jab\x00\n\tcross\r\x1F", nil)
	require.NoError(t, err)
	assert.True(t, saved)

	history, err := sessions.History(ctx, "s", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "jab\n\tcross\r", history[0].Content)

	_, err = sessions.Append(ctx, "", model.RoleUser, "x", nil)
	assert.ErrorIs(t, err, ErrSessionIDRequired)
}
