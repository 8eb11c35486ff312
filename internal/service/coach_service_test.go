package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boxing-locker-go/internal/model"
	"boxing-locker-go/pkg/reconcile"
	"boxing-locker-go/pkg/stream"
	"boxing-locker-go/pkg/tasks"
)

type fakeVideoService struct {
	videos    []model.VideoRecord
	err       error
	lastQuery model.VideoSearchParams
}

func (f *fakeVideoService) Search(_ context.Context, params model.VideoSearchParams) ([]model.VideoRecord, error) {
	f.lastQuery = params
	return f.videos, f.err
}

func (f *fakeVideoService) GetByID(context.Context, string) (*model.VideoRecord, error) {
	return nil, nil
}

func (f *fakeVideoService) LookupTerm(context.Context, string) (*reconcile.VideoRecommendation, error) {
	return nil, nil
}

func (f *fakeVideoService) SyncIndex(context.Context) error { return nil }

func (f *fakeVideoService) Import(_ context.Context, videos []model.VideoRecord) (int, error) {
	return len(videos), nil
}

func TestCoachService_FallsBackToToolVideos(t *testing.T) {
	sub := "Jab"
	videos := &fakeVideoService{videos: []model.VideoRecord{{VideoID: "jabjabjab01", VideoTitle: "Jab Basics", Topic: model.TopicTechnique, Subtopic: &sub}}}
	client := &fakeLLM{streams: []*scriptedStream{
		{events: toolCallEvents("call-1", searchVideoToolName, `{"category":"Technique","subtopic":"jab","limit":2}`)},
		{events: textEvents("Snap the jab back to your chin.")},
	}}
	published := make(chan tasks.LeadTask, 1)
	leads := LeadPublisherFunc(func(_ context.Context, task tasks.LeadTask) error {
		published <- task
		return nil
	})
	svc := NewCoachService(client, videos, leads, 3)
	coaching := &model.CoachingContext{Category: model.TopicTechnique, FormData: model.CoachingFormData{Technique: "Jab"}}

	prepared, err := svc.Open(context.Background(), CoachRequest{Messages: []UIMessage{userMessage("Help with my jab")}, Context: coaching})
	require.NoError(t, err)
	var buf bytes.Buffer
	result := prepared.Run(context.Background(), stream.NewWriter(&buf))

	assert.Equal(t, "Snap the jab back to your chin.", result.Text)
	assert.Equal(t, 2, videos.lastQuery.Limit)
	assert.Equal(t, "jab", videos.lastQuery.Subtopic)

	acc, err := stream.Consume(bytes.NewReader(buf.Bytes()), nil)
	require.NoError(t, err)
	require.NotNil(t, acc.Reconciled)
	require.Len(t, acc.Reconciled.VideoRecommendations, 1)
	rec := acc.Reconciled.VideoRecommendations[0]
	assert.Equal(t, "jabjabjab01", rec.VideoID)
	assert.Equal(t, "Relevant video for jab", rec.Reason)

	system := client.requests[0].Messages[0].Content
	assert.Contains(t, system, "- Technique: Jab")
	require.Len(t, client.requests[0].Tools, 1)

	select {
	case task := <-published:
		assert.NotEmpty(t, task.LeadID)
		assert.Equal(t, model.TopicTechnique, task.Context.Category)
	case <-time.After(2 * time.Second):
		t.Fatal("lead was not published")
	}
}

func TestCoachService_LeadMagnetPrompt(t *testing.T) {
	client := &fakeLLM{streams: []*scriptedStream{{events: textEvents("ok")}}}
	svc := NewCoachService(client, &fakeVideoService{}, nil, 0)

	prepared, err := svc.Open(context.Background(), CoachRequest{Messages: []UIMessage{userMessage("hi")}, IsLeadMagnet: true})
	require.NoError(t, err)
	prepared.Close()

	assert.Equal(t, leadMagnetSystemPrompt, client.requests[0].Messages[0].Content)
}

func TestCoachService_RequiresMessages(t *testing.T) {
	svc := NewCoachService(&fakeLLM{}, &fakeVideoService{}, nil, 3)

	_, err := svc.Open(context.Background(), CoachRequest{})

	assert.ErrorIs(t, err, ErrMessagesRequired)
}

func TestSearchVideoLibrary_ErrorBecomesToolOutput(t *testing.T) {
	svc := &coachService{videos: &fakeVideoService{err: errors.New("db down")}}

	out, err := svc.searchVideoLibrary(context.Background(), `{"category":"Mindset"}`)
	require.NoError(t, err)

	var sel stream.VideoSelections
	require.NoError(t, json.Unmarshal(out, &sel))
	assert.Equal(t, stream.VideoSelectionsType, sel.Type)
	assert.Equal(t, "Failed to search videos", sel.Error)
	assert.Empty(t, sel.Videos)
}

func TestSearchVideoLibrary_DefaultsAndReason(t *testing.T) {
	videos := &fakeVideoService{videos: []model.VideoRecord{{VideoID: "aaaaaaaaaa1", VideoTitle: "Calm"}}}
	svc := &coachService{videos: videos}

	out, err := svc.searchVideoLibrary(context.Background(), "not json")
	require.NoError(t, err)

	var sel stream.VideoSelections
	require.NoError(t, json.Unmarshal(out, &sel))
	assert.Equal(t, defaultToolVideoLimit, videos.lastQuery.Limit)
	require.Len(t, sel.Videos, 1)
	assert.Equal(t, "Relevant video for boxing technique", sel.Videos[0].Reason)
}

func TestBuildCoachingPrompt(t *testing.T) {
	prompt := buildCoachingPrompt(&model.CoachingContext{
		Category: model.TopicTactics,
		FormData: model.CoachingFormData{
			TacticalScenario: "Fighting a taller opponent",
			Technique:        "ignored for tactics",
			Equipment:        []string{"gloves", "pads"},
		},
		UserProfile: &model.CoachingProfile{Stance: "orthodox"},
	})

	assert.Contains(t, prompt, "- Experience Level: Not specified")
	assert.Contains(t, prompt, "- Stance: orthodox")
	assert.Contains(t, prompt, "- Category: Tactics")
	assert.Contains(t, prompt, "- Tactical Scenario: Fighting a taller opponent")
	assert.Contains(t, prompt, "- Equipment: gloves, pads")
	assert.False(t, strings.Contains(prompt, "ignored for tactics"))

	assert.NotContains(t, buildCoachingPrompt(nil), "COACHING REQUEST DETAILS")
}
