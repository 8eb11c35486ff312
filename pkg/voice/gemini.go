package voice

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiConfig configures a Gemini Live session.
type GeminiConfig struct {
	APIKey            string
	APIVersion        string
	Model             string
	VoiceName         string
	SystemInstruction string
}

// PlanToolDeclaration describes the plan tool to the remote model.
func PlanToolDeclaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        PlanToolName,
		Description: "Generate a personalised boxing coaching plan based on the conversation. Call this when the user asks for their plan, wants a summary, or the coaching session is wrapping up.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"planTitle": {Type: genai.TypeString, Description: "A catchy title for the coaching plan"},
				"summary":   {Type: genai.TypeString, Description: "A brief summary of the coaching advice given"},
				"keyPoints": {
					Type:        genai.TypeArray,
					Items:       &genai.Schema{Type: genai.TypeString},
					Description: "List of 3-5 key takeaways from the session",
				},
				"nextSteps": {Type: genai.TypeString, Description: "Recommended next steps for the boxer"},
			},
			Required: []string{"planTitle", "summary", "keyPoints", "nextSteps"},
		},
	}
}

// ConnectGemini opens a Gemini Live session that answers with audio only.
func ConnectGemini(ctx context.Context, cfg GeminiConfig) (LiveSession, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{APIVersion: cfg.APIVersion},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	connectCfg := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SystemInstruction:  &genai.Content{Parts: []*genai.Part{{Text: cfg.SystemInstruction}}},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.VoiceName},
			},
		},
		Tools:                    []*genai.Tool{{FunctionDeclarations: []*genai.FunctionDeclaration{PlanToolDeclaration()}}},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}
	session, err := client.Live.Connect(ctx, cfg.Model, connectCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect live session: %w", err)
	}
	return &geminiSession{session: session}, nil
}

type geminiSession struct {
	session *genai.Session
}

func (g *geminiSession) SendAudio(pcm []byte, mimeType string) error {
	return g.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: pcm, MIMEType: mimeType},
	})
}

func (g *geminiSession) SendAudioStreamEnd() error {
	return g.session.SendRealtimeInput(genai.LiveRealtimeInput{AudioStreamEnd: true})
}

func (g *geminiSession) SendToolResponse(responses []ToolResponse) error {
	frs := make([]*genai.FunctionResponse, 0, len(responses))
	for _, r := range responses {
		frs = append(frs, &genai.FunctionResponse{ID: r.ID, Name: r.Name, Response: r.Response})
	}
	return g.session.SendToolResponse(genai.LiveToolResponseInput{FunctionResponses: frs})
}

func (g *geminiSession) Receive() (*ServerEvent, error) {
	msg, err := g.session.Receive()
	if err != nil {
		return nil, err
	}
	return eventFromMessage(msg), nil
}

func (g *geminiSession) Close() error {
	return g.session.Close()
}

// eventFromMessage flattens a Live server message into a ServerEvent.
func eventFromMessage(msg *genai.LiveServerMessage) *ServerEvent {
	ev := &ServerEvent{}
	if msg == nil {
		return ev
	}
	if tc := msg.ToolCall; tc != nil {
		for _, fc := range tc.FunctionCalls {
			if fc == nil {
				continue
			}
			ev.ToolCalls = append(ev.ToolCalls, ToolCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
		}
	}
	sc := msg.ServerContent
	if sc == nil {
		return ev
	}
	ev.Interrupted = sc.Interrupted
	ev.TurnComplete = sc.TurnComplete
	if sc.OutputTranscription != nil {
		ev.Transcript = sc.OutputTranscription.Text
	}
	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part == nil {
				continue
			}
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				ev.Audio = append(ev.Audio, part.InlineData.Data)
			}
			if part.Text != "" && !part.Thought {
				ev.Text = append(ev.Text, part.Text)
			}
		}
	}
	return ev
}
