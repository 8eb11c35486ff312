// Package main 是一个命令行冒烟测试客户端：向运行中的服务发送聊天或教练请求，并打印解析后的流。
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"boxing-locker-go/internal/model"
	"boxing-locker-go/internal/service"
	"boxing-locker-go/pkg/log"
	"boxing-locker-go/pkg/stream"
)

func main() {
	baseURL := flag.String("base", "http://localhost:8080", "server base url")
	mode := flag.String("mode", "chat", "chat | coach | lead-magnet")
	message := flag.String("message", "How do I throw a proper jab?", "user message")
	sessionID := flag.String("session", "", "chat session id (default: random test- id)")
	category := flag.String("category", model.TopicTechnique, "coaching category for coach mode")
	cleanup := flag.Bool("cleanup", true, "delete the test session afterwards (chat mode)")
	verbose := flag.Bool("v", false, "log every frame")
	flag.Parse()

	log.Init("info", "console", "")
	defer log.Sync()

	client := &http.Client{Timeout: 2 * time.Minute}
	msgs := []service.UIMessage{{
		ID:    "msg-" + uuid.NewString(),
		Role:  model.RoleUser,
		Parts: []service.UIMessagePart{{Type: "text", Text: *message}},
	}}

	var path string
	var body interface{}
	switch *mode {
	case "chat":
		if *sessionID == "" {
			*sessionID = fmt.Sprintf("test-%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
		}
		path = "/api/chat"
		body = service.ChatRequest{SessionID: *sessionID, Messages: msgs}
	case "coach", "lead-magnet":
		path = "/api/coach"
		body = service.CoachRequest{
			Messages:     msgs,
			IsLeadMagnet: *mode == "lead-magnet",
			Context: &model.CoachingContext{
				Category:    *category,
				FormData:    model.CoachingFormData{Category: *category, Question: *message},
				UserProfile: &model.CoachingProfile{Experience: "beginner", Stance: "orthodox"},
			},
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", *mode)
		os.Exit(2)
	}

	start := time.Now()
	acc, err := send(client, *baseURL+path, body, *verbose)
	if err != nil {
		log.Fatalf("[Smoketest] request failed: %v", err)
	}
	report(acc, time.Since(start))

	if *mode == "chat" {
		if err := checkHistory(client, *baseURL, *sessionID); err != nil {
			log.Errorf("[Smoketest] history check failed: %v", err)
		}
		if *cleanup {
			if err := deleteSession(client, *baseURL, *sessionID); err != nil {
				log.Errorf("[Smoketest] cleanup failed: %v", err)
			}
		}
	}
	if acc.ErrorText != "" || !acc.Finished {
		os.Exit(1)
	}
}

func send(client *http.Client, url string, body interface{}, verbose bool) (*stream.Accumulator, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("status %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}

	return stream.Consume(resp.Body, func(c stream.Chunk, acc *stream.Accumulator) {
		if verbose {
			log.Infof("[Smoketest] frame %s (%d chars so far)", c.Type, len(acc.Text()))
		}
	})
}

func report(acc *stream.Accumulator, elapsed time.Duration) {
	parsed := acc.Reconcile()
	if acc.Reconciled != nil {
		parsed = acc.Reconciled.WithFallbackVideos(parsed.VideoRecommendations)
	}

	fmt.Printf("--- response (%s) ---\n%s\n\n", elapsed.Round(time.Millisecond), parsed.CleanText)
	if len(acc.ToolNames) > 0 {
		fmt.Printf("tools: %s\n", strings.Join(acc.ToolNames, ", "))
	}
	for _, a := range parsed.Actions {
		fmt.Printf("action: [%s] %s -> %s\n", a.Action, a.Label, a.Value)
	}
	for _, v := range parsed.Videos {
		fmt.Printf("video term: %s\n", v)
	}
	for _, v := range parsed.VideoRecommendations {
		fmt.Printf("video: %s %q (%s)\n", v.VideoID, v.Title, v.Reason)
	}
	if parsed.Quiz != nil {
		fmt.Printf("quiz: %s\n", parsed.Quiz.Question)
	}
	if acc.ErrorText != "" {
		fmt.Printf("error: %s\n", acc.ErrorText)
	}
	fmt.Printf("finished: %t, structured block: %t\n", acc.Finished, parsed.HasBlock)
}

func checkHistory(client *http.Client, baseURL, sessionID string) error {
	resp, err := client.Get(baseURL + "/api/chat?sessionId=" + sessionID)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	var out struct {
		Messages []json.RawMessage `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return err
	}
	fmt.Printf("history: %d messages stored for %s\n", len(out.Messages), sessionID)
	if len(out.Messages) != 2 {
		return fmt.Errorf("expected 2 stored messages, got %d", len(out.Messages))
	}
	return nil
}

func deleteSession(client *http.Client, baseURL, sessionID string) error {
	req, err := http.NewRequest(http.MethodDelete, baseURL+"/api/chat?sessionId="+sessionID, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("delete returned %s", resp.Status)
	}
	return nil
}
