// Package reconcile splits an assistant turn into display prose and the structured
// affordances carried by a trailing ```json fenced block.
package reconcile

import (
	"encoding/json"
	"regexp"
	"strings"

	"boxing-locker-go/pkg/log"
)

// Action kinds a follow-up button can carry.
const (
	ActionExploreTopic = "explore_topic"
	ActionWatchVideo   = "watch_video"
	ActionTakeQuiz     = "take_quiz"
	ActionAskQuestion  = "ask_question"
)

// MaxActions caps the follow-up buttons surfaced for one message.
const MaxActions = 4

// The first block wins; the lazy body stops at the first closing fence.
var fencePattern = regexp.MustCompile("```json\\s*([\\s\\S]*?)\\s*```")

// Action is a follow-up button.
type Action struct {
	Label   string `json:"label"`
	Action  string `json:"action"`
	Value   string `json:"value"`
	VideoID string `json:"video_id,omitempty"`
}

// QuizOption is one answer of an inline quiz.
type QuizOption struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

// Quiz is an inline multiple choice question.
type Quiz struct {
	Question    string       `json:"question"`
	Options     []QuizOption `json:"options"`
	Explanation string       `json:"explanation"`
}

// VideoRecommendation is a concrete video suggested for a message.
type VideoRecommendation struct {
	VideoID string `json:"video_id"`
	Title   string `json:"title"`
	Reason  string `json:"reason,omitempty"`
}

// Parsed is the reconciled form of one assistant turn.
type Parsed struct {
	CleanText            string                `json:"cleanText"`
	Actions              []Action              `json:"actions"`
	Videos               []string              `json:"videos"`
	Quiz                 *Quiz                 `json:"quiz,omitempty"`
	Response             string                `json:"response,omitempty"`
	VideoRecommendations []VideoRecommendation `json:"video_recommendations,omitempty"`
	HasBlock             bool                  `json:"-"`
}

func empty(raw string) Parsed {
	return Parsed{CleanText: raw, Actions: []Action{}, Videos: []string{}}
}

// Reconcile converts the full text-so-far of an assistant turn into a Parsed value.
// It is pure: the same input always yields the same output. An absent, incomplete or
// malformed block leaves the text untouched and every structured field empty.
func Reconcile(raw string) Parsed {
	loc := fencePattern.FindStringSubmatchIndex(raw)
	if loc == nil {
		return empty(raw)
	}
	body := raw[loc[2]:loc[3]]

	var decoded interface{}
	if err := json.Unmarshal([]byte(body), &decoded); err != nil {
		log.Debugf("[Reconcile] fenced json block did not parse: %v", err)
		return empty(raw)
	}

	p := empty(strings.TrimSpace(raw[:loc[0]] + raw[loc[1]:]))
	p.HasBlock = true

	obj, ok := decoded.(map[string]interface{})
	if !ok {
		return p
	}
	p.Actions = parseActions(obj["actions"])
	p.Videos = parseVideoTerms(obj["videos"])
	p.Quiz = parseQuiz(obj["quiz"])
	if s, ok := obj["response"].(string); ok {
		p.Response = s
	}
	p.VideoRecommendations = parseRecommendations(obj["video_recommendations"])
	return p
}

// NormalizeActionKind maps unknown kinds to explore_topic.
func NormalizeActionKind(kind string) string {
	switch kind {
	case ActionExploreTopic, ActionWatchVideo, ActionTakeQuiz, ActionAskQuestion:
		return kind
	default:
		return ActionExploreTopic
	}
}

func parseActions(v interface{}) []Action {
	items, ok := v.([]interface{})
	if !ok {
		return []Action{}
	}
	actions := make([]Action, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		label := str(m["label"])
		kind := str(m["type"])
		if kind == "" {
			kind = str(m["action"])
		}
		value := str(m["query"])
		if value == "" {
			value = str(m["value"])
		}
		if value == "" {
			value = label
		}
		actions = append(actions, Action{
			Label:   label,
			Action:  NormalizeActionKind(kind),
			Value:   value,
			VideoID: str(m["video_id"]),
		})
		if len(actions) == MaxActions {
			break
		}
	}
	return actions
}

func parseVideoTerms(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return []string{}
	}
	terms := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			terms = append(terms, s)
		}
	}
	return terms
}

func parseQuiz(v interface{}) *Quiz {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	q := &Quiz{Question: str(m["question"]), Explanation: str(m["explanation"]), Options: []QuizOption{}}
	if q.Question == "" {
		return nil
	}
	if opts, ok := m["options"].([]interface{}); ok {
		for _, o := range opts {
			om, ok := o.(map[string]interface{})
			if !ok {
				continue
			}
			id := str(om["id"])
			if id == "" {
				id = "A"
			}
			correct, _ := om["is_correct"].(bool)
			q.Options = append(q.Options, QuizOption{ID: id, Text: str(om["text"]), IsCorrect: correct})
		}
	}
	return q
}

func parseRecommendations(v interface{}) []VideoRecommendation {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	var recs []VideoRecommendation
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		id := str(m["video_id"])
		if id == "" {
			continue
		}
		recs = append(recs, VideoRecommendation{VideoID: id, Title: str(m["title"]), Reason: str(m["reason"])})
	}
	return recs
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

// WithFallbackVideos fills VideoRecommendations from tool output when the block carried none.
func (p Parsed) WithFallbackVideos(fallback []VideoRecommendation) Parsed {
	if len(p.VideoRecommendations) == 0 && len(fallback) > 0 {
		p.VideoRecommendations = append([]VideoRecommendation(nil), fallback...)
	}
	return p
}
