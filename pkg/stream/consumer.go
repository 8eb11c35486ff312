package stream

import (
	"encoding/json"
	"io"
	"strings"

	"boxing-locker-go/pkg/log"
	"boxing-locker-go/pkg/reconcile"
)

// Accumulator folds the chunks of one stream into display state.
// Text fragments are appended verbatim in arrival order.
type Accumulator struct {
	text       strings.Builder
	ToolNames  []string
	ToolVideos []ToolVideo
	Reconciled *reconcile.Parsed
	ErrorText  string
	Finished   bool
}

// Text returns the accumulated assistant text.
func (a *Accumulator) Text() string {
	return a.text.String()
}

// Apply folds one chunk into the accumulator.
func (a *Accumulator) Apply(c Chunk) {
	switch c.Type {
	case TypeTextDelta:
		if c.Delta != "" {
			a.text.WriteString(c.Delta)
		} else {
			a.text.WriteString(c.TextDelta)
		}
	case TypeText:
		a.text.WriteString(c.Text)
	case TypeToolInputStart:
		a.ToolNames = append(a.ToolNames, c.ToolName)
	case TypeToolOutputAvail:
		var sel VideoSelections
		if err := json.Unmarshal(c.Output, &sel); err != nil {
			log.Debugf("[Consumer] ignoring tool output that is not a video selection: %v", err)
			return
		}
		if sel.Type == VideoSelectionsType {
			a.ToolVideos = append(a.ToolVideos, sel.Videos...)
		}
	case TypeReconciled:
		var p reconcile.Parsed
		if err := json.Unmarshal(c.Data, &p); err == nil {
			a.Reconciled = &p
		}
	case TypeError:
		a.ErrorText = c.ErrorText
	case TypeFinish:
		a.Finished = true
	}
}

// Reconcile parses the accumulated text, using tool output as the video fallback.
func (a *Accumulator) Reconcile() reconcile.Parsed {
	fallback := make([]reconcile.VideoRecommendation, 0, len(a.ToolVideos))
	for _, v := range a.ToolVideos {
		fallback = append(fallback, reconcile.VideoRecommendation{VideoID: v.VideoID, Title: v.Title, Reason: v.Reason})
	}
	return reconcile.Reconcile(a.Text()).WithFallbackVideos(fallback)
}

// Consume reads a relay stream until the [DONE] sentinel or EOF. onChunk, if set, is
// called after every applied chunk so callers can re-render incrementally.
func Consume(r io.Reader, onChunk func(c Chunk, acc *Accumulator)) (*Accumulator, error) {
	acc := &Accumulator{}
	err := ReadLines(r, func(line string) error {
		payload, ok := DataPayload(line)
		if !ok {
			return nil
		}
		if strings.TrimSpace(payload) == DoneSentinel {
			return ErrStop
		}
		var c Chunk
		if err := json.Unmarshal([]byte(payload), &c); err != nil {
			log.Debugf("[Consumer] skipping undecodable frame: %v", err)
			return nil
		}
		acc.Apply(c)
		if onChunk != nil {
			onChunk(c, acc)
		}
		return nil
	})
	return acc, err
}
