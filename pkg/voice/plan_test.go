package voice

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPlanRequestFromArgs_Defaults(t *testing.T) {
	req := planRequestFromArgs(map[string]any{"keyPoints": []any{" ", 3}})

	assert.Equal(t, "Your Boxing Coaching Plan", req.Title)
	assert.Equal(t, "Personalised boxing coaching session", req.Summary)
	assert.Equal(t, []string{"Keep your guard up", "Work on footwork", "Stay relaxed"}, req.KeyPoints)
	assert.Empty(t, req.NextSteps)
}

func TestRenderPlanMarkdown(t *testing.T) {
	req := planRequestFromArgs(map[string]any{
		"planTitle": "Southpaw Jab Plan",
		"summary":   "Work the lead hand.",
		"keyPoints": []any{"Step outside the lead foot", "Double the jab"},
		"nextSteps": "Three rounds of shadow boxing daily.",
	})
	req.Transcript = "\n\nFreya: Keep that right hand busy."
	req.Duration = 12 * time.Minute

	md := string(RenderPlanMarkdown(req, time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)))

	assert.True(t, strings.HasPrefix(md, "# Southpaw Jab Plan\n"))
	assert.Contains(t, md, "4 March 2026, 12 mins")
	assert.Contains(t, md, "## Summary\n\nWork the lead hand.")
	assert.Contains(t, md, "1. Step outside the lead foot\n2. Double the jab\n")
	assert.Contains(t, md, "## Next Steps\n\nThree rounds of shadow boxing daily.")
	assert.Contains(t, md, "> Freya: Keep that right hand busy.")
}

func TestPlanFilename(t *testing.T) {
	cases := map[string]string{
		"Southpaw Jab Plan":     "southpaw-jab-plan.md",
		"  Defence: 101!  ":     "defence-101.md",
		"":                      "coaching-plan.md",
		"!!!":                   "coaching-plan.md",
		"Hooks & Uppercuts 2.0": "hooks-uppercuts-2-0.md",
	}
	for title, want := range cases {
		assert.Equal(t, want, PlanFilename(title), title)
	}
}
