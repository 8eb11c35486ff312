package voice

import (
	"fmt"
	"strings"
	"time"
)

// PlanToolName is the function the remote voice model calls to produce a coaching plan.
const PlanToolName = "generate_coaching_plan"

// PlanRequest holds the arguments of a plan tool call plus session details.
type PlanRequest struct {
	Title      string
	Summary    string
	KeyPoints  []string
	NextSteps  string
	Transcript string
	Duration   time.Duration
}

// PlanArtifact is a stored plan the user can download.
type PlanArtifact struct {
	Title string
	URL   string
}

var defaultKeyPoints = []string{"Keep your guard up", "Work on footwork", "Stay relaxed"}

// planRequestFromArgs reads tool call arguments, filling the same defaults the voice coach UI used.
func planRequestFromArgs(args map[string]any) PlanRequest {
	req := PlanRequest{
		Title:     stringArg(args, "planTitle"),
		Summary:   stringArg(args, "summary"),
		NextSteps: stringArg(args, "nextSteps"),
	}
	if raw, ok := args["keyPoints"].([]any); ok {
		for _, p := range raw {
			if s, ok := p.(string); ok && strings.TrimSpace(s) != "" {
				req.KeyPoints = append(req.KeyPoints, s)
			}
		}
	}
	if req.Title == "" {
		req.Title = "Your Boxing Coaching Plan"
	}
	if req.Summary == "" {
		req.Summary = "Personalised boxing coaching session"
	}
	if len(req.KeyPoints) == 0 {
		req.KeyPoints = append([]string(nil), defaultKeyPoints...)
	}
	return req
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

// RenderPlanMarkdown renders a plan as a Markdown document.
func RenderPlanMarkdown(req PlanRequest, generatedAt time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", req.Title)
	fmt.Fprintf(&b, "_The Boxing Locker voice coaching session, %s", generatedAt.Format("2 January 2006"))
	if req.Duration > 0 {
		fmt.Fprintf(&b, ", %d mins", int(req.Duration.Round(time.Minute)/time.Minute))
	}
	b.WriteString("_\n\n")

	b.WriteString("## Summary\n\n")
	b.WriteString(req.Summary)
	b.WriteString("\n\n## Key Points\n\n")
	for i, p := range req.KeyPoints {
		fmt.Fprintf(&b, "%d. %s\n", i+1, p)
	}
	if req.NextSteps != "" {
		b.WriteString("\n## Next Steps\n\n")
		b.WriteString(req.NextSteps)
		b.WriteString("\n")
	}
	if req.Transcript != "" {
		b.WriteString("\n## Session Transcript\n\n")
		for _, line := range strings.Split(strings.TrimSpace(req.Transcript), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				fmt.Fprintf(&b, "> %s\n>\n", line)
			}
		}
	}
	return []byte(b.String())
}

// PlanFilename turns a plan title into a download file name.
func PlanFilename(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	name := strings.TrimSuffix(b.String(), "-")
	if name == "" {
		name = "coaching-plan"
	}
	return name + ".md"
}
