package mission

import (
	"context"
	"fmt"
	"strings"

	"bytemomo/narwhal/internal/domain"
	"bytemomo/narwhal/internal/flag"
	"bytemomo/narwhal/internal/schema"

	"github.com/sirupsen/logrus"
)

const routerPrompt = `You are the router. Decide where the mission goes next:
"recon" to gather more information, "scout" to keep exploiting, or "end" when the flag has been captured.
When choosing "end" put the exact flag in insight. Reply with JSON only.`

// LLMRouter asks the reasoning collaborator for the decision. A payload that
// does not match the redirection schema fails the mission.
type LLMRouter struct {
	Reasoner domain.Reasoner
	Log      *logrus.Entry
}

func (r *LLMRouter) Route(ctx context.Context, state *domain.MissionState) (Decision, error) {
	transcript := append(append([]domain.Message(nil), state.Transcript...), domain.Message{
		Role:    domain.RoleUser,
		Content: routingSummary(state),
	})
	resp, err := r.Reasoner.Invoke(ctx, domain.ReasoningRequest{
		Role:       "router",
		System:     routerPrompt,
		Transcript: transcript,
		Schema:     schema.Redirection,
	})
	if err != nil {
		return Decision{}, fmt.Errorf("router reasoning: %w", err)
	}

	var p schema.RedirectionPayload
	if err := schema.Decode(schema.Redirection, resp, &p); err != nil {
		return Decision{}, err
	}
	return Decision{Dst: p.Dst, Insight: p.Insight}, nil
}

func routingSummary(state *domain.MissionState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Objective: %s\n", state.Objective)
	fmt.Fprintf(&b, "Findings so far: %d\n", len(state.Findings))
	n := len(state.Findings)
	for _, f := range state.Findings[max(0, n-5):] {
		fmt.Fprintf(&b, "- [%s/%s] %s\n", f.Type, f.Severity, truncate(f.Description, 300))
	}
	if k := len(state.Redirections); k > 0 {
		b.WriteString("Previous decisions:\n")
		for _, r := range state.Redirections[max(0, k-3):] {
			fmt.Fprintf(&b, "- %s: %s\n", r.Dst, truncate(r.Insight, 160))
		}
	}
	return b.String()
}

// FindingsRouter decides from the latest exploitation findings without a
// reasoning call. Flags the gate already rejected are not proposed again.
type FindingsRouter struct {
	Detector *flag.Detector
	// Window is how many recent scout findings are inspected.
	// Default: 5
	Window int
}

func (r *FindingsRouter) Route(_ context.Context, state *domain.MissionState) (Decision, error) {
	var scout []domain.Finding
	for _, f := range state.Findings {
		if strings.HasPrefix(f.Type, "scout_") {
			scout = append(scout, f)
		}
	}
	if len(scout) == 0 {
		return Decision{Dst: string(domain.NodeRecon), Insight: "No exploitation findings yet, gather more information about the target"}, nil
	}

	window := r.Window
	if window <= 0 {
		window = 5
	}
	recent := scout[max(0, len(scout)-window):]

	rejected := rejectedFlags(state)
	for i := len(recent) - 1; i >= 0; i-- {
		for _, v := range flag.StrictAll(findingText(recent[i])) {
			if !rejected[v] {
				return Decision{Dst: string(domain.NodeEnd), Insight: v}, nil
			}
		}
	}
	for _, f := range recent {
		if f.Severity == domain.LevelHigh {
			return Decision{Dst: string(domain.NodeRecon), Insight: "High severity finding needs deeper reconnaissance: " + truncate(f.Description, 200)}, nil
		}
	}
	return Decision{Dst: string(domain.NodeScout), Insight: "Continue exploitation from the latest findings"}, nil
}

func rejectedFlags(state *domain.MissionState) map[string]bool {
	out := map[string]bool{}
	for _, r := range state.Redirections {
		if r.Dst != domain.NodeScout || !strings.HasPrefix(r.Insight, rejectedPrefix) {
			continue
		}
		for _, v := range flag.StrictAll(r.Insight) {
			out[v] = true
		}
	}
	return out
}

func findingText(f domain.Finding) string {
	if full, ok := f.Metadata["full_output"].(string); ok {
		return f.Description + "\n" + full
	}
	return f.Description
}
