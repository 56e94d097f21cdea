package mission

import (
	"context"
	"fmt"
	"strings"

	"bytemomo/narwhal/internal/dag"
	"bytemomo/narwhal/internal/domain"
	"bytemomo/narwhal/internal/memory"
	"bytemomo/narwhal/internal/schema"

	"github.com/sirupsen/logrus"
)

const (
	strategistPrompt = `You are the strategist. Given the mission context, state the single most promising
objective for the next exploitation cycle in one or two sentences.`

	plannerPrompt = `You are the planner. Update the multi-phase operational plan for the objective and
record anything worth remembering as memory entries. Reply with JSON only.`
)

// ScoutPhase runs one exploitation cycle: strategist, planner, then the
// task graph scheduler.
type ScoutPhase struct {
	Reasoner  domain.Reasoner
	Scheduler *dag.Scheduler
	Store     *memory.Store
	Log       *logrus.Entry
}

func (p *ScoutPhase) Run(ctx context.Context, state *domain.MissionState) error {
	l := p.logger().WithField("mission", state.ID)

	if _, err := p.Store.LoadPlan(ctx, state); err != nil {
		l.WithError(err).Warn("Failed to load stored plan")
	}
	memories, err := p.Store.ListEntries(ctx, state)
	if err != nil {
		l.WithError(err).Warn("Failed to list memory entries")
	}

	objective, err := p.strategize(ctx, state, memories)
	if err != nil {
		return err
	}
	state.Objective = objective
	l.WithField("objective", truncate(objective, 160)).Info("Strategist set objective")

	p.plan(ctx, l, state, objective)

	if refreshed, err := p.Store.ListEntries(ctx, state); err == nil {
		memories = refreshed
	}
	run, err := p.Scheduler.BuildAndRun(ctx, objective, contextFor(state, memories))
	state.AddFindings(run.Findings...)
	graph := run.Graph
	state.DAG = &graph
	if err != nil {
		return err
	}

	state.AppendMessage(domain.RoleAssistant, "Scout completed: "+objective)

	summary := fmt.Sprintf("Cycle for %q produced %d findings (%s order, fallback graph: %t)",
		objective, len(run.Findings), run.Ordering, run.FallbackGraph)
	if _, err := p.Store.AppendEntry(ctx, state, domain.MemoryReflection, summary, map[string]any{
		"objective": objective,
		"findings":  len(run.Findings),
		"order":     run.Order,
	}); err != nil {
		l.WithError(err).Warn("Failed to persist scout reflection")
	}
	return nil
}

func (p *ScoutPhase) strategize(ctx context.Context, state *domain.MissionState, memories []domain.MemoryEntry) (string, error) {
	transcript := append(append([]domain.Message(nil), state.Transcript...), domain.Message{
		Role:    domain.RoleUser,
		Content: "Choose the next objective.\n\n" + contextFor(state, memories).Summary(),
	})
	resp, err := p.Reasoner.Invoke(ctx, domain.ReasoningRequest{
		Role:       "strategist",
		System:     strategistPrompt,
		Transcript: transcript,
	})
	if err != nil {
		return "", fmt.Errorf("strategist: %w", err)
	}

	objective := strings.TrimSpace(resp.Text)
	if objective == "" {
		objective = "Find and capture the flag"
		if t, ok := state.PrimaryTarget(); ok {
			objective += " on " + t.Label()
		}
	}
	return objective, nil
}

// plan never fails the cycle: planner errors keep the previous plan.
func (p *ScoutPhase) plan(ctx context.Context, l *logrus.Entry, state *domain.MissionState, objective string) {
	transcript := []domain.Message{{
		Role:    domain.RoleUser,
		Content: "Objective: " + objective + "\n\n" + contextFor(state, nil).Summary(),
	}}
	resp, err := p.Reasoner.Invoke(ctx, domain.ReasoningRequest{
		Role:       "planner",
		System:     plannerPrompt,
		Transcript: transcript,
		Schema:     schema.PlanBundle,
	})
	if err != nil {
		l.WithError(err).Warn("Planner failed, keeping previous plan")
		return
	}

	var bundle schema.PlanPayload
	if err := schema.Decode(schema.PlanBundle, resp, &bundle); err != nil {
		l.WithError(err).Warn("Planner returned an invalid plan, keeping previous plan")
		return
	}

	if err := p.Store.SavePlan(ctx, state, bundle.Plan); err != nil {
		l.WithError(err).Warn("Failed to persist plan")
	}
	for _, note := range bundle.Memory {
		if _, err := p.Store.AppendEntry(ctx, state, note.Category, note.Content, note.Metadata); err != nil {
			l.WithError(err).Warn("Failed to persist planner memory")
		}
	}

	l.WithFields(logrus.Fields{
		"phase":  fmt.Sprintf("%d/%d", bundle.Plan.CurrentPhase, bundle.Plan.TotalPhases),
		"memory": len(bundle.Memory),
	}).Info("Plan updated")
}

func (p *ScoutPhase) logger() *logrus.Entry {
	if p.Log == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return p.Log
}
