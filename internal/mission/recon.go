package mission

import (
	"context"
	"fmt"

	"bytemomo/narwhal/internal/domain"
	"bytemomo/narwhal/internal/memory"
	"bytemomo/narwhal/internal/schema"

	"github.com/sirupsen/logrus"
)

// Enricher inspects known targets before the reasoning call, for example
// with a port scan or a reverse DNS lookup.
type Enricher interface {
	Name() string
	Enrich(ctx context.Context, targets []domain.Target) ([]domain.Target, []domain.Finding, error)
}

const reconPrompt = `You are the reconnaissance agent. Summarize what is known about the targets,
list every reachable service as a target and record notable observations as findings.
Reply with JSON only.`

type ReconPhase struct {
	Reasoner  domain.Reasoner
	Enrichers []Enricher
	Store     *memory.Store
	Log       *logrus.Entry
}

func (p *ReconPhase) Run(ctx context.Context, state *domain.MissionState) error {
	l := p.logger().WithField("mission", state.ID)

	for _, e := range p.Enrichers {
		targets, findings, err := e.Enrich(ctx, state.Targets)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.WithError(err).WithField("enricher", e.Name()).Warn("Recon enricher failed")
			continue
		}
		state.AddTargets(targets...)
		state.AddFindings(findings...)
		l.WithFields(logrus.Fields{
			"enricher": e.Name(),
			"targets":  len(targets),
			"findings": len(findings),
		}).Info("Recon enricher complete")
	}

	transcript := append(append([]domain.Message(nil), state.Transcript...), domain.Message{
		Role:    domain.RoleUser,
		Content: "Perform reconnaissance.\n\n" + contextFor(state, nil).Summary(),
	})
	resp, err := p.Reasoner.Invoke(ctx, domain.ReasoningRequest{
		Role:       "recon",
		System:     reconPrompt,
		Transcript: transcript,
		Schema:     schema.Recon,
	})
	if err != nil {
		return fmt.Errorf("recon reasoning: %w", err)
	}

	var payload schema.ReconPayload
	if err := schema.Decode(schema.Recon, resp, &payload); err != nil {
		l.WithError(err).Warn("Recon report not structured, keeping raw text")
		payload = schema.ReconPayload{Report: resp.Text}
	}
	payload.Normalize()

	state.AddTargets(payload.Targets...)
	state.AddFindings(payload.Findings...)
	state.ReconReport = payload.Report
	state.AppendMessage(domain.RoleAssistant, "Recon completed: "+truncate(payload.Report, 500))

	if payload.Report != "" {
		if _, err := p.Store.AppendEntry(ctx, state, domain.MemoryFinding, payload.Report, map[string]any{
			"phase":   "recon",
			"targets": len(state.Targets),
		}); err != nil {
			l.WithError(err).Warn("Failed to persist recon report")
		}
	}

	l.WithFields(logrus.Fields{
		"targets":  len(state.Targets),
		"findings": len(payload.Findings),
	}).Info("Recon complete")
	return nil
}

func (p *ReconPhase) logger() *logrus.Entry {
	if p.Log == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return p.Log
}
