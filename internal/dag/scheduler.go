package dag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bytemomo/narwhal/internal/domain"
	"bytemomo/narwhal/internal/flag"
	"bytemomo/narwhal/internal/schema"

	"github.com/sirupsen/logrus"
)

type Ordering string

const (
	OrderTopological Ordering = "topological"
	OrderDeclaration Ordering = "declaration"
)

// MissionContext is the slice of mission state handed to the tactician and
// to every task.
type MissionContext struct {
	MissionID   string
	Code        string
	Targets     []domain.Target
	ReconReport string
	Plan        *domain.Plan
	Findings    []domain.Finding
	Memory      []domain.MemoryEntry
}

// Summary renders the context as prompt text.
func (m MissionContext) Summary() string {
	var b strings.Builder
	if m.Code != "" {
		fmt.Fprintf(&b, "Challenge: %s\n", m.Code)
	}
	if len(m.Targets) > 0 {
		b.WriteString("Targets:\n")
		for _, t := range m.Targets {
			fmt.Fprintf(&b, "- %s", t.Label())
			if t.Annotation != "" {
				fmt.Fprintf(&b, " (%s)", t.Annotation)
			}
			b.WriteString("\n")
		}
	}
	if m.ReconReport != "" {
		fmt.Fprintf(&b, "Recon report:\n%s\n", m.ReconReport)
	}
	if m.Plan != nil {
		fmt.Fprintf(&b, "Plan (phase %d/%d): %s\n", m.Plan.CurrentPhase, m.Plan.TotalPhases, m.Plan.Objective)
		for _, ph := range m.Plan.Phases {
			fmt.Fprintf(&b, "  %d. [%s] %s\n", ph.ID, ph.Status, ph.Title)
		}
	}
	if n := len(m.Findings); n > 0 {
		b.WriteString("Recent findings:\n")
		for _, f := range m.Findings[max(0, n-5):] {
			fmt.Fprintf(&b, "- [%s/%s] %s\n", f.Type, f.Severity, truncate(f.Description, 200))
		}
	}
	if n := len(m.Memory); n > 0 {
		b.WriteString("Memory:\n")
		for _, e := range m.Memory[max(0, n-10):] {
			fmt.Fprintf(&b, "- (%s) %s\n", e.Category, truncate(e.Content, 200))
		}
	}
	return b.String()
}

type TaskRequest struct {
	Task      domain.TaskNode
	Objective string
	Mission   MissionContext
	Graph     domain.TaskGraph
}

// TaskRunner executes one task and returns its raw output. Errors are turned
// into error findings by the scheduler.
type TaskRunner interface {
	RunTask(ctx context.Context, req TaskRequest) (string, error)
}

type Scheduler struct {
	Reasoner domain.Reasoner
	Runner   TaskRunner
	Detector *flag.Detector
	Log      *logrus.Entry

	// MinOutputLen discards outputs whose trimmed length does not exceed it.
	MinOutputLen int
	// DescriptionLimit bounds the output excerpt in a finding description.
	DescriptionLimit int
	// OutputLimit bounds the truncated output kept in finding metadata.
	OutputLimit int
}

type Run struct {
	Graph         domain.TaskGraph `json:"graph"`
	Order         []string         `json:"order"`
	Ordering      Ordering         `json:"ordering"`
	FallbackGraph bool             `json:"fallback_graph"`
	Warnings      []string         `json:"warnings,omitempty"`
	Findings      []domain.Finding `json:"findings"`
}

const tacticianPrompt = `You are the tactician. Break the objective into a small directed acyclic graph of concrete tasks.
Each node has a phase: enumerate, trigger, observe or compare. Use dependencies to order them.
Reply with JSON only.`

// BuildAndRun builds a task graph for objective, orders it and executes every
// task in order. Build failures fall back to a minimal graph and cycles fall
// back to declaration order; neither aborts the run. The only error returned
// is a context error, together with the findings collected so far.
func (s *Scheduler) BuildAndRun(ctx context.Context, objective string, mc MissionContext) (Run, error) {
	l := s.logger().WithFields(logrus.Fields{
		"mission":   mc.MissionID,
		"objective": truncate(objective, 120),
	})

	var run Run
	graph, warnings, err := s.Build(ctx, objective, mc)
	run.Warnings = warnings
	for _, w := range warnings {
		l.WithField("warning", w).Warn("Task graph normalized")
	}
	if err != nil {
		if ctx.Err() != nil {
			return run, ctx.Err()
		}
		l.WithError(err).Warn("Task graph build failed, using fallback graph")
		graph = Fallback(objective)
		run.FallbackGraph = true
	}
	run.Graph = graph

	order, err := Order(graph)
	run.Ordering = OrderTopological
	if err != nil {
		var cycle *domain.GraphCycleError
		if errors.As(err, &cycle) {
			l.WithField("nodes", cycle.Remaining).Warn("Task graph has a cycle, falling back to declaration order")
		}
		run.Ordering = OrderDeclaration
	}
	run.Order = order

	l.WithFields(logrus.Fields{
		"nodes":    len(graph.Nodes),
		"edges":    len(graph.Edges),
		"order":    order,
		"ordering": run.Ordering,
		"fallback": run.FallbackGraph,
	}).Info("Executing task graph")

	run.Findings, err = s.Execute(ctx, objective, mc, graph, order)
	return run, err
}

// Build asks the reasoning collaborator for a graph and normalizes it.
func (s *Scheduler) Build(ctx context.Context, objective string, mc MissionContext) (domain.TaskGraph, []string, error) {
	if s.Reasoner == nil {
		return domain.TaskGraph{}, nil, errors.New("no reasoner configured")
	}

	resp, err := s.Reasoner.Invoke(ctx, domain.ReasoningRequest{
		Role:   "tactician",
		System: tacticianPrompt,
		Transcript: []domain.Message{
			{Role: domain.RoleUser, Content: "Objective: " + objective + "\n\n" + mc.Summary()},
		},
		Schema: schema.TaskGraph,
	})
	if err != nil {
		return domain.TaskGraph{}, nil, fmt.Errorf("request task graph: %w", err)
	}

	var raw RawGraph
	if err := schema.Decode(schema.TaskGraph, resp, &raw); err != nil {
		return domain.TaskGraph{}, nil, err
	}

	graph, warnings := Normalize(raw)
	if len(graph.Nodes) == 0 {
		return domain.TaskGraph{}, warnings, &domain.SchemaValidationError{
			Schema: schema.TaskGraph,
			Err:    errors.New("no valid nodes"),
		}
	}
	return graph, warnings, nil
}

// Execute runs tasks strictly sequentially in the given order.
func (s *Scheduler) Execute(ctx context.Context, objective string, mc MissionContext, graph domain.TaskGraph, order []string) ([]domain.Finding, error) {
	var findings []domain.Finding

	for i, id := range order {
		if err := ctx.Err(); err != nil {
			return findings, err
		}
		node, ok := graph.Node(id)
		if !ok {
			continue
		}

		l := s.logger().WithFields(logrus.Fields{
			"mission": mc.MissionID,
			"task":    id,
			"phase":   node.Phase,
			"step":    fmt.Sprintf("%d/%d", i+1, len(order)),
		})
		l.Info("Running task")

		out, err := s.Runner.RunTask(ctx, TaskRequest{Task: node, Objective: objective, Mission: mc, Graph: graph})
		if err != nil {
			if ctx.Err() != nil {
				return findings, ctx.Err()
			}
			l.WithError(err).Warn("Task failed")
			findings = append(findings, errorFinding(node, objective, err))
			continue
		}

		trimmed := strings.TrimSpace(out)
		if len(trimmed) <= s.minOutputLen() {
			l.WithField("bytes", len(trimmed)).Debug("Task output below significance threshold, discarded")
			continue
		}

		f := s.synthesize(node, objective, graph, trimmed, out)
		l.WithFields(logrus.Fields{
			"severity": f.Severity,
			"bytes":    len(trimmed),
		}).Info("Task produced finding")
		findings = append(findings, f)
	}
	return findings, nil
}

func (s *Scheduler) synthesize(node domain.TaskNode, objective string, graph domain.TaskGraph, trimmed, full string) domain.Finding {
	severity := domain.LevelMedium
	meta := map[string]any{
		"task_id":     node.ID,
		"phase":       string(node.Phase),
		"objective":   objective,
		"output":      truncate(trimmed, s.outputLimit()),
		"full_output": full,
		"task_graph":  graph,
	}
	det := s.Detector
	if det == nil {
		det = flag.Default()
	}
	if det.Detect(trimmed) {
		severity = domain.LevelHigh
		meta["flags"] = det.Extract(trimmed)
	}

	return domain.Finding{
		Type:        "scout_" + string(node.Phase),
		Description: node.Description + ": " + truncate(trimmed, s.descriptionLimit()),
		Severity:    severity,
		Confidence:  domain.LevelHigh,
		Metadata:    meta,
	}
}

func errorFinding(node domain.TaskNode, objective string, err error) domain.Finding {
	kind := "execution"
	var te *domain.TimeoutError
	if errors.As(err, &te) {
		kind = "timeout"
	}
	return domain.Finding{
		Type:        "error",
		Description: fmt.Sprintf("%s failed: %v", node.Description, err),
		Severity:    domain.LevelLow,
		Confidence:  domain.LevelLow,
		Metadata: map[string]any{
			"task_id":    node.ID,
			"phase":      string(node.Phase),
			"objective":  objective,
			"error":      err.Error(),
			"error_kind": kind,
		},
	}
}

func (s *Scheduler) logger() *logrus.Entry {
	if s.Log == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return s.Log
}

func (s *Scheduler) minOutputLen() int {
	if s.MinOutputLen <= 0 {
		return 10
	}
	return s.MinOutputLen
}

func (s *Scheduler) descriptionLimit() int {
	if s.DescriptionLimit <= 0 {
		return 200
	}
	return s.DescriptionLimit
}

func (s *Scheduler) outputLimit() int {
	if s.OutputLimit <= 0 {
		return 2000
	}
	return s.OutputLimit
}
