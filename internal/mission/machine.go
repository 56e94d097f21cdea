package mission

import (
	"context"
	"fmt"
	"strings"

	"bytemomo/narwhal/internal/domain"

	"github.com/sirupsen/logrus"
)

// Phase mutates the mission state for one node of the machine.
type Phase interface {
	Run(ctx context.Context, state *domain.MissionState) error
}

// Decision is a raw routing decision. Dst is validated by the machine.
type Decision struct {
	Dst     string
	Insight string
}

type Router interface {
	Route(ctx context.Context, state *domain.MissionState) (Decision, error)
}

type Verdict struct {
	Accepted bool
	Flag     string
	Reason   string
}

// rejectedPrefix marks the scout redirection recorded for a rejected end
// verdict.
const rejectedPrefix = "End verdict rejected: "

// Verifier gates an end decision before the mission is allowed to halt.
type Verifier interface {
	Verify(ctx context.Context, state *domain.MissionState, insight string) Verdict
}

// Machine is the recon -> scout -> {recon|scout|end} state machine. It has no
// step counter of its own; Runner bounds it.
type Machine struct {
	Recon    Phase
	Scout    Phase
	Router   Router
	Verifier Verifier
	Log      *logrus.Entry
}

// Transition runs the phase for node, updates state in place and returns the
// next node.
func (m *Machine) Transition(ctx context.Context, node domain.Node, state *domain.MissionState) (domain.Node, error) {
	switch node {
	case domain.NodeRecon:
		if err := m.Recon.Run(ctx, state); err != nil {
			return node, fmt.Errorf("recon: %w", err)
		}
		return domain.NodeScout, nil

	case domain.NodeScout:
		if err := m.Scout.Run(ctx, state); err != nil {
			return node, fmt.Errorf("scout: %w", err)
		}
		d, err := m.Router.Route(ctx, state)
		if err != nil {
			return node, fmt.Errorf("route: %w", err)
		}
		return m.apply(ctx, state, d)

	case domain.NodeEnd:
		return domain.NodeEnd, nil
	}
	return node, &domain.TransitionError{From: node, Dst: string(node)}
}

func (m *Machine) apply(ctx context.Context, state *domain.MissionState, d Decision) (domain.Node, error) {
	dst, ok := domain.ParseNode(strings.ToLower(strings.TrimSpace(d.Dst)))
	if !ok {
		return domain.NodeScout, &domain.TransitionError{From: domain.NodeScout, Dst: d.Dst}
	}

	l := m.logger().WithFields(logrus.Fields{
		"mission": state.ID,
		"dst":     dst,
	})

	if dst == domain.NodeEnd {
		flag := d.Insight
		if m.Verifier != nil {
			v := m.Verifier.Verify(ctx, state, d.Insight)
			if !v.Accepted {
				insight := rejectedPrefix + v.Reason
				l.WithField("reason", v.Reason).Warn("Router end verdict rejected, continuing exploitation")
				state.AppendMessage(domain.RoleUser, "Router insight: "+insight)
				state.Redirect(domain.RouterSource, domain.NodeScout, insight)
				return domain.NodeScout, nil
			}
			flag = v.Flag
		}
		state.Flag = flag
		state.Redirect(domain.RouterSource, domain.NodeEnd, d.Insight)
		l.WithField("flag", flag).Info("Mission reached end")
		return domain.NodeEnd, nil
	}

	state.AppendMessage(domain.RoleUser, "Router insight: "+d.Insight)
	state.Redirect(domain.RouterSource, dst, d.Insight)
	l.WithField("insight", truncate(d.Insight, 160)).Info("Router redirected mission")
	return dst, nil
}

func (m *Machine) logger() *logrus.Entry {
	if m.Log == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return m.Log
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
