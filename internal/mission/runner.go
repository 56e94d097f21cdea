package mission

import (
	"context"
	"time"

	"bytemomo/narwhal/internal/domain"

	"github.com/sirupsen/logrus"
)

const DefaultMaxSteps = 100

// Runner drives a Machine from recon until end or until MaxSteps transitions
// have run, in which case the mission is reported incomplete.
type Runner struct {
	Machine  *Machine
	MaxSteps int
	Log      *logrus.Entry
}

func (r *Runner) Run(ctx context.Context, state *domain.MissionState) (domain.MissionOutcome, error) {
	maxSteps := r.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}

	l := r.logger().WithFields(logrus.Fields{
		"mission": state.ID,
		"code":    state.Code,
	})

	start := time.Now()
	outcome := domain.MissionOutcome{MissionID: state.ID, Code: state.Code, State: state}

	node := domain.NodeRecon
	for node != domain.NodeEnd {
		if outcome.Steps >= maxSteps {
			l.WithField("max_steps", maxSteps).Warn("Mission step budget exhausted, forcing termination")
			outcome.Status = domain.OutcomeIncomplete
			outcome.Duration = time.Since(start)
			return outcome, nil
		}
		if err := ctx.Err(); err != nil {
			outcome.Duration = time.Since(start)
			return outcome, err
		}

		l.WithFields(logrus.Fields{
			"node": node,
			"step": outcome.Steps + 1,
		}).Debug("Transition")

		next, err := r.Machine.Transition(ctx, node, state)
		outcome.Steps++
		if err != nil {
			l.WithError(err).WithField("node", node).Error("Mission failed")
			outcome.Duration = time.Since(start)
			return outcome, err
		}
		node = next
	}

	outcome.Flag = state.Flag
	outcome.Status = domain.OutcomeCompleted
	if state.Flag != "" {
		outcome.Status = domain.OutcomeFlagFound
	}
	outcome.Duration = time.Since(start)

	l.WithFields(logrus.Fields{
		"status":   outcome.Status,
		"steps":    outcome.Steps,
		"findings": len(state.Findings),
		"duration": outcome.Duration.Round(time.Millisecond),
	}).Info("Mission finished")
	return outcome, nil
}

func (r *Runner) logger() *logrus.Entry {
	if r.Log == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return r.Log
}
