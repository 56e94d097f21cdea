// Package operator runs a single task as a bounded tool loop: the reasoning
// collaborator picks an action, the agent executes it and feeds the result
// back until the model finishes or the action budget runs out.
package operator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"bytemomo/narwhal/internal/dag"
	"bytemomo/narwhal/internal/domain"
	"bytemomo/narwhal/internal/schema"

	"github.com/sirupsen/logrus"
)

const DefaultMaxActions = 8

const executorPrompt = `You are the operator. Carry out the task against the target using tools.
Each reply is one action: "bash" or "python" with a script as input, "submit_answer" with a
candidate flag as input, "get_hint" for the challenge hint, or "finish" with a summary of what
you established. Reply with JSON only.`

type Agent struct {
	Reasoner domain.Reasoner
	Executor domain.Executor
	// API is optional; without it submit_answer and get_hint report an error
	// back to the model.
	API domain.ChallengeAPI
	Log *logrus.Entry

	// Default: 8
	MaxActions int
	// Timeout is passed to every command. Zero lets the executor decide.
	Timeout time.Duration
	// Default: 4000
	ToolOutputLimit int
}

type step struct {
	action schema.ActionPayload
	output string
}

// RunTask implements dag.TaskRunner. Tool failures are fed back to the model.
// The task fails on reasoning and context errors, and when every tool action
// failed, in which case the last tool error is returned with the output.
func (a *Agent) RunTask(ctx context.Context, req dag.TaskRequest) (string, error) {
	l := a.logger().WithFields(logrus.Fields{
		"mission": req.Mission.MissionID,
		"task":    req.Task.ID,
	})

	transcript := []domain.Message{{Role: domain.RoleUser, Content: taskPrompt(req)}}
	var (
		steps     []step
		summary   string
		succeeded bool
		toolErr   error
	)

	for i := 0; i < a.maxActions(); i++ {
		if err := ctx.Err(); err != nil {
			return render(steps, summary), err
		}

		resp, err := a.Reasoner.Invoke(ctx, domain.ReasoningRequest{
			Role:       "executor",
			System:     executorPrompt,
			Transcript: transcript,
			Schema:     schema.Action,
		})
		if err != nil {
			return render(steps, summary), fmt.Errorf("executor reasoning: %w", err)
		}
		transcript = append(transcript, domain.Message{Role: domain.RoleAssistant, Content: resp.Text})

		var act schema.ActionPayload
		if err := schema.Decode(schema.Action, resp, &act); err != nil {
			l.WithError(err).Warn("Invalid action, asking again")
			transcript = append(transcript, domain.Message{Role: domain.RoleTool, Content: "invalid action: " + err.Error()})
			continue
		}
		if act.Summary != "" {
			summary = act.Summary
		}
		if act.Action == "finish" {
			if act.Input != "" && summary == "" {
				summary = act.Input
			}
			break
		}

		l.WithFields(logrus.Fields{
			"action": act.Action,
			"n":      i + 1,
		}).Debug("Operator action")

		out, done, err := a.perform(ctx, req, act)
		if err != nil && ctx.Err() != nil {
			return render(steps, summary), ctx.Err()
		}
		if err != nil {
			toolErr = err
		} else {
			succeeded = true
		}
		out = limit(out, a.toolOutputLimit())
		steps = append(steps, step{action: act, output: out})
		transcript = append(transcript, domain.Message{Role: domain.RoleTool, Content: out})
		if done {
			break
		}
	}

	l.WithField("actions", len(steps)).Info("Task loop finished")
	if toolErr != nil && !succeeded {
		return render(steps, summary), fmt.Errorf("task %s: %w", req.Task.ID, toolErr)
	}
	return render(steps, summary), nil
}

// perform runs one action. The returned text is what the model sees; done
// reports an accepted answer, after which there is nothing left to do.
func (a *Agent) perform(ctx context.Context, req dag.TaskRequest, act schema.ActionPayload) (string, bool, error) {
	switch act.Action {
	case "bash", "python":
		if a.Executor == nil {
			return "error: no executor configured", false, nil
		}
		res, err := a.Executor.Execute(ctx, domain.Command{
			Kind:    domain.CommandKind(act.Action),
			Script:  act.Input,
			Timeout: a.Timeout,
		})
		out := res.Combined()
		if err != nil {
			var te *domain.TimeoutError
			if errors.As(err, &te) {
				return strings.TrimSpace(out + "\nerror: command timed out after " + te.After.String()), false, err
			}
			return strings.TrimSpace(out + "\nerror: " + err.Error()), false, err
		}
		if strings.TrimSpace(out) == "" {
			out = fmt.Sprintf("(no output, exit status %d)", res.ExitStatus)
		}
		return out, false, nil

	case "submit_answer":
		if a.API == nil {
			return "error: no challenge API configured", false, nil
		}
		answer := strings.TrimSpace(act.Input)
		res, err := a.API.SubmitAnswer(ctx, req.Mission.Code, answer)
		if err != nil {
			return "error: submit failed: " + err.Error(), false, err
		}
		if res.Accepted() {
			return fmt.Sprintf("Answer accepted: %s (earned %d points)", answer, res.EarnedPoints), true, nil
		}
		return "Answer rejected: " + answer, false, nil

	case "get_hint":
		if a.API == nil {
			return "error: no challenge API configured", false, nil
		}
		h, err := a.API.GetHint(ctx, req.Mission.Code)
		if err != nil {
			return "error: hint unavailable: " + err.Error(), false, err
		}
		return fmt.Sprintf("Hint (penalty %d): %s", h.PenaltyPoints, h.Content), false, nil
	}
	return "error: unsupported action " + act.Action, false, nil
}

func taskPrompt(req dag.TaskRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Objective: %s\n", req.Objective)
	fmt.Fprintf(&b, "Task %s (%s): %s\n", req.Task.ID, req.Task.Phase, req.Task.Description)
	if req.Graph.EvidenceCriteria != "" {
		fmt.Fprintf(&b, "Evidence criteria: %s\n", req.Graph.EvidenceCriteria)
	}
	b.WriteString("\n")
	b.WriteString(req.Mission.Summary())
	return b.String()
}

func render(steps []step, summary string) string {
	var b strings.Builder
	for _, s := range steps {
		fmt.Fprintf(&b, "$ %s\n", s.action.Action)
		if in := strings.TrimSpace(s.action.Input); in != "" {
			b.WriteString(in)
			b.WriteString("\n")
		}
		b.WriteString(s.output)
		b.WriteString("\n\n")
	}
	if summary != "" {
		b.WriteString("Summary: ")
		b.WriteString(summary)
	}
	return strings.TrimSpace(b.String())
}

// limit cuts s to at most n bytes without splitting a rune.
func limit(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "\n[truncated]"
}

func (a *Agent) maxActions() int {
	if a.MaxActions <= 0 {
		return DefaultMaxActions
	}
	return a.MaxActions
}

func (a *Agent) toolOutputLimit() int {
	if a.ToolOutputLimit <= 0 {
		return 4000
	}
	return a.ToolOutputLimit
}

func (a *Agent) logger() *logrus.Entry {
	if a.Log == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return a.Log
}
