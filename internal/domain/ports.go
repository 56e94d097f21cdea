package domain

import (
	"context"
	"encoding/json"
	"time"
)

type ReasoningRequest struct {
	// Role names the agent persona (strategist, planner, tactician, ...).
	Role       string
	System     string
	Transcript []Message
	// Schema names the structured payload expected back. Empty means free text.
	Schema string
}

type ReasoningResponse struct {
	Text       string
	Structured json.RawMessage
}

// Reasoner is the reasoning collaborator. Calls are bounded only by ctx.
type Reasoner interface {
	Invoke(ctx context.Context, req ReasoningRequest) (ReasoningResponse, error)
}

type CommandKind string

const (
	CommandBash   CommandKind = "bash"
	CommandPython CommandKind = "python"
)

type Command struct {
	Kind    CommandKind   `json:"kind"`
	Script  string        `json:"script"`
	Timeout time.Duration `json:"timeout,omitempty"`
}

type ExecResult struct {
	Stdout     string        `json:"stdout"`
	Stderr     string        `json:"stderr"`
	ExitStatus int           `json:"exit_status"`
	Duration   time.Duration `json:"duration"`
}

// Combined joins stdout and stderr the way tool output is shown to the reasoner.
func (r ExecResult) Combined() string {
	switch {
	case r.Stderr == "":
		return r.Stdout
	case r.Stdout == "":
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// Executor runs one command with an enforced timeout. Failures are returned
// as *ExecutionError or *TimeoutError alongside whatever output was captured.
type Executor interface {
	Execute(ctx context.Context, cmd Command) (ExecResult, error)
}

type ChallengeAPI interface {
	ListWorkItems(ctx context.Context) ([]WorkItem, error)
	SubmitAnswer(ctx context.Context, code, answer string) (AnswerResult, error)
	GetHint(ctx context.Context, code string) (Hint, error)
}

type ResultRepo interface {
	Save(res ItemResult) error
}

type ReportWriter interface {
	Aggregate(report CampaignReport) (string, error)
}
