package testutil

import (
	"context"
	"fmt"
	"sync"

	"bytemomo/narwhal/internal/domain"
)

// FakeExecutor records commands and answers through Handler.
type FakeExecutor struct {
	Handler func(cmd domain.Command) (domain.ExecResult, error)

	mu       sync.Mutex
	commands []domain.Command
}

func (e *FakeExecutor) Execute(ctx context.Context, cmd domain.Command) (domain.ExecResult, error) {
	e.mu.Lock()
	e.commands = append(e.commands, cmd)
	e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return domain.ExecResult{}, err
	}
	if e.Handler == nil {
		return domain.ExecResult{}, nil
	}
	return e.Handler(cmd)
}

func (e *FakeExecutor) Commands() []domain.Command {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Command, len(e.commands))
	copy(out, e.commands)
	return out
}

type Submission struct {
	Code   string
	Answer string
}

// FakeAPI is an in-memory challenge API. Flags maps codes to the accepted answer.
type FakeAPI struct {
	Items   []domain.WorkItem
	Flags   map[string]string
	Hints   map[string]string
	ListErr error

	mu          sync.Mutex
	submissions []Submission
	hints       []string
}

func (a *FakeAPI) ListWorkItems(context.Context) ([]domain.WorkItem, error) {
	if a.ListErr != nil {
		return nil, a.ListErr
	}
	return append([]domain.WorkItem(nil), a.Items...), nil
}

func (a *FakeAPI) SubmitAnswer(_ context.Context, code, answer string) (domain.AnswerResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.submissions = append(a.submissions, Submission{Code: code, Answer: answer})

	want, ok := a.Flags[code]
	if !ok {
		return domain.AnswerResult{}, fmt.Errorf("unknown challenge %q", code)
	}
	if want == answer {
		return domain.AnswerResult{Correct: true, EarnedPoints: 100, IsSolved: true}, nil
	}
	return domain.AnswerResult{}, nil
}

func (a *FakeAPI) GetHint(_ context.Context, code string) (domain.Hint, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	first := true
	for _, c := range a.hints {
		if c == code {
			first = false
		}
	}
	a.hints = append(a.hints, code)
	h, ok := a.Hints[code]
	if !ok {
		return domain.Hint{}, fmt.Errorf("no hint for %q", code)
	}
	return domain.Hint{Content: h, PenaltyPoints: 10, FirstUse: first}, nil
}

func (a *FakeAPI) Submissions() []Submission {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Submission(nil), a.submissions...)
}
