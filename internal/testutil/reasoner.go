// Package testutil holds scripted collaborators shared by package tests.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"bytemomo/narwhal/internal/domain"

	"github.com/sirupsen/logrus"
)

// Reply is one scripted reasoning response.
type Reply struct {
	Text  string
	Err   error
	Block bool // wait for ctx cancellation instead of answering
}

// JSON builds a reply whose text is v encoded as JSON.
func JSON(v any) Reply {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return Reply{Text: string(b)}
}

// ScriptedReasoner answers per role from a queue. The last reply of a role is
// repeated once its queue is drained.
type ScriptedReasoner struct {
	mu      sync.Mutex
	scripts map[string][]Reply
	calls   []domain.ReasoningRequest
}

func NewScriptedReasoner() *ScriptedReasoner {
	return &ScriptedReasoner{scripts: map[string][]Reply{}}
}

func (r *ScriptedReasoner) On(role string, replies ...Reply) *ScriptedReasoner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scripts[role] = append(r.scripts[role], replies...)
	return r
}

func (r *ScriptedReasoner) Invoke(ctx context.Context, req domain.ReasoningRequest) (domain.ReasoningResponse, error) {
	r.mu.Lock()
	r.calls = append(r.calls, req)
	queue := r.scripts[req.Role]
	if len(queue) == 0 {
		r.mu.Unlock()
		return domain.ReasoningResponse{}, fmt.Errorf("no scripted reply for role %q", req.Role)
	}
	reply := queue[0]
	if len(queue) > 1 {
		r.scripts[req.Role] = queue[1:]
	}
	r.mu.Unlock()

	if reply.Block {
		<-ctx.Done()
		return domain.ReasoningResponse{}, ctx.Err()
	}
	if reply.Err != nil {
		return domain.ReasoningResponse{}, reply.Err
	}
	return domain.ReasoningResponse{Text: reply.Text}, nil
}

// Calls returns the requests seen so far, optionally filtered by role.
func (r *ScriptedReasoner) Calls(role string) []domain.ReasoningRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ReasoningRequest
	for _, c := range r.calls {
		if role == "" || c.Role == role {
			out = append(out, c)
		}
	}
	return out
}

// Logger returns an entry that discards output.
func Logger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}
