// Package shell runs bash and python snippets on the local host.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"bytemomo/narwhal/internal/config"
	"bytemomo/narwhal/internal/domain"

	log "github.com/sirupsen/logrus"
)

var ErrBlocked = errors.New("command matches a blocked pattern")

type Executor struct {
	Shell          string
	Python         string
	WorkDir        string
	Timeout        time.Duration
	MaxOutputBytes int
	Blocked        []string
	Log            *log.Entry
}

func New(opts config.ExecutorOpts, l *log.Entry) *Executor {
	return &Executor{
		Shell:          opts.Shell,
		Python:         opts.Python,
		WorkDir:        opts.WorkDir,
		Timeout:        opts.Timeout,
		MaxOutputBytes: opts.MaxOutputBytes,
		Blocked:        opts.Blocked,
		Log:            l,
	}
}

// Execute runs cmd with the command's timeout, falling back to the executor
// timeout. Output captured before a failure is returned with the error.
func (e *Executor) Execute(ctx context.Context, cmd domain.Command) (domain.ExecResult, error) {
	if pattern, ok := e.blocked(cmd.Script); ok {
		e.logger().WithField("pattern", pattern).Warn("Refusing blocked command")
		return domain.ExecResult{ExitStatus: -1}, &domain.ExecutionError{Command: summary(cmd.Script), ExitStatus: -1, Err: ErrBlocked}
	}

	name, args, err := e.argv(cmd)
	if err != nil {
		return domain.ExecResult{ExitStatus: -1}, &domain.ExecutionError{Command: summary(cmd.Script), ExitStatus: -1, Err: err}
	}

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = e.Timeout
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	limit := e.MaxOutputBytes
	if limit <= 0 {
		limit = 100000
	}
	stdout := &cappedBuffer{limit: limit}
	stderr := &cappedBuffer{limit: limit}

	c := exec.CommandContext(runCtx, name, args...)
	c.Dir = e.WorkDir
	c.Stdout = stdout
	c.Stderr = stderr
	c.WaitDelay = time.Second

	start := time.Now()
	runErr := c.Run()
	res := domain.ExecResult{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		ExitStatus: c.ProcessState.ExitCode(),
		Duration:   time.Since(start),
	}

	l := e.logger().WithFields(log.Fields{
		"kind":     cmd.Kind,
		"exit":     res.ExitStatus,
		"duration": res.Duration.Round(time.Millisecond),
	})

	switch {
	case runErr == nil:
		l.Debug("Command finished")
		return res, nil
	case ctx.Err() != nil:
		return res, ctx.Err()
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		l.Warn("Command timed out")
		return res, &domain.TimeoutError{Command: summary(cmd.Script), After: timeout}
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		l.Debug("Command exited with non-zero status")
		return res, &domain.ExecutionError{Command: summary(cmd.Script), ExitStatus: res.ExitStatus}
	}
	return res, &domain.ExecutionError{Command: summary(cmd.Script), ExitStatus: res.ExitStatus, Err: runErr}
}

func (e *Executor) argv(cmd domain.Command) (string, []string, error) {
	switch cmd.Kind {
	case domain.CommandBash, "":
		sh := e.Shell
		if sh == "" {
			sh = "/bin/bash"
		}
		return sh, []string{"-c", cmd.Script}, nil
	case domain.CommandPython:
		py := e.Python
		if py == "" {
			py = "python3"
		}
		return py, []string{"-c", cmd.Script}, nil
	}
	return "", nil, fmt.Errorf("unsupported command kind %q", cmd.Kind)
}

func (e *Executor) blocked(script string) (string, bool) {
	lower := strings.ToLower(script)
	for _, p := range e.Blocked {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return p, true
		}
	}
	return "", false
}

func (e *Executor) logger() *log.Entry {
	if e.Log == nil {
		return log.NewEntry(log.StandardLogger())
	}
	return e.Log
}

// summary is the first line of a script, used in errors and logs.
func summary(script string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(script), "\n")
	if len(line) > 120 {
		return line[:120] + "..."
	}
	return line
}

// cappedBuffer keeps the first limit bytes and drops the rest.
type cappedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.truncated {
		return len(p), nil
	}
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			cut := room
			for cut > 0 && !utf8.RuneStart(p[cut]) {
				cut--
			}
			b.buf.Write(p[:cut])
			b.truncated = true
		} else {
			b.buf.Write(p)
		}
	} else if len(p) > 0 {
		b.truncated = true
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.truncated {
		return b.buf.String() + "\n[output truncated]"
	}
	return b.buf.String()
}

var _ domain.Executor = (*Executor)(nil)
