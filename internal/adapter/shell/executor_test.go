package shell

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"bytemomo/narwhal/internal/config"
	"bytemomo/narwhal/internal/domain"
	"bytemomo/narwhal/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExecutor(t *testing.T) *Executor {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("no sh on PATH")
	}
	opts := config.Default().Executor
	opts.Shell = sh
	opts.WorkDir = t.TempDir()
	return New(opts, testutil.Logger())
}

func TestExecuteCapturesOutput(t *testing.T) {
	e := newExecutor(t)
	res, err := e.Execute(context.Background(), domain.Command{Kind: domain.CommandBash, Script: "echo out; echo err >&2"})
	require.NoError(t, err)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
	assert.Equal(t, 0, res.ExitStatus)
	assert.Equal(t, "out\n\nerr\n", res.Combined())
}

func TestExecuteNonZeroExit(t *testing.T) {
	e := newExecutor(t)
	res, err := e.Execute(context.Background(), domain.Command{Script: "echo partial; exit 3"})

	var ee *domain.ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 3, ee.ExitStatus)
	assert.Equal(t, 3, res.ExitStatus)
	assert.Equal(t, "partial\n", res.Stdout, "output survives the failure")
}

func TestExecuteTimeout(t *testing.T) {
	e := newExecutor(t)
	start := time.Now()
	_, err := e.Execute(context.Background(), domain.Command{Script: "sleep 5", Timeout: 50 * time.Millisecond})

	var te *domain.TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 50*time.Millisecond, te.After)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestExecuteParentCancellation(t *testing.T) {
	e := newExecutor(t)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()
	_, err := e.Execute(ctx, domain.Command{Script: "sleep 5"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecuteBlocked(t *testing.T) {
	e := newExecutor(t)
	_, err := e.Execute(context.Background(), domain.Command{Script: "cd / && RM -RF / --no-preserve-root"})
	assert.True(t, errors.Is(err, ErrBlocked))
}

func TestExecuteCapsOutput(t *testing.T) {
	e := newExecutor(t)
	e.MaxOutputBytes = 16
	res, err := e.Execute(context.Background(), domain.Command{Script: "i=0; while [ $i -lt 100 ]; do echo line$i; i=$((i+1)); done"})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(res.Stdout, "[output truncated]"))
	assert.Equal(t, "line0\nline1\nline", strings.TrimSuffix(res.Stdout, "\n[output truncated]"))
}

func TestExecutePython(t *testing.T) {
	e := newExecutor(t)
	if _, err := exec.LookPath(e.Python); err != nil {
		t.Skip("python3 not available")
	}
	res, err := e.Execute(context.Background(), domain.Command{Kind: domain.CommandPython, Script: "print(6*7)"})
	require.NoError(t, err)
	assert.Equal(t, "42\n", res.Stdout)
}

func TestExecuteUnknownKind(t *testing.T) {
	e := newExecutor(t)
	_, err := e.Execute(context.Background(), domain.Command{Kind: "ruby", Script: "puts 1"})
	var ee *domain.ExecutionError
	assert.ErrorAs(t, err, &ee)
}

func TestCappedBufferKeepsRunesWhole(t *testing.T) {
	b := &cappedBuffer{limit: 4}
	n, err := b.Write([]byte("abcé!"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	_, _ = b.Write([]byte("z"))

	assert.Equal(t, "abc\n[output truncated]", b.String())
	assert.True(t, utf8.ValidString(b.String()))
}
