package grpcexec

import (
	"context"
	"net"
	"testing"
	"time"

	"bytemomo/narwhal/internal/domain"
	"bytemomo/narwhal/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

func startServer(t *testing.T, backend domain.Executor) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	Register(s, &Server{Backend: backend, Log: testutil.Logger()})
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	c, err := Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRemoteExecute(t *testing.T) {
	backend := &testutil.FakeExecutor{Handler: func(cmd domain.Command) (domain.ExecResult, error) {
		return domain.ExecResult{Stdout: "uid=0(root)\n", Stderr: "warn", Duration: 15 * time.Millisecond}, nil
	}}
	c := startServer(t, backend)

	res, err := c.Execute(context.Background(), domain.Command{Kind: domain.CommandBash, Script: "id", Timeout: 2 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, "uid=0(root)\n", res.Stdout)
	assert.Equal(t, "warn", res.Stderr)
	assert.Equal(t, 15*time.Millisecond, res.Duration)

	cmds := backend.Commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, domain.Command{Kind: domain.CommandBash, Script: "id", Timeout: 2 * time.Second}, cmds[0])
}

func TestRemoteExecuteBinaryOutput(t *testing.T) {
	backend := &testutil.FakeExecutor{Handler: func(cmd domain.Command) (domain.ExecResult, error) {
		return domain.ExecResult{Stdout: "ELF\x7f\xff\xfe header", Stderr: "\xc3"}, &domain.ExecutionError{Command: cmd.Script, ExitStatus: 1}
	}}
	c := startServer(t, backend)

	script := "printf '\xff'"
	res, err := c.Execute(context.Background(), domain.Command{Kind: domain.CommandBash, Script: script})
	var ee *domain.ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 1, ee.ExitStatus)
	assert.Equal(t, "ELF\x7f\xff\xfe header", res.Stdout)
	assert.Equal(t, "\xc3", res.Stderr)

	cmds := backend.Commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, script, cmds[0].Script)
}

func TestEncodeResultInvalidUTF8(t *testing.T) {
	s, err := encodeResult(domain.ExecResult{Stdout: "\xff"}, &domain.ExecutionError{Command: "cat \xff", ExitStatus: 1})
	require.NoError(t, err)

	res, err := decodeResult(s)
	var ee *domain.ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "\xff", res.Stdout)
	assert.Equal(t, "cat \uFFFD", ee.Command)
}

func TestRemoteErrorsKeepTheirKind(t *testing.T) {
	backend := &testutil.FakeExecutor{Handler: func(cmd domain.Command) (domain.ExecResult, error) {
		if cmd.Script == "sleep 99" {
			return domain.ExecResult{Stdout: "partial"}, &domain.TimeoutError{Command: cmd.Script, After: time.Second}
		}
		return domain.ExecResult{Stderr: "nope", ExitStatus: 2}, &domain.ExecutionError{Command: cmd.Script, ExitStatus: 2}
	}}
	c := startServer(t, backend)

	res, err := c.Execute(context.Background(), domain.Command{Script: "sleep 99"})
	var te *domain.TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, time.Second, te.After)
	assert.Equal(t, "partial", res.Stdout)

	res, err = c.Execute(context.Background(), domain.Command{Script: "false"})
	var ee *domain.ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 2, ee.ExitStatus)
	assert.Equal(t, "false", ee.Command)
	assert.Equal(t, "nope", res.Stderr)
}

func TestRemoteRejectsEmptyScript(t *testing.T) {
	c := startServer(t, &testutil.FakeExecutor{})
	_, err := c.Execute(context.Background(), domain.Command{})
	var ee *domain.ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Contains(t, ee.Error(), "script is required")
}
