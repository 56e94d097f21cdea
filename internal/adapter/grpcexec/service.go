// Package grpcexec exposes a domain.Executor over gRPC and provides the
// matching client. Messages are google.protobuf.Struct values so no
// generated code is needed. Scripts and command output travel base64 encoded
// because Struct strings must be valid UTF-8.
package grpcexec

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"bytemomo/narwhal/internal/domain"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	serviceName = "narwhal.exec.v1.Executor"
	executeRPC  = "/" + serviceName + "/Execute"
)

const (
	errorKindTimeout   = "timeout"
	errorKindExecution = "execution"
)

type executeService interface {
	execute(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*executeService)(nil),
	Methods: []grpc.MethodDesc{{
		MethodName: "Execute",
		Handler:    executeHandler,
	}},
	Streams:  []grpc.StreamDesc{},
	Metadata: "narwhal/exec/v1/executor.proto",
}

func executeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	svc := srv.(executeService)
	if interceptor == nil {
		return svc.execute(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: executeRPC}
	handler := func(ctx context.Context, req any) (any, error) {
		return svc.execute(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func encodeCommand(cmd domain.Command) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"kind":       string(cmd.Kind),
		"script":     encodeBytes(cmd.Script),
		"timeout_ms": float64(cmd.Timeout.Milliseconds()),
	})
}

func decodeCommand(s *structpb.Struct) (domain.Command, error) {
	f := s.GetFields()
	script, err := decodeBytes(f["script"])
	if err != nil {
		return domain.Command{}, fmt.Errorf("script: %w", err)
	}
	return domain.Command{
		Kind:    domain.CommandKind(f["kind"].GetStringValue()),
		Script:  script,
		Timeout: time.Duration(f["timeout_ms"].GetNumberValue()) * time.Millisecond,
	}, nil
}

func encodeResult(res domain.ExecResult, err error) (*structpb.Struct, error) {
	m := map[string]any{
		"stdout":      encodeBytes(res.Stdout),
		"stderr":      encodeBytes(res.Stderr),
		"exit_status": float64(res.ExitStatus),
		"duration_ms": float64(res.Duration.Milliseconds()),
	}
	var te *domain.TimeoutError
	switch {
	case err == nil:
	case errors.As(err, &te):
		m["error_kind"] = errorKindTimeout
		m["error"] = validText(err.Error())
		m["command"] = validText(te.Command)
		m["after_ms"] = float64(te.After.Milliseconds())
	default:
		m["error_kind"] = errorKindExecution
		m["error"] = validText(err.Error())
		var ee *domain.ExecutionError
		if errors.As(err, &ee) {
			m["command"] = validText(ee.Command)
		}
	}
	return structpb.NewStruct(m)
}

func decodeResult(s *structpb.Struct) (domain.ExecResult, error) {
	f := s.GetFields()
	stdout, err := decodeBytes(f["stdout"])
	if err != nil {
		return domain.ExecResult{ExitStatus: -1}, fmt.Errorf("stdout: %w", err)
	}
	stderr, err := decodeBytes(f["stderr"])
	if err != nil {
		return domain.ExecResult{ExitStatus: -1}, fmt.Errorf("stderr: %w", err)
	}
	res := domain.ExecResult{
		Stdout:     stdout,
		Stderr:     stderr,
		ExitStatus: int(f["exit_status"].GetNumberValue()),
		Duration:   time.Duration(f["duration_ms"].GetNumberValue()) * time.Millisecond,
	}
	command := f["command"].GetStringValue()
	switch f["error_kind"].GetStringValue() {
	case errorKindTimeout:
		return res, &domain.TimeoutError{
			Command: command,
			After:   time.Duration(f["after_ms"].GetNumberValue()) * time.Millisecond,
		}
	case errorKindExecution:
		return res, &domain.ExecutionError{
			Command:    command,
			ExitStatus: res.ExitStatus,
			Err:        errors.New(f["error"].GetStringValue()),
		}
	}
	return res, nil
}

func encodeBytes(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func decodeBytes(v *structpb.Value) (string, error) {
	b, err := base64.StdEncoding.DecodeString(v.GetStringValue())
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func validText(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}
