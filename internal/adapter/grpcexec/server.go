package grpcexec

import (
	"context"

	"bytemomo/narwhal/internal/domain"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Server serves a local executor to remote missions.
type Server struct {
	Backend domain.Executor
	Log     *log.Entry
}

// Register adds the executor service to s.
func Register(s *grpc.Server, srv *Server) {
	s.RegisterService(&serviceDesc, srv)
}

func (s *Server) execute(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	cmd, err := decodeCommand(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode command: %v", err)
	}
	if cmd.Script == "" {
		return nil, status.Error(codes.InvalidArgument, "script is required")
	}

	l := s.logger().WithField("kind", cmd.Kind)
	res, err := s.Backend.Execute(ctx, cmd)
	if ctx.Err() != nil {
		return nil, status.FromContextError(ctx.Err()).Err()
	}
	if err != nil {
		l.WithError(err).Debug("Remote command failed")
	}
	out, encErr := encodeResult(res, err)
	if encErr != nil {
		return nil, status.Errorf(codes.Internal, "encode result: %v", encErr)
	}
	return out, nil
}

func (s *Server) logger() *log.Entry {
	if s.Log == nil {
		return log.NewEntry(log.StandardLogger())
	}
	return s.Log
}
