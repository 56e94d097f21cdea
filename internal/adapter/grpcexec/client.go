package grpcexec

import (
	"context"
	"fmt"

	"bytemomo/narwhal/internal/domain"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client implements domain.Executor against a remote Server.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects lazily; the first Execute establishes the connection.
func Dial(endpoint string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial executor %s: %w", endpoint, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) Execute(ctx context.Context, cmd domain.Command) (domain.ExecResult, error) {
	req, err := encodeCommand(cmd)
	if err != nil {
		return domain.ExecResult{}, err
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, executeRPC, req, resp); err != nil {
		if ctx.Err() != nil {
			return domain.ExecResult{}, ctx.Err()
		}
		return domain.ExecResult{ExitStatus: -1}, &domain.ExecutionError{Command: cmd.Script, ExitStatus: -1, Err: err}
	}
	return decodeResult(resp)
}

var _ domain.Executor = (*Client)(nil)
