package ipc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/proofmark/proofmark/pkg/fingerprint"
)

// defaultRPCTimeout is the default timeout for RPC calls.
const defaultRPCTimeout = 5 * time.Second

// ErrEmptySocketPath is returned when an empty socket path is provided.
var ErrEmptySocketPath = errors.New("socket path cannot be empty")

// Client is the IPC client for the agent.
type Client struct {
	conn   *grpc.ClientConn
	client ArtifactsClient
}

// NewClient creates a client for the agent listening on sockPath. The
// connection is established lazily on the first call.
func NewClient(sockPath string) (*Client, error) {
	if sockPath == "" {
		return nil, ErrEmptySocketPath
	}

	conn, err := grpc.NewClient(
		"unix://"+sockPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IPC socket: %w", err)
	}
	return newClientFromConn(conn), nil
}

func newClientFromConn(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn, client: NewArtifactsClient(conn)}
}

// Close closes the connection to the agent.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Fingerprint returns the agent's current fingerprint.
func (c *Client) Fingerprint(ctx context.Context) (fingerprint.Fingerprint, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultRPCTimeout)
	defer cancel()

	resp, err := c.client.Fingerprint(ctx, &emptypb.Empty{})
	if err != nil {
		return fingerprint.Fingerprint{}, fmt.Errorf("Fingerprint RPC failed: %w", err)
	}
	return fingerprint.FromBytes(resp.GetValue())
}

// Artifact returns the recovered artifact with the given name.
func (c *Client) Artifact(ctx context.Context, name string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultRPCTimeout)
	defer cancel()

	resp, err := c.client.Artifact(ctx, wrapperspb.String(name))
	if err != nil {
		return nil, fmt.Errorf("Artifact RPC failed: %w", err)
	}
	return resp.GetValue(), nil
}
