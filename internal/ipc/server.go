// Package ipc exposes the agent's current fingerprint and recovered
// artifacts to local tools over gRPC on a unix socket.
package ipc

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/proofmark/proofmark/internal/artifacts"
	"github.com/proofmark/proofmark/pkg/fingerprint"
)

// FingerprintSource provides the current circuit fingerprint.
type FingerprintSource interface {
	Current() (fingerprint.Fingerprint, time.Time, error)
}

// ArtifactSource loads a recovered artifact by name.
type ArtifactSource interface {
	Load(name string) ([]byte, error)
}

// Service implements ArtifactsServer.
type Service struct {
	UnimplementedArtifactsServer

	Fingerprints FingerprintSource
	Artifacts    ArtifactSource
}

// Fingerprint returns the 32 fingerprint bytes. Unavailable means the
// agent has not computed one yet.
func (s *Service) Fingerprint(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.BytesValue, error) {
	fp, _, err := s.Fingerprints.Current()
	if err != nil && fp.IsZero() {
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	return wrapperspb.Bytes(fp.Bytes()), nil
}

// Artifact returns the decoded artifact named in the request.
func (s *Service) Artifact(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	data, err := s.Artifacts.Load(in.GetValue())
	if err != nil {
		return nil, mapErr(err)
	}
	return wrapperspb.Bytes(data), nil
}

func mapErr(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, artifacts.ErrUnknownArtifact):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, artifacts.ErrInvalidProofEncoding):
		return status.Error(codes.DataLoss, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// Server is the IPC gRPC server.
type Server struct {
	sockPath string
	grpc     *grpc.Server
	listener net.Listener
	logger   *slog.Logger
}

// NewServer listens on sockPath and registers svc. A stale socket file is
// removed first.
func NewServer(sockPath string, svc ArtifactsServer, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	os.Remove(sockPath)

	listener, err := net.Listen("unix", sockPath)
	if err != nil {
		return nil, err
	}

	s := &Server{
		sockPath: sockPath,
		grpc:     grpc.NewServer(grpc.UnaryInterceptor(logUnary(logger))),
		listener: listener,
		logger:   logger,
	}
	RegisterArtifactsServer(s.grpc, svc)
	return s, nil
}

// Start begins serving requests.
func (s *Server) Start() error {
	return s.grpc.Serve(s.listener)
}

// Stop gracefully stops the server.
func (s *Server) Stop() {
	s.grpc.GracefulStop()
	os.Remove(s.sockPath)
}

func logUnary(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("ipc request",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"duration", time.Since(start),
		)
		return resp, err
	}
}
