package ipc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// The service uses protobuf well-known types only, so no generated code is
// needed. Equivalent proto:
//
//	service Artifacts {
//	  rpc Fingerprint(google.protobuf.Empty) returns (google.protobuf.BytesValue);
//	  rpc Artifact(google.protobuf.StringValue) returns (google.protobuf.BytesValue);
//	}
const (
	serviceName           = "proofmark.ipc.v1.Artifacts"
	fingerprintFullMethod = "/" + serviceName + "/Fingerprint"
	artifactFullMethod    = "/" + serviceName + "/Artifact"
)

// ArtifactsServer is the server API for the Artifacts service.
type ArtifactsServer interface {
	Fingerprint(context.Context, *emptypb.Empty) (*wrapperspb.BytesValue, error)
	Artifact(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
}

// UnimplementedArtifactsServer can be embedded to have forward compatible implementations.
type UnimplementedArtifactsServer struct{}

func (UnimplementedArtifactsServer) Fingerprint(context.Context, *emptypb.Empty) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Fingerprint not implemented")
}
func (UnimplementedArtifactsServer) Artifact(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Artifact not implemented")
}

// RegisterArtifactsServer registers the Artifacts service on a gRPC server.
func RegisterArtifactsServer(s grpc.ServiceRegistrar, srv ArtifactsServer) {
	s.RegisterService(&Artifacts_ServiceDesc, srv)
}

// ArtifactsClient is the client API for the Artifacts service.
type ArtifactsClient interface {
	Fingerprint(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	Artifact(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
}

type artifactsClient struct{ cc grpc.ClientConnInterface }

// NewArtifactsClient wraps a connection in the Artifacts client API.
func NewArtifactsClient(cc grpc.ClientConnInterface) ArtifactsClient {
	return &artifactsClient{cc: cc}
}

func (c *artifactsClient) Fingerprint(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, fingerprintFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *artifactsClient) Artifact(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, artifactFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func _Artifacts_Fingerprint_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ArtifactsServer).Fingerprint(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fingerprintFullMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ArtifactsServer).Fingerprint(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _Artifacts_Artifact_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ArtifactsServer).Artifact(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: artifactFullMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ArtifactsServer).Artifact(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// Artifacts_ServiceDesc is the grpc.ServiceDesc for the Artifacts service.
var Artifacts_ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ArtifactsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Fingerprint", Handler: _Artifacts_Fingerprint_Handler},
		{MethodName: "Artifact", Handler: _Artifacts_Artifact_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "proofmark/ipc/v1/artifacts.proto",
}
