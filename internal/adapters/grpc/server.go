package grpc

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/GertsDev/burgerverse-backend/internal/application"
	"github.com/GertsDev/burgerverse-backend/internal/domain"
)

const serviceName = "burgerverse.auth.v1.AuthInternalService"

// AuthInternalService is the contract sibling services (orders) call to
// check a bearer token and resolve the customer behind it.
type AuthInternalService interface {
	ValidateToken(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetUser(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// Authenticator is the slice of the session manager exposed over gRPC.
type Authenticator interface {
	ValidateAccessToken(ctx context.Context, token string) (application.Principal, error)
	GetProfile(ctx context.Context, identityID uuid.UUID) (application.PublicUser, error)
}

type AuthInternalServer struct {
	auth Authenticator
}

func NewAuthInternalServer(auth Authenticator) *AuthInternalServer {
	return &AuthInternalServer{auth: auth}
}

func Register(server grpc.ServiceRegistrar, svc AuthInternalService) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*AuthInternalService)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "ValidateToken",
				Handler:    unaryHandler("ValidateToken", svc.ValidateToken),
			},
			{
				MethodName: "GetUser",
				Handler:    unaryHandler("GetUser", svc.GetUser),
			},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "burgerverse/auth/v1/auth_internal.proto",
	}, svc)
}

// ValidateToken answers {valid:false} for rejected tokens so callers can
// tell a bad token apart from a transport failure.
func (s *AuthInternalServer) ValidateToken(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	token := req.GetFields()["token"].GetStringValue()
	if token == "" {
		return nil, status.Error(codes.InvalidArgument, "missing token")
	}

	principal, err := s.auth.ValidateAccessToken(ctx, token)
	if err != nil {
		return structpb.NewStruct(map[string]any{"valid": false})
	}

	resp, err := structpb.NewStruct(map[string]any{
		"valid":      true,
		"user_id":    principal.IdentityID.String(),
		"expires_at": principal.ExpiresAt.Unix(),
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

func (s *AuthInternalServer) GetUser(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	identityID, err := uuid.Parse(req.GetFields()["user_id"].GetStringValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid user_id")
	}

	user, err := s.auth.GetProfile(ctx, identityID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, status.Error(codes.NotFound, "user not found")
		}
		return nil, status.Error(codes.Internal, "lookup failed")
	}

	resp, err := structpb.NewStruct(map[string]any{
		"user_id": identityID.String(),
		"email":   user.Email,
		"name":    user.Name,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

func unaryHandler(method string, call func(context.Context, *structpb.Struct) (*structpb.Struct, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := &structpb.Struct{}
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(ctx, req)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + serviceName + "/" + method,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			typed, ok := req.(*structpb.Struct)
			if !ok {
				return nil, status.Error(codes.InvalidArgument, "invalid request type")
			}
			return call(ctx, typed)
		}
		return interceptor(ctx, req, info, handler)
	}
}
