// ABOUTME: gRPC AdminProvisioning service declared by hand over structpb.Struct messages
// ABOUTME: Reads the bearer token from metadata and maps provisioning errors to status codes

package grpcapi

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/hireteksolutions/CAP360-MAIN/internal/auth"
	"github.com/hireteksolutions/CAP360-MAIN/internal/provision"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "cap360.admin.v1.AdminProvisioning"

// Full method names
const (
	CreateAdminUserMethod = "/" + ServiceName + "/CreateAdminUser"
	ListAdminsMethod      = "/" + ServiceName + "/ListAdmins"
	RevokeAdminMethod     = "/" + ServiceName + "/RevokeAdmin"
)

// AdminService is the provisioning behaviour the gRPC surface needs.
type AdminService interface {
	Authorize(ctx context.Context, token string) (*auth.AuthContext, error)
	Provision(ctx context.Context, req provision.Request) (*provision.Result, error)
	ListAdmins(ctx context.Context, token string) ([]provision.Admin, error)
	RevokeAdmin(ctx context.Context, token, userID string) error
}

// AdminProvisioningServer is the server API for the AdminProvisioning service.
type AdminProvisioningServer interface {
	CreateAdminUser(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListAdmins(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RevokeAdmin(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// Server implements AdminProvisioningServer on top of the provisioning service.
type Server struct {
	svc    AdminService
	logger *slog.Logger
}

// NewServer creates the gRPC adapter for svc.
func NewServer(svc AdminService, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, logger: logger.With("component", "grpc")}
}

// CreateAdminUser provisions a new admin from {email, password, fullName}.
func (s *Server) CreateAdminUser(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	caller, err := s.svc.Authorize(ctx, auth.BearerFromIncomingContext(ctx))
	if err != nil {
		return nil, s.toStatus(err)
	}

	req, err := requestFromStruct(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "Invalid request body")
	}

	result, err := s.svc.Provision(auth.WithAuth(ctx, caller), req)
	if err != nil {
		return nil, s.toStatus(err)
	}

	return structpb.NewStruct(map[string]any{
		"user_id":   result.UserID,
		"email":     result.Email,
		"full_name": result.FullName,
	})
}

// ListAdmins returns {admins: [{user_id, email, full_name, granted_at}]}.
func (s *Server) ListAdmins(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	admins, err := s.svc.ListAdmins(ctx, auth.BearerFromIncomingContext(ctx))
	if err != nil {
		return nil, s.toStatus(err)
	}

	list := make([]any, 0, len(admins))
	for _, a := range admins {
		list = append(list, map[string]any{
			"user_id":    a.UserID,
			"email":      a.Email,
			"full_name":  a.FullName,
			"granted_at": a.GrantedAt.UTC().Format(time.RFC3339),
		})
	}
	return structpb.NewStruct(map[string]any{"admins": list})
}

// RevokeAdmin removes the admin role from {user_id}.
func (s *Server) RevokeAdmin(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	token := auth.BearerFromIncomingContext(ctx)
	userID, ok := stringField(in, "user_id")
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "Invalid request body")
	}

	if err := s.svc.RevokeAdmin(ctx, token, userID); err != nil {
		return nil, s.toStatus(err)
	}
	return structpb.NewStruct(map[string]any{"user_id": userID, "revoked": true})
}

// CodeOf maps a provisioning error kind to a gRPC code.
func CodeOf(err error) codes.Code {
	switch provision.KindOf(err) {
	case provision.KindAuthentication:
		return codes.Unauthenticated
	case provision.KindPermissionCheck:
		return codes.Internal
	case provision.KindAuthorization:
		return codes.PermissionDenied
	case provision.KindValidation, provision.KindCreation:
		return codes.InvalidArgument
	case provision.KindNotFound:
		return codes.NotFound
	default:
		return codes.Internal
	}
}

func (s *Server) toStatus(err error) error {
	var pe provision.Error
	if !errors.As(err, &pe) {
		s.logger.Error("unexpected error", "error", err)
		return status.Error(codes.Internal, "Unexpected error")
	}
	return status.Error(CodeOf(err), pe.Error())
}

func requestFromStruct(in *structpb.Struct) (provision.Request, error) {
	var req provision.Request
	var ok bool
	if req.Email, ok = stringField(in, "email"); !ok {
		return req, errors.New("email must be a string")
	}
	if req.Password, ok = stringField(in, "password"); !ok {
		return req, errors.New("password must be a string")
	}
	if req.FullName, ok = stringField(in, "fullName"); !ok {
		return req, errors.New("fullName must be a string")
	}
	return req, nil
}

// stringField returns in[key] as a string. A missing key is an empty string;
// a present key of another type is reported as not ok.
func stringField(in *structpb.Struct, key string) (string, bool) {
	if in == nil {
		return "", true
	}
	v, present := in.GetFields()[key]
	if !present {
		return "", true
	}
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return "", true
	}
	sv, isString := v.GetKind().(*structpb.Value_StringValue)
	if !isString {
		return "", false
	}
	return sv.StringValue, true
}

// Register adds srv to the gRPC server under ServiceName.
func Register(s grpc.ServiceRegistrar, srv AdminProvisioningServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AdminProvisioningServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateAdminUser", Handler: createAdminUserHandler},
		{MethodName: "ListAdmins", Handler: listAdminsHandler},
		{MethodName: "RevokeAdmin", Handler: revokeAdminHandler},
	},
	Streams: []grpc.StreamDesc{},
}

type unaryMethod func(AdminProvisioningServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AdminProvisioningServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AdminProvisioningServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var (
	createAdminUserHandler = unaryHandler(CreateAdminUserMethod, AdminProvisioningServer.CreateAdminUser)
	listAdminsHandler      = unaryHandler(ListAdminsMethod, AdminProvisioningServer.ListAdmins)
	revokeAdminHandler     = unaryHandler(RevokeAdminMethod, AdminProvisioningServer.RevokeAdmin)
)
