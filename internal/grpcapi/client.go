// ABOUTME: Typed client for the AdminProvisioning gRPC service
// ABOUTME: Converts structpb payloads to provisioning results and attaches bearer tokens

package grpcapi

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/hireteksolutions/CAP360-MAIN/internal/provision"
)

// Client calls the AdminProvisioning service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// WithToken returns a context that carries token as "authorization: Bearer <token>".
func WithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
}

// CreateAdminUser provisions a new admin.
func (c *Client) CreateAdminUser(ctx context.Context, req provision.Request, opts ...grpc.CallOption) (*provision.Result, error) {
	in, err := structpb.NewStruct(map[string]any{
		"email":    req.Email,
		"password": req.Password,
		"fullName": req.FullName,
	})
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, CreateAdminUserMethod, in, out, opts...); err != nil {
		return nil, err
	}

	fields := out.GetFields()
	return &provision.Result{
		UserID:   fields["user_id"].GetStringValue(),
		Email:    fields["email"].GetStringValue(),
		FullName: fields["full_name"].GetStringValue(),
	}, nil
}

// ListAdmins returns every admin.
func (c *Client) ListAdmins(ctx context.Context, opts ...grpc.CallOption) ([]provision.Admin, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ListAdminsMethod, &structpb.Struct{}, out, opts...); err != nil {
		return nil, err
	}

	values := out.GetFields()["admins"].GetListValue().GetValues()
	admins := make([]provision.Admin, 0, len(values))
	for _, v := range values {
		f := v.GetStructValue().GetFields()
		admin := provision.Admin{
			UserID:   f["user_id"].GetStringValue(),
			Email:    f["email"].GetStringValue(),
			FullName: f["full_name"].GetStringValue(),
		}
		if ts := f["granted_at"].GetStringValue(); ts != "" {
			if granted, err := time.Parse(time.RFC3339, ts); err == nil {
				admin.GrantedAt = granted
			}
		}
		admins = append(admins, admin)
	}
	return admins, nil
}

// RevokeAdmin removes the admin role from userID.
func (c *Client) RevokeAdmin(ctx context.Context, userID string, opts ...grpc.CallOption) error {
	in, err := structpb.NewStruct(map[string]any{"user_id": userID})
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	return c.cc.Invoke(ctx, RevokeAdminMethod, in, new(structpb.Struct), opts...)
}
