// ABOUTME: Tests for the AdminProvisioning gRPC service over an in-process bufconn listener
// ABOUTME: Exercises the typed client, metadata tokens and status code mapping

package grpcapi

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/hireteksolutions/CAP360-MAIN/internal/auth"
	"github.com/hireteksolutions/CAP360-MAIN/internal/provision"
	"github.com/hireteksolutions/CAP360-MAIN/internal/store"
)

var testSecret = []byte("grpc-api-test-secret-of-32-bytes")

type testEnv struct {
	client     *Client
	conn       *grpc.ClientConn
	store      *store.MockStore
	provider   *auth.Provider
	adminID    string
	adminToken string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	verifier, err := auth.NewJWTVerifier(testSecret)
	require.NoError(t, err)

	s := store.NewMockStore()
	provider := auth.NewProvider(s, verifier, time.Hour)
	svc := provision.NewService(provider, s, provision.Options{})

	ctx := context.Background()
	admin, err := provider.CreateIdentity(ctx, auth.CreateIdentityParams{
		Email: "root@example.com", Password: "root-password", EmailConfirmed: true,
	})
	require.NoError(t, err)
	require.NoError(t, s.InsertRoleGrant(ctx, &store.RoleGrant{
		ID: "grant-root", UserID: admin.ID, Role: store.RoleAdmin, CreatedAt: time.Now(),
	}))
	tok, err := provider.IssueToken(admin.ID)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	Register(server, NewServer(svc, nil))
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	s.ResetCalls()
	return &testEnv{
		client:     NewClient(conn),
		conn:       conn,
		store:      s,
		provider:   provider,
		adminID:    admin.ID,
		adminToken: tok.AccessToken,
	}
}

func validRequest() provision.Request {
	return provision.Request{Email: "NEW@Example.com", Password: "longenough1", FullName: "Jane Doe"}
}

func TestCreateAdminUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := WithToken(context.Background(), env.adminToken)

	res, err := env.client.CreateAdminUser(ctx, validRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, res.UserID)
	assert.Equal(t, "new@example.com", res.Email)
	assert.Equal(t, "Jane Doe", res.FullName)

	assert.Contains(t, env.store.Calls(), store.OpInsertRoleGrant)
}

func TestCreateAdminUser_StatusCodes(t *testing.T) {
	env := newTestEnv(t)

	member, err := env.provider.CreateIdentity(context.Background(), auth.CreateIdentityParams{
		Email: "member@example.com", Password: "member-password", EmailConfirmed: true,
	})
	require.NoError(t, err)
	memberTok, err := env.provider.IssueToken(member.ID)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		req   provision.Request
		code  codes.Code
		msg   string
	}{
		{"missing token", "", validRequest(), codes.Unauthenticated, "Missing bearer token"},
		{"bad token", "garbage", validRequest(), codes.Unauthenticated, "Invalid or expired token"},
		{"not admin", memberTok.AccessToken, validRequest(), codes.PermissionDenied, "Forbidden: admin role required"},
		{"invalid email", env.adminToken, provision.Request{Email: "x", Password: "longenough1", FullName: "Jane"}, codes.InvalidArgument, "Invalid email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := WithToken(context.Background(), tt.token)
			_, err := env.client.CreateAdminUser(ctx, tt.req)
			st, ok := status.FromError(err)
			require.True(t, ok)
			assert.Equal(t, tt.code, st.Code())
			assert.Equal(t, tt.msg, st.Message())
		})
	}
}

func TestCreateAdminUser_RoleCheckFailure(t *testing.T) {
	env := newTestEnv(t)
	env.store.FailOn(store.OpHasRole, errors.New("timeout"))

	_, err := env.client.CreateAdminUser(WithToken(context.Background(), env.adminToken), validRequest())
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestCreateAdminUser_NonStringField(t *testing.T) {
	env := newTestEnv(t)

	in, err := structpb.NewStruct(map[string]any{"email": 42.0, "password": "longenough1", "fullName": "Jane"})
	require.NoError(t, err)

	err = env.conn.Invoke(WithToken(context.Background(), env.adminToken), CreateAdminUserMethod, in, new(structpb.Struct))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.NotContains(t, env.store.Calls(), store.OpCreateIdentity)
}

func TestListAndRevoke(t *testing.T) {
	env := newTestEnv(t)
	ctx := WithToken(context.Background(), env.adminToken)

	res, err := env.client.CreateAdminUser(ctx, validRequest())
	require.NoError(t, err)

	admins, err := env.client.ListAdmins(ctx)
	require.NoError(t, err)
	require.Len(t, admins, 2)
	assert.Equal(t, res.UserID, admins[1].UserID)
	assert.False(t, admins[1].GrantedAt.IsZero())

	require.NoError(t, env.client.RevokeAdmin(ctx, res.UserID))

	err = env.client.RevokeAdmin(ctx, res.UserID)
	assert.Equal(t, codes.NotFound, status.Code(err))

	admins, err = env.client.ListAdmins(ctx)
	require.NoError(t, err)
	assert.Len(t, admins, 1)
}

func TestRevokeAdmin_Self(t *testing.T) {
	env := newTestEnv(t)

	err := env.client.RevokeAdmin(WithToken(context.Background(), env.adminToken), env.adminID)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{&provision.AuthenticationError{Message: "x"}, codes.Unauthenticated},
		{&provision.PermissionCheckError{Message: "x"}, codes.Internal},
		{&provision.AuthorizationError{Message: "x"}, codes.PermissionDenied},
		{&provision.ValidationError{Message: "x"}, codes.InvalidArgument},
		{&provision.CreationError{Message: "x"}, codes.InvalidArgument},
		{&provision.NotFoundError{Message: "x"}, codes.NotFound},
		{&provision.InternalError{Message: "x"}, codes.Internal},
		{errors.New("foreign"), codes.Internal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CodeOf(tt.err), "%T", tt.err)
	}
}

func TestToStatus_HidesForeignErrors(t *testing.T) {
	s := NewServer(nil, nil)
	err := s.toStatus(errors.New("db password is hunter2"))
	st, _ := status.FromError(err)
	assert.Equal(t, "Unexpected error", st.Message())
}

func TestWithToken_Empty(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, WithToken(ctx, ""))
}
