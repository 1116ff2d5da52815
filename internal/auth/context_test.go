// ABOUTME: Unit tests for authentication context functions
// ABOUTME: Tests AuthContext, IsAdmin, and context propagation helpers

package auth

import (
	"context"
	"testing"
)

func TestAuthContext_IsAdmin(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
		want  bool
	}{
		{name: "admin role", roles: []string{"admin"}, want: true},
		{name: "admin with other roles", roles: []string{"member", "admin"}, want: true},
		{name: "no roles", roles: nil, want: false},
		{name: "other roles only", roles: []string{"member", "viewer"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &AuthContext{IdentityID: "identity-1", Roles: tt.roles}
			if got := a.IsAdmin(); got != tt.want {
				t.Errorf("IsAdmin() = %v, want %v for roles %v", got, tt.want, tt.roles)
			}
		})
	}
}

func TestWithAuthAndFromContext(t *testing.T) {
	ctx := context.Background()

	if FromContext(ctx) != nil {
		t.Fatal("FromContext() on empty context should return nil")
	}

	want := &AuthContext{IdentityID: "identity-1", Email: "a@example.com", Roles: []string{"admin"}}
	ctx = WithAuth(ctx, want)

	got := FromContext(ctx)
	if got != want {
		t.Errorf("FromContext() = %+v, want %+v", got, want)
	}
}
