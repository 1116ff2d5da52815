// ABOUTME: Tests for the HTTP API against a real provisioning service over the mock store
// ABOUTME: Covers CORS preflight, status mapping, JSON errors, admin management and sign-in

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hireteksolutions/CAP360-MAIN/internal/auth"
	"github.com/hireteksolutions/CAP360-MAIN/internal/provision"
	"github.com/hireteksolutions/CAP360-MAIN/internal/store"
)

var testSecret = []byte("http-api-test-secret-of-32-bytes")

type testEnv struct {
	handler    *Handler
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
	s.ResetCalls()

	return &testEnv{
		handler:    NewHandler(svc, provider, s, Options{}),
		store:      s,
		provider:   provider,
		adminID:    admin.ID,
		adminToken: tok.AccessToken,
	}
}

func (e *testEnv) do(method, path, token, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, r)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp["error"]
}

const validBody = `{"email":"NEW@Example.com","password":"longenough1","fullName":"Jane Doe"}`

func TestCreateAdmin_Success(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, CreateAdminPath, env.adminToken, validBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var res provision.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.NotEmpty(t, res.UserID)
	assert.Equal(t, "new@example.com", res.Email)
	assert.Equal(t, "Jane Doe", res.FullName)

	has, err := env.store.HasRole(context.Background(), res.UserID, store.RoleAdmin)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestCreateAdmin_MissingToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, CreateAdminPath, "", validBody)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Missing bearer token", errorBody(t, rec))
	assert.Empty(t, env.store.Calls())
}

func TestCreateAdmin_MalformedAuthorizationHeader(t *testing.T) {
	env := newTestEnv(t)

	r := httptest.NewRequest(http.MethodPost, CreateAdminPath, strings.NewReader(validBody))
	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateAdmin_InvalidToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, CreateAdminPath, "not-a-jwt", validBody)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid or expired token", errorBody(t, rec))
}

func TestCreateAdmin_NotAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	member, err := env.provider.CreateIdentity(ctx, auth.CreateIdentityParams{
		Email: "member@example.com", Password: "member-password", EmailConfirmed: true,
	})
	require.NoError(t, err)
	tok, err := env.provider.IssueToken(member.ID)
	require.NoError(t, err)
	env.store.ResetCalls()

	rec := env.do(http.MethodPost, CreateAdminPath, tok.AccessToken, validBody)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NotContains(t, env.store.Calls(), store.OpCreateIdentity)
}

func TestCreateAdmin_RoleCheckFailure(t *testing.T) {
	env := newTestEnv(t)
	env.store.FailOn(store.OpHasRole, errors.New("connection reset"))

	rec := env.do(http.MethodPost, CreateAdminPath, env.adminToken, validBody)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to verify permissions", errorBody(t, rec))
}

func TestCreateAdmin_InvalidJSON(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, CreateAdminPath, env.adminToken, `{"email":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid JSON body", errorBody(t, rec))
	assert.NotContains(t, env.store.Calls(), store.OpCreateIdentity)
}

func TestCreateAdmin_RejectsNonSingleObjectBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"trailing garbage", validBody + `garbage`},
		{"second object", validBody + `{"email":"other@example.com"}`},
		{"null", `null`},
		{"null with whitespace", " null \n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			rec := env.do(http.MethodPost, CreateAdminPath, env.adminToken, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "Invalid JSON body", errorBody(t, rec))
			assert.NotContains(t, env.store.Calls(), store.OpCreateIdentity)
		})
	}
}

func TestCreateAdmin_TrailingWhitespaceAccepted(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, CreateAdminPath, env.adminToken, validBody+"\n\t ")
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestCreateAdmin_InvalidJSONWithoutTokenIsUnauthorized(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, CreateAdminPath, "", `{"email":`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateAdmin_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad email", `{"email":"nope","password":"longenough1","fullName":"Jane Doe"}`, "Invalid email"},
		{"short password", `{"email":"a@b.co","password":"short","fullName":"Jane Doe"}`, "Password must be at least 8 characters"},
		{"short name", `{"email":"a@b.co","password":"longenough1","fullName":" J "}`, "Full name must be at least 2 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			rec := env.do(http.MethodPost, CreateAdminPath, env.adminToken, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, errorBody(t, rec))
			assert.NotContains(t, env.store.Calls(), store.OpCreateIdentity)
		})
	}
}

func TestCreateAdmin_DuplicateEmail(t *testing.T) {
	env := newTestEnv(t)

	first := env.do(http.MethodPost, CreateAdminPath, env.adminToken, validBody)
	require.Equal(t, http.StatusCreated, first.Code)

	second := env.do(http.MethodPost, CreateAdminPath, env.adminToken, validBody)
	assert.Equal(t, http.StatusBadRequest, second.Code)
	assert.Equal(t, store.ErrEmailExists.Error(), errorBody(t, second))
}

func TestCreateAdmin_ProfileFailurePassesMessageThrough(t *testing.T) {
	env := newTestEnv(t)
	env.store.FailOn(store.OpUpsertProfile, errors.New("disk full"))

	rec := env.do(http.MethodPost, CreateAdminPath, env.adminToken, validBody)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Failed to upsert profile: disk full", errorBody(t, rec))
	assert.NotContains(t, env.store.Calls(), store.OpInsertRoleGrant)
}

func TestCreateAdmin_Preflight(t *testing.T) {
	env := newTestEnv(t)

	r := httptest.NewRequest(http.MethodOptions, CreateAdminPath, nil)
	r.Header.Set("Origin", "https://admin.example.com")
	r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	r.Header.Set("Access-Control-Request-Headers", "authorization, content-type")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusOK, rec.Code)
	assertCreateAdminCORS(t, rec, "*")
	assert.JSONEq(t, `{}`, rec.Body.String())
	assert.Empty(t, env.store.Calls(), "preflight must not touch the token or store")
}

func assertCreateAdminCORS(t *testing.T, rec *httptest.ResponseRecorder, origin string) {
	t.Helper()
	assert.Equal(t, origin, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "authorization, x-client-info, apikey, content-type", rec.Header().Get("Access-Control-Allow-Headers"))
}

func TestCreateAdmin_PlainOptions(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodOptions, CreateAdminPath, "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{}`, rec.Body.String())
	assertCreateAdminCORS(t, rec, "*")
}

func TestCreateAdmin_OptionsWithOriginOnly(t *testing.T) {
	env := newTestEnv(t)

	r := httptest.NewRequest(http.MethodOptions, CreateAdminPath, nil)
	r.Header.Set("Origin", "https://admin.example.com")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusOK, rec.Code)
	assertCreateAdminCORS(t, rec, "*")
	assert.Empty(t, env.store.Calls())
}

func TestCreateAdmin_CORSOnErrorResponse(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, CreateAdminPath, "", validBody)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assertCreateAdminCORS(t, rec, "*")
}

func TestCreateAdmin_CORSRestrictedOrigins(t *testing.T) {
	env := newTestEnv(t)
	svc := provision.NewService(env.provider, env.store, provision.Options{})
	h := NewHandler(svc, env.provider, env.store, Options{
		AllowedOrigins: []string{"https://admin.example.com", "https://*.cap360.test"},
	})

	tests := []struct {
		origin string
		want   string
	}{
		{origin: "https://admin.example.com", want: "https://admin.example.com"},
		{origin: "https://ops.cap360.test", want: "https://ops.cap360.test"},
		{origin: "https://evil.example.org", want: ""},
		{origin: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodOptions, CreateAdminPath, nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, r)

			assert.Equal(t, http.StatusOK, rec.Code)
			assertCreateAdminCORS(t, rec, tt.want)
		})
	}
}

func TestCreateAdmin_CORSOnActualRequest(t *testing.T) {
	env := newTestEnv(t)

	r := httptest.NewRequest(http.MethodPost, CreateAdminPath, strings.NewReader(validBody))
	r.Header.Set("Origin", "https://admin.example.com")
	r.Header.Set("Authorization", "Bearer "+env.adminToken)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCreateAdmin_MethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, CreateAdminPath, env.adminToken, "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestListAdmins(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, CreateAdminPath, env.adminToken, validBody).Code)

	rec := env.do(http.MethodGet, "/api/admins", env.adminToken, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ListAdminsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Admins, 2)
	assert.Equal(t, "new@example.com", resp.Admins[1].Email)
}

func TestListAdmins_Unauthorized(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/admins", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRevokeAdmin(t *testing.T) {
	env := newTestEnv(t)
	created := env.do(http.MethodPost, CreateAdminPath, env.adminToken, validBody)
	require.Equal(t, http.StatusCreated, created.Code)
	var res provision.Result
	require.NoError(t, json.NewDecoder(created.Body).Decode(&res))

	rec := env.do(http.MethodDelete, "/api/admins/"+res.UserID, env.adminToken, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	again := env.do(http.MethodDelete, "/api/admins/"+res.UserID, env.adminToken, "")
	assert.Equal(t, http.StatusNotFound, again.Code)
	assert.Equal(t, "User is not an admin", errorBody(t, again))
}

func TestRevokeAdmin_Self(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodDelete, "/api/admins/"+env.adminID, env.adminToken, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSignIn(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/auth/token", "", `{"email":"ROOT@example.com","password":"root-password"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var tok auth.Token
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&tok))
	assert.Equal(t, "bearer", tok.TokenType)
	assert.Equal(t, env.adminID, tok.UserID)

	// The issued token works against the protected API
	list := env.do(http.MethodGet, "/api/admins", tok.AccessToken, "")
	assert.Equal(t, http.StatusOK, list.Code)
}

func TestSignIn_Failures(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/auth/token", "", `{"email":"root@example.com","password":"wrong-password"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid login credentials", errorBody(t, rec))

	rec = env.do(http.MethodPost, "/auth/token", "", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/auth/token", "", `{"email":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSignIn_RejectsNonSingleObjectBody(t *testing.T) {
	env := newTestEnv(t)

	for _, body := range []string{
		`{"email":"root@example.com","password":"root-password"} trailing`,
		`{"email":"root@example.com","password":"root-password"}{}`,
		`null`,
	} {
		rec := env.do(http.MethodPost, "/auth/token", "", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "Invalid JSON body", errorBody(t, rec), body)
	}
}

func TestSignIn_UnconfirmedEmail(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.provider.CreateIdentity(context.Background(), auth.CreateIdentityParams{
		Email: "pending@example.com", Password: "pending-password",
	})
	require.NoError(t, err)

	rec := env.do(http.MethodPost, "/auth/token", "", `{"email":"pending@example.com","password":"pending-password"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = env.do(http.MethodGet, "/health/ready", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	env.store.FailOn(store.OpPing, errors.New("gone"))
	rec = env.do(http.MethodGet, "/health/ready", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type panickingService struct{ AdminService }

func (panickingService) Authorize(ctx context.Context, token string) (*auth.AuthContext, error) {
	panic("boom")
}

func TestRecoverJSON(t *testing.T) {
	h := NewHandler(panickingService{}, nil, nil, Options{})

	r := httptest.NewRequest(http.MethodPost, CreateAdminPath, bytes.NewReader([]byte(validBody)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Unexpected error", errorBody(t, rec))
}

type foreignErrorService struct{ AdminService }

func (foreignErrorService) ListAdmins(ctx context.Context, token string) ([]provision.Admin, error) {
	return nil, errors.New("secret internal detail")
}

func TestWriteError_HidesForeignErrors(t *testing.T) {
	h := NewHandler(foreignErrorService{}, nil, nil, Options{})

	r := httptest.NewRequest(http.MethodGet, "/api/admins", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Unexpected error", errorBody(t, rec))
}

func TestSignInRouteAbsentWithoutService(t *testing.T) {
	h := NewHandler(foreignErrorService{}, nil, nil, Options{})

	r := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
