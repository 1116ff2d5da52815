// ABOUTME: HTTP surface for admin provisioning, admin management, sign-in and health
// ABOUTME: chi router with CORS, request IDs, JSON panic recovery and otelhttp tracing

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/hireteksolutions/CAP360-MAIN/internal/auth"
	"github.com/hireteksolutions/CAP360-MAIN/internal/provision"
)

// CreateAdminPath is the provisioning endpoint path.
const CreateAdminPath = "/functions/v1/create-admin-user"

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// CORS headers sent on every create-admin response, preflight or not.
const (
	createAdminMethods = "POST, OPTIONS"
	createAdminHeaders = "authorization, x-client-info, apikey, content-type"
)

// AdminService is the provisioning behaviour the HTTP surface needs.
type AdminService interface {
	Authorize(ctx context.Context, token string) (*auth.AuthContext, error)
	Provision(ctx context.Context, req provision.Request) (*provision.Result, error)
	ListAdmins(ctx context.Context, token string) ([]provision.Admin, error)
	RevokeAdmin(ctx context.Context, token, userID string) error
}

// SignInService issues bearer tokens for email and password.
type SignInService interface {
	SignIn(ctx context.Context, email, password string) (*auth.Token, error)
}

// Pinger reports backend readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the HTTP handler.
type Options struct {
	AllowedOrigins []string
	Logger         *slog.Logger
	TracerProvider trace.TracerProvider
}

// Handler serves the HTTP API.
type Handler struct {
	admins AdminService
	signIn SignInService
	pinger Pinger
	logger *slog.Logger
	root   http.Handler
}

// NewHandler builds the router. signIn and pinger may be nil, in which case
// /auth/token is not mounted and /health/ready always reports ready.
func NewHandler(admins AdminService, signIn SignInService, pinger Pinger, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	h := &Handler{
		admins: admins,
		signIn: signIn,
		pinger: pinger,
		logger: logger.With("component", "http"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(h.recoverJSON)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:     origins,
		AllowedMethods:     []string{http.MethodPost, http.MethodGet, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:     []string{"authorization", "x-client-info", "apikey", "content-type"},
		OptionsPassthrough: true,
		MaxAge:             300,
	}))

	r.Get("/health", h.handleHealth)
	r.Get("/health/ready", h.handleReady)

	r.Group(func(cr chi.Router) {
		cr.Use(createAdminCORS(origins))
		cr.Options(CreateAdminPath, h.handlePreflight)
		cr.Post(CreateAdminPath, h.handleCreateAdmin)
	})

	r.Route("/api/admins", func(ar chi.Router) {
		ar.Options("/", h.handlePreflight)
		ar.Options("/{userID}", h.handlePreflight)
		ar.Get("/", h.handleListAdmins)
		ar.Delete("/{userID}", h.handleRevokeAdmin)
	})

	if signIn != nil {
		r.Options("/auth/token", h.handlePreflight)
		r.Post("/auth/token", h.handleSignIn)
	}

	var otelOpts []otelhttp.Option
	if opts.TracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(opts.TracerProvider))
	}
	h.root = otelhttp.NewHandler(r, "cap360-http", otelOpts...)
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.root.ServeHTTP(w, r)
}

// handlePreflight answers OPTIONS before any token or body is looked at.
func (h *Handler) handlePreflight(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct{}{})
}

// handleCreateAdmin runs the provisioning pipeline. The body is decoded only
// after the caller passes the auth and role checks.
func (h *Handler) handleCreateAdmin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := auth.ExtractBearerToken(r.Header.Get("Authorization"))

	caller, err := h.admins.Authorize(ctx, token)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req provision.Request
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.Info("invalid request body", "error", err, "request_id", middleware.GetReqID(ctx))
		sendJSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	result, err := h.admins.Provision(auth.WithAuth(ctx, caller), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// ListAdminsResponse is returned by GET /api/admins.
type ListAdminsResponse struct {
	Admins []provision.Admin `json:"admins"`
}

func (h *Handler) handleListAdmins(w http.ResponseWriter, r *http.Request) {
	token := auth.ExtractBearerToken(r.Header.Get("Authorization"))

	admins, err := h.admins.ListAdmins(r.Context(), token)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ListAdminsResponse{Admins: admins})
}

func (h *Handler) handleRevokeAdmin(w http.ResponseWriter, r *http.Request) {
	token := auth.ExtractBearerToken(r.Header.Get("Authorization"))
	userID := chi.URLParam(r, "userID")

	if err := h.admins.RevokeAdmin(r.Context(), token, userID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SignInRequest is the body of POST /auth/token.
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		sendJSONError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	token, err := h.signIn.SignIn(r.Context(), email, req.Password)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, token)
	case errors.Is(err, auth.ErrInvalidCredentials):
		h.logger.Warn("sign-in failed", "reason", "invalid credentials")
		sendJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrEmailNotConfirmed):
		sendJSONError(w, http.StatusUnauthorized, err.Error())
	default:
		h.logger.Error("sign-in error", "error", err, "request_id", middleware.GetReqID(r.Context()))
		sendJSONError(w, http.StatusInternalServerError, "Unexpected error")
	}
}

// handleHealth returns 200 OK if the server is alive.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if the store answers a ping.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			h.logger.Warn("readiness check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("store unavailable"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// writeError reports a provisioning failure as {"error": message} with the
// taxonomy status. Errors outside the taxonomy are not echoed to the caller.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := provision.StatusCode(err)
	var pe provision.Error
	if !errors.As(err, &pe) {
		h.logger.Error("unexpected error", "error", err, "request_id", middleware.GetReqID(r.Context()))
		sendJSONError(w, http.StatusInternalServerError, "Unexpected error")
		return
	}
	sendJSONError(w, status, pe.Error())
}

var (
	errNullBody     = errors.New("request body is null")
	errTrailingData = errors.New("unexpected data after JSON body")
)

// decodeJSON reads exactly one non-null JSON value from the body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)

	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	if bytes.Equal(raw, []byte("null")) {
		return errNullBody
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errTrailingData
	}
	return json.Unmarshal(raw, v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func sendJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
