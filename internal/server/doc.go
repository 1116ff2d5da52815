// Package server runs cap360-server.
//
// New wires the configured store backend, the JWT identity provider and the
// provisioning service, then exposes them through two servers:
//
//   - gRPC: cap360.admin.v1.AdminProvisioning plus grpc.health.v1, with
//     keepalive and otelgrpc instrumentation
//   - HTTP: the httpapi router
//
// Listeners are plain TCP on server.grpc_addr and server.http_addr, or a
// tailscale tsnet node when tailscale.enabled is set. On the tailnet gRPC
// listens on :50051 and HTTP on :80, :443 with tailnet certificates
// (tailscale.https), or :443 through Funnel (tailscale.funnel).
//
// Run blocks until its context is canceled or a server fails, then shuts
// everything down within five seconds and closes the store and the telemetry
// provider.
package server
