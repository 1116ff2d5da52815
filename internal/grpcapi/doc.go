// Package grpcapi exposes admin provisioning over gRPC.
//
// The service is declared by hand rather than generated: requests and
// responses are google.protobuf.Struct values with the same field names as
// the HTTP JSON bodies.
//
//	cap360.admin.v1.AdminProvisioning/CreateAdminUser  {email, password, fullName} -> {user_id, email, full_name}
//	cap360.admin.v1.AdminProvisioning/ListAdmins       {} -> {admins: [...]}
//	cap360.admin.v1.AdminProvisioning/RevokeAdmin      {user_id} -> {user_id, revoked}
//
// The bearer token travels in the "authorization" metadata key. Failures
// carry the provisioning error message with a code from CodeOf.
package grpcapi
