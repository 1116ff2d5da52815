// Package httpapi exposes admin provisioning over HTTP.
//
// # Routes
//
//	OPTIONS /functions/v1/create-admin-user  CORS preflight, answers {}
//	POST    /functions/v1/create-admin-user  provision a new admin (201)
//	GET     /api/admins                       list admins
//	DELETE  /api/admins/{userID}              revoke the admin role (204)
//	POST    /auth/token                       sign in with email and password
//	GET     /health                           liveness
//	GET     /health/ready                     store ping
//
// Every protected route takes "Authorization: Bearer <token>". Failures are
// reported as {"error": "..."} with the status from provision.StatusCode.
//
// For the create endpoint the caller is authorized before the body is read,
// so a malformed body from an unauthenticated caller is reported as 401 and
// not 400.
package httpapi
