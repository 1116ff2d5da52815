// Package provision creates and manages administrator accounts.
//
// ProvisionAdmin runs six steps in order and stops at the first failure:
//
//  1. Resolve the bearer token to an identity (AuthenticationError, 401)
//  2. Check the caller holds "admin" (PermissionCheckError 500, AuthorizationError 403)
//  3. Validate email, password and full name (ValidationError, 400)
//  4. Create the identity with a pre-confirmed email (CreationError, 400)
//  5. Upsert the profile keyed by the identity ID (CreationError, 400)
//  6. Insert the admin role grant (CreationError, 400)
//
// The three writes are independent calls with no shared transaction. By
// default a failure in step 5 or 6 leaves the earlier records in place; with
// Options.RollbackOnFailure the service deletes them and reports the outcome
// on the CreationError.
//
// Options.RoleGrantPolicy selects between always inserting a grant (append)
// and skipping the insert when the user is already an admin (skip_existing).
//
// Every error returned by the service implements Error; StatusCode and
// KindOf map it for transports.
package provision
