// Package auth verifies identity-service tokens and maps roles to
// permissions.
//
// Tokens are HS256 JWTs issued elsewhere. Verify checks the signature, the
// expiry, the optional issuer and that the token names a subject with at
// least one known role. The resulting Principal is attached to the request
// context by the API middleware.
//
// Roles are cumulative:
//
//	viewer    read events, devices, zones; observe broadcasts
//	operator  viewer + create events, respond, change event status
//	admin     operator + manage devices and zones, read the audit trail
package auth
