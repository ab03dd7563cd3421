// Package api implements the HTTP REST API and observer WebSocket for Perimeter Core.
//
// This package provides:
//   - REST endpoints for events, manual responses, devices, zones and the audit trail
//   - The observer protocol: a WebSocket fed by the broadcast registry
//   - Bearer token authentication with role-based permissions
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//   - TLS support for production deployments
//
// # Architecture
//
// Every operation is delegated to the ingest gateway; handlers only decode,
// authorise, audit and map errors onto HTTP status codes. Observers are
// ordinary broadcast registry entries backed by a bounded queue, so a slow
// browser is evicted exactly like any other observer.
//
// # Security
//
// Tokens are issued by an external identity service and verified locally.
// The WebSocket endpoint takes the token as a query parameter because
// browsers cannot set headers on the upgrade request.
package api
