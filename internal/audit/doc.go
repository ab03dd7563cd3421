// Package audit records operator actions in the audit_logs table.
//
// Every state-changing API call made by a verified principal is recorded:
// event creation, manual responses, event status changes, device creation,
// device status updates and zone creation. Recording is best effort; a
// failed write is logged and never fails the operation it describes.
package audit
