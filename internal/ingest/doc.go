// Package ingest is the event pipeline: validate, deduplicate, persist,
// evaluate response rules, execute commands and fan out to observers.
//
// Every producer (HTTP operators, the vendor bridge, MQTT sensors and the
// simulator) enters through Gateway.Ingest, so they all share one dedup
// window and one ordering:
//
//	validate → assign identity → dedup claim → SaveEvent
//	    → rules.Evaluate → per intent: SaveResponse(pending) → Execute → UpdateResponse
//	    → broadcast event → broadcast responses
//
// Nothing is broadcast for an event that failed to persist. Advisory intents
// are neither persisted nor executed; they are logged and broadcast on the
// responses topic with message type "advisory".
//
// The Gateway also carries the operator surface (respond, status changes,
// device and zone administration) so the HTTP layer stays a thin adapter.
package ingest
