// Package simulator runs the development producers: a periodic system
// status broadcast and, optionally, mock acoustic and thermal detections
// fed through the ingest gateway.
//
// The status broadcast runs in production too; mock detections are for
// demos and bench testing and are disabled unless an interval is set.
package simulator
