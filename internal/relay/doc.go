// Package relay mirrors broadcast messages onto NATS for downstream
// consumers.
//
// Each relayed topic is a broadcast observer ("relay:<topic>") with its own
// bounded QueueSink and drain goroutine, publishing the envelope bytes
// unchanged to subject "<prefix>.<topic>" (":" in vendor topics becomes ".").
// A relay observer evicted for falling behind is re-registered; messages
// lost in the overflow are not replayed.
package relay
