// Package broadcast fans pipeline messages out to connected observers.
//
// The Registry tracks which observers exist and which topics each one
// wants. The Router publishes a message to every observer subscribed to its
// topic (an observer with no subscriptions receives everything).
//
// # Delivery
//
// Delivery is best-effort and at-most-once per observer. Sinks are bounded
// queues: Publish never blocks on a slow observer. When a sink is full,
// closed, or fails in any other way, only that observer is deregistered and
// its sink closed; it must reconnect and resubscribe. Messages to a single
// observer arrive in publish order.
//
// # Locking
//
// The Registry holds one RWMutex. Snapshots are copied under the read lock
// and no sink I/O ever happens while it is held.
package broadcast
