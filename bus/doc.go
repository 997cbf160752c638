// Package bus provides publish/subscribe clients for shipping device reports.
//
// # Available Implementations
//
//   - NATSBus: production transport using NATS
//   - MemoryBus: in-memory implementation for tests and single-process use
//
// # Pattern
//
// A reporter publishes a report and flushes to confirm delivery to the
// server; a remote service answers on sibling topics:
//
//	sub, _ := b.Subscribe(topic + "/accepted")
//	b.Publish(topic, report)
//	if err := b.Flush(5 * time.Second); err != nil {
//	    // publish not confirmed
//	}
//	for msg := range sub.Messages() {
//	    // handle acknowledgement
//	}
//
// Slow consumers lose messages: a full subscription buffer drops new
// deliveries rather than blocking the publisher.
package bus
