// Package defender runs a periodic device-telemetry reporting agent.
//
// # Overview
//
// An Agent snapshots the enabled metrics groups once per period, encodes
// them into a CBOR report, publishes the report on the device's metrics
// topic and hands the service's verdict to a user callback:
//
//	$aws/things/<device>/defender/metrics/cbor            report
//	$aws/things/<device>/defender/metrics/cbor/accepted   verdict
//	$aws/things/<device>/defender/metrics/cbor/rejected   verdict
//
// # Usage
//
//	agent := defender.New(msgBus,
//	    defender.WithLogger(logger),
//	    defender.WithLedger(ledger.New(store)),
//	)
//	agent.SetMetrics(metrics.GroupTCPConnections, metrics.TCPEstablished)
//	err := agent.Start(ctx, "thing-1", func(ev defender.Event, rep, ack []byte) {
//	    if ev == defender.EventMQTTFailure {
//	        // reporting has stopped until Stop and Start are called again
//	    }
//	})
//	...
//	agent.Stop()
//
// # Failure handling
//
// A tick that cannot build or publish its report unsubscribes, fires the
// callback once with EventReportBuildFailure or EventMQTTFailure and no
// payload, and never ticks again. The agent stays started until Stop.
//
// # Callbacks
//
// Verdict callbacks run on the transport's delivery goroutines. Failure
// callbacks run on the reporting loop while it holds the publish gate.
// A callback must not call Stop synchronously; hand the decision to
// another goroutine instead.
package defender
