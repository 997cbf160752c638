package defender

import "fmt"

// Event tells a Callback why it was invoked.
type Event int

const (
	// EventAccepted: the service accepted a report. The callback receives
	// the report bytes and the acknowledgement payload.
	EventAccepted Event = iota

	// EventRejected: the service rejected a report. The report bytes are
	// passed when the report is still live.
	EventRejected

	// EventMQTTFailure: a report could not be published. Reporting has
	// stopped.
	EventMQTTFailure

	// EventReportBuildFailure: a report could not be built. Reporting has
	// stopped.
	EventReportBuildFailure
)

var eventNames = map[Event]string{
	EventAccepted:           "accepted",
	EventRejected:           "rejected",
	EventMQTTFailure:        "mqtt_failure",
	EventReportBuildFailure: "report_build_failure",
}

func (e Event) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// Failure reports whether the event ends reporting.
func (e Event) Failure() bool {
	return e == EventMQTTFailure || e == EventReportBuildFailure
}

// Callback receives report verdicts and failures. report and ack are nil
// when not applicable. Neither slice may be retained after return.
type Callback func(event Event, report []byte, ack []byte)

// State is the agent's lifecycle state.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateStarted
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateStarted:
		return "started"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}
