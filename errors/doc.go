// Package errors provides the structured error taxonomy of the reporting agent.
//
// # Error Categories
//
//   - Transient: publish timeouts, broker unavailable
//   - Permanent: bad caller arguments, already started, period too short
//   - Resource: report buffer could not be allocated
//   - Internal: broken invariants and unexpected failures
//
// # Usage
//
// Synchronous API failures are returned as *Error:
//
//	if err := agent.SetPeriod(60); errors.Is(err, errors.ErrCodePeriodTooShort) {
//	    // keep the current period
//	}
//
// Wrapping keeps the code of an inner *Error; context errors map to
// TIMEOUT and CANCELED; anything else becomes INTERNAL:
//
//	return errors.Wrap(err, "building report")
//
// Failures that happen inside a reporting tick are never returned to a caller.
// They are delivered to the agent's callback as events.
package errors
