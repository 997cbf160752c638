// Package shutdown stops a reporting process in phases.
//
// Handlers register under a phase number; lower phases run first and
// handlers sharing a phase run concurrently. The agent binary uses:
//
//	PhaseAgent     (10)  stop the reporting agent
//	PhaseTransport (20)  close the message bus and the ledger
//	PhaseTelemetry (30)  flush and shut down tracing
//
// Usage:
//
//	coord := shutdown.NewCoordinator(shutdown.DefaultConfig())
//	coord.Register("agent", shutdown.PhaseAgent, shutdown.Blocking(agent.Stop))
//	coord.Register("bus", shutdown.PhaseTransport, shutdown.Closer(msgBus.Close))
//	coord.HandleSignals()
//	<-coord.Done()
package shutdown

import (
	"context"
	"errors"
	"time"

	deferrors "github.com/vinayprograms/defender/errors"
	"github.com/vinayprograms/defender/logging"
)

// Common errors.
var (
	// ErrAlreadyShutdown indicates shutdown was already initiated.
	ErrAlreadyShutdown = errors.New("shutdown already initiated")

	// ErrTimeout indicates shutdown did not complete within the timeout.
	ErrTimeout = errors.New("shutdown timeout exceeded")

	// ErrHandlerFailed indicates one or more handlers failed.
	ErrHandlerFailed = errors.New("one or more handlers failed")
)

// Standard phases.
const (
	PhaseAgent     = 10
	PhaseTransport = 20
	PhaseTelemetry = 30
)

// Handler is a component that must be shut down.
type Handler interface {
	// OnShutdown releases the component. ctx is cancelled when the
	// shutdown timeout is reached.
	OnShutdown(ctx context.Context) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context) error

// OnShutdown implements Handler.
func (f HandlerFunc) OnShutdown(ctx context.Context) error {
	return f(ctx)
}

// Blocking adapts a function without a context, such as Agent.Stop. The
// handler gives up when ctx ends; fn keeps running in the background.
func Blocking(fn func()) Handler {
	return HandlerFunc(func(ctx context.Context) error {
		done := make(chan error, 1)
		go func() {
			var err error
			defer func() {
				if r := recover(); r != nil {
					err = deferrors.RecoverPanic(r)
				}
				done <- err
			}()
			fn()
		}()
		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

// Closer adapts a Close method.
func Closer(fn func() error) Handler {
	return HandlerFunc(func(context.Context) error {
		return fn()
	})
}

// HandlerResult is the outcome of one handler.
type HandlerResult struct {
	Name     string
	Phase    int
	Duration time.Duration
	Err      error
}

// Result is the outcome of a shutdown.
type Result struct {
	TotalDuration time.Duration
	Results       []HandlerResult
	Err           error
}

// Failed reports whether any handler failed.
func (r *Result) Failed() bool {
	return r.Err != nil
}

// FailedHandlers returns the names of handlers that failed.
func (r *Result) FailedHandlers() []string {
	var failed []string
	for _, hr := range r.Results {
		if hr.Err != nil {
			failed = append(failed, hr.Name)
		}
	}
	return failed
}

// Config configures a Coordinator.
type Config struct {
	// Timeout bounds a signal-triggered shutdown.
	// Default: 30 seconds
	Timeout time.Duration

	// ContinueOnError runs later phases after a handler fails.
	// Default: true
	ContinueOnError bool

	// Logger receives one line per handler. Optional.
	Logger *logging.Logger
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:         30 * time.Second,
		ContinueOnError: true,
	}
}
