package defender

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vinayprograms/defender/bus"
	"github.com/vinayprograms/defender/clock"
	"github.com/vinayprograms/defender/errors"
	"github.com/vinayprograms/defender/ledger"
	"github.com/vinayprograms/defender/logging"
	"github.com/vinayprograms/defender/metrics"
	"github.com/vinayprograms/defender/report"
	"github.com/vinayprograms/defender/telemetry"
)

// Reporting period limits, in seconds.
const (
	DefaultPeriodSeconds uint32 = 300
	MinPeriodSeconds     uint32 = 300
)

// Default timeouts.
const (
	DefaultPublishTimeout   = 5 * time.Second
	DefaultSubscribeTimeout = 5 * time.Second
	DefaultStopGrace        = 2 * time.Second
)

// Agent is one reporting agent. The zero value is not usable; call New.
//
// Safe for concurrent use.
type Agent struct {
	bus              bus.MessageBus
	clock            clock.Clock
	logger           *logging.Logger
	tracer           *telemetry.Tracer
	source           metrics.ConnectionSource
	ledger           *ledger.Ledger
	publishTimeout   time.Duration
	subscribeTimeout time.Duration
	stopGrace        time.Duration
	maxReportSize    int

	registry *metrics.Registry
	builder  *report.Builder

	// lifecycle serializes Start and Stop; current is only replaced under it.
	lifecycle sync.Mutex
	current   atomic.Pointer[session]

	state       atomic.Int32
	period      atomic.Uint32
	lastBalance atomic.Int32
}

// Option configures an Agent.
type Option func(*Agent)

// WithClock sets the clock used for report ids and the reporting period.
func WithClock(c clock.Clock) Option {
	return func(a *Agent) { a.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// WithTracer sets the tracer for tick and acknowledgement spans.
func WithTracer(t *telemetry.Tracer) Option {
	return func(a *Agent) { a.tracer = t }
}

// WithConnectionSource sets where TCP connection metrics come from.
func WithConnectionSource(src metrics.ConnectionSource) Option {
	return func(a *Agent) { a.source = src }
}

// WithLedger records every verdict and failure in l.
func WithLedger(l *ledger.Ledger) Option {
	return func(a *Agent) { a.ledger = l }
}

// WithPublishTimeout bounds each report publish.
func WithPublishTimeout(d time.Duration) Option {
	return func(a *Agent) { a.publishTimeout = d }
}

// WithSubscribeTimeout bounds subscribe and unsubscribe confirmation.
func WithSubscribeTimeout(d time.Duration) Option {
	return func(a *Agent) { a.subscribeTimeout = d }
}

// WithStopGrace bounds how long Stop waits for the reporting loop to exit
// once the publish gate is held.
func WithStopGrace(d time.Duration) Option {
	return func(a *Agent) { a.stopGrace = d }
}

// WithMaxReportSize caps the encoded report size.
func WithMaxReportSize(n int) Option {
	return func(a *Agent) { a.maxReportSize = n }
}

// New creates a stopped agent publishing on b. A nil bus is accepted here
// and rejected by Start.
func New(b bus.MessageBus, opts ...Option) *Agent {
	a := &Agent{
		bus:              b,
		clock:            clock.Real(),
		publishTimeout:   DefaultPublishTimeout,
		subscribeTimeout: DefaultSubscribeTimeout,
		stopGrace:        DefaultStopGrace,
		registry:         metrics.NewRegistry(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logging.New().WithComponent("defender")
	}
	if a.tracer == nil {
		a.tracer = telemetry.GetTracer()
	}
	if a.source == nil {
		a.source = metrics.NewSystemSource()
	}
	if a.publishTimeout <= 0 {
		a.publishTimeout = DefaultPublishTimeout
	}
	if a.subscribeTimeout <= 0 {
		a.subscribeTimeout = DefaultSubscribeTimeout
	}
	if a.stopGrace <= 0 {
		a.stopGrace = DefaultStopGrace
	}

	a.builder = report.NewBuilder(a.clock, a.source)
	a.builder.SetMaxSize(a.maxReportSize)
	a.period.Store(DefaultPeriodSeconds)
	a.lastBalance.Store(1)
	return a
}

// Start begins reporting for deviceID. The first report is built right
// away; later ones follow every Period seconds.
//
// ctx supplies values such as the trace parent to every tick. Cancelling it
// does not stop the agent; call Stop.
//
// Start returns AlreadyStarted if the agent is running, InvalidInput for a
// nil bus or a bad device id, and Internal if the verdict topics cannot be
// subscribed. On error nothing is left running.
func (a *Agent) Start(ctx context.Context, deviceID string, cb Callback) error {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	if s := a.current.Load(); s != nil {
		return errors.AlreadyStarted("agent already started", errors.WithMetadata("device", s.deviceID))
	}
	if a.bus == nil {
		return errors.InvalidInput("no message bus")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if cb == nil {
		cb = func(Event, []byte, []byte) {}
	}

	a.state.Store(int32(StateStarting))

	topics, err := NewTopicSet(deviceID)
	if err != nil {
		a.state.Store(int32(StateStopped))
		return err
	}

	s := newSession(a, deviceID, topics, cb)
	if err := s.bridge.subscribe(topics, a.subscribeTimeout, s.onAccepted, s.onRejected); err != nil {
		topics.Destroy()
		a.state.Store(int32(StateStopped))
		return errors.WrapWithCode(err, errors.ErrCodeInternal, "subscribing to verdict topics",
			errors.WithMetadata("device", deviceID))
	}

	a.current.Store(s)
	a.state.Store(int32(StateStarted))
	a.logger.AgentStarted(deviceID, a.periodDuration())

	go s.run(context.WithoutCancel(ctx))
	return nil
}

// Stop ends reporting and releases everything Start acquired. It waits for
// an in-flight tick and for verdict callbacks already running, so no
// callback fires after Stop returns. Stopping a stopped agent is a no-op.
//
// Verdicts that arrive after Stop are dropped.
func (a *Agent) Stop() {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	s := a.current.Load()
	if s == nil {
		a.logger.Debug("stop_ignored", map[string]interface{}{"reason": "not started"})
		return
	}
	a.state.Store(int32(StateStopping))

	s.gate.wait()

	close(s.stop)
	grace := time.NewTimer(a.stopGrace)
	select {
	case <-s.done:
	case <-grace.C:
		a.logger.Warn("loop_exit_timeout", map[string]interface{}{
			"device": s.deviceID,
			"grace":  a.stopGrace.String(),
		})
	}
	grace.Stop()

	if err := s.bridge.unsubscribe(a.subscribeTimeout); err != nil {
		a.logger.Warn("unsubscribe_failed", map[string]interface{}{
			"device": s.deviceID,
			"error":  err.Error(),
		})
	}
	if !s.bridge.drain(a.stopGrace) {
		a.logger.Warn("delivery_drain_timeout", map[string]interface{}{
			"device": s.deviceID,
			"grace":  a.stopGrace.String(),
		})
	}

	if !s.gate.release() {
		a.logger.Error("gate_overflow", map[string]interface{}{"device": s.deviceID})
	}
	a.lastBalance.Store(int32(s.gate.balance()))

	if n := s.close(); n > 0 {
		a.logger.Debug("pending_freed", map[string]interface{}{
			"device": s.deviceID,
			"count":  n,
		})
	}
	s.topics.Destroy()

	a.period.Store(DefaultPeriodSeconds)
	a.registry.Reset()
	a.current.Store(nil)
	a.state.Store(int32(StateStopped))

	a.logger.AgentStopped(s.deviceID, a.clock.Now().Sub(s.startedAt))
}

// SetMetrics enables flags for a metrics group, replacing the previous
// flags. It takes effect at the next tick.
func (a *Agent) SetMetrics(group metrics.Group, flags uint32) error {
	return a.registry.Set(group, flags)
}

// Metrics returns the current flag table.
func (a *Agent) Metrics() metrics.Flags {
	return a.registry.Snapshot()
}

// SetPeriod sets the time between reports. Values below MinPeriodSeconds
// return PeriodTooShort and leave the period unchanged. A running agent
// picks the new period up after its next tick.
func (a *Agent) SetPeriod(seconds uint32) error {
	if seconds < MinPeriodSeconds {
		return errors.PeriodTooShort(seconds, MinPeriodSeconds)
	}
	a.period.Store(seconds)
	return nil
}

// Period returns the time between reports in seconds.
func (a *Agent) Period() uint32 {
	return a.period.Load()
}

func (a *Agent) periodDuration() time.Duration {
	return time.Duration(a.period.Load()) * time.Second
}

// State returns the lifecycle state.
func (a *Agent) State() State {
	return State(a.state.Load())
}

// Started reports whether Start has succeeded without a matching Stop.
// A started agent whose loop failed is still started.
func (a *Agent) Started() bool {
	return a.State() == StateStarted
}

// GateBalance returns the publish gate's ticket count: the live value while
// started, the value recorded just before teardown otherwise. A balanced
// agent reports 1 whenever no tick is running.
func (a *Agent) GateBalance() int {
	if s := a.current.Load(); s != nil {
		return s.gate.balance()
	}
	return int(a.lastBalance.Load())
}

// String describes the agent for logs.
func (a *Agent) String() string {
	s := a.current.Load()
	if s == nil {
		return "defender.Agent(stopped)"
	}
	return fmt.Sprintf("defender.Agent(%s, %s)", s.deviceID, a.State())
}
