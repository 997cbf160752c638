package shutdown

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	deferrors "github.com/vinayprograms/defender/errors"
	"github.com/vinayprograms/defender/logging"
)

func TestShutdown_SingleHandler(t *testing.T) {
	coord := NewCoordinator(DefaultConfig())

	called := false
	coord.RegisterFunc("agent", PhaseAgent, func(ctx context.Context) error {
		called = true
		return nil
	})

	if err := coord.ShutdownWithTimeout(5 * time.Second); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !called {
		t.Fatal("expected handler to be called")
	}

	select {
	case <-coord.Done():
	default:
		t.Fatal("expected Done channel to be closed")
	}

	result := coord.Result()
	if result == nil || len(result.Results) != 1 {
		t.Fatalf("Result() = %+v", result)
	}
	if result.Results[0].Name != "agent" || result.Results[0].Phase != PhaseAgent {
		t.Errorf("handler result = %+v", result.Results[0])
	}
	if result.Failed() {
		t.Error("expected Failed() to be false")
	}
}

func TestShutdown_PhaseOrder(t *testing.T) {
	coord := NewCoordinator(DefaultConfig())

	var mu sync.Mutex
	var order []string
	record := func(name string) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	coord.RegisterFunc("telemetry", PhaseTelemetry, record("telemetry"))
	coord.RegisterFunc("bus", PhaseTransport, record("bus"))
	coord.RegisterFunc("agent", PhaseAgent, record("agent"))

	if err := coord.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown error: %v", err)
	}
	if got := strings.Join(order, ","); got != "agent,bus,telemetry" {
		t.Errorf("order = %s, want agent,bus,telemetry", got)
	}
}

func TestShutdown_SamePhaseConcurrent(t *testing.T) {
	coord := NewCoordinator(DefaultConfig())

	var running, peak atomic.Int32
	slow := func(context.Context) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		return nil
	}
	coord.RegisterFunc("bus", PhaseTransport, slow)
	coord.RegisterFunc("ledger", PhaseTransport, slow)

	coord.Shutdown(context.Background())
	if peak.Load() != 2 {
		t.Errorf("peak concurrency = %d, want 2", peak.Load())
	}
}

func TestShutdown_HandlerError(t *testing.T) {
	tests := []struct {
		name            string
		continueOnError bool
		wantLaterCalled bool
	}{
		{"continue", true, true},
		{"stop", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.ContinueOnError = tt.continueOnError
			coord := NewCoordinator(cfg)

			later := false
			coord.RegisterFunc("bus", PhaseTransport, func(context.Context) error {
				return errors.New("close failed")
			})
			coord.RegisterFunc("telemetry", PhaseTelemetry, func(context.Context) error {
				later = true
				return nil
			})

			err := coord.Shutdown(context.Background())
			if !errors.Is(err, ErrHandlerFailed) {
				t.Fatalf("Shutdown() = %v, want ErrHandlerFailed", err)
			}
			if later != tt.wantLaterCalled {
				t.Errorf("later phase called = %v, want %v", later, tt.wantLaterCalled)
			}
			if failed := coord.Result().FailedHandlers(); len(failed) != 1 || failed[0] != "bus" {
				t.Errorf("FailedHandlers() = %v", failed)
			}
		})
	}
}

func TestShutdown_HandlerPanic(t *testing.T) {
	coord := NewCoordinator(DefaultConfig())

	closed := false
	coord.RegisterFunc("agent", PhaseAgent, func(context.Context) error {
		panic("agent stop exploded")
	})
	coord.RegisterFunc("bus", PhaseTransport, func(context.Context) error {
		closed = true
		return nil
	})

	err := coord.Shutdown(context.Background())
	if !errors.Is(err, ErrHandlerFailed) {
		t.Fatalf("Shutdown() = %v, want ErrHandlerFailed", err)
	}
	if !closed {
		t.Error("later phase did not run after a panic")
	}
	r := coord.Result().Results[0]
	if !deferrors.Is(r.Err, deferrors.ErrCodePanic) {
		t.Errorf("panic result = %v, want PANIC", r.Err)
	}
	if !strings.Contains(r.Err.Error(), "agent stop exploded") {
		t.Errorf("panic message lost: %q", r.Err.Error())
	}
}

func TestBlocking_Panic(t *testing.T) {
	h := Blocking(func() { panic("stop failed") })
	err := h.OnShutdown(context.Background())
	if !deferrors.Is(err, deferrors.ErrCodePanic) {
		t.Errorf("OnShutdown() = %v, want PANIC", err)
	}
}

func TestShutdown_Timeout(t *testing.T) {
	coord := NewCoordinator(DefaultConfig())

	coord.Register("agent", PhaseAgent, Blocking(func() { time.Sleep(time.Second) }))
	nextCalled := false
	coord.RegisterFunc("bus", PhaseTransport, func(context.Context) error {
		nextCalled = true
		return nil
	})

	err := coord.ShutdownWithTimeout(30 * time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Shutdown() = %v, want ErrTimeout", err)
	}
	if nextCalled {
		t.Error("phase after timeout was run")
	}
	if r := coord.Result().Results[0]; !errors.Is(r.Err, context.DeadlineExceeded) {
		t.Errorf("blocking handler error = %v", r.Err)
	}
}

func TestShutdown_OnlyOnce(t *testing.T) {
	coord := NewCoordinator(DefaultConfig())

	var calls atomic.Int32
	release := make(chan struct{})
	coord.RegisterFunc("agent", PhaseAgent, func(context.Context) error {
		calls.Add(1)
		<-release
		return nil
	})

	first := make(chan error, 1)
	go func() { first <- coord.Shutdown(context.Background()) }()
	time.Sleep(20 * time.Millisecond)

	if err := coord.Shutdown(context.Background()); !errors.Is(err, ErrAlreadyShutdown) {
		t.Errorf("concurrent Shutdown() = %v, want ErrAlreadyShutdown", err)
	}
	close(release)
	if err := <-first; err != nil {
		t.Fatalf("first Shutdown() = %v", err)
	}
	if err := coord.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() after completion = %v, want nil", err)
	}
	if calls.Load() != 1 {
		t.Errorf("handler called %d times, want 1", calls.Load())
	}
}

func TestShutdown_Trigger(t *testing.T) {
	coord := NewCoordinator(DefaultConfig())
	called := make(chan struct{})
	coord.RegisterFunc("agent", PhaseAgent, func(context.Context) error {
		close(called)
		return nil
	})

	coord.HandleSignals()
	coord.Trigger()

	select {
	case <-coord.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown not triggered")
	}
	select {
	case <-called:
	default:
		t.Error("handler not called")
	}
}

func TestShutdown_LogsHandlers(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New()
	logger.SetOutput(&buf)

	cfg := DefaultConfig()
	cfg.Logger = logger
	coord := NewCoordinator(cfg)
	coord.Register("bus", PhaseTransport, Closer(func() error { return nil }))
	coord.Register("ledger", PhaseTransport, Closer(func() error { return errors.New("closed twice") }))
	coord.Shutdown(context.Background())

	out := buf.String()
	if !strings.Contains(out, "shutdown_handler_done") || !strings.Contains(out, "handler=bus") {
		t.Errorf("missing success line in %q", out)
	}
	if !strings.Contains(out, "shutdown_handler_failed") || !strings.Contains(out, "closed twice") {
		t.Errorf("missing failure line in %q", out)
	}
}

func TestShutdown_ResultBeforeDone(t *testing.T) {
	coord := NewCoordinator(DefaultConfig())
	if coord.Result() != nil || coord.Err() != nil {
		t.Error("Result/Err should be nil before shutdown")
	}
}

func TestShutdown_Empty(t *testing.T) {
	coord := NewCoordinator(Config{})
	if err := coord.ShutdownWithTimeout(0); err != nil {
		t.Fatalf("empty shutdown error: %v", err)
	}
	if len(coord.Result().Results) != 0 {
		t.Error("expected no results")
	}
}

func TestGroupByPhase(t *testing.T) {
	regs := []registration{
		{name: "a", phase: 10},
		{name: "b", phase: 10},
		{name: "c", phase: 20},
		{name: "d", phase: 30},
	}
	groups := groupByPhase(regs)
	if len(groups) != 3 || len(groups[0]) != 2 || groups[2][0].name != "d" {
		t.Errorf("groups = %+v", groups)
	}
	if groupByPhase(nil) != nil {
		t.Error("expected nil for no handlers")
	}
}
