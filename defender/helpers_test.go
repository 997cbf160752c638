package defender

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vinayprograms/defender/bus"
	"github.com/vinayprograms/defender/clock"
	"github.com/vinayprograms/defender/logging"
	"github.com/vinayprograms/defender/metrics"
	"github.com/vinayprograms/defender/report"
	"github.com/vinayprograms/defender/telemetry"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

const (
	testDevice  = "thing-1"
	waitTimeout = 2 * time.Second
	quiet       = 50 * time.Millisecond
)

func newTestAgent(t *testing.T, b bus.MessageBus, opts ...Option) (*Agent, *clock.FakeClock) {
	t.Helper()
	clk := clock.Fake(epoch)
	base := []Option{
		WithClock(clk),
		WithLogger(logging.Nop()),
		WithTracer(telemetry.NoopTracer()),
		WithConnectionSource(metrics.NewStaticSource()),
		WithStopGrace(time.Second),
	}
	a := New(b, append(base, opts...)...)
	t.Cleanup(a.Stop)
	return a, clk
}

func mustTopics(t *testing.T, deviceID string) *TopicSet {
	t.Helper()
	topics, err := NewTopicSet(deviceID)
	if err != nil {
		t.Fatalf("NewTopicSet error: %v", err)
	}
	return topics
}

// --- Callback recorder ---

type call struct {
	event  Event
	report []byte
	ack    []byte
}

type recorder struct {
	ch chan call
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan call, 64)}
}

func (r *recorder) callback(event Event, rep, ack []byte) {
	r.ch <- call{
		event:  event,
		report: append([]byte(nil), rep...),
		ack:    append([]byte(nil), ack...),
	}
}

func (r *recorder) next(t *testing.T) call {
	t.Helper()
	select {
	case c := <-r.ch:
		return c
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for callback")
		return call{}
	}
}

func (r *recorder) none(t *testing.T) {
	t.Helper()
	select {
	case c := <-r.ch:
		t.Fatalf("unexpected callback: %v", c.event)
	case <-time.After(quiet):
	}
}

// --- Fake remote service ---

type verdict int

const (
	verdictNone verdict = iota
	verdictAccept
	verdictReject
)

// fakeService receives reports and answers on the verdict topics.
type fakeService struct {
	bus     bus.MessageBus
	topics  *TopicSet
	verdict verdict
	reports chan []byte
}

func startService(t *testing.T, b bus.MessageBus, deviceID string, v verdict) *fakeService {
	t.Helper()
	s := &fakeService{
		bus:     b,
		topics:  mustTopics(t, deviceID),
		verdict: v,
		reports: make(chan []byte, 64),
	}
	sub, err := b.Subscribe(s.topics.Publish)
	if err != nil {
		t.Fatalf("service subscribe error: %v", err)
	}
	t.Cleanup(func() { sub.Unsubscribe() })

	go func() {
		for msg := range sub.Messages() {
			s.reports <- msg.Data
			s.answer(msg.Data)
		}
	}()
	return s
}

func (s *fakeService) answer(data []byte) {
	id, _ := report.ReportID(data)
	switch s.verdict {
	case verdictAccept:
		s.send(s.topics.Accepted, report.Ack{ReportID: id, Status: report.StatusAccepted})
	case verdictReject:
		s.send(s.topics.Rejected, report.Ack{
			ReportID:     id,
			Status:       report.StatusRejected,
			ErrorCode:    "Throttled",
			ErrorMessage: "Report was throttled",
		})
	}
}

func (s *fakeService) send(topic string, ack report.Ack) {
	payload, err := report.EncodeAck(ack)
	if err != nil {
		panic(err)
	}
	s.bus.Publish(topic, payload)
}

func (s *fakeService) next(t *testing.T) []byte {
	t.Helper()
	select {
	case data := <-s.reports:
		return data
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for report")
		return nil
	}
}

func (s *fakeService) none(t *testing.T) {
	t.Helper()
	select {
	case <-s.reports:
		t.Fatal("unexpected report")
	case <-time.After(quiet):
	}
}

// --- Fault-injecting bus ---

// faultBus wraps a MemoryBus with switchable failures and an optional
// hold on report publishes.
type faultBus struct {
	*bus.MemoryBus

	mu           sync.Mutex
	publishErr   error
	flushErr     error
	subscribeErr map[string]error
	entered      chan string
	release      chan struct{}
}

func newFaultBus() *faultBus {
	return &faultBus{
		MemoryBus:    bus.NewMemoryBus(bus.DefaultConfig()),
		subscribeErr: make(map[string]error),
	}
}

func (f *faultBus) setPublishErr(err error) {
	f.mu.Lock()
	f.publishErr = err
	f.mu.Unlock()
}

func (f *faultBus) setFlushErr(err error) {
	f.mu.Lock()
	f.flushErr = err
	f.mu.Unlock()
}

func (f *faultBus) failSubscribe(subject string, err error) {
	f.mu.Lock()
	if err == nil {
		delete(f.subscribeErr, subject)
	} else {
		f.subscribeErr[subject] = err
	}
	f.mu.Unlock()
}

// hold makes report publishes block until the test sends on release.
// entered receives the subject of every held publish.
func (f *faultBus) hold() (entered <-chan string, release chan<- struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entered = make(chan string, 16)
	f.release = make(chan struct{}, 16)
	return f.entered, f.release
}

func (f *faultBus) Publish(subject string, data []byte) error {
	f.mu.Lock()
	err, entered, release := f.publishErr, f.entered, f.release
	f.mu.Unlock()

	if entered != nil && strings.HasSuffix(subject, TopicSuffix) {
		entered <- subject
		<-release
	}
	if err != nil {
		return err
	}
	return f.MemoryBus.Publish(subject, data)
}

func (f *faultBus) Subscribe(subject string) (bus.Subscription, error) {
	f.mu.Lock()
	err := f.subscribeErr[subject]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.MemoryBus.Subscribe(subject)
}

func (f *faultBus) Flush(timeout time.Duration) error {
	f.mu.Lock()
	err := f.flushErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.MemoryBus.Flush(timeout)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
