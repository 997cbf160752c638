package defender

import (
	stderrors "errors"
	"sync"
	"time"

	"github.com/vinayprograms/defender/bus"
	"github.com/vinayprograms/defender/errors"
)

// bridge connects an agent session to the message bus: it owns the two
// verdict subscriptions and their delivery goroutines.
type bridge struct {
	bus bus.MessageBus

	mu   sync.Mutex
	subs []bus.Subscription
	wg   sync.WaitGroup
}

func newBridge(b bus.MessageBus) *bridge {
	return &bridge{bus: b}
}

// subscribe listens on the accepted and rejected topics and confirms the
// subscriptions with a flush. On failure nothing stays subscribed.
func (b *bridge) subscribe(t *TopicSet, timeout time.Duration, onAccepted, onRejected func(*bus.Message)) error {
	acc, err := b.bus.Subscribe(t.Accepted)
	if err != nil {
		return errors.Transport("subscribing to accepted topic",
			errors.WithCause(err), errors.WithMetadata("topic", t.Accepted))
	}
	rej, err := b.bus.Subscribe(t.Rejected)
	if err != nil {
		acc.Unsubscribe()
		return errors.Transport("subscribing to rejected topic",
			errors.WithCause(err), errors.WithMetadata("topic", t.Rejected))
	}
	if err := b.bus.Flush(timeout); err != nil {
		acc.Unsubscribe()
		rej.Unsubscribe()
		return errors.Transport("confirming subscriptions", errors.WithCause(err))
	}

	b.mu.Lock()
	b.subs = []bus.Subscription{acc, rej}
	b.mu.Unlock()

	b.deliver(acc, onAccepted)
	b.deliver(rej, onRejected)
	return nil
}

// deliver drains sub until it is unsubscribed.
func (b *bridge) deliver(sub bus.Subscription, fn func(*bus.Message)) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for msg := range sub.Messages() {
			fn(msg)
		}
	}()
}

// publish sends data and waits up to timeout for the transport to take it.
func (b *bridge) publish(topic string, data []byte, timeout time.Duration) error {
	if err := b.bus.Publish(topic, data); err != nil {
		return errors.Transport("publishing report", errors.WithCause(err), errors.WithMetadata("topic", topic))
	}
	if err := b.bus.Flush(timeout); err != nil {
		code := errors.ErrCodeTransport
		if stderrors.Is(err, bus.ErrTimeout) {
			code = errors.ErrCodeTimeout
		}
		return errors.New(code, "flushing report", errors.WithCause(err), errors.WithMetadata("topic", topic))
	}
	return nil
}

// unsubscribe drops both subscriptions. Calling it again is a no-op.
func (b *bridge) unsubscribe(timeout time.Duration) error {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	if len(subs) == 0 {
		return nil
	}

	var errs []error
	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := b.bus.Flush(timeout); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return errors.Transport("unsubscribing", errors.WithCause(err))
	}
	return nil
}

// subscribed reports whether the verdict subscriptions are active.
func (b *bridge) subscribed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs) > 0
}

// drain waits up to timeout for the delivery goroutines to exit and reports
// whether they did. Only valid after unsubscribe. A callback that is itself
// running Stop never exits in time, so the wait is bounded.
func (b *bridge) drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
		return false
	}
}
