package defender

// gate is the publish ticket. Holding it means a tick may run. A tick takes
// it without blocking; Stop blocks until it can take it, which is how Stop
// knows no tick is mid-flight.
type gate struct {
	ch chan struct{}
}

func newGate() *gate {
	g := &gate{ch: make(chan struct{}, 1)}
	g.ch <- struct{}{}
	return g
}

func (g *gate) tryAcquire() bool {
	select {
	case <-g.ch:
		return true
	default:
		return false
	}
}

func (g *gate) wait() {
	<-g.ch
}

// release returns the ticket. It returns false if the ticket was not held.
func (g *gate) release() bool {
	select {
	case g.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// balance is 1 when the ticket is free, 0 while held.
func (g *gate) balance() int {
	return len(g.ch)
}
