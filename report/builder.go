package report

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/vinayprograms/defender/clock"
	"github.com/vinayprograms/defender/errors"
	"github.com/vinayprograms/defender/metrics"
)

// MaxReportSize is the largest buffer Build will allocate.
const MaxReportSize = 64 << 10

// snapshot is the live data both passes encode.
type snapshot struct {
	id    uint64
	flags metrics.Flags
	conns []metrics.Connection
}

// groupEncoder writes the value of one metrics group.
type groupEncoder func(e *Encoder, flags uint32, s *snapshot)

var groupEncoders = [metrics.GroupCount]groupEncoder{
	metrics.GroupTCPConnections: encodeTCPConnections,
}

var groupKeys = [metrics.GroupCount]string{
	metrics.GroupTCPConnections: KeyTCPConnections,
}

// Builder turns flag snapshots into reports.
type Builder struct {
	clock   clock.Clock
	source  metrics.ConnectionSource
	maxSize int

	mu     sync.Mutex
	lastID uint64

	live atomic.Int64
	peak atomic.Int64
}

// NewBuilder creates a builder. A nil source reports no connections.
func NewBuilder(clk clock.Clock, source metrics.ConnectionSource) *Builder {
	if clk == nil {
		clk = clock.Real()
	}
	return &Builder{
		clock:   clk,
		source:  source,
		maxSize: MaxReportSize,
	}
}

// SetMaxSize changes the allocation limit. Values <= 0 restore the default.
func (b *Builder) SetMaxSize(n int) {
	if n <= 0 {
		n = MaxReportSize
	}
	b.maxSize = n
}

// Build encodes flags into a new report.
func (b *Builder) Build(ctx context.Context, flags metrics.Flags) (*Report, error) {
	s := &snapshot{id: b.nextID(), flags: flags}

	if tcp := flags.Get(metrics.GroupTCPConnections); tcp&(metrics.TCPEstablishedTotal|metrics.TCPEstablishedConnections) != 0 && b.source != nil {
		conns, err := b.source.Established(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "listing tcp connections")
		}
		s.conns = conns
	}

	m := NewMeasurer()
	encode(m, s)
	if err := m.Finish(); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeInternal, "measuring report")
	}
	size := m.Size()
	if size > b.maxSize {
		return nil, errors.NoMemory(fmt.Sprintf("report needs %d bytes, limit is %d", size, b.maxSize),
			errors.WithMetadata("size", fmt.Sprintf("%d", size)))
	}

	buf := make([]byte, size)
	e := NewEncoder(buf)
	encode(e, s)
	if err := e.Finish(); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeInternal, "encoding report")
	}
	if e.Size() != size {
		return nil, errors.Internal(fmt.Sprintf("report size changed between passes: measured %d, wrote %d", size, e.Size()))
	}

	r := &Report{ID: s.id, data: buf, live: &b.live}
	n := b.live.Add(1)
	for {
		p := b.peak.Load()
		if n <= p || b.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return r, nil
}

// Live returns the number of built reports not yet released.
func (b *Builder) Live() int {
	return int(b.live.Load())
}

// PeakLive returns the highest Live value observed.
func (b *Builder) PeakLive() int {
	return int(b.peak.Load())
}

// nextID returns the current time in milliseconds, bumped so ids strictly
// increase.
func (b *Builder) nextID() uint64 {
	id := uint64(b.clock.Now().UnixMilli())
	b.mu.Lock()
	defer b.mu.Unlock()
	if id <= b.lastID {
		id = b.lastID + 1
	}
	b.lastID = id
	return id
}

func encode(e *Encoder, s *snapshot) {
	groups := s.flags.Enabled()

	e.OpenMap(2)

	e.PutText(KeyHeader)
	e.OpenMap(2)
	e.PutText(KeyReportID)
	e.PutUint(s.id)
	e.PutText(KeyVersion)
	e.PutText(Version)
	e.Close()

	e.PutText(KeyMetrics)
	e.OpenMap(len(groups))
	for _, g := range groups {
		e.PutText(groupKeys[g])
		groupEncoders[g](e, s.flags[g], s)
	}
	e.Close()

	e.Close()
}

func encodeTCPConnections(e *Encoder, flags uint32, s *snapshot) {
	if flags&metrics.TCPEstablished == 0 {
		e.OpenMap(0)
		e.Close()
		return
	}

	e.OpenMap(1)
	e.PutText(KeyEstablishedConnections)

	withTotal := flags&metrics.TCPEstablishedTotal != 0
	withList := flags&metrics.TCPEstablishedConnections != 0 && len(s.conns) > 0
	withAddr := flags&metrics.TCPEstablishedRemoteAddr != 0

	n := 0
	if withTotal {
		n++
	}
	if withList {
		n++
	}
	e.OpenMap(n)
	if withTotal {
		e.PutText(KeyTotal)
		e.PutUint(uint64(len(s.conns)))
	}
	if withList {
		e.PutText(KeyConnections)
		e.OpenArray(len(s.conns))
		for _, c := range s.conns {
			if withAddr {
				e.OpenMap(1)
				e.PutText(KeyRemoteAddr)
				e.PutText(c.RemoteAddr)
			} else {
				e.OpenMap(0)
			}
			e.Close()
		}
		e.Close()
	}
	e.Close()

	e.Close()
}
