package metrics

import (
	"context"
	"net"
	"strconv"
	"sync"

	psnet "github.com/shirou/gopsutil/v3/net"
)

// Connection is one established TCP connection.
type Connection struct {
	RemoteAddr string
}

// ConnectionSource lists the host's established TCP connections.
type ConnectionSource interface {
	Established(ctx context.Context) ([]Connection, error)
}

// SystemSource reads connections from the operating system.
type SystemSource struct {
	// Kind is the gopsutil connection kind, "tcp" by default.
	Kind string
}

// NewSystemSource returns a source backed by the host's connection table.
func NewSystemSource() *SystemSource {
	return &SystemSource{Kind: "tcp"}
}

// Established returns every ESTABLISHED connection with a remote endpoint.
func (s *SystemSource) Established(ctx context.Context) ([]Connection, error) {
	kind := s.Kind
	if kind == "" {
		kind = "tcp"
	}
	stats, err := psnet.ConnectionsWithContext(ctx, kind)
	if err != nil {
		return nil, err
	}
	var conns []Connection
	for _, st := range stats {
		if st.Status != "ESTABLISHED" || st.Raddr.IP == "" {
			continue
		}
		conns = append(conns, Connection{
			RemoteAddr: net.JoinHostPort(st.Raddr.IP, strconv.FormatUint(uint64(st.Raddr.Port), 10)),
		})
	}
	return conns, nil
}

// StaticSource returns a fixed, replaceable list.
type StaticSource struct {
	mu    sync.Mutex
	conns []Connection
	err   error
}

// NewStaticSource returns a source that always reports addrs.
func NewStaticSource(addrs ...string) *StaticSource {
	s := &StaticSource{}
	s.SetAddrs(addrs...)
	return s
}

// SetAddrs replaces the reported connections.
func (s *StaticSource) SetAddrs(addrs ...string) {
	conns := make([]Connection, 0, len(addrs))
	for _, a := range addrs {
		conns = append(conns, Connection{RemoteAddr: a})
	}
	s.mu.Lock()
	s.conns = conns
	s.mu.Unlock()
}

// SetError makes subsequent calls fail with err (nil clears it).
func (s *StaticSource) SetError(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Established returns a copy of the configured list.
func (s *StaticSource) Established(ctx context.Context) ([]Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return append([]Connection(nil), s.conns...), nil
}
