// Package metrics holds the table of enabled metrics groups and the sources
// that supply live values for them.
//
// Each group has a 32-bit flag word. A group with a zero word is disabled and
// never appears in a report.
package metrics

import "fmt"

// Group identifies a metrics group.
type Group uint32

const (
	// GroupTCPConnections covers established TCP connections.
	GroupTCPConnections Group = 0

	// GroupCount is the number of known groups.
	GroupCount = 1
)

// TCP connection flags.
const (
	TCPEstablishedTotal       uint32 = 1 << 0
	TCPEstablishedConnections uint32 = 1 << 1
	TCPEstablishedRemoteAddr  uint32 = 1 << 2

	TCPEstablished = TCPEstablishedTotal | TCPEstablishedConnections | TCPEstablishedRemoteAddr
)

// All enables every sub-metric of a group.
const All uint32 = 0xFFFFFFFF

// Valid reports whether g is a known group.
func (g Group) Valid() bool {
	return g < GroupCount
}

func (g Group) String() string {
	switch g {
	case GroupTCPConnections:
		return "tcp_connections"
	default:
		return fmt.Sprintf("group(%d)", uint32(g))
	}
}

// Flags is a value-type snapshot of every group's flag word.
type Flags [GroupCount]uint32

// Get returns the flags of g, or 0 for unknown groups.
func (f Flags) Get(g Group) uint32 {
	if !g.Valid() {
		return 0
	}
	return f[g]
}

// Enabled returns the groups with a non-zero flag word, in id order.
func (f Flags) Enabled() []Group {
	var groups []Group
	for i, v := range f {
		if v != 0 {
			groups = append(groups, Group(i))
		}
	}
	return groups
}

// ParseTCPFlags maps configuration names to TCP flag bits.
// Recognised names: "total", "connections", "remote_addr", "established", "all".
func ParseTCPFlags(names []string) (uint32, error) {
	var flags uint32
	for _, name := range names {
		switch name {
		case "total":
			flags |= TCPEstablishedTotal
		case "connections":
			flags |= TCPEstablishedConnections
		case "remote_addr":
			flags |= TCPEstablishedRemoteAddr
		case "established":
			flags |= TCPEstablished
		case "all":
			flags |= All
		default:
			return 0, fmt.Errorf("unknown tcp_connections metric %q", name)
		}
	}
	return flags, nil
}
