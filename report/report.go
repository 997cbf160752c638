// Package report serializes a metrics snapshot into a CBOR device report and
// decodes the service's acknowledgements.
//
// Reports are built in two passes: the first pass measures the exact encoded
// size, the second fills a buffer of exactly that size.
//
// Report shape:
//
//	{ "header":  { "report_id": uint, "version": "1.0" },
//	  "metrics": { "tcp_connections": { "established_connections":
//	      { "total": uint, "connections": [ { "remote_addr": text } ] } } } }
//
// Every key whose governing flag is clear is omitted, as is an empty
// "connections" array.
package report

import "sync/atomic"

// Version is the report format version written into every header.
const Version = "1.0"

// Report keys.
const (
	KeyHeader                 = "header"
	KeyReportID               = "report_id"
	KeyVersion                = "version"
	KeyMetrics                = "metrics"
	KeyTCPConnections         = "tcp_connections"
	KeyEstablishedConnections = "established_connections"
	KeyTotal                  = "total"
	KeyConnections            = "connections"
	KeyRemoteAddr             = "remote_addr"
)

// Report is one serialized metrics snapshot.
type Report struct {
	// ID is the report id written into the header; acknowledgements carry it
	// back.
	ID uint64

	data     []byte
	released atomic.Bool
	live     *atomic.Int64
}

// Data returns the encoded bytes, or nil once released.
func (r *Report) Data() []byte {
	if r == nil || r.released.Load() {
		return nil
	}
	return r.data
}

// Size returns the encoded length, or 0 once released.
func (r *Report) Size() int {
	return len(r.Data())
}

// Release retires the report; Data returns nil afterwards. Calling it again
// is a no-op.
func (r *Report) Release() {
	if r == nil || r.released.Swap(true) {
		return
	}
	if r.live != nil {
		r.live.Add(-1)
	}
}

// Released reports whether Release has been called.
func (r *Report) Released() bool {
	return r.released.Load()
}
