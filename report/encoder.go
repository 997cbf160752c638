package report

import (
	"encoding/binary"
	stderrors "errors"
	"fmt"

	"github.com/vinayprograms/defender/codec"
)

// Encoder errors.
var (
	ErrBufferFull    = stderrors.New("report: buffer full")
	ErrCountMismatch = stderrors.New("report: container child count mismatch")
	ErrUnbalanced    = stderrors.New("report: unbalanced containers")
)

// CBOR major types for definite-length containers.
const (
	majorArray byte = 4
	majorMap   byte = 5
)

// sink receives encoded bytes.
type sink interface {
	write(p []byte) error
	size() int
}

// measureSink counts bytes and stores nothing.
type measureSink struct {
	n int
}

func (s *measureSink) write(p []byte) error {
	s.n += len(p)
	return nil
}

func (s *measureSink) size() int { return s.n }

// fixedSink writes into a slice whose length is the exact capacity.
type fixedSink struct {
	buf []byte
	n   int
}

func (s *fixedSink) write(p []byte) error {
	if s.n+len(p) > len(s.buf) {
		return ErrBufferFull
	}
	s.n += copy(s.buf[s.n:], p)
	return nil
}

func (s *fixedSink) size() int { return s.n }

type frame struct {
	major    byte
	declared int // items, so 2n for a map of n pairs
	written  int
}

// Encoder writes definite-length CBOR. Containers declare their child count
// when opened and Close checks it.
//
// Errors are sticky: after the first failure every call is a no-op and Err
// reports the failure.
type Encoder struct {
	sink  sink
	stack []frame
	err   error
}

// NewMeasurer returns an encoder that only computes the encoded size.
func NewMeasurer() *Encoder {
	return &Encoder{sink: &measureSink{}}
}

// NewEncoder returns an encoder that fills buf. Writing past len(buf)
// fails with ErrBufferFull.
func NewEncoder(buf []byte) *Encoder {
	return &Encoder{sink: &fixedSink{buf: buf}}
}

// OpenMap starts a map of pairs key/value pairs.
func (e *Encoder) OpenMap(pairs int) {
	e.open(majorMap, pairs, 2*pairs)
}

// OpenArray starts an array of n items.
func (e *Encoder) OpenArray(n int) {
	e.open(majorArray, n, n)
}

func (e *Encoder) open(major byte, n, items int) {
	if e.err != nil {
		return
	}
	if n < 0 {
		e.err = fmt.Errorf("report: negative container length %d", n)
		return
	}
	if !e.item() {
		return
	}
	e.write(head(major, uint64(n)))
	e.stack = append(e.stack, frame{major: major, declared: items})
}

// Close ends the innermost container.
func (e *Encoder) Close() {
	if e.err != nil {
		return
	}
	if len(e.stack) == 0 {
		e.err = ErrUnbalanced
		return
	}
	top := e.stack[len(e.stack)-1]
	if top.written != top.declared {
		e.err = fmt.Errorf("%w: declared %d, wrote %d", ErrCountMismatch, top.declared, top.written)
		return
	}
	e.stack = e.stack[:len(e.stack)-1]
}

// PutText writes a text string; used for both map keys and values.
func (e *Encoder) PutText(s string) {
	e.putScalar(s)
}

// PutUint writes an unsigned integer.
func (e *Encoder) PutUint(v uint64) {
	e.putScalar(v)
}

func (e *Encoder) putScalar(v any) {
	if e.err != nil {
		return
	}
	if !e.item() {
		return
	}
	b, err := codec.Marshal(v)
	if err != nil {
		e.err = err
		return
	}
	e.write(b)
}

// item accounts for one child in the open container.
func (e *Encoder) item() bool {
	if len(e.stack) == 0 {
		return true
	}
	top := &e.stack[len(e.stack)-1]
	if top.written == top.declared {
		e.err = fmt.Errorf("%w: more than %d items", ErrCountMismatch, top.declared)
		return false
	}
	top.written++
	return true
}

func (e *Encoder) write(p []byte) {
	if e.err != nil {
		return
	}
	if err := e.sink.write(p); err != nil {
		e.err = err
	}
}

// Err returns the first error encountered.
func (e *Encoder) Err() error {
	return e.err
}

// Finish reports the first error, or ErrUnbalanced if a container is
// still open.
func (e *Encoder) Finish() error {
	if e.err != nil {
		return e.err
	}
	if len(e.stack) != 0 {
		return ErrUnbalanced
	}
	return nil
}

// Size returns the number of bytes written or measured so far.
func (e *Encoder) Size() int {
	return e.sink.size()
}

// head encodes a CBOR initial byte plus length argument.
func head(major byte, n uint64) []byte {
	m := major << 5
	switch {
	case n < 24:
		return []byte{m | byte(n)}
	case n <= 0xff:
		return []byte{m | 24, byte(n)}
	case n <= 0xffff:
		b := []byte{m | 25, 0, 0}
		binary.BigEndian.PutUint16(b[1:], uint16(n))
		return b
	case n <= 0xffffffff:
		b := []byte{m | 26, 0, 0, 0, 0}
		binary.BigEndian.PutUint32(b[1:], uint32(n))
		return b
	default:
		b := make([]byte, 9)
		b[0] = m | 27
		binary.BigEndian.PutUint64(b[1:], n)
		return b
	}
}
