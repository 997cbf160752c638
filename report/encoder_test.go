package report

import (
	"bytes"
	stderrors "errors"
	"testing"

	"github.com/vinayprograms/defender/codec"
)

func TestHead(t *testing.T) {
	tests := []struct {
		name  string
		major byte
		n     uint64
		want  []byte
	}{
		{"empty_map", majorMap, 0, []byte{0xa0}},
		{"small_array", majorArray, 23, []byte{0x97}},
		{"one_byte", majorArray, 24, []byte{0x98, 24}},
		{"two_byte", majorArray, 256, []byte{0x99, 0x01, 0x00}},
		{"four_byte", majorMap, 1 << 16, []byte{0xba, 0x00, 0x01, 0x00, 0x00}},
		{"eight_byte", majorArray, 1 << 32, []byte{0x9b, 0, 0, 0, 1, 0, 0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := head(tt.major, tt.n); !bytes.Equal(got, tt.want) {
				t.Errorf("head(%d, %d) = %x, want %x", tt.major, tt.n, got, tt.want)
			}
		})
	}
}

func TestEncoder_MatchesCodec(t *testing.T) {
	e := NewEncoder(make([]byte, 4))
	e.OpenMap(1)
	e.PutText("a")
	e.PutUint(1)
	e.Close()
	if err := e.Finish(); err != nil {
		t.Fatalf("Finish error: %v", err)
	}

	want, err := codec.Marshal(map[string]uint64{"a": 1})
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if got := e.sink.(*fixedSink).buf; !bytes.Equal(got, want) {
		t.Errorf("encoded %x, want %x", got, want)
	}
}

func TestEncoder_MeasureEqualsFill(t *testing.T) {
	write := func(e *Encoder) {
		e.OpenMap(2)
		e.PutText("list")
		e.OpenArray(30)
		for i := 0; i < 30; i++ {
			e.PutUint(uint64(i) * 1000)
		}
		e.Close()
		e.PutText("name")
		e.PutText("a string longer than twenty-three bytes")
		e.Close()
	}

	m := NewMeasurer()
	write(m)
	if err := m.Finish(); err != nil {
		t.Fatalf("measure: %v", err)
	}

	e := NewEncoder(make([]byte, m.Size()))
	write(e)
	if err := e.Finish(); err != nil {
		t.Fatalf("fill: %v", err)
	}
	if e.Size() != m.Size() {
		t.Errorf("filled %d bytes, measured %d", e.Size(), m.Size())
	}

	decoded, err := codec.Decode(e.sink.(*fixedSink).buf)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if list, ok := decoded["list"].([]any); !ok || len(list) != 30 {
		t.Errorf("list = %v", decoded["list"])
	}
}

func TestEncoder_Errors(t *testing.T) {
	tests := []struct {
		name  string
		write func(e *Encoder)
		want  error
	}{
		{
			name: "map_missing_value",
			write: func(e *Encoder) {
				e.OpenMap(1)
				e.PutText("k")
				e.Close()
			},
			want: ErrCountMismatch,
		},
		{
			name: "array_overflow",
			write: func(e *Encoder) {
				e.OpenArray(1)
				e.PutUint(1)
				e.PutUint(2)
			},
			want: ErrCountMismatch,
		},
		{
			name:  "close_without_open",
			write: func(e *Encoder) { e.Close() },
			want:  ErrUnbalanced,
		},
		{
			name:  "left_open",
			write: func(e *Encoder) { e.OpenMap(0) },
			want:  ErrUnbalanced,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewMeasurer()
			tt.write(e)
			if err := e.Finish(); !stderrors.Is(err, tt.want) {
				t.Errorf("Finish() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestEncoder_BufferFull(t *testing.T) {
	e := NewEncoder(make([]byte, 2))
	e.PutText("abc")
	if !stderrors.Is(e.Err(), ErrBufferFull) {
		t.Fatalf("Err() = %v, want ErrBufferFull", e.Err())
	}
	// Sticky: later writes are ignored
	e.PutUint(1)
	if e.Size() != 0 {
		t.Errorf("Size() = %d after failed write, want 0", e.Size())
	}
}
