package varint

import (
	"testing"

	stderrors "errors"

	"github.com/grop-dev/grop/pkg/errors"
)

func TestAppendReadExamples(t *testing.T) {
	cases := []struct {
		value   uint64
		encoded []byte
	}{
		{1, []byte{1}},
		{2, []byte{2}},
		{127, []byte{127}},
		{128, []byte{0b10000000, 0b00000001}},
		{16383, []byte{0b11111111, 0b01111111}},
		{16384, []byte{0b10000000, 0b10000000, 0b00000001}},
	}
	for _, c := range cases {
		got := Append(nil, c.value)
		if string(got) != string(c.encoded) {
			t.Errorf("Append(%d) = %v, want %v", c.value, got, c.encoded)
		}
		if Size(c.value) != len(c.encoded) {
			t.Errorf("Size(%d) = %d, want %d", c.value, Size(c.value), len(c.encoded))
		}
		v, n, err := Read(c.encoded)
		if err != nil {
			t.Fatalf("Read(%v) error: %v", c.encoded, err)
		}
		if v != c.value || n != len(c.encoded) {
			t.Errorf("Read(%v) = (%d, %d), want (%d, %d)", c.encoded, v, n, c.value, len(c.encoded))
		}
	}
}

func TestReadTruncated(t *testing.T) {
	_, _, err := Read([]byte{0x80})
	if !stderrors.Is(err, errors.ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestReadOverflowOnTenthByte(t *testing.T) {
	// Nine continuation bytes of all-zero payload, then a 10th byte whose
	// payload has bit 1 set — one bit past what fits in a uint64.
	encoded := append([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80}, 0x02)
	_, _, err := Read(encoded)
	if !stderrors.Is(err, errors.ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt for an overflowing 10th byte, got %v", err)
	}
}

func TestRoundTripRandom(t *testing.T) {
	values := []uint64{0, 1, 127, 128, 300, 1 << 20, 1<<32 - 1, 1 << 40, 1<<64 - 1}
	var buf []byte
	for _, v := range values {
		buf = Append(buf, v)
	}
	for _, want := range values {
		got, n, err := Read(buf)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if got != want {
			t.Errorf("Read = %d, want %d", got, want)
		}
		buf = buf[n:]
	}
	if len(buf) != 0 {
		t.Errorf("leftover bytes: %d", len(buf))
	}
}
