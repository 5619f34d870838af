package postings

import (
	"math/rand"
	"reflect"
	"testing"
)

func TestEncodeDecodeExamples(t *testing.T) {
	cases := []struct {
		values  []uint32
		deltas  []uint64
	}{
		{[]uint32{1}, []uint64{1}},
		{[]uint32{2}, []uint64{2}},
		{[]uint32{1, 2}, []uint64{1, 0}},
		{[]uint32{1, 3}, []uint64{1, 1}},
		{[]uint32{1, 2, 12}, []uint64{1, 0, 9}},
	}
	for _, c := range cases {
		enc := Encode(nil, c.values)
		dec, err := Decode(enc)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if !reflect.DeepEqual(dec, c.values) {
			t.Errorf("Decode(Encode(%v)) = %v", c.values, dec)
		}
	}
}

func TestEncodeEmpty(t *testing.T) {
	enc := Encode(nil, nil)
	if len(enc) != 0 {
		t.Errorf("Encode(nil) = %v, want empty", enc)
	}
	dec, err := Decode(enc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(dec) != 0 {
		t.Errorf("Decode(empty) = %v, want empty", dec)
	}
}

func TestRoundTripRandomAscending(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for trial := 0; trial < 50; trial++ {
		n := r.Intn(200)
		xs := make([]uint32, 0, n)
		var cur uint32
		for i := 0; i < n; i++ {
			cur += uint32(r.Intn(50) + 1)
			xs = append(xs, cur)
		}
		enc := Encode(nil, xs)
		dec, err := Decode(enc)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if !reflect.DeepEqual(dec, xs) {
			t.Fatalf("round trip mismatch: got %v, want %v", dec, xs)
		}
	}
}

func TestIterSeekTo(t *testing.T) {
	xs := []uint32{2, 5, 9, 100, 101, 500}
	enc := Encode(nil, xs)
	it := NewIter(enc)

	v, ok, err := it.Next()
	if err != nil || !ok || v != 2 {
		t.Fatalf("Next() = (%d, %v, %v), want (2, true, nil)", v, ok, err)
	}
	v, ok, err = it.SeekTo(9)
	if err != nil || !ok || v != 9 {
		t.Fatalf("SeekTo(9) = (%d, %v, %v), want (9, true, nil)", v, ok, err)
	}
	v, ok, err = it.SeekTo(101)
	if err != nil || !ok || v != 101 {
		t.Fatalf("SeekTo(101) = (%d, %v, %v), want (101, true, nil)", v, ok, err)
	}
	v, ok, err = it.SeekTo(1000)
	if err != nil || ok {
		t.Fatalf("SeekTo(1000) = (%d, %v, %v), want (_, false, nil)", v, ok, err)
	}
}

func TestIterNextExhausted(t *testing.T) {
	it := NewIter(nil)
	_, ok, err := it.Next()
	if err != nil || ok {
		t.Fatalf("Next() on empty = (%v, %v), want (false, nil)", ok, err)
	}
}
