// Package postings implements the delta-varint codec for ascending u32
// chunk-ID sequences (component B): the first value is written as itself,
// every following value as the varint of its difference from the previous
// value minus one. An empty postings list encodes to zero bytes.
package postings

import (
	"github.com/grop-dev/grop/internal/varint"
	"github.com/grop-dev/grop/pkg/errors"
)

// Encode appends the delta-varint encoding of the strictly ascending
// sequence xs to dst and returns the extended slice. Callers are
// responsible for ensuring xs is ascending and deduplicated; Encode does
// not itself verify this (the index writer accumulates xs that way by
// construction).
func Encode(dst []byte, xs []uint32) []byte {
	var prev uint64
	has := false
	for _, x := range xs {
		v := uint64(x)
		if !has {
			dst = varint.Append(dst, v)
		} else {
			dst = varint.Append(dst, v-prev-1)
		}
		prev = v
		has = true
	}
	return dst
}

// Decode fully decodes a delta-varint block into a []uint32. It is a
// convenience wrapper around Iter for callers that want the whole list at
// once (e.g. tests); the index reader and evaluator use Iter directly to
// avoid materializing every postings list in memory.
func Decode(data []byte) ([]uint32, error) {
	it := NewIter(data)
	var out []uint32
	for {
		v, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, v)
	}
}

// Iter is a one-shot, forward-only iterator over a delta-varint-encoded
// ascending u32 sequence. It supports Next and SeekTo, the capability set
// the query evaluator's merge-join (component H) requires.
type Iter struct {
	data  []byte
	pos   int
	prev  uint64
	has   bool
	done  bool
	// cur/curValid cache the most recently read-but-not-yet-consumed value
	// so SeekTo and Next can share one decode loop.
	cur      uint32
	curValid bool
}

// NewIter constructs an Iter over a raw delta-varint block as produced by
// Encode.
func NewIter(data []byte) *Iter {
	return &Iter{data: data}
}

// decodeOne decodes the next varint delta from the stream, reconstructing
// the absolute value, and caches it in cur.
func (it *Iter) decodeOne() (bool, error) {
	if it.done || it.pos >= len(it.data) {
		it.done = true
		return false, nil
	}
	delta, n, err := varint.Read(it.data[it.pos:])
	if err != nil {
		return false, err
	}
	it.pos += n

	var v uint64
	if !it.has {
		v = delta
	} else {
		v = it.prev + delta + 1
	}
	if it.has && v <= it.prev {
		return false, errors.Newf(errors.ErrCorrupt, 0, "postings not strictly ascending: %d after %d", v, it.prev)
	}
	if v > uint64(^uint32(0)) {
		return false, errors.Newf(errors.ErrCorrupt, 0, "postings value %d overflows u32", v)
	}
	it.prev = v
	it.has = true
	it.cur = uint32(v)
	it.curValid = true
	return true, nil
}

// Next returns the next value in the sequence, or ok=false when exhausted.
func (it *Iter) Next() (uint32, bool, error) {
	if it.curValid {
		v := it.cur
		it.curValid = false
		return v, true, nil
	}
	ok, err := it.decodeOne()
	if err != nil || !ok {
		return 0, false, err
	}
	it.curValid = false
	return it.cur, true, nil
}

// SeekTo advances the iterator to the first remaining value >= target,
// returning it, or ok=false if the sequence is exhausted before reaching
// target. SeekTo is linear over the remaining compressed stream: there is
// no in-block index, matching the reader's documented seek_to contract.
func (it *Iter) SeekTo(target uint32) (uint32, bool, error) {
	for {
		var v uint32
		var ok bool
		var err error
		if it.curValid {
			v, ok = it.cur, true
			it.curValid = false
		} else {
			ok, err = it.decodeOne()
			if err != nil {
				return 0, false, err
			}
			v = it.cur
		}
		if !ok {
			return 0, false, nil
		}
		if v >= target {
			return v, true, nil
		}
	}
}
