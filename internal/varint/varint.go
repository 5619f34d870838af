// Package varint implements the little-endian base-128 variable-width
// unsigned integer encoding used throughout the index file format: each
// byte carries 7 payload bits, with the high bit set meaning "more bytes
// follow".
package varint

import (
	"github.com/grop-dev/grop/pkg/errors"
)

// maxBytes bounds a single varint at 10 bytes (70 payload bits), enough
// for any uint64 with room to detect overflow rather than wrapping.
const maxBytes = 10

// Append encodes x and appends it to dst, returning the extended slice.
func Append(dst []byte, x uint64) []byte {
	for x >= 0x80 {
		dst = append(dst, byte(x)|0x80)
		x >>= 7
	}
	return append(dst, byte(x))
}

// Size returns the number of bytes Append would write for x.
func Size(x uint64) int {
	n := 1
	for x >= 0x80 {
		x >>= 7
		n++
	}
	return n
}

// Read decodes a single varint from the front of data, returning the
// decoded value and the number of bytes consumed. It fails with
// errors.ErrCorrupt if data ends before a terminating byte is found, or
// if the encoded value does not fit in 64 bits.
func Read(data []byte) (x uint64, n int, err error) {
	var shift uint
	for i := 0; i < len(data) && i < maxBytes; i++ {
		b := data[i]
		payload := uint64(b & 0x7f)
		// The 10th byte only has room for bit 0 of the accumulator; any
		// higher payload bit here would silently shift out of a uint64
		// instead of reporting overflow.
		if shift == 63 && payload > 1 {
			return 0, 0, errors.Newf(errors.ErrCorrupt, 0, "varint overflows 64 bits")
		}
		if b < 0x80 {
			x |= payload << shift
			return x, i + 1, nil
		}
		x |= payload << shift
		shift += 7
	}
	if len(data) < maxBytes {
		return 0, 0, errors.Newf(errors.ErrCorrupt, 0, "truncated varint: ran out of input after %d bytes", len(data))
	}
	return 0, 0, errors.Newf(errors.ErrCorrupt, 0, "varint overflows 64 bits")
}
