// Package chunkindex implements the on-disk trigram chunk index: the
// writer that streams a source file into fixed-target-size chunks ending
// on line boundaries (component C) and the reader that opens the
// resulting artifact and resolves trigrams to postings and chunks to byte
// ranges (component D).
//
// File layout (little-endian throughout):
//
//	header               magic "GROP", u16 version, u16 reserved,
//	                     u64 chunk count N, u64 chunk_target_size
//	chunk ends           varint(byteLen) + N ascending u64 offsets,
//	                     delta-varint encoded
//	chunk line counts    varint(byteLen) + N u32 counts, varint encoded
//	                     (no delta)
//	postings inventory   per-trigram delta-varint postings blocks,
//	                     concatenated in ascending trigram order
//	trigrams map         varint(entryCount) + varint(byteLen) + entries,
//	                     each entry: 3-byte trigram, varint offset into
//	                     the postings inventory, varint length
//	footer               u64 offset of the trigrams map, repeated magic
package chunkindex

import "encoding/binary"

// Magic identifies a valid grop chunk index file.
var Magic = [4]byte{'G', 'R', 'O', 'P'}

// FormatVersion is the only index format version this package writes or
// reads.
const FormatVersion uint16 = 1

// HeaderSize is the fixed size in bytes of the header region.
const HeaderSize = 4 + 2 + 2 + 8 + 8

// FooterSize is the fixed size in bytes of the footer region.
const FooterSize = 8 + 4

// MinChunkTargetSize is the smallest chunk_target_size the writer will
// accept. Below this, the boundary-trigram attribution scheme (see
// writer.go) cannot be guaranteed to stay within the "last two positions
// of the earlier chunk" bound, since two closes could fall within the
// look-behind window of each other.
const MinChunkTargetSize = 64

// header is the decoded form of the fixed-size header region.
type header struct {
	Version         uint16
	ChunkCount      uint64
	ChunkTargetSize uint64
}

func encodeHeader(h header) []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], Magic[:])
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	binary.LittleEndian.PutUint16(buf[6:8], 0)
	binary.LittleEndian.PutUint64(buf[8:16], h.ChunkCount)
	binary.LittleEndian.PutUint64(buf[16:24], h.ChunkTargetSize)
	return buf
}

func trigramIndex(b0, b1, b2 byte) uint32 {
	return uint32(b0)<<16 | uint32(b1)<<8 | uint32(b2)
}

func trigramBytes(idx uint32) [3]byte {
	return [3]byte{byte(idx >> 16), byte(idx >> 8), byte(idx)}
}
