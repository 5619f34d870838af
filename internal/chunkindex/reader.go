package chunkindex

import (
	"encoding/binary"
	"os"
	"sort"

	"github.com/grop-dev/grop/internal/postings"
	"github.com/grop-dev/grop/internal/varint"
	"github.com/grop-dev/grop/pkg/errors"
)

// trigramEntry is one row of the trigrams map: a trigram and the location
// of its postings block within the postings inventory.
type trigramEntry struct {
	trigram [3]byte
	offset  uint64
	length  uint64
}

// Reader opens a chunk index artifact and resolves trigrams to postings
// iterators and chunk IDs to byte ranges and line offsets. It implements
// the index reader, component D.
type Reader struct {
	file *os.File

	chunkEnds       []uint64 // exclusive end offset of chunk i
	chunkLineOffset []uint64 // prefix sum: total lines before chunk i

	entries []trigramEntry // sorted by trigram, for binary search
	postBase int64         // file offset where the postings inventory begins
}

// Open opens the chunk index at path, validates its header and footer,
// and loads the chunk-ends, chunk-line-counts, and trigrams map regions
// into memory (the postings inventory itself is read lazily per query).
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Newf(errors.ErrIo, 0, "opening index file: %v", err)
	}

	r, err := openReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func openReader(f *os.File) (*Reader, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, errors.Newf(errors.ErrIo, 0, "statting index file: %v", err)
	}
	size := info.Size()
	if size < int64(HeaderSize+FooterSize) {
		return nil, errors.Newf(errors.ErrCorrupt, 0, "index file too small: %d bytes", size)
	}

	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, errors.Newf(errors.ErrIo, 0, "reading header: %v", err)
	}
	if string(headerBytes[0:4]) != string(Magic[:]) {
		return nil, errors.Newf(errors.ErrCorrupt, 0, "bad magic bytes in header")
	}
	version := binary.LittleEndian.Uint16(headerBytes[4:6])
	if version != FormatVersion {
		return nil, errors.Newf(errors.ErrIncompatible, 0, "unsupported index format version %d", version)
	}
	chunkCount := binary.LittleEndian.Uint64(headerBytes[8:16])

	footerBytes := make([]byte, FooterSize)
	if _, err := f.ReadAt(footerBytes, size-int64(FooterSize)); err != nil {
		return nil, errors.Newf(errors.ErrIo, 0, "reading footer: %v", err)
	}
	if string(footerBytes[8:12]) != string(Magic[:]) {
		return nil, errors.Newf(errors.ErrCorrupt, 0, "bad magic bytes in footer")
	}
	trigramsMapOffset := binary.LittleEndian.Uint64(footerBytes[0:8])

	pos := int64(HeaderSize)

	chunkEndsBlock, n, err := readLenPrefixedBlock(f, pos, size)
	if err != nil {
		return nil, err
	}
	pos += n
	chunkEnds, err := decodeDeltaU64(chunkEndsBlock)
	if err != nil {
		return nil, err
	}
	if uint64(len(chunkEnds)) != chunkCount {
		return nil, errors.Newf(errors.ErrCorrupt, 0, "chunk ends table has %d entries, header declares %d", len(chunkEnds), chunkCount)
	}

	lineCountsBlock, n, err := readLenPrefixedBlock(f, pos, size)
	if err != nil {
		return nil, err
	}
	pos += n
	lineCounts, err := decodeVarintU32s(lineCountsBlock, int(chunkCount))
	if err != nil {
		return nil, err
	}

	postBase := pos

	entries, err := readTrigramsMap(f, int64(trigramsMapOffset), size-int64(FooterSize))
	if err != nil {
		return nil, err
	}

	lineOffsets := make([]uint64, len(lineCounts)+1)
	for i, c := range lineCounts {
		lineOffsets[i+1] = lineOffsets[i] + uint64(c)
	}

	return &Reader{
		file:            f,
		chunkEnds:       chunkEnds,
		chunkLineOffset: lineOffsets,
		entries:         entries,
		postBase:        postBase,
	}, nil
}

// readLenPrefixedBlock reads a varint-length-prefixed byte block starting
// at offset, returning the block bytes and the total number of bytes
// consumed (prefix + block).
func readLenPrefixedBlock(f *os.File, offset, fileSize int64) ([]byte, int64, error) {
	// A block's varint length prefix is at most 10 bytes; read a small
	// header window first to decode it without over-reading.
	windowSize := int64(10)
	if offset+windowSize > fileSize {
		windowSize = fileSize - offset
	}
	window := make([]byte, windowSize)
	if _, err := f.ReadAt(window, offset); err != nil {
		return nil, 0, errors.Newf(errors.ErrIo, 0, "reading block length prefix: %v", err)
	}
	length, n, err := varint.Read(window)
	if err != nil {
		return nil, 0, err
	}
	block := make([]byte, length)
	if length > 0 {
		if _, err := f.ReadAt(block, offset+int64(n)); err != nil {
			return nil, 0, errors.Newf(errors.ErrIo, 0, "reading block: %v", err)
		}
	}
	return block, int64(n) + int64(length), nil
}

// decodeVarintU32s decodes exactly count directly-varint-encoded (no
// delta) u32 values from data, as used for the chunk-line-counts block.
func decodeVarintU32s(data []byte, count int) ([]uint32, error) {
	out := make([]uint32, 0, count)
	pos := 0
	for len(out) < count {
		if pos >= len(data) {
			return nil, errors.Newf(errors.ErrCorrupt, 0, "chunk line counts block truncated: got %d of %d entries", len(out), count)
		}
		v, n, err := varint.Read(data[pos:])
		if err != nil {
			return nil, err
		}
		pos += n
		out = append(out, uint32(v))
	}
	return out, nil
}

// readTrigramsMap reads and parses the trigrams map region
// [offset, limit), validating it is sorted by trigram.
func readTrigramsMap(f *os.File, offset, limit int64) ([]trigramEntry, error) {
	if offset < 0 || offset > limit {
		return nil, errors.Newf(errors.ErrCorrupt, 0, "trigrams map offset %d out of range", offset)
	}
	raw := make([]byte, limit-offset)
	if len(raw) > 0 {
		if _, err := f.ReadAt(raw, offset); err != nil {
			return nil, errors.Newf(errors.ErrIo, 0, "reading trigrams map: %v", err)
		}
	}

	count, n, err := varint.Read(raw)
	if err != nil {
		return nil, err
	}
	raw = raw[n:]
	byteLen, n, err := varint.Read(raw)
	if err != nil {
		return nil, err
	}
	raw = raw[n:]
	if uint64(len(raw)) < byteLen {
		return nil, errors.Newf(errors.ErrCorrupt, 0, "trigrams map truncated")
	}
	raw = raw[:byteLen]

	entries := make([]trigramEntry, 0, count)
	pos := 0
	for i := uint64(0); i < count; i++ {
		if pos+3 > len(raw) {
			return nil, errors.Newf(errors.ErrCorrupt, 0, "trigrams map entry %d truncated", i)
		}
		var t [3]byte
		copy(t[:], raw[pos:pos+3])
		pos += 3

		off, n, err := varint.Read(raw[pos:])
		if err != nil {
			return nil, err
		}
		pos += n
		length, n, err := varint.Read(raw[pos:])
		if err != nil {
			return nil, err
		}
		pos += n

		if len(entries) > 0 && trigramLess(t, entries[len(entries)-1].trigram) {
			return nil, errors.Newf(errors.ErrCorrupt, 0, "trigrams map is not sorted")
		}
		entries = append(entries, trigramEntry{trigram: t, offset: off, length: length})
	}
	return entries, nil
}

func trigramLess(a, b [3]byte) bool {
	for i := 0; i < 3; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// TrigramPostings returns a postings iterator over the chunks whose bytes
// contain t, or ok=false if t does not appear in any chunk.
func (r *Reader) TrigramPostings(t [3]byte) (*postings.Iter, bool, error) {
	idx := sort.Search(len(r.entries), func(i int) bool {
		return !trigramLess(r.entries[i].trigram, t)
	})
	if idx >= len(r.entries) || r.entries[idx].trigram != t {
		return nil, false, nil
	}
	e := r.entries[idx]
	block := make([]byte, e.length)
	if e.length > 0 {
		if _, err := r.file.ReadAt(block, r.postBase+int64(e.offset)); err != nil {
			return nil, false, errors.Newf(errors.ErrIo, 0, "reading postings for trigram %v: %v", t, err)
		}
	}
	return postings.NewIter(block), true, nil
}

// ChunkByteRange returns the [start, end) byte range of chunk id within
// the source file.
func (r *Reader) ChunkByteRange(id uint32) (start, end int64, err error) {
	if id >= uint32(len(r.chunkEnds)) {
		return 0, 0, errors.Newf(errors.ErrCorrupt, 0, "chunk id %d out of range [0, %d)", id, len(r.chunkEnds))
	}
	if id == 0 {
		start = 0
	} else {
		start = int64(r.chunkEnds[id-1])
	}
	end = int64(r.chunkEnds[id])
	return start, end, nil
}

// ChunkLineOffset returns the number of line terminators contained in all
// chunks before id — the base line number to add to a 1-indexed
// within-chunk line number.
func (r *Reader) ChunkLineOffset(id uint32) (uint64, error) {
	if id >= r.NumChunks() {
		return 0, errors.Newf(errors.ErrCorrupt, 0, "chunk id %d out of range [0, %d)", id, r.NumChunks())
	}
	return r.chunkLineOffset[id], nil
}

// NumChunks returns the total number of chunks in the index.
func (r *Reader) NumChunks() uint32 {
	return uint32(len(r.chunkEnds))
}

// Close closes the underlying index file.
func (r *Reader) Close() error {
	return r.file.Close()
}
