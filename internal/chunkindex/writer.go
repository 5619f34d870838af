package chunkindex

import (
	"bufio"
	"bytes"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/grop-dev/grop/internal/postings"
	"github.com/grop-dev/grop/internal/varint"
	"github.com/grop-dev/grop/pkg/errors"
)

// BuildStats summarizes a completed build, the numbers the CLI's build
// report and the daemon's BuildResponse both surface.
type BuildStats struct {
	ChunkCount   uint32
	TrigramCount uint32
	SourceBytes  int64
	IndexBytes   int64
}

// bitsetBytes is the size in bytes of a bitset addressing every trigram in
// the 2^24 trigram space.
const bitsetBytes = (1 << 24) / 8

// roleState holds one of the two ping-ponged per-chunk "trigrams seen"
// trackers described in the writer algorithm below: a reused bitset plus
// the list of indices currently set, so clearing touches only what was
// set rather than scanning all 2^24 bits.
type roleState struct {
	bitset []byte
	list   []uint32
}

func newRoleState() *roleState {
	return &roleState{bitset: make([]byte, bitsetBytes)}
}

func (rs *roleState) mark(idx uint32) {
	byteIdx := idx >> 3
	bit := byte(1) << (idx & 7)
	if rs.bitset[byteIdx]&bit == 0 {
		rs.bitset[byteIdx] |= bit
		rs.list = append(rs.list, idx)
	}
}

// flushInto appends chunkID to the postings list of every trigram index
// this role saw, then clears exactly those bits and resets the list so the
// role is ready to be reused for a later chunk.
func (rs *roleState) flushInto(table map[uint32][]uint32, chunkID uint32) {
	for _, idx := range rs.list {
		table[idx] = append(table[idx], chunkID)
		rs.bitset[idx>>3] &^= byte(1) << (idx & 7)
	}
	rs.list = rs.list[:0]
}

// Build streams srcPath into chunks ending on '\n' at or after
// chunkTargetSize bytes from each chunk's start, and writes the resulting
// trigram index to outPath atomically (write to a temp file, then
// rename). It implements the index writer, component C.
//
// The rolling 3-byte trigram window is never explicitly reset at a chunk
// boundary. Instead, every byte pushed into the window carries the ID of
// the chunk that was active when it was consumed. A completed trigram is
// always attributed to the chunk that owns its first byte. Because a
// chunk only advances when a '\n' is consumed, and the window holds at
// most two pending bytes, at most the final two byte positions of a
// just-closed chunk can still own a pending trigram once the next chunk
// starts — which is exactly the "attributed to the chunk containing the
// trigram's first byte" rule. A closed chunk's postings are therefore
// flushed two byte-iterations after its closing '\n', never immediately.
func Build(srcPath, outPath string, chunkTargetSize int64) (*BuildStats, error) {
	if chunkTargetSize < MinChunkTargetSize {
		return nil, errors.Newf(errors.ErrIo, 0, "chunk_target_size must be at least %d bytes, got %d", MinChunkTargetSize, chunkTargetSize)
	}

	srcFile, err := os.Open(srcPath)
	if err != nil {
		return nil, errors.Newf(errors.ErrIo, 0, "opening source file: %v", err)
	}
	defer srcFile.Close()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return nil, errors.Newf(errors.ErrIo, 0, "statting source file: %v", err)
	}

	postingsTable := make(map[uint32][]uint32)
	var chunkEnds []uint64
	var chunkLineCounts []uint32

	if srcInfo.Size() > 0 {
		if err := scan(srcFile, chunkTargetSize, postingsTable, &chunkEnds, &chunkLineCounts); err != nil {
			return nil, err
		}
	}

	chunkCount := uint64(len(chunkEnds))
	if chunkCount > math.MaxUint32 {
		return nil, errors.Newf(errors.ErrTooLarge, 0, "source file requires %d chunks, exceeding the u32 chunk id space", chunkCount)
	}

	indexBytes, err := serialize(header{
		Version:         FormatVersion,
		ChunkCount:      chunkCount,
		ChunkTargetSize: uint64(chunkTargetSize),
	}, chunkEnds, chunkLineCounts, postingsTable)
	if err != nil {
		return nil, err
	}

	if err := writeAtomic(outPath, indexBytes); err != nil {
		return nil, err
	}

	return &BuildStats{
		ChunkCount:   uint32(chunkCount),
		TrigramCount: uint32(len(postingsTable)),
		SourceBytes:  srcInfo.Size(),
		IndexBytes:   int64(len(indexBytes)),
	}, nil
}

// scan performs the single streaming pass over the source file described
// in the Build doc comment, populating postingsTable, chunkEnds, and
// chunkLineCounts.
func scan(src io.Reader, chunkTargetSize int64, postingsTable map[uint32][]uint32, chunkEnds *[]uint64, chunkLineCounts *[]uint32) error {
	reader := bufio.NewReaderSize(src, 64*1024)

	roles := [2]*roleState{newRoleState(), newRoleState()}
	activeRole := 0
	activeChunkID := uint32(0)

	closingActive := false
	closingRole := 0
	closingChunkID := uint32(0)
	closingCountdown := 0

	var byteWin [2]byte
	var ownerWin [2]uint32
	haveLen := 0

	var offset, chunkStart int64
	var chunkLineCount uint32

	mark := func(owner uint32, idx uint32) {
		if owner == activeChunkID {
			roles[activeRole].mark(idx)
		} else if closingActive && owner == closingChunkID {
			roles[closingRole].mark(idx)
		}
	}

	for {
		b, err := reader.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Newf(errors.ErrIo, 0, "reading source file: %v", err)
		}

		if haveLen == 2 {
			idx := trigramIndex(byteWin[0], byteWin[1], b)
			mark(ownerWin[0], idx)
		}

		byteWin[0], ownerWin[0] = byteWin[1], ownerWin[1]
		byteWin[1], ownerWin[1] = b, activeChunkID
		if haveLen < 2 {
			haveLen++
		}

		if b == '\n' {
			chunkLineCount++
		}
		offset++

		if b == '\n' && offset-chunkStart >= chunkTargetSize {
			*chunkEnds = append(*chunkEnds, uint64(offset))
			*chunkLineCounts = append(*chunkLineCounts, chunkLineCount)

			if closingActive {
				roles[closingRole].flushInto(postingsTable, closingChunkID)
			}
			closingRole = activeRole
			closingChunkID = activeChunkID
			closingActive = true
			// The closing chunk still owns two pending trigrams: the
			// ones whose first byte is its last two bytes (byte N-1 and
			// the closing '\n' itself). Those complete at the next two
			// byte-iterations, and this same iteration already
			// decrements once below, so the countdown needs three
			// ticks to survive through both.
			closingCountdown = 3

			activeRole = 1 - activeRole
			activeChunkID++
			chunkStart = offset
			chunkLineCount = 0
		}

		if closingActive {
			closingCountdown--
			if closingCountdown == 0 {
				roles[closingRole].flushInto(postingsTable, closingChunkID)
				closingActive = false
			}
		}
	}

	if closingActive {
		roles[closingRole].flushInto(postingsTable, closingChunkID)
	}

	if offset > chunkStart {
		*chunkEnds = append(*chunkEnds, uint64(offset))
		*chunkLineCounts = append(*chunkLineCounts, chunkLineCount)
		roles[activeRole].flushInto(postingsTable, activeChunkID)
	}

	return nil
}

// serialize builds the full index artifact bytes for one build.
func serialize(h header, chunkEnds []uint64, chunkLineCounts []uint32, postingsTable map[uint32][]uint32) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(encodeHeader(h))

	chunkEndsBlock := encodeDeltaU64(chunkEnds)
	buf.Write(varint.Append(nil, uint64(len(chunkEndsBlock))))
	buf.Write(chunkEndsBlock)

	var lineCountsBlock []byte
	for _, c := range chunkLineCounts {
		lineCountsBlock = varint.Append(lineCountsBlock, uint64(c))
	}
	buf.Write(varint.Append(nil, uint64(len(lineCountsBlock))))
	buf.Write(lineCountsBlock)

	sortedTrigrams := make([]uint32, 0, len(postingsTable))
	for idx := range postingsTable {
		sortedTrigrams = append(sortedTrigrams, idx)
	}
	sort.Slice(sortedTrigrams, func(i, j int) bool { return sortedTrigrams[i] < sortedTrigrams[j] })

	type mapEntry struct {
		trigram [3]byte
		offset  uint64
		length  uint64
	}
	entries := make([]mapEntry, 0, len(sortedTrigrams))

	postBase := buf.Len()
	for _, idx := range sortedTrigrams {
		block := postings.Encode(nil, postingsTable[idx])
		entries = append(entries, mapEntry{
			trigram: trigramBytes(idx),
			offset:  uint64(buf.Len() - postBase),
			length:  uint64(len(block)),
		})
		buf.Write(block)
	}

	trigramsMapOffset := uint64(buf.Len())

	var entriesBuf bytes.Buffer
	for _, e := range entries {
		entriesBuf.Write(e.trigram[:])
		entriesBuf.Write(varint.Append(nil, e.offset))
		entriesBuf.Write(varint.Append(nil, e.length))
	}
	buf.Write(varint.Append(nil, uint64(len(entries))))
	buf.Write(varint.Append(nil, uint64(entriesBuf.Len())))
	buf.Write(entriesBuf.Bytes())

	footer := make([]byte, FooterSize)
	putUint64LE(footer[0:8], trigramsMapOffset)
	copy(footer[8:12], Magic[:])
	buf.Write(footer)

	return buf.Bytes(), nil
}

// encodeDeltaU64 applies the same delta-varint scheme as the postings
// codec (component B) to an ascending u64 sequence — used for the
// chunk-ends table, whose byte offsets can exceed the u32 range that
// component B itself is specified over.
func encodeDeltaU64(xs []uint64) []byte {
	var out []byte
	var prev uint64
	has := false
	for _, x := range xs {
		if !has {
			out = varint.Append(out, x)
		} else {
			out = varint.Append(out, x-prev-1)
		}
		prev = x
		has = true
	}
	return out
}

// decodeDeltaU64 reverses encodeDeltaU64.
func decodeDeltaU64(data []byte) ([]uint64, error) {
	var out []uint64
	var prev uint64
	has := false
	pos := 0
	for pos < len(data) {
		delta, n, err := varint.Read(data[pos:])
		if err != nil {
			return nil, err
		}
		pos += n
		var v uint64
		if !has {
			v = delta
		} else {
			v = prev + delta + 1
		}
		if has && v <= prev {
			return nil, errors.Newf(errors.ErrCorrupt, 0, "chunk ends not strictly ascending: %d after %d", v, prev)
		}
		prev, has = v, true
		out = append(out, v)
	}
	return out, nil
}

func putUint64LE(dst []byte, v uint64) {
	for i := 0; i < 8; i++ {
		dst[i] = byte(v >> (8 * i))
	}
}

// writeAtomic writes data to a temp file in the same directory as path,
// fsyncs it, then renames it into place — the same write-to-temp +
// rename pattern the teacher's segment writer uses.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Newf(errors.ErrIo, 0, "creating index directory: %v", err)
	}
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return errors.Newf(errors.ErrIo, 0, "creating temp index file: %v", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return errors.Newf(errors.ErrIo, 0, "writing index file: %v", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.Newf(errors.ErrIo, 0, "syncing index file: %v", err)
	}
	if err := f.Close(); err != nil {
		return errors.Newf(errors.ErrIo, 0, "closing index file: %v", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Newf(errors.ErrIo, 0, "renaming index file into place: %v", err)
	}
	return nil
}
