// Package verify implements the verifier (component I): given a set of
// candidate chunk IDs from the query evaluator, it re-reads each chunk's
// bytes and runs the real line-anchored regex against every line,
// producing only genuine matches with correct global line numbers.
package verify

import (
	"bufio"
	"context"
	"io"
	"os"
	"regexp"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/grop-dev/grop/internal/chunkindex"
	"github.com/grop-dev/grop/pkg/errors"
)

// Match is one confirmed matching line.
type Match struct {
	LineNumber int64
	Text       string
}

// Result is the outcome of one Run call: the confirmed matches plus the
// candidate/verified chunk counts callers report as metrics.
type Result struct {
	Matches []Match

	// CandidatesCount is the number of chunk IDs drained from the
	// evaluator, before any were dropped by Limit.
	CandidatesCount int

	// ChunksVerifiedCount is the number of those candidates actually
	// opened and scanned against re. Equal to CandidatesCount unless
	// Limit stopped verification before the last candidate.
	ChunksVerifiedCount int
}

// CandidateSource yields ascending candidate chunk IDs — the evaluator's
// Evaluator.Next, narrowed to what verify needs.
type CandidateSource interface {
	Next() (uint32, bool, error)
}

// Options controls a Run call.
type Options struct {
	// Parallel enables running one goroutine per candidate chunk,
	// bounded by GOMAXPROCS via errgroup, with results reassembled in
	// ascending chunk order before being returned. Sequential mode
	// reads and matches chunks one at a time in order, which is
	// simplest and sufficient for small candidate sets.
	Parallel bool

	// Limit caps the number of matches returned; 0 means unlimited.
	Limit int
}

// Run drains cands, verifies every candidate chunk of srcPath's content
// against re (matched against each scanned line on its own, so ^ and $
// anchor to line boundaries without a "(?m)" flag), and returns matches
// in ascending line-number order.
func Run(ctx context.Context, srcPath string, idx *chunkindex.Reader, re *regexp.Regexp, cands CandidateSource, opts Options) (*Result, error) {
	var chunkIDs []uint32
	for {
		if err := ctx.Err(); err != nil {
			return nil, errors.Newf(errors.ErrCancelled, 0, "verification cancelled: %v", err)
		}
		id, ok, err := cands.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		chunkIDs = append(chunkIDs, id)
	}

	var matches []Match
	var verified int
	var err error
	if opts.Parallel {
		matches, verified, err = runParallel(ctx, srcPath, idx, re, chunkIDs, opts.Limit)
	} else {
		matches, verified, err = runSequential(ctx, srcPath, idx, re, chunkIDs, opts.Limit)
	}
	if err != nil {
		return nil, err
	}
	return &Result{Matches: matches, CandidatesCount: len(chunkIDs), ChunksVerifiedCount: verified}, nil
}

func runSequential(ctx context.Context, srcPath string, idx *chunkindex.Reader, re *regexp.Regexp, chunkIDs []uint32, limit int) ([]Match, int, error) {
	f, err := os.Open(srcPath)
	if err != nil {
		return nil, 0, errors.Newf(errors.ErrIo, 0, "opening source file: %v", err)
	}
	defer f.Close()

	var out []Match
	for i, id := range chunkIDs {
		if err := ctx.Err(); err != nil {
			return nil, 0, errors.Newf(errors.ErrCancelled, 0, "verification cancelled: %v", err)
		}
		matches, err := verifyChunk(f, idx, re, id)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, matches...)
		if limit > 0 && len(out) >= limit {
			return out[:limit], i + 1, nil
		}
	}
	return out, len(chunkIDs), nil
}

func runParallel(ctx context.Context, srcPath string, idx *chunkindex.Reader, re *regexp.Regexp, chunkIDs []uint32, limit int) ([]Match, int, error) {
	results := make([][]Match, len(chunkIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, id := range chunkIDs {
		i, id := i, id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return errors.Newf(errors.ErrCancelled, 0, "verification cancelled: %v", err)
			}
			f, err := os.Open(srcPath)
			if err != nil {
				return errors.Newf(errors.ErrIo, 0, "opening source file: %v", err)
			}
			defer f.Close()
			matches, err := verifyChunk(f, idx, re, id)
			if err != nil {
				return err
			}
			results[i] = matches
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	// Chunk IDs are already ascending (the evaluator's contract), so
	// reassembling results in index order preserves line-number order.
	// Every chunk is already opened and scanned by the time g.Wait
	// returns, so the verified count is always the full candidate set.
	var out []Match
	for _, matches := range results {
		out = append(out, matches...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LineNumber < out[j].LineNumber })
	if limit > 0 && len(out) >= limit {
		return out[:limit], len(chunkIDs), nil
	}
	return out, len(chunkIDs), nil
}

func verifyChunk(f *os.File, idx *chunkindex.Reader, re *regexp.Regexp, id uint32) ([]Match, error) {
	start, end, err := idx.ChunkByteRange(id)
	if err != nil {
		return nil, err
	}
	base, err := idx.ChunkLineOffset(id)
	if err != nil {
		return nil, err
	}

	section := io.NewSectionReader(f, start, end-start)
	scanner := bufio.NewScanner(section)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var matches []Match
	lineNum := int64(base) + 1
	for scanner.Scan() {
		line := scanner.Text()
		if re.MatchString(line) {
			matches = append(matches, Match{LineNumber: lineNum, Text: line})
		}
		lineNum++
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Newf(errors.ErrIo, 0, "scanning chunk %d: %v", id, err)
	}
	return matches, nil
}
