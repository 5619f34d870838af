package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/grop-dev/grop/internal/chunkindex"
	"github.com/grop-dev/grop/internal/query"
	"github.com/grop-dev/grop/internal/verify"
	"github.com/grop-dev/grop/pkg/config"
	"github.com/grop-dev/grop/pkg/logger"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	logger.Setup("info", "text")

	var err error
	switch os.Args[1] {
	case "build":
		err = runBuild(os.Args[2:])
	case "search":
		err = runSearch(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "grop: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  grop build [-out path] [-chunk-size bytes] <source-file>")
	fmt.Fprintln(os.Stderr, "  grop search [-index path] [-limit n] [-parallel] <pattern> <source-file>")
}

func runBuild(args []string) error {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	out := fs.String("out", "", "output index path (default: <source>.grop)")
	chunkSize := fs.Int64("chunk-size", config.DefaultChunkTargetSize, "chunk target size in bytes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("build requires exactly one source file argument")
	}
	srcPath := fs.Arg(0)
	outPath := *out
	if outPath == "" {
		outPath = srcPath + ".grop"
	}

	start := time.Now()
	stats, err := chunkindex.Build(srcPath, outPath, *chunkSize)
	if err != nil {
		return err
	}
	slog.Info("build completed",
		"source", srcPath,
		"index", outPath,
		"chunks", stats.ChunkCount,
		"trigrams", stats.TrigramCount,
		"source_bytes", stats.SourceBytes,
		"index_bytes", stats.IndexBytes,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func runSearch(args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	indexPath := fs.String("index", "", "index file path (default: <source>.grop)")
	limit := fs.Int("limit", 0, "maximum matches to return (0 = unlimited)")
	parallel := fs.Bool("parallel", false, "verify candidate chunks concurrently")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("search requires a pattern and a source file argument")
	}
	pattern := fs.Arg(0)
	srcPath := fs.Arg(1)
	idxPath := *indexPath
	if idxPath == "" {
		idxPath = srcPath + ".grop"
	}

	idx, err := chunkindex.Open(idxPath)
	if err != nil {
		return fmt.Errorf("opening index %s (build it first with \"grop build\"): %w", idxPath, err)
	}
	defer idx.Close()

	lineRe, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("compiling pattern: %w", err)
	}
	_, trigramQuery, err := query.Extract(pattern)
	if err != nil {
		return fmt.Errorf("parsing pattern: %w", err)
	}

	bound, err := query.Bind(trigramQuery, idx)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	evaluator := query.NewEvaluator(ctx, bound, idx.NumChunks())
	result, err := verify.Run(ctx, srcPath, idx, lineRe, evaluator, verify.Options{Parallel: *parallel, Limit: *limit})
	if err != nil {
		return err
	}

	for _, m := range result.Matches {
		fmt.Printf("%s:%d:%s\n", srcPath, m.LineNumber, m.Text)
	}
	return nil
}
