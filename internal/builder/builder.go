// Package builder orchestrates a single index build: run the chunk
// index writer over a source file, record the result in the catalog,
// and emit the build metrics and log lines the daemon relies on. The
// standalone CLI calls chunkindex.Build directly and does not use it.
package builder

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/grop-dev/grop/internal/chunkindex"
	"github.com/grop-dev/grop/pkg/metrics"
)

// Registrar is the subset of the catalog the builder needs — kept as an
// interface so tests can fake it without a database.
type Registrar interface {
	Register(ctx context.Context, sourcePath, indexPath string, stats chunkindex.BuildStats) error
}

// Builder runs chunkindex.Build for a configured data directory and
// registers the result.
type Builder struct {
	DataDir         string
	ChunkTargetSize int64
	Catalog         Registrar
	Metrics         *metrics.Metrics
	Logger          *slog.Logger
}

// New returns a Builder with a logger tagged "builder", matching the
// teacher's per-component logger convention. m may be nil to disable
// metrics recording (e.g. in tests).
func New(dataDir string, chunkTargetSize int64, catalog Registrar, m *metrics.Metrics) *Builder {
	return &Builder{
		DataDir:         dataDir,
		ChunkTargetSize: chunkTargetSize,
		Catalog:         catalog,
		Metrics:         m,
		Logger:          slog.Default().With("component", "builder"),
	}
}

// IndexPath returns the on-disk path the build for sourcePath will
// produce, inside the builder's data directory.
func (b *Builder) IndexPath(sourcePath string) string {
	return filepath.Join(b.DataDir, filepath.Base(sourcePath)+".grop")
}

// Build runs a full build for sourcePath, records it in the catalog, and
// returns the resulting stats.
func (b *Builder) Build(ctx context.Context, sourcePath string) (*chunkindex.BuildStats, error) {
	indexPath := b.IndexPath(sourcePath)
	b.Logger.Info("build started", "source", sourcePath, "index", indexPath)

	start := time.Now()
	stats, err := chunkindex.Build(sourcePath, indexPath, b.ChunkTargetSize)
	elapsed := time.Since(start)

	if err != nil {
		if b.Metrics != nil {
			b.Metrics.BuildsTotal.WithLabelValues("error").Inc()
		}
		b.Logger.Error("build failed", "source", sourcePath, "error", err)
		return nil, err
	}
	if b.Metrics != nil {
		b.Metrics.BuildsTotal.WithLabelValues("success").Inc()
		b.Metrics.BuildDuration.Observe(elapsed.Seconds())
		b.Metrics.BytesScannedTotal.Add(float64(stats.SourceBytes))
		b.Metrics.ChunksWrittenTotal.Add(float64(stats.ChunkCount))
		b.Metrics.TrigramsWrittenTotal.Add(float64(stats.TrigramCount))
		b.Metrics.IndexBytesWritten.Add(float64(stats.IndexBytes))
	}

	if b.Catalog != nil {
		if err := b.Catalog.Register(ctx, sourcePath, indexPath, *stats); err != nil {
			b.Logger.Error("catalog registration failed", "source", sourcePath, "error", err)
			return nil, err
		}
	}

	b.Logger.Info("build completed",
		"source", sourcePath,
		"index", indexPath,
		"chunks", stats.ChunkCount,
		"trigrams", stats.TrigramCount,
		"elapsed_ms", elapsed.Milliseconds(),
	)
	return stats, nil
}
