package builder

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/grop-dev/grop/internal/chunkindex"
	"github.com/grop-dev/grop/pkg/metrics"
)

type fakeRegistrar struct {
	sourcePath string
	indexPath  string
	stats      chunkindex.BuildStats
	err        error
	calls      int
}

func (f *fakeRegistrar) Register(ctx context.Context, sourcePath, indexPath string, stats chunkindex.BuildStats) error {
	f.calls++
	f.sourcePath = sourcePath
	f.indexPath = indexPath
	f.stats = stats
	return f.err
}

func writeTestSource(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "source.log")
	content := "alpha line one\nbravo line two\ncharlie line three\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing test source: %v", err)
	}
	return path
}

func TestBuildRegistersWithCatalog(t *testing.T) {
	dir := t.TempDir()
	srcPath := writeTestSource(t, dir)
	reg := &fakeRegistrar{}

	b := New(dir, 1024, reg, metrics.New())
	stats, err := b.Build(context.Background(), srcPath)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if stats.ChunkCount == 0 {
		t.Fatalf("expected at least one chunk")
	}
	if reg.calls != 1 {
		t.Fatalf("Register called %d times, want 1", reg.calls)
	}
	if reg.sourcePath != srcPath {
		t.Fatalf("Register got sourcePath %s, want %s", reg.sourcePath, srcPath)
	}
	wantIndex := b.IndexPath(srcPath)
	if reg.indexPath != wantIndex {
		t.Fatalf("Register got indexPath %s, want %s", reg.indexPath, wantIndex)
	}
}

func TestBuildWithoutCatalogSkipsRegistration(t *testing.T) {
	dir := t.TempDir()
	srcPath := writeTestSource(t, dir)

	b := New(dir, 1024, nil, nil)
	if _, err := b.Build(context.Background(), srcPath); err != nil {
		t.Fatalf("Build: %v", err)
	}
}

func TestBuildPropagatesRegistrarError(t *testing.T) {
	dir := t.TempDir()
	srcPath := writeTestSource(t, dir)
	reg := &fakeRegistrar{err: os.ErrPermission}

	b := New(dir, 1024, reg, nil)
	if _, err := b.Build(context.Background(), srcPath); err == nil {
		t.Fatalf("expected error from failed registration")
	}
}

func TestBuildMissingSourceReturnsError(t *testing.T) {
	dir := t.TempDir()
	b := New(dir, 1024, nil, nil)
	if _, err := b.Build(context.Background(), filepath.Join(dir, "missing.log")); err == nil {
		t.Fatalf("expected error for missing source file")
	}
}

func TestIndexPathUsesDataDirAndBaseName(t *testing.T) {
	b := New("/var/lib/grop", 1024, nil, nil)
	got := b.IndexPath("/home/user/app.log")
	want := filepath.Join("/var/lib/grop", "app.log.grop")
	if got != want {
		t.Fatalf("IndexPath = %s, want %s", got, want)
	}
}
