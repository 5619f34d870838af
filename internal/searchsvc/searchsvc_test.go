package searchsvc

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/grop-dev/grop/internal/catalog"
	"github.com/grop-dev/grop/internal/chunkindex"
	"github.com/grop-dev/grop/pkg/errors"
)

type fakeCatalog struct {
	entries map[string]*catalog.Entry
}

func (f *fakeCatalog) Lookup(ctx context.Context, sourcePath string) (*catalog.Entry, error) {
	e, ok := f.entries[sourcePath]
	if !ok {
		return nil, errors.Newf(errors.ErrNotFound, 0, "no index registered for %s", sourcePath)
	}
	return e, nil
}

type fakeCache struct {
	values map[string]string
	gets   int
	sets   int
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: make(map[string]string)}
}

func (f *fakeCache) Get(ctx context.Context, key string) (string, error) {
	f.gets++
	v, ok := f.values[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (f *fakeCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	f.sets++
	switch v := value.(type) {
	case []byte:
		f.values[key] = string(v)
	case string:
		f.values[key] = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		f.values[key] = string(b)
	}
	return nil
}

func buildTestSource(t *testing.T, lines []string) (sourcePath, indexPath string) {
	t.Helper()
	dir := t.TempDir()
	sourcePath = filepath.Join(dir, "app.log")

	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	if err := os.WriteFile(sourcePath, []byte(content), 0o644); err != nil {
		t.Fatalf("writing source: %v", err)
	}
	indexPath = sourcePath + ".grop"
	if _, err := chunkindex.Build(sourcePath, indexPath, 16); err != nil {
		t.Fatalf("Build: %v", err)
	}
	return sourcePath, indexPath
}

func newTestService(t *testing.T, sourcePath, indexPath string, cache cacheStore) *Service {
	t.Helper()
	cat := &fakeCatalog{entries: map[string]*catalog.Entry{
		sourcePath: {SourcePath: sourcePath, IndexPath: indexPath},
	}}
	s := &Service{catalog: cat, ttl: time.Minute, logger: slog.Default()}
	s.cache = cache
	return s
}

func TestSearchFindsMatches(t *testing.T) {
	sourcePath, indexPath := buildTestSource(t, []string{
		"alpha error one",
		"bravo info two",
		"charlie error three",
	})
	s := newTestService(t, sourcePath, indexPath, nil)

	res, cacheHit, err := s.Search(context.Background(), sourcePath, "error", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if cacheHit {
		t.Fatalf("expected a cache miss on first search")
	}
	if res.TotalMatches != 2 {
		t.Fatalf("got %d matches, want 2: %+v", res.TotalMatches, res.Matches)
	}
}

func TestSearchCachesResult(t *testing.T) {
	sourcePath, indexPath := buildTestSource(t, []string{"needle here", "plain line"})
	cache := newFakeCache()
	s := newTestService(t, sourcePath, indexPath, cache)

	res1, hit1, err := s.Search(context.Background(), sourcePath, "needle", 0)
	if err != nil {
		t.Fatalf("Search (1st): %v", err)
	}
	if hit1 {
		t.Fatalf("first search should not be a cache hit")
	}
	if cache.sets != 1 {
		t.Fatalf("expected one cache Set, got %d", cache.sets)
	}

	res2, hit2, err := s.Search(context.Background(), sourcePath, "needle", 0)
	if err != nil {
		t.Fatalf("Search (2nd): %v", err)
	}
	if !hit2 {
		t.Fatalf("second identical search should be a cache hit")
	}
	if res1.TotalMatches != res2.TotalMatches {
		t.Fatalf("cached result differs from original: %d vs %d", res1.TotalMatches, res2.TotalMatches)
	}
}

func TestSearchUnknownSourceReturnsNotFound(t *testing.T) {
	s := &Service{catalog: &fakeCatalog{entries: map[string]*catalog.Entry{}}, ttl: time.Minute, logger: slog.Default()}

	_, _, err := s.Search(context.Background(), "/never/built.log", "anything", 0)
	if err == nil {
		t.Fatalf("expected error for unregistered source")
	}
}

func TestSearchInvalidPatternReturnsError(t *testing.T) {
	sourcePath, indexPath := buildTestSource(t, []string{"one line"})
	s := newTestService(t, sourcePath, indexPath, nil)

	_, _, err := s.Search(context.Background(), sourcePath, "(unclosed", 0)
	if err == nil {
		t.Fatalf("expected error for invalid regex pattern")
	}
}

func TestSearchRespectsLimit(t *testing.T) {
	sourcePath, indexPath := buildTestSource(t, []string{
		"error 1", "error 2", "error 3", "error 4",
	})
	s := newTestService(t, sourcePath, indexPath, nil)

	res, _, err := s.Search(context.Background(), sourcePath, "error", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.TotalMatches != 2 {
		t.Fatalf("got %d matches, want 2", res.TotalMatches)
	}
}
