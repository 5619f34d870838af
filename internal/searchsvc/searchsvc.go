// Package searchsvc orchestrates a search end to end: extract trigrams
// from the pattern (component F), bind them against the source file's
// chunk index (component G), stream candidate chunks (component H),
// verify each with the real regex (component I), and cache the result
// in Redis keyed by (source path, pattern, limit) with singleflight collapsing
// concurrent identical requests into one pipeline run.
package searchsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/grop-dev/grop/internal/catalog"
	"github.com/grop-dev/grop/internal/chunkindex"
	"github.com/grop-dev/grop/internal/query"
	"github.com/grop-dev/grop/internal/verify"
	"github.com/grop-dev/grop/pkg/errors"
	"github.com/grop-dev/grop/pkg/metrics"
	gropredis "github.com/grop-dev/grop/pkg/redis"
	"github.com/grop-dev/grop/pkg/resilience"
	"github.com/grop-dev/grop/pkg/tracing"
)

// pipelineTimeout bounds one search pipeline run (rewrite through
// verification), guarding against a pathological pattern or a very
// large candidate set stalling a request indefinitely.
const pipelineTimeout = 10 * time.Second

// Result is the JSON-cacheable outcome of one search.
type Result struct {
	Pattern      string         `json:"pattern"`
	TotalMatches int            `json:"totalMatches"`
	Matches      []verify.Match `json:"matches"`
}

// catalogLookup is the subset of *catalog.Catalog a Service needs — kept
// as an interface so tests can fake it without a database.
type catalogLookup interface {
	Lookup(ctx context.Context, sourcePath string) (*catalog.Entry, error)
}

// cacheStore is the subset of *gropredis.Client a Service needs.
type cacheStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Service runs the search pipeline with a Redis-backed cache.
type Service struct {
	catalog catalogLookup
	cache   cacheStore
	ttl     time.Duration
	metrics *metrics.Metrics
	sf      singleflight.Group
	logger  *slog.Logger
}

// New creates a Service. cache and m may both be nil to disable caching
// and metrics recording respectively.
func New(cat *catalog.Catalog, cache *gropredis.Client, ttl time.Duration, m *metrics.Metrics) *Service {
	s := &Service{
		catalog: cat,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "search"),
	}
	if cache != nil {
		s.cache = cache
	}
	return s
}

// Search runs pattern against sourcePath's current index, returning at
// most limit matches (0 means unlimited).
func (s *Service) Search(ctx context.Context, sourcePath, pattern string, limit int) (*Result, bool, error) {
	key := cacheKey(sourcePath, pattern, limit)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, key); err == nil {
			var res Result
			if jsonErr := json.Unmarshal([]byte(cached), &res); jsonErr == nil {
				if s.metrics != nil {
					s.metrics.CacheHitsTotal.Inc()
				}
				return &res, true, nil
			}
		} else if !gropredis.IsNilError(err) {
			s.logger.Warn("cache get failed", "error", err)
		}
		if s.metrics != nil {
			s.metrics.CacheMissesTotal.Inc()
		}
	}

	v, err, _ := s.sf.Do(key, func() (interface{}, error) {
		return s.run(ctx, sourcePath, pattern, limit)
	})
	if err != nil {
		return nil, false, err
	}
	res := v.(*Result)

	if s.cache != nil {
		if encoded, jsonErr := json.Marshal(res); jsonErr == nil {
			if err := s.cache.Set(ctx, key, encoded, s.ttl); err != nil {
				s.logger.Warn("cache set failed", "error", err)
			}
		}
	}
	return res, false, nil
}

func (s *Service) run(ctx context.Context, sourcePath, pattern string, limit int) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "search.run", sourcePath)
	defer func() {
		span.End()
		span.Log()
	}()
	span.SetAttr("pattern", pattern)

	var result *verify.Result
	start := time.Now()
	err := resilience.WithTimeout(ctx, pipelineTimeout, "search.pipeline", func(ctx context.Context) error {
		r, runErr := s.runPipeline(ctx, sourcePath, pattern, limit)
		result = r
		return runErr
	})
	if err != nil {
		if ctx.Err() != nil {
			s.countQuery("cancelled")
		} else {
			s.countQuery("error")
		}
		return nil, err
	}
	s.countQuery("success")
	if s.metrics != nil {
		s.metrics.QueryLatency.WithLabelValues("miss").Observe(time.Since(start).Seconds())
		s.metrics.MatchesReturnedCount.Observe(float64(len(result.Matches)))
		s.metrics.CandidateChunksCount.Observe(float64(result.CandidatesCount))
		s.metrics.ChunksVerifiedCount.Observe(float64(result.ChunksVerifiedCount))
	}
	span.SetAttr("matches", len(result.Matches))
	span.SetAttr("candidates", result.CandidatesCount)

	return &Result{Pattern: pattern, TotalMatches: len(result.Matches), Matches: result.Matches}, nil
}

// runPipeline runs the extract -> bind -> evaluate -> verify chain once,
// with no retry or timeout logic of its own — that's the caller's job.
func (s *Service) runPipeline(ctx context.Context, sourcePath, pattern string, limit int) (*verify.Result, error) {
	entry, err := s.catalog.Lookup(ctx, sourcePath)
	if err != nil {
		return nil, err
	}

	idx, err := chunkindex.Open(entry.IndexPath)
	if err != nil {
		return nil, err
	}
	defer idx.Close()

	_, trigramQuery, err := query.Extract(pattern)
	if err != nil {
		s.countQuery("parse_error")
		return nil, errors.Newf(errors.ErrIo, 0, "parsing pattern %q: %v", pattern, err)
	}

	lineRe, err := regexp.Compile(pattern)
	if err != nil {
		s.countQuery("parse_error")
		return nil, errors.Newf(errors.ErrIo, 0, "compiling pattern %q: %v", pattern, err)
	}

	bound, err := query.Bind(trigramQuery, idx)
	if err != nil {
		return nil, err
	}

	evaluator := query.NewEvaluator(ctx, bound, idx.NumChunks())
	return verify.Run(ctx, sourcePath, idx, lineRe, evaluator, verify.Options{Limit: limit})
}

func cacheKey(sourcePath, pattern string, limit int) string {
	return fmt.Sprintf("grop:search:%s:%s:%d", sourcePath, pattern, limit)
}

func (s *Service) countQuery(outcome string) {
	if s.metrics != nil {
		s.metrics.QueriesTotal.WithLabelValues(outcome).Inc()
	}
}
