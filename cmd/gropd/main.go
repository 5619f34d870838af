package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grop-dev/grop/internal/builder"
	"github.com/grop-dev/grop/internal/catalog"
	"github.com/grop-dev/grop/internal/jobs"
	"github.com/grop-dev/grop/internal/searchsvc"
	"github.com/grop-dev/grop/pkg/config"
	"github.com/grop-dev/grop/pkg/grpc"
	"github.com/grop-dev/grop/pkg/health"
	"github.com/grop-dev/grop/pkg/logger"
	"github.com/grop-dev/grop/pkg/metrics"
	"github.com/grop-dev/grop/pkg/middleware"
	"github.com/grop-dev/grop/pkg/postgres"
	"github.com/grop-dev/grop/pkg/proto"
	gropredis "github.com/grop-dev/grop/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	rpcAddr := flag.String("rpc-addr", ":9100", "address for the build/search RPC server")
	httpAddr := flag.String("http-addr", ":9090", "address for health checks and Prometheus metrics")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting grop daemon")

	m := metrics.New()

	pg, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pg.Close()

	cat := catalog.New(pg)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cat.Migrate(ctx); err != nil {
		slog.Error("failed to migrate catalog schema", "error", err)
		os.Exit(1)
	}

	var cache *gropredis.Client
	cache, err = gropredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, search caching disabled", "error", err)
		cache = nil
	} else {
		defer cache.Close()
	}

	b := builder.New(cfg.Index.DataDir, cfg.Index.ChunkTargetSize, cat, m)
	search := searchsvc.New(cat, cache, cfg.Redis.CacheTTL, m)

	enqueuer := jobs.NewEnqueuer(cfg.Kafka)
	defer enqueuer.Close()

	worker := jobs.NewWorker(cfg.Kafka, b)
	defer worker.Close()
	go func() {
		if err := worker.Run(ctx); err != nil {
			slog.Error("build worker stopped with error", "error", err)
		}
	}()
	slog.Info("build worker started", "topic", cfg.Kafka.Topics.BuildRequest, "group", cfg.Kafka.ConsumerGroup)

	checker := health.NewChecker()
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if err := pg.DB.PingContext(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if cache == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := cache.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	rpcServer := grpc.NewServer()
	rpcServer.Register("BuildService.Build", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req proto.BuildRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, err
		}
		start := time.Now()
		stats, err := b.Build(ctx, req.SourcePath)
		if err != nil {
			return nil, err
		}
		return &proto.BuildResponse{
			SourcePath:   req.SourcePath,
			IndexPath:    b.IndexPath(req.SourcePath),
			ChunkCount:   stats.ChunkCount,
			TrigramCount: stats.TrigramCount,
			SourceBytes:  stats.SourceBytes,
			IndexBytes:   stats.IndexBytes,
			BuildMillis:  time.Since(start).Milliseconds(),
		}, nil
	})
	rpcServer.Register("BuildService.Enqueue", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req proto.BuildRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, err
		}
		if err := enqueuer.Enqueue(ctx, req.SourcePath); err != nil {
			return nil, err
		}
		return &proto.EnqueueResponse{SourcePath: req.SourcePath, Accepted: true}, nil
	})
	rpcServer.Register("SearchService.Search", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req proto.SearchRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, err
		}
		start := time.Now()
		result, cacheHit, err := search.Search(ctx, req.SourcePath, req.Pattern, int(req.Limit))
		if err != nil {
			return nil, err
		}
		resp := &proto.SearchResponse{
			Pattern:      result.Pattern,
			TotalMatches: int32(result.TotalMatches),
			LatencyMs:    time.Since(start).Milliseconds(),
			CacheHit:     cacheHit,
		}
		for _, match := range result.Matches {
			resp.Matches = append(resp.Matches, proto.LineMatch{LineNumber: match.LineNumber, Text: match.Text})
		}
		return resp, nil
	})
	rpcServer.Register("CatalogService.List", func(ctx context.Context, _ json.RawMessage) (any, error) {
		entries, err := cat.List(ctx)
		if err != nil {
			return nil, err
		}
		resp := &proto.StatsResponse{}
		for _, e := range entries {
			resp.Entries = append(resp.Entries, proto.CatalogEntry{
				SourcePath:   e.SourcePath,
				IndexPath:    e.IndexPath,
				ChunkCount:   e.ChunkCount,
				TrigramCount: e.TrigramCount,
				BuiltAtUnix:  e.BuiltAt.Unix(),
			})
		}
		return resp, nil
	})

	go func() {
		slog.Info("rpc server listening", "addr", *rpcAddr)
		if err := rpcServer.Serve(*rpcAddr); err != nil {
			slog.Error("rpc server error", "error", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	mux.Handle("GET /metrics", metrics.Handler())

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.Timeout(30 * time.Second)(chain)

	httpServer := &http.Server{
		Addr:    *httpAddr,
		Handler: chain,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		rpcServer.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", "error", err)
		}
	}()

	slog.Info("http server listening", "addr", *httpAddr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("http server error", "error", err)
		os.Exit(1)
	}

	slog.Info("grop daemon stopped")
}
