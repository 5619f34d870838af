// Package jobs wires the builder to Kafka: a producer that enqueues
// build requests and a consumer that drains them, runs the builder, and
// publishes completion events.
package jobs

import (
	"context"
	"log/slog"

	"github.com/grop-dev/grop/internal/builder"
	"github.com/grop-dev/grop/internal/chunkindex"
	"github.com/grop-dev/grop/pkg/config"
	"github.com/grop-dev/grop/pkg/kafka"
	"github.com/grop-dev/grop/pkg/proto"
	"github.com/grop-dev/grop/pkg/resilience"
)

// requestPublisher is the subset of *kafka.Producer an Enqueuer needs —
// kept as an interface so tests can fake it without a live broker.
type requestPublisher interface {
	Publish(ctx context.Context, event kafka.Event) error
	Close() error
}

// Enqueuer publishes build requests for asynchronous processing by a
// pool of consumer workers.
type Enqueuer struct {
	producer requestPublisher
}

// NewEnqueuer creates an Enqueuer publishing to the build-request topic.
func NewEnqueuer(cfg config.KafkaConfig) *Enqueuer {
	return &Enqueuer{producer: kafka.NewProducer(cfg, cfg.Topics.BuildRequest)}
}

// Enqueue publishes a build request for sourcePath, keyed by path so
// repeated requests for the same file land on the same partition.
func (e *Enqueuer) Enqueue(ctx context.Context, sourcePath string) error {
	return resilience.Retry(ctx, "kafka-enqueue-build", resilience.RetryConfig{MaxAttempts: 3}, func() error {
		return e.producer.Publish(ctx, kafka.Event{
			Key:   sourcePath,
			Value: proto.BuildRequest{SourcePath: sourcePath},
		})
	})
}

// Close closes the underlying producer.
func (e *Enqueuer) Close() error { return e.producer.Close() }

// buildRunner is the subset of *builder.Builder a Worker needs — kept as
// an interface so tests can fake it without touching the filesystem.
type buildRunner interface {
	Build(ctx context.Context, sourcePath string) (*chunkindex.BuildStats, error)
	IndexPath(sourcePath string) string
}

// completionPublisher is the subset of *kafka.Producer a Worker needs to
// announce a finished build.
type completionPublisher interface {
	Publish(ctx context.Context, event kafka.Event) error
	Close() error
}

// Worker consumes build requests and runs them through a Builder,
// publishing a completion event to the build-complete topic for each.
type Worker struct {
	consumer *kafka.Consumer
	complete completionPublisher
	builder  buildRunner
	logger   *slog.Logger
}

// NewWorker creates a Worker reading from the build-request topic and
// publishing to the build-complete topic.
func NewWorker(cfg config.KafkaConfig, b *builder.Builder) *Worker {
	w := &Worker{
		complete: kafka.NewProducer(cfg, cfg.Topics.BuildComplete),
		builder:  b,
		logger:   slog.Default().With("component", "build-worker"),
	}
	w.consumer = kafka.NewConsumer(cfg, cfg.Topics.BuildRequest, w.handle)
	return w
}

// Run blocks, consuming build requests until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	return w.consumer.Start(ctx)
}

// Close closes the consumer and completion producer.
func (w *Worker) Close() error {
	cErr := w.consumer.Close()
	pErr := w.complete.Close()
	if cErr != nil {
		return cErr
	}
	return pErr
}

func (w *Worker) handle(ctx context.Context, key []byte, value []byte) error {
	req, err := kafka.DecodeJSON[proto.BuildRequest](value)
	if err != nil {
		return err
	}

	stats, buildErr := w.builder.Build(ctx, req.SourcePath)
	resp := proto.BuildResponse{SourcePath: req.SourcePath}
	if buildErr != nil {
		w.logger.Error("build job failed", "source", req.SourcePath, "error", buildErr)
	} else {
		resp.IndexPath = w.builder.IndexPath(req.SourcePath)
		resp.ChunkCount = stats.ChunkCount
		resp.TrigramCount = stats.TrigramCount
		resp.SourceBytes = stats.SourceBytes
		resp.IndexBytes = stats.IndexBytes
	}

	return w.complete.Publish(ctx, kafka.Event{Key: req.SourcePath, Value: resp})
}
