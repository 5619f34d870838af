package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/grop-dev/grop/internal/chunkindex"
	"github.com/grop-dev/grop/pkg/kafka"
	"github.com/grop-dev/grop/pkg/proto"
)

type fakeBuildRunner struct {
	stats *chunkindex.BuildStats
	err   error
	calls []string
}

func (f *fakeBuildRunner) Build(ctx context.Context, sourcePath string) (*chunkindex.BuildStats, error) {
	f.calls = append(f.calls, sourcePath)
	return f.stats, f.err
}

func (f *fakeBuildRunner) IndexPath(sourcePath string) string {
	return sourcePath + ".grop"
}

type fakePublisher struct {
	events []kafka.Event
}

func (f *fakePublisher) Publish(ctx context.Context, event kafka.Event) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func TestEnqueuePublishesBuildRequest(t *testing.T) {
	pub := &fakePublisher{}
	e := &Enqueuer{producer: pub}

	if err := e.Enqueue(context.Background(), "/var/log/app.log"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if len(pub.events) != 1 {
		t.Fatalf("expected one published event, got %d", len(pub.events))
	}
	req, ok := pub.events[0].Value.(proto.BuildRequest)
	if !ok {
		t.Fatalf("event value is %T, want proto.BuildRequest", pub.events[0].Value)
	}
	if req.SourcePath != "/var/log/app.log" || pub.events[0].Key != "/var/log/app.log" {
		t.Fatalf("unexpected event: %+v", pub.events[0])
	}
}

func TestHandlePublishesCompletionOnSuccess(t *testing.T) {
	runner := &fakeBuildRunner{stats: &chunkindex.BuildStats{ChunkCount: 3, TrigramCount: 40, SourceBytes: 9000, IndexBytes: 512}}
	pub := &fakePublisher{}
	w := &Worker{builder: runner, complete: pub, logger: slog.Default()}

	value, err := json.Marshal(proto.BuildRequest{SourcePath: "/var/log/app.log"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	if err := w.handle(context.Background(), []byte("/var/log/app.log"), value); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(runner.calls) != 1 || runner.calls[0] != "/var/log/app.log" {
		t.Fatalf("Build called with %v, want one call for /var/log/app.log", runner.calls)
	}
	if len(pub.events) != 1 {
		t.Fatalf("expected one completion event, got %d", len(pub.events))
	}
	resp, ok := pub.events[0].Value.(proto.BuildResponse)
	if !ok {
		t.Fatalf("event value is %T, want proto.BuildResponse", pub.events[0].Value)
	}
	if resp.ChunkCount != 3 || resp.IndexPath != "/var/log/app.log.grop" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestHandlePublishesEmptyResponseOnBuildFailure(t *testing.T) {
	runner := &fakeBuildRunner{err: errors.New("disk full")}
	pub := &fakePublisher{}
	w := &Worker{builder: runner, complete: pub, logger: slog.Default()}

	value, _ := json.Marshal(proto.BuildRequest{SourcePath: "/var/log/app.log"})
	if err := w.handle(context.Background(), nil, value); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(pub.events) != 1 {
		t.Fatalf("expected a completion event even on build failure, got %d", len(pub.events))
	}
	resp := pub.events[0].Value.(proto.BuildResponse)
	if resp.IndexPath != "" || resp.ChunkCount != 0 {
		t.Fatalf("expected zero-value stats on failure, got %+v", resp)
	}
}

func TestHandleRejectsUndecodableMessage(t *testing.T) {
	w := &Worker{builder: &fakeBuildRunner{}, complete: &fakePublisher{}, logger: slog.Default()}
	if err := w.handle(context.Background(), nil, []byte("not json")); err == nil {
		t.Fatalf("expected decode error for malformed message")
	}
}
