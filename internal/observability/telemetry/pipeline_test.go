package telemetry

import (
	"context"
	"testing"
	"time"
)

func TestPipelineExportsToSink(t *testing.T) {
	t.Parallel()

	sink := NewMemorySink()
	pipeline := NewPipeline(sink, Config{QueueCapacity: 8})

	pipeline.EmitLog("session_created", "info", "session created", map[string]string{"input_mode": "voice"}, Correlation{SessionID: "sess-1", Component: "controller"})
	pipeline.EmitMetric(MetricModelCallMS, 42, "ms", nil, Correlation{SessionID: "sess-1"})

	if err := pipeline.Close(); err != nil {
		t.Fatalf("close pipeline: %v", err)
	}

	events := sink.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 exported events, got %d", len(events))
	}
	if events[0].Kind != EventKindLog || events[0].Log.Name != "session_created" {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	if events[1].Kind != EventKindMetric || events[1].Metric.Name != MetricModelCallMS {
		t.Fatalf("unexpected second event: %+v", events[1])
	}

	stats := pipeline.Stats()
	if stats.Exported != 2 || stats.Dropped != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestPipelineDropsOnOverflow(t *testing.T) {
	t.Parallel()

	blocked := make(chan struct{})
	sink := slowSink{release: blocked}
	pipeline := NewPipeline(sink, Config{QueueCapacity: 1, ExportTimeout: 50 * time.Millisecond})

	for i := 0; i < 16; i++ {
		pipeline.EmitLog("noise", "debug", "overflow probe", nil, Correlation{})
	}
	close(blocked)
	if err := pipeline.Close(); err != nil {
		t.Fatalf("close pipeline: %v", err)
	}

	stats := pipeline.Stats()
	if stats.Dropped == 0 {
		t.Fatalf("expected dropped events under overflow, got %+v", stats)
	}
}

func TestDefaultEmitterFallsBackToNoop(t *testing.T) {
	SetDefaultEmitter(nil)
	emitter := DefaultEmitter()
	// Must not panic.
	emitter.EmitLog("noop", "info", "ignored", nil, Correlation{})
	emitter.EmitMetric("noop", 1, "", nil, Correlation{})
}

type slowSink struct {
	release chan struct{}
}

func (s slowSink) Export(ctx context.Context, _ Event) error {
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
