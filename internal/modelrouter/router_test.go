package modelrouter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/oratio/teachback/api/session"
	"github.com/oratio/teachback/internal/observability/telemetry"
)

// staticHandle is an in-process model endpoint whose per-call behavior is
// scripted by the test.
type staticHandle struct {
	name string

	mu    sync.Mutex
	calls int
	fail  bool
	reply string
}

func (h *staticHandle) Name() string { return h.name }

func (h *staticHandle) Generate(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	if h.fail {
		return Response{}, errors.New("endpoint unavailable")
	}
	reply := h.reply
	if reply == "" {
		reply = "ok"
	}
	return Response{Text: reply}, nil
}

func (h *staticHandle) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func (h *staticHandle) setFail(fail bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fail = fail
}

func newTestRouter(t *testing.T, primary, fallback *staticHandle) *Router {
	t.Helper()
	router, err := New(primary, fallback, NewHealth(), Config{PrimaryThreshold: 3, FallbackThreshold: 3})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return router
}

func TestHealthySessionNeverTouchesFallback(t *testing.T) {
	t.Parallel()

	primary := &staticHandle{name: "primary"}
	fallback := &staticHandle{name: "fallback"}
	router := newTestRouter(t, primary, fallback)

	for i := 0; i < 5; i++ {
		resp, err := router.Generate(context.Background(), Request{Prompt: fmt.Sprintf("turn %d", i)})
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if resp.Text == "" {
			t.Fatalf("call %d: empty response", i)
		}
	}
	if fallback.callCount() != 0 {
		t.Fatalf("fallback received %d calls", fallback.callCount())
	}
	if primary.callCount() != 5 {
		t.Fatalf("primary received %d calls", primary.callCount())
	}
}

func TestBreakerRoutesToFallbackAfterThreshold(t *testing.T) {
	t.Parallel()

	primary := &staticHandle{name: "primary", fail: true}
	fallback := &staticHandle{name: "fallback", reply: "fallback-served"}
	router := newTestRouter(t, primary, fallback)

	// Three calls fail on the primary and complete transparently on the
	// fallback, opening the primary breaker.
	for i := 0; i < 3; i++ {
		resp, err := router.Generate(context.Background(), Request{Prompt: "teach"})
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if resp.Text != "fallback-served" {
			t.Fatalf("call %d: response %q", i, resp.Text)
		}
	}
	if got := primary.callCount(); got != 3 {
		t.Fatalf("primary call count = %d", got)
	}

	// With the breaker open the next call must not target the primary.
	if _, err := router.Generate(context.Background(), Request{Prompt: "teach"}); err != nil {
		t.Fatalf("post-threshold call: %v", err)
	}
	if got := primary.callCount(); got != 3 {
		t.Fatalf("primary targeted after breaker opened, count = %d", got)
	}
	if got := fallback.callCount(); got != 4 {
		t.Fatalf("fallback call count = %d", got)
	}
}

func TestSuccessResetsBreakerCounter(t *testing.T) {
	t.Parallel()

	primary := &staticHandle{name: "primary", fail: true}
	fallback := &staticHandle{name: "fallback"}
	router := newTestRouter(t, primary, fallback)

	router.Generate(context.Background(), Request{Prompt: "a"})
	router.Generate(context.Background(), Request{Prompt: "b"})
	if got := router.Health().Failures(EndpointPrimary); got != 2 {
		t.Fatalf("primary failures = %d", got)
	}

	primary.setFail(false)
	if _, err := router.Generate(context.Background(), Request{Prompt: "c"}); err != nil {
		t.Fatalf("recovered call: %v", err)
	}
	if got := router.Health().Failures(EndpointPrimary); got != 0 {
		t.Fatalf("failures after success = %d", got)
	}
}

func TestBothBreakersOpenEntersMaintenance(t *testing.T) {
	t.Parallel()

	primary := &staticHandle{name: "primary", fail: true}
	fallback := &staticHandle{name: "fallback", fail: true}
	router := newTestRouter(t, primary, fallback)

	for i := 0; i < 3; i++ {
		if _, err := router.Generate(context.Background(), Request{Prompt: "x"}); err == nil {
			t.Fatalf("call %d succeeded with both endpoints failing", i)
		}
	}
	if !router.Health().Maintenance() {
		t.Fatal("maintenance mode not entered")
	}

	_, err := router.Generate(context.Background(), Request{Prompt: "x"})
	if !errors.Is(err, session.ErrMaintenanceMode) {
		t.Fatalf("err = %v, want ErrMaintenanceMode", err)
	}
}

func TestProbeSuccessClearsMaintenance(t *testing.T) {
	t.Parallel()

	primary := &staticHandle{name: "primary", fail: true}
	fallback := &staticHandle{name: "fallback", fail: true}
	router := newTestRouter(t, primary, fallback)
	for i := 0; i < 3; i++ {
		router.Generate(context.Background(), Request{Prompt: "x"})
	}
	if !router.Health().Maintenance() {
		t.Fatal("maintenance mode not entered")
	}

	if router.Probe(context.Background()) {
		t.Fatal("probe reported recovery with both endpoints down")
	}
	if !router.Health().Maintenance() {
		t.Fatal("failed probe cleared maintenance")
	}

	fallback.setFail(false)
	if !router.Probe(context.Background()) {
		t.Fatal("probe missed recovered fallback")
	}
	if router.Health().Maintenance() {
		t.Fatal("maintenance still set after successful probe")
	}
	if got := router.Health().Failures(EndpointFallback); got != 0 {
		t.Fatalf("fallback failures after probe = %d", got)
	}
}

func TestClearMaintenanceResetsCounters(t *testing.T) {
	t.Parallel()

	primary := &staticHandle{name: "primary", fail: true}
	fallback := &staticHandle{name: "fallback", fail: true}
	router := newTestRouter(t, primary, fallback)
	for i := 0; i < 3; i++ {
		router.Generate(context.Background(), Request{Prompt: "x"})
	}

	router.ClearMaintenance()
	if router.Health().Maintenance() {
		t.Fatal("maintenance still set")
	}
	snapshot := router.Health().Snapshot()
	if snapshot.PrimaryFailures != 0 || snapshot.FallbackFailures != 0 {
		t.Fatalf("counters after clear = %+v", snapshot)
	}
}

func TestAbortDoesNotCountAsEndpointFailure(t *testing.T) {
	t.Parallel()

	primary := &staticHandle{name: "primary"}
	fallback := &staticHandle{name: "fallback"}
	router := newTestRouter(t, primary, fallback)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := router.Generate(ctx, Request{Prompt: "x"}); err == nil {
		t.Fatal("cancelled call succeeded")
	}
	if got := router.Health().Failures(EndpointPrimary); got != 0 {
		t.Fatalf("cancellation recorded as failure, count = %d", got)
	}
}

// recordingEmitter captures emitted metrics so tests can assert on them.
type recordingEmitter struct {
	mu      sync.Mutex
	metrics []struct {
		name  string
		value float64
	}
}

func (e *recordingEmitter) EmitMetric(name string, value float64, _ string, _ map[string]string, _ telemetry.Correlation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics = append(e.metrics, struct {
		name  string
		value float64
	}{name: name, value: value})
}

func (e *recordingEmitter) EmitLog(string, string, string, map[string]string, telemetry.Correlation) {
}

func (e *recordingEmitter) latencySamples() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, m := range e.metrics {
		if m.name == telemetry.MetricModelCallMS && m.value >= 0 {
			n++
		}
	}
	return n
}

func TestCallLatencyMetricEmitted(t *testing.T) {
	emitter := &recordingEmitter{}
	telemetry.SetDefaultEmitter(emitter)
	t.Cleanup(func() { telemetry.SetDefaultEmitter(nil) })

	primary := &staticHandle{name: "primary"}
	fallback := &staticHandle{name: "fallback"}
	router := newTestRouter(t, primary, fallback)

	if _, err := router.Generate(context.Background(), Request{Prompt: "hello"}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if emitter.latencySamples() == 0 {
		t.Fatalf("no call latency metric emitted")
	}
}
