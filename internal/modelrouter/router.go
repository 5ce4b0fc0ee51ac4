// Package modelrouter routes model calls between a primary and a fallback
// endpoint. Consecutive failures trip a per-endpoint breaker; with the
// primary breaker open calls target the fallback, and with both open the
// process enters maintenance mode until an operator clears it or a health
// probe sees one success from either endpoint.
package modelrouter

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/oratio/teachback/api/session"
	"github.com/oratio/teachback/internal/observability/telemetry"
)

var (
	modelCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teachback_model_calls_total",
			Help: "Model calls by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)
	failoversTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "teachback_model_failovers_total",
			Help: "Calls served by the fallback because the primary breaker was open or the primary failed in-call",
		},
	)
	maintenanceGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "teachback_maintenance_mode",
			Help: "1 while the process is in maintenance mode",
		},
	)
)

// Request is one model call.
type Request struct {
	System string
	Prompt string
}

// Response is the model's reply.
type Response struct {
	Text string
}

// Handle is a single model endpoint.
type Handle interface {
	Name() string
	Generate(ctx context.Context, req Request) (Response, error)
}

// Config tunes breaker thresholds and the per-call deadline.
type Config struct {
	PrimaryThreshold  uint32
	FallbackThreshold uint32
	CallTimeout       time.Duration
}

func (c Config) withDefaults() Config {
	if c.PrimaryThreshold == 0 {
		c.PrimaryThreshold = 3
	}
	if c.FallbackThreshold == 0 {
		c.FallbackThreshold = 3
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 30 * time.Second
	}
	return c
}

// Router holds the two handles and the shared health state.
type Router struct {
	primary  Handle
	fallback Handle
	health   *Health
	cfg      Config
}

// New constructs a Router. Both handles are required.
func New(primary, fallback Handle, health *Health, cfg Config) (*Router, error) {
	if primary == nil || fallback == nil {
		return nil, fmt.Errorf("router requires primary and fallback handles")
	}
	if health == nil {
		health = NewHealth()
	}
	return &Router{primary: primary, fallback: fallback, health: health, cfg: cfg.withDefaults()}, nil
}

// Health exposes the shared health state.
func (r *Router) Health() *Health { return r.health }

// Generate routes one call. The caller never learns which endpoint served
// it; failover is transparent. With both breakers open the call is rejected
// with session.ErrMaintenanceMode.
func (r *Router) Generate(ctx context.Context, req Request) (Response, error) {
	if r.health.Maintenance() {
		return Response{}, session.ErrMaintenanceMode
	}

	target := EndpointPrimary
	handle := r.primary
	if r.health.Failures(EndpointPrimary) >= r.cfg.PrimaryThreshold {
		target = EndpointFallback
		handle = r.fallback
		failoversTotal.Inc()
	}

	resp, err := r.call(ctx, target, handle, req)
	if err == nil {
		return resp, nil
	}
	if ctx.Err() == context.Canceled {
		return Response{}, err
	}

	if target == EndpointPrimary {
		// In-call failover: a failed primary attempt still gets one
		// fallback attempt so the turn can complete silently.
		failoversTotal.Inc()
		resp, fbErr := r.call(ctx, EndpointFallback, r.fallback, req)
		if fbErr == nil {
			return resp, nil
		}
		return Response{}, fmt.Errorf("model call failed on both endpoints: %w", fbErr)
	}
	return Response{}, fmt.Errorf("model call failed: %w", err)
}

func (r *Router) call(ctx context.Context, target Endpoint, handle Handle, req Request) (Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()

	start := time.Now()
	resp, err := handle.Generate(callCtx, req)
	elapsed := time.Since(start)

	telemetry.DefaultEmitter().EmitMetric(
		telemetry.MetricModelCallMS,
		float64(elapsed.Milliseconds()),
		"ms",
		map[string]string{"endpoint": string(target), "handle": handle.Name()},
		telemetry.Correlation{Component: "model-router"},
	)

	if err != nil {
		if ctx.Err() == context.Canceled {
			// Caller abort, not an endpoint failure.
			modelCallsTotal.WithLabelValues(string(target), "cancelled").Inc()
			return Response{}, fmt.Errorf("%s endpoint %s: %w", target, handle.Name(), err)
		}
		// Deadline exceeded counts as a failure like any other.
		modelCallsTotal.WithLabelValues(string(target), "failure").Inc()
		count := r.health.RecordFailure(target)
		r.noteBreakers(target, count)
		return Response{}, fmt.Errorf("%s endpoint %s: %w", target, handle.Name(), err)
	}

	modelCallsTotal.WithLabelValues(string(target), "success").Inc()
	r.health.RecordSuccess(target)
	return resp, nil
}

func (r *Router) noteBreakers(failed Endpoint, count uint32) {
	threshold := r.cfg.PrimaryThreshold
	if failed == EndpointFallback {
		threshold = r.cfg.FallbackThreshold
	}
	if count == threshold {
		telemetry.DefaultEmitter().EmitLog(
			"model_breaker_open", "warn",
			fmt.Sprintf("%s endpoint reached %d consecutive failures", failed, count),
			map[string]string{"endpoint": string(failed)},
			telemetry.Correlation{Component: "model-router"},
		)
	}
	if r.health.Failures(EndpointPrimary) >= r.cfg.PrimaryThreshold &&
		r.health.Failures(EndpointFallback) >= r.cfg.FallbackThreshold {
		if r.health.EnterMaintenance() {
			maintenanceGauge.Set(1)
			telemetry.DefaultEmitter().EmitLog(
				"maintenance_mode_entered", "error",
				"both model endpoints unavailable",
				nil,
				telemetry.Correlation{Component: "model-router"},
			)
		}
	}
}

// ClearMaintenance manually leaves maintenance mode without probing.
func (r *Router) ClearMaintenance() {
	r.health.RecordSuccess(EndpointPrimary)
	r.health.RecordSuccess(EndpointFallback)
	if r.health.ClearMaintenance() {
		maintenanceGauge.Set(0)
		telemetry.DefaultEmitter().EmitLog(
			"maintenance_mode_cleared", "info",
			"maintenance mode cleared by operator",
			nil,
			telemetry.Correlation{Component: "model-router"},
		)
	}
}

// Probe attempts one trivial call per endpoint. A single success from either
// endpoint resets that endpoint's breaker and clears maintenance mode.
func (r *Router) Probe(ctx context.Context) bool {
	recovered := false
	probe := Request{Prompt: "ping"}
	for _, candidate := range []struct {
		endpoint Endpoint
		handle   Handle
	}{
		{EndpointPrimary, r.primary},
		{EndpointFallback, r.fallback},
	} {
		callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
		_, err := candidate.handle.Generate(callCtx, probe)
		cancel()
		if err == nil {
			r.health.RecordSuccess(candidate.endpoint)
			recovered = true
		}
	}
	if recovered && r.health.ClearMaintenance() {
		maintenanceGauge.Set(0)
		telemetry.DefaultEmitter().EmitLog(
			"maintenance_mode_cleared", "info",
			"health probe saw a successful model call",
			nil,
			telemetry.Correlation{Component: "model-router"},
		)
	}
	return recovered
}
