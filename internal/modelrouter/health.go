package modelrouter

import "sync/atomic"

// Endpoint identifies one of the two configured model endpoints.
type Endpoint string

const (
	EndpointPrimary  Endpoint = "primary"
	EndpointFallback Endpoint = "fallback"
)

// Health tracks process-wide model endpoint health. One instance is shared
// by every session; all fields are manipulated atomically.
type Health struct {
	primaryFailures  atomic.Uint32
	fallbackFailures atomic.Uint32
	maintenance      atomic.Bool
}

// NewHealth returns a Health with both endpoints assumed healthy.
func NewHealth() *Health {
	return &Health{}
}

// RecordFailure increments the endpoint's consecutive-failure counter and
// returns the new count.
func (h *Health) RecordFailure(endpoint Endpoint) uint32 {
	return h.counter(endpoint).Add(1)
}

// RecordSuccess resets the endpoint's consecutive-failure counter.
func (h *Health) RecordSuccess(endpoint Endpoint) {
	h.counter(endpoint).Store(0)
}

// Failures returns the current consecutive-failure count for an endpoint.
func (h *Health) Failures(endpoint Endpoint) uint32 {
	return h.counter(endpoint).Load()
}

// EnterMaintenance flips the process into maintenance mode. Returns true if
// this call performed the transition.
func (h *Health) EnterMaintenance() bool {
	return h.maintenance.CompareAndSwap(false, true)
}

// ClearMaintenance leaves maintenance mode. Returns true if this call
// performed the transition.
func (h *Health) ClearMaintenance() bool {
	return h.maintenance.CompareAndSwap(true, false)
}

// Maintenance reports whether the process is in maintenance mode.
func (h *Health) Maintenance() bool {
	return h.maintenance.Load()
}

func (h *Health) counter(endpoint Endpoint) *atomic.Uint32 {
	if endpoint == EndpointFallback {
		return &h.fallbackFailures
	}
	return &h.primaryFailures
}

// Snapshot is a point-in-time copy of health state for the admin surface.
type Snapshot struct {
	PrimaryFailures  uint32 `json:"primary_failures"`
	FallbackFailures uint32 `json:"fallback_failures"`
	Maintenance      bool   `json:"maintenance"`
}

// Snapshot returns a copy of the current health state.
func (h *Health) Snapshot() Snapshot {
	return Snapshot{
		PrimaryFailures:  h.primaryFailures.Load(),
		FallbackFailures: h.fallbackFailures.Load(),
		Maintenance:      h.maintenance.Load(),
	}
}
