package transcript

import (
	"context"
	"fmt"
	"time"

	"github.com/oratio/teachback/internal/observability/telemetry"
)

// Sweeper prunes detailed records of completed sessions past the retention
// age. Summaries always survive a sweep.
type Sweeper struct {
	store  Store
	maxAge time.Duration
	now    func() time.Time
}

// NewSweeper constructs a Sweeper. A non-positive maxAge defaults to 90 days.
func NewSweeper(store Store, maxAge time.Duration) *Sweeper {
	if maxAge <= 0 {
		maxAge = 90 * 24 * time.Hour
	}
	return &Sweeper{store: store, maxAge: maxAge, now: time.Now}
}

// Sweep runs one pass and returns the number of sessions pruned.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.maxAge)
	pruned, err := s.store.PruneCompletedBefore(ctx, cutoff)
	if err != nil {
		return pruned, fmt.Errorf("retention sweep: %w", err)
	}
	telemetry.DefaultEmitter().EmitLog(
		"retention_sweep_complete", "info",
		fmt.Sprintf("pruned %d sessions older than %s", pruned, s.maxAge),
		map[string]string{"cutoff": cutoff.UTC().Format(time.RFC3339)},
		telemetry.Correlation{Component: "retention"},
	)
	return pruned, nil
}
