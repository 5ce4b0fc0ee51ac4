// Package quota enforces per-plan usage limits. Text turns consume one unit;
// voice turns consume units at a configured multiplier. Admin overrides
// replace the plan limit for a single user without touching the plan table.
package quota

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oratio/teachback/api/session"
	"github.com/oratio/teachback/internal/observability/telemetry"
)

// Limit is a unit allowance over a rolling window.
type Limit struct {
	Units  int64
	Window time.Duration
}

// Config holds the plan table and the voice unit multiplier.
type Config struct {
	Plans           map[string]Limit
	DefaultPlan     Limit
	VoiceMultiplier int64
}

func (c Config) withDefaults() Config {
	if c.Plans == nil {
		c.Plans = map[string]Limit{}
	}
	if c.DefaultPlan.Units == 0 {
		c.DefaultPlan = Limit{Units: 50, Window: 24 * time.Hour}
	}
	if c.DefaultPlan.Window <= 0 {
		c.DefaultPlan.Window = 24 * time.Hour
	}
	if c.VoiceMultiplier < 1 {
		c.VoiceMultiplier = 3
	}
	return c
}

// Guard meters usage against a Store.
type Guard struct {
	store Store
	cfg   Config
	now   func() time.Time

	mu        sync.Mutex
	overrides map[string]Limit
}

// NewGuard constructs a Guard over the given backend.
func NewGuard(store Store, cfg Config) *Guard {
	return &Guard{
		store:     store,
		cfg:       cfg.withDefaults(),
		now:       time.Now,
		overrides: map[string]Limit{},
	}
}

// SetOverride replaces the plan limit for one user.
func (g *Guard) SetOverride(userID string, limit Limit) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.overrides[userID] = limit
}

// ClearOverride restores the user's plan limit.
func (g *Guard) ClearOverride(userID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.overrides, userID)
}

func (g *Guard) limitFor(userID, plan string) Limit {
	g.mu.Lock()
	override, ok := g.overrides[userID]
	g.mu.Unlock()
	if ok {
		if override.Window <= 0 {
			override.Window = g.cfg.DefaultPlan.Window
		}
		return override
	}
	if limit, ok := g.cfg.Plans[plan]; ok {
		return limit
	}
	return g.cfg.DefaultPlan
}

func key(userID string) string {
	return fmt.Sprintf("quota:%s", userID)
}

// Charge consumes the units for one turn. Voice turns are weighted by the
// multiplier. Exceeding the limit returns *session.QuotaExceededError.
func (g *Guard) Charge(ctx context.Context, userID, plan string, voiceTurn bool) error {
	limit := g.limitFor(userID, plan)
	units := int64(1)
	if voiceTurn {
		units = g.cfg.VoiceMultiplier
	}

	count, err := g.store.IncrBy(ctx, key(userID), units, limit.Window)
	if err != nil {
		return fmt.Errorf("quota increment: %w", err)
	}
	if count <= limit.Units {
		return nil
	}

	ttl, err := g.store.TTL(ctx, key(userID))
	if err != nil {
		ttl = limit.Window
	}
	telemetry.DefaultEmitter().EmitMetric(
		telemetry.MetricQuotaRejections, 1, "count",
		map[string]string{"plan": plan},
		telemetry.Correlation{UserID: userID, Component: "quota"},
	)
	remaining := limit.Units - count + units
	if remaining < 0 {
		remaining = 0
	}
	return &session.QuotaExceededError{
		Remaining: remaining,
		Limit:     limit.Units,
		ResetAt:   g.now().Add(ttl),
	}
}

// Used reports the units consumed in the current window.
func (g *Guard) Used(ctx context.Context, userID string) (int64, error) {
	return g.store.Get(ctx, key(userID))
}
