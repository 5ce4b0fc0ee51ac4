// Package gateway is the read-only integration surface for downstream
// consumers such as lesson planners and analytics. It exposes what a
// completed session revealed about the user's understanding and nothing
// else; it never writes into downstream stores and never exposes live
// session internals.
package gateway

import (
	"context"
	"fmt"
	"time"

	api "github.com/oratio/teachback/api/session"
	"github.com/oratio/teachback/internal/transcript"
)

// Insights is the per-session export for downstream consumers.
type Insights struct {
	SessionID      string    `json:"session_id"`
	MissedConcepts []string  `json:"missed_concepts"`
	ErrorSummaries []string  `json:"error_summaries"`
	ExamScore      float64   `json:"exam_score"`
	CompletedAt    time.Time `json:"completed_at"`
}

// Gateway reads persisted summaries.
type Gateway struct {
	store transcript.Store
}

// New constructs a Gateway over the transcript store.
func New(store transcript.Store) *Gateway {
	return &Gateway{store: store}
}

// Insights returns weak-area data for a completed session. Sessions that
// are not completed yield ErrSessionNotCompleted; unknown ids yield
// ErrSessionNotFound.
func (g *Gateway) Insights(ctx context.Context, sessionID string) (Insights, error) {
	rec, err := g.store.GetSession(ctx, sessionID)
	if err != nil {
		return Insights{}, err
	}
	if rec.State != api.StateCompleted {
		return Insights{}, api.ErrSessionNotCompleted
	}
	summary, err := g.store.GetSummary(ctx, sessionID)
	if err != nil {
		return Insights{}, fmt.Errorf("load summary: %w", err)
	}
	return Insights{
		SessionID:      summary.SessionID,
		MissedConcepts: summary.MissedConcepts,
		ErrorSummaries: summary.Errors,
		ExamScore:      summary.ExamScore,
		CompletedAt:    summary.CompletedAt,
	}, nil
}
