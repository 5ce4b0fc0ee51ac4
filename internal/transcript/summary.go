package transcript

import (
	"context"
	"fmt"
	"time"

	"github.com/oratio/teachback/api/session"
)

// DeriveSummary builds the immutable completion artifact from the session's
// interruptions and exam exchanges. Weak areas come only from recorded
// interruption summaries and missed exchange tags, never invented here.
func DeriveSummary(ctx context.Context, store Store, sessionID string, completedAt time.Time) (session.Summary, error) {
	interruptions, err := store.Interruptions(ctx, sessionID)
	if err != nil {
		return session.Summary{}, fmt.Errorf("load interruptions: %w", err)
	}
	exchanges, err := store.Exchanges(ctx, sessionID)
	if err != nil {
		return session.Summary{}, fmt.Errorf("load exchanges: %w", err)
	}

	summary := session.Summary{
		SessionID:   sessionID,
		CompletedAt: completedAt.UTC(),
	}

	seenMissed := map[string]bool{}
	for _, in := range interruptions {
		summary.Errors = append(summary.Errors, in.Summary)
		if in.Correction != "" {
			summary.Recommendations = append(summary.Recommendations, in.Correction)
		}
	}

	correct := 0
	for _, ex := range exchanges {
		if ex.Correct {
			correct++
			continue
		}
		for _, area := range ex.WeakAreas {
			if !seenMissed[area] {
				seenMissed[area] = true
				summary.MissedConcepts = append(summary.MissedConcepts, area)
			}
		}
	}
	if len(exchanges) > 0 {
		summary.ExamScore = float64(correct) / float64(len(exchanges))
	}
	for _, concept := range summary.MissedConcepts {
		summary.Recommendations = append(summary.Recommendations, fmt.Sprintf("review %s", concept))
	}

	return summary, nil
}
