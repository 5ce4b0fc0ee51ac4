package transcript

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/oratio/teachback/api/session"
)

func TestDeriveSummaryFromRecordedHistory(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	seedSession(t, store, "sess-1", "user-1", session.StateExamining)
	ctx := context.Background()

	resolved := time.Now().UTC()
	in := Interruption{
		SessionID:  "sess-1",
		TriggerSeq: 3,
		Summary:    "claimed osmosis needs no membrane",
		Correction: "osmosis is diffusion of water across a semipermeable membrane",
		CreatedAt:  time.Now().UTC(),
		ResolvedAt: &resolved,
	}
	if err := store.AddInterruption(ctx, in); err != nil {
		t.Fatalf("add interruption: %v", err)
	}
	exchanges := []ExamExchange{
		{SessionID: "sess-1", Question: "q1", Answer: "right", Correct: true, AskedAt: time.Now().UTC()},
		{SessionID: "sess-1", Question: "q2", Answer: "wrong", Correct: false, WeakAreas: []string{"membranes"}, AskedAt: time.Now().UTC()},
		{SessionID: "sess-1", Question: "q3", Answer: "wrong again", Correct: false, WeakAreas: []string{"membranes", "gradients"}, AskedAt: time.Now().UTC()},
	}
	for _, ex := range exchanges {
		if err := store.AddExchange(ctx, ex); err != nil {
			t.Fatalf("add exchange: %v", err)
		}
	}

	summary, err := DeriveSummary(ctx, store, "sess-1", time.Now())
	if err != nil {
		t.Fatalf("DeriveSummary: %v", err)
	}

	if len(summary.Errors) != 1 || summary.Errors[0] != in.Summary {
		t.Fatalf("errors = %v", summary.Errors)
	}
	if summary.ExamScore < 0.33 || summary.ExamScore > 0.34 {
		t.Fatalf("score = %v", summary.ExamScore)
	}

	// Weak areas must be a subset of recorded interruption and exam concepts.
	recorded := map[string]bool{"membranes": true, "gradients": true}
	if len(summary.MissedConcepts) != 2 {
		t.Fatalf("missed concepts = %v", summary.MissedConcepts)
	}
	for _, concept := range summary.MissedConcepts {
		if !recorded[concept] {
			t.Fatalf("invented concept %q", concept)
		}
	}
	if len(summary.Recommendations) == 0 {
		t.Fatal("no recommendations derived")
	}
}

func TestDeriveSummaryEmptyHistory(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	seedSession(t, store, "sess-1", "user-1", session.StateExamining)

	summary, err := DeriveSummary(context.Background(), store, "sess-1", time.Now())
	if err != nil {
		t.Fatalf("DeriveSummary: %v", err)
	}
	if summary.ExamScore != 0 {
		t.Fatalf("score = %v", summary.ExamScore)
	}
	if len(summary.Errors) != 0 || len(summary.MissedConcepts) != 0 {
		t.Fatalf("summary = %+v", summary)
	}
}

const summarySchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["session_id", "errors", "missed_concepts", "recommendations", "exam_score", "completed_at"],
	"properties": {
		"session_id": {"type": "string", "minLength": 1},
		"errors": {"type": ["array", "null"], "items": {"type": "string"}},
		"missed_concepts": {"type": ["array", "null"], "items": {"type": "string"}},
		"recommendations": {"type": ["array", "null"], "items": {"type": "string"}},
		"exam_score": {"type": "number", "minimum": 0, "maximum": 1},
		"completed_at": {"type": "string", "format": "date-time"}
	},
	"additionalProperties": false
}`

func TestSummaryArtifactMatchesSchema(t *testing.T) {
	t.Parallel()

	compiled, err := jsonschema.CompileString("summary.schema.json", summarySchema)
	if err != nil {
		t.Fatalf("compile schema: %v", err)
	}

	store := NewMemoryStore()
	seedSession(t, store, "sess-1", "user-1", session.StateExamining)
	ctx := context.Background()
	if err := store.AddExchange(ctx, ExamExchange{SessionID: "sess-1", Question: "q", Answer: "a", Correct: false, WeakAreas: []string{"topic"}, AskedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("add exchange: %v", err)
	}

	summary, err := DeriveSummary(ctx, store, "sess-1", time.Now())
	if err != nil {
		t.Fatalf("DeriveSummary: %v", err)
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		t.Fatalf("marshal summary: %v", err)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal summary: %v", err)
	}
	if err := compiled.Validate(decoded); err != nil {
		t.Fatalf("summary artifact violates schema: %v", err)
	}
}

func TestRetentionSweeper(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	old := Record{
		ID:             "old-1",
		UserID:         "user-1",
		InputMode:      session.InputText,
		OutputMode:     session.OutputText,
		State:          session.StateTeaching,
		CreatedAt:      time.Now().Add(-200 * 24 * time.Hour).UTC(),
		LastActivityAt: time.Now().Add(-200 * 24 * time.Hour).UTC(),
	}
	if err := store.CreateSession(ctx, old); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.AppendEntry(ctx, entry("old-1", 1, RoleUser, "turn")); err != nil {
		t.Fatalf("append: %v", err)
	}
	old.State = session.StateCompleted
	if err := store.UpdateSession(ctx, old); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := store.SaveSummary(ctx, session.Summary{SessionID: "old-1", CompletedAt: old.LastActivityAt}); err != nil {
		t.Fatalf("save summary: %v", err)
	}

	sweeper := NewSweeper(store, 90*24*time.Hour)
	pruned, err := sweeper.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("pruned = %d", pruned)
	}
	if _, err := store.GetSummary(ctx, "old-1"); err != nil {
		t.Fatalf("summary lost: %v", err)
	}
}
