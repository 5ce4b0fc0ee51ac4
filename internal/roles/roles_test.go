package roles

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/oratio/teachback/internal/modelrouter"
)

// scriptedGenerator answers by matching the system prompt to a scripted
// reply, so concurrent role calls each get their own answer.
type scriptedGenerator struct {
	mu      sync.Mutex
	replies map[string]string
	errs    map[string]error
	calls   []string
}

func keyFor(system string) string {
	switch {
	case strings.Contains(system, "curious student"):
		return "student"
	case strings.Contains(system, "silently review"):
		return "evaluator"
	case strings.Contains(system, "stepping in"):
		return "controller"
	case strings.Contains(system, "oral exam"):
		return "examiner"
	default:
		return "unknown"
	}
}

func (g *scriptedGenerator) Generate(ctx context.Context, req modelrouter.Request) (modelrouter.Response, error) {
	key := keyFor(req.System)
	g.mu.Lock()
	g.calls = append(g.calls, key)
	g.mu.Unlock()
	if err := g.errs[key]; err != nil {
		return modelrouter.Response{}, err
	}
	return modelrouter.Response{Text: g.replies[key]}, nil
}

func (g *scriptedGenerator) callCount(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c == key {
			n++
		}
	}
	return n
}

func TestTeachingTurnFansOutBothRoles(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{replies: map[string]string{
		"student":   "Interesting! Why does the membrane matter?",
		"evaluator": `{"is_error": false, "summary": "", "correction": ""}`,
	}}
	orch := NewOrchestrator(gen)

	out, err := orch.TeachingTurn(context.Background(), TeachingInput{
		SessionID: "sess-1",
		UserTurn:  "osmosis moves water across a membrane",
	})
	if err != nil {
		t.Fatalf("TeachingTurn: %v", err)
	}
	if out.StudentReply == "" {
		t.Fatal("empty student reply")
	}
	if out.Evaluation.IsError {
		t.Fatal("evaluator flagged a clean turn")
	}
	if gen.callCount("student") != 1 || gen.callCount("evaluator") != 1 {
		t.Fatalf("calls = %v", gen.calls)
	}
}

func TestTeachingTurnSurfacesEvaluation(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{replies: map[string]string{
		"student":   "Got it!",
		"evaluator": `{"is_error": true, "summary": "confused osmosis with diffusion", "correction": "osmosis requires a semipermeable membrane"}`,
	}}
	orch := NewOrchestrator(gen)

	out, err := orch.TeachingTurn(context.Background(), TeachingInput{UserTurn: "osmosis is any mixing of liquids"})
	if err != nil {
		t.Fatalf("TeachingTurn: %v", err)
	}
	if !out.Evaluation.IsError {
		t.Fatal("error not flagged")
	}
	if out.Evaluation.Summary == "" || out.Evaluation.Correction == "" {
		t.Fatalf("evaluation = %+v", out.Evaluation)
	}
}

func TestTeachingTurnPropagatesRoleFailure(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{
		replies: map[string]string{"student": "ok"},
		errs:    map[string]error{"evaluator": errors.New("model pool exhausted")},
	}
	orch := NewOrchestrator(gen)

	if _, err := orch.TeachingTurn(context.Background(), TeachingInput{UserTurn: "x"}); err == nil {
		t.Fatal("evaluator failure swallowed")
	}
}

func TestEvaluatorToleratesFencedJSON(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{replies: map[string]string{
		"student":   "ok",
		"evaluator": "Here is my verdict:\n```json\n{\"is_error\": true, \"summary\": \"wrong\", \"correction\": \"right\"}\n```",
	}}
	orch := NewOrchestrator(gen)

	out, err := orch.TeachingTurn(context.Background(), TeachingInput{UserTurn: "x"})
	if err != nil {
		t.Fatalf("TeachingTurn: %v", err)
	}
	if !out.Evaluation.IsError {
		t.Fatal("fenced verdict not parsed")
	}
}

func TestCorrection(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{replies: map[string]string{
		"controller": "Quick note: osmosis needs a membrane. Ready to continue?",
	}}
	orch := NewOrchestrator(gen)

	msg, err := orch.Correction(context.Background(), CorrectionInput{
		ErrorSummary: "membrane missing",
		Correction:   "osmosis requires a membrane",
	})
	if err != nil {
		t.Fatalf("Correction: %v", err)
	}
	if msg == "" {
		t.Fatal("empty correction")
	}
}

func TestExamineProducesNextQuestion(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{replies: map[string]string{
		"examiner": `{"correct": false, "weak_areas": ["membranes"], "next_question": "What role does the membrane play?", "done": false}`,
	}}
	orch := NewOrchestrator(gen)

	out, err := orch.Examine(context.Background(), ExamInput{
		PrevQuestion:   "Define osmosis.",
		PreviousAnswer: "liquids mixing",
		QuestionsAsked: 1,
		QuestionCap:    5,
	})
	if err != nil {
		t.Fatalf("Examine: %v", err)
	}
	if out.AnswerCorrect {
		t.Fatal("wrong answer scored correct")
	}
	if len(out.WeakAreas) != 1 || out.WeakAreas[0] != "membranes" {
		t.Fatalf("weak areas = %v", out.WeakAreas)
	}
	if out.Done {
		t.Fatal("exam ended early")
	}
}

func TestExamineQuestionCapForcesDone(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{replies: map[string]string{
		"examiner": `{"correct": true, "weak_areas": [], "next_question": "One more?", "done": false}`,
	}}
	orch := NewOrchestrator(gen)

	out, err := orch.Examine(context.Background(), ExamInput{
		PrevQuestion:   "q5",
		PreviousAnswer: "a5",
		QuestionsAsked: 5,
		QuestionCap:    5,
	})
	if err != nil {
		t.Fatalf("Examine: %v", err)
	}
	if !out.Done {
		t.Fatal("question cap not enforced")
	}
}

func TestExamineRejectsEmptyOutput(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{replies: map[string]string{
		"examiner": `{"correct": true, "weak_areas": [], "next_question": "", "done": false}`,
	}}
	orch := NewOrchestrator(gen)

	if _, err := orch.Examine(context.Background(), ExamInput{}); err == nil {
		t.Fatal("empty examiner output accepted")
	}
}
