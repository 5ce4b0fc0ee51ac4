// Package roles drives the hidden AI roles behind a teach-back session.
// The role set is closed: a student persona that plays the learner, an
// evaluator that watches for conceptual errors, a controller that delivers
// corrections, and an examiner that runs the oral exam. Role labels never
// cross the public API.
package roles

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/oratio/teachback/internal/modelrouter"
)

// Generator is the model call surface the orchestrator consumes.
type Generator interface {
	Generate(ctx context.Context, req modelrouter.Request) (modelrouter.Response, error)
}

// Turn is one prior exchange handed to prompt construction.
type Turn struct {
	Speaker string
	Content string
}

// Evaluation is the evaluator's opaque verdict on one teaching turn.
type Evaluation struct {
	IsError    bool   `json:"is_error"`
	Summary    string `json:"summary"`
	Correction string `json:"correction"`
}

// TeachingInput is the context for one teaching turn.
type TeachingInput struct {
	SessionID string
	UserTurn  string
	Recent    []Turn
}

// TeachingOutput carries both concurrent role results.
type TeachingOutput struct {
	StudentReply string
	Evaluation   Evaluation
}

// CorrectionInput is the context for the controller's correction delivery.
type CorrectionInput struct {
	SessionID    string
	ErrorSummary string
	Correction   string
}

// ExamInput is the context for one examiner step.
type ExamInput struct {
	SessionID      string
	PreviousAnswer string
	PrevQuestion   string
	WeakAreas      []string
	ErrorSummaries []string
	QuestionsAsked int
	QuestionCap    int
}

// ExamOutput is the examiner's verdict plus the next question.
type ExamOutput struct {
	AnswerCorrect bool     `json:"correct"`
	WeakAreas     []string `json:"weak_areas"`
	NextQuestion  string   `json:"next_question"`
	Done          bool     `json:"done"`
}

// Orchestrator dispatches role calls against the shared model pool.
type Orchestrator struct {
	models Generator
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(models Generator) *Orchestrator {
	return &Orchestrator{models: models}
}

// TeachingTurn runs the student persona and the evaluator concurrently and
// waits for both. The two calls are independent; sequence numbers are the
// caller's job at consumption time.
func (o *Orchestrator) TeachingTurn(ctx context.Context, in TeachingInput) (TeachingOutput, error) {
	type studentResult struct {
		reply string
		err   error
	}
	type evaluatorResult struct {
		eval Evaluation
		err  error
	}

	studentCh := make(chan studentResult, 1)
	evaluatorCh := make(chan evaluatorResult, 1)

	go func() {
		resp, err := o.models.Generate(ctx, studentRequest(in))
		if err != nil {
			studentCh <- studentResult{err: fmt.Errorf("student call: %w", err)}
			return
		}
		studentCh <- studentResult{reply: strings.TrimSpace(resp.Text)}
	}()
	go func() {
		resp, err := o.models.Generate(ctx, evaluatorRequest(in))
		if err != nil {
			evaluatorCh <- evaluatorResult{err: fmt.Errorf("evaluator call: %w", err)}
			return
		}
		eval, err := parseEvaluation(resp.Text)
		evaluatorCh <- evaluatorResult{eval: eval, err: err}
	}()

	student := <-studentCh
	evaluator := <-evaluatorCh
	if student.err != nil {
		return TeachingOutput{}, student.err
	}
	if evaluator.err != nil {
		return TeachingOutput{}, evaluator.err
	}
	return TeachingOutput{StudentReply: student.reply, Evaluation: evaluator.eval}, nil
}

// Correction produces the controller's corrective message for an
// interrupted session.
func (o *Orchestrator) Correction(ctx context.Context, in CorrectionInput) (string, error) {
	resp, err := o.models.Generate(ctx, correctionRequest(in))
	if err != nil {
		return "", fmt.Errorf("controller call: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// Examine scores the previous answer (if any) and produces the next
// question, or signals that the exam is done.
func (o *Orchestrator) Examine(ctx context.Context, in ExamInput) (ExamOutput, error) {
	resp, err := o.models.Generate(ctx, examRequest(in))
	if err != nil {
		return ExamOutput{}, fmt.Errorf("examiner call: %w", err)
	}
	out, err := parseExamOutput(resp.Text)
	if err != nil {
		return ExamOutput{}, err
	}
	if in.QuestionCap > 0 && in.QuestionsAsked >= in.QuestionCap {
		out.Done = true
	}
	return out, nil
}

func parseEvaluation(raw string) (Evaluation, error) {
	var eval Evaluation
	if err := json.Unmarshal([]byte(extractJSON(raw)), &eval); err != nil {
		return Evaluation{}, fmt.Errorf("parse evaluator verdict: %w", err)
	}
	if eval.IsError && eval.Summary == "" {
		return Evaluation{}, fmt.Errorf("evaluator flagged an error without a summary")
	}
	return eval, nil
}

func parseExamOutput(raw string) (ExamOutput, error) {
	var out ExamOutput
	if err := json.Unmarshal([]byte(extractJSON(raw)), &out); err != nil {
		return ExamOutput{}, fmt.Errorf("parse examiner output: %w", err)
	}
	if !out.Done && strings.TrimSpace(out.NextQuestion) == "" {
		return ExamOutput{}, fmt.Errorf("examiner produced neither a question nor done")
	}
	return out, nil
}

// extractJSON tolerates models that wrap JSON in markdown fences or prose.
func extractJSON(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if idx := strings.Index(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[idx+3:]
		trimmed = strings.TrimPrefix(trimmed, "json")
		if end := strings.Index(trimmed, "```"); end >= 0 {
			trimmed = trimmed[:end]
		}
	}
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		return trimmed[start : end+1]
	}
	return trimmed
}
