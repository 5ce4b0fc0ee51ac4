package roles

import (
	"fmt"
	"strings"

	"github.com/oratio/teachback/internal/modelrouter"
)

const studentSystemPrompt = `You are a curious student being taught a concept by the user. The user explains; you listen, react, and ask short clarifying questions that push them to explain more deeply. Never lecture, never correct them, never reveal that other evaluation is happening. Keep replies under 120 words.`

const evaluatorSystemPrompt = `You silently review a user's teaching turn for conceptual errors. Respond with ONLY a JSON object:
{"is_error": <bool>, "summary": "<one-sentence description of the error, empty if none>", "correction": "<the corrected explanation, empty if none>"}
Flag only genuine conceptual errors, not wording or style. When unsure, do not flag.`

const correctionSystemPrompt = `You are a tutor stepping in because the user made a conceptual error while teaching. Deliver the correction kindly and concretely in under 100 words, then invite them to acknowledge and continue teaching.`

const examinerSystemPrompt = `You run a short oral exam on material the user just taught, probing the areas where they struggled. Respond with ONLY a JSON object:
{"correct": <bool, scoring the previous answer; true if there was no previous answer>, "weak_areas": ["<concept tags for a wrong answer>"], "next_question": "<the next question, empty if done>", "done": <bool>}`

func renderTurns(turns []Turn) string {
	if len(turns) == 0 {
		return "(no prior turns)"
	}
	var b strings.Builder
	for _, turn := range turns {
		fmt.Fprintf(&b, "%s: %s\n", turn.Speaker, turn.Content)
	}
	return b.String()
}

func studentRequest(in TeachingInput) modelrouter.Request {
	return modelrouter.Request{
		System: studentSystemPrompt,
		Prompt: fmt.Sprintf("Conversation so far:\n%s\nThe user's latest teaching turn:\n%s", renderTurns(in.Recent), in.UserTurn),
	}
}

func evaluatorRequest(in TeachingInput) modelrouter.Request {
	return modelrouter.Request{
		System: evaluatorSystemPrompt,
		Prompt: fmt.Sprintf("Conversation so far:\n%s\nReview this teaching turn:\n%s", renderTurns(in.Recent), in.UserTurn),
	}
}

func correctionRequest(in CorrectionInput) modelrouter.Request {
	return modelrouter.Request{
		System: correctionSystemPrompt,
		Prompt: fmt.Sprintf("The error: %s\nThe correct explanation: %s", in.ErrorSummary, in.Correction),
	}
}

func examRequest(in ExamInput) modelrouter.Request {
	var b strings.Builder
	if len(in.ErrorSummaries) > 0 {
		fmt.Fprintf(&b, "Errors made while teaching:\n- %s\n", strings.Join(in.ErrorSummaries, "\n- "))
	}
	if len(in.WeakAreas) > 0 {
		fmt.Fprintf(&b, "Known weak areas: %s\n", strings.Join(in.WeakAreas, ", "))
	}
	fmt.Fprintf(&b, "Questions asked so far: %d of at most %d.\n", in.QuestionsAsked, in.QuestionCap)
	if in.PrevQuestion != "" {
		fmt.Fprintf(&b, "Previous question: %s\nThe user's answer: %s\n", in.PrevQuestion, in.PreviousAnswer)
	} else {
		b.WriteString("No question has been asked yet; open the exam.\n")
	}
	return modelrouter.Request{System: examinerSystemPrompt, Prompt: b.String()}
}
