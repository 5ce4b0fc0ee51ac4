// Package session defines the public contract of the teach-back orchestrator:
// modes, lifecycle states, typed rejections, and the turn envelope. The
// internal role architecture never appears in these types.
package session

import (
	"errors"
	"fmt"
	"time"
)

// InputMode selects how the user delivers teaching turns.
type InputMode string

const (
	InputText  InputMode = "text"
	InputVoice InputMode = "voice"
	InputMixed InputMode = "mixed"
)

// Validate enforces supported input modes.
func (m InputMode) Validate() error {
	switch m {
	case InputText, InputVoice, InputMixed:
		return nil
	default:
		return fmt.Errorf("unsupported input mode: %q", m)
	}
}

// AllowsVoice reports whether the mode accepts audio payloads.
func (m InputMode) AllowsVoice() bool {
	return m == InputVoice || m == InputMixed
}

// OutputMode selects how responses are delivered back.
type OutputMode string

const (
	OutputText      OutputMode = "text"
	OutputVoiceText OutputMode = "voice+text"
)

// Validate enforces supported output modes.
func (m OutputMode) Validate() error {
	switch m {
	case OutputText, OutputVoiceText:
		return nil
	default:
		return fmt.Errorf("unsupported output mode: %q", m)
	}
}

// State is the session lifecycle state.
type State string

const (
	StateInitializing State = "initializing"
	StateTeaching     State = "teaching"
	StateInterrupted  State = "interrupted"
	StateExamining    State = "examining"
	StateCompleted    State = "completed"
	StateAborted      State = "aborted"
)

// Validate enforces known lifecycle states.
func (s State) Validate() error {
	switch s {
	case StateInitializing, StateTeaching, StateInterrupted, StateExamining, StateCompleted, StateAborted:
		return nil
	default:
		return fmt.Errorf("unsupported session state: %q", s)
	}
}

// Terminal reports whether the state accepts no further turns.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAborted
}

// Channel names a degradable session channel.
type Channel string

const (
	ChannelInput  Channel = "input"
	ChannelOutput Channel = "output"
)

// Notice discloses a user-visible degradation or mode resolution.
type Notice struct {
	Channel Channel `json:"channel"`
	From    string  `json:"from"`
	To      string  `json:"to"`
	Reason  string  `json:"reason"`
}

// TurnRequest carries one user turn. Exactly one of Text or Audio is set;
// audio is accepted only while the session input mode allows voice.
type TurnRequest struct {
	Text  string
	Audio []byte
}

// Validate enforces the one-payload rule.
func (r TurnRequest) Validate() error {
	if r.Text == "" && len(r.Audio) == 0 {
		return fmt.Errorf("turn requires a text or audio payload")
	}
	if r.Text != "" && len(r.Audio) > 0 {
		return fmt.Errorf("turn must carry exactly one of text or audio")
	}
	return nil
}

// TurnResponse is the assistant-facing result of one turn. Audio is
// best-effort and may be nil even in voice output mode.
type TurnResponse struct {
	Text        string
	Audio       []byte
	Interrupted bool
	Notices     []Notice
}

// Summary is the immutable completion artifact that survives transcript
// retention expiry.
type Summary struct {
	SessionID       string    `json:"session_id"`
	Errors          []string  `json:"errors"`
	MissedConcepts  []string  `json:"missed_concepts"`
	Recommendations []string  `json:"recommendations"`
	ExamScore       float64   `json:"exam_score"`
	CompletedAt     time.Time `json:"completed_at"`
}

// Policy rejections surfaced synchronously at the boundary.
var (
	ErrFeatureDisabled        = errors.New("teach-back feature is disabled")
	ErrMaintenanceMode        = errors.New("platform is in maintenance mode")
	ErrActiveSessionExists    = errors.New("user already has an active session")
	ErrSessionTerminal        = errors.New("session is in a terminal state")
	ErrUnresolvedInterruption = errors.New("session has an unresolved interruption")
	ErrNoTeachingTurns        = errors.New("cannot start examination before any teaching turn")
	ErrSessionNotFound        = errors.New("session not found")
	ErrSessionNotCompleted    = errors.New("session is not completed")
	ErrInvalidMode            = errors.New("invalid mode combination")
	ErrInvalidTransition      = errors.New("invalid session state transition")
)

// ErrSessionPaused signals a recoverable outage: the turn was not processed
// and may be retried once model health recovers.
var ErrSessionPaused = errors.New("session paused, retry when model health recovers")

// QuotaExceededError rejects session creation and carries the caller's
// remaining allowance and window reset time.
type QuotaExceededError struct {
	Remaining int64
	Limit     int64
	ResetAt   time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: remaining=%d limit=%d reset_at=%s", e.Remaining, e.Limit, e.ResetAt.UTC().Format(time.RFC3339))
}
