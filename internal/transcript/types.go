// Package transcript persists the replayable session record: session rows,
// append-only entries, interruptions, exam exchanges, and the completion
// summary that survives retention expiry.
package transcript

import (
	"errors"
	"fmt"
	"time"

	"github.com/oratio/teachback/api/session"
)

// Role labels who produced a transcript entry. Internal role labels never
// leave the store.
type Role string

const (
	RoleUser           Role = "user"
	RoleStudentPersona Role = "student-persona"
	RoleEvaluator      Role = "evaluator"
	RoleController     Role = "controller"
	RoleExaminer       Role = "examiner"
	RoleSystem         Role = "system"
)

// Validate enforces the closed role set.
func (r Role) Validate() error {
	switch r {
	case RoleUser, RoleStudentPersona, RoleEvaluator, RoleController, RoleExaminer, RoleSystem:
		return nil
	default:
		return fmt.Errorf("unsupported transcript role: %q", r)
	}
}

// Origin records how an entry's content arrived.
type Origin string

const (
	OriginText             Origin = "text"
	OriginTranscribedVoice Origin = "transcribed-voice"
)

// Validate enforces known origins.
func (o Origin) Validate() error {
	switch o {
	case OriginText, OriginTranscribedVoice:
		return nil
	default:
		return fmt.Errorf("unsupported entry origin: %q", o)
	}
}

// Entry is one append-only transcript row. Seq is contiguous from 1 within
// a session.
type Entry struct {
	SessionID string    `json:"session_id"`
	Seq       int64     `json:"seq"`
	Role      Role      `json:"role"`
	Origin    Origin    `json:"origin"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate enforces entry invariants before append.
func (e Entry) Validate() error {
	if e.SessionID == "" {
		return fmt.Errorf("entry requires a session id")
	}
	if e.Seq < 1 {
		return fmt.Errorf("entry seq must be >= 1, got %d", e.Seq)
	}
	if err := e.Role.Validate(); err != nil {
		return err
	}
	if err := e.Origin.Validate(); err != nil {
		return err
	}
	if e.Content == "" {
		return fmt.Errorf("entry requires content")
	}
	return nil
}

// Record is the persisted session row.
type Record struct {
	ID             string
	UserID         string
	InputMode      session.InputMode
	OutputMode     session.OutputMode
	State          session.State
	CreatedAt      time.Time
	LastActivityAt time.Time
	VoiceDegraded  bool
	TextDegraded   bool
}

// Interruption is one evaluator-triggered correction.
type Interruption struct {
	SessionID  string
	TriggerSeq int64
	Summary    string
	Correction string
	CreatedAt  time.Time
	ResolvedAt *time.Time
}

// Resolved reports whether the user acknowledged the correction.
func (i Interruption) Resolved() bool { return i.ResolvedAt != nil }

// ExamExchange is one examiner question/answer pair.
type ExamExchange struct {
	SessionID string
	Question  string
	Answer    string
	Correct   bool
	WeakAreas []string
	AskedAt   time.Time
}

// Store failure modes.
var (
	ErrSeqGap               = errors.New("entry seq is not contiguous")
	ErrDuplicateEntry       = errors.New("entry seq already appended")
	ErrSessionExists        = errors.New("session already stored")
	ErrUnresolvedExists     = errors.New("an unresolved interruption already exists")
	ErrNoUnresolved         = errors.New("no unresolved interruption")
	ErrSummaryAlreadySaved  = errors.New("summary already persisted")
	ErrAppendAfterCompleted = errors.New("cannot append to a terminal session")
)
