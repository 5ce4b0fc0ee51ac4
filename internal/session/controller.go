package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	api "github.com/oratio/teachback/api/session"
	"github.com/oratio/teachback/internal/config"
	"github.com/oratio/teachback/internal/modelrouter"
	"github.com/oratio/teachback/internal/negotiate"
	"github.com/oratio/teachback/internal/observability/telemetry"
	"github.com/oratio/teachback/internal/quota"
	"github.com/oratio/teachback/internal/roles"
	"github.com/oratio/teachback/internal/transcript"
	"github.com/oratio/teachback/internal/voice"
)

// RoleOrchestrator is the role dispatch surface the controller consumes.
type RoleOrchestrator interface {
	TeachingTurn(ctx context.Context, in roles.TeachingInput) (roles.TeachingOutput, error)
	Correction(ctx context.Context, in roles.CorrectionInput) (string, error)
	Examine(ctx context.Context, in roles.ExamInput) (roles.ExamOutput, error)
}

// Config tunes the controller.
type Config struct {
	ExamQuestionCap int
	RecentTurns     int
}

func (c Config) withDefaults() Config {
	if c.ExamQuestionCap <= 0 {
		c.ExamQuestionCap = 5
	}
	if c.RecentTurns <= 0 {
		c.RecentTurns = 10
	}
	return c
}

// Controller owns session lifecycle and turn flow. Turns on one session are
// strictly sequential; sessions are independent.
type Controller struct {
	store  transcript.Store
	roles  RoleOrchestrator
	voice  *voice.Pipeline
	quota  *quota.Guard
	health *modelrouter.Health
	flags  *config.Flags
	cfg    Config
	now    func() time.Time

	mu       sync.Mutex
	turnLock map[string]*sync.Mutex
	userLock map[string]*sync.Mutex
	inflight map[string]context.CancelFunc
}

// NewController wires the collaborators together.
func NewController(store transcript.Store, orch RoleOrchestrator, pipeline *voice.Pipeline, guard *quota.Guard, health *modelrouter.Health, flags *config.Flags, cfg Config) *Controller {
	return &Controller{
		store:    store,
		roles:    orch,
		voice:    pipeline,
		quota:    guard,
		health:   health,
		flags:    flags,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		turnLock: map[string]*sync.Mutex{},
		userLock: map[string]*sync.Mutex{},
		inflight: map[string]context.CancelFunc{},
	}
}

// CreateInput requests a new session.
type CreateInput struct {
	UserID     string
	Plan       string
	InputMode  api.InputMode
	OutputMode api.OutputMode
}

// CreateOutput returns the session handle and any mode-resolution notices.
type CreateOutput struct {
	SessionID  string
	InputMode  api.InputMode
	OutputMode api.OutputMode
	Notices    []api.Notice
}

// Create negotiates modes, checks policy gates, and starts the session in
// the teaching state.
func (c *Controller) Create(ctx context.Context, in CreateInput) (CreateOutput, error) {
	if in.UserID == "" {
		return CreateOutput{}, fmt.Errorf("user id is required")
	}
	if c.health.Maintenance() {
		return CreateOutput{}, api.ErrMaintenanceMode
	}

	resolved, err := negotiate.Resolve(negotiate.Input{
		RequestedInput:  in.InputMode,
		RequestedOutput: in.OutputMode,
		FeatureEnabled:  c.flags.FeatureEnabled(),
		VoiceEnabled:    c.flags.VoiceEnabled(),
		VoiceHealthy:    c.voice.Health().Healthy(),
	})
	if err != nil {
		return CreateOutput{}, err
	}

	// One user, one live session: the active check, the quota charge,
	// and the insert must not interleave with another create for the
	// same user.
	unlock := c.lockUser(in.UserID)
	defer unlock()

	if _, active, err := c.store.ActiveSessionForUser(ctx, in.UserID); err != nil {
		return CreateOutput{}, fmt.Errorf("check active session: %w", err)
	} else if active {
		return CreateOutput{}, api.ErrActiveSessionExists
	}

	if err := c.quota.Charge(ctx, in.UserID, in.Plan, resolved.InputMode.AllowsVoice()); err != nil {
		return CreateOutput{}, err
	}

	now := c.now().UTC()
	rec := transcript.Record{
		ID:             uuid.NewString(),
		UserID:         in.UserID,
		InputMode:      resolved.InputMode,
		OutputMode:     resolved.OutputMode,
		State:          api.StateInitializing,
		CreatedAt:      now,
		LastActivityAt: now,
		VoiceDegraded:  len(resolved.Notices) > 0,
	}
	if err := c.store.CreateSession(ctx, rec); err != nil {
		return CreateOutput{}, fmt.Errorf("create session: %w", err)
	}

	if err := c.appendSystem(ctx, rec.ID, fmt.Sprintf("session created (input=%s, output=%s)", rec.InputMode, rec.OutputMode)); err != nil {
		return CreateOutput{}, err
	}
	for _, notice := range resolved.Notices {
		if err := c.appendSystem(ctx, rec.ID, fmt.Sprintf("%s channel degraded: %s", notice.Channel, notice.Reason)); err != nil {
			return CreateOutput{}, err
		}
	}
	if err := c.transition(ctx, &rec, api.StateTeaching); err != nil {
		return CreateOutput{}, err
	}

	return CreateOutput{
		SessionID:  rec.ID,
		InputMode:  rec.InputMode,
		OutputMode: rec.OutputMode,
		Notices:    resolved.Notices,
	}, nil
}

// SubmitTurn processes one user turn: a teaching turn while teaching, an
// exam answer while examining.
func (c *Controller) SubmitTurn(ctx context.Context, sessionID string, req api.TurnRequest) (api.TurnResponse, error) {
	if err := req.Validate(); err != nil {
		return api.TurnResponse{}, err
	}

	unlock := c.lockSession(sessionID)
	defer unlock()

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.setInflight(sessionID, cancel)
	defer c.clearInflight(sessionID)

	rec, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		return api.TurnResponse{}, err
	}
	if rec.State.Terminal() {
		return api.TurnResponse{}, api.ErrSessionTerminal
	}
	if c.health.Maintenance() {
		return api.TurnResponse{}, api.ErrSessionPaused
	}

	switch rec.State {
	case api.StateTeaching:
		return c.teachingTurn(turnCtx, &rec, req)
	case api.StateExamining:
		return c.examTurn(turnCtx, &rec, req)
	case api.StateInterrupted:
		return api.TurnResponse{}, api.ErrUnresolvedInterruption
	default:
		return api.TurnResponse{}, fmt.Errorf("%w: no turns accepted in state %s", api.ErrInvalidTransition, rec.State)
	}
}

// resolveTurnContent turns the request payload into transcript content,
// applying in-turn voice degradation. A non-nil response means the turn
// ended at the voice boundary.
func (c *Controller) resolveTurnContent(ctx context.Context, rec *transcript.Record, req api.TurnRequest) (string, transcript.Origin, *api.TurnResponse, error) {
	if len(req.Audio) == 0 {
		return req.Text, transcript.OriginText, nil, nil
	}
	if !rec.InputMode.AllowsVoice() {
		return "", "", nil, fmt.Errorf("%w: session input mode is %s", api.ErrInvalidMode, rec.InputMode)
	}

	text, notice := c.voice.Transcribe(ctx, rec.ID, req.Audio)
	if notice == nil {
		return text, transcript.OriginTranscribedVoice, nil, nil
	}

	// Input channel degrades for the session remainder.
	rec.InputMode = api.InputText
	rec.VoiceDegraded = true
	rec.LastActivityAt = c.now().UTC()
	if err := c.appendSystem(ctx, rec.ID, fmt.Sprintf("input channel degraded to text: %s", notice.Reason)); err != nil {
		return "", "", nil, err
	}
	if err := c.store.UpdateSession(ctx, *rec); err != nil {
		return "", "", nil, fmt.Errorf("persist degradation: %w", err)
	}
	resp := &api.TurnResponse{
		Text:    "We could not process your audio. Please submit that turn again as text.",
		Notices: []api.Notice{*notice},
	}
	return "", "", resp, nil
}

func (c *Controller) teachingTurn(ctx context.Context, rec *transcript.Record, req api.TurnRequest) (api.TurnResponse, error) {
	content, origin, degradedResp, err := c.resolveTurnContent(ctx, rec, req)
	if err != nil {
		return api.TurnResponse{}, err
	}
	if degradedResp != nil {
		return *degradedResp, nil
	}

	userSeq, err := c.append(ctx, rec.ID, transcript.RoleUser, origin, content)
	if err != nil {
		return api.TurnResponse{}, err
	}

	recent, err := c.recentTurns(ctx, rec.ID)
	if err != nil {
		return api.TurnResponse{}, err
	}
	out, err := c.roles.TeachingTurn(ctx, roles.TeachingInput{
		SessionID: rec.ID,
		UserTurn:  content,
		Recent:    recent,
	})
	if err != nil {
		return api.TurnResponse{}, c.pauseOrCancel(ctx, err)
	}

	var resp api.TurnResponse
	if out.Evaluation.IsError {
		if _, err := c.append(ctx, rec.ID, transcript.RoleEvaluator, transcript.OriginText, out.Evaluation.Summary); err != nil {
			return api.TurnResponse{}, err
		}
		if err := c.transition(ctx, rec, api.StateInterrupted); err != nil {
			return api.TurnResponse{}, err
		}
		if err := c.store.AddInterruption(ctx, transcript.Interruption{
			SessionID:  rec.ID,
			TriggerSeq: userSeq,
			Summary:    out.Evaluation.Summary,
			Correction: out.Evaluation.Correction,
			CreatedAt:  c.now().UTC(),
		}); err != nil {
			return api.TurnResponse{}, fmt.Errorf("record interruption: %w", err)
		}

		message, corrErr := c.roles.Correction(ctx, roles.CorrectionInput{
			SessionID:    rec.ID,
			ErrorSummary: out.Evaluation.Summary,
			Correction:   out.Evaluation.Correction,
		})
		if corrErr != nil {
			if ctx.Err() != nil {
				return api.TurnResponse{}, c.pauseOrCancel(ctx, corrErr)
			}
			// The verdict already holds a usable correction.
			message = out.Evaluation.Correction
		}
		if _, err := c.append(ctx, rec.ID, transcript.RoleController, transcript.OriginText, message); err != nil {
			return api.TurnResponse{}, err
		}
		resp = api.TurnResponse{Text: message, Interrupted: true}
	} else {
		if _, err := c.append(ctx, rec.ID, transcript.RoleStudentPersona, transcript.OriginText, out.StudentReply); err != nil {
			return api.TurnResponse{}, err
		}
		resp = api.TurnResponse{Text: out.StudentReply}
	}

	if err := c.attachAudio(ctx, rec, &resp); err != nil {
		return api.TurnResponse{}, err
	}
	rec.LastActivityAt = c.now().UTC()
	if err := c.store.UpdateSession(ctx, *rec); err != nil {
		return api.TurnResponse{}, fmt.Errorf("persist turn: %w", err)
	}
	return resp, nil
}

func (c *Controller) examTurn(ctx context.Context, rec *transcript.Record, req api.TurnRequest) (api.TurnResponse, error) {
	content, origin, degradedResp, err := c.resolveTurnContent(ctx, rec, req)
	if err != nil {
		return api.TurnResponse{}, err
	}
	if degradedResp != nil {
		return *degradedResp, nil
	}

	examIn, err := c.examContext(ctx, rec.ID)
	if err != nil {
		return api.TurnResponse{}, err
	}
	examIn.PreviousAnswer = content

	out, err := c.roles.Examine(ctx, examIn)
	if err != nil {
		// Nothing was appended yet, so a paused turn can be retried
		// without duplicating the answer.
		return api.TurnResponse{}, c.pauseOrCancel(ctx, err)
	}

	if _, err := c.append(ctx, rec.ID, transcript.RoleUser, origin, content); err != nil {
		return api.TurnResponse{}, err
	}
	if err := c.store.AddExchange(ctx, transcript.ExamExchange{
		SessionID: rec.ID,
		Question:  examIn.PrevQuestion,
		Answer:    content,
		Correct:   out.AnswerCorrect,
		WeakAreas: out.WeakAreas,
		AskedAt:   c.now().UTC(),
	}); err != nil {
		return api.TurnResponse{}, fmt.Errorf("record exchange: %w", err)
	}

	if out.Done {
		return c.complete(ctx, rec)
	}

	if _, err := c.append(ctx, rec.ID, transcript.RoleExaminer, transcript.OriginText, out.NextQuestion); err != nil {
		return api.TurnResponse{}, err
	}
	resp := api.TurnResponse{Text: out.NextQuestion}
	if err := c.attachAudio(ctx, rec, &resp); err != nil {
		return api.TurnResponse{}, err
	}
	rec.LastActivityAt = c.now().UTC()
	if err := c.store.UpdateSession(ctx, *rec); err != nil {
		return api.TurnResponse{}, fmt.Errorf("persist exam turn: %w", err)
	}
	return resp, nil
}

func (c *Controller) complete(ctx context.Context, rec *transcript.Record) (api.TurnResponse, error) {
	completedAt := c.now().UTC()
	summary, err := transcript.DeriveSummary(ctx, c.store, rec.ID, completedAt)
	if err != nil {
		return api.TurnResponse{}, err
	}
	if err := c.store.SaveSummary(ctx, summary); err != nil && !errors.Is(err, transcript.ErrSummaryAlreadySaved) {
		return api.TurnResponse{}, fmt.Errorf("persist summary: %w", err)
	}
	if err := c.transition(ctx, rec, api.StateCompleted); err != nil {
		return api.TurnResponse{}, err
	}
	c.releaseSession(rec.ID)
	return api.TurnResponse{Text: "The examination is complete. Your session summary is ready."}, nil
}

// EndTeaching moves a teaching session into the oral exam and returns the
// first question. At least one teaching turn must exist.
func (c *Controller) EndTeaching(ctx context.Context, sessionID string) (api.TurnResponse, error) {
	unlock := c.lockSession(sessionID)
	defer unlock()

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.setInflight(sessionID, cancel)
	defer c.clearInflight(sessionID)

	rec, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		return api.TurnResponse{}, err
	}
	if rec.State.Terminal() {
		return api.TurnResponse{}, api.ErrSessionTerminal
	}
	if c.health.Maintenance() {
		return api.TurnResponse{}, api.ErrSessionPaused
	}
	if rec.State != api.StateTeaching {
		return api.TurnResponse{}, fmt.Errorf("%w: cannot start exam from %s", api.ErrInvalidTransition, rec.State)
	}
	taught, err := c.hasTeachingTurn(ctx, sessionID)
	if err != nil {
		return api.TurnResponse{}, err
	}
	if !taught {
		return api.TurnResponse{}, api.ErrNoTeachingTurns
	}

	examIn, err := c.examContext(turnCtx, sessionID)
	if err != nil {
		return api.TurnResponse{}, err
	}
	out, err := c.roles.Examine(turnCtx, examIn)
	if err != nil {
		return api.TurnResponse{}, c.pauseOrCancel(turnCtx, err)
	}

	if err := c.transition(ctx, &rec, api.StateExamining); err != nil {
		return api.TurnResponse{}, err
	}
	if _, err := c.append(ctx, rec.ID, transcript.RoleExaminer, transcript.OriginText, out.NextQuestion); err != nil {
		return api.TurnResponse{}, err
	}
	resp := api.TurnResponse{Text: out.NextQuestion}
	if err := c.attachAudio(ctx, &rec, &resp); err != nil {
		return api.TurnResponse{}, err
	}
	rec.LastActivityAt = c.now().UTC()
	if err := c.store.UpdateSession(ctx, rec); err != nil {
		return api.TurnResponse{}, fmt.Errorf("persist exam start: %w", err)
	}
	return resp, nil
}

// AcknowledgeCorrection resolves the open interruption and resumes
// teaching.
func (c *Controller) AcknowledgeCorrection(ctx context.Context, sessionID string) error {
	unlock := c.lockSession(sessionID)
	defer unlock()

	rec, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if rec.State.Terminal() {
		return api.ErrSessionTerminal
	}
	if rec.State != api.StateInterrupted {
		return fmt.Errorf("%w: nothing to acknowledge in state %s", api.ErrInvalidTransition, rec.State)
	}
	if err := c.store.ResolveInterruption(ctx, sessionID, c.now().UTC()); err != nil {
		return fmt.Errorf("resolve interruption: %w", err)
	}
	return c.transition(ctx, &rec, api.StateTeaching)
}

// EndSession returns the summary of a completed session.
func (c *Controller) EndSession(ctx context.Context, sessionID string) (api.Summary, error) {
	rec, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		return api.Summary{}, err
	}
	if rec.State != api.StateCompleted {
		return api.Summary{}, api.ErrSessionNotCompleted
	}
	return c.store.GetSummary(ctx, sessionID)
}

// VerifyOwner confirms the session belongs to userID. A mismatch reads
// the same as a missing session, so callers cannot probe for other
// users' session ids.
func (c *Controller) VerifyOwner(ctx context.Context, sessionID, userID string) error {
	rec, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if rec.UserID != userID {
		return api.ErrSessionNotFound
	}
	return nil
}

// Abort terminates the session from any non-terminal state. In-flight work
// is cancelled first and never waited on.
func (c *Controller) Abort(ctx context.Context, sessionID string) error {
	c.cancelInflight(sessionID)

	unlock := c.lockSession(sessionID)
	defer unlock()

	rec, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if rec.State.Terminal() {
		return api.ErrSessionTerminal
	}
	if err := c.transition(ctx, &rec, api.StateAborted); err != nil {
		return err
	}
	c.releaseSession(rec.ID)
	return nil
}

func (c *Controller) pauseOrCancel(ctx context.Context, err error) error {
	if ctx.Err() == context.Canceled {
		return fmt.Errorf("turn cancelled: %w", err)
	}
	telemetry.DefaultEmitter().EmitLog(
		"session_paused", "warn", err.Error(), nil,
		telemetry.Correlation{Component: "controller"},
	)
	return fmt.Errorf("%w: %v", api.ErrSessionPaused, err)
}

func (c *Controller) attachAudio(ctx context.Context, rec *transcript.Record, resp *api.TurnResponse) error {
	if rec.OutputMode != api.OutputVoiceText || resp.Text == "" {
		return nil
	}
	audio, notice := c.voice.Synthesize(ctx, rec.ID, resp.Text)
	if notice == nil {
		resp.Audio = audio
		return nil
	}
	rec.OutputMode = api.OutputText
	rec.VoiceDegraded = true
	resp.Notices = append(resp.Notices, *notice)
	return c.appendSystem(ctx, rec.ID, fmt.Sprintf("output channel degraded to text: %s", notice.Reason))
}

func (c *Controller) examContext(ctx context.Context, sessionID string) (roles.ExamInput, error) {
	interruptions, err := c.store.Interruptions(ctx, sessionID)
	if err != nil {
		return roles.ExamInput{}, fmt.Errorf("load interruptions: %w", err)
	}
	exchanges, err := c.store.Exchanges(ctx, sessionID)
	if err != nil {
		return roles.ExamInput{}, fmt.Errorf("load exchanges: %w", err)
	}

	in := roles.ExamInput{
		SessionID:      sessionID,
		QuestionsAsked: len(exchanges),
		QuestionCap:    c.cfg.ExamQuestionCap,
	}
	for _, i := range interruptions {
		in.ErrorSummaries = append(in.ErrorSummaries, i.Summary)
	}
	seen := map[string]bool{}
	for _, ex := range exchanges {
		for _, area := range ex.WeakAreas {
			if !seen[area] {
				seen[area] = true
				in.WeakAreas = append(in.WeakAreas, area)
			}
		}
	}

	entries, err := c.store.Entries(ctx, sessionID)
	if err != nil {
		return roles.ExamInput{}, fmt.Errorf("load entries: %w", err)
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Role == transcript.RoleExaminer {
			in.PrevQuestion = entries[i].Content
			break
		}
	}
	return in, nil
}

func (c *Controller) hasTeachingTurn(ctx context.Context, sessionID string) (bool, error) {
	entries, err := c.store.Entries(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("load entries: %w", err)
	}
	for _, e := range entries {
		if e.Role == transcript.RoleUser {
			return true, nil
		}
	}
	return false, nil
}

func (c *Controller) recentTurns(ctx context.Context, sessionID string) ([]roles.Turn, error) {
	entries, err := c.store.Entries(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}
	var turns []roles.Turn
	for _, e := range entries {
		if e.Role == transcript.RoleSystem {
			continue
		}
		turns = append(turns, roles.Turn{Speaker: string(e.Role), Content: e.Content})
	}
	if len(turns) > c.cfg.RecentTurns {
		turns = turns[len(turns)-c.cfg.RecentTurns:]
	}
	return turns, nil
}

func (c *Controller) transition(ctx context.Context, rec *transcript.Record, to api.State) error {
	if err := checkTransition(rec.State, to); err != nil {
		return err
	}
	if err := c.appendSystem(ctx, rec.ID, fmt.Sprintf("state: %s -> %s", rec.State, to)); err != nil {
		return err
	}
	telemetry.DefaultEmitter().EmitLog(
		"session_transition", "info",
		fmt.Sprintf("%s -> %s", rec.State, to),
		nil,
		telemetry.Correlation{SessionID: rec.ID, UserID: rec.UserID, Component: "controller"},
	)
	rec.State = to
	rec.LastActivityAt = c.now().UTC()
	if err := c.store.UpdateSession(ctx, *rec); err != nil {
		return fmt.Errorf("persist transition: %w", err)
	}
	return nil
}

// append writes one entry at the next sequence number and returns it. The
// per-session turn lock makes the read-then-append race free.
func (c *Controller) append(ctx context.Context, sessionID string, role transcript.Role, origin transcript.Origin, content string) (int64, error) {
	entries, err := c.store.Entries(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("load entries: %w", err)
	}
	seq := int64(len(entries)) + 1
	entry := transcript.Entry{
		SessionID: sessionID,
		Seq:       seq,
		Role:      role,
		Origin:    origin,
		Content:   content,
		Timestamp: c.now().UTC(),
	}
	if err := c.store.AppendEntry(ctx, entry); err != nil {
		return 0, fmt.Errorf("append entry: %w", err)
	}
	telemetry.DefaultEmitter().EmitMetric(
		telemetry.MetricTranscriptAppends, 1, "count", nil,
		telemetry.Correlation{SessionID: sessionID, Seq: seq, Component: "controller"},
	)
	return seq, nil
}

func (c *Controller) appendSystem(ctx context.Context, sessionID, content string) error {
	_, err := c.append(ctx, sessionID, transcript.RoleSystem, transcript.OriginText, content)
	return err
}

func (c *Controller) lockSession(sessionID string) func() {
	c.mu.Lock()
	lock, ok := c.turnLock[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		c.turnLock[sessionID] = lock
	}
	c.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}

func (c *Controller) lockUser(userID string) func() {
	c.mu.Lock()
	lock, ok := c.userLock[userID]
	if !ok {
		lock = &sync.Mutex{}
		c.userLock[userID] = lock
	}
	c.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}

// releaseSession drops per-session bookkeeping once the session is
// terminal. A waiter holding an old mutex pointer still serializes and
// then observes the terminal state. The per-user create lock is kept
// for the life of the process so creates for one user always meet the
// same mutex.
func (c *Controller) releaseSession(sessionID string) {
	c.mu.Lock()
	delete(c.turnLock, sessionID)
	delete(c.inflight, sessionID)
	c.mu.Unlock()
}

func (c *Controller) setInflight(sessionID string, cancel context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight[sessionID] = cancel
}

func (c *Controller) clearInflight(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, sessionID)
}

func (c *Controller) cancelInflight(sessionID string) {
	c.mu.Lock()
	cancel := c.inflight[sessionID]
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
