// Package voice holds the speech pipeline control logic: the STT and TTS
// adapter contracts, per-call degradation decisions, and the process-wide
// subsystem health consulted at session creation.
package voice

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/oratio/teachback/api/session"
	"github.com/oratio/teachback/internal/observability/telemetry"
)

// Transcript is one STT result.
type Transcript struct {
	Text       string
	Confidence float64
}

// Transcriber converts audio to text with a confidence estimate.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, audio []byte) (Transcript, error)
}

// Synthesizer converts text to audio.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// SubsystemHealth tracks process-wide speech subsystem health. A configured
// streak of consecutive failures marks a subsystem unhealthy; the mode
// negotiator consults these flags at session creation. A success clears the
// streak and the flag.
type SubsystemHealth struct {
	streak uint32

	sttStreak atomic.Uint32
	ttsStreak atomic.Uint32
	sttDown   atomic.Bool
	ttsDown   atomic.Bool
}

// NewSubsystemHealth returns health state that flips after streak
// consecutive failures.
func NewSubsystemHealth(streak uint32) *SubsystemHealth {
	if streak == 0 {
		streak = 3
	}
	return &SubsystemHealth{streak: streak}
}

func (h *SubsystemHealth) recordFailure(counter *atomic.Uint32, down *atomic.Bool, name string) {
	if counter.Add(1) >= h.streak {
		if down.CompareAndSwap(false, true) {
			telemetry.DefaultEmitter().EmitLog(
				"voice_subsystem_unhealthy", "warn",
				fmt.Sprintf("%s marked unhealthy after %d consecutive failures", name, h.streak),
				map[string]string{"subsystem": name},
				telemetry.Correlation{Component: "voice"},
			)
		}
	}
}

func (h *SubsystemHealth) recordSuccess(counter *atomic.Uint32, down *atomic.Bool) {
	counter.Store(0)
	down.Store(false)
}

// RecordSTTFailure counts one transcription failure.
func (h *SubsystemHealth) RecordSTTFailure() { h.recordFailure(&h.sttStreak, &h.sttDown, "stt") }

// RecordSTTSuccess clears the transcription failure streak.
func (h *SubsystemHealth) RecordSTTSuccess() { h.recordSuccess(&h.sttStreak, &h.sttDown) }

// RecordTTSFailure counts one synthesis failure.
func (h *SubsystemHealth) RecordTTSFailure() { h.recordFailure(&h.ttsStreak, &h.ttsDown, "tts") }

// RecordTTSSuccess clears the synthesis failure streak.
func (h *SubsystemHealth) RecordTTSSuccess() { h.recordSuccess(&h.ttsStreak, &h.ttsDown) }

// STTHealthy reports whether transcription is considered available.
func (h *SubsystemHealth) STTHealthy() bool { return !h.sttDown.Load() }

// TTSHealthy reports whether synthesis is considered available.
func (h *SubsystemHealth) TTSHealthy() bool { return !h.ttsDown.Load() }

// Healthy reports whether both subsystems are available.
func (h *SubsystemHealth) Healthy() bool { return h.STTHealthy() && h.TTSHealthy() }

// Config tunes the pipeline's degradation policy.
type Config struct {
	ConfidenceFloor float64
	STTTimeout      time.Duration
	TTSTimeout      time.Duration
}

func (c Config) withDefaults() Config {
	if c.ConfidenceFloor <= 0 {
		c.ConfidenceFloor = 0.6
	}
	if c.STTTimeout <= 0 {
		c.STTTimeout = 10 * time.Second
	}
	if c.TTSTimeout <= 0 {
		c.TTSTimeout = 10 * time.Second
	}
	return c
}

// Pipeline applies the degradation policy around the two adapters. Adapters
// may be nil when voice is not configured; calls then degrade immediately.
type Pipeline struct {
	stt    Transcriber
	tts    Synthesizer
	health *SubsystemHealth
	cfg    Config
}

// NewPipeline constructs a Pipeline sharing the given health state.
func NewPipeline(stt Transcriber, tts Synthesizer, health *SubsystemHealth, cfg Config) *Pipeline {
	if health == nil {
		health = NewSubsystemHealth(0)
	}
	return &Pipeline{stt: stt, tts: tts, health: health, cfg: cfg.withDefaults()}
}

// Health exposes the shared subsystem health.
func (p *Pipeline) Health() *SubsystemHealth { return p.health }

// Transcribe converts one voice turn to text. On failure, timeout, or a
// confidence below the floor it returns an empty transcript plus a notice
// that the session's input channel degraded to text. Failures never surface
// as errors to the caller.
func (p *Pipeline) Transcribe(ctx context.Context, sessionID string, audio []byte) (string, *session.Notice) {
	if p.stt == nil {
		return "", p.inputDegraded(sessionID, "transcription is not configured")
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.STTTimeout)
	defer cancel()

	transcript, err := p.stt.Transcribe(callCtx, audio)
	if err != nil {
		p.health.RecordSTTFailure()
		return "", p.inputDegraded(sessionID, fmt.Sprintf("transcription failed: %v", err))
	}
	if transcript.Confidence < p.cfg.ConfidenceFloor {
		p.health.RecordSTTFailure()
		return "", p.inputDegraded(sessionID, fmt.Sprintf("transcription confidence %.2f below floor %.2f", transcript.Confidence, p.cfg.ConfidenceFloor))
	}

	p.health.RecordSTTSuccess()
	return transcript.Text, nil
}

// Synthesize renders audio for an already-computed text response. Audio is
// best-effort: on failure it returns no audio plus a notice that the output
// channel degraded, and the text response proceeds regardless.
func (p *Pipeline) Synthesize(ctx context.Context, sessionID string, text string) ([]byte, *session.Notice) {
	if p.tts == nil {
		return nil, p.outputDegraded(sessionID, "synthesis is not configured")
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.TTSTimeout)
	defer cancel()

	audio, err := p.tts.Synthesize(callCtx, text)
	if err != nil {
		p.health.RecordTTSFailure()
		return nil, p.outputDegraded(sessionID, fmt.Sprintf("synthesis failed: %v", err))
	}

	p.health.RecordTTSSuccess()
	return audio, nil
}

func (p *Pipeline) inputDegraded(sessionID, reason string) *session.Notice {
	telemetry.DefaultEmitter().EmitLog(
		"voice_input_degraded", "warn", reason, nil,
		telemetry.Correlation{SessionID: sessionID, Component: "voice"},
	)
	return &session.Notice{
		Channel: session.ChannelInput,
		From:    string(session.InputVoice),
		To:      string(session.InputText),
		Reason:  reason,
	}
}

func (p *Pipeline) outputDegraded(sessionID, reason string) *session.Notice {
	telemetry.DefaultEmitter().EmitLog(
		"voice_output_degraded", "warn", reason, nil,
		telemetry.Correlation{SessionID: sessionID, Component: "voice"},
	)
	return &session.Notice{
		Channel: session.ChannelOutput,
		From:    string(session.OutputVoiceText),
		To:      string(session.OutputText),
		Reason:  reason,
	}
}
