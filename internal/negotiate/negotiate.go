// Package negotiate resolves requested session modes against feature flags
// and current voice subsystem health. It runs once at session creation;
// mid-session channel degradation is the voice pipeline's job.
package negotiate

import (
	"fmt"

	"github.com/oratio/teachback/api/session"
)

// Input carries the requested modes and the flags in effect.
type Input struct {
	RequestedInput  session.InputMode
	RequestedOutput session.OutputMode
	FeatureEnabled  bool
	VoiceEnabled    bool
	VoiceHealthy    bool
}

// Output carries the resolved modes plus the notices disclosing any
// silent-but-visible downgrades.
type Output struct {
	InputMode  session.InputMode
	OutputMode session.OutputMode
	Notices    []session.Notice
}

// Resolve applies the negotiation policy. A disabled feature rejects the
// session; a voice request with voice unavailable resolves to text with a
// notice per affected channel.
func Resolve(in Input) (Output, error) {
	if !in.FeatureEnabled {
		return Output{}, session.ErrFeatureDisabled
	}
	if err := in.RequestedInput.Validate(); err != nil {
		return Output{}, fmt.Errorf("%w: %v", session.ErrInvalidMode, err)
	}
	if err := in.RequestedOutput.Validate(); err != nil {
		return Output{}, fmt.Errorf("%w: %v", session.ErrInvalidMode, err)
	}

	out := Output{InputMode: in.RequestedInput, OutputMode: in.RequestedOutput}
	voiceAvailable := in.VoiceEnabled && in.VoiceHealthy

	if in.RequestedInput.AllowsVoice() && !voiceAvailable {
		out.InputMode = session.InputText
		out.Notices = append(out.Notices, session.Notice{
			Channel: session.ChannelInput,
			From:    string(in.RequestedInput),
			To:      string(session.InputText),
			Reason:  voiceUnavailableReason(in),
		})
	}
	if in.RequestedOutput == session.OutputVoiceText && !voiceAvailable {
		out.OutputMode = session.OutputText
		out.Notices = append(out.Notices, session.Notice{
			Channel: session.ChannelOutput,
			From:    string(in.RequestedOutput),
			To:      string(session.OutputText),
			Reason:  voiceUnavailableReason(in),
		})
	}
	return out, nil
}

func voiceUnavailableReason(in Input) string {
	if !in.VoiceEnabled {
		return "voice is disabled"
	}
	return "voice subsystem is unhealthy"
}
