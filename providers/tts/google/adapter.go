// Package google synthesizes speech with the Google Cloud Text-to-Speech
// API. It is the fallback TTS adapter.
package google

import (
	"context"
	"fmt"
	"strings"
	"sync"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"github.com/googleapis/gax-go/v2"
	texttospeechpb "google.golang.org/genproto/googleapis/cloud/texttospeech/v1"
)

type synthClient interface {
	SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest, opts ...gax.CallOption) (*texttospeechpb.SynthesizeSpeechResponse, error)
}

// Config configures the Google TTS adapter.
type Config struct {
	LanguageCode string
	VoiceName    string
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.LanguageCode) == "" {
		c.LanguageCode = "en-US"
	}
	return c
}

// Adapter synthesizes MP3 audio. The client is resolved lazily through
// application-default credentials.
type Adapter struct {
	mu     sync.Mutex
	client synthClient
	cfg    Config
}

// NewAdapter constructs an adapter that resolves the client on first use.
func NewAdapter(cfg Config) *Adapter {
	return NewAdapterWithClient(cfg, nil)
}

// NewAdapterWithClient constructs an adapter around an injected client.
func NewAdapterWithClient(cfg Config, client synthClient) *Adapter {
	return &Adapter{client: client, cfg: cfg.withDefaults()}
}

// Name identifies the adapter in health records and telemetry.
func (a *Adapter) Name() string { return "tts-google-cloud" }

// Synthesize renders text to MP3 audio.
func (a *Adapter) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("google tts: text is required")
	}
	client, err := a.resolveClient(ctx)
	if err != nil {
		return nil, err
	}

	req := &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: a.cfg.LanguageCode,
			Name:         a.cfg.VoiceName,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_MP3,
		},
	}
	resp, err := client.SynthesizeSpeech(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("google tts synthesize: %w", err)
	}
	if len(resp.AudioContent) == 0 {
		return nil, fmt.Errorf("google tts: empty audio content")
	}
	return resp.AudioContent, nil
}

func (a *Adapter) resolveClient(ctx context.Context) (synthClient, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		return a.client, nil
	}
	client, err := texttospeech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("construct google tts client: %w", err)
	}
	a.client = client
	return a.client, nil
}
