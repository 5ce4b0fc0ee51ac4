// Package deepgram transcribes audio with the Deepgram prerecorded API.
package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oratio/teachback/internal/voice"
	"github.com/oratio/teachback/providers/common/httpadapter"
)

const defaultEndpoint = "https://api.deepgram.com/v1/listen"

// Config configures the Deepgram adapter.
type Config struct {
	APIKey      string
	Endpoint    string
	ContentType string
	Timeout     time.Duration
}

// Adapter implements voice.Transcriber over the prerecorded endpoint.
type Adapter struct {
	http        *httpadapter.Adapter
	contentType string
}

// New constructs the adapter.
func New(cfg Config) (*Adapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("deepgram api key is required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	contentType := cfg.ContentType
	if contentType == "" {
		contentType = "audio/wav"
	}
	http, err := httpadapter.New(httpadapter.Config{
		Name:         "stt-deepgram",
		Endpoint:     endpoint,
		APIKey:       cfg.APIKey,
		APIKeyHeader: "Authorization",
		APIKeyPrefix: "Token ",
		Timeout:      cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{http: http, contentType: contentType}, nil
}

// Name identifies the adapter in health records and telemetry.
func (a *Adapter) Name() string { return a.http.Name() }

// response mirrors the slice of the prerecorded response we consume.
type response struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Transcribe sends raw audio and returns the top alternative.
func (a *Adapter) Transcribe(ctx context.Context, audio []byte) (voice.Transcript, error) {
	if len(audio) == 0 {
		return voice.Transcript{}, fmt.Errorf("deepgram: audio payload is required")
	}
	result, err := a.http.Do(ctx, audio, a.contentType)
	if err != nil {
		return voice.Transcript{}, err
	}
	if result.Outcome.Class != httpadapter.OutcomeSuccess {
		return voice.Transcript{}, fmt.Errorf("deepgram: %s (%s)", result.Outcome.Class, result.Outcome.Reason)
	}

	var parsed response
	if err := json.Unmarshal(result.Body, &parsed); err != nil {
		return voice.Transcript{}, fmt.Errorf("deepgram: decode response: %w", err)
	}
	if len(parsed.Results.Channels) == 0 || len(parsed.Results.Channels[0].Alternatives) == 0 {
		return voice.Transcript{}, fmt.Errorf("deepgram: response carried no alternatives")
	}
	top := parsed.Results.Channels[0].Alternatives[0]
	return voice.Transcript{Text: top.Transcript, Confidence: top.Confidence}, nil
}
