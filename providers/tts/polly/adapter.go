// Package polly synthesizes speech with Amazon Polly. It is the default
// TTS adapter.
package polly

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"
)

type synthClient interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// Config configures the Polly adapter.
type Config struct {
	Region  string
	VoiceID string
	Engine  string
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Region) == "" {
		c.Region = "us-east-1"
	}
	if strings.TrimSpace(c.VoiceID) == "" {
		c.VoiceID = "Joanna"
	}
	if strings.TrimSpace(c.Engine) == "" {
		c.Engine = "neural"
	}
	return c
}

// Adapter synthesizes MP3 audio from response text. The AWS client is
// resolved lazily so construction never needs credentials.
type Adapter struct {
	mu     sync.Mutex
	client synthClient
	cfg    Config
}

// NewAdapter constructs an adapter that resolves the AWS client on first use.
func NewAdapter(cfg Config) *Adapter {
	return NewAdapterWithClient(cfg, nil)
}

// NewAdapterWithClient constructs an adapter around an injected client.
func NewAdapterWithClient(cfg Config, client synthClient) *Adapter {
	return &Adapter{client: client, cfg: cfg.withDefaults()}
}

// Name identifies the adapter in health records and telemetry.
func (a *Adapter) Name() string { return "tts-amazon-polly" }

// Synthesize renders text to MP3 audio.
func (a *Adapter) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("polly: text is required")
	}
	client, err := a.resolveClient(ctx)
	if err != nil {
		return nil, err
	}

	engine := pollytypes.EngineStandard
	if strings.EqualFold(a.cfg.Engine, "neural") {
		engine = pollytypes.EngineNeural
	}

	output, err := client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Engine:       engine,
		OutputFormat: pollytypes.OutputFormatMp3,
		Text:         &text,
		TextType:     pollytypes.TextTypeText,
		VoiceId:      pollytypes.VoiceId(a.cfg.VoiceID),
	})
	if err != nil {
		return nil, normalizePollyError(err)
	}
	if output == nil || output.AudioStream == nil {
		return nil, fmt.Errorf("polly: empty audio stream")
	}
	defer output.AudioStream.Close()

	audio, err := io.ReadAll(output.AudioStream)
	if err != nil {
		return nil, fmt.Errorf("polly: read audio stream: %w", err)
	}
	return audio, nil
}

func normalizePollyError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "TooManyRequestsException":
			return fmt.Errorf("polly overloaded: %w", err)
		case "InvalidSsmlException", "TextLengthExceededException", "LexiconNotFoundException", "InvalidSampleRateException":
			return fmt.Errorf("polly rejected request: %w", err)
		default:
			return fmt.Errorf("polly server error: %w", err)
		}
	}
	return fmt.Errorf("polly transport error: %w", err)
}

func (a *Adapter) resolveClient(ctx context.Context) (synthClient, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		return a.client, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(a.cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	a.client = polly.NewFromConfig(awsCfg)
	return a.client, nil
}
