// Package openai adapts an OpenAI-compatible endpoint (via langchaingo) to
// the model router's Handle contract. It serves as the fallback endpoint.
package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/oratio/teachback/internal/modelrouter"
)

// Config configures the fallback handle.
type Config struct {
	APIKey      string
	Model       string
	Temperature float64
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.Temperature <= 0 {
		c.Temperature = 0.7
	}
	return c
}

// Handle is the fallback model endpoint.
type Handle struct {
	llm llms.Model
	cfg Config
}

// New constructs the handle.
func New(cfg Config) (*Handle, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	cfg = cfg.withDefaults()
	llm, err := openai.New(
		openai.WithModel(cfg.Model),
		openai.WithToken(cfg.APIKey),
	)
	if err != nil {
		return nil, fmt.Errorf("construct openai client: %w", err)
	}
	return &Handle{llm: llm, cfg: cfg}, nil
}

// Name identifies the endpoint in health records and telemetry.
func (h *Handle) Name() string { return "openai:" + h.cfg.Model }

// Generate performs one completion call. The system prompt is folded into
// the single prompt since the single-prompt helper carries no separate
// system channel.
func (h *Handle) Generate(ctx context.Context, req modelrouter.Request) (modelrouter.Response, error) {
	prompt := req.Prompt
	if req.System != "" {
		prompt = req.System + "\n\n" + req.Prompt
	}
	completion, err := llms.GenerateFromSinglePrompt(ctx, h.llm, prompt, llms.WithTemperature(h.cfg.Temperature))
	if err != nil {
		return modelrouter.Response{}, fmt.Errorf("openai completion call: %w", err)
	}
	text := strings.TrimSpace(completion)
	if text == "" {
		return modelrouter.Response{}, fmt.Errorf("openai response was empty")
	}
	return modelrouter.Response{Text: text}, nil
}
