// Package anthropic adapts the Anthropic Messages API to the model router's
// Handle contract. It serves as the primary endpoint.
package anthropic

import (
	"context"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/oratio/teachback/internal/modelrouter"
)

const defaultMaxTokens = 2048

// Config configures the Anthropic handle.
type Config struct {
	APIKey    string
	Model     string
	MaxTokens int64
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = string(sdk.ModelClaude4Sonnet20250514)
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = defaultMaxTokens
	}
	return c
}

// Handle is the primary model endpoint.
type Handle struct {
	client *sdk.Client
	cfg    Config
}

// New constructs the handle.
func New(cfg Config) (*Handle, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	client := sdk.NewClient(option.WithAPIKey(cfg.APIKey))
	return &Handle{client: &client, cfg: cfg.withDefaults()}, nil
}

// Name identifies the endpoint in health records and telemetry.
func (h *Handle) Name() string { return "anthropic:" + h.cfg.Model }

// Generate performs one Messages API call and flattens the text blocks.
func (h *Handle) Generate(ctx context.Context, req modelrouter.Request) (modelrouter.Response, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(h.cfg.Model),
		MaxTokens: h.cfg.MaxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}

	message, err := h.client.Messages.New(ctx, params)
	if err != nil {
		return modelrouter.Response{}, fmt.Errorf("anthropic messages call: %w", err)
	}

	var text string
	for _, block := range message.Content {
		switch block := block.AsAny().(type) {
		case sdk.TextBlock:
			text += block.Text
		}
	}
	if text == "" {
		return modelrouter.Response{}, fmt.Errorf("anthropic response contained no text blocks")
	}
	return modelrouter.Response{Text: text}, nil
}
