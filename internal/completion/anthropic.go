package completion

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"

	"github.com/mattjoyce/linerelay/internal/history"
)

// Anthropic is a Provider backed by the Messages API.
type Anthropic struct {
	client *anthropic.Client
	cfg    Config
}

// NewAnthropic creates an Anthropic provider. cfg is used as given.
func NewAnthropic(cfg Config) *Anthropic {
	opts := []anthropicoption.RequestOption{
		anthropicoption.WithAPIKey(cfg.APIKey),
		anthropicoption.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anthropicoption.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	return &Anthropic{client: &client, cfg: cfg}
}

// Name implements Provider.
func (c *Anthropic) Name() string { return ProviderAnthropic }

// Model implements Provider.
func (c *Anthropic) Model() string { return c.cfg.Model }

// Complete implements Provider. System turns become the system parameter.
func (c *Anthropic) Complete(ctx context.Context, turns []history.Turn) (history.Turn, error) {
	system, rest := splitSystem(turns)

	messages := make([]anthropic.MessageParam, 0, len(rest))
	for _, t := range rest {
		if t.Role == history.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.Content)))
			continue
		}
		messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(t.Content)))
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Model),
		MaxTokens: int64(c.cfg.MaxTokens),
		Messages:  messages,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return history.Turn{}, fmt.Errorf("anthropic messages (model %s): %w", c.cfg.Model, err)
	}

	var sb strings.Builder
	for i := range resp.Content {
		if resp.Content[i].Type == "text" {
			sb.WriteString(resp.Content[i].Text)
		}
	}
	if sb.Len() == 0 {
		return history.Turn{}, fmt.Errorf("anthropic messages (model %s): %w", c.cfg.Model, ErrEmptyResponse)
	}

	return history.Assistant(sb.String()), nil
}
