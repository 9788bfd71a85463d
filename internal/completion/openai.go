package completion

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/mattjoyce/linerelay/internal/history"
)

// OpenAI is a Provider backed by the Chat Completions API. BaseURL lets it
// talk to any OpenAI-compatible endpoint.
type OpenAI struct {
	client *openai.Client
	cfg    Config
}

// NewOpenAI creates an OpenAI provider. cfg is used as given.
func NewOpenAI(cfg Config) *OpenAI {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)

	return &OpenAI{client: &client, cfg: cfg}
}

// Name implements Provider.
func (c *OpenAI) Name() string { return ProviderOpenAI }

// Model implements Provider.
func (c *OpenAI) Model() string { return c.cfg.Model }

// Complete implements Provider.
func (c *OpenAI) Complete(ctx context.Context, turns []history.Turn) (history.Turn, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case history.RoleSystem:
			messages = append(messages, openai.SystemMessage(t.Content))
		case history.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(t.Content))
		default:
			messages = append(messages, openai.UserMessage(t.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Messages:  messages,
		Model:     openai.ChatModel(c.cfg.Model),
		MaxTokens: openai.Int(int64(c.cfg.MaxTokens)),
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return history.Turn{}, fmt.Errorf("openai chat completion (model %s): %w", c.cfg.Model, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return history.Turn{}, fmt.Errorf("openai chat completion (model %s): %w", c.cfg.Model, ErrEmptyResponse)
	}

	return history.Assistant(resp.Choices[0].Message.Content), nil
}
