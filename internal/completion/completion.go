// Package completion talks to chat-completion providers.
//
// The relay treats a provider as one synchronous call: an ordered list of
// turns goes in, one assistant turn comes out. Retries are disabled in the
// SDK clients; a failed webhook is redelivered by the platform instead.
package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mattjoyce/linerelay/internal/history"
)

// Provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Defaults per provider.
const (
	DefaultOpenAIModel    = "gpt-3.5-turbo"
	DefaultAnthropicModel = "claude-3-5-haiku-latest"
	DefaultMaxTokens      = 1024
)

// ErrEmptyResponse is returned when the provider answers without any text.
var ErrEmptyResponse = errors.New("provider returned no text")

// Provider produces the next assistant turn for a conversation.
type Provider interface {
	Complete(ctx context.Context, turns []history.Turn) (history.Turn, error)
	Name() string
	Model() string
}

// Config selects and configures a provider.
type Config struct {
	Provider  string
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
}

// New builds the provider named in cfg.
func New(cfg Config) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("completion: api key is empty")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOpenAI:
		if cfg.Model == "" {
			cfg.Model = DefaultOpenAIModel
		}
		return NewOpenAI(cfg), nil
	case ProviderAnthropic:
		if cfg.Model == "" {
			cfg.Model = DefaultAnthropicModel
		}
		return NewAnthropic(cfg), nil
	default:
		return nil, fmt.Errorf("completion: unknown provider %q", cfg.Provider)
	}
}

// splitSystem separates leading system turns from the conversation. Providers
// that take the system prompt out of band use it.
func splitSystem(turns []history.Turn) (system string, rest []history.Turn) {
	var parts []string
	for _, t := range turns {
		if t.Role == history.RoleSystem {
			parts = append(parts, t.Content)
			continue
		}
		rest = append(rest, t)
	}
	return strings.Join(parts, "\n\n"), rest
}
