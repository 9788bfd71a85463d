package config

import "time"

// Config represents the complete linerelay configuration.
type Config struct {
	Service    ServiceConfig    `yaml:"service"`
	State      StateConfig      `yaml:"state"`
	LINE       LINEConfig       `yaml:"line"`
	Completion CompletionConfig `yaml:"completion"`
	Relay      RelayConfig      `yaml:"relay"`

	// SourceFile is the YAML file the config was read from, empty when the
	// config came from defaults and the environment only.
	SourceFile string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name         string        `yaml:"name"`
	LogLevel     string        `yaml:"log_level"`
	LogFormat    string        `yaml:"log_format"`
	Listen       string        `yaml:"listen"`
	CallbackPath string        `yaml:"callback_path"`
	MaxBodySize  string        `yaml:"max_body_size"` // e.g. "1MB", "512KB"
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// StateConfig defines event ledger storage. An empty Path disables the ledger.
type StateConfig struct {
	Path           string        `yaml:"path"`
	EventRetention time.Duration `yaml:"event_retention"`
}

// LINEConfig holds the messaging channel credentials.
type LINEConfig struct {
	ChannelSecret      string        `yaml:"channel_secret"`
	ChannelAccessToken string        `yaml:"channel_access_token"`
	APIEndpoint        string        `yaml:"api_endpoint,omitempty"`
	ReplyTimeout       time.Duration `yaml:"reply_timeout"`
}

// CompletionConfig selects and configures the completion provider.
type CompletionConfig struct {
	Provider  string        `yaml:"provider"` // openai | anthropic
	APIKey    string        `yaml:"api_key"`
	Model     string        `yaml:"model"`
	BaseURL   string        `yaml:"base_url,omitempty"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

// RelayConfig controls conversation handling.
type RelayConfig struct {
	History         string `yaml:"history"` // none | linear | per-user
	SystemPrompt    string `yaml:"system_prompt,omitempty"`
	FallbackMessage string `yaml:"fallback_message,omitempty"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:         "linerelay",
			LogLevel:     "info",
			LogFormat:    "json",
			Listen:       "0.0.0.0:8000",
			CallbackPath: "/callback",
			MaxBodySize:  "1MB",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 90 * time.Second,
		},
		State: StateConfig{
			Path:           "./data/linerelay.db",
			EventRetention: 72 * time.Hour,
		},
		LINE: LINEConfig{
			ReplyTimeout: 10 * time.Second,
		},
		Completion: CompletionConfig{
			Provider:  "openai",
			MaxTokens: 1024,
			Timeout:   30 * time.Second,
		},
		Relay: RelayConfig{
			History: "per-user",
		},
	}
}
