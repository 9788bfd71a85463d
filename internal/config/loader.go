package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/linerelay/internal/history"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Environment variables recognised on top of the YAML file. Where two names
// are listed the first one set wins.
var (
	envChannelSecret      = []string{"ChannelSecret", "LINE_CHANNEL_SECRET"}
	envChannelAccessToken = []string{"ChannelAccessToken", "LINE_CHANNEL_ACCESS_TOKEN"}
)

const (
	EnvConfigPath = "LINERELAY_CONFIG"
	envProvider   = "LINERELAY_PROVIDER"
	envModel      = "LINERELAY_MODEL"
	envHistory    = "LINERELAY_HISTORY"
	envListen     = "LINERELAY_LISTEN"
	envPort       = "PORT"
	envLogLevel   = "LINERELAY_LOG_LEVEL"
	envOpenAIKey  = "OPENAI_API_KEY"
	envClaudeKey  = "ANTHROPIC_API_KEY"
)

// LoadDotEnv loads KEY=VALUE pairs from the given files (".env" when none are
// given) into the process environment. Variables already set are kept and
// missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load builds the configuration from defaults, the optional YAML file at
// configPath and the environment, in that order of precedence (last wins).
// An empty configPath falls back to $LINERELAY_CONFIG; when that is unset too
// only defaults and the environment are used.
func Load(configPath string) (*Config, error) {
	cfg, err := read(configPath)
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadUnvalidated is Load without validation. The doctor uses it so that it
// can report every problem rather than the first one.
func LoadUnvalidated(configPath string) (*Config, error) {
	return read(configPath)
}

func read(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = os.Getenv(EnvConfigPath)
	}

	cfg := Defaults()
	if configPath != "" {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
		}
		fileCfg, err := loadConfigFile(absPath)
		if err != nil {
			return nil, fmt.Errorf("config %s: %w", absPath, err)
		}
		cfg = fileCfg
		cfg.SourceFile = absPath
	}

	applyEnvOverrides(cfg)
	applyConfigDefaults(cfg)
	return cfg, nil
}

// loadConfigFile parses a YAML file on top of Defaults().
func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	interpolated := interpolateEnv(string(data))

	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(interpolated), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := firstEnv(envChannelSecret...); v != "" {
		cfg.LINE.ChannelSecret = v
	}
	if v := firstEnv(envChannelAccessToken...); v != "" {
		cfg.LINE.ChannelAccessToken = v
	}
	if v := os.Getenv(envProvider); v != "" {
		cfg.Completion.Provider = v
	}
	if v := os.Getenv(envModel); v != "" {
		cfg.Completion.Model = v
	}
	if v := os.Getenv(envHistory); v != "" {
		cfg.Relay.History = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.Service.LogLevel = v
	}
	if v := os.Getenv(envPort); v != "" {
		cfg.Service.Listen = ":" + v
	}
	if v := os.Getenv(envListen); v != "" {
		cfg.Service.Listen = v
	}

	var keyEnv string
	switch strings.ToLower(cfg.Completion.Provider) {
	case "anthropic":
		keyEnv = envClaudeKey
	default:
		keyEnv = envOpenAIKey
	}
	if v := os.Getenv(keyEnv); v != "" {
		cfg.Completion.APIKey = v
	}
}

// applyConfigDefaults fills fields a YAML file may have zeroed explicitly.
func applyConfigDefaults(cfg *Config) {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}
	if cfg.Service.Listen == "" {
		cfg.Service.Listen = defaults.Service.Listen
	}
	if cfg.Service.CallbackPath == "" {
		cfg.Service.CallbackPath = defaults.Service.CallbackPath
	}
	if cfg.Service.MaxBodySize == "" {
		cfg.Service.MaxBodySize = defaults.Service.MaxBodySize
	}
	if cfg.Service.ReadTimeout == 0 {
		cfg.Service.ReadTimeout = defaults.Service.ReadTimeout
	}
	if cfg.Service.WriteTimeout == 0 {
		cfg.Service.WriteTimeout = defaults.Service.WriteTimeout
	}
	if cfg.State.EventRetention == 0 {
		cfg.State.EventRetention = defaults.State.EventRetention
	}
	if cfg.LINE.ReplyTimeout == 0 {
		cfg.LINE.ReplyTimeout = defaults.LINE.ReplyTimeout
	}
	if cfg.Completion.Provider == "" {
		cfg.Completion.Provider = defaults.Completion.Provider
	}
	cfg.Completion.Provider = strings.ToLower(cfg.Completion.Provider)
	if cfg.Completion.MaxTokens == 0 {
		cfg.Completion.MaxTokens = defaults.Completion.MaxTokens
	}
	if cfg.Completion.Timeout == 0 {
		cfg.Completion.Timeout = defaults.Completion.Timeout
	}
	if cfg.Relay.History == "" {
		cfg.Relay.History = defaults.Relay.History
	}
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// Left in place; validate reports it if the field is required.
		return match
	})
}

// UnresolvedEnvVar returns the name of the first ${VAR} placeholder left in
// value, or "" if there is none.
func UnresolvedEnvVar(value string) string {
	m := envVarPattern.FindStringSubmatch(value)
	if m == nil {
		return ""
	}
	return m[1]
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	required := []struct {
		field string
		value string
		env   string
	}{
		{"line.channel_secret", cfg.LINE.ChannelSecret, strings.Join(envChannelSecret, " or ")},
		{"line.channel_access_token", cfg.LINE.ChannelAccessToken, strings.Join(envChannelAccessToken, " or ")},
		{"completion.api_key", cfg.Completion.APIKey, APIKeyEnv(cfg.Completion.Provider)},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required (set %s)", r.field, r.env)
		}
		if name := UnresolvedEnvVar(r.value); name != "" {
			return fmt.Errorf("%s references undefined environment variable %s", r.field, name)
		}
	}

	switch cfg.Completion.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("completion.provider %q is not supported (want openai or anthropic)", cfg.Completion.Provider)
	}
	if cfg.Completion.MaxTokens < 0 {
		return fmt.Errorf("completion.max_tokens must not be negative")
	}
	if cfg.Completion.Timeout < 0 {
		return fmt.Errorf("completion.timeout must not be negative")
	}

	if _, err := history.ParseMode(cfg.Relay.History); err != nil {
		return fmt.Errorf("relay.history: %w", err)
	}

	if !strings.HasPrefix(cfg.Service.CallbackPath, "/") {
		return fmt.Errorf("service.callback_path %q must start with /", cfg.Service.CallbackPath)
	}
	if cfg.Service.CallbackPath == HealthPath {
		return fmt.Errorf("service.callback_path must not be %s", HealthPath)
	}
	if _, err := ParseByteSize(cfg.Service.MaxBodySize); err != nil {
		return fmt.Errorf("service.max_body_size %q: %w", cfg.Service.MaxBodySize, err)
	}
	if cfg.State.Path != "" && cfg.State.EventRetention < 0 {
		return fmt.Errorf("state.event_retention must not be negative")
	}
	return nil
}

// HealthPath is served by the webhook server alongside the callback.
const HealthPath = "/healthz"

// APIKeyEnv names the environment variable that carries the API key for a
// provider.
func APIKeyEnv(provider string) string {
	if strings.EqualFold(provider, "anthropic") {
		return envClaudeKey
	}
	return envOpenAIKey
}

// ParseByteSize parses size strings like "1MB", "512KB" or "2048576" to bytes.
func ParseByteSize(size string) (int64, error) {
	upper := strings.ToUpper(strings.TrimSpace(size))
	if upper == "" {
		return 0, fmt.Errorf("size is empty")
	}

	multiplier := int64(1)
	switch {
	case strings.HasSuffix(upper, "KB"):
		multiplier = 1 << 10
		upper = strings.TrimSuffix(upper, "KB")
	case strings.HasSuffix(upper, "MB"):
		multiplier = 1 << 20
		upper = strings.TrimSuffix(upper, "MB")
	case strings.HasSuffix(upper, "GB"):
		multiplier = 1 << 30
		upper = strings.TrimSuffix(upper, "GB")
	case strings.HasSuffix(upper, "B"):
		upper = strings.TrimSuffix(upper, "B")
	}

	value, err := strconv.ParseInt(strings.TrimSpace(upper), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value: %w", err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("size must be positive")
	}
	result := value * multiplier
	if result/multiplier != value {
		return 0, fmt.Errorf("size too large")
	}
	return result, nil
}
