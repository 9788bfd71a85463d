package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable the loader reads so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	names := append([]string{}, envChannelSecret...)
	names = append(names, envChannelAccessToken...)
	names = append(names, EnvConfigPath, envProvider, envModel, envHistory, envListen, envPort, envLogLevel, envOpenAIKey, envClaudeKey)
	for _, n := range names {
		t.Setenv(n, "")
	}
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ChannelSecret", "secret")
	t.Setenv("ChannelAccessToken", "token")
	t.Setenv("OPENAI_API_KEY", "sk-test")
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromEnvironmentOnly(t *testing.T) {
	clearEnv(t)
	setRequiredEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.LINE.ChannelSecret)
	assert.Equal(t, "token", cfg.LINE.ChannelAccessToken)
	assert.Equal(t, "sk-test", cfg.Completion.APIKey)
	assert.Equal(t, "openai", cfg.Completion.Provider)
	assert.Equal(t, "0.0.0.0:8000", cfg.Service.Listen)
	assert.Equal(t, "/callback", cfg.Service.CallbackPath)
	assert.Equal(t, "per-user", cfg.Relay.History)
	assert.Equal(t, 30*time.Second, cfg.Completion.Timeout)
	assert.Equal(t, "./data/linerelay.db", cfg.State.Path)
	assert.Empty(t, cfg.SourceFile)
}

func TestLoadAlternateEnvNames(t *testing.T) {
	clearEnv(t)
	t.Setenv("LINE_CHANNEL_SECRET", "s2")
	t.Setenv("LINE_CHANNEL_ACCESS_TOKEN", "t2")
	t.Setenv("OPENAI_API_KEY", "k")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "s2", cfg.LINE.ChannelSecret)
	assert.Equal(t, "t2", cfg.LINE.ChannelAccessToken)
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
		checkFn func(t *testing.T, cfg *Config)
	}{
		{
			name: "full file",
			yaml: `
service:
  listen: 127.0.0.1:9000
  callback_path: /line/callback
  max_body_size: 512KB
  log_format: text
state:
  path: ./relay.db
  event_retention: 24h
line:
  channel_secret: file-secret
  channel_access_token: file-token
completion:
  provider: anthropic
  api_key: file-key
  model: claude-3-5-sonnet-latest
  max_tokens: 512
  timeout: 15s
relay:
  history: linear
  fallback_message: "ขออภัย ระบบขัดข้อง"
`,
			checkFn: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "127.0.0.1:9000", cfg.Service.Listen)
				assert.Equal(t, "/line/callback", cfg.Service.CallbackPath)
				assert.Equal(t, "512KB", cfg.Service.MaxBodySize)
				assert.Equal(t, "text", cfg.Service.LogFormat)
				assert.Equal(t, 24*time.Hour, cfg.State.EventRetention)
				assert.Equal(t, "anthropic", cfg.Completion.Provider)
				assert.Equal(t, "claude-3-5-sonnet-latest", cfg.Completion.Model)
				assert.Equal(t, 512, cfg.Completion.MaxTokens)
				assert.Equal(t, 15*time.Second, cfg.Completion.Timeout)
				assert.Equal(t, "linear", cfg.Relay.History)
				assert.Equal(t, "ขออภัย ระบบขัดข้อง", cfg.Relay.FallbackMessage)
				// Unset fields keep their defaults.
				assert.Equal(t, 90*time.Second, cfg.Service.WriteTimeout)
			},
		},
		{
			name: "env var interpolation",
			yaml: `
line:
  channel_secret: ${TEST_LINE_SECRET}
  channel_access_token: ${TEST_LINE_TOKEN}
completion:
  api_key: ${TEST_OPENAI_KEY}
`,
			env: map[string]string{
				"TEST_LINE_SECRET": "interp-secret",
				"TEST_LINE_TOKEN":  "interp-token",
				"TEST_OPENAI_KEY":  "interp-key",
			},
			checkFn: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "interp-secret", cfg.LINE.ChannelSecret)
				assert.Equal(t, "interp-token", cfg.LINE.ChannelAccessToken)
				assert.Equal(t, "interp-key", cfg.Completion.APIKey)
			},
		},
		{
			name: "environment overrides file",
			yaml: `
line:
  channel_secret: file-secret
  channel_access_token: file-token
completion:
  api_key: file-key
relay:
  history: none
`,
			env: map[string]string{
				"ChannelSecret":     "env-secret",
				"LINERELAY_HISTORY": "linear",
				"LINERELAY_MODEL":   "gpt-4o-mini",
				"PORT":              "8080",
			},
			checkFn: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "env-secret", cfg.LINE.ChannelSecret)
				assert.Equal(t, "file-token", cfg.LINE.ChannelAccessToken)
				assert.Equal(t, "linear", cfg.Relay.History)
				assert.Equal(t, "gpt-4o-mini", cfg.Completion.Model)
				assert.Equal(t, ":8080", cfg.Service.Listen)
			},
		},
		{
			name: "empty state path disables ledger",
			yaml: `
state:
  path: ""
line:
  channel_secret: s
  channel_access_token: t
completion:
  api_key: k
`,
			checkFn: func(t *testing.T, cfg *Config) {
				assert.Empty(t, cfg.State.Path)
			},
		},
		{
			name: "missing channel secret",
			yaml: `
line:
  channel_access_token: t
completion:
  api_key: k
`,
			wantErr: "line.channel_secret is required",
		},
		{
			name: "unresolved env var",
			yaml: `
line:
  channel_secret: ${TEST_UNSET_SECRET_VAR}
  channel_access_token: t
completion:
  api_key: k
`,
			wantErr: "TEST_UNSET_SECRET_VAR",
		},
		{
			name: "missing api key names provider variable",
			yaml: `
line:
  channel_secret: s
  channel_access_token: t
completion:
  provider: anthropic
`,
			wantErr: "ANTHROPIC_API_KEY",
		},
		{
			name: "unknown provider",
			yaml: `
line:
  channel_secret: s
  channel_access_token: t
completion:
  provider: cohere
  api_key: k
`,
			wantErr: "not supported",
		},
		{
			name: "unknown history mode",
			yaml: `
line:
  channel_secret: s
  channel_access_token: t
completion:
  api_key: k
relay:
  history: forever
`,
			wantErr: "relay.history",
		},
		{
			name: "bad body size",
			yaml: `
service:
  max_body_size: lots
line:
  channel_secret: s
  channel_access_token: t
completion:
  api_key: k
`,
			wantErr: "max_body_size",
		},
		{
			name: "callback path without slash",
			yaml: `
service:
  callback_path: callback
line:
  channel_secret: s
  channel_access_token: t
completion:
  api_key: k
`,
			wantErr: "callback_path",
		},
		{
			name:    "invalid yaml",
			yaml:    "service: [unclosed",
			wantErr: "failed to parse YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := writeConfig(t, tt.yaml)

			cfg, err := Load(path)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, path, cfg.SourceFile)
			if tt.checkFn != nil {
				tt.checkFn(t, cfg)
			}
		})
	}
}

func TestLoadConfigPathFromEnv(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
line:
  channel_secret: s
  channel_access_token: t
completion:
  api_key: k
`)
	t.Setenv(EnvConfigPath, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, path, cfg.SourceFile)
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadUnvalidatedKeepsProblems(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadUnvalidated("")
	require.NoError(t, err)
	assert.Empty(t, cfg.LINE.ChannelSecret)
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_DOTENV_KEEP", "from-env")
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("TEST_DOTENV_NEW=from-file\nTEST_DOTENV_KEEP=from-file\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("TEST_DOTENV_NEW") })

	require.NoError(t, LoadDotEnv(path, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "from-file", os.Getenv("TEST_DOTENV_NEW"))
	assert.Equal(t, "from-env", os.Getenv("TEST_DOTENV_KEEP"))
}

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"1MB", 1 << 20, false},
		{"512kb", 512 << 10, false},
		{"2GB", 2 << 30, false},
		{"100B", 100, false},
		{"2048576", 2048576, false},
		{"", 0, true},
		{"0", 0, true},
		{"-1MB", 0, true},
		{"lots", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseByteSize(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestUnresolvedEnvVar(t *testing.T) {
	assert.Equal(t, "FOO", UnresolvedEnvVar("${FOO}"))
	assert.Equal(t, "", UnresolvedEnvVar("plain"))
}
